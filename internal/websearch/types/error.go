package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidProviderID        = errors.New("invalid provider ID")
	ErrInvalidAPIHost           = errors.New("invalid API host")
	ErrMissingAPIKey            = errors.New("missing API key")
	ErrMissingBasicAuthPassword = errors.New("missing basic auth password")

	ErrEmptyQuery = errors.New("empty search query")

	ErrProviderNotFound     = errors.New("provider not found")
	ErrProviderNotAvailable = errors.New("provider not available")
)

// ProviderError wraps provider-specific errors
type ProviderError struct {
	Provider ProviderID
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Provider, e.Message, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("[%s] HTTP %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable 网络错误、429 和 5xx 可以重试
func (e *ProviderError) Retryable() bool {
	return e.Err != nil || e.Status == 429 || e.Status >= 500
}
