package types

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorType 上游错误类型
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAuthentication ErrorType = "authentication_error"
	ErrorTypePermission     ErrorType = "permission_error"
	ErrorTypeNotFound       ErrorType = "not_found_error"
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"
	ErrorTypeAPI            ErrorType = "api_error"
	ErrorTypeTransport      ErrorType = "transport_error"
)

// ProviderError 上游模型服务返回的错误，Message 为上游给出的原始描述
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError 根据 HTTP 状态码推断错误类型
func NewProviderError(provider string, status int, message string, err error) *ProviderError {
	return &ProviderError{
		Type:       ErrorTypeFromStatus(status),
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}

// ErrorTypeFromStatus 状态码到错误类型
func ErrorTypeFromStatus(status int) ErrorType {
	switch {
	case status == 0:
		return ErrorTypeTransport
	case status == http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case status == http.StatusForbidden:
		return ErrorTypePermission
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status >= 400 && status < 500:
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeAPI
	}
}

// MissingAPIKey 未配置 key 时的错误，消息里带 "API key" 以便上层映射为 401
func MissingAPIKey(provider string) *ProviderError {
	return &ProviderError{
		Type:     ErrorTypeAuthentication,
		Provider: provider,
		Message:  "Missing API key for " + provider + " provider",
	}
}

// IsAPIKeyError 错误描述中提到 API key 即视为鉴权问题
func IsAPIKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Type == ErrorTypeAuthentication {
		return true
	}
	return strings.Contains(err.Error(), "API key")
}
