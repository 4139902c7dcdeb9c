package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/AGIOS-UPDATED/midday-test/internal/websearch/types"
)

// Provider defines the interface for search providers
type Provider interface {
	// Search executes a search query
	Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error)

	// GetID returns the provider ID
	GetID() types.ProviderID
}

// RequestBuilder 每次重试都重新构建请求，body 不能复用
type RequestBuilder func(ctx context.Context, apiKey string) (*http.Request, error)

// BaseProvider provides common functionality for all providers
type BaseProvider struct {
	config     *types.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter

	mu       sync.Mutex
	keyIndex int

	backoff time.Duration
}

// NewBaseProvider creates a new base provider
func NewBaseProvider(config *types.ProviderConfig) *BaseProvider {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	keys := make([]string, 0, len(config.APIKeys))
	for _, k := range config.APIKeys {
		for _, part := range strings.Split(k, ",") {
			if part = strings.TrimSpace(part); part != "" {
				keys = append(keys, part)
			}
		}
	}
	config.APIKeys = keys

	b := &BaseProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		backoff: 500 * time.Millisecond,
	}
	if config.RateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return b
}

// GetID returns the provider ID
func (b *BaseProvider) GetID() types.ProviderID {
	return b.config.ID
}

// GetConfig returns the provider configuration
func (b *BaseProvider) GetConfig() *types.ProviderConfig {
	return b.config
}

// GetAPIKey returns the current API key (with rotation support)
func (b *BaseProvider) GetAPIKey() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.config.APIKeys) == 0 {
		return ""
	}
	key := b.config.APIKeys[b.keyIndex]
	b.keyIndex = (b.keyIndex + 1) % len(b.config.APIKeys)
	return key
}

// SetDefaultHeaders sets headers shared by all providers
func (b *BaseProvider) SetDefaultHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bolt-backend/1.0")
}

// Do 执行请求并返回响应体；网络错误、429 和 5xx 按指数退避重试，每次重试换下一个 key
func (b *BaseProvider) Do(ctx context.Context, build RequestBuilder) ([]byte, error) {
	maxRetries := b.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr *types.ProviderError
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.backoff << (attempt - 1)):
			}
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := build(ctx, b.GetAPIKey())
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		b.SetDefaultHeaders(req)

		body, perr := b.do(req)
		if perr == nil {
			return body, nil
		}
		lastErr = perr
		if !perr.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (b *BaseProvider) do(req *http.Request) ([]byte, *types.ProviderError) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &types.ProviderError{Provider: b.GetID(), Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ProviderError{Provider: b.GetID(), Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.ProviderError{
			Provider: b.GetID(),
			Status:   resp.StatusCode,
			Message:  errorMessage(body),
		}
	}
	return body, nil
}

// errorMessage 从上游错误体中取出可读信息
func errorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "detail.error", "detail", "message"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
