package types

import "time"

type ProviderID string

const (
	ProviderTavily  ProviderID = "tavily"
	ProviderSearXNG ProviderID = "searxng"
	ProviderExa     ProviderID = "exa"
)

// DefaultHosts 未配置 base_url 时使用；SearXNG 必须自建
var DefaultHosts = map[ProviderID]string{
	ProviderTavily: "https://api.tavily.com",
	ProviderExa:    "https://api.exa.ai",
}

// ProviderConfig represents search provider configuration
type ProviderConfig struct {
	ID      ProviderID
	APIHost string
	APIKeys []string // 多个 key 轮换使用

	// SearXNG Basic Auth
	BasicAuthUsername string
	BasicAuthPassword string

	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64 // requests per second
}

// Validate validates the provider configuration
func (c *ProviderConfig) Validate() error {
	if c.ID == "" {
		return ErrInvalidProviderID
	}
	if c.APIHost == "" {
		return ErrInvalidAPIHost
	}

	switch c.ID {
	case ProviderSearXNG:
		if c.BasicAuthUsername != "" && c.BasicAuthPassword == "" {
			return ErrMissingBasicAuthPassword
		}
	default:
		if len(c.APIKeys) == 0 {
			return ErrMissingAPIKey
		}
	}
	return nil
}
