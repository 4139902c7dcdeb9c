package provider

import "github.com/AGIOS-UPDATED/midday-test/internal/conf"

// DefaultProviders 未在配置中声明供应商时使用
func DefaultProviders() []conf.ProviderConfig {
	return []conf.ProviderConfig{
		{
			Name:          "Anthropic",
			Kind:          KindAnthropic,
			BaseURL:       "https://api.anthropic.com/v1/",
			APIKeyEnv:     "ANTHROPIC_API_KEY",
			GetAPIKeyLink: "https://console.anthropic.com/settings/keys",
			Models: []conf.ModelConfig{
				{Name: "claude-sonnet-4-20250514", Label: "Claude Sonnet 4", MaxTokenAllowed: 8000},
				{Name: "claude-3-5-haiku-latest", Label: "Claude 3.5 Haiku", MaxTokenAllowed: 8000},
			},
		},
		{
			Name:          "OpenAI",
			Kind:          KindOpenAI,
			BaseURL:       "https://api.openai.com/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			GetAPIKeyLink: "https://platform.openai.com/api-keys",
			DynamicModels: true,
			Models: []conf.ModelConfig{
				{Name: "gpt-4o", Label: "GPT-4o", MaxTokenAllowed: 8000},
				{Name: "gpt-4o-mini", Label: "GPT-4o Mini", MaxTokenAllowed: 8000},
			},
		},
		{
			Name:          "Groq",
			Kind:          KindOpenAI,
			BaseURL:       "https://api.groq.com/openai/v1",
			APIKeyEnv:     "GROQ_API_KEY",
			GetAPIKeyLink: "https://console.groq.com/keys",
			DynamicModels: true,
			Models: []conf.ModelConfig{
				{Name: "llama-3.3-70b-versatile", Label: "Llama 3.3 70B", MaxTokenAllowed: 8000},
			},
		},
		{
			Name:          "Deepseek",
			Kind:          KindOpenAI,
			BaseURL:       "https://api.deepseek.com/v1",
			APIKeyEnv:     "DEEPSEEK_API_KEY",
			GetAPIKeyLink: "https://platform.deepseek.com/apiKeys",
			Models: []conf.ModelConfig{
				{Name: "deepseek-chat", Label: "Deepseek-V3", MaxTokenAllowed: 8000},
				{Name: "deepseek-reasoner", Label: "Deepseek-R1", MaxTokenAllowed: 8000},
			},
		},
		{
			Name:          "OpenRouter",
			Kind:          KindOpenAI,
			BaseURL:       "https://openrouter.ai/api/v1",
			APIKeyEnv:     "OPEN_ROUTER_API_KEY",
			GetAPIKeyLink: "https://openrouter.ai/settings/keys",
			DynamicModels: true,
			Models: []conf.ModelConfig{
				{Name: "anthropic/claude-3.5-sonnet", Label: "Claude 3.5 Sonnet (OpenRouter)", MaxTokenAllowed: 8000},
			},
		},
	}
}
