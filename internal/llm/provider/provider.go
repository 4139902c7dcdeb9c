package provider

import (
	"context"
	"strings"

	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
)

const (
	KindOpenAI    = "openai"    // OpenAI 兼容协议
	KindAnthropic = "anthropic" // Anthropic Messages API
)

// Generator 非流式生成
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error)
}

// ModelLister 从上游拉取模型列表
type ModelLister interface {
	ListModels(ctx context.Context, apiKey, baseURL string) ([]types.ModelInfo, error)
}

// Provider 一个已配置的模型供应商
type Provider struct {
	Name          string
	Kind          string
	BaseURL       string
	APIKey        string
	APIKeyEnv     string
	GetAPIKeyLink string
	DynamicModels bool
	StaticModels  []types.ModelInfo

	generator Generator
	lister    ModelLister
}

// Info 对外描述
func (p *Provider) Info() types.ProviderInfo {
	info := types.ProviderInfo{
		Name:          p.Name,
		StaticModels:  append([]types.ModelInfo(nil), p.StaticModels...),
		GetAPIKeyLink: p.GetAPIKeyLink,
	}
	if p.GetAPIKeyLink != "" {
		info.LabelForGetAPIKey = "Get API Key"
	}
	return info
}

// ChatEndpoint 流式补全地址，所有供应商都走 OpenAI 兼容的 /chat/completions
func ChatEndpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/chat/completions"
}
