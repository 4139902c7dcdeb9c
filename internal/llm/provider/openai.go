package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
)

const defaultDynamicMaxTokens = 8000

// openAIGenerator OpenAI 兼容供应商，基于 go-openai
type openAIGenerator struct {
	provider   string
	httpClient *http.Client
}

func (g *openAIGenerator) client(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if g.httpClient != nil {
		cfg.HTTPClient = g.httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

func (g *openAIGenerator) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error) {
	if req.APIKey == "" {
		return nil, types.MissingAPIKey(g.provider)
	}

	// 1. 转换为 OpenAI 请求格式
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	// 2. 调用接口
	resp, err := g.client(req.APIKey, req.BaseURL).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, g.convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewProviderError(g.provider, 0, "provider returned no choices", nil)
	}

	// 3. 转换响应
	return &types.GenerateResult{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:    resp.Model,
		Provider: g.provider,
	}, nil
}

func (g *openAIGenerator) ListModels(ctx context.Context, apiKey, baseURL string) ([]types.ModelInfo, error) {
	resp, err := g.client(apiKey, baseURL).ListModels(ctx)
	if err != nil {
		return nil, g.convertError(err)
	}
	models := make([]types.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, types.ModelInfo{
			Name:            m.ID,
			Label:           m.ID,
			Provider:        g.provider,
			MaxTokenAllowed: defaultDynamicMaxTokens,
		})
	}
	return models, nil
}

func (g *openAIGenerator) convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return types.NewProviderError(g.provider, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return types.NewProviderError(g.provider, reqErr.HTTPStatusCode, "Failed to generate text", err)
	}
	return types.NewProviderError(g.provider, 0, "Failed to generate text", err)
}
