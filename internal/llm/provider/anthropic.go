package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
)

// anthropicGenerator 基于官方 SDK 的 Messages API
type anthropicGenerator struct {
	provider   string
	httpClient *http.Client
}

func (g *anthropicGenerator) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error) {
	if req.APIKey == "" {
		return nil, types.MissingAPIKey(g.provider)
	}

	opts := []option.RequestOption{option.WithAPIKey(req.APIKey)}
	if req.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(req.BaseURL))
	}
	if g.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(g.httpClient))
	}
	client := anthropic.NewClient(opts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == types.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			text := gjson.Get(apiErr.RawJSON(), "error.message").String()
			if text == "" {
				text = "Failed to generate text"
			}
			return nil, types.NewProviderError(g.provider, apiErr.StatusCode, text, err)
		}
		return nil, types.NewProviderError(g.provider, 0, "Failed to generate text", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &types.GenerateResult{
		Text:         text,
		FinishReason: string(msg.StopReason),
		Usage:        types.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		Model:        string(msg.Model),
		Provider:     g.provider,
	}, nil
}
