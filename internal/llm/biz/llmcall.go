package biz

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

// LLMCallRequest 单轮调用：一条 system 加一条 user
type LLMCallRequest struct {
	System   string
	Message  string
	Model    string
	Provider string
}

// LLMCallUseCase 单轮调用，流式或一次性返回
type LLMCallUseCase struct {
	manager *provider.Manager
	streams *stream.Client
	logger  *logger.Logger
}

// NewLLMCallUseCase creates a new llm call use case
func NewLLMCallUseCase(manager *provider.Manager, streams *stream.Client, log *logger.Logger) *LLMCallUseCase {
	return &LLMCallUseCase{
		manager: manager,
		streams: streams,
		logger:  log.Named("api.llmcall"),
	}
}

// Validate model 先于 provider 校验
func (uc *LLMCallUseCase) Validate(req LLMCallRequest) error {
	if req.Model == "" {
		return apperrors.NewValidationError("Invalid or missing model")
	}
	if req.Provider == "" {
		return apperrors.NewValidationError("Invalid or missing provider")
	}
	return nil
}

func (uc *LLMCallUseCase) messages(req LLMCallRequest) []types.ChatMessage {
	var msgs []types.ChatMessage
	if req.System != "" {
		msgs = append(msgs, types.ChatMessage{Role: types.RoleSystem, Content: req.System})
	}
	return append(msgs, types.ChatMessage{Role: types.RoleUser, Content: req.Message})
}

// Stream 打开流式输出；连接阶段的错误直接返回，之后的错误以 "Error: ..." 文本出现在流里
func (uc *LLMCallUseCase) Stream(ctx context.Context, creds provider.Credentials, req LLMCallRequest) (io.ReadCloser, error) {
	if err := uc.Validate(req); err != nil {
		return nil, err
	}
	p, err := resolveProvider(uc.manager, req.Provider)
	if err != nil {
		return nil, err
	}

	opts := uc.manager.StreamOptions(p, creds, req.Model, 0, uc.messages(req))
	ts, err := uc.streams.Open(ctx, opts)
	if err != nil {
		uc.logger.Error("failed to stream llm call", zap.String("provider", p.Name), zap.Error(err))
		return nil, classifyProviderError(err)
	}
	return ts, nil
}

// Generate 一次性生成。模型不存在 404 Model not found，供应商不存在 404 Provider not found
func (uc *LLMCallUseCase) Generate(ctx context.Context, creds provider.Credentials, req LLMCallRequest) (*types.GenerateResult, error) {
	if err := uc.Validate(req); err != nil {
		return nil, err
	}

	model, ok := provider.FindModel(uc.manager.ModelList(ctx, creds), req.Model)
	if !ok {
		return nil, apperrors.New(apperrors.ErrModelNotFound)
	}
	p, ok := uc.manager.Provider(req.Provider)
	if !ok {
		return nil, apperrors.New(apperrors.ErrProviderNotFound)
	}

	uc.logger.Info("generating response",
		zap.String("provider", p.Name),
		zap.String("model", model.Name),
		zap.Int("prompt_tokens_estimate", provider.EstimateMessagesTokens(req.System, req.Message)),
	)

	result, err := uc.manager.Generate(ctx, p, creds, types.GenerateRequest{
		System:    req.System,
		Messages:  []types.ChatMessage{{Role: types.RoleUser, Content: req.Message}},
		Model:     model.Name,
		MaxTokens: uc.manager.MaxTokensFor(model),
	})
	if err != nil {
		uc.logger.Error("failed to generate response", zap.String("provider", p.Name), zap.Error(err))
		return nil, classifyProviderError(err)
	}

	uc.logger.Info("generated response", zap.String("finish_reason", result.FinishReason))
	return result, nil
}
