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

// EnhanceRequest 提示词优化请求
type EnhanceRequest struct {
	Message  string
	Model    string
	Provider string
}

// EnhancerUseCase 把用户的提示词改写得更具体
type EnhancerUseCase struct {
	manager *provider.Manager
	streams *stream.Client
	logger  *logger.Logger
}

// NewEnhancerUseCase creates a new enhancer use case
func NewEnhancerUseCase(manager *provider.Manager, streams *stream.Client, log *logger.Logger) *EnhancerUseCase {
	return &EnhancerUseCase{
		manager: manager,
		streams: streams,
		logger:  log.Named("api.enhancer"),
	}
}

// Enhance 校验顺序 model → provider；返回的流即优化后的提示词文本
func (uc *EnhancerUseCase) Enhance(ctx context.Context, creds provider.Credentials, req EnhanceRequest) (io.ReadCloser, error) {
	if req.Model == "" {
		return nil, apperrors.NewValidationError("Invalid or missing model")
	}
	if req.Provider == "" {
		return nil, apperrors.NewValidationError("Invalid or missing provider")
	}
	p, err := resolveProvider(uc.manager, req.Provider)
	if err != nil {
		return nil, err
	}

	content := EnhancerPrompt(req.Model, req.Provider, req.Message)
	opts := uc.manager.StreamOptions(p, creds, req.Model, 0, []types.ChatMessage{
		{Role: types.RoleUser, Content: content},
	})
	ts, err := uc.streams.Open(ctx, opts)
	if err != nil {
		uc.logger.Error("failed to enhance prompt", zap.String("provider", p.Name), zap.Error(err))
		return nil, classifyProviderError(err)
	}
	return ts, nil
}
