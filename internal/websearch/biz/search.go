package biz

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/websearch/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/websearch/types"
)

// SearchUseCase 网页搜索；provider 为空表示未配置
type SearchUseCase struct {
	provider   provider.Provider
	maxResults int
	logger     *logger.Logger
}

// NewSearchUseCase 按配置创建 provider，配置无效时记录警告并禁用搜索
func NewSearchUseCase(cfg conf.WebSearchConfig, log *logger.Logger) *SearchUseCase {
	uc := &SearchUseCase{maxResults: cfg.MaxResults, logger: log.Named("web-search")}
	if cfg.Provider == "" {
		return uc
	}

	p, err := provider.NewFactory().Create(&types.ProviderConfig{
		ID:                types.ProviderID(strings.ToLower(cfg.Provider)),
		APIHost:           strings.TrimRight(cfg.BaseURL, "/"),
		APIKeys:           cfg.APIKeys,
		BasicAuthUsername: cfg.BasicAuthUsername,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RateLimit:         cfg.RateLimit,
	})
	if err != nil {
		uc.logger.Warn("web search disabled", zap.String("provider", cfg.Provider), zap.Error(err))
		return uc
	}
	uc.provider = p
	return uc
}

// NewSearchUseCaseWithProvider 直接注入 provider
func NewSearchUseCaseWithProvider(p provider.Provider, maxResults int, log *logger.Logger) *SearchUseCase {
	return &SearchUseCase{provider: p, maxResults: maxResults, logger: log.Named("web-search")}
}

// Available 是否配置了可用的 provider
func (uc *SearchUseCase) Available() bool {
	return uc.provider != nil
}

// Search 查询为空返回校验错误，provider 失败统一包装为 ErrWebSearch
func (uc *SearchUseCase) Search(ctx context.Context, query string) (*types.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("Search query is required")
	}
	if uc.provider == nil {
		uc.logger.Warn("web search requested but no provider is configured")
		return nil, apperrors.New(apperrors.ErrWebSearch)
	}

	resp, err := uc.provider.Search(ctx, &types.SearchRequest{Query: query, MaxResults: uc.maxResults})
	if err != nil {
		uc.logger.Error("web search failed",
			zap.String("provider", string(uc.provider.GetID())),
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, apperrors.Wrap(err, apperrors.ErrWebSearch)
	}
	if resp.Results == nil {
		resp.Results = []types.SearchResult{}
	}
	uc.logger.Debug("web search done",
		zap.String("provider", string(resp.Provider)),
		zap.Int("results", len(resp.Results)),
		zap.Int64("took_ms", resp.Took),
	)
	return resp, nil
}
