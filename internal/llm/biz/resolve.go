package biz

import (
	"errors"

	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
)

// resolveProvider 空名称表示默认供应商
func resolveProvider(m *provider.Manager, name string) (*provider.Provider, error) {
	if name == "" {
		return m.Default(), nil
	}
	p, ok := m.Provider(name)
	if !ok {
		return nil, apperrors.New(apperrors.ErrProviderNotFound)
	}
	return p, nil
}

// resolveModel 空名称取供应商的第一个静态模型
func resolveModel(p *provider.Provider, name string) string {
	if name != "" {
		return name
	}
	if len(p.StaticModels) > 0 {
		return p.StaticModels[0].Name
	}
	return ""
}

// classifyProviderError 把上游错误映射成对外错误：包含 "API key" 的为 401，其余 500
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if types.IsAPIKeyError(err) {
		return apperrors.Wrap(err, apperrors.ErrMissingAPIKey)
	}
	return apperrors.Wrap(err, apperrors.ErrInternal)
}
