package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

// Manager 进程级的供应商注册表
type Manager struct {
	providers        []*Provider
	byName           map[string]*Provider
	defaultName      string
	defaultMaxTokens int
	logger           *logger.Logger

	// 供应商列表与默认供应商只计算一次，进程生命周期内不再失效
	infoOnce    sync.Once
	infos       []types.ProviderInfo
	defaultInfo types.ProviderInfo
}

// NewManager 按配置构建注册表；未配置供应商时使用 DefaultProviders
func NewManager(cfg *conf.LLMConfig, httpClient *http.Client, log *logger.Logger) (*Manager, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	pcs := cfg.Providers
	if len(pcs) == 0 {
		pcs = DefaultProviders()
	}

	m := &Manager{
		byName:           make(map[string]*Provider, len(pcs)),
		defaultName:      cfg.DefaultProvider,
		defaultMaxTokens: cfg.MaxTokens,
		logger:           log.Named("llm-manager"),
	}
	if m.defaultMaxTokens <= 0 {
		m.defaultMaxTokens = 8000
	}

	for _, pc := range pcs {
		if pc.Name == "" {
			return nil, fmt.Errorf("provider without name in configuration")
		}
		if _, dup := m.byName[pc.Name]; dup {
			return nil, fmt.Errorf("provider %s configured twice", pc.Name)
		}

		p := &Provider{
			Name:          pc.Name,
			Kind:          pc.Kind,
			BaseURL:       pc.BaseURL,
			APIKey:        pc.APIKey,
			APIKeyEnv:     pc.APIKeyEnv,
			GetAPIKeyLink: pc.GetAPIKeyLink,
			DynamicModels: pc.DynamicModels,
		}
		for _, mc := range pc.Models {
			label := mc.Label
			if label == "" {
				label = mc.Name
			}
			p.StaticModels = append(p.StaticModels, types.ModelInfo{
				Name: mc.Name, Label: label, Provider: pc.Name, MaxTokenAllowed: mc.MaxTokenAllowed,
			})
		}

		switch pc.Kind {
		case KindAnthropic:
			p.generator = &anthropicGenerator{provider: pc.Name, httpClient: httpClient}
		case KindOpenAI, "":
			p.Kind = KindOpenAI
			g := &openAIGenerator{provider: pc.Name, httpClient: httpClient}
			p.generator = g
			if pc.DynamicModels {
				p.lister = g
			}
		default:
			return nil, fmt.Errorf("provider %s: unsupported kind %q", pc.Name, pc.Kind)
		}

		m.providers = append(m.providers, p)
		m.byName[p.Name] = p
	}

	if _, ok := m.byName[m.defaultName]; !ok {
		m.defaultName = m.providers[0].Name
	}

	m.logger.Info("llm providers registered",
		zap.Int("count", len(m.providers)),
		zap.String("default", m.defaultName),
	)
	return m, nil
}

// Provider 按名称查找
func (m *Manager) Provider(name string) (*Provider, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// Default 默认供应商
func (m *Manager) Default() *Provider {
	return m.byName[m.defaultName]
}

// Infos 供应商列表和默认供应商（缓存）
func (m *Manager) Infos() ([]types.ProviderInfo, types.ProviderInfo) {
	m.infoOnce.Do(func() {
		for _, p := range m.providers {
			m.infos = append(m.infos, p.Info())
		}
		m.defaultInfo = m.Default().Info()
	})
	return m.infos, m.defaultInfo
}

// DefaultMaxTokens 模型未声明上限时使用
func (m *Manager) DefaultMaxTokens() int {
	return m.defaultMaxTokens
}

// APIKey 解析顺序：请求携带 > 配置 > 环境变量
func (m *Manager) APIKey(p *Provider, creds Credentials) string {
	if k := creds.APIKeys[p.Name]; k != "" {
		return k
	}
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// HasServerKey 服务端是否配置了 key（不看请求携带的 key）
func (m *Manager) HasServerKey(p *Provider) bool {
	return m.APIKey(p, Credentials{}) != ""
}

// BaseURL 请求携带的覆盖优先
func (m *Manager) BaseURL(p *Provider, creds Credentials) string {
	if s, ok := creds.Settings[p.Name]; ok && s.BaseURL != "" {
		return s.BaseURL
	}
	return p.BaseURL
}

// ModelList 全部供应商的模型：静态列表加上有 key 的动态列表
func (m *Manager) ModelList(ctx context.Context, creds Credentials) []types.ModelInfo {
	var all []types.ModelInfo
	for _, p := range m.providers {
		all = append(all, m.ModelListFor(ctx, p, creds)...)
	}
	return all
}

// ModelListFor 单个供应商的模型，动态拉取失败时只返回静态列表
func (m *Manager) ModelListFor(ctx context.Context, p *Provider, creds Credentials) []types.ModelInfo {
	models := append([]types.ModelInfo(nil), p.StaticModels...)
	if p.lister == nil {
		return models
	}
	key := m.APIKey(p, creds)
	if key == "" {
		return models
	}

	dynamic, err := p.lister.ListModels(ctx, key, m.BaseURL(p, creds))
	if err != nil {
		m.logger.Warn("failed to fetch dynamic models", zap.String("provider", p.Name), zap.Error(err))
		return models
	}

	seen := make(map[string]bool, len(models))
	for _, mi := range models {
		seen[mi.Name] = true
	}
	for _, mi := range dynamic {
		if !seen[mi.Name] {
			seen[mi.Name] = true
			models = append(models, mi)
		}
	}
	return models
}

// FindModel 在列表中按名称查找
func FindModel(list []types.ModelInfo, name string) (types.ModelInfo, bool) {
	for _, mi := range list {
		if mi.Name == name {
			return mi, true
		}
	}
	return types.ModelInfo{}, false
}

// MaxTokensFor 模型声明的上限，没有则用默认值
func (m *Manager) MaxTokensFor(model types.ModelInfo) int {
	if model.MaxTokenAllowed > 0 {
		return model.MaxTokenAllowed
	}
	return m.defaultMaxTokens
}

// Generate 非流式生成
func (m *Manager) Generate(ctx context.Context, p *Provider, creds Credentials, req types.GenerateRequest) (*types.GenerateResult, error) {
	req.APIKey = m.APIKey(p, creds)
	req.BaseURL = m.BaseURL(p, creds)
	if p.Kind == KindAnthropic {
		// SDK 自带默认地址，只有显式覆盖时才传
		req.BaseURL = ""
		if s, ok := creds.Settings[p.Name]; ok {
			req.BaseURL = s.BaseURL
		}
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = m.defaultMaxTokens
	}
	return p.generator.Generate(ctx, req)
}

// StreamOptions 组装一次流式请求的参数
func (m *Manager) StreamOptions(p *Provider, creds Credentials, model string, maxTokens int, messages []types.ChatMessage) stream.Options {
	if maxTokens <= 0 {
		maxTokens = m.defaultMaxTokens
	}
	return stream.Options{
		Provider:  p.Name,
		Endpoint:  ChatEndpoint(m.BaseURL(p, creds)),
		APIKey:    m.APIKey(p, creds),
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
}
