package types

// ModelInfo 单个模型的描述
type ModelInfo struct {
	Name            string `json:"name"`
	Label           string `json:"label"`
	Provider        string `json:"provider"`
	MaxTokenAllowed int    `json:"maxTokenAllowed"`
}

// ProviderInfo 对外暴露的供应商描述
type ProviderInfo struct {
	Name              string      `json:"name"`
	StaticModels      []ModelInfo `json:"staticModels"`
	GetAPIKeyLink     string      `json:"getApiKeyLink,omitempty"`
	LabelForGetAPIKey string      `json:"labelForGetApiKey,omitempty"`
}

// ModelsResponse GET /api/models 的响应体
type ModelsResponse struct {
	ModelList       []ModelInfo    `json:"modelList"`
	Providers       []ProviderInfo `json:"providers"`
	DefaultProvider ProviderInfo   `json:"defaultProvider"`
}
