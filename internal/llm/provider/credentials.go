package provider

import (
	"encoding/json"
)

// ProviderSetting 客户端对单个供应商的覆盖设置（来自 providers cookie）
type ProviderSetting struct {
	Enabled *bool  `json:"enabled,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Credentials 一次请求携带的密钥和设置
type Credentials struct {
	APIKeys  map[string]string
	Settings map[string]ProviderSetting
}

// CredentialsFromCookies 解析 apiKeys / providers 两个 JSON cookie，格式错误时忽略
func CredentialsFromCookies(apiKeys, providers string) Credentials {
	var c Credentials
	if apiKeys != "" {
		_ = json.Unmarshal([]byte(apiKeys), &c.APIKeys)
	}
	if providers != "" {
		_ = json.Unmarshal([]byte(providers), &c.Settings)
	}
	return c
}
