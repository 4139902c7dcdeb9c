package types

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage 发送给模型的一条消息
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GenerateRequest 非流式生成请求
type GenerateRequest struct {
	System    string
	Messages  []ChatMessage
	Model     string
	MaxTokens int
	APIKey    string
	BaseURL   string
}

// GenerateResult 非流式生成结果
type GenerateResult struct {
	Text         string `json:"text"`
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
}
