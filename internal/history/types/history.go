package types

import "time"

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment 用户消息附带的文件
type Attachment struct {
	Name        string `json:"name" yaml:"name"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	URL         string `json:"url" yaml:"url"`
}

// Message 一条对话消息，完成后不再修改
type Message struct {
	ID          string       `json:"id" yaml:"id"`
	Role        Role         `json:"role" yaml:"role"`
	Content     string       `json:"content" yaml:"content"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// ChatHistoryItem 一段持久化的对话
//
// ID 是递增整数的字符串形式；URLID 由第一个 artifact 派生，只分配一次。
type ChatHistoryItem struct {
	ID          string    `json:"id" yaml:"id"`
	URLID       string    `json:"urlId,omitempty" yaml:"urlId,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Messages    []Message `json:"messages" yaml:"messages"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

// ExportData 导出文件的内容
type ExportData struct {
	Messages    []Message `json:"messages" yaml:"messages"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	ExportDate  string    `json:"exportDate" yaml:"exportDate"`
}

// ImportRequest 导入对话
type ImportRequest struct {
	Description string    `json:"description"`
	Messages    []Message `json:"messages"`
}

// ChatGroup 按日期分组后的一组对话
type ChatGroup struct {
	Label string             `json:"label"`
	Items []*ChatHistoryItem `json:"items"`
}

// 日期分组标签
const (
	BinToday     = "Today"
	BinYesterday = "Yesterday"
	BinLastWeek  = "Last 7 Days"
	BinLastMonth = "Last 30 Days"
	BinOlder     = "Older"
)
