package runtime

import (
	"fmt"
)

// ActionType 动作类型
type ActionType string

const (
	ActionFile  ActionType = "file"
	ActionShell ActionType = "shell"
)

// ActionData 解析出的一个动作。file 动作的 Content 是文件内容，shell 动作的 Content 是命令。
type ActionData struct {
	MessageID  string     `json:"messageId"`
	ArtifactID string     `json:"artifactId"`
	ActionID   string     `json:"actionId"`
	Type       ActionType `json:"type"`
	FilePath   string     `json:"filePath,omitempty"`
	Content    string     `json:"content"`
}

// Key (messageId, actionId) 唯一
func (a ActionData) Key() string {
	return a.MessageID + "/" + a.ActionID
}

// ArtifactData 一个 <boltArtifact> 块的属性
type ArtifactData struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	Title     string `json:"title"`
	Type      string `json:"type,omitempty"`
}

// EventType 解析事件类型
type EventType string

const (
	EventText          EventType = "text"
	EventArtifactOpen  EventType = "artifact-open"
	EventArtifactClose EventType = "artifact-close"
	EventActionOpen    EventType = "action-open"
	EventActionUpdate  EventType = "action-update"
	EventActionClose   EventType = "action-close"
)

// Event 解析器输出。Artifact 在 artifact-* 和 action-* 事件上都有值，Action 只在 action-* 上有值。
// action-update 的 Delta 是本次新增的原始内容，Action.Content 是到目前为止的完整内容。
type Event struct {
	Type      EventType     `json:"type"`
	MessageID string        `json:"messageId"`
	Text      string        `json:"text,omitempty"`
	Delta     string        `json:"delta,omitempty"`
	Artifact  *ArtifactData `json:"artifact,omitempty"`
	Action    *ActionData   `json:"action,omitempty"`
}

// ActionStatus 动作执行状态
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusRunning  ActionStatus = "running"
	StatusComplete ActionStatus = "complete"
	StatusFailed   ActionStatus = "failed"
)

// ActionState 动作及其执行状态
type ActionState struct {
	ActionData
	Status ActionStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// ActionAlert 沙箱失败时上报给前端的提示，不会作为错误返回给调用方
type ActionAlert struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	MessageID   string `json:"messageId"`
	ActionID    string `json:"actionId"`
}

// DuplicateActionError 同一个 (messageId, actionId) 以不同类型重复注册
type DuplicateActionError struct {
	MessageID string
	ActionID  string
	Existing  ActionType
	Got       ActionType
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action %s/%s already registered as %s, got %s", e.MessageID, e.ActionID, e.Existing, e.Got)
}
