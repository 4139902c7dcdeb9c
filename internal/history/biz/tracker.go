package biz

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

// FirstArtifactFunc 返回当前会话第一个 artifact 的 id 和标题
type FirstArtifactFunc func() (id, title string, ok bool)

// NavigateFunc 对话地址变化时回调，只替换地址不重新加载
type NavigateFunc func(urlID string)

// ChatHistory 单个会话的对话记录状态
type ChatHistory struct {
	uc            *HistoryUseCase
	firstArtifact FirstArtifactFunc
	navigate      NavigateFunc
	log           *logger.Logger

	mu           sync.Mutex
	chatID       string
	urlID        string
	description  string
	initialCount int
}

// NewChatHistory firstArtifact 和 navigate 都可以为 nil
func NewChatHistory(uc *HistoryUseCase, firstArtifact FirstArtifactFunc, navigate NavigateFunc) *ChatHistory {
	if firstArtifact == nil {
		firstArtifact = func() (string, string, bool) { return "", "", false }
	}
	if navigate == nil {
		navigate = func(string) {}
	}
	return &ChatHistory{
		uc:            uc,
		firstArtifact: firstArtifact,
		navigate:      navigate,
		log:           uc.log,
	}
}

// ChatID 当前对话 id，尚未保存时为空
func (h *ChatHistory) ChatID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chatID
}

// URLID 当前对话的 urlId
func (h *ChatHistory) URLID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.urlID
}

// Description 当前对话描述
func (h *ChatHistory) Description() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.description
}

// Load 打开已有对话，之后的 StoreMessageHistory 写回同一条记录
func (h *ChatHistory) Load(ctx context.Context, id, rewindTo string) ([]types.Message, error) {
	item, err := h.uc.Load(ctx, id, rewindTo)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.chatID = item.ID
	h.urlID = item.URLID
	h.description = item.Description
	h.initialCount = len(item.Messages)
	h.mu.Unlock()

	return item.Messages, nil
}

// StoreMessageHistory 保存当前会话的全部消息
//
// 首次保存时分配 id；第一次出现 artifact 时派生 urlId 并通知地址变更；
// 没有描述时取 artifact 标题。
func (h *ChatHistory) StoreMessageHistory(ctx context.Context, messages []types.Message) error {
	if !h.uc.Available() || len(messages) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	artifactID, artifactTitle, hasArtifact := h.firstArtifact()

	var urlBase string
	if h.urlID == "" && hasArtifact && artifactID != "" {
		urlBase = artifactID
	}

	if h.description == "" && hasArtifact && artifactTitle != "" {
		h.description = artifactTitle
	}

	item := &types.ChatHistoryItem{
		ID:          h.chatID,
		URLID:       h.urlID,
		Description: h.description,
		Messages:    messages,
	}

	isNew := h.initialCount == 0 && h.chatID == ""
	if !isNew && urlBase == "" {
		if err := h.uc.Save(ctx, item); err != nil {
			return err
		}
		h.log.Debug("chat history stored", zap.String("id", h.chatID), zap.Int("messages", len(messages)))
		return nil
	}

	// 新对话或首次出现 artifact：id、urlId 的分配和写入在用例锁内完成
	if err := h.uc.SaveWithURLID(ctx, item, urlBase); err != nil {
		return err
	}
	h.chatID = item.ID
	switch {
	case urlBase != "":
		h.urlID = item.URLID
		h.navigate(item.URLID)
	case isNew:
		h.navigate(item.ID)
	}
	h.log.Debug("chat history stored",
		zap.String("id", item.ID),
		zap.String("url_id", item.URLID),
		zap.Int("messages", len(messages)),
	)
	return nil
}

// DuplicateCurrentChat 复制当前对话；listItemID 非空时复制列表里的那一条
func (h *ChatHistory) DuplicateCurrentChat(ctx context.Context, listItemID string) (string, error) {
	id := listItemID
	if id == "" {
		id = h.currentRef()
	}
	if id == "" {
		return "", nil
	}
	return h.uc.Duplicate(ctx, id)
}

// ExportChat 导出对话，id 为空时导出当前对话
func (h *ChatHistory) ExportChat(ctx context.Context, id string) (*types.ExportData, error) {
	if id == "" {
		id = h.currentRef()
	}
	return h.uc.Export(ctx, id)
}

// ImportChat 导入为新对话
func (h *ChatHistory) ImportChat(ctx context.Context, description string, messages []types.Message) (string, error) {
	return h.uc.ImportChat(ctx, description, messages)
}

// DeleteChat 删除对话；删除的是当前对话时重置状态
func (h *ChatHistory) DeleteChat(ctx context.Context, id string) error {
	item, err := h.uc.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := h.uc.Delete(ctx, item.ID); err != nil {
		return err
	}

	h.mu.Lock()
	if h.chatID == item.ID {
		h.chatID, h.urlID, h.description, h.initialCount = "", "", "", 0
	}
	h.mu.Unlock()
	return nil
}

func (h *ChatHistory) currentRef() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.urlID != "" {
		return h.urlID
	}
	return h.chatID
}
