package session

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	htypes "github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	llmbiz "github.com/AGIOS-UPDATED/midday-test/internal/llm/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	llmtypes "github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/runtime"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
	"github.com/AGIOS-UPDATED/midday-test/internal/workbench"
)

// 会话级事件，工作台事件见 workbench.Event*
const (
	EventMessage  = "message"
	EventNavigate = "navigate"
	EventNotice   = "notice"
	EventClosed   = "closed"
)

// ChatStreamer 打开一轮对话的输出流
type ChatStreamer interface {
	Stream(ctx context.Context, creds provider.Credentials, req llmbiz.ChatRequest) (*stream.SwitchableStream, error)
}

// ChatTurn 一轮用户输入
type ChatTurn struct {
	Message     string              `json:"message"`
	Attachments []htypes.Attachment `json:"attachments,omitempty"`
	Model       string              `json:"model"`
	Provider    string              `json:"provider"`
}

// Info 会话概要
type Info struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId,omitempty"`
	URLID        string    `json:"urlId,omitempty"`
	Description  string    `json:"description,omitempty"`
	Workdir      string    `json:"workdir"`
	MessageCount int       `json:"messageCount"`
	Tokens       int64     `json:"streamedTokens"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
}

// Session 一段对话及其独占的沙箱、工作台、解析器和记录状态
type Session struct {
	ID        string
	CreatedAt time.Time

	sb        sandbox.Sandbox
	workbench *workbench.Store
	parser    *runtime.Parser
	history   *hbiz.ChatHistory
	chat      ChatStreamer
	notifier  *hubNotifier
	cancel    context.CancelFunc
	logger    *logger.Logger

	// 同一会话的对话轮次串行执行
	turnMu sync.Mutex

	// 累计收到的上游增量数
	tokens atomic.Int64

	mu            sync.RWMutex
	messages      []htypes.Message
	lastActive    time.Time
	firstArtifact *runtime.ArtifactData
	closed        bool
}

// hubNotifier 把事件发布到会话对应的 SSE 资源
type hubNotifier struct {
	hub      *sse.Hub
	resource string
}

func (n *hubNotifier) Publish(eventType string, data any) {
	n.hub.Publish(n.resource, eventType, data)
}

// Resource SSE 订阅的资源名
func Resource(id string) string {
	return "session:" + id
}

// Workbench 会话的工作台
func (s *Session) Workbench() *workbench.Store { return s.workbench }

// History 会话的对话记录状态
func (s *Session) History() *hbiz.ChatHistory { return s.history }

// Sandbox 会话的沙箱
func (s *Session) Sandbox() sandbox.Sandbox { return s.sb }

// Messages 当前消息的副本
func (s *Session) Messages() []htypes.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]htypes.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Info 会话概要
func (s *Session) Info() Info {
	s.mu.RLock()
	count, last := len(s.messages), s.lastActive
	s.mu.RUnlock()
	return Info{
		ID:           s.ID,
		ChatID:       s.history.ChatID(),
		URLID:        s.history.URLID(),
		Description:  s.history.Description(),
		Workdir:      s.sb.Workdir(),
		MessageCount: count,
		Tokens:       s.tokens.Load(),
		CreatedAt:    s.CreatedAt,
		LastActive:   last,
	}
}

// Publish 向会话的订阅者发送事件
func (s *Session) Publish(eventType string, data any) {
	s.notifier.Publish(eventType, data)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// firstArtifactRef 工作台里第一个 artifact；还在队列中未创建时用解析到的第一个
func (s *Session) firstArtifactRef() (id, title string, ok bool) {
	if a, found := s.workbench.FirstArtifact(); found {
		return a.ID, a.Title, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.firstArtifact == nil {
		return "", "", false
	}
	return s.firstArtifact.ID, s.firstArtifact.Title, true
}

// handle 把解析事件交给工作台
func (s *Session) handle(events []runtime.Event) {
	if len(events) == 0 {
		return
	}
	for _, e := range events {
		if e.Type == runtime.EventArtifactOpen && e.Artifact != nil {
			s.mu.Lock()
			if s.firstArtifact == nil {
				art := *e.Artifact
				s.firstArtifact = &art
			}
			s.mu.Unlock()
		}
	}
	s.workbench.HandleEvents(events)
}

// restore 重放已保存的消息：重建 artifact 和文件，不再弹出这些消息的提示
func (s *Session) restore(messages []htypes.Message) {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	s.workbench.SetReloadedMessages(ids)

	for _, m := range messages {
		if m.Role != htypes.RoleAssistant {
			continue
		}
		s.handle(s.parser.ParseAll(m.ID, m.Content))
	}

	s.mu.Lock()
	s.messages = append([]htypes.Message(nil), messages...)
	s.mu.Unlock()
	s.workbench.SetDescription(s.history.Description())
}

// Chat 执行一轮对话：输出边写给 w 边解析，动作进入工作台队列，
// 消息完成后写入对话记录。第一段上游打开失败时直接返回错误。
func (s *Session) Chat(ctx context.Context, creds provider.Credentials, turn ChatTurn, w io.Writer) (*htypes.Message, error) {
	if strings.TrimSpace(turn.Message) == "" {
		return nil, apperrors.NewValidationError("message is required")
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.isClosed() {
		return nil, apperrors.New(apperrors.ErrSessionGone)
	}
	s.touch()

	user := htypes.Message{
		ID:          newID(),
		Role:        htypes.RoleUser,
		Content:     turn.Message,
		Attachments: turn.Attachments,
	}
	conversation := append(s.Messages(), user)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ss, err := s.chat.Stream(streamCtx, creds, llmbiz.ChatRequest{
		Messages: toChatMessages(conversation),
		Model:    turn.Model,
		Provider: turn.Provider,
		Workdir:  s.sb.Workdir(),
		OnToken:  func() { s.tokens.Add(1) },
	})
	if err != nil {
		return nil, err
	}

	s.appendMessage(user)
	s.Publish(EventMessage, user)

	assistantID := newID()
	flusher, _ := w.(http.Flusher)
	writable := w != nil

	var content strings.Builder
	for chunk := range ss.Chunks() {
		content.Write(chunk)
		if writable {
			if _, err := w.Write(chunk); err != nil {
				s.logger.Warn("chat client went away", zap.Error(err))
				writable = false
			} else if flusher != nil {
				flusher.Flush()
			}
		}
		s.handle(s.parser.Parse(assistantID, string(chunk)))
	}
	s.handle(s.parser.Finish(assistantID))

	if err := ss.Err(); err != nil {
		s.logger.Warn("chat stream ended with error", zap.String("message_id", assistantID), zap.Error(err))
	}

	assistant := htypes.Message{ID: assistantID, Role: htypes.RoleAssistant, Content: content.String()}
	if assistant.Content != "" {
		s.appendMessage(assistant)
		s.Publish(EventMessage, assistant)
	}

	// 客户端断开也要保存已经收到的内容
	if err := s.history.StoreMessageHistory(context.WithoutCancel(ctx), s.Messages()); err != nil {
		s.logger.Error("failed to store chat history", zap.Error(err))
		s.Publish(EventNotice, apperrors.PublicMessage(err))
	}
	s.workbench.SetDescription(s.history.Description())
	s.touch()

	return &assistant, nil
}

func (s *Session) appendMessage(m htypes.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// close 取消进行中的动作，停止工作台并断开订阅者；可重复调用
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.workbench.Close()
	s.Publish(EventClosed, map[string]string{"id": s.ID})
	s.notifier.hub.CloseResource(s.notifier.resource)
	s.logger.Info("session closed")
}

func toChatMessages(messages []htypes.Message) []llmtypes.ChatMessage {
	out := make([]llmtypes.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, llmtypes.ChatMessage{Role: llmtypes.Role(m.Role), Content: m.Content})
	}
	return out
}
