package session

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/data"
	htypes "github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	llmbiz "github.com/AGIOS-UPDATED/midday-test/internal/llm/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	llmtypes "github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
)

const artifactReply = "Sure, here it is.\n" +
	`<boltArtifact id="todo-app" title="Todo App">` + "\n" +
	`<boltAction type="file" filePath="/home/project/src/index.js">console.log("hi");</boltAction>` + "\n" +
	`<boltAction type="shell">npm install</boltAction>` + "\n" +
	"</boltArtifact>\nDone."

// scriptedChat 按顺序返回预设回复，每次以 7 字节为一块写入
type scriptedChat struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []llmbiz.ChatRequest
}

func (f *scriptedChat) Stream(ctx context.Context, _ provider.Credentials, req llmbiz.ChatRequest) (*stream.SwitchableStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, req)
	reply := f.replies[0]
	f.replies = f.replies[1:]

	ss := stream.NewSwitchableStream(ctx)
	go func() {
		defer ss.Close()
		for i := 0; i < len(reply); i += 7 {
			end := i + 7
			if end > len(reply) {
				end = len(reply)
			}
			if req.OnToken != nil {
				req.OnToken()
			}
			ss.Write(reply[i:end])
		}
	}()
	return ss, nil
}

func newTestManager(t *testing.T, chat ChatStreamer) (*Manager, *data.MemoryRepo) {
	t.Helper()
	cfg := &conf.Config{}
	cfg.Workbench.Sandbox = sandbox.ModeMemory
	cfg.Workbench.SampleInterval = 5 * time.Millisecond
	cfg.Workbench.SessionTTL = time.Hour

	repo := data.NewMemoryRepo()
	m := NewManager(cfg, Deps{
		Chat:    chat,
		History: hbiz.NewHistoryUseCase(repo, "", logger.NewNop()),
		Hub:     sse.NewHub(),
	}, logger.NewNop())
	t.Cleanup(m.Close)
	return m, repo
}

func subscribe(m *Manager, id string) *sse.Client {
	c := &sse.Client{ID: "test", Channel: make(chan sse.Event, 1024), Resource: Resource(id)}
	m.Hub().Register(c)
	return c
}

func eventsOfType(c *sse.Client, eventType string) []sse.Event {
	var out []sse.Event
	for {
		select {
		case e, ok := <-c.Channel:
			if !ok {
				return out
			}
			if e.Type == eventType {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func TestChatRunsActionsAndStoresHistory(t *testing.T) {
	ctx := context.Background()
	chat := &scriptedChat{replies: []string{artifactReply}}
	m, repo := newTestManager(t, chat)

	s, err := m.Create(ctx, CreateOptions{})
	require.NoError(t, err)
	sub := subscribe(m, s.ID)

	var out bytes.Buffer
	reply, err := s.Chat(ctx, provider.Credentials{}, ChatTurn{Message: "build a todo app", Model: "m", Provider: "p"}, &out)
	require.NoError(t, err)
	assert.Equal(t, artifactReply, out.String())
	assert.Equal(t, artifactReply, reply.Content)

	require.Len(t, chat.calls, 1)
	assert.Equal(t, "/home/project", chat.calls[0].Workdir)
	assert.Equal(t, []llmtypes.ChatMessage{{Role: llmtypes.RoleUser, Content: "build a todo app"}}, chat.calls[0].Messages)

	require.NoError(t, s.Workbench().Drain(ctx))
	content, err := s.Sandbox().ReadFile("src/index.js")
	require.NoError(t, err)
	assert.Equal(t, "console.log(\"hi\");\n", string(content))
	assert.Equal(t, []string{"npm install"}, s.Sandbox().(*sandbox.Memory).Commands())

	info := s.Info()
	assert.Equal(t, "1", info.ChatID)
	assert.Equal(t, "todo-app", info.URLID)
	assert.Equal(t, "Todo App", info.Description)
	assert.Equal(t, 2, info.MessageCount)
	assert.Equal(t, int64((len(artifactReply)+6)/7), info.Tokens)

	stored, err := repo.Get(ctx, "todo-app")
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, htypes.RoleUser, stored.Messages[0].Role)
	assert.Equal(t, htypes.RoleAssistant, stored.Messages[1].Role)

	nav := eventsOfType(sub, EventNavigate)
	require.Len(t, nav, 1)
	assert.Equal(t, map[string]string{"urlId": "todo-app"}, nav[0].Data)
}

func TestChatSecondTurnKeepsConversation(t *testing.T) {
	ctx := context.Background()
	chat := &scriptedChat{replies: []string{"hello there", "second answer"}}
	m, repo := newTestManager(t, chat)

	s, err := m.Create(ctx, CreateOptions{})
	require.NoError(t, err)

	_, err = s.Chat(ctx, provider.Credentials{}, ChatTurn{Message: "hi"}, nil)
	require.NoError(t, err)
	_, err = s.Chat(ctx, provider.Credentials{}, ChatTurn{Message: "again"}, nil)
	require.NoError(t, err)

	require.Len(t, chat.calls, 2)
	assert.Len(t, chat.calls[1].Messages, 3)
	assert.Equal(t, "hello there", chat.calls[1].Messages[1].Content)

	stored, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 4)
	assert.Empty(t, stored.URLID)
}

func TestChatValidationAndProviderErrors(t *testing.T) {
	ctx := context.Background()
	chat := &scriptedChat{err: apperrors.New(apperrors.ErrMissingAPIKey)}
	m, repo := newTestManager(t, chat)

	s, err := m.Create(ctx, CreateOptions{})
	require.NoError(t, err)

	_, err = s.Chat(ctx, provider.Credentials{}, ChatTurn{Message: "   "}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = s.Chat(ctx, provider.Credentials{}, ChatTurn{Message: "hi"}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrMissingAPIKey))
	assert.Empty(t, s.Messages())

	items, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateRestoresSavedChat(t *testing.T) {
	ctx := context.Background()
	m, repo := newTestManager(t, &scriptedChat{})

	require.NoError(t, repo.Set(ctx, &htypes.ChatHistoryItem{
		ID:          "3",
		URLID:       "todo-app",
		Description: "Todo App",
		Messages: []htypes.Message{
			{ID: "u1", Role: htypes.RoleUser, Content: "build"},
			{ID: "a1", Role: htypes.RoleAssistant, Content: artifactReply},
			{ID: "u2", Role: htypes.RoleUser, Content: "more"},
		},
		Timestamp: time.Now(),
	}))

	s, err := m.Create(ctx, CreateOptions{ChatID: "todo-app", RewindTo: "a1"})
	require.NoError(t, err)
	require.Len(t, s.Messages(), 2)
	assert.Equal(t, "3", s.Info().ChatID)

	require.NoError(t, s.Workbench().Drain(ctx))
	content, err := s.Sandbox().ReadFile("src/index.js")
	require.NoError(t, err)
	assert.Equal(t, "console.log(\"hi\");\n", string(content))

	_, err = m.Create(ctx, CreateOptions{ChatID: "missing"})
	assert.True(t, apperrors.Is(err, apperrors.ErrChatNotFound))
	assert.Len(t, m.List(), 1)
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &scriptedChat{})

	a, err := m.Create(ctx, CreateOptions{})
	require.NoError(t, err)
	b, err := m.Create(ctx, CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, m.List(), 2)

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	sub := subscribe(m, b.ID)
	require.NoError(t, m.Delete(b.ID))
	assert.True(t, apperrors.Is(m.Delete(b.ID), apperrors.ErrSessionGone))
	_, err = m.Get(b.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionGone))
	assert.Len(t, eventsOfType(sub, EventClosed), 1)

	_, err = b.Chat(ctx, provider.Credentials{}, ChatTurn{Message: "hi"}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionGone))

	assert.Equal(t, 0, m.Reap(time.Now(), time.Hour))
	assert.Equal(t, 1, m.Reap(time.Now().Add(2*time.Hour), time.Hour))
	assert.Empty(t, m.List())
}
