package biz

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

// fakeUpstream 按调用次序返回预设的流式片段
type fakeUpstream struct {
	mu       sync.Mutex
	segments [][]string // 每次调用的增量
	reasons  []string
	requests []map[string]any
}

func (f *fakeUpstream) handler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer server-key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	idx := len(f.requests)
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	if idx >= len(f.segments) {
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		return
	}
	for _, d := range f.segments[idx] {
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"`+d+`"}}]}`+"\n\n")
	}
	_, _ = io.WriteString(w, `data: {"choices":[{"delta":{},"finish_reason":"`+f.reasons[idx]+`"}]}`+"\n\n")
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
}

func (f *fakeUpstream) calls() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.requests...)
}

func setup(t *testing.T, up *fakeUpstream, maxSegments int) (*provider.Manager, *stream.Client, *conf.LLMConfig) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	t.Cleanup(srv.Close)

	cfg := &conf.LLMConfig{
		DefaultProvider:     "Local",
		MaxTokens:           1000,
		MaxResponseSegments: maxSegments,
		Providers: []conf.ProviderConfig{
			{
				Name:    "Local",
				Kind:    provider.KindOpenAI,
				BaseURL: srv.URL + "/v1",
				APIKey:  "server-key",
				Models:  []conf.ModelConfig{{Name: "local-1", MaxTokenAllowed: 4096}},
			},
			{Name: "Keyless", Kind: provider.KindOpenAI, BaseURL: srv.URL + "/v1"},
		},
	}
	m, err := provider.NewManager(cfg, srv.Client(), logger.NewNop())
	require.NoError(t, err)
	return m, stream.NewClient(srv.Client(), logger.NewNop()), cfg
}

func readAll(t *testing.T, ss *stream.SwitchableStream) string {
	t.Helper()
	out, err := io.ReadAll(ss.Reader())
	require.NoError(t, err)
	return string(out)
}

func TestChatContinuesTruncatedResponse(t *testing.T) {
	up := &fakeUpstream{
		segments: [][]string{{"Hello ", "wor"}, {"ld!"}},
		reasons:  []string{"length", "stop"},
	}
	m, sc, cfg := setup(t, up, 2)
	uc := NewChatUseCase(m, sc, cfg, logger.NewNop())

	ss, err := uc.Stream(context.Background(), provider.Credentials{}, ChatRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world!", readAll(t, ss))
	assert.Equal(t, 2, ss.Switches())
	assert.Equal(t, stream.StateClosed, ss.State())

	calls := up.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "local-1", calls[0]["model"])
	assert.EqualValues(t, 4096, calls[0]["max_tokens"])

	msgs := calls[1]["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "Hello wor", msgs[2].(map[string]any)["content"])
	assert.Equal(t, ContinuePrompt, msgs[3].(map[string]any)["content"])
}

func TestChatStopsAtMaxSegments(t *testing.T) {
	up := &fakeUpstream{
		segments: [][]string{{"a"}, {"b"}, {"c"}},
		reasons:  []string{"length", "length", "length"},
	}
	m, sc, cfg := setup(t, up, 2)
	uc := NewChatUseCase(m, sc, cfg, logger.NewNop())

	ss, err := uc.Stream(context.Background(), provider.Credentials{}, ChatRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ab", readAll(t, ss))
	assert.Len(t, up.calls(), 2)
}

func TestChatCountsTokensAcrossSegments(t *testing.T) {
	up := &fakeUpstream{
		segments: [][]string{{"Hello ", "wor"}, {"ld!"}},
		reasons:  []string{"length", "stop"},
	}
	m, sc, cfg := setup(t, up, 2)
	uc := NewChatUseCase(m, sc, cfg, logger.NewNop())

	var tokens int
	ss, err := uc.Stream(context.Background(), provider.Credentials{}, ChatRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
		OnToken:  func() { tokens++ },
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", readAll(t, ss))
	assert.Equal(t, 3, tokens)
}

func TestChatMaxStreamFramesCutsSegment(t *testing.T) {
	up := &fakeUpstream{
		segments: [][]string{{"a", "b", "c"}},
		reasons:  []string{"length"},
	}
	m, sc, cfg := setup(t, up, 2)
	cfg.MaxStreamFrames = 2
	uc := NewChatUseCase(m, sc, cfg, logger.NewNop())

	ss, err := uc.Stream(context.Background(), provider.Credentials{}, ChatRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	// 截断发生在 finish_reason 之前，不会续写
	assert.Equal(t, "ab", readAll(t, ss))
	assert.Len(t, up.calls(), 1)
}

func TestChatMissingKeyIsAuthError(t *testing.T) {
	m, sc, cfg := setup(t, &fakeUpstream{}, 2)
	uc := NewChatUseCase(m, sc, cfg, logger.NewNop())

	_, err := uc.Stream(context.Background(), provider.Credentials{}, ChatRequest{Provider: "Keyless", Model: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrMissingAPIKey))
	assert.Equal(t, "Invalid or missing API key", apperrors.PublicMessage(err))

	_, err = uc.Stream(context.Background(), provider.Credentials{}, ChatRequest{Provider: "Nope"})
	assert.True(t, apperrors.Is(err, apperrors.ErrProviderNotFound))
}

func TestLLMCallValidate(t *testing.T) {
	m, sc, _ := setup(t, &fakeUpstream{}, 2)
	uc := NewLLMCallUseCase(m, sc, logger.NewNop())

	tests := []struct {
		name string
		req  LLMCallRequest
		msg  string
	}{
		{"missing model", LLMCallRequest{Provider: "Local"}, "Invalid or missing model"},
		{"missing provider", LLMCallRequest{Model: "local-1"}, "Invalid or missing provider"},
		{"model checked first", LLMCallRequest{}, "Invalid or missing model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := uc.Validate(tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
			assert.Equal(t, tt.msg, apperrors.PublicMessage(err))
		})
	}
	assert.NoError(t, uc.Validate(LLMCallRequest{Model: "local-1", Provider: "Local"}))
}

func TestLLMCallStream(t *testing.T) {
	up := &fakeUpstream{segments: [][]string{{"pong"}}, reasons: []string{"stop"}}
	m, sc, _ := setup(t, up, 2)
	uc := NewLLMCallUseCase(m, sc, logger.NewNop())

	r, err := uc.Stream(context.Background(), provider.Credentials{}, LLMCallRequest{
		System: "be brief", Message: "ping", Model: "local-1", Provider: "Local",
	})
	require.NoError(t, err)
	defer r.Close()

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(out))

	msgs := up.calls()[0]["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "be brief", msgs[0].(map[string]any)["content"])

	_, err = uc.Stream(context.Background(), provider.Credentials{}, LLMCallRequest{
		Message: "ping", Model: "m", Provider: "Keyless",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrMissingAPIKey))
}

func TestLLMCallGenerateNotFound(t *testing.T) {
	m, sc, _ := setup(t, &fakeUpstream{}, 2)
	uc := NewLLMCallUseCase(m, sc, logger.NewNop())

	_, err := uc.Generate(context.Background(), provider.Credentials{}, LLMCallRequest{
		Message: "x", Model: "unknown-model", Provider: "Local",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrModelNotFound))
	assert.Equal(t, "Model not found", apperrors.PublicMessage(err))

	_, err = uc.Generate(context.Background(), provider.Credentials{}, LLMCallRequest{
		Message: "x", Model: "local-1", Provider: "Ghost",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrProviderNotFound))
}

func TestEnhancer(t *testing.T) {
	up := &fakeUpstream{segments: [][]string{{"Build a todo app in Go"}}, reasons: []string{"stop"}}
	m, sc, _ := setup(t, up, 2)
	uc := NewEnhancerUseCase(m, sc, logger.NewNop())

	_, err := uc.Enhance(context.Background(), provider.Credentials{}, EnhanceRequest{Message: "todo", Provider: "Local"})
	assert.Equal(t, "Invalid or missing model", apperrors.PublicMessage(err))
	_, err = uc.Enhance(context.Background(), provider.Credentials{}, EnhanceRequest{Message: "todo", Model: "local-1"})
	assert.Equal(t, "Invalid or missing provider", apperrors.PublicMessage(err))

	r, err := uc.Enhance(context.Background(), provider.Credentials{}, EnhanceRequest{
		Message: "todo app", Model: "local-1", Provider: "Local",
	})
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Build a todo app in Go", string(out))

	msgs := up.calls()[0]["messages"].([]any)
	require.Len(t, msgs, 1)
	content := msgs[0].(map[string]any)["content"].(string)
	assert.True(t, strings.HasPrefix(content, "[Model: local-1]\n\n[Provider: Local]\n\n"))
	assert.Contains(t, content, "<original_prompt>\n  todo app\n</original_prompt>")
}
