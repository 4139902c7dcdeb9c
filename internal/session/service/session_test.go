package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/data"
	llmbiz "github.com/AGIOS-UPDATED/midday-test/internal/llm/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
	"github.com/AGIOS-UPDATED/midday-test/internal/session"
)

const reply = `Here you go.<boltArtifact id="hello" title="Hello Site">` +
	`<boltAction type="file" filePath="index.html">hello</boltAction>` +
	`</boltArtifact>`

type fakeChat struct {
	err error
}

func (f *fakeChat) Stream(ctx context.Context, _ provider.Credentials, _ llmbiz.ChatRequest) (*stream.SwitchableStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	ss := stream.NewSwitchableStream(ctx)
	go func() {
		defer ss.Close()
		for _, part := range strings.SplitAfter(reply, ">") {
			ss.Write(part)
		}
	}()
	return ss, nil
}

func setup(t *testing.T, chat session.ChatStreamer) (*gin.Engine, *session.Manager) {
	return setupWith(t, chat, nil)
}

func setupWith(t *testing.T, chat session.ChatStreamer, mutate func(cfg *conf.Config)) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &conf.Config{}
	cfg.Workbench.Sandbox = sandbox.ModeMemory
	cfg.Workbench.SampleInterval = 5 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	m := session.NewManager(cfg, session.Deps{
		Chat:    chat,
		History: hbiz.NewHistoryUseCase(data.NewMemoryRepo(), "", logger.NewNop()),
		Hub:     sse.NewHub(),
	}, logger.NewNop())
	t.Cleanup(m.Close)

	r := gin.New()
	NewSessionService(m, 0, logger.NewNop()).RegisterRoutes(r.Group("/api"))
	return r, m
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, r *gin.Engine) session.Info {
	t.Helper()
	w := do(r, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var info session.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.NotEmpty(t, info.ID)
	return info
}

func TestSessionCRUD(t *testing.T) {
	r, _ := setup(t, &fakeChat{})
	info := createSession(t, r)
	assert.Equal(t, "/home/project", info.Workdir)

	w := do(r, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []session.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(r, http.MethodGet, "/api/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/api/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/api/sessions/"+info.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Session not found"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/sessions", `{"chatId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatAndWorkbenchFlow(t *testing.T) {
	r, m := setup(t, &fakeChat{})
	info := createSession(t, r)
	base := "/api/sessions/" + info.ID

	w := do(r, http.MethodPost, base+"/chat", `{"message":"make a hello page"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, reply, w.Body.String())

	sess, err := m.Get(info.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Workbench().Drain(context.Background()))

	w = do(r, http.MethodGet, base+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	assert.Len(t, msgs, 2)

	w = do(r, http.MethodGet, base+"/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"Hello Site"`)

	w = do(r, http.MethodGet, base+"/file?path=index.html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"hello\n"`)

	w = do(r, http.MethodGet, base+"/file?path=missing.txt", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 编辑、重置、保存
	w = do(r, http.MethodPut, base+"/documents/selected", `{"path":"index.html"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"filePath":"index.html"`)

	w = do(r, http.MethodPut, base+"/documents/current", `{"content":"changed\n"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unsaved":["index.html"]}`, w.Body.String())

	w = do(r, http.MethodPost, base+"/documents/current/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unsaved":[]}`, w.Body.String())

	do(r, http.MethodPut, base+"/documents/current", `{"content":"saved\n"}`)
	w = do(r, http.MethodPost, base+"/documents/save-all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unsaved":[]}`, w.Body.String())

	w = do(r, http.MethodGet, base+"/modifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"current":"saved\n"`)

	content, err := sess.Sandbox().ReadFile("index.html")
	require.NoError(t, err)
	assert.Equal(t, "saved\n", string(content))

	// zip 下载
	w = do(r, http.MethodGet, base+"/export/zip", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "hello_site_")
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "index.html", zr.File[0].Name)

	// 未配置对象存储
	w = do(r, http.MethodPost, base+"/export/upload", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodGet, base+"/chat/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"description": "Hello Site"`)

	w = do(r, http.MethodPost, base+"/chat/duplicate", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"urlId":"2"}`, w.Body.String())
}

func TestChatErrors(t *testing.T) {
	r, _ := setup(t, &fakeChat{err: apperrors.New(apperrors.ErrMissingAPIKey)})
	info := createSession(t, r)
	base := "/api/sessions/" + info.ID

	w := do(r, http.MethodPost, base+"/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid or missing API key"}`, w.Body.String())

	w = do(r, http.MethodPost, base+"/chat", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/sessions/unknown/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, base+"/export/github", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"repoName is required"}`, w.Body.String())
}

func TestSyncFilesConfinedToSyncRoot(t *testing.T) {
	root := t.TempDir()
	r, m := setupWith(t, &fakeChat{}, func(cfg *conf.Config) {
		cfg.Workbench.SyncRoot = root
	})
	info := createSession(t, r)
	base := "/api/sessions/" + info.ID

	w := do(r, http.MethodPost, base+"/chat", `{"message":"make a hello page"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess, err := m.Get(info.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Workbench().Drain(context.Background()))

	for _, dir := range []string{"/etc", "../escape", "a/../../escape"} {
		w = do(r, http.MethodPost, base+"/export/sync", `{"dir":"`+dir+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, dir)
	}
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "escape"))
	assert.True(t, os.IsNotExist(err))

	w = do(r, http.MethodPost, base+"/export/sync", `{"dir":"site"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"files":["index.html"]}`, w.Body.String())
	content, err := os.ReadFile(filepath.Join(root, "site", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
}

func TestSyncFilesDisabledWithoutSyncRoot(t *testing.T) {
	r, _ := setup(t, &fakeChat{})
	base := "/api/sessions/" + createSession(t, r).ID
	w := do(r, http.MethodPost, base+"/export/sync", `{"dir":"site"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
