package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	hdata "github.com/AGIOS-UPDATED/midday-test/internal/history/data"
	historyservice "github.com/AGIOS-UPDATED/midday-test/internal/history/service"
	htypes "github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
	"github.com/AGIOS-UPDATED/midday-test/internal/session"
	sessionservice "github.com/AGIOS-UPDATED/midday-test/internal/session/service"
	websearchbiz "github.com/AGIOS-UPDATED/midday-test/internal/websearch/biz"
	websearchservice "github.com/AGIOS-UPDATED/midday-test/internal/websearch/service"
)

func newTestServer(t *testing.T, notice string, repo hbiz.ChatRepo) (*HTTPServer, *hbiz.HistoryUseCase) {
	t.Helper()
	log := logger.NewNop()

	cfg := &conf.Config{}
	cfg.Server.Port = 0
	cfg.Workbench.Sandbox = sandbox.ModeMemory

	history := hbiz.NewHistoryUseCase(repo, notice, log)
	manager := session.NewManager(cfg, session.Deps{History: history, Hub: sse.NewHub()}, log)
	t.Cleanup(manager.Close)

	srv := NewHTTPServer(cfg, log, Services{
		History:   historyservice.NewHistoryService(history, log),
		Sessions:  sessionservice.NewSessionService(manager, 0, log),
		WebSearch: websearchservice.NewWebSearchService(websearchbiz.NewSearchUseCase(cfg.WebSearch, log), log),
	}, HealthSources{History: history, Sessions: manager}, nil)
	return srv, history
}

func get(srv *HTTPServer, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "", hdata.NewMemoryRepo())

	w := get(srv, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Persistence.Available)
	assert.Empty(t, resp.Persistence.Notice)
	assert.Zero(t, resp.Sessions)
	assert.Empty(t, resp.Redis)
}

func TestHealthReportsPersistenceNotice(t *testing.T) {
	srv, _ := newTestServer(t, hdata.UnavailableNotice, hdata.NewMemoryRepo())

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(get(srv, "/health").Body.Bytes(), &resp))
	assert.Equal(t, "Chat persistence is unavailable", resp.Persistence.Notice)

	srv, _ = newTestServer(t, "", nil)
	require.NoError(t, json.Unmarshal(get(srv, "/health").Body.Bytes(), &resp))
	assert.False(t, resp.Persistence.Available)
}

func TestRoutesAreMounted(t *testing.T) {
	srv, history := newTestServer(t, "", hdata.NewMemoryRepo())
	_, err := history.CreateFromMessages(context.Background(), "Mounted", []htypes.Message{
		{ID: "m1", Role: htypes.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)

	w := get(srv, "/api/chats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Mounted")

	w = get(srv, "/api/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = get(srv, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
