package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/data"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

func setupRouter(t *testing.T) (*gin.Engine, *data.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := data.NewMemoryRepo()
	uc := biz.NewHistoryUseCase(repo, "", logger.NewNop())
	svc := NewHistoryService(uc, logger.NewNop())

	r := gin.New()
	svc.RegisterRoutes(r.Group("/api"))
	return r, repo
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, repo *data.MemoryRepo) {
	t.Helper()
	require.NoError(t, repo.Set(context.Background(), &types.ChatHistoryItem{
		ID:          "1",
		URLID:       "todo",
		Description: "Todo",
		Messages: []types.Message{
			{ID: "a", Role: types.RoleUser, Content: "build a todo app"},
			{ID: "b", Role: types.RoleAssistant, Content: "sure"},
		},
		Timestamp: time.Now(),
	}))
}

func TestListAndGetChat(t *testing.T) {
	r, repo := setupRouter(t)

	w := do(r, http.MethodGet, "/api/chats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	seed(t, repo)

	w = do(r, http.MethodGet, "/api/chats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var groups []types.ChatGroup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, types.BinToday, groups[0].Label)

	w = do(r, http.MethodGet, "/api/chats/todo?rewindTo=a", "")
	require.Equal(t, http.StatusOK, w.Code)
	var item types.ChatHistoryItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, "1", item.ID)
	assert.Len(t, item.Messages, 1)

	w = do(r, http.MethodGet, "/api/chats/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, w.Body.String())
}

func TestExportImportDuplicateDelete(t *testing.T) {
	r, repo := setupRouter(t)
	seed(t, repo)

	w := do(r, http.MethodGet, "/api/chats/1/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\"chat-")
	var export types.ExportData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
	assert.Equal(t, "Todo", export.Description)
	assert.Len(t, export.Messages, 2)
	assert.NotEmpty(t, export.ExportDate)

	w = do(r, http.MethodPost, "/api/chats/import", `{"description":"Imported","messages":[{"id":"x","role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"urlId":"2"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/chats/import", `{"description":"Imported"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Invalid chat file format"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/chats/import", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/chats/todo/duplicate", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"urlId":"3"}`, w.Body.String())

	dup, err := repo.Get(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "Todo (copy)", dup.Description)

	w = do(r, http.MethodDelete, "/api/chats/todo", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodDelete, "/api/chats/todo", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPersistenceDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewHistoryService(biz.NewHistoryUseCase(nil, "", logger.NewNop()), logger.NewNop())
	r := gin.New()
	svc.RegisterRoutes(r.Group("/api"))

	w := do(r, http.MethodGet, "/api/chats", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"Chat persistence is unavailable"}`, w.Body.String())
}
