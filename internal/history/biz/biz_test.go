package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/data"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

var fixedNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func newUseCase(t *testing.T) (*HistoryUseCase, *data.MemoryRepo) {
	t.Helper()
	repo := data.NewMemoryRepo()
	uc := NewHistoryUseCase(repo, "", logger.NewNop())
	uc.now = func() time.Time { return fixedNow }
	return uc, repo
}

func msgs(ids ...string) []types.Message {
	out := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.Message{ID: id, Role: types.RoleUser, Content: "content " + id})
	}
	return out
}

func TestBinByDate(t *testing.T) {
	at := func(d time.Duration) *types.ChatHistoryItem {
		return &types.ChatHistoryItem{ID: d.String(), Timestamp: fixedNow.Add(-d)}
	}

	items := []*types.ChatHistoryItem{
		at(time.Hour),
		at(20 * time.Hour),
		at(72 * time.Hour),
		at(10 * 24 * time.Hour),
		at(60 * 24 * time.Hour),
	}

	groups := BinByDate(items, fixedNow)
	require.Len(t, groups, 5)
	labels := make([]string, 0, len(groups))
	for _, g := range groups {
		labels = append(labels, g.Label)
		assert.Len(t, g.Items, 1)
	}
	assert.Equal(t, []string{types.BinToday, types.BinYesterday, types.BinLastWeek, types.BinLastMonth, types.BinOlder}, labels)

	// 空分组被省略
	groups = BinByDate(items[:1], fixedNow)
	require.Len(t, groups, 1)
	assert.Equal(t, types.BinToday, groups[0].Label)

	assert.Empty(t, BinByDate(nil, fixedNow))
}

func TestLoadRewind(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "1", URLID: "app", Messages: msgs("a", "b", "c")}))

	item, err := uc.Load(ctx, "app", "")
	require.NoError(t, err)
	assert.Len(t, item.Messages, 3)

	item, err = uc.Load(ctx, "1", "b")
	require.NoError(t, err)
	assert.Equal(t, msgs("a", "b"), item.Messages)

	_, err = uc.Load(ctx, "1", "zzz")
	assert.True(t, apperrors.Is(err, apperrors.ErrChatNotFound))

	_, err = uc.Load(ctx, "missing", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrChatNotFound))

	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "2"}))
	_, err = uc.Load(ctx, "2", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrChatNotFound))
}

func TestURLIDCollisions(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)

	id, err := uc.URLID(ctx, "todo")
	require.NoError(t, err)
	assert.Equal(t, "todo", id)

	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "1", URLID: "todo"}))
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "2", URLID: "todo-2"}))

	id, err = uc.URLID(ctx, "todo")
	require.NoError(t, err)
	assert.Equal(t, "todo-3", id)
}

func TestDuplicateImportExport(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "1", URLID: "app", Description: "My App", Messages: msgs("a")}))
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "2", Messages: msgs("x")}))

	newURL, err := uc.Duplicate(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, "3", newURL)
	dup, err := uc.Get(ctx, newURL)
	require.NoError(t, err)
	assert.Equal(t, "My App (copy)", dup.Description)
	assert.Equal(t, msgs("a"), dup.Messages)
	assert.True(t, dup.Timestamp.Equal(fixedNow))

	newURL, err = uc.Duplicate(ctx, "2")
	require.NoError(t, err)
	dup, err = uc.Get(ctx, newURL)
	require.NoError(t, err)
	assert.Equal(t, "Chat (copy)", dup.Description)

	_, err = uc.Duplicate(ctx, "nope")
	assert.True(t, apperrors.Is(err, apperrors.ErrChatNotFound))

	_, err = uc.ImportChat(ctx, "imported", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	imported, err := uc.ImportChat(ctx, "imported", msgs("q", "r"))
	require.NoError(t, err)
	assert.Equal(t, "5", imported)

	export, err := uc.Export(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, "My App", export.Description)
	assert.Equal(t, "2024-06-15T10:30:00.000Z", export.ExportDate)
	assert.Equal(t, msgs("a"), export.Messages)
}

func TestListChatsAndDelete(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "1", Messages: msgs("a"), Timestamp: fixedNow.Add(-time.Hour)}))
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "2", URLID: "old", Messages: msgs("b"), Timestamp: fixedNow.AddDate(0, -2, 0)}))

	groups, err := uc.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, types.BinToday, groups[0].Label)
	assert.Equal(t, types.BinOlder, groups[1].Label)

	require.NoError(t, uc.Delete(ctx, "old"))
	items, err := uc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].ID)

	assert.True(t, apperrors.Is(uc.Delete(ctx, "old"), apperrors.ErrChatNotFound))
}

func TestDisabledPersistence(t *testing.T) {
	ctx := context.Background()
	uc := NewHistoryUseCase(nil, "", logger.NewNop())
	assert.False(t, uc.Available())

	h := NewChatHistory(uc, nil, nil)
	assert.NoError(t, h.StoreMessageHistory(ctx, msgs("a")))
	assert.Empty(t, h.ChatID())

	_, err := uc.List(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistence))
}

func TestStoreMessageHistoryWithoutArtifact(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)

	var navigated []string
	h := NewChatHistory(uc, nil, func(id string) { navigated = append(navigated, id) })

	require.NoError(t, h.StoreMessageHistory(ctx, nil))
	assert.Empty(t, h.ChatID())

	require.NoError(t, h.StoreMessageHistory(ctx, msgs("a", "b")))
	assert.Equal(t, "1", h.ChatID())
	assert.Equal(t, []string{"1"}, navigated)

	require.NoError(t, h.StoreMessageHistory(ctx, msgs("a", "b", "c", "d")))
	assert.Equal(t, "1", h.ChatID())
	assert.Equal(t, []string{"1"}, navigated)

	stored, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 4)
	assert.Empty(t, stored.URLID)
}

func TestStoreMessageHistoryDerivesURLIDOnce(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "1", URLID: "todo-app", Messages: msgs("z")}))

	artifactID, title := "", ""
	first := func() (string, string, bool) { return artifactID, title, artifactID != "" }

	var navigated []string
	h := NewChatHistory(uc, first, func(id string) { navigated = append(navigated, id) })

	require.NoError(t, h.StoreMessageHistory(ctx, msgs("a")))
	assert.Equal(t, "2", h.ChatID())
	assert.Equal(t, []string{"2"}, navigated)

	artifactID, title = "todo-app", "Todo App"
	require.NoError(t, h.StoreMessageHistory(ctx, msgs("a", "b")))
	assert.Equal(t, "todo-app-2", h.URLID())
	assert.Equal(t, "Todo App", h.Description())
	assert.Equal(t, []string{"2", "todo-app-2"}, navigated)

	// 标题变化不会再改写 urlId 或描述
	artifactID, title = "other", "Other"
	require.NoError(t, h.StoreMessageHistory(ctx, msgs("a", "b", "c")))
	assert.Equal(t, "todo-app-2", h.URLID())
	assert.Equal(t, "Todo App", h.Description())
	assert.Len(t, navigated, 2)

	stored, err := repo.Get(ctx, "todo-app-2")
	require.NoError(t, err)
	assert.Equal(t, "2", stored.ID)
	assert.Len(t, stored.Messages, 3)
}

// slowURLRepo 放大查询 urlId 和写入之间的窗口
type slowURLRepo struct {
	ChatRepo
}

func (r slowURLRepo) URLIDs(ctx context.Context) ([]string, error) {
	time.Sleep(20 * time.Millisecond)
	return r.ChatRepo.URLIDs(ctx)
}

func TestStoreMessageHistoryConcurrentURLIDs(t *testing.T) {
	ctx := context.Background()
	repo := data.NewMemoryRepo()
	uc := NewHistoryUseCase(slowURLRepo{ChatRepo: repo}, "", logger.NewNop())

	first := func() (string, string, bool) { return "todo-app", "Todo App", true }

	const sessions = 4
	trackers := make([]*ChatHistory, sessions)
	for i := range trackers {
		trackers[i] = NewChatHistory(uc, first, nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, sessions)
	for i, h := range trackers {
		wg.Add(1)
		go func(i int, h *ChatHistory) {
			defer wg.Done()
			errs[i] = h.StoreMessageHistory(ctx, msgs("a"))
		}(i, h)
	}
	wg.Wait()

	urlIDs := make(map[string]string, sessions)
	chatIDs := make(map[string]struct{}, sessions)
	for i, h := range trackers {
		require.NoError(t, errs[i])
		_, dup := urlIDs[h.URLID()]
		assert.False(t, dup, "urlId %s assigned twice", h.URLID())
		urlIDs[h.URLID()] = h.ChatID()
		chatIDs[h.ChatID()] = struct{}{}
	}
	assert.Len(t, chatIDs, sessions)
	assert.Contains(t, urlIDs, "todo-app")
	assert.Contains(t, urlIDs, "todo-app-2")
	assert.Contains(t, urlIDs, "todo-app-3")
	assert.Contains(t, urlIDs, "todo-app-4")

	for urlID, chatID := range urlIDs {
		stored, err := repo.Get(ctx, urlID)
		require.NoError(t, err)
		assert.Equal(t, chatID, stored.ID)
	}
}

func TestSaveWithURLIDKeepsExisting(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)

	item := &types.ChatHistoryItem{Messages: msgs("a")}
	require.NoError(t, uc.SaveWithURLID(ctx, item, "site"))
	assert.Equal(t, "1", item.ID)
	assert.Equal(t, "site", item.URLID)

	// 已有 urlId 时不再派生
	item.Messages = msgs("a", "b")
	require.NoError(t, uc.SaveWithURLID(ctx, item, "other"))
	assert.Equal(t, "1", item.ID)
	assert.Equal(t, "site", item.URLID)

	stored, err := repo.Get(ctx, "site")
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2)
}

func TestChatHistoryLoadThenStore(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase(t)
	require.NoError(t, repo.Set(ctx, &types.ChatHistoryItem{ID: "4", URLID: "site", Description: "Site", Messages: msgs("a", "b", "c")}))

	h := NewChatHistory(uc, nil, nil)
	loaded, err := h.Load(ctx, "site", "b")
	require.NoError(t, err)
	assert.Equal(t, msgs("a", "b"), loaded)
	assert.Equal(t, "4", h.ChatID())

	require.NoError(t, h.StoreMessageHistory(ctx, msgs("a", "b", "e")))
	stored, err := repo.Get(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, msgs("a", "b", "e"), stored.Messages)
	assert.Equal(t, "site", stored.URLID)

	export, err := h.ExportChat(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Site", export.Description)

	dupURL, err := h.DuplicateCurrentChat(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "5", dupURL)

	require.NoError(t, h.DeleteChat(ctx, "site"))
	assert.Empty(t, h.ChatID())
	assert.Empty(t, h.URLID())
}
