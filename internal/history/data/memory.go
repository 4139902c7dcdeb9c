package data

import (
	"context"
	"strconv"
	"sync"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
)

// MemoryRepo 进程内存储，持久化不可用时的退路，也用于测试
type MemoryRepo struct {
	mu    sync.RWMutex
	chats map[string]*types.ChatHistoryItem
}

// NewMemoryRepo creates an empty in-memory repository
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{chats: make(map[string]*types.ChatHistoryItem)}
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*types.ChatHistoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if item, ok := r.chats[id]; ok {
		return cloneItem(item), nil
	}
	for _, item := range r.chats {
		if item.URLID == id {
			return cloneItem(item), nil
		}
	}
	return nil, apperrors.New(apperrors.ErrChatNotFound)
}

func (r *MemoryRepo) Set(_ context.Context, item *types.ChatHistoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[item.ID] = cloneItem(item)
	return nil
}

func (r *MemoryRepo) List(_ context.Context) ([]*types.ChatHistoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*types.ChatHistoryItem, 0, len(r.chats))
	for _, item := range r.chats {
		items = append(items, cloneItem(item))
	}
	return items, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[id]; !ok {
		return apperrors.New(apperrors.ErrChatNotFound)
	}
	delete(r.chats, id)
	return nil
}

func (r *MemoryRepo) NextID(_ context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var highest int64
	for id := range r.chats {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.FormatInt(highest+1, 10), nil
}

func (r *MemoryRepo) URLIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.chats))
	for _, item := range r.chats {
		if item.URLID != "" {
			ids = append(ids, item.URLID)
		}
	}
	return ids, nil
}

func (r *MemoryRepo) Close() error { return nil }

func cloneItem(item *types.ChatHistoryItem) *types.ChatHistoryItem {
	out := *item
	out.Messages = make([]types.Message, len(item.Messages))
	copy(out.Messages, item.Messages)
	return &out
}
