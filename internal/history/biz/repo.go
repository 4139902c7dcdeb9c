package biz

import (
	"context"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
)

// ChatRepo 对话存储接口
//
// Get 先按 id 查找，再按 urlId 查找；找不到时返回 ErrChatNotFound。
type ChatRepo interface {
	Get(ctx context.Context, id string) (*types.ChatHistoryItem, error)
	Set(ctx context.Context, item *types.ChatHistoryItem) error
	List(ctx context.Context) ([]*types.ChatHistoryItem, error)
	Delete(ctx context.Context, id string) error
	// NextID 返回当前最大 id + 1，空库时为 "1"
	NextID(ctx context.Context) (string, error)
	URLIDs(ctx context.Context) ([]string, error)
	Close() error
}
