package biz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

const exportDateLayout = "2006-01-02T15:04:05.000Z"

// HistoryUseCase 对话记录的业务逻辑，进程内共享
//
// repo 为 nil 表示持久化已关闭，此时写操作静默跳过，读操作返回 ErrPersistence。
type HistoryUseCase struct {
	repo   ChatRepo
	notice string
	log    *logger.Logger
	now    func() time.Time

	// 分配新 id 到写入完成之间互斥，避免两个会话拿到同一个 id
	allocMu sync.Mutex
}

// NewHistoryUseCase notice 非空时表示启动时存储不可用，已退化为内存模式
func NewHistoryUseCase(repo ChatRepo, notice string, log *logger.Logger) *HistoryUseCase {
	if log == nil {
		log = logger.L()
	}
	return &HistoryUseCase{
		repo:   repo,
		notice: notice,
		log:    log.Named("history"),
		now:    time.Now,
	}
}

// Available 是否有可用的存储
func (uc *HistoryUseCase) Available() bool {
	return uc.repo != nil
}

// Notice 启动时的一次性提示，没有则为空
func (uc *HistoryUseCase) Notice() string {
	return uc.notice
}

func (uc *HistoryUseCase) requireRepo() error {
	if uc.repo == nil {
		return apperrors.New(apperrors.ErrPersistence)
	}
	return nil
}

// Get 按 id 或 urlId 取对话
func (uc *HistoryUseCase) Get(ctx context.Context, id string) (*types.ChatHistoryItem, error) {
	if err := uc.requireRepo(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.NewValidationError("chat id is required")
	}
	item, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, uc.wrap(err, "get chat")
	}
	return item, nil
}

// Load 读取对话消息；rewindTo 非空时只保留到该消息（含）为止
func (uc *HistoryUseCase) Load(ctx context.Context, id, rewindTo string) (*types.ChatHistoryItem, error) {
	item, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(item.Messages) == 0 {
		return nil, apperrors.New(apperrors.ErrChatNotFound)
	}

	if rewindTo != "" {
		idx := -1
		for i, m := range item.Messages {
			if m.ID == rewindTo {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, apperrors.Newf(apperrors.ErrChatNotFound, "message %s not found in chat %s", rewindTo, item.ID)
		}
		item.Messages = item.Messages[:idx+1]
	}
	return item, nil
}

// List 全部对话，按时间倒序
func (uc *HistoryUseCase) List(ctx context.Context) ([]*types.ChatHistoryItem, error) {
	if err := uc.requireRepo(); err != nil {
		return nil, err
	}
	items, err := uc.repo.List(ctx)
	if err != nil {
		return nil, uc.wrap(err, "list chats")
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	return items, nil
}

// ListChats 按日期分组的对话列表
func (uc *HistoryUseCase) ListChats(ctx context.Context) ([]types.ChatGroup, error) {
	items, err := uc.List(ctx)
	if err != nil {
		return nil, err
	}
	return BinByDate(items, uc.now()), nil
}

// Save 写入对话并刷新时间戳
func (uc *HistoryUseCase) Save(ctx context.Context, item *types.ChatHistoryItem) error {
	if err := uc.requireRepo(); err != nil {
		return err
	}
	item.Timestamp = uc.now().UTC()
	if err := uc.repo.Set(ctx, item); err != nil {
		return uc.wrap(err, "save chat")
	}
	return nil
}

// NextID 下一个可用的对话 id
func (uc *HistoryUseCase) NextID(ctx context.Context) (string, error) {
	if err := uc.requireRepo(); err != nil {
		return "", err
	}
	id, err := uc.repo.NextID(ctx)
	if err != nil {
		return "", uc.wrap(err, "next chat id")
	}
	return id, nil
}

// URLID 在已有 urlId 中为 id 找一个不冲突的值：id, id-2, id-3 ...
//
// 只做查询，不占用结果；需要写入时用 SaveWithURLID。
func (uc *HistoryUseCase) URLID(ctx context.Context, id string) (string, error) {
	if err := uc.requireRepo(); err != nil {
		return "", err
	}
	uc.allocMu.Lock()
	defer uc.allocMu.Unlock()
	return uc.pickURLID(ctx, id)
}

// pickURLID 调用方持有 allocMu
func (uc *HistoryUseCase) pickURLID(ctx context.Context, id string) (string, error) {
	existing, err := uc.repo.URLIDs(ctx)
	if err != nil {
		return "", uc.wrap(err, "list url ids")
	}
	taken := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		taken[u] = struct{}{}
	}
	if _, ok := taken[id]; !ok {
		return id, nil
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", id, i)
		if _, ok := taken[candidate]; !ok {
			return candidate, nil
		}
	}
}

// CreateFromMessages 用给定消息新建对话，返回新对话的 urlId
func (uc *HistoryUseCase) CreateFromMessages(ctx context.Context, description string, messages []types.Message) (string, error) {
	if err := uc.requireRepo(); err != nil {
		return "", err
	}

	uc.allocMu.Lock()
	defer uc.allocMu.Unlock()

	id, err := uc.NextID(ctx)
	if err != nil {
		return "", err
	}
	urlID, err := uc.pickURLID(ctx, id)
	if err != nil {
		return "", err
	}

	item := &types.ChatHistoryItem{
		ID:          id,
		URLID:       urlID,
		Description: description,
		Messages:    messages,
	}
	if err := uc.Save(ctx, item); err != nil {
		return "", err
	}

	uc.log.Info("chat created", zap.String("id", id), zap.String("url_id", urlID), zap.Int("messages", len(messages)))
	return urlID, nil
}

// ImportChat 从导出文件内容新建对话
func (uc *HistoryUseCase) ImportChat(ctx context.Context, description string, messages []types.Message) (string, error) {
	if messages == nil {
		return "", apperrors.NewValidationError("Invalid chat file format")
	}
	return uc.CreateFromMessages(ctx, description, messages)
}

// Duplicate 复制一份对话，描述加上 " (copy)"
func (uc *HistoryUseCase) Duplicate(ctx context.Context, id string) (string, error) {
	item, err := uc.Get(ctx, id)
	if err != nil {
		return "", err
	}
	description := "Chat (copy)"
	if item.Description != "" {
		description = item.Description + " (copy)"
	}
	return uc.CreateFromMessages(ctx, description, item.Messages)
}

// Export 导出对话；exportDate 为 ISO-8601 UTC
func (uc *HistoryUseCase) Export(ctx context.Context, id string) (*types.ExportData, error) {
	item, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &types.ExportData{
		Messages:    item.Messages,
		Description: item.Description,
		ExportDate:  uc.now().UTC().Format(exportDateLayout),
	}, nil
}

// Delete 按 id 或 urlId 删除
func (uc *HistoryUseCase) Delete(ctx context.Context, id string) error {
	item, err := uc.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, item.ID); err != nil {
		return uc.wrap(err, "delete chat")
	}
	uc.log.Info("chat deleted", zap.String("id", item.ID))
	return nil
}

// wrap 保留已有的 AppError（如 ErrChatNotFound），其余归为持久化错误
func (uc *HistoryUseCase) wrap(err error, op string) error {
	if apperrors.ExtractCode(err) != apperrors.ErrInternal {
		return err
	}
	uc.log.Error("history storage failed", zap.String("op", op), zap.Error(err))
	return apperrors.NewPersistenceError(fmt.Errorf("%s: %w", op, err))
}

// SaveWithURLID 写入对话，并在同一把锁内补齐缺失的 id 和 urlId
//
// item.ID 为空时分配新 id；urlBase 非空且 item.URLID 为空时派生不冲突的 urlId。
// 选取和写入之间不会插入其他会话的分配。
func (uc *HistoryUseCase) SaveWithURLID(ctx context.Context, item *types.ChatHistoryItem, urlBase string) error {
	if err := uc.requireRepo(); err != nil {
		return err
	}

	uc.allocMu.Lock()
	defer uc.allocMu.Unlock()

	id, urlID := item.ID, item.URLID
	if id == "" {
		next, err := uc.NextID(ctx)
		if err != nil {
			return err
		}
		id = next
	}
	if urlID == "" && urlBase != "" {
		picked, err := uc.pickURLID(ctx, urlBase)
		if err != nil {
			return err
		}
		urlID = picked
	}

	item.ID, item.URLID = id, urlID
	if err := uc.Save(ctx, item); err != nil {
		return err
	}
	return nil
}
