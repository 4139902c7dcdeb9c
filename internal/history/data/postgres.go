package data

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm/clause"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/models"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/database"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
)

// PostgresRepo 基于 GORM 的 PostgreSQL 后端
type PostgresRepo struct {
	db *database.DB
}

// NewPostgresRepo 创建仓库并按配置自动迁移 chats 表
func NewPostgresRepo(db *database.DB) (*PostgresRepo, error) {
	if err := db.Migrate(models.AllModels()...); err != nil {
		return nil, err
	}
	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*types.ChatHistoryItem, error) {
	var model models.Chat
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if database.IsRecordNotFoundError(err) {
		err = r.db.WithContext(ctx).Where("url_id = ?", id).First(&model).Error
	}
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.New(apperrors.ErrChatNotFound)
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return toDomain(&model), nil
}

func (r *PostgresRepo) Set(ctx context.Context, item *types.ChatHistoryItem) error {
	model, err := toModel(item)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"url_id", "description", "messages", "timestamp"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]*types.ChatHistoryItem, error) {
	var list []models.Chat
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	items := make([]*types.ChatHistoryItem, 0, len(list))
	for i := range list {
		items = append(items, toDomain(&list[i]))
	}
	return items, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Chat{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete chat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrChatNotFound)
	}
	return nil
}

func (r *PostgresRepo) NextID(ctx context.Context) (string, error) {
	var highest int64
	err := r.db.WithContext(ctx).Model(&models.Chat{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&highest).Error
	if err != nil {
		return "", fmt.Errorf("failed to get next chat id: %w", err)
	}
	return strconv.FormatInt(highest+1, 10), nil
}

func (r *PostgresRepo) URLIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Chat{}).
		Where("url_id IS NOT NULL").
		Pluck("url_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list url ids: %w", err)
	}
	return ids, nil
}

// Close 连接由创建方负责关闭
func (r *PostgresRepo) Close() error { return nil }

func toModel(item *types.ChatHistoryItem) (*models.Chat, error) {
	seq, err := strconv.ParseInt(item.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chat id %q is not numeric: %w", item.ID, err)
	}
	var urlID *string
	if item.URLID != "" {
		u := item.URLID
		urlID = &u
	}
	return &models.Chat{
		ID:          item.ID,
		Seq:         seq,
		URLID:       urlID,
		Description: item.Description,
		Messages:    models.MessageList(item.Messages),
		Timestamp:   item.Timestamp,
	}, nil
}

func toDomain(m *models.Chat) *types.ChatHistoryItem {
	item := &types.ChatHistoryItem{
		ID:          m.ID,
		Description: m.Description,
		Messages:    []types.Message(m.Messages),
		Timestamp:   m.Timestamp,
	}
	if m.URLID != nil {
		item.URLID = *m.URLID
	}
	if item.Messages == nil {
		item.Messages = []types.Message{}
	}
	return item
}
