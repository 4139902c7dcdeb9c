package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/redis"
)

// RedisRepo 用两个 hash 保存对话：chats(id -> JSON) 和 chat_urls(urlId -> id)
type RedisRepo struct {
	client *redis.Client
}

// NewRedisRepo creates a Redis-backed repository
func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) chatsKey() string { return r.client.Key("chats") }
func (r *RedisRepo) urlsKey() string  { return r.client.Key("chat_urls") }

func (r *RedisRepo) Get(ctx context.Context, id string) (*types.ChatHistoryItem, error) {
	item, err := r.getByID(ctx, id)
	if err == nil || !redis.IsNil(err) {
		return item, err
	}

	chatID, err := r.client.HGet(ctx, r.urlsKey(), id).Result()
	if redis.IsNil(err) {
		return nil, apperrors.New(apperrors.ErrChatNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve url id: %w", err)
	}

	item, err = r.getByID(ctx, chatID)
	if redis.IsNil(err) {
		return nil, apperrors.New(apperrors.ErrChatNotFound)
	}
	return item, err
}

func (r *RedisRepo) getByID(ctx context.Context, id string) (*types.ChatHistoryItem, error) {
	raw, err := r.client.HGet(ctx, r.chatsKey(), id).Result()
	if err != nil {
		if redis.IsNil(err) {
			return nil, err
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return decodeItem(raw)
}

func (r *RedisRepo) Set(ctx context.Context, item *types.ChatHistoryItem) error {
	stored := *item
	stored.Messages = nonNilMessages(item.Messages)
	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, r.chatsKey(), item.ID, raw)
		if item.URLID != "" {
			pipe.HSet(ctx, r.urlsKey(), item.URLID, item.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set chat: %w", err)
	}
	return nil
}

func (r *RedisRepo) List(ctx context.Context) ([]*types.ChatHistoryItem, error) {
	values, err := r.client.HVals(ctx, r.chatsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	items := make([]*types.ChatHistoryItem, 0, len(values))
	for _, raw := range values {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	item, err := r.getByID(ctx, id)
	if redis.IsNil(err) {
		return apperrors.New(apperrors.ErrChatNotFound)
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, r.chatsKey(), item.ID)
		if item.URLID != "" {
			pipe.HDel(ctx, r.urlsKey(), item.URLID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func (r *RedisRepo) NextID(ctx context.Context) (string, error) {
	ids, err := r.client.HKeys(ctx, r.chatsKey()).Result()
	if err != nil {
		return "", fmt.Errorf("next chat id: %w", err)
	}
	var highest int64
	for _, id := range ids {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.FormatInt(highest+1, 10), nil
}

func (r *RedisRepo) URLIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.HKeys(ctx, r.urlsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list url ids: %w", err)
	}
	return ids, nil
}

// Close 连接由创建方负责关闭
func (r *RedisRepo) Close() error { return nil }

func decodeItem(raw string) (*types.ChatHistoryItem, error) {
	var item types.ChatHistoryItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	if item.Messages == nil {
		item.Messages = []types.Message{}
	}
	return &item, nil
}
