package data

import (
	"context"

	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/database"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/redis"
)

// 存储后端
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendDisabled = "disabled"
)

// UnavailableNotice 启动时存储打不开的一次性提示
const UnavailableNotice = "Chat persistence is unavailable"

// Repo 与 biz.ChatRepo 方法集一致
type Repo interface {
	Get(ctx context.Context, id string) (*types.ChatHistoryItem, error)
	Set(ctx context.Context, item *types.ChatHistoryItem) error
	List(ctx context.Context) ([]*types.ChatHistoryItem, error)
	Delete(ctx context.Context, id string) error
	NextID(ctx context.Context) (string, error)
	URLIDs(ctx context.Context) ([]string, error)
	Close() error
}

var (
	_ Repo = (*MemoryRepo)(nil)
	_ Repo = (*SQLiteRepo)(nil)
	_ Repo = (*PostgresRepo)(nil)
	_ Repo = (*RedisRepo)(nil)
)

// Open 按配置打开存储后端
//
// 打开失败时退化为内存存储并返回 UnavailableNotice；backend 为 disabled 时
// 返回 nil，调用方据此跳过所有写操作。cleanup 关闭本函数打开的连接。
func Open(ctx context.Context, cfg *conf.Config, log *logger.Logger) (repo Repo, notice string, cleanup func()) {
	log = log.Named("history")
	cleanup = func() {}

	backend := cfg.Persistence.Backend
	if backend == "" {
		backend = BackendSQLite
	}

	var err error
	switch backend {
	case BackendDisabled:
		log.Info("chat persistence disabled")
		return nil, "", cleanup

	case BackendMemory:
		return NewMemoryRepo(), "", cleanup

	case BackendSQLite:
		var r *SQLiteRepo
		if r, err = NewSQLiteRepo(ctx, cfg.Persistence.SQLitePath); err == nil {
			log.Info("chat history opened", zap.String("backend", backend), zap.String("path", cfg.Persistence.SQLitePath))
			return r, "", func() { _ = r.Close() }
		}

	case BackendPostgres:
		var db *database.DB
		if db, err = database.New(&cfg.Database, log); err == nil {
			var r *PostgresRepo
			if r, err = NewPostgresRepo(db); err == nil {
				return r, "", func() { _ = db.Close() }
			}
			_ = db.Close()
		}

	case BackendRedis:
		var client *redis.Client
		if client, err = redis.New(&cfg.Redis, log); err == nil {
			return NewRedisRepo(client), "", func() { _ = client.Close() }
		}

	default:
		log.Warn("unknown persistence backend, using memory", zap.String("backend", backend))
		return NewMemoryRepo(), UnavailableNotice, cleanup
	}

	log.Error("chat persistence initialization failed, falling back to memory",
		zap.String("backend", backend),
		zap.Error(err),
	)
	return NewMemoryRepo(), UnavailableNotice, cleanup
}
