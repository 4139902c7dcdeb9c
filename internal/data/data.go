package data

import (
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/minio"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/redis"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/workerpool"
)

// Data 进程级共享的基础设施；Redis 和 MinIO 是可选的，不可用时为 nil
type Data struct {
	Redis  *redis.Client
	MinIO  *minio.Client
	Pool   *workerpool.Pool
	Logger *logger.Logger
}

// NewData 初始化基础设施。只有协程池是必需的，其他组件失败时降级
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	log = log.Named("data")

	pool, err := workerpool.New(&config.WorkerPool, log)
	if err != nil {
		return nil, nil, err
	}

	d := &Data{Pool: pool, Logger: log}

	// 限流依赖 Redis
	if config.RateLimit.Enabled {
		if d.Redis, err = redis.New(&config.Redis, log); err != nil {
			log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
			d.Redis = nil
		}
	}

	if config.MinIO.Enabled() {
		if d.MinIO, err = minio.NewClient(&config.MinIO, log); err != nil {
			log.Warn("minio unavailable, zip upload disabled", zap.Error(err))
			d.MinIO = nil
		}
	}

	cleanup := func() {
		log.Info("cleaning up data resources")
		pool.Release()
		if d.Redis != nil {
			_ = d.Redis.Close()
		}
	}
	return d, cleanup, nil
}
