package injector

import (
	"context"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/data"
	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	hdata "github.com/AGIOS-UPDATED/midday-test/internal/history/data"
	llmbiz "github.com/AGIOS-UPDATED/midday-test/internal/llm/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/stream"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	pkgredis "github.com/AGIOS-UPDATED/midday-test/internal/pkg/redis"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/server"
	"github.com/AGIOS-UPDATED/midday-test/internal/session"
	sessionservice "github.com/AGIOS-UPDATED/midday-test/internal/session/service"
	websearchbiz "github.com/AGIOS-UPDATED/midday-test/internal/websearch/biz"
)

// Data layer helpers

func provideRedisClient(d *data.Data) *pkgredis.Client {
	return d.Redis
}

func provideHistoryUseCase(config *conf.Config, log *logger.Logger) (*hbiz.HistoryUseCase, func(), error) {
	repo, notice, cleanup := hdata.Open(context.Background(), config, log)
	var chatRepo hbiz.ChatRepo
	if repo != nil {
		chatRepo = repo
	}
	return hbiz.NewHistoryUseCase(chatRepo, notice, log), cleanup, nil
}

// LLM providers

func provideLLMConfig(config *conf.Config) *conf.LLMConfig {
	return &config.LLM
}

func provideProviderManager(cfg *conf.LLMConfig, log *logger.Logger) (*provider.Manager, error) {
	// 非流式请求使用 RequestTimeout
	return provider.NewManager(cfg, nil, log)
}

func provideStreamClient(log *logger.Logger) *stream.Client {
	// 流式请求的时长由 ctx 控制
	return stream.NewClient(nil, log.Named("stream-text"))
}

// Session providers

func provideSessionDeps(
	chat *llmbiz.ChatUseCase,
	history *hbiz.HistoryUseCase,
	hub *sse.Hub,
	d *data.Data,
) session.Deps {
	return session.Deps{
		Chat:    chat,
		History: history,
		Hub:     hub,
		MinIO:   d.MinIO,
		Pool:    d.Pool,
	}
}

func provideSessionManager(config *conf.Config, deps session.Deps, log *logger.Logger) *session.Manager {
	return session.NewManager(config, deps, log)
}

func provideSessionService(config *conf.Config, manager *session.Manager, log *logger.Logger) *sessionservice.SessionService {
	return sessionservice.NewSessionService(manager, config.Server.SSEHeartbeat, log)
}

// Web search providers

func provideSearchUseCase(config *conf.Config, log *logger.Logger) *websearchbiz.SearchUseCase {
	return websearchbiz.NewSearchUseCase(config.WebSearch, log)
}

// Server providers

func provideHealthSources(
	history *hbiz.HistoryUseCase,
	sessions *session.Manager,
	redisClient *pkgredis.Client,
) server.HealthSources {
	return server.HealthSources{History: history, Sessions: sessions, Redis: redisClient}
}
