package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	historyservice "github.com/AGIOS-UPDATED/midday-test/internal/history/service"
	llmservice "github.com/AGIOS-UPDATED/midday-test/internal/llm/service"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/redis"
	"github.com/AGIOS-UPDATED/midday-test/internal/server/middleware"
	"github.com/AGIOS-UPDATED/midday-test/internal/session"
	sessionservice "github.com/AGIOS-UPDATED/midday-test/internal/session/service"
	websearchservice "github.com/AGIOS-UPDATED/midday-test/internal/websearch/service"
)

// Services 注册到 /api 下的全部服务
type Services struct {
	LLM       *llmservice.LLMService
	History   *historyservice.HistoryService
	Sessions  *sessionservice.SessionService
	WebSearch *websearchservice.WebSearchService
}

// HealthSources /health 读取的状态来源
type HealthSources struct {
	History  *hbiz.HistoryUseCase
	Sessions *session.Manager
	Redis    *redis.Client // 可选
}

type HTTPServer struct {
	server *http.Server
	router *gin.Engine
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	services Services,
	health HealthSources,
	redisClient *redis.Client,
) *HTTPServer {
	log = log.Named("http")
	router := NewRouter(config, log, services, health, redisClient)

	return &HTTPServer{
		server: &http.Server{
			Addr:              config.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
		logger: log,
	}
}

// NewRouter 构建 gin 路由
func NewRouter(
	config *conf.Config,
	log *logger.Logger,
	services Services,
	health HealthSources,
	redisClient *redis.Client,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, logger.MiddlewareOptions{
		SkipPaths: []string{"/health"},
	}))

	router.GET("/health", healthHandler(health))

	api := router.Group("/api")
	if config.RateLimit.Enabled {
		if redisClient != nil {
			api.Use(middleware.RateLimiter(redisClient, middleware.RateLimiterConfig{
				MaxRequests:   config.RateLimit.MaxRequests,
				WindowSeconds: config.RateLimit.WindowSeconds,
			}, log))
		} else {
			log.Warn("rate limit enabled but redis is unavailable")
		}
	}

	if services.LLM != nil {
		services.LLM.RegisterRoutes(api)
	}
	if services.History != nil {
		services.History.RegisterRoutes(api)
	}
	if services.Sessions != nil {
		services.Sessions.RegisterRoutes(api)
	}
	if services.WebSearch != nil {
		services.WebSearch.RegisterRoutes(api)
	}

	return router
}

// Handler 供测试直接调用
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
