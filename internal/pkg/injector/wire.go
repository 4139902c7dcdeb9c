//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/data"
	historyservice "github.com/AGIOS-UPDATED/midday-test/internal/history/service"
	llmbiz "github.com/AGIOS-UPDATED/midday-test/internal/llm/biz"
	llmservice "github.com/AGIOS-UPDATED/midday-test/internal/llm/service"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/server"
	websearchservice "github.com/AGIOS-UPDATED/midday-test/internal/websearch/service"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	dataProviderSet,
	useCaseProviderSet,
	httpServiceProviderSet,
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	data.NewData,
	provideRedisClient,
	provideHistoryUseCase,
	sse.NewHub,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	provideLLMConfig,
	provideProviderManager,
	provideStreamClient,
	llmbiz.NewChatUseCase,
	llmbiz.NewLLMCallUseCase,
	llmbiz.NewEnhancerUseCase,
	provideSearchUseCase,
	provideSessionDeps,
	provideSessionManager,
)

// HTTP service providers
var httpServiceProviderSet = wire.NewSet(
	llmservice.NewLLMService,
	historyservice.NewHistoryService,
	provideSessionService,
	websearchservice.NewWebSearchService,
)

// Server providers
var serverProviderSet = wire.NewSet(
	wire.Struct(new(server.Services), "*"),
	provideHealthSources,
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
