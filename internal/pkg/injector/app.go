package injector

import (
	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/server"
	"github.com/AGIOS-UPDATED/midday-test/internal/session"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	Sessions   *session.Manager
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	sessions *session.Manager,
) (*App, func()) {
	cleanup := func() {
		sessions.Close()
	}
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		Sessions:   sessions,
	}, cleanup
}
