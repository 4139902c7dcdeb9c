package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	hdata "github.com/AGIOS-UPDATED/midday-test/internal/history/data"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/output"
)

// 命令之间共享的依赖，在 cobra.OnInitialize 中初始化
var (
	ui      *output.UI
	history *hbiz.HistoryUseCase
	cleanup = func() {}

	cfgFile string
	backend string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "boltctl",
	Short: "Inspect and manage saved chats",
	Long: `boltctl works directly against the configured chat history backend.
It lists, exports, imports, duplicates, rewinds and deletes saved chats.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
}

// Execute is the entry point called from main
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initDeps)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Override persistence.backend (sqlite, postgres, redis)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// getHistory 第一次调用时打开存储
func getHistory(ctx context.Context) (*hbiz.HistoryUseCase, error) {
	if history != nil {
		return history, nil
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	config, err := conf.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if backend != "" {
		config.Persistence.Backend = backend
	}

	log := logger.NewNop()
	if verbose {
		if log, err = logger.New(&config.Log); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	repo, notice, closeRepo := hdata.Open(ctx, config, log)
	if repo == nil {
		closeRepo()
		return nil, errors.New("chat persistence is disabled in the configuration")
	}
	if notice != "" {
		closeRepo()
		return nil, fmt.Errorf("%s: cannot open %s backend", notice, config.Persistence.Backend)
	}
	ui.VerboseLog("using %s backend", config.Persistence.Backend)

	history = hbiz.NewHistoryUseCase(repo, "", log)
	cleanup = closeRepo
	return history, nil
}
