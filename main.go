// TERS console: menu-driven race management.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/config"
	"github.com/padraicbc/trms/console"
	"github.com/padraicbc/trms/db"
	applog "github.com/padraicbc/trms/logger"
	"github.com/padraicbc/trms/paths"
	"github.com/padraicbc/trms/store"
)

func main() {
	cfg, err := config.Load(paths.New(), "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logFile := filepath.Join(cfg.Paths().LogDir("ters"), "console.log")
	logger, err := applog.New(cfg.Logging, "stderr", logFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer mgr.Close()

	if err := mgr.Migrate(ctx); err != nil {
		logger.Error("create tables failed", zap.Error(err))
	}

	races := store.NewRaces(mgr, logger)
	console.New(races, mgr, cfg, logger, os.Stdin, os.Stdout).Run(ctx)
}
