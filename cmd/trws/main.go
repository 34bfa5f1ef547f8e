// cmd/trws/main.go
// JSON web API over the race store.
//
// Usage:
//
//	JWT_SECRET=... go run ./cmd/trws
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/config"
	"github.com/padraicbc/trms/db"
	"github.com/padraicbc/trms/handlers"
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
	logger, err := applog.New(cfg.Logging, "stderr", filepath.Join(cfg.Paths().LogDir("trws"), "api.log"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if len(cfg.Web.JWTKey()) == 0 {
		logger.Fatal("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer mgr.Close()

	if err := mgr.Migrate(ctx); err != nil {
		logger.Fatal("create tables failed", zap.Error(err))
	}

	h := handlers.New(
		store.NewRaces(mgr, logger),
		store.NewUsers(mgr, logger),
		mgr,
		cfg.Web.JWTKey(),
		logger,
	)
	e := handlers.NewServer(h, logger, cfg.Web.TersAPIURL)
	e.Debug = cfg.Web.Debug
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 120 * time.Second
	e.Server.IdleTimeout = 15 * time.Second

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Web.Addr()), zap.String("env", cfg.Environment))
		if err := e.Start(cfg.Web.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
