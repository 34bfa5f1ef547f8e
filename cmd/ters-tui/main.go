// cmd/ters-tui/main.go
// Interactive terminal UI for race management. Logs go to
// <base>/logs/ters/tui.log only so they never draw over the screen.
//
// Usage:
//
//	go run ./cmd/ters-tui
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/padraicbc/trms/config"
	"github.com/padraicbc/trms/db"
	applog "github.com/padraicbc/trms/logger"
	"github.com/padraicbc/trms/paths"
	"github.com/padraicbc/trms/store"
	"github.com/padraicbc/trms/tui"
)

func main() {
	cfg, err := config.Load(paths.New(), "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := applog.New(cfg.Logging, filepath.Join(cfg.Paths().LogDir("ters"), "tui.log"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "database unavailable:", err)
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer mgr.Close()

	if err := mgr.Migrate(ctx); err != nil {
		logger.Error("create tables failed", zap.Error(err))
	}

	model := tui.New(ctx, store.NewRaces(mgr, logger), mgr)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("tui exited", zap.Error(err))
	}
	logger.Info("tui shutdown")
}
