// cmd/backup/main.go
// Exports every race to <base>/backups/<frequency>/ or restores a previous
// export as new records.
//
// Usage:
//
//	go run ./cmd/backup -frequency weekly
//	go run ./cmd/backup -restore backups/daily/races-20250301-020000.json
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/backup"
	"github.com/padraicbc/trms/config"
	"github.com/padraicbc/trms/db"
	applog "github.com/padraicbc/trms/logger"
	"github.com/padraicbc/trms/paths"
	"github.com/padraicbc/trms/store"
)

func main() {
	frequency := flag.String("frequency", "daily", "backup subdirectory (daily, weekly, ...)")
	restore := flag.String("restore", "", "restore races from this export instead of exporting")
	env := flag.String("env", "", "configuration environment (default $TRMS_ENV or development)")
	flag.Parse()

	cfg, err := config.Load(paths.New(), *env)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := applog.New(cfg.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mgr, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer mgr.Close()
	races := store.NewRaces(mgr, logger)

	if *restore != "" {
		if err := mgr.Migrate(ctx); err != nil {
			logger.Fatal("create tables failed", zap.Error(err))
		}
		res, err := backup.Restore(ctx, races, *restore, logger)
		if err != nil {
			logger.Fatal("restore failed", zap.Error(err))
		}
		logger.Info("restore complete",
			zap.String("file", *restore),
			zap.Int("restored", res.Restored),
			zap.Int("skipped", res.Skipped))
		return
	}

	dir := cfg.Paths().BackupDir(*frequency)
	file, n, err := backup.Export(ctx, races, dir, time.Now())
	if errors.Is(err, backup.ErrEmpty) {
		logger.Warn("nothing to back up", zap.String("dir", dir))
		return
	}
	if err != nil {
		logger.Fatal("export failed", zap.Error(err))
	}
	logger.Info("export complete", zap.String("file", file), zap.Int("races", n))
}
