// Package backup exports races to JSON files under the backups directory and
// restores them.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/models"
)

// ErrEmpty is returned by Export when there is nothing to write.
var ErrEmpty = errors.New("backup: no races to export")

// Lister supplies the races to export.
type Lister interface {
	GetAll(ctx context.Context) []models.Race
}

// Creator receives restored races.
type Creator interface {
	Create(ctx context.Context, r *models.Race) (int64, bool)
}

// Result counts what a restore did.
type Result struct {
	Restored int
	Skipped  int
}

// FileName is the export name for a backup taken at t.
func FileName(t time.Time) string {
	return "races-" + t.UTC().Format("20060102-150405") + ".json"
}

// Export writes every race to dir and returns the file path and race count.
func Export(ctx context.Context, races Lister, dir string, now time.Time) (string, int, error) {
	all := races.GetAll(ctx)
	if len(all) == 0 {
		return "", 0, ErrEmpty
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("backup: create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("backup: encode: %w", err)
	}
	file := filepath.Join(dir, FileName(now))
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("backup: write %s: %w", file, err)
	}
	return file, len(all), nil
}

// Restore creates every race in file as a new record. Races that fail
// validation or insertion are skipped and logged; the rest still go in.
func Restore(ctx context.Context, races Creator, file string, log *zap.Logger) (Result, error) {
	var res Result

	data, err := os.ReadFile(file)
	if err != nil {
		return res, fmt.Errorf("backup: read %s: %w", file, err)
	}
	var all []models.Race
	if err := json.Unmarshal(data, &all); err != nil {
		return res, fmt.Errorf("backup: decode %s: %w", file, err)
	}

	for i := range all {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r := &all[i]
		oldID := r.ID
		r.ID = 0
		r.Date = models.DateOf(r.Date)
		if err := r.Validate(); err != nil {
			log.Warn("skipping invalid race", zap.Int64("race_id", oldID), zap.Error(err))
			res.Skipped++
			continue
		}
		if _, ok := races.Create(ctx, r); !ok {
			log.Warn("skipping race that failed to insert", zap.Int64("race_id", oldID))
			res.Skipped++
			continue
		}
		res.Restored++
	}
	return res, nil
}
