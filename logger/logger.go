package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/padraicbc/trms/config"
)

// New builds a zap logger from the logging section.
// Encoding defaults to JSON. With no outputs the logger writes to stderr;
// file outputs have their parent directory created first.
func New(cfg config.Logging, outputs ...string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		level = l
	}

	zc := zap.NewProductionConfig()
	zc.Encoding = "json"
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	for _, out := range outputs {
		if out == "stderr" || out == "stdout" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, fmt.Errorf("logger: create log dir: %w", err)
		}
	}
	zc.OutputPaths = outputs
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
