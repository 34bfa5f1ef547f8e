// Package paths resolves the TRMS installation directory and the
// directories derived from it.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// Sentinel is the directory name fragment that marks the installation base.
const Sentinel = "TRMS"

// BaseEnv overrides the directory search when set.
const BaseEnv = "TRMS_BASE"

// Paths exposes the directories used by the suite.
type Paths struct {
	Base string
}

// New resolves the base directory using the running executable and then the
// working directory as starting points.
func New() Paths {
	var starts []string
	if exe, err := os.Executable(); err == nil {
		starts = append(starts, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		starts = append(starts, wd)
	}
	return Paths{Base: FindBase(starts...)}
}

// FindBase returns $TRMS_BASE if set, otherwise the nearest ancestor of any
// start directory whose name contains Sentinel. With no match it falls back
// to <cwd>/TRMS.
func FindBase(starts ...string) string {
	if base := os.Getenv(BaseEnv); base != "" {
		return base
	}
	for _, start := range starts {
		if dir, ok := walkUp(start); ok {
			return dir
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return filepath.Join(wd, Sentinel)
}

func walkUp(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		if strings.Contains(filepath.Base(dir), Sentinel) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// ConfigDir is where per-environment YAML files live.
func (p Paths) ConfigDir() string {
	return filepath.Join(p.Base, "config")
}

// ConfigFile returns the YAML file for an environment, e.g. config/development.yaml.
func (p Paths) ConfigFile(env string) string {
	return filepath.Join(p.ConfigDir(), env+".yaml")
}

// LogDir returns the log directory of one solution (ters, trws, system...).
func (p Paths) LogDir(solution string) string {
	if solution == "" {
		solution = "system"
	}
	return filepath.Join(p.Base, "logs", solution)
}

// BackupDir returns the backup directory for a frequency (daily, weekly...).
func (p Paths) BackupDir(frequency string) string {
	if frequency == "" {
		frequency = "daily"
	}
	return filepath.Join(p.Base, "backups", frequency)
}
