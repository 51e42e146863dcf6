// Package logging builds the per-component logrus loggers used across
// GilsTracker. Configure once at startup; NewLogger hands out cached entries
// tagged with a "component" field.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "GILSTRACKER_LOG_LEVEL"

// Config is the `log:` section of config.yaml.
type Config struct {
	// Level is one of logrus' level names ("debug", "info", "warn", ...).
	Level string `yaml:"level"`
	// Format is "text" (default) or "json".
	Format string `yaml:"format"`
	// File, when set, receives log output instead of stderr.
	File string `yaml:"file"`
}

var (
	mu      sync.Mutex
	base    = newBase(Config{}, os.Stderr)
	loggers = make(map[string]*logrus.Entry)
)

func newBase(cfg Config, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	levelStr := cfg.Level
	if env := os.Getenv(EnvLevel); env != "" {
		levelStr = env
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Configure rebuilds the shared logger. Loggers handed out earlier keep
// their old settings, so call this before constructing components.
func Configure(cfg Config) error {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		path := expandPath(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	ConfigureOutput(cfg, out)
	return nil
}

// ConfigureOutput is Configure with an explicit writer. The TUI passes
// io.Discard so log lines never tear the alt screen.
func ConfigureOutput(cfg Config, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newBase(cfg, out)
	loggers = make(map[string]*logrus.Entry)
}

// NewLogger returns the logger for component, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[component]; ok {
		return l
	}
	l := base.WithField("component", component)
	loggers[component] = l
	return l
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
