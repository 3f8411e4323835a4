// Package logging builds the zap loggers used across castrank.
// One base logger is built from config at startup; each subsystem logs through a
// named child for its category, and categories can be switched off individually.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryPipeline   Category = "pipeline"   // Orchestrator, run lifecycle
	CategoryGroupCount Category = "groupcount" // Stage 1
	CategoryRankSort   Category = "ranksort"   // Stage 2 and order validation
	CategoryWorkspace  Category = "workspace"  // Intermediate tree and result promotion
	CategoryStore      Category = "store"      // SQLite export
	CategoryWatch      Category = "watch"      // Input watcher
)

// Options selects level, encoding and destination.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // optional extra output path
	// Verbose forces debug level, the same as the --verbose flag.
	Verbose bool
	// Categories disables a category when mapped to false. Missing means enabled.
	Categories map[string]bool
}

// Loggers hands out per-category children of one base logger.
type Loggers struct {
	base     *zap.Logger
	disabled map[Category]bool
}

// New builds the base logger from opts.
func New(opts Options) (*Loggers, error) {
	config := zap.NewProductionConfig()
	config.Sampling = nil

	level := zapcore.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		lvl, err := zapcore.ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s, err)
		}
		level = lvl
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	switch strings.TrimSpace(opts.Format) {
	case "", "json":
		config.Encoding = "json"
	case "console", "text":
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q (want json or console)", opts.Format)
	}

	if opts.File != "" {
		config.OutputPaths = append(config.OutputPaths, opts.File)
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, opts.File)
	}

	base, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return Wrap(base, opts.Categories), nil
}

// Wrap uses an existing logger as the base, e.g. zap.NewNop() or an observer in tests.
func Wrap(base *zap.Logger, categories map[string]bool) *Loggers {
	if base == nil {
		base = zap.NewNop()
	}
	disabled := make(map[Category]bool)
	for name, enabled := range categories {
		if !enabled {
			disabled[Category(name)] = true
		}
	}
	return &Loggers{base: base, disabled: disabled}
}

// Nop returns loggers that discard everything.
func Nop() *Loggers { return Wrap(zap.NewNop(), nil) }

// Base returns the uncategorised logger.
func (l *Loggers) Base() *zap.Logger { return l.base }

// Get returns the logger for a category, or a no-op logger when it is disabled.
func (l *Loggers) Get(category Category) *zap.Logger {
	if l.disabled[category] {
		return zap.NewNop()
	}
	return l.base.Named(string(category))
}

// With returns loggers whose base carries fields, e.g. a run ID.
func (l *Loggers) With(fields ...zap.Field) *Loggers {
	return &Loggers{base: l.base.With(fields...), disabled: l.disabled}
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Loggers) Sync() {
	_ = l.base.Sync()
}
