// Package logging provides categorized zap logging for the reply worker.
// Each subsystem logs through its own named logger so the operator can
// follow scan, generate and submit outcomes per step.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config
	CategorySession  Category = "session"  // Orchestrator passes
	CategoryStore    Category = "store"    // Seen store persistence
	CategoryScan     Category = "scan"     // Candidate discovery
	CategoryGenerate Category = "generate" // Reply generation calls
	CategoryInteract Category = "interact" // Composer interaction
	CategoryBrowser  Category = "browser"  // Browser engine, contexts
	CategoryProfiles Category = "profiles" // Profile store queries
	CategoryPerf     Category = "performance"
)

// Options configures the root logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
)

// Initialize builds the root logger. Safe to call more than once; the last
// call wins.
func Initialize(opts Options) error {
	var cfg zap.Config
	if strings.EqualFold(opts.Format, "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetLogger(logger)
	return nil
}

// SetLogger replaces the root logger. Tests pass zap.NewNop() or an
// observer core.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	root = l
	loggers = make(map[Category]*zap.Logger)
}

// Get returns (or creates) the logger for the given category.
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category))
	loggers[category] = l
	return l
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Timer measures one operation and logs it on Stop when it ran longer than
// the slow threshold.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// SlowThreshold is the duration above which timers log at info level.
var SlowThreshold = 5 * time.Second

// StartTimer starts timing an operation.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	l := Get(CategoryPerf)
	fields := []zap.Field{
		zap.String("category", string(t.category)),
		zap.String("op", t.op),
		zap.Duration("elapsed", elapsed),
	}
	if elapsed >= SlowThreshold {
		l.Info("slow operation", fields...)
	} else {
		l.Debug("operation timing", fields...)
	}
	return elapsed
}
