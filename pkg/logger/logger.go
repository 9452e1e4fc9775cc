// Package logger provides structured logging with named categories and
// per-category level overrides. Components take a category via Named and
// operators tune noisy categories through configuration instead of
// filtering log output after the fact.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Constants for logging operations.
const (
	callerSkipFrames = 2 // Skip frames: getCaller -> logging method -> actual caller
)

// Logger defines the logging interface.
type Logger interface {
	// Context-aware variants
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	// Named returns a sub-logger under the given category. Categories
	// nest with dots: Named("engine").Named("onnx") logs as "engine.onnx".
	Named(name string) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field          { return Field{Key: key, Value: val} }
func Int(key string, val int) Field         { return Field{Key: key, Value: val} }
func Uint64(key string, val uint64) Field   { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field       { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }
func Error(err error) Field                 { return Field{Key: "error", Value: err} }

// slogLogger implements Logger using slog. It remembers its category path
// so per-category overrides can gate records before they reach the handler.
type slogLogger struct {
	logger   *slog.Logger
	category string
}

func (l *slogLogger) Named(name string) Logger {
	category := name
	if l.category != "" {
		category = l.category + "." + name
	}
	return &slogLogger{
		logger:   l.logger.WithGroup(name),
		category: category,
	}
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if level < levelFor(l.category) {
		return
	}
	fields = append(fields, String("source", getCaller()))
	if l.category != "" {
		fields = append(fields, String("category", l.category))
	}
	l.logger.LogAttrs(ctx, level, msg, convertFields(fields)...)
}

func (l *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

func (l *slogLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
	os.Exit(1)
}

// convertFields converts our Field type to slog.Attr.
func convertFields(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}

var (
	global   Logger
	baseVar  slog.LevelVar
	catMu    sync.RWMutex
	catLevel map[string]slog.Level
)

// Init initializes the global logger. The handler itself accepts every
// level; filtering happens in the wrapper so category overrides can go
// below the base level.
func Init() error {
	baseVar.Set(slog.LevelInfo)
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: false})
	global = &slogLogger{logger: slog.New(h)}
	catMu.Lock()
	catLevel = make(map[string]slog.Level)
	catMu.Unlock()
	return nil
}

// levelFor resolves the effective level for a category: the most specific
// override wins ("engine.onnx" before "engine"), otherwise the base level.
func levelFor(category string) slog.Level {
	catMu.RLock()
	defer catMu.RUnlock()
	for category != "" {
		if lvl, ok := catLevel[category]; ok {
			return lvl
		}
		i := strings.LastIndex(category, ".")
		if i < 0 {
			break
		}
		category = category[:i]
	}
	return baseVar.Level()
}

// getCaller returns the caller location in format relative/path/file.go:line (IDE-friendly).
func getCaller() string {
	// Skip 3 frames here: getCaller -> log -> logging method -> actual caller
	_, file, line, ok := runtime.Caller(callerSkipFrames + 1)
	if !ok {
		return "unknown:0"
	}

	// Get current working directory to make path relative
	cwd, err := os.Getwd()
	if err != nil {
		// Fallback to just filename if we can't get working directory
		fileName := filepath.Base(file)
		return fmt.Sprintf("%s:%d", fileName, line)
	}

	// Make the file path relative to the working directory
	relPath, err := filepath.Rel(cwd, file)
	if err != nil {
		// Fallback to just filename if relative path fails
		fileName := filepath.Base(file)
		return fmt.Sprintf("%s:%d", fileName, line)
	}

	return fmt.Sprintf("%s:%d", relPath, line)
}

// Get returns the global logger.
func Get() Logger {
	if global == nil {
		// Don't auto-initialize with production settings
		// The logger should be explicitly initialized by the application
		panic("logger not initialized. Call logger.Init() first")
	}
	return global
}

// Named creates a named logger under the global one.
func Named(name string) Logger {
	return Get().Named(name)
}

// Sync flushes buffered log entries.
func Sync() error {
	// slog does not buffer; nothing to flush
	return nil
}

// SetLevel updates the base logging level.
func SetLevel(level slog.Level) { baseVar.Set(level) }

// SetLevelString parses and sets the base logging level.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	SetLevel(lvl)
	return nil
}

// SetCategoryLevelString overrides the level for one category subtree.
// An override applies to the category and everything nested under it
// unless a deeper override exists.
func SetCategoryLevelString(category, level string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("empty log category")
	}
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	catMu.Lock()
	defer catMu.Unlock()
	if catLevel == nil {
		catLevel = make(map[string]slog.Level)
	}
	catLevel[category] = lvl
	return nil
}

// ResetCategoryLevels drops all category overrides.
func ResetCategoryLevels() {
	catMu.Lock()
	defer catMu.Unlock()
	catLevel = make(map[string]slog.Level)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}
