// Package logging provides structured logging for the control center.
// Wraps zerolog with component loggers, date-named log files, and
// retention-based cleanup.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const filePrefix = "clawcenter-"

// Config holds logging configuration.
type Config struct {
	Level         string // debug, info, warn, error
	Path          string // log directory; empty logs to stderr only
	Format        string // json, text
	RetentionDays int    // days to keep log files (default 7)
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Level:         "info",
		Path:          filepath.Join(home, ".local", "share", "clawcenter", "logs"),
		Format:        "json",
		RetentionDays: 7,
	}
}

// Logger wraps zerolog with control-center specific behavior.
type Logger struct {
	zl        zerolog.Logger
	component string
	logDir    string
	file      *os.File
	mu        sync.Mutex
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Init initializes the global logger.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil && globalLogger.file != nil {
		_ = globalLogger.file.Close()
	}
	globalLogger = logger
	return nil
}

// New creates a Logger from the given configuration.
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 7
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	logger := &Logger{}

	var output io.Writer = os.Stderr
	if cfg.Path != "" {
		dir := expandPath(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		logger.logDir = dir

		f, err := os.OpenFile(logger.currentLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logger.file = f
		output = f

		go logger.cleanOldLogs(cfg.RetentionDays)
	}

	if cfg.Format == "text" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}

	logger.zl = zerolog.New(output).Level(level).With().Timestamp().Logger()
	return logger, nil
}

func (l *Logger) currentLogPath() string {
	name := fmt.Sprintf("%s%s.log", filePrefix, time.Now().Format("2006-01-02"))
	return filepath.Join(l.logDir, name)
}

// cleanOldLogs removes log files older than retention days.
func (l *Logger) cleanOldLogs(retentionDays int) {
	if l.logDir == "" {
		return
	}
	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".log")
		logDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if logDate.Before(cutoff) {
			_ = os.Remove(filepath.Join(l.logDir, name))
		}
	}
}

// WithComponent returns a Logger tagged with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
		logDir:    l.logDir,
		file:      l.file,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...any) { l.zl.Info().Msgf(format, args...) }

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...any) { l.zl.Warn().Msgf(format, args...) }

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// DebugCtx logs a debug message with structured fields.
func (l *Logger) DebugCtx(msg string, fields map[string]any) { logCtx(l.zl.Debug(), msg, fields) }

// InfoCtx logs an info message with structured fields.
func (l *Logger) InfoCtx(msg string, fields map[string]any) { logCtx(l.zl.Info(), msg, fields) }

// WarnCtx logs a warning message with structured fields.
func (l *Logger) WarnCtx(msg string, fields map[string]any) { logCtx(l.zl.Warn(), msg, fields) }

// ErrorCtx logs an error message with structured fields.
func (l *Logger) ErrorCtx(msg string, fields map[string]any) { logCtx(l.zl.Error(), msg, fields) }

func logCtx(event *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Err starts an error-level event with the error attached.
func (l *Logger) Err(err error) *zerolog.Event {
	return l.zl.Error().Err(err)
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// LogFiles returns log files in the log directory, newest first.
func (l *Logger) LogFiles() ([]string, error) {
	return ListLogFiles(l.logDir)
}

// ListLogFiles returns control-center log files under dir, newest first.
func ListLogFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// Get returns the global logger, or a stderr fallback if Init was not
// called.
func Get() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return &Logger{zl: zerolog.New(os.Stderr).With().Timestamp().Logger()}
	}
	return globalLogger
}

// Component returns the global logger tagged with a component field.
func Component(name string) *Logger {
	return Get().WithComponent(name)
}

// Debug logs a debug message on the global logger.
func Debug(msg string) {
	Get().Debug(msg)
}

// Info logs an info message on the global logger.
func Info(msg string) {
	Get().Info(msg)
}

// Warn logs a warning on the global logger.
func Warn(msg string) {
	Get().Warn(msg)
}

// Error logs an error message on the global logger.
func Error(msg string) {
	Get().Error(msg)
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
