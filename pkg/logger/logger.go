package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel type alias for log level constants
type LogLevel string

// Log levels
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config contains logger configuration options
type Config struct {
	// Level is the minimum level to log
	Level string
	// JSON enables JSON formatting instead of text
	JSON bool
	// Output is where logs will be written (defaults to os.Stderr)
	Output io.Writer
	// AddSource adds source code information to logs
	AddSource bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		JSON:      true, // Default to JSON for production
		Output:    os.Stderr,
		AddSource: false,
	}
}

// ConfigFrom builds a Config from LOG_LEVEL / LOG_FORMAT style values
func ConfigFrom(level, format string) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = strings.ToLower(level)
	}
	cfg.JSON = !strings.EqualFold(format, "text")
	return cfg
}

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
	config Config
}

var (
	// global is the package-level logger instance
	global   *Logger
	globalMu sync.RWMutex
)

type ctxKey struct{}

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	var handler slog.Handler

	if config.Output == nil {
		config.Output = os.Stderr
	}

	// Set log level
	var level slog.Level
	switch LogLevel(config.Level) {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	// Configure handler based on format
	if config.JSON {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	logger := &Logger{
		Logger: slog.New(handler),
		config: config,
	}

	// Set this as global if no global logger exists yet
	globalMu.Lock()
	if global == nil {
		global = logger
	}
	globalMu.Unlock()

	return logger
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	cfg := DefaultConfig()
	cfg.Output = io.Discard
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), config: cfg}
}

// SetGlobal sets the global logger instance
func SetGlobal(logger *Logger) {
	globalMu.Lock()
	global = logger
	globalMu.Unlock()
}

// GetGlobal returns the global logger instance, creating a default one on first use
func GetGlobal() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	return New(DefaultConfig())
}

// LogError logs an error with context information
func (l *Logger) LogError(err error, msg string, args ...any) {
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

// With returns a child logger carrying the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// WithRequestID adds a request ID to the logger's context
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return l.With("request_id", requestID)
}

// WithSession tags log lines with the chat session they belong to
func (l *Logger) WithSession(characterID uint, sessionID string) *Logger {
	return l.With("character_id", characterID, "session_id", sessionID)
}

// WithContext adds the request ID stored in ctx, if any
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l.WithRequestID(RequestIDFromContext(ctx))
}

// ContextWithRequestID stores a request ID for later WithContext calls
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID stored by ContextWithRequestID
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// LogRequest logs details about an HTTP request
func (l *Logger) LogRequest(method, path string, status int, latency time.Duration) {
	l.Info("request completed",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
	)
}
