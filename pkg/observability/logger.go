package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l LogLevel) toSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is a structured JSON logger backed by slog. A nil *Logger is valid
// and discards everything, so components can take an optional logger.
type Logger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger creates a new structured logger writing JSON lines to output.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level.toSlogLevel(),
	})

	return &Logger{
		logger: slog.New(handler),
		level:  level,
	}
}

// DefaultLogger returns an info-level logger on stdout.
func DefaultLogger() *Logger {
	return NewLogger(InfoLevel, os.Stdout)
}

// Level reports the minimum level this logger emits.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return ErrorLevel
	}
	return l.level
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		logger: l.logger.With(key, value),
		level:  l.level,
	}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil || len(fields) == 0 {
		return l
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		logger: l.logger.With(args...),
		level:  l.level,
	}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) {
	if l != nil {
		l.logger.Debug(message)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l != nil {
		l.logger.Debug(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Info(message string) {
	if l != nil {
		l.logger.Info(message)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l != nil {
		l.logger.Info(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Warn(message string) {
	if l != nil {
		l.logger.Warn(message)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l != nil {
		l.logger.Warn(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Error(message string) {
	if l != nil {
		l.logger.Error(message)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l != nil {
		l.logger.Error(fmt.Sprintf(format, args...))
	}
}

type contextKey string

const (
	// UserIDKey carries the user whose analytics are being computed
	UserIDKey contextKey = "user_id"
	// OperationKey names the analytics operation in progress
	OperationKey contextKey = "operation"
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
)

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// WithOperation tags the context with an operation name
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(OperationKey).(string); ok {
		return op
	}
	return ""
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the logger from context, falling back to the default
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerKey).(*Logger); ok && logger != nil {
		return logger
	}
	return DefaultLogger()
}

// FromContext returns the context logger annotated with user and operation
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)

	if userID := GetUserID(ctx); userID != "" {
		logger = logger.WithField("user_id", userID)
	}
	if op := GetOperation(ctx); op != "" {
		logger = logger.WithField("operation", op)
	}

	return logger
}
