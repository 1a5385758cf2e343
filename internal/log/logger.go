// Package log wraps log/slog with component-scoped loggers.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger that stamps every record with its component.
type Logger struct {
	*slog.Logger
	// base carries every attribute except the component.
	base      *slog.Logger
	component string
}

func newLogger(base *slog.Logger, component string) *Logger {
	return &Logger{Logger: base.With(FieldComponent, component), base: base, component: component}
}

type Config struct {
	Level     slog.Level
	Format    string // "text" or "json"
	Component string
	Output    io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "text",
		Component: ComponentApp,
		Output:    os.Stdout,
	}
}

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	component := cfg.Component
	if component == "" {
		component = ComponentApp
	}
	return newLogger(slog.New(handler), component)
}

func (l *Logger) With(args ...any) *Logger {
	if l.base == nil {
		return &Logger{Logger: l.Logger.With(args...), component: l.component}
	}
	return newLogger(l.base.With(args...), l.component)
}

// WithComponent returns a child logger for another component. The child's
// records carry only the new component.
func (l *Logger) WithComponent(component string) *Logger {
	if l.base == nil {
		return &Logger{Logger: l.Logger.With(FieldComponent, component), component: component}
	}
	return newLogger(l.base, component)
}

func (l *Logger) Component() string {
	return l.component
}

// LogError logs err with its operation and extra fields.
func (l *Logger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	l.ErrorContext(ctx, msg, fields.WithError(err).WithOperation(operation).ToSlice()...)
}

// SetDefault installs logger as the process-wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
