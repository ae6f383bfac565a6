package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/env"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	// WarnStack attaches a stack trace to warnings as well as errors.
	WarnStack bool
	// Format is "json" or "console". Empty falls back to SALESLEDGER_LOG_FORMAT.
	Format string
	Output io.Writer
}

// Logger writes zerolog events enriched with fields carried on the context.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type scopeKey struct{}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return &Logger{
		root: zerolog.New(writerFor(opts)).
			Level(level).
			With().
			Timestamp().
			Str("service", opts.ServiceName).
			Logger(),
		warnStack: opts.WarnStack,
	}
}

func writerFor(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.Get("SALESLEDGER_LOG_FORMAT", "json")
	}
	if format != "console" {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
}

// ParseLevel maps a config string to a level; blanks and typos mean info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) scoped(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if zl, ok := ctx.Value(scopeKey{}).(*zerolog.Logger); ok {
			return zl
		}
	}
	return &l.root
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	zl := l.scoped(ctx).With().Fields(fields).Logger()
	return context.WithValue(ctx, scopeKey{}, &zl)
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithPrincipal(ctx context.Context, principalID, role string) context.Context {
	return l.WithFields(ctx, map[string]any{"principal_id": principalID, "role": role})
}

func (l *Logger) WithOrderID(ctx context.Context, orderID string) context.Context {
	return l.WithField(ctx, "order_id", orderID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.scoped(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.scoped(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.scoped(ctx).Warn()
	if l.warnStack {
		ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error logs msg at error level with a stack trace. err is expanded into its
// code, step, wrap chain and any postgres diagnostics.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.scoped(ctx).Error().
		Fields(pkgerrors.LogFields(err)).
		Str("stack", stack()).
		Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
