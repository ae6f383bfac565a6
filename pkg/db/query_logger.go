package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/salesledger/pkg/logger"
)

// queryLogger routes GORM's logging into the service logger. Record-not-found
// is an expected lookup outcome and is never logged.
type queryLogger struct {
	logg      *logger.Logger
	slow      time.Duration
	verbosity gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, verbosity: gormlogger.Warn}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *q
	cp.verbosity = level
	return &cp
}

func (q *queryLogger) Info(ctx context.Context, msg string, _ ...any) {
	if q.verbosity >= gormlogger.Info {
		q.logg.Debug(ctx, "gorm: "+msg)
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, _ ...any) {
	if q.verbosity >= gormlogger.Warn {
		q.logg.Warn(ctx, "gorm: "+msg)
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, _ ...any) {
	if q.verbosity >= gormlogger.Error {
		q.logg.Warn(ctx, "gorm: "+msg)
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.verbosity <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && elapsed > q.slow
	if !failed && !slow {
		return
	}

	query, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{
		"sql":        query,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	if failed {
		q.logg.Error(ctx, "query failed", err)
		return
	}
	q.logg.Warn(ctx, "slow query")
}
