package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex:idx_test_models_name"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromConn(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIsUniqueViolation(t *testing.T) {
	conn := newTestDB(t)
	require.NoError(t, conn.Create(&testModel{Name: "dup"}).Error)

	err := conn.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "test_models.name"))
	require.False(t, IsUniqueViolation(err, "orders_pkey"))

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey"}
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "orders_pkey"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestStoreErrorClassification(t *testing.T) {
	require.NoError(t, StoreError(nil, "noop"))

	transient := StoreError(context.DeadlineExceeded, "load orders")
	require.True(t, pkgerrors.IsRetryable(transient))

	conn := StoreError(&pgconn.PgError{Code: "08006"}, "load orders")
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(conn))

	constraint := StoreError(&pgconn.PgError{Code: "23503"}, "insert line")
	require.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(constraint))

	typed := pkgerrors.New(pkgerrors.CodeNotFound, "missing")
	require.Same(t, typed, StoreError(typed, "ignored"))
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromConn(conn)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&testModel{Name: "panicked"}).Error)
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestQueryLoggerReportsFailuresAndSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	ql := newQueryLogger(logger.New(logger.Options{ServiceName: "test", Format: "json", Output: buf}), 50*time.Millisecond)
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(context.Background(), time.Now(), stmt, nil)
	require.Empty(t, buf.String(), "fast successful statements are not logged")

	ql.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
	require.Empty(t, buf.String(), "not-found lookups are not logged")

	ql.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	require.Contains(t, buf.String(), `"slow query"`)
	require.Contains(t, buf.String(), `"sql":"SELECT 1"`)

	buf.Reset()
	ql.Trace(context.Background(), time.Now(), stmt, errors.New("syntax"))
	require.Contains(t, buf.String(), `"query failed"`)

	buf.Reset()
	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), stmt, errors.New("syntax"))
	require.Empty(t, buf.String())
}
