package db

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is provided the violation must reference that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// StoreError converts a raw store failure into a typed error. Timeouts and
// connectivity problems are reported as retryable dependency failures.
func StoreError(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && !isConnectionClass(pgErr.Code) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// Class 08 is connection exception, 57 operator intervention, 53 insufficient resources.
func isConnectionClass(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57") || strings.HasPrefix(code, "53")
}
