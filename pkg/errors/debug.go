package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err into structured log fields: the message, the typed
// code when present, each layer of the wrap chain, and postgres diagnostics
// from either pgx or lib/pq. Empty values are left out.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{"error": err.Error()}
	if te := As(err); te != nil {
		fields["error_code"] = te.Code()
		if te.Step() != "" {
			fields["failed_step"] = te.Step()
		}
	}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	for k, v := range postgresFields(err) {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func postgresFields(err error) map[string]string {
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return map[string]string{
			"pg_code":       pgErr.Code,
			"pg_message":    pgErr.Message,
			"pg_detail":     pgErr.Detail,
			"pg_table":      pgErr.TableName,
			"pg_column":     pgErr.ColumnName,
			"pg_constraint": pgErr.ConstraintName,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_message":    pqErr.Message,
			"pg_detail":     pqErr.Detail,
			"pg_table":      pqErr.Table,
			"pg_column":     pqErr.Column,
			"pg_constraint": pqErr.Constraint,
		}
	}
	return nil
}
