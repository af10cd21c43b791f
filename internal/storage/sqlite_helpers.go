package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/good-yellow-bee/alertdb/internal/metrics"
)

const backendSQLite = "sqlite"

// querier is satisfied by *sql.DB and *sql.Tx. Code running inside a
// transaction must only use the tx: the store has a single connection.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// observe records latency and, on failure, an error for a SQLite operation.
func observe(op string, start time.Time, err error) {
	observeBackend(backendSQLite, op, start, err)
}

func observeBackend(backend, op string, start time.Time, err error) {
	metrics.StorageQueryDuration.WithLabelValues(op, backend).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues(op, backend).Inc()
	}
}

// fieldSet accumulates column assignments for an UPDATE. The set* helpers
// only record a column when the value is present, so absent input fields
// never overwrite stored values.
type fieldSet struct {
	cols []string
	args []any
}

func (f *fieldSet) set(col string, v any) {
	f.cols = append(f.cols, col+" = ?")
	f.args = append(f.args, v)
}

func (f *fieldSet) expr(clause string) {
	f.cols = append(f.cols, clause)
}

func (f *fieldSet) setString(col, v string) {
	if v != "" {
		f.set(col, v)
	}
}

func (f *fieldSet) setTime(col string, t time.Time) {
	if !t.IsZero() {
		f.set(col, t.UnixNano())
	}
}

func (f *fieldSet) setJSON(col string, v any, present bool) error {
	if !present {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.set(col, string(data))
	return nil
}

func (f *fieldSet) clause() string {
	return strings.Join(f.cols, ", ")
}

// Time columns hold unix nanoseconds; NULL is the zero time.

func timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func nsTime(ns sql.NullInt64) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return time.Unix(0, ns.Int64).UTC()
}

func jsonArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func tagsOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isConstraint reports whether err is an SQLite constraint violation, and
// whether it was a primary key collision.
func isConstraint(err error) (constraint, primaryKey bool) {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false, false
	}
	code := serr.Code()
	return code&0xff == sqlite3.SQLITE_CONSTRAINT, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
