package storage

import (
	"database/sql"
	"errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/mattn/go-sqlite3"
	"strconv"
	"strings"
)

// dialect captures the few places where postgres and sqlite disagree
type dialect uint8

const (
	postgres dialect = iota
	sqlite
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverPostgres:
		return postgres, nil
	case DriverSQLite:
		return sqlite, nil
	default:
		return 0, errors.New("unsupported driver " + strconv.Quote(driver))
	}
}

// rebind replaces ? placeholders with $1, $2, ... for postgres
func (d dialect) rebind(query string) string {
	if d != postgres || !strings.Contains(query, "?") {
		return query
	}

	var out strings.Builder
	out.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteByte(query[i])
	}
	return out.String()
}

// ddl adapts a schema statement written for sqlite
func (d dialect) ddl(stmt string) string {
	if d == postgres {
		return strings.ReplaceAll(stmt, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
	}
	return stmt
}

func (d dialect) txOptions() *sql.TxOptions {
	if d == postgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	// sqlite runs on a single connection, transactions are serialized already
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}

// isRetryable reports whether the whole transaction may be replayed
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return false
}
