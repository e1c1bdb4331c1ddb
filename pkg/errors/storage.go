package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Postgres SQLSTATEs the storefront reacts to.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// storageFailure is the driver-neutral view of a database error. Exactly one of the
// Postgres or SQLite fields is set.
type storageFailure struct {
	pgCode       string
	pgConstraint string
	pgTable      string
	pgColumn     string
	pgDetail     string
	pgMessage    string

	sqliteCode     sqlite3.ErrNo
	sqliteExtended sqlite3.ErrNoExtended
}

func inspectStorage(err error) (storageFailure, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return storageFailure{
			pgCode:       pgxErr.Code,
			pgConstraint: pgxErr.ConstraintName,
			pgTable:      pgxErr.TableName,
			pgColumn:     pgxErr.ColumnName,
			pgDetail:     pgxErr.Detail,
			pgMessage:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return storageFailure{
			pgCode:       string(pqErr.Code),
			pgConstraint: pqErr.Constraint,
			pgTable:      pqErr.Table,
			pgColumn:     pqErr.Column,
			pgDetail:     pqErr.Detail,
			pgMessage:    pqErr.Message,
		}, true
	}
	var liteErr sqlite3.Error
	if stdErrors.As(err, &liteErr) {
		return storageFailure{sqliteCode: liteErr.Code, sqliteExtended: liteErr.ExtendedCode}, true
	}
	return storageFailure{}, false
}

// classify maps contention to CodeDependency, which clients may retry, and duplicate keys
// to CodeConflict. Anything else stays internal.
func (f storageFailure) classify() (Code, string, bool) {
	switch {
	case f.pgCode == pgSerializationFailure, f.pgCode == pgDeadlockDetected, f.pgCode == pgLockNotAvailable,
		f.sqliteCode == sqlite3.ErrBusy, f.sqliteCode == sqlite3.ErrLocked:
		return CodeDependency, "storage contention, retry the request", true
	case f.pgCode == pgUniqueViolation, f.sqliteExtended == sqlite3.ErrConstraintUnique,
		f.sqliteExtended == sqlite3.ErrConstraintPrimaryKey:
		return CodeConflict, "record already exists", true
	}
	return "", "", false
}

// IsCheckViolation reports whether a CHECK constraint rejected the write.
func IsCheckViolation(err error) bool {
	f, ok := inspectStorage(err)
	return ok && (f.pgCode == pgCheckViolation || f.sqliteExtended == sqlite3.ErrConstraintCheck)
}

// ErrorDump is the log-friendly breakdown of an error chain.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	SQLiteCode     int `json:"sqlite_code,omitempty"`
	SQLiteExtended int `json:"sqlite_extended_code,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if f, ok := inspectStorage(err); ok {
		d.PGCode = f.pgCode
		d.PGConstraint = f.pgConstraint
		d.PGTable = f.pgTable
		d.PGColumn = f.pgColumn
		d.PGDetail = f.pgDetail
		d.PGMessage = f.pgMessage
		d.SQLiteCode = int(f.sqliteCode)
		d.SQLiteExtended = int(f.sqliteExtended)
	}
	return d
}
