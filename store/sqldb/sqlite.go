package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/kdl/schedule-engine/migrations"
	"github.com/kdl/schedule-engine/scheduling"
)

// OpenSQLite opens (or creates) the database at path and applies migrations.
// ":memory:" gives a private in-memory database.
//
// WAL MODE:
//
//	Readers don't block the single writer. The pool is capped at one
//	connection, which serialises transactions and keeps an in-memory
//	database alive for the life of the Store.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newStore(db, sqliteDialect{})
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return DriverSQLite }
func (sqliteDialect) gooseDialect() string { return "sqlite3" }
func (sqliteDialect) migrationsDir() string { return migrations.DirSQLite }
func (sqliteDialect) placeholder(int) string { return "?" }
func (sqliteDialect) txOptions() *sql.TxOptions { return nil }

// lock is a no-op: with a single connection the transaction already excludes
// every other writer.
func (sqliteDialect) lock(context.Context, querier, []string) error { return nil }

// translate recognises "UNIQUE constraint failed: schedules.teacher_id, ...".
func (sqliteDialect) translate(err error, id scheduling.ScheduleID) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.ExtendedCode != sqlite3.ErrConstraintUnique && se.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return err
	}
	msg := se.Error()
	if strings.Contains(msg, "schedules.id") || strings.Contains(msg, "sessions.id") {
		return fmt.Errorf("%w: %v", scheduling.ErrDuplicate, err)
	}
	if dim, ok := dimensionForConstraint(msg); ok {
		return &scheduling.UniqueViolationError{Dimension: dim, ScheduleID: id, Constraint: msg}
	}
	return err
}
