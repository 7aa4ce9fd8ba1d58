/*
Package sqldb provides the database/sql implementation of scheduling.TxStore
for SQLite and PostgreSQL.

PURPOSE:
  One set of queries serves both databases. A dialect value supplies the
  differences: placeholder style, transaction options, resource locking and
  the translation of constraint violations into engine errors.

KEY TABLES:
  class_options: Purchasable policies (soft-deactivated, never deleted)
  sessions:      Enrolments, optimistic version column
  schedules:     Class occurrences (cancelled rows retained)
  events:        Outbox, ordered by seq

INTEGRITY BACKSTOP:
  Partial unique indexes over non-cancelled schedules:
  - uq_schedules_teacher_slot: (teacher_id, date, start_time)
  - uq_schedules_room_slot:    (room, date, start_time)
  - uq_schedules_student_slot: (student_id, date, start_time)
  A violation comes back as *scheduling.UniqueViolationError naming the
  dimension; a duplicate primary key as scheduling.ErrDuplicate.

CONCURRENCY:
  SQLite:     one open connection, so transactions run one at a time
  PostgreSQL: READ COMMITTED transactions plus pg_advisory_xact_lock on the
              resource keys (see postgres.go)

MIGRATION:
  Schema is applied with goose from the embedded migrations package on
  Open. Each dialect has its own migration directory.

USAGE:
  st, err := sqldb.OpenSQLite(":memory:")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  eng := scheduling.NewEngine(st, rules)

SEE ALSO:
  - scheduling/store.go: Interface definitions
  - scheduling/store/memory.go: In-memory implementation for testing
*/
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kdl/schedule-engine/migrations"
	"github.com/kdl/schedule-engine/scheduling"
	"github.com/pressly/goose/v3"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect isolates what differs between SQLite and PostgreSQL.
type dialect interface {
	name() string
	gooseDialect() string
	migrationsDir() string
	placeholder(n int) string
	txOptions() *sql.TxOptions
	lock(ctx context.Context, q querier, keys []string) error
	// translate maps a driver error on a write of schedule id to an engine
	// error, or returns err unchanged.
	translate(err error, id scheduling.ScheduleID) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORE
// =============================================================================

// Store implements scheduling.TxStore.
type Store struct {
	*conn
	db *sql.DB
}

var _ scheduling.TxStore = (*Store)(nil)

// Open connects with the given driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, "sqlite3":
		return OpenSQLite(dsn)
	case DriverPostgres, "pgx":
		return OpenPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

func newStore(db *sql.DB, d dialect) (*Store, error) {
	if err := migrate(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{conn: &conn{q: db, d: d}, db: db}, nil
}

// gooseMu guards goose's package-level dialect and base FS.
var gooseMu sync.Mutex

func migrate(db *sql.DB, d dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(d.gooseDialect()); err != nil {
		return err
	}
	return goose.Up(db, d.migrationsDir())
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns "sqlite" or "postgres".
func (s *Store) Dialect() string { return s.d.name() }

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(scheduling.Store) error) error {
	tx, err := s.db.BeginTx(ctx, s.d.txOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&conn{q: tx, d: s.d, inTx: true}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertSchedules runs in its own transaction when called outside WithTx.
func (s *Store) InsertSchedules(ctx context.Context, rows []scheduling.Schedule) error {
	return s.WithTx(ctx, func(st scheduling.Store) error {
		return st.InsertSchedules(ctx, rows)
	})
}

// AppendEvents runs in its own transaction when called outside WithTx.
func (s *Store) AppendEvents(ctx context.Context, events []scheduling.Event) error {
	return s.WithTx(ctx, func(st scheduling.Store) error {
		return st.AppendEvents(ctx, events)
	})
}

// =============================================================================
// CONN - Queries shared by Store and transactions
// =============================================================================

type conn struct {
	q    querier
	d    dialect
	inTx bool
}

func (c *conn) rebind(query string) string {
	if c.d.placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(c.d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// LockResources takes transaction-scoped locks; a no-op outside WithTx.
func (c *conn) LockResources(ctx context.Context, keys []string) error {
	if !c.inTx || len(keys) == 0 {
		return nil
	}
	return c.d.lock(ctx, c.q, keys)
}

// =============================================================================
// HELPERS
// =============================================================================

// inList returns "?, ?, ?" for n values.
func inList(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *scheduling.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return nullString(d.String())
}

func parseNullDate(ns sql.NullString) (*scheduling.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := scheduling.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
