package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/kdl/schedule-engine/migrations"
	"github.com/kdl/schedule-engine/scheduling"
)

// SQLSTATE codes the dialect inspects.
const (
	pgUniqueViolation = "23505"
)

// OpenPostgres connects through the pgx database/sql driver and applies
// migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return newStore(db, postgresDialect{})
}

type postgresDialect struct{}

func (postgresDialect) name() string { return DriverPostgres }
func (postgresDialect) gooseDialect() string { return "postgres" }
func (postgresDialect) migrationsDir() string { return migrations.DirPostgres }
func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Statements after the advisory locks must see rows committed by the
// previous holder, so each needs a fresh READ COMMITTED snapshot.
func (postgresDialect) txOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

// lock takes a transaction-scoped advisory lock per key. Keys are hashed to
// bigint and acquired in ascending order so two batches sharing resources
// always queue in the same order.
func (postgresDialect) lock(ctx context.Context, q querier, keys []string) error {
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, advisoryKey(k))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	_, err := q.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(k) FROM unnest($1::bigint[]) AS t(k)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to lock %d resources: %w", len(keys), err)
	}
	return nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// translate maps 23505 on the slot indexes to a UniqueViolationError and on
// a primary key to ErrDuplicate. Anything else, deadlocks (40P01) included,
// is left alone and surfaces as a retryable commit error.
func (postgresDialect) translate(err error, id scheduling.ScheduleID) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	if strings.HasSuffix(pgErr.ConstraintName, "_pkey") {
		return fmt.Errorf("%w: %v", scheduling.ErrDuplicate, err)
	}
	if dim, ok := dimensionForConstraint(pgErr.ConstraintName); ok {
		return &scheduling.UniqueViolationError{Dimension: dim, ScheduleID: id, Constraint: pgErr.ConstraintName}
	}
	return err
}
