/*
store.go - Persistence interfaces for sessions, schedules and class options

PURPOSE:
  Defines the boundary between the engine and the database. The engine reads
  the persisted schedule set for conflict scans and writes whole batches
  inside a single transaction.

KEY INTERFACES:
  ScheduleReader:    Active-schedule scans for conflict detection
  ClassOptionLookup: Read-only class option access
  Store:             Everything the engine reads and writes
  TxStore:           Store plus WithTx for atomic multi-table writes

ATOMIC BATCHES:
  The coordinator performs check-then-insert inside WithTx. Implementations
  must make the callback serializable with respect to other callbacks that
  touch the same resource keys:
  - SQLite:     single connection + store mutex
  - PostgreSQL: READ COMMITTED + pg_advisory_xact_lock(LockResources)
  - Memory:     store mutex + snapshot/rollback

INTEGRITY BACKSTOP:
  Stores enforce uniqueness of (teacher_id, date, start_time),
  (room, date, start_time) and (student_id, date, start_time) over
  non-cancelled schedules, returning *UniqueViolationError. The coordinator
  turns that into the same *ConflictError a pre-check would have produced.

IMPLEMENTATIONS:
  - scheduling/store/memory.go: In-memory for tests and dev
  - store/sqldb:                SQLite and PostgreSQL

SEE ALSO:
  - coordinator.go: Main consumer
*/
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrStale is returned when a session was modified since it was read.
var ErrStale = errors.New("session modified concurrently")

// =============================================================================
// FILTERS
// =============================================================================

// ScheduleFilter selects active schedules dated on any of Dates that use any
// of the listed teachers, rooms or students. Empty resource lists match every
// schedule on those dates.
type ScheduleFilter struct {
	Dates      []Date
	TeacherIDs []TeacherID
	Rooms      []RoomID
	StudentIDs []StudentID
}

// Matches reports whether an active schedule falls under the filter.
func (f ScheduleFilter) Matches(s Schedule) bool {
	if !s.Active() {
		return false
	}
	if len(f.Dates) > 0 && !containsDate(f.Dates, s.Date) {
		return false
	}
	if len(f.TeacherIDs) == 0 && len(f.Rooms) == 0 && len(f.StudentIDs) == 0 {
		return true
	}
	for _, t := range f.TeacherIDs {
		if s.TeacherID == t {
			return true
		}
	}
	for _, r := range f.Rooms {
		if s.Room == r {
			return true
		}
	}
	for _, st := range f.StudentIDs {
		if s.StudentID == st {
			return true
		}
	}
	return false
}

func containsDate(ds []Date, d Date) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

type ScheduleReader interface {
	// ListActiveSchedules returns non-cancelled schedules matching f,
	// ordered by date, start time and ID.
	ListActiveSchedules(ctx context.Context, f ScheduleFilter) ([]Schedule, error)
}

type ClassOptionLookup interface {
	// GetClassOption returns ErrClassOptionNotFound for unknown IDs.
	GetClassOption(ctx context.Context, id ClassOptionID) (*ClassOption, error)
}

type Store interface {
	ScheduleReader
	ClassOptionLookup

	GetSchedule(ctx context.Context, id ScheduleID) (*Schedule, error)
	// ListSessionSchedules returns every schedule of a session, cancelled
	// included, ordered by date, start time and ID.
	ListSessionSchedules(ctx context.Context, sessionID SessionID) ([]Schedule, error)
	InsertSchedules(ctx context.Context, schedules []Schedule) error
	UpdateSchedule(ctx context.Context, s Schedule) error

	GetSession(ctx context.Context, id SessionID) (*Session, error)
	CreateSession(ctx context.Context, s Session) error
	// UpdateSession writes s if the stored version equals s.Version and
	// stores it with Version+1. Returns ErrStale otherwise.
	UpdateSession(ctx context.Context, s Session) error

	SaveClassOption(ctx context.Context, o ClassOption) error
	ListClassOptions(ctx context.Context) ([]ClassOption, error)
	IsClassOptionReferenced(ctx context.Context, id ClassOptionID) (bool, error)

	AppendEvents(ctx context.Context, events []Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)

	// LockResources serializes transactions touching the same keys until
	// the surrounding transaction ends. A no-op outside WithTx or where the
	// store already serializes writers.
	LockResources(ctx context.Context, keys []string) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// STORE ERRORS
// =============================================================================

// UniqueViolationError is returned when an insert or update would give two
// active schedules the same (resource, date, start_time).
type UniqueViolationError struct {
	Dimension  Dimension
	ScheduleID ScheduleID // the row being written, when known
	Constraint string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s (%s) writing schedule %s", e.Dimension, e.Constraint, e.ScheduleID)
}

func (e *UniqueViolationError) Unwrap() error { return ErrDuplicate }

// =============================================================================
// RESOURCE KEYS
// =============================================================================

// ResourceKeys returns the sorted, de-duplicated lock keys for proposals:
// one per (dimension, resource, date).
func ResourceKeys(proposals []Proposal) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, p := range proposals {
		for _, k := range keysOf(p.TeacherID, p.StudentID, p.Room) {
			add(string(k.dim) + ":" + k.id + ":" + p.Slot.Date.String())
		}
	}
	sort.Strings(keys)
	return keys
}

// SessionKey is the lock key guarding a session's derived state.
func SessionKey(id SessionID) string { return "session:" + string(id) }

// =============================================================================
// COLLABORATORS
// =============================================================================

// Notifier receives committed events after the transaction ends. Calls are
// fire-and-forget: the engine never waits on or inspects the outcome.
type Notifier interface {
	Notify(ctx context.Context, events []Event)
}

// Observer receives engine outcomes for metrics.
type Observer interface {
	BatchCommitted(created int, elapsed time.Duration)
	BatchRejected(kind Kind)
	ConflictsFound(conflicts []ConflictDetail)
	SessionTransition(from, to SessionStatus)
}

type nopObserver struct{}

func (nopObserver) BatchCommitted(int, time.Duration) {}
func (nopObserver) BatchRejected(Kind) {}
func (nopObserver) ConflictsFound([]ConflictDetail) {}
func (nopObserver) SessionTransition(_, _ SessionStatus) {}
