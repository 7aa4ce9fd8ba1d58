// Package store provides in-memory scheduling.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	schedules map[scheduling.ScheduleID]scheduling.Schedule
	sessions  map[scheduling.SessionID]scheduling.Session
	options   map[scheduling.ClassOptionID]scheduling.ClassOption
	events    []scheduling.Event
}

func NewMemory() *Memory {
	return &Memory{
		schedules: make(map[scheduling.ScheduleID]scheduling.Schedule),
		sessions:  make(map[scheduling.SessionID]scheduling.Session),
		options:   make(map[scheduling.ClassOptionID]scheduling.ClassOption),
	}
}

func (m *Memory) ListActiveSchedules(_ context.Context, f scheduling.ScheduleFilter) ([]scheduling.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLocked(f), nil
}

func (m *Memory) GetSchedule(_ context.Context, id scheduling.ScheduleID) (*scheduling.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getScheduleLocked(id)
}

func (m *Memory) ListSessionSchedules(_ context.Context, id scheduling.SessionID) ([]scheduling.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionSchedulesLocked(id), nil
}

// InsertSchedules adds all rows or none.
func (m *Memory) InsertSchedules(_ context.Context, rows []scheduling.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rows)
}

func (m *Memory) UpdateSchedule(_ context.Context, s scheduling.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateScheduleLocked(s)
}

func (m *Memory) GetSession(_ context.Context, id scheduling.SessionID) (*scheduling.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSessionLocked(id)
}

func (m *Memory) CreateSession(_ context.Context, s scheduling.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSessionLocked(s)
}

func (m *Memory) UpdateSession(_ context.Context, s scheduling.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSessionLocked(s)
}

func (m *Memory) GetClassOption(_ context.Context, id scheduling.ClassOptionID) (*scheduling.ClassOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOptionLocked(id)
}

func (m *Memory) SaveClassOption(_ context.Context, o scheduling.ClassOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[o.ID] = o
	return nil
}

func (m *Memory) ListClassOptions(_ context.Context) ([]scheduling.ClassOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listOptionsLocked(), nil
}

func (m *Memory) IsClassOptionReferenced(_ context.Context, id scheduling.ClassOptionID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.referencedLocked(id), nil
}

func (m *Memory) AppendEvents(_ context.Context, events []scheduling.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, f scheduling.EventFilter) ([]scheduling.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEventsLocked(f), nil
}

// LockResources is a no-op: TxMemory holds the store mutex for the whole
// transaction.
func (m *Memory) LockResources(context.Context, []string) error { return nil }

// ScheduleCount returns the number of stored schedules, cancelled included.
func (m *Memory) ScheduleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.schedules)
}

// =============================================================================
// LOCKED HELPERS - Caller holds mu
// =============================================================================

func (m *Memory) listActiveLocked(f scheduling.ScheduleFilter) []scheduling.Schedule {
	var out []scheduling.Schedule
	for _, s := range m.schedules {
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	sortSchedules(out)
	return out
}

func (m *Memory) getScheduleLocked(id scheduling.ScheduleID) (*scheduling.Schedule, error) {
	s, ok := m.schedules[id]
	if !ok {
		return nil, scheduling.ErrScheduleNotFound
	}
	return &s, nil
}

func (m *Memory) sessionSchedulesLocked(id scheduling.SessionID) []scheduling.Schedule {
	var out []scheduling.Schedule
	for _, s := range m.schedules {
		if s.SessionID == id {
			out = append(out, s)
		}
	}
	sortSchedules(out)
	return out
}

func (m *Memory) insertLocked(rows []scheduling.Schedule) error {
	// Check all rows first (atomic check)
	for i, r := range rows {
		if _, exists := m.schedules[r.ID]; exists {
			return scheduling.ErrDuplicate
		}
		for _, prev := range rows[:i] {
			if prev.ID == r.ID {
				return scheduling.ErrDuplicate
			}
		}
		if err := m.checkUniqueLocked(r, rows[:i]); err != nil {
			return err
		}
	}

	// Insert all (atomic write)
	for _, r := range rows {
		m.schedules[r.ID] = r
	}
	return nil
}

func (m *Memory) updateScheduleLocked(s scheduling.Schedule) error {
	if _, ok := m.schedules[s.ID]; !ok {
		return scheduling.ErrScheduleNotFound
	}
	if err := m.checkUniqueLocked(s, nil); err != nil {
		return err
	}
	m.schedules[s.ID] = s
	return nil
}

// checkUniqueLocked mirrors the partial unique indexes of the SQL stores:
// (resource, date, start_time) among non-cancelled rows.
func (m *Memory) checkUniqueLocked(r scheduling.Schedule, pending []scheduling.Schedule) error {
	if !r.Active() {
		return nil
	}
	clash := func(o scheduling.Schedule) error {
		if o.ID == r.ID || !o.Active() || o.Date != r.Date || o.StartTime != r.StartTime {
			return nil
		}
		switch {
		case r.TeacherID != "" && o.TeacherID == r.TeacherID:
			return &scheduling.UniqueViolationError{Dimension: scheduling.DimensionTeacher, ScheduleID: r.ID, Constraint: "uq_schedules_teacher_slot"}
		case r.Room != "" && o.Room == r.Room:
			return &scheduling.UniqueViolationError{Dimension: scheduling.DimensionRoom, ScheduleID: r.ID, Constraint: "uq_schedules_room_slot"}
		case r.StudentID != "" && o.StudentID == r.StudentID:
			return &scheduling.UniqueViolationError{Dimension: scheduling.DimensionStudent, ScheduleID: r.ID, Constraint: "uq_schedules_student_slot"}
		}
		return nil
	}
	for _, o := range m.schedules {
		if err := clash(o); err != nil {
			return err
		}
	}
	for _, o := range pending {
		if err := clash(o); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) getSessionLocked(id scheduling.SessionID) (*scheduling.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, scheduling.ErrSessionNotFound
	}
	return &s, nil
}

func (m *Memory) createSessionLocked(s scheduling.Session) error {
	if _, exists := m.sessions[s.ID]; exists {
		return scheduling.ErrDuplicate
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) updateSessionLocked(s scheduling.Session) error {
	cur, ok := m.sessions[s.ID]
	if !ok {
		return scheduling.ErrSessionNotFound
	}
	if cur.Version != s.Version {
		return scheduling.ErrStale
	}
	s.Version++
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) getOptionLocked(id scheduling.ClassOptionID) (*scheduling.ClassOption, error) {
	o, ok := m.options[id]
	if !ok {
		return nil, scheduling.ErrClassOptionNotFound
	}
	return &o, nil
}

func (m *Memory) listOptionsLocked() []scheduling.ClassOption {
	out := make([]scheduling.ClassOption, 0, len(m.options))
	for _, o := range m.options {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) referencedLocked(id scheduling.ClassOptionID) bool {
	for _, s := range m.sessions {
		if s.ClassOptionID == id {
			return true
		}
	}
	return false
}

func (m *Memory) listEventsLocked(f scheduling.EventFilter) []scheduling.Event {
	var out []scheduling.Event
	for _, e := range m.events {
		if f.SessionID != nil && e.SessionID != *f.SessionID {
			continue
		}
		if len(f.Actions) > 0 && !hasAction(f.Actions, e.Action) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func hasAction(actions []scheduling.EventAction, a scheduling.EventAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

func sortSchedules(s []scheduling.Schedule) {
	sort.Slice(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(scheduling.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Snapshot current state
	snapshot := tm.snapshot()

	// Execute function
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		// Rollback
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	schedules map[scheduling.ScheduleID]scheduling.Schedule
	sessions  map[scheduling.SessionID]scheduling.Session
	options   map[scheduling.ClassOptionID]scheduling.ClassOption
	events    []scheduling.Event
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		schedules: make(map[scheduling.ScheduleID]scheduling.Schedule, len(tm.schedules)),
		sessions:  make(map[scheduling.SessionID]scheduling.Session, len(tm.sessions)),
		options:   make(map[scheduling.ClassOptionID]scheduling.ClassOption, len(tm.options)),
		events:    append([]scheduling.Event(nil), tm.events...),
	}
	for k, v := range tm.schedules {
		s.schedules[k] = v
	}
	for k, v := range tm.sessions {
		s.sessions[k] = v
	}
	for k, v := range tm.options {
		s.options[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.schedules = s.schedules
	tm.sessions = s.sessions
	tm.options = s.options
	tm.events = s.events
}

// txMemoryView runs Store calls against the parent without re-locking.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) ListActiveSchedules(_ context.Context, f scheduling.ScheduleFilter) ([]scheduling.Schedule, error) {
	return tv.parent.listActiveLocked(f), nil
}

func (tv *txMemoryView) GetSchedule(_ context.Context, id scheduling.ScheduleID) (*scheduling.Schedule, error) {
	return tv.parent.getScheduleLocked(id)
}

func (tv *txMemoryView) ListSessionSchedules(_ context.Context, id scheduling.SessionID) ([]scheduling.Schedule, error) {
	return tv.parent.sessionSchedulesLocked(id), nil
}

func (tv *txMemoryView) InsertSchedules(_ context.Context, rows []scheduling.Schedule) error {
	return tv.parent.insertLocked(rows)
}

func (tv *txMemoryView) UpdateSchedule(_ context.Context, s scheduling.Schedule) error {
	return tv.parent.updateScheduleLocked(s)
}

func (tv *txMemoryView) GetSession(_ context.Context, id scheduling.SessionID) (*scheduling.Session, error) {
	return tv.parent.getSessionLocked(id)
}

func (tv *txMemoryView) CreateSession(_ context.Context, s scheduling.Session) error {
	return tv.parent.createSessionLocked(s)
}

func (tv *txMemoryView) UpdateSession(_ context.Context, s scheduling.Session) error {
	return tv.parent.updateSessionLocked(s)
}

func (tv *txMemoryView) GetClassOption(_ context.Context, id scheduling.ClassOptionID) (*scheduling.ClassOption, error) {
	return tv.parent.getOptionLocked(id)
}

func (tv *txMemoryView) SaveClassOption(_ context.Context, o scheduling.ClassOption) error {
	tv.parent.options[o.ID] = o
	return nil
}

func (tv *txMemoryView) ListClassOptions(_ context.Context) ([]scheduling.ClassOption, error) {
	return tv.parent.listOptionsLocked(), nil
}

func (tv *txMemoryView) IsClassOptionReferenced(_ context.Context, id scheduling.ClassOptionID) (bool, error) {
	return tv.parent.referencedLocked(id), nil
}

func (tv *txMemoryView) AppendEvents(_ context.Context, events []scheduling.Event) error {
	tv.parent.events = append(tv.parent.events, events...)
	return nil
}

func (tv *txMemoryView) ListEvents(_ context.Context, f scheduling.EventFilter) ([]scheduling.Event, error) {
	return tv.parent.listEventsLocked(f), nil
}

func (tv *txMemoryView) LockResources(context.Context, []string) error { return nil }
