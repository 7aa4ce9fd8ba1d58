/*
lifecycle.go - Session Lifecycle State Machine

PURPOSE:
  Governs Session.Status and keeps the session's counters derived from its
  schedules. Every status change goes through Apply, which consults the
  transition table; every counter change goes through Recompute.

STATES:
  TBC -> assigned -> active -> completed
    \________\_________\-----> cancelled

  TBC:       course, teacher or class option still unresolved
  assigned:  resolved; schedules may be generated
  active:    at least one batch committed
  completed: entitlement consumed, or closed explicitly (terminal)
  cancelled: operator cancelled (terminal)

AUTO-COMPLETION:
  fixed-12 and camp-N sessions take attendance_completed once completedCount
  reaches the required total. package-open sessions only complete through
  the explicit complete event.

SEE ALSO:
  - engine.go: Fires the events
  - coordinator.go: Fires batch_committed
*/
package scheduling

// =============================================================================
// EVENTS
// =============================================================================

type LifecycleEvent string

const (
	OnAssign              LifecycleEvent = "assign"
	OnBatchCommitted      LifecycleEvent = "batch_committed"
	OnAttendanceCompleted LifecycleEvent = "attendance_completed"
	OnComplete            LifecycleEvent = "complete"
	OnCancel              LifecycleEvent = "cancel"
	OnExtend              LifecycleEvent = "extend"

	// Not status edges; used when rejecting flag and schedule updates.
	OnInvoice        LifecycleEvent = "invoice"
	OnPayment        LifecycleEvent = "payment"
	OnScheduleUpdate LifecycleEvent = "update_schedule"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  SessionStatus
	To    SessionStatus
	Event LifecycleEvent
}

var transitionsTable = []Transition{
	// Assignment
	{From: StatusTBC, To: StatusAssigned, Event: OnAssign},
	{From: StatusAssigned, To: StatusAssigned, Event: OnAssign},
	{From: StatusActive, To: StatusActive, Event: OnAssign},

	// Scheduling
	{From: StatusAssigned, To: StatusActive, Event: OnBatchCommitted},
	{From: StatusActive, To: StatusActive, Event: OnBatchCommitted},

	// Completion
	{From: StatusActive, To: StatusCompleted, Event: OnAttendanceCompleted},
	{From: StatusActive, To: StatusCompleted, Event: OnComplete},

	// Cancellation
	{From: StatusTBC, To: StatusCancelled, Event: OnCancel},
	{From: StatusAssigned, To: StatusCancelled, Event: OnCancel},
	{From: StatusActive, To: StatusCancelled, Event: OnCancel},

	// Course-plus extension
	{From: StatusAssigned, To: StatusAssigned, Event: OnExtend},
	{From: StatusActive, To: StatusActive, Event: OnExtend},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from SessionStatus, ev LifecycleEvent) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the table.
func Transitions() []Transition {
	return append([]Transition(nil), transitionsTable...)
}

// Apply moves s along ev or returns *InvalidStateTransitionError.
func Apply(s *Session, ev LifecycleEvent) (Transition, error) {
	tr, ok := TransitionFor(s.Status, ev)
	if !ok {
		return Transition{}, &InvalidStateTransitionError{SessionID: s.ID, From: s.Status, Event: ev}
	}
	s.Status = tr.To
	return tr, nil
}

func rejectTransition(s Session, ev LifecycleEvent, reason string) error {
	return &InvalidStateTransitionError{SessionID: s.ID, From: s.Status, Event: ev, Reason: reason}
}

// =============================================================================
// DERIVED STATE
// =============================================================================

// Recompute derives the session counters from its schedules. It is the only
// code that writes CompletedCount, ScheduledCount and ClassCancel.
func Recompute(s *Session, schedules []Schedule) {
	var completed, scheduled, cancelled int
	for _, sc := range schedules {
		switch sc.Attendance {
		case AttendancePresent:
			completed++
		case AttendanceCancelled:
			cancelled++
		default:
			scheduled++
		}
	}
	s.CompletedCount = completed
	s.ScheduledCount = scheduled
	s.ClassCancel = cancelled
}

// EntitlementConsumed reports whether attendance alone completes s.
func EntitlementConsumed(s Session) bool {
	required := s.RequiredTotal()
	return s.Status == StatusActive && required > 0 && s.CompletedCount >= required
}

// ActiveCount returns the number of non-cancelled schedules.
func ActiveCount(schedules []Schedule) int {
	n := 0
	for _, s := range schedules {
		if s.Active() {
			n++
		}
	}
	return n
}
