/*
Package scheduling provides the class scheduling and conflict resolution engine.

PURPOSE:
  Turns a purchased class option (fixed 12-session course, N-day camp, open
  package) plus a set of chosen dates, times, a teacher and a room into a
  validated, conflict-free batch of Schedule records, and keeps the owning
  Session's lifecycle consistent with the outcomes of those schedules.

KEY CONCEPTS IN THIS FILE (types.go):
  - ClassOption: Purchasable policy (mode, fee, class limit)
  - Session:     One student's enrollment under a class option
  - Schedule:    One concrete dated class occurrence
  - Slot:        A (date, start, end) triple proposed by an operator
  - Proposal:    A slot plus the teacher, student and room it would occupy

COMPONENTS (leaves first):
  rules.go:       Validation Rules (business hours, time range, past date)
  policy.go:      Class Option Policy (required date counts)
  generator.go:   Schedule Row Generator (deterministic draft rows)
  conflict.go:    Conflict Detector (teacher / room / student overlaps)
  coordinator.go: Bulk Commit Coordinator (validate, check, commit)
  lifecycle.go:   Session Lifecycle State Machine
  engine.go:      Engine facade exposing the external operations

DESIGN PRINCIPLES:
  1. Pure pre-checks: validation, policy and conflict checks never write
  2. Atomic batches: a batch is fully committed or not at all
  3. Single derived-state path: session counters are only ever recomputed
     from the session's schedules (see Recompute)
  4. Injected clock: "today" is never read from time.Now() inline

SEE ALSO:
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package scheduling

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type TeacherID string
type CourseID string
type SessionID string
type ScheduleID string
type ClassOptionID string
type RoomID string

// =============================================================================
// CLASS OPTION - Purchasable entitlement policy
// =============================================================================

type ClassMode string

const (
	ModeFixed12     ClassMode = "fixed-12"
	ModeCamp2       ClassMode = "camp-2"
	ModeCamp5       ClassMode = "camp-5"
	ModePackageOpen ClassMode = "package-open"
)

// Valid reports whether the mode is one the engine knows how to schedule.
func (m ClassMode) Valid() bool {
	switch m {
	case ModeFixed12, ModeCamp2, ModeCamp5, ModePackageOpen:
		return true
	}
	return false
}

// CampDays returns N for camp-N modes and 0 otherwise.
func (m ClassMode) CampDays() int {
	switch m {
	case ModeCamp2:
		return 2
	case ModeCamp5:
		return 5
	}
	return 0
}

// IsCamp reports whether the mode requires an exact date count per batch.
func (m ClassMode) IsCamp() bool { return m.CampDays() > 0 }

// DefaultClassLimit is the entitlement a mode carries when the class option
// does not set one explicitly.
func (m ClassMode) DefaultClassLimit() int {
	switch m {
	case ModeFixed12:
		return 12
	case ModeCamp2, ModeCamp5:
		return m.CampDays()
	}
	return 0
}

// ClassOption describes how many sessions a purchase entitles a student to
// and in what cadence. Immutable once referenced by a Session; deactivated
// by setting EffectiveEndDate, never deleted.
type ClassOption struct {
	ID                 ClassOptionID
	Name               string
	Mode               ClassMode
	TuitionFee         decimal.Decimal
	ClassLimit         int // 0 = unlimited (packages)
	EffectiveStartDate Date
	EffectiveEndDate   *Date
	CreatedAt          time.Time
}

// Limit returns the class limit, falling back to the mode default.
func (o ClassOption) Limit() int {
	if o.ClassLimit > 0 {
		return o.ClassLimit
	}
	return o.Mode.DefaultClassLimit()
}

// ActiveOn reports whether the option can be sold / assigned on the given day.
func (o ClassOption) ActiveOn(d Date) bool {
	if !o.EffectiveStartDate.IsZero() && d.Before(o.EffectiveStartDate) {
		return false
	}
	if o.EffectiveEndDate != nil && d.After(*o.EffectiveEndDate) {
		return false
	}
	return true
}

// =============================================================================
// SESSION - Enrollment instance
// =============================================================================

type SessionStatus string

const (
	StatusTBC       SessionStatus = "TBC"
	StatusAssigned  SessionStatus = "assigned"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions leave this status.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Session links a student to a course, teacher and class option.
// Counters (CompletedCount, ScheduledCount, ClassCancel) are derived from the
// session's schedules by Recompute and must not be edited elsewhere.
type Session struct {
	ID             SessionID
	StudentID      StudentID
	CourseID       CourseID
	TeacherID      TeacherID
	ClassOptionID  ClassOptionID
	Mode           ClassMode
	ClassLimit     int
	CompletedCount int // schedules marked present
	ScheduledCount int // non-cancelled schedules not yet marked present
	ClassCancel    int // cancelled schedules
	Payment        PaymentStatus
	Status         SessionStatus
	InvoiceDone    bool
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RequiredTotal returns the number of attended classes that completes the
// session automatically, or 0 when the session never auto-completes.
func (s Session) RequiredTotal() int {
	switch {
	case s.Mode == ModePackageOpen:
		return 0
	case s.ClassLimit > 0:
		return s.ClassLimit
	default:
		return s.Mode.DefaultClassLimit()
	}
}

// Unresolved reports whether course, teacher or class option is still missing.
func (s Session) Unresolved() bool {
	return s.CourseID == "" || s.TeacherID == "" || s.ClassOptionID == ""
}

// =============================================================================
// SCHEDULE - Concrete class occurrence
// =============================================================================

type Attendance string

const (
	AttendanceScheduled Attendance = "scheduled"
	AttendancePresent   Attendance = "present"
	AttendanceAbsent    Attendance = "absent"
	AttendanceCancelled Attendance = "cancelled"
)

func (a Attendance) Valid() bool {
	switch a {
	case AttendanceScheduled, AttendancePresent, AttendanceAbsent, AttendanceCancelled:
		return true
	}
	return false
}

type Schedule struct {
	ID           ScheduleID
	SessionID    SessionID
	StudentID    StudentID
	TeacherID    TeacherID
	CourseID     CourseID
	Room         RoomID
	Date         Date
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	ClassNumber  int
	Attendance   Attendance
	Feedback     string
	FeedbackDate *Date
	Warning      string
	Nickname     string
	Remark       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Slot returns the schedule's time allocation.
func (s Schedule) Slot() Slot {
	return Slot{Date: s.Date, Start: s.StartTime, End: s.EndTime}
}

// Active reports whether the schedule still occupies its teacher, room and
// student. Cancelled schedules are kept for audit but free their footprint.
func (s Schedule) Active() bool { return s.Attendance != AttendanceCancelled }

// =============================================================================
// SLOT / PROPOSAL - Inputs to validation and conflict detection
// =============================================================================

// Slot is a half-open interval [Start, End) on Date.
type Slot struct {
	Date  Date
	Start TimeOfDay
	End   TimeOfDay
}

func (s Slot) String() string {
	return s.Date.String() + " " + s.Start.String() + "-" + s.End.String()
}

// Proposal is a slot together with the resources it would occupy.
type Proposal struct {
	Slot      Slot
	TeacherID TeacherID
	StudentID StudentID
	Room      RoomID
}

// =============================================================================
// EVENTS - Outbox of engine changes
// =============================================================================

type EventAction string

const (
	EventSchedulesCreated EventAction = "schedules_created"
	EventScheduleUpdated  EventAction = "schedule_updated"
	EventSessionCreated   EventAction = "session_created"
	EventSessionAssigned  EventAction = "session_assigned"
	EventSessionActivated EventAction = "session_activated"
	EventSessionCompleted EventAction = "session_completed"
	EventSessionCancelled EventAction = "session_cancelled"
	EventSessionExtended  EventAction = "session_extended"
	EventSessionInvoiced  EventAction = "session_invoiced"
	EventSessionPaid      EventAction = "session_paid"
)

// Event records a committed change. Written in the same atomic unit as the
// change, read by invoicing and notification dispatch.
type Event struct {
	ID          string
	At          time.Time
	Action      EventAction
	SessionID   SessionID
	ScheduleIDs []ScheduleID
	Payload     map[string]string
}

type EventFilter struct {
	SessionID *SessionID
	Actions   []EventAction
	Limit     int
}
