/*
engine.go - Engine facade: the operations the back office calls

PURPOSE:
  Single entry point for conflict checks, bulk scheduling, schedule edits,
  session lifecycle actions and class option management. Every write runs in
  one store transaction, appends its events in that same transaction, and
  hands the committed events to the Notifier afterwards.

OPERATIONS:
  Conflicts:      CheckScheduleConflict, CheckScheduleConflicts, ValidateSlots
  Scheduling:     CreateBulkSchedules, PreviewBulkSchedules, UpdateSchedule
  Lifecycle:      CreateSession, AssignCourseToSession, CompleteSession,
                  CancelSession, ExtendSession, MarkInvoiced, RecordPayment
  Class options:  SaveClassOption, GetClassOption, ListClassOptions,
                  DeactivateClassOption
  Reads:          GetSession, GetSchedule, ListSessionSchedules, ListEvents

ERRORS:
  Classified errors (validation, policy_count, conflict, not_found,
  invalid_state_transition) pass through unchanged. Anything else raised
  inside a transaction is wrapped in *CommitError.

USAGE:
  eng := scheduling.NewEngine(store, scheduling.NewRules(hours, clock, loc),
      scheduling.WithLogger(logger),
      scheduling.WithObserver(metrics.Observer{}),
  )
  res, err := eng.CreateBulkSchedules(ctx, scheduling.BatchRequest{...})
*/
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Engine struct {
	store       TxStore
	rules       Rules
	detector    *Detector
	coordinator *Coordinator
	logger      *zap.Logger
	observer    Observer
	notifier    Notifier
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithNotifier sets the fire-and-forget receiver of committed events.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func NewEngine(store TxStore, rules Rules, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		rules:    rules,
		detector: NewDetector(store),
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.coordinator = NewCoordinator(store, rules, e.logger)
	return e
}

// Rules returns the rule set the engine enforces.
func (e *Engine) Rules() Rules { return e.rules }

func (e *Engine) now() time.Time { return e.rules.clock().Now().UTC() }

// =============================================================================
// CONFLICT CHECKS
// =============================================================================

// ValidateSlots runs the validation rules without touching the store.
func (e *Engine) ValidateSlots(slots []Slot) error {
	return e.rules.ValidateBatch(slots)
}

// CheckScheduleConflict returns nil when the proposal is clear.
func (e *Engine) CheckScheduleConflict(ctx context.Context, p Proposal, exclude ...ScheduleID) (*ConflictDetail, error) {
	d, err := e.detector.CheckConflict(ctx, p, exclude...)
	if err != nil {
		return nil, err
	}
	if d != nil {
		e.observer.ConflictsFound([]ConflictDetail{*d})
	}
	return d, nil
}

// CheckScheduleConflicts checks a batch against persisted state and itself.
func (e *Engine) CheckScheduleConflicts(ctx context.Context, proposals []Proposal, exclude ...ScheduleID) ([]ConflictDetail, error) {
	ds, err := e.detector.CheckConflicts(ctx, proposals, exclude...)
	if err != nil {
		return nil, err
	}
	if len(ds) > 0 {
		e.observer.ConflictsFound(ds)
	}
	return ds, nil
}

// =============================================================================
// BULK SCHEDULING
// =============================================================================

func (e *Engine) CreateBulkSchedules(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	start := time.Now()
	res, err := e.coordinator.Commit(ctx, req)
	if err != nil {
		e.observer.BatchRejected(KindOf(err))
		var ce *ConflictError
		if errors.As(err, &ce) {
			e.observer.ConflictsFound(ce.Conflicts)
		}
		return nil, err
	}

	e.observer.BatchCommitted(res.Created, time.Since(start))
	for _, ev := range res.Events {
		if ev.Action == EventSessionActivated {
			e.observer.SessionTransition(SessionStatus(ev.Payload["from"]), SessionStatus(ev.Payload["to"]))
		}
	}
	e.notify(ctx, res.Events)
	return res, nil
}

func (e *Engine) PreviewBulkSchedules(ctx context.Context, req BatchRequest) (*Preview, error) {
	return e.coordinator.Preview(ctx, req)
}

// =============================================================================
// SCHEDULE UPDATES
// =============================================================================

// SchedulePatch lists the fields to change; nil fields are left alone.
type SchedulePatch struct {
	Date         *Date
	StartTime    *TimeOfDay
	EndTime      *TimeOfDay
	Room         *RoomID
	TeacherID    *TeacherID
	Attendance   *Attendance
	Feedback     *string
	FeedbackDate *Date
	Nickname     *string
	Remark       *string
}

// Reschedules reports whether the patch moves the schedule's footprint.
func (p SchedulePatch) Reschedules() bool {
	return p.Date != nil || p.StartTime != nil || p.EndTime != nil || p.Room != nil || p.TeacherID != nil
}

// Empty reports whether the patch changes nothing.
func (p SchedulePatch) Empty() bool {
	return !p.Reschedules() && p.Attendance == nil && p.Feedback == nil &&
		p.FeedbackDate == nil && p.Nickname == nil && p.Remark == nil
}

// UpdateSchedule applies patch to a schedule. Moves are re-validated and
// conflict-checked excluding the schedule itself; attendance changes
// recompute the session and may complete it. Reinstating a cancelled
// schedule must fit the class option's total.
func (e *Engine) UpdateSchedule(ctx context.Context, id ScheduleID, patch SchedulePatch) (*Schedule, error) {
	if patch.Empty() {
		return e.GetSchedule(ctx, id)
	}
	if patch.Attendance != nil && !patch.Attendance.Valid() {
		return nil, fmt.Errorf("%w: unknown attendance %q", ErrValidation, *patch.Attendance)
	}

	var (
		out     Schedule
		events  []Event
		from    SessionStatus
		to      SessionStatus
		changed []string
	)
	err := e.store.WithTx(ctx, func(tx Store) error {
		cur, err := tx.GetSchedule(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.LockResources(ctx, []string{SessionKey(cur.SessionID)}); err != nil {
			return err
		}
		session, err := tx.GetSession(ctx, cur.SessionID)
		if err != nil {
			return err
		}
		from = session.Status

		if patch.Reschedules() || patch.Attendance != nil {
			if session.Status.Terminal() {
				return rejectTransition(*session, OnScheduleUpdate, "session is "+string(session.Status))
			}
			if !cur.Active() && patch.Reschedules() && patch.Attendance == nil {
				return rejectTransition(*session, OnScheduleUpdate, "schedule is cancelled")
			}
		}

		updated := *cur
		changed = applyPatch(&updated, patch, e.rules.Today())
		if patch.Reschedules() {
			if err := e.rules.ValidateBatch([]Slot{updated.Slot()}); err != nil {
				return err
			}
		}

		if !cur.Active() && updated.Active() {
			rows, err := tx.ListSessionSchedules(ctx, session.ID)
			if err != nil {
				return err
			}
			if err := CheckReinstate(session.Mode, session.ClassLimit, ActiveCount(rows)).Err(); err != nil {
				return err
			}
		}

		if updated.Active() && (patch.Reschedules() || !cur.Active()) {
			p := Proposal{Slot: updated.Slot(), TeacherID: updated.TeacherID, StudentID: updated.StudentID, Room: updated.Room}
			if err := tx.LockResources(ctx, ResourceKeys([]Proposal{p})); err != nil {
				return err
			}
			persisted, err := tx.ListActiveSchedules(ctx, FilterFor([]Proposal{p}))
			if err != nil {
				return err
			}
			if cs := DetectConflicts([]Proposal{p}, persisted, map[ScheduleID]bool{id: true}); len(cs) > 0 {
				return &ConflictError{Conflicts: cs}
			}
		}

		now := e.now()
		updated.UpdatedAt = now
		if err := tx.UpdateSchedule(ctx, updated); err != nil {
			return translateUniqueViolation(err, []Draft{{Schedule: updated}})
		}

		all, err := tx.ListSessionSchedules(ctx, session.ID)
		if err != nil {
			return err
		}
		Recompute(session, all)
		events = append(events, newEvent(EventScheduleUpdated, session.ID, now, []ScheduleID{id}, map[string]string{
			"fields":     strings.Join(changed, ","),
			"attendance": string(updated.Attendance),
		}))
		if EntitlementConsumed(*session) {
			if _, err := Apply(session, OnAttendanceCompleted); err != nil {
				return err
			}
			events = append(events, newEvent(EventSessionCompleted, session.ID, now, nil, map[string]string{
				"reason":    string(OnAttendanceCompleted),
				"completed": strconv.Itoa(session.CompletedCount),
			}))
		}
		to = session.Status
		session.UpdatedAt = now
		if err := tx.UpdateSession(ctx, *session); err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, events); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		err = asCommitError("update_schedule", err)
		e.logger.Info("schedule update rejected",
			zap.String("schedule_id", string(id)),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("schedule updated",
		zap.String("schedule_id", string(id)),
		zap.String("session_id", string(out.SessionID)),
		zap.Strings("fields", changed))
	if from != to {
		e.observer.SessionTransition(from, to)
	}
	e.notify(ctx, events)
	return &out, nil
}

func applyPatch(s *Schedule, p SchedulePatch, today Date) []string {
	var changed []string
	if p.Date != nil {
		s.Date = *p.Date
		changed = append(changed, "date")
	}
	if p.StartTime != nil {
		s.StartTime = *p.StartTime
		changed = append(changed, "start_time")
	}
	if p.EndTime != nil {
		s.EndTime = *p.EndTime
		changed = append(changed, "end_time")
	}
	if p.Room != nil {
		s.Room = *p.Room
		changed = append(changed, "room")
	}
	if p.TeacherID != nil {
		s.TeacherID = *p.TeacherID
		changed = append(changed, "teacher_id")
	}
	if p.Attendance != nil {
		s.Attendance = *p.Attendance
		changed = append(changed, "attendance")
	}
	if p.Feedback != nil {
		s.Feedback = *p.Feedback
		changed = append(changed, "feedback")
		if p.FeedbackDate == nil && s.FeedbackDate == nil {
			d := today
			s.FeedbackDate = &d
		}
	}
	if p.FeedbackDate != nil {
		d := *p.FeedbackDate
		s.FeedbackDate = &d
		changed = append(changed, "feedback_date")
	}
	if p.Nickname != nil {
		s.Nickname = *p.Nickname
		changed = append(changed, "nickname")
	}
	if p.Remark != nil {
		s.Remark = *p.Remark
		changed = append(changed, "remark")
	}
	return changed
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// NewSession is an enrolment. Course, teacher and class option may be left
// empty, in which case the session starts as TBC.
type NewSession struct {
	ID            SessionID
	StudentID     StudentID
	CourseID      CourseID
	TeacherID     TeacherID
	ClassOptionID ClassOptionID
}

// Assignment resolves a session's course, teacher and class option.
type Assignment struct {
	CourseID      CourseID
	TeacherID     TeacherID
	ClassOptionID ClassOptionID
}

func (e *Engine) CreateSession(ctx context.Context, in NewSession) (*Session, error) {
	if in.StudentID == "" {
		return nil, fmt.Errorf("%w: student_id is required", ErrValidation)
	}
	id := in.ID
	if id == "" {
		id = SessionID(uuid.NewString())
	}

	now := e.now()
	s := Session{
		ID:            id,
		StudentID:     in.StudentID,
		CourseID:      in.CourseID,
		TeacherID:     in.TeacherID,
		ClassOptionID: in.ClassOptionID,
		Payment:       PaymentUnpaid,
		Status:        StatusTBC,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var events []Event
	err := e.store.WithTx(ctx, func(tx Store) error {
		if in.ClassOptionID != "" {
			opt, err := e.activeOption(ctx, tx, in.ClassOptionID)
			if err != nil {
				return err
			}
			s.Mode = opt.Mode
			s.ClassLimit = opt.Limit()
		}
		if !s.Unresolved() {
			s.Status = StatusAssigned
		}
		if err := tx.CreateSession(ctx, s); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return fmt.Errorf("%w: session %s already exists", ErrValidation, id)
			}
			return err
		}
		events = []Event{newEvent(EventSessionCreated, s.ID, now, nil, map[string]string{
			"student_id": string(s.StudentID),
			"status":     string(s.Status),
		})}
		return tx.AppendEvents(ctx, events)
	})
	if err != nil {
		return nil, asCommitError("create_session", err)
	}
	e.logger.Info("session created", zap.String("session_id", string(s.ID)), zap.String("status", string(s.Status)))
	e.notify(ctx, events)
	return &s, nil
}

// AssignCourseToSession resolves course, teacher and class option. On an
// active session the new option must still cover the existing schedules.
func (e *Engine) AssignCourseToSession(ctx context.Context, id SessionID, a Assignment) (*Session, error) {
	if a.CourseID == "" || a.TeacherID == "" || a.ClassOptionID == "" {
		return nil, fmt.Errorf("%w: course_id, teacher_id and class_option_id are required", ErrValidation)
	}
	return e.mutate(ctx, "assign_course", id, func(tx Store, s *Session, now time.Time) ([]Event, error) {
		if _, ok := TransitionFor(s.Status, OnAssign); !ok {
			return nil, rejectTransition(*s, OnAssign, "")
		}
		opt, err := e.activeOption(ctx, tx, a.ClassOptionID)
		if err != nil {
			return nil, err
		}
		if s.Status == StatusActive && opt.Mode != ModePackageOpen {
			schedules, err := tx.ListSessionSchedules(ctx, s.ID)
			if err != nil {
				return nil, err
			}
			if n, limit := ActiveCount(schedules), opt.Limit(); n > limit {
				return nil, &ExcessDateSelectionError{Mode: opt.Mode, Required: limit, Selected: n, Excess: n - limit}
			}
		}
		if _, err := Apply(s, OnAssign); err != nil {
			return nil, err
		}
		s.CourseID = a.CourseID
		s.TeacherID = a.TeacherID
		s.ClassOptionID = opt.ID
		s.Mode = opt.Mode
		s.ClassLimit = opt.Limit()
		return []Event{newEvent(EventSessionAssigned, s.ID, now, nil, map[string]string{
			"course_id":       string(s.CourseID),
			"teacher_id":      string(s.TeacherID),
			"class_option_id": string(s.ClassOptionID),
			"mode":            string(s.Mode),
		})}, nil
	})
}

// CompleteSession closes an active session explicitly. This is the only way
// a package-open session completes.
func (e *Engine) CompleteSession(ctx context.Context, id SessionID) (*Session, error) {
	return e.mutate(ctx, "complete_session", id, func(tx Store, s *Session, now time.Time) ([]Event, error) {
		if _, err := Apply(s, OnComplete); err != nil {
			return nil, err
		}
		return []Event{newEvent(EventSessionCompleted, s.ID, now, nil, map[string]string{
			"reason":    string(OnComplete),
			"completed": strconv.Itoa(s.CompletedCount),
		})}, nil
	})
}

// CancelSession cancels the session and every schedule of it that has not
// started yet. Past schedules keep their attendance.
func (e *Engine) CancelSession(ctx context.Context, id SessionID) (*Session, error) {
	return e.mutate(ctx, "cancel_session", id, func(tx Store, s *Session, now time.Time) ([]Event, error) {
		if _, err := Apply(s, OnCancel); err != nil {
			return nil, err
		}
		schedules, err := tx.ListSessionSchedules(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		var cancelled []ScheduleID
		for i := range schedules {
			sc := &schedules[i]
			if sc.Attendance != AttendanceScheduled || !sc.StartTime.On(sc.Date, e.rules.Location).After(now) {
				continue
			}
			sc.Attendance = AttendanceCancelled
			sc.UpdatedAt = now
			if err := tx.UpdateSchedule(ctx, *sc); err != nil {
				return nil, err
			}
			cancelled = append(cancelled, sc.ID)
		}
		Recompute(s, schedules)
		return []Event{newEvent(EventSessionCancelled, s.ID, now, cancelled, map[string]string{
			"student_id":          string(s.StudentID),
			"cancelled_schedules": strconv.Itoa(len(cancelled)),
		})}, nil
	})
}

// ExtendSession raises a fixed-12 session's class limit (course-plus).
func (e *Engine) ExtendSession(ctx context.Context, id SessionID, extra int) (*Session, error) {
	if extra <= 0 {
		return nil, fmt.Errorf("%w: extension must be positive, got %d", ErrValidation, extra)
	}
	return e.mutate(ctx, "extend_session", id, func(tx Store, s *Session, now time.Time) ([]Event, error) {
		if s.Mode != ModeFixed12 {
			return nil, rejectTransition(*s, OnExtend, "only fixed-12 sessions can be extended")
		}
		if _, err := Apply(s, OnExtend); err != nil {
			return nil, err
		}
		s.ClassLimit = s.RequiredTotal() + extra
		return []Event{newEvent(EventSessionExtended, s.ID, now, nil, map[string]string{
			"extra":       strconv.Itoa(extra),
			"class_limit": strconv.Itoa(s.ClassLimit),
		})}, nil
	})
}

// MarkInvoiced flags the session as invoiced. Sessions still TBC have
// nothing to invoice.
func (e *Engine) MarkInvoiced(ctx context.Context, id SessionID) (*Session, error) {
	return e.mutate(ctx, "mark_invoiced", id, func(tx Store, s *Session, now time.Time) ([]Event, error) {
		if s.Status == StatusTBC {
			return nil, rejectTransition(*s, OnInvoice, "session has no class option")
		}
		s.InvoiceDone = true
		return []Event{newEvent(EventSessionInvoiced, s.ID, now, nil, map[string]string{
			"status": string(s.Status),
		})}, nil
	})
}

// RecordPayment marks an invoiced session as paid.
func (e *Engine) RecordPayment(ctx context.Context, id SessionID) (*Session, error) {
	return e.mutate(ctx, "record_payment", id, func(tx Store, s *Session, now time.Time) ([]Event, error) {
		if !s.InvoiceDone {
			return nil, rejectTransition(*s, OnPayment, "session is not invoiced")
		}
		s.Payment = PaymentPaid
		return []Event{newEvent(EventSessionPaid, s.ID, now, nil, nil)}, nil
	})
}

// mutate runs fn against a locked session and saves it with fn's events.
func (e *Engine) mutate(ctx context.Context, op string, id SessionID, fn func(tx Store, s *Session, now time.Time) ([]Event, error)) (*Session, error) {
	var (
		out    Session
		from   SessionStatus
		events []Event
	)
	err := e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.LockResources(ctx, []string{SessionKey(id)}); err != nil {
			return err
		}
		s, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		from = s.Status
		now := e.now()
		evs, err := fn(tx, s, now)
		if err != nil {
			return err
		}
		s.UpdatedAt = now
		if err := tx.UpdateSession(ctx, *s); err != nil {
			return err
		}
		s.Version++
		if err := tx.AppendEvents(ctx, evs); err != nil {
			return err
		}
		out = *s
		events = evs
		return nil
	})
	if err != nil {
		err = asCommitError(op, err)
		e.logger.Info("session operation rejected",
			zap.String("op", op),
			zap.String("session_id", string(id)),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	if from != out.Status {
		e.observer.SessionTransition(from, out.Status)
		e.logger.Info("session transition",
			zap.String("session_id", string(id)),
			zap.String("from", string(from)),
			zap.String("to", string(out.Status)))
	}
	e.notify(ctx, events)
	return &out, nil
}

func (e *Engine) activeOption(ctx context.Context, st ClassOptionLookup, id ClassOptionID) (*ClassOption, error) {
	opt, err := st.GetClassOption(ctx, id)
	if err != nil {
		return nil, err
	}
	if today := e.rules.Today(); !opt.ActiveOn(today) {
		return nil, fmt.Errorf("%w: %s on %s", ErrClassOptionInactive, opt.ID, today)
	}
	return opt, nil
}

// =============================================================================
// CLASS OPTIONS
// =============================================================================

// SaveClassOption creates or updates an option. Once a session references
// the option only EffectiveEndDate may change.
func (e *Engine) SaveClassOption(ctx context.Context, o ClassOption) (*ClassOption, error) {
	if err := validateClassOption(o); err != nil {
		return nil, err
	}
	if o.ID == "" {
		o.ID = ClassOptionID(uuid.NewString())
	}
	err := e.store.WithTx(ctx, func(tx Store) error {
		prev, err := tx.GetClassOption(ctx, o.ID)
		switch {
		case errors.Is(err, ErrClassOptionNotFound):
			if o.CreatedAt.IsZero() {
				o.CreatedAt = e.now()
			}
		case err != nil:
			return err
		default:
			o.CreatedAt = prev.CreatedAt
			referenced, err := tx.IsClassOptionReferenced(ctx, o.ID)
			if err != nil {
				return err
			}
			if referenced && !sameTerms(*prev, o) {
				return fmt.Errorf("%w: %s", ErrOptionReferenced, o.ID)
			}
		}
		return tx.SaveClassOption(ctx, o)
	})
	if err != nil {
		return nil, asCommitError("save_class_option", err)
	}
	e.logger.Info("class option saved", zap.String("class_option_id", string(o.ID)), zap.String("mode", string(o.Mode)))
	return &o, nil
}

// DeactivateClassOption ends the option's effective window on the given
// day, or today when at is zero.
func (e *Engine) DeactivateClassOption(ctx context.Context, id ClassOptionID, at Date) (*ClassOption, error) {
	if at.IsZero() {
		at = e.rules.Today()
	}
	var out ClassOption
	err := e.store.WithTx(ctx, func(tx Store) error {
		o, err := tx.GetClassOption(ctx, id)
		if err != nil {
			return err
		}
		if at.Before(o.EffectiveStartDate) {
			return fmt.Errorf("%w: end date %s before start date %s", ErrValidation, at, o.EffectiveStartDate)
		}
		o.EffectiveEndDate = &at
		out = *o
		return tx.SaveClassOption(ctx, out)
	})
	if err != nil {
		return nil, asCommitError("deactivate_class_option", err)
	}
	return &out, nil
}

func (e *Engine) GetClassOption(ctx context.Context, id ClassOptionID) (*ClassOption, error) {
	return e.store.GetClassOption(ctx, id)
}

func (e *Engine) ListClassOptions(ctx context.Context) ([]ClassOption, error) {
	return e.store.ListClassOptions(ctx)
}

func validateClassOption(o ClassOption) error {
	switch {
	case o.Name == "":
		return fmt.Errorf("%w: class option name is required", ErrValidation)
	case !o.Mode.Valid():
		return fmt.Errorf("%w: unknown class mode %q", ErrValidation, o.Mode)
	case o.TuitionFee.IsNegative():
		return fmt.Errorf("%w: tuition fee must not be negative", ErrValidation)
	case o.ClassLimit < 0:
		return fmt.Errorf("%w: class limit must not be negative", ErrValidation)
	case o.Mode.IsCamp() && o.ClassLimit != 0 && o.ClassLimit != o.Mode.CampDays():
		return fmt.Errorf("%w: %s class limit must be %d", ErrValidation, o.Mode, o.Mode.CampDays())
	case o.EffectiveEndDate != nil && o.EffectiveEndDate.Before(o.EffectiveStartDate):
		return fmt.Errorf("%w: effective end date before start date", ErrValidation)
	}
	return nil
}

func sameTerms(a, b ClassOption) bool {
	return a.Name == b.Name &&
		a.Mode == b.Mode &&
		a.TuitionFee.Equal(b.TuitionFee) &&
		a.ClassLimit == b.ClassLimit &&
		a.EffectiveStartDate == b.EffectiveStartDate
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) GetSession(ctx context.Context, id SessionID) (*Session, error) {
	return e.store.GetSession(ctx, id)
}

func (e *Engine) GetSchedule(ctx context.Context, id ScheduleID) (*Schedule, error) {
	return e.store.GetSchedule(ctx, id)
}

func (e *Engine) ListSessionSchedules(ctx context.Context, id SessionID) ([]Schedule, error) {
	if _, err := e.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListSessionSchedules(ctx, id)
}

func (e *Engine) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	return e.store.ListEvents(ctx, f)
}

// =============================================================================
// NOTIFICATION
// =============================================================================

func (e *Engine) notify(ctx context.Context, events []Event) {
	if e.notifier == nil || len(events) == 0 {
		return
	}
	go e.notifier.Notify(context.WithoutCancel(ctx), events)
}
