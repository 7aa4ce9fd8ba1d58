/*
coordinator.go - Bulk Commit Coordinator

PURPOSE:
  Runs a batch of proposed slots through every check and persists the
  resulting schedules as one atomic unit. Either every row is created and
  the session bookkeeping advanced, or nothing is written.

PIPELINE:
  1. Validate every slot (rules.go); all offending slots are reported
  2. WithTx:
     a. Lock the session key, load the session, check status and identity
     b. Lock the resource keys (teacher/room/student per date)
     c. Generate drafts (generator.go); identical active rows => replay
     d. Check the date count (policy.go)
     e. Detect conflicts against the in-transaction snapshot (conflict.go)
     f. Insert rows, Recompute the session, apply batch_committed, save,
        append events
  3. Classify: unclassified store failures become *CommitError (retryable)

  Steps 1 and 2a-2e only read, so a rejected batch leaves the store exactly
  as it found it. The replay check runs before the policy and conflict
  checks because a committed batch would otherwise fail both against its
  own rows.

BACKSTOP:
  A *UniqueViolationError from InsertSchedules means a concurrent writer got
  past the pre-check. It is reported as the *ConflictError the pre-check
  would have produced, with the slot index recovered from the schedule ID.

SEE ALSO:
  - engine.go: Facade that adds metrics and notifications
  - store.go: TxStore and the locking contract
*/
package scheduling

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// BatchRequest asks for one schedule per slot for a session. StudentID and
// CourseID are optional cross-checks; TeacherID defaults to the session's.
type BatchRequest struct {
	SessionID SessionID
	StudentID StudentID
	CourseID  CourseID
	TeacherID TeacherID
	Room      RoomID
	Slots     []Slot
	Nickname  string
	Remark    string
}

// SlotWarning is an advisory note on a generated row.
type SlotWarning struct {
	SlotIndex  int
	ScheduleID ScheduleID
	Message    string
}

type BatchResult struct {
	Session   Session
	Created   int
	Replayed  bool
	Schedules []Schedule
	Warnings  []SlotWarning
	Events    []Event
}

// Preview is a dry run of a batch for operator review.
type Preview struct {
	Session     Session
	Requirement Requirement
	Drafts      []Draft
	Warnings    []SlotWarning
	Conflicts   []ConflictDetail
	Invalid     *BatchValidationError
	Replayed    bool
}

// Blocked reports whether committing the previewed batch would fail.
func (p *Preview) Blocked() bool {
	return p.Invalid != nil || !p.Requirement.Satisfied || len(p.Conflicts) > 0
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	store  TxStore
	rules  Rules
	logger *zap.Logger
}

func NewCoordinator(store TxStore, rules Rules, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, rules: rules, logger: logger}
}

// plan is the read-only outcome of steps 2a-2d.
type plan struct {
	session     Session
	teacher     TeacherID
	existing    []Schedule
	drafts      []Draft
	requirement Requirement
	replay      bool
}

// proposals returns the drafts' footprints indexed by request slot.
func (p *plan) proposals() []Proposal {
	out := make([]Proposal, len(p.drafts))
	for _, d := range p.drafts {
		out[d.SlotIndex] = d.Proposal()
	}
	return out
}

func (p *plan) warnings() []SlotWarning {
	var out []SlotWarning
	for _, d := range p.drafts {
		if d.Schedule.Warning != "" {
			out = append(out, SlotWarning{SlotIndex: d.SlotIndex, ScheduleID: d.Schedule.ID, Message: d.Schedule.Warning})
		}
	}
	return out
}

// Commit validates, checks and persists the batch atomically.
func (c *Coordinator) Commit(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if err := c.rules.ValidateBatch(req.Slots); err != nil {
		return nil, err
	}

	var result *BatchResult
	err := c.store.WithTx(ctx, func(tx Store) error {
		if err := tx.LockResources(ctx, []string{SessionKey(req.SessionID)}); err != nil {
			return err
		}
		p, err := c.prepare(ctx, tx, req, true)
		if err != nil {
			return err
		}
		if p.replay {
			result = &BatchResult{Session: p.session, Replayed: true, Schedules: replayedRows(p), Warnings: p.warnings()}
			return nil
		}
		if err := p.requirement.Err(); err != nil {
			return err
		}

		proposals := p.proposals()
		persisted, err := tx.ListActiveSchedules(ctx, FilterFor(proposals))
		if err != nil {
			return err
		}
		if conflicts := DetectConflicts(proposals, persisted, nil); len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		now := c.rules.clock().Now().UTC()
		rows := make([]Schedule, len(p.drafts))
		for i, d := range p.drafts {
			rows[i] = d.Schedule
			rows[i].CreatedAt = now
			rows[i].UpdatedAt = now
		}
		if err := tx.InsertSchedules(ctx, rows); err != nil {
			return translateUniqueViolation(err, p.drafts)
		}

		session := p.session
		Recompute(&session, append(append([]Schedule(nil), p.existing...), rows...))
		from := session.Status
		if _, err := Apply(&session, OnBatchCommitted); err != nil {
			return err
		}
		session.UpdatedAt = now
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		session.Version++

		events := []Event{batchEvent(session, rows, req.Room, now)}
		if from != session.Status {
			events = append(events, newEvent(EventSessionActivated, session.ID, now, nil, map[string]string{
				"from": string(from),
				"to":   string(session.Status),
			}))
		}
		if err := tx.AppendEvents(ctx, events); err != nil {
			return err
		}

		result = &BatchResult{
			Session:   session,
			Created:   len(rows),
			Schedules: rows,
			Warnings:  p.warnings(),
			Events:    events,
		}
		return nil
	})
	if err != nil {
		err = asCommitError("create_bulk_schedules", err)
		c.logger.Info("batch rejected",
			zap.String("session_id", string(req.SessionID)),
			zap.Int("slots", len(req.Slots)),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("batch committed",
		zap.String("session_id", string(req.SessionID)),
		zap.Int("slots", len(req.Slots)),
		zap.Int("created", result.Created),
		zap.Bool("replayed", result.Replayed))
	return result, nil
}

// Preview runs the full check pipeline without writing.
func (c *Coordinator) Preview(ctx context.Context, req BatchRequest) (*Preview, error) {
	out := &Preview{}
	if err := c.rules.ValidateBatch(req.Slots); err != nil {
		var bve *BatchValidationError
		if !errors.As(err, &bve) {
			return nil, err
		}
		out.Invalid = bve
	}

	p, err := c.prepare(ctx, c.store, req, false)
	if err != nil {
		return nil, err
	}
	out.Session = p.session
	out.Requirement = p.requirement
	out.Drafts = p.drafts
	out.Warnings = p.warnings()
	out.Replayed = p.replay
	if p.replay || len(p.drafts) == 0 {
		return out, nil
	}

	proposals := p.proposals()
	persisted, err := c.store.ListActiveSchedules(ctx, FilterFor(proposals))
	if err != nil {
		return nil, err
	}
	out.Conflicts = DetectConflicts(proposals, persisted, nil)
	return out, nil
}

// prepare loads the session and everything the generator needs. With
// lock set, the resource keys are locked once the teacher is known.
func (c *Coordinator) prepare(ctx context.Context, st Store, req BatchRequest, lock bool) (*plan, error) {
	session, err := st.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := TransitionFor(session.Status, OnBatchCommitted); !ok {
		return nil, rejectTransition(*session, OnBatchCommitted, "session does not accept schedules")
	}
	if req.StudentID != "" && req.StudentID != session.StudentID {
		return nil, &MismatchError{Field: "student_id", Expected: string(session.StudentID), Actual: string(req.StudentID)}
	}
	if req.CourseID != "" && req.CourseID != session.CourseID {
		return nil, &MismatchError{Field: "course_id", Expected: string(session.CourseID), Actual: string(req.CourseID)}
	}
	if _, err := st.GetClassOption(ctx, session.ClassOptionID); err != nil {
		return nil, err
	}

	teacher := req.TeacherID
	if teacher == "" {
		teacher = session.TeacherID
	}

	if lock {
		footprint := make([]Proposal, len(req.Slots))
		for i, sl := range req.Slots {
			footprint[i] = Proposal{Slot: sl, TeacherID: teacher, StudentID: session.StudentID, Room: req.Room}
		}
		if err := st.LockResources(ctx, ResourceKeys(footprint)); err != nil {
			return nil, err
		}
	}

	existing, err := st.ListSessionSchedules(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	var history []Schedule
	if req.Room != "" && len(req.Slots) > 0 {
		if history, err = st.ListActiveSchedules(ctx, RoomHistoryFilter(req.Room, req.Slots)); err != nil {
			return nil, err
		}
	}

	drafts := Generate(GenerateInput{
		Session:     *session,
		TeacherID:   teacher,
		Room:        req.Room,
		Slots:       req.Slots,
		Nickname:    req.Nickname,
		Remark:      req.Remark,
		Existing:    existing,
		RoomHistory: history,
	})

	return &plan{
		session:     *session,
		teacher:     teacher,
		existing:    existing,
		drafts:      drafts,
		requirement: CheckDateCount(session.Mode, session.ClassLimit, ActiveCount(existing), len(req.Slots)),
		replay:      isReplay(drafts, existing),
	}, nil
}

// isReplay reports whether every draft already exists as an active row.
func isReplay(drafts []Draft, existing []Schedule) bool {
	if len(drafts) == 0 {
		return false
	}
	active := make(map[ScheduleID]bool, len(existing))
	for _, s := range existing {
		if s.Active() {
			active[s.ID] = true
		}
	}
	for _, d := range drafts {
		if !active[d.Schedule.ID] {
			return false
		}
	}
	return true
}

func replayedRows(p *plan) []Schedule {
	byID := make(map[ScheduleID]Schedule, len(p.existing))
	for _, s := range p.existing {
		byID[s.ID] = s
	}
	rows := make([]Schedule, len(p.drafts))
	for i, d := range p.drafts {
		rows[i] = byID[d.Schedule.ID]
	}
	return rows
}

// =============================================================================
// ERROR TRANSLATION
// =============================================================================

func translateUniqueViolation(err error, drafts []Draft) error {
	var uv *UniqueViolationError
	if !errors.As(err, &uv) {
		return err
	}
	detail := ConflictDetail{SlotIndex: -1}
	for _, d := range drafts {
		if d.Schedule.ID == uv.ScheduleID {
			detail.SlotIndex = d.SlotIndex
			detail.Slot = d.Schedule.Slot()
			break
		}
	}
	if detail.SlotIndex < 0 && len(drafts) == 1 {
		detail.SlotIndex = drafts[0].SlotIndex
		detail.Slot = drafts[0].Schedule.Slot()
	}
	dim := uv.Dimension
	if dim == "" {
		dim = DimensionTeacher
	}
	detail.Collisions = []Collision{{Dimension: dim, SiblingIndex: -1, Slot: detail.Slot}}
	return &ConflictError{Conflicts: []ConflictDetail{detail}}
}

// asCommitError wraps unclassified failures so callers know a retry is safe.
func asCommitError(op string, err error) error {
	if err == nil || KindOf(err) != KindInternal {
		return err
	}
	return &CommitError{Op: op, Err: err}
}

// =============================================================================
// EVENTS
// =============================================================================

func newEvent(action EventAction, session SessionID, at time.Time, schedules []ScheduleID, payload map[string]string) Event {
	return Event{
		ID:          uuid.NewString(),
		At:          at,
		Action:      action,
		SessionID:   session,
		ScheduleIDs: schedules,
		Payload:     payload,
	}
}

func batchEvent(s Session, rows []Schedule, room RoomID, at time.Time) Event {
	ids := make([]ScheduleID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	payload := map[string]string{
		"count":      strconv.Itoa(len(rows)),
		"student_id": string(s.StudentID),
		"room":       string(room),
	}
	if len(rows) > 0 {
		payload["teacher_id"] = string(rows[0].TeacherID)
		payload["first_date"] = rows[0].Date.String()
		payload["last_date"] = rows[len(rows)-1].Date.String()
	}
	return newEvent(EventSchedulesCreated, s.ID, at, ids, payload)
}
