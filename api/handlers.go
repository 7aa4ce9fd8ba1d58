/*
handlers.go - HTTP API handlers for the scheduling engine

PURPOSE:
  Exposes scheduling.Engine via REST. Handlers decode and validate the
  request shape, convert DTOs to domain values, call exactly one engine
  operation and serialize the result. Business rules live in the engine.

ENDPOINTS:
  Schedules:
    POST   /api/schedules/validate      Validate slots (no store access)
    POST   /api/schedules/conflict      Check one proposal
    POST   /api/schedules/conflicts     Check a batch of proposals
    POST   /api/schedules/preview       Dry-run a bulk request
    POST   /api/schedules/bulk          Commit a bulk request
    GET    /api/schedules/{id}          Get a schedule
    PATCH  /api/schedules/{id}          Reschedule / attendance / feedback

  Sessions:
    POST   /api/sessions                Enrol
    GET    /api/sessions/{id}           Get a session
    GET    /api/sessions/{id}/schedules List the session's schedules
    POST   /api/sessions/{id}/assign    Assign course, teacher, option
    POST   /api/sessions/{id}/complete  Complete manually
    POST   /api/sessions/{id}/cancel    Cancel (frees future schedules)
    POST   /api/sessions/{id}/extend    Add classes (fixed-12)
    POST   /api/sessions/{id}/invoice   Mark invoiced
    POST   /api/sessions/{id}/payment   Record payment

  Class options:
    GET    /api/class-options                 List
    POST   /api/class-options                 Create or update
    GET    /api/class-options/{id}            Get
    POST   /api/class-options/{id}/deactivate Set effective end date

  Events:
    GET    /api/events?session_id=&action=&limit=

ERROR HANDLING:
  See errors.go for the status mapping.

SEE ALSO:
  - dto.go: Request/response data structures
  - validate.go: Request validation
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kdl/schedule-engine/factory"
	"github.com/kdl/schedule-engine/metrics"
	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *scheduling.Engine
	Options *factory.OptionFactory

	db     Pinger
	logger *zap.Logger
}

// NewHandler creates a handler. db may be nil, in which case /healthz
// only reports the process is up.
func NewHandler(engine *scheduling.Engine, db Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:  engine,
		Options: factory.NewOptionFactory(),
		db:      db,
		logger:  logger,
	}
}

// Healthz pings the database and records the latency.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		start := time.Now()
		err := h.db.Ping(r.Context())
		metrics.ObserveDBPing(time.Since(start))
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ValidateSlots answers 200 with valid=false and per-slot violations when
// the rules reject a slot; only a malformed body is an error.
func (h *Handler) ValidateSlots(w http.ResponseWriter, r *http.Request) {
	var req ValidateSlotsRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	slots, err := toSlots(req.Slots)
	if err != nil {
		h.writeEngineError(w, r, &RequestError{Msg: err.Error()})
		return
	}

	resp := ValidateSlotsDTO{Valid: true}
	if err := h.Engine.ValidateSlots(slots); err != nil {
		var bve *scheduling.BatchValidationError
		if !errors.As(err, &bve) {
			h.writeEngineError(w, r, err)
			return
		}
		resp.Valid = false
		resp.Violations = toViolationDTOs(bve)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CheckConflict(w http.ResponseWriter, r *http.Request) {
	var req ConflictRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	p, err := req.toProposal()
	if err != nil {
		h.writeEngineError(w, r, &RequestError{Msg: err.Error()})
		return
	}

	d, err := h.Engine.CheckScheduleConflict(r.Context(), p, toScheduleIDs(req.Exclude)...)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	resp := ConflictResultDTO{Conflicts: []ConflictDTO{}}
	if d != nil {
		resp.Conflict = true
		resp.Conflicts = toConflictDTOs([]scheduling.ConflictDetail{*d})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req ConflictsRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	proposals := make([]scheduling.Proposal, len(req.Proposals))
	for i, pr := range req.Proposals {
		p, err := pr.toProposal()
		if err != nil {
			h.writeEngineError(w, r, &RequestError{Msg: err.Error()})
			return
		}
		proposals[i] = p
	}

	ds, err := h.Engine.CheckScheduleConflicts(r.Context(), proposals, toScheduleIDs(req.Exclude)...)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConflictResultDTO{
		Conflict:  len(ds) > 0,
		Conflicts: toConflictDTOs(ds),
	})
}

func (h *Handler) PreviewBulkSchedules(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	p, err := h.Engine.PreviewBulkSchedules(r.Context(), batch)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	drafts := make([]scheduling.Schedule, len(p.Drafts))
	for i, d := range p.Drafts {
		drafts[i] = d.Schedule
	}
	writeJSON(w, http.StatusOK, PreviewDTO{
		Session:     toSessionDTO(p.Session),
		Requirement: toRequirementDTO(p.Requirement),
		Schedules:   toScheduleDTOs(drafts),
		Warnings:    toWarningDTOs(p.Warnings),
		Conflicts:   toConflictDTOs(p.Conflicts),
		Violations:  toViolationDTOs(p.Invalid),
		Replayed:    p.Replayed,
		Blocked:     p.Blocked(),
	})
}

// CreateBulkSchedules answers 201 for a new batch and 200 for a replay.
func (h *Handler) CreateBulkSchedules(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.CreateBulkSchedules(r.Context(), batch)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, BatchResultDTO{
		Session:   toSessionDTO(res.Session),
		Created:   res.Created,
		Replayed:  res.Replayed,
		Schedules: toScheduleDTOs(res.Schedules),
		Warnings:  toWarningDTOs(res.Warnings),
	})
}

func (h *Handler) decodeBatch(w http.ResponseWriter, r *http.Request) (scheduling.BatchRequest, bool) {
	var req BulkSchedulesRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return scheduling.BatchRequest{}, false
	}
	slots, err := toSlots(req.Slots)
	if err != nil {
		h.writeEngineError(w, r, &RequestError{Msg: err.Error()})
		return scheduling.BatchRequest{}, false
	}
	return scheduling.BatchRequest{
		SessionID: scheduling.SessionID(req.SessionID),
		StudentID: scheduling.StudentID(req.StudentID),
		CourseID:  scheduling.CourseID(req.CourseID),
		TeacherID: scheduling.TeacherID(req.TeacherID),
		Room:      scheduling.RoomID(req.Room),
		Slots:     slots,
		Nickname:  req.Nickname,
		Remark:    req.Remark,
	}, true
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.GetSchedule(r.Context(), scheduling.ScheduleID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(*s))
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateScheduleRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.writeEngineError(w, r, &RequestError{Msg: err.Error()})
		return
	}

	s, err := h.Engine.UpdateSchedule(r.Context(), scheduling.ScheduleID(chi.URLParam(r, "id")), patch)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(*s))
}

func (req UpdateScheduleRequest) toPatch() (scheduling.SchedulePatch, error) {
	var p scheduling.SchedulePatch
	if req.Date != nil {
		d, err := scheduling.ParseDate(*req.Date)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	if req.StartTime != nil {
		t, err := scheduling.ParseTimeOfDay(*req.StartTime)
		if err != nil {
			return p, err
		}
		p.StartTime = &t
	}
	if req.EndTime != nil {
		t, err := scheduling.ParseTimeOfDay(*req.EndTime)
		if err != nil {
			return p, err
		}
		p.EndTime = &t
	}
	if req.FeedbackDate != nil {
		d, err := scheduling.ParseDate(*req.FeedbackDate)
		if err != nil {
			return p, err
		}
		p.FeedbackDate = &d
	}
	if req.Room != nil {
		room := scheduling.RoomID(*req.Room)
		p.Room = &room
	}
	if req.TeacherID != nil {
		t := scheduling.TeacherID(*req.TeacherID)
		p.TeacherID = &t
	}
	if req.Attendance != nil {
		a := scheduling.Attendance(*req.Attendance)
		p.Attendance = &a
	}
	p.Feedback = req.Feedback
	p.Nickname = req.Nickname
	p.Remark = req.Remark
	return p, nil
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	s, err := h.Engine.CreateSession(r.Context(), scheduling.NewSession{
		ID:            scheduling.SessionID(req.ID),
		StudentID:     scheduling.StudentID(req.StudentID),
		CourseID:      scheduling.CourseID(req.CourseID),
		TeacherID:     scheduling.TeacherID(req.TeacherID),
		ClassOptionID: scheduling.ClassOptionID(req.ClassOptionID),
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(*s))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.GetSession(r.Context(), sessionID(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(*s))
}

func (h *Handler) ListSessionSchedules(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.ListSessionSchedules(r.Context(), sessionID(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTOs(rows))
}

func (h *Handler) AssignSession(w http.ResponseWriter, r *http.Request) {
	var req AssignSessionRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeSession(w, r)(h.Engine.AssignCourseToSession(r.Context(), sessionID(r), scheduling.Assignment{
		CourseID:      scheduling.CourseID(req.CourseID),
		TeacherID:     scheduling.TeacherID(req.TeacherID),
		ClassOptionID: scheduling.ClassOptionID(req.ClassOptionID),
	}))
}

func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.Engine.CompleteSession(r.Context(), sessionID(r)))
}

func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.Engine.CancelSession(r.Context(), sessionID(r)))
}

func (h *Handler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	var req ExtendSessionRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeSession(w, r)(h.Engine.ExtendSession(r.Context(), sessionID(r), req.Extra))
}

func (h *Handler) MarkInvoiced(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.Engine.MarkInvoiced(r.Context(), sessionID(r)))
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.Engine.RecordPayment(r.Context(), sessionID(r)))
}

// writeSession returns a sink for the (session, error) pair of a
// session operation.
func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request) func(*scheduling.Session, error) {
	return func(s *scheduling.Session, err error) {
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionDTO(*s))
	}
}

func sessionID(r *http.Request) scheduling.SessionID {
	return scheduling.SessionID(chi.URLParam(r, "id"))
}

// =============================================================================
// CLASS OPTION HANDLERS
// =============================================================================

func (h *Handler) ListClassOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.Engine.ListClassOptions(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	today := h.Engine.Rules().Today()
	dtos := make([]ClassOptionDTO, len(opts))
	for i, o := range opts {
		dtos[i] = h.toClassOptionDTO(o, today)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetClassOption(w http.ResponseWriter, r *http.Request) {
	o, err := h.Engine.GetClassOption(r.Context(), scheduling.ClassOptionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toClassOptionDTO(*o, h.Engine.Rules().Today()))
}

// SaveClassOption creates or updates an option. The body uses the catalog
// file format.
func (h *Handler) SaveClassOption(w http.ResponseWriter, r *http.Request) {
	var req ClassOptionRequest
	if err := decode(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	opt, err := h.Options.FromJSON(factory.ClassOptionJSON{
		ID:                 req.ID,
		Name:               req.Name,
		ClassMode:          req.ClassMode,
		TuitionFee:         req.TuitionFee,
		ClassLimit:         req.ClassLimit,
		EffectiveStartDate: req.EffectiveStartDate,
		EffectiveEndDate:   req.EffectiveEndDate,
	})
	if err != nil {
		h.writeEngineError(w, r, &RequestError{Msg: err.Error()})
		return
	}

	saved, err := h.Engine.SaveClassOption(r.Context(), opt)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toClassOptionDTO(*saved, h.Engine.Rules().Today()))
}

func (h *Handler) DeactivateClassOption(w http.ResponseWriter, r *http.Request) {
	var req DeactivateClassOptionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeEngineError(w, r, err)
			return
		}
	}
	var at scheduling.Date
	if req.Date != "" {
		d, err := scheduling.ParseDate(req.Date)
		if err != nil {
			h.writeEngineError(w, r, &RequestError{Msg: err.Error()})
			return
		}
		at = d
	}

	o, err := h.Engine.DeactivateClassOption(r.Context(), scheduling.ClassOptionID(chi.URLParam(r, "id")), at)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toClassOptionDTO(*o, h.Engine.Rules().Today()))
}

func (h *Handler) toClassOptionDTO(o scheduling.ClassOption, today scheduling.Date) ClassOptionDTO {
	oj := h.Options.ToJSON(o)
	return ClassOptionDTO{
		ID:                 oj.ID,
		Name:               oj.Name,
		ClassMode:          oj.ClassMode,
		TuitionFee:         oj.TuitionFee,
		ClassLimit:         oj.ClassLimit,
		EffectiveStartDate: oj.EffectiveStartDate,
		EffectiveEndDate:   oj.EffectiveEndDate,
		Active:             o.ActiveOn(today),
	}
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// ListEvents filters by session_id, repeated action and limit.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f scheduling.EventFilter
	if sid := q.Get("session_id"); sid != "" {
		id := scheduling.SessionID(sid)
		f.SessionID = &id
	}
	for _, a := range q["action"] {
		f.Actions = append(f.Actions, scheduling.EventAction(a))
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			h.writeEngineError(w, r, &RequestError{Msg: "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}

	events, err := h.Engine.ListEvents(r.Context(), f)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}
