/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Status mapping (400/404/409/422) and the error body
- Bulk scheduling: 201 on commit, 200 on replay
- Slot validation endpoint (valid=false, not an error)
- Session lifecycle endpoints
- Health check
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdl/schedule-engine/scheduling"
	"github.com/kdl/schedule-engine/scheduling/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

// newTestRouter builds the full router over an in-memory engine whose clock
// reads 2025-03-01 08:00 UTC.
func newTestRouter(t *testing.T, db Pinger) http.Handler {
	t.Helper()
	rules := scheduling.NewRules(scheduling.DefaultBusinessHours,
		scheduling.FixedClock{At: time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)}, time.UTC)
	eng := scheduling.NewEngine(store.NewTxMemory(), rules)
	for _, o := range []scheduling.ClassOption{
		{ID: "opt-camp2", Name: "Weekend camp", Mode: scheduling.ModeCamp2},
		{ID: "opt-package", Name: "Open package", Mode: scheduling.ModePackageOpen},
	} {
		_, err := eng.SaveClassOption(context.Background(), o)
		require.NoError(t, err)
	}
	return NewRouter(NewHandler(eng, db, zap.NewNop()))
}

// do sends body (a string or a value to marshal) and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createSession(t *testing.T, h http.Handler, id, student, teacher, opt string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", CreateSessionRequest{
		ID:            id,
		StudentID:     student,
		CourseID:      "course-piano",
		TeacherID:     teacher,
		ClassOptionID: opt,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func slotReq(date, start, end string) SlotRequest {
	return SlotRequest{Date: date, StartTime: start, EndTime: end}
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealthz(t *testing.T) {
	rec := do(t, newTestRouter(t, stubPinger{}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestRouter(t, stubPinger{err: errors.New("connection refused")}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeAs[ErrorResponse](t, rec).Details, "connection refused")
}

// =============================================================================
// REQUEST SHAPE
// =============================================================================

func TestDecode_MalformedBodies(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty body", "", ""},
		{"not json", "{", ""},
		{"unknown field", `{"student_id":"stu-1","colour":"red"}`, ""},
		{"missing student", `{"course_id":"c"}`, "student_id"},
		{"blank student", `{"student_id":"   "}`, "student_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/sessions", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeAs[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			if tt.field != "" {
				assert.Contains(t, resp.Fields, tt.field)
			}
		})
	}
}

func TestDecode_NestedFieldPath(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/schedules/validate", `{"slots":[{"date":"2025-03-10","start_time":"9am","end_time":"10:00"}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeAs[ErrorResponse](t, rec).Fields, "slots[0].start_time")
}

// =============================================================================
// SCHEDULE ENDPOINTS
// =============================================================================

func TestValidateSlots_ReportsViolationsWith200(t *testing.T) {
	// GIVEN: One good slot and one ending before it starts
	h := newTestRouter(t, nil)

	// WHEN: Validating
	rec := do(t, h, http.MethodPost, "/api/schedules/validate", ValidateSlotsRequest{Slots: []SlotRequest{
		slotReq("2025-03-10", "09:00", "10:00"),
		slotReq("2025-03-10", "11:00", "10:00"),
	}})

	// THEN: 200, valid=false, violation on index 1
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAs[ValidateSlotsDTO](t, rec)
	assert.False(t, resp.Valid)
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, 1, resp.Violations[0].SlotIndex)
	assert.NotEmpty(t, resp.Violations[0].Messages)
}

func TestValidateSlots_Valid(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/schedules/validate", ValidateSlotsRequest{Slots: []SlotRequest{
		slotReq("2025-03-10", "09:00", "10:00"),
	}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeAs[ValidateSlotsDTO](t, rec).Valid)
}

func TestBulkSchedules_CreateThenReplay(t *testing.T) {
	// GIVEN: An assigned camp-2 session
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "T1", "opt-camp2")
	body := BulkSchedulesRequest{
		SessionID: "sess-a",
		Room:      "R1",
		Slots: []SlotRequest{
			slotReq("2025-03-08", "09:00", "10:00"),
			slotReq("2025-03-09", "09:00", "10:00"),
		},
	}

	// WHEN: Committing the batch
	rec := do(t, h, http.MethodPost, "/api/schedules/bulk", body)

	// THEN: 201 with two numbered rows
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeAs[BatchResultDTO](t, rec)
	assert.Equal(t, 2, first.Created)
	assert.False(t, first.Replayed)
	require.Len(t, first.Schedules, 2)
	assert.Equal(t, 1, first.Schedules[0].ClassNumber)
	assert.Equal(t, "active", first.Session.Status)

	// WHEN: Sending the same batch again
	rec = do(t, h, http.MethodPost, "/api/schedules/bulk", body)

	// THEN: 200, same rows, nothing new
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	again := decodeAs[BatchResultDTO](t, rec)
	assert.True(t, again.Replayed)
	assert.Zero(t, again.Created)
	require.Len(t, again.Schedules, 2)
	assert.Equal(t, first.Schedules[0].ID, again.Schedules[0].ID)

	rec = do(t, h, http.MethodGet, "/api/sessions/sess-a/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]ScheduleDTO](t, rec), 2)
}

func TestBulkSchedules_ConflictIs409(t *testing.T) {
	// GIVEN: T1 booked 09:00-10:00 on Mar 10
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "T1", "opt-package")
	createSession(t, h, "sess-b", "stu-b", "T1", "opt-package")
	rec := do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
		SessionID: "sess-a",
		Slots:     []SlotRequest{slotReq("2025-03-10", "09:00", "10:00")},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Another session books T1 at 09:30
	rec = do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
		SessionID: "sess-b",
		Slots:     []SlotRequest{slotReq("2025-03-10", "09:30", "10:30")},
	})

	// THEN: 409 with the teacher collision
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", resp.Kind)
	assert.False(t, resp.Retryable)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, []string{"teacher"}, resp.Conflicts[0].Dimensions)
}

func TestBulkSchedules_RuleFailuresAre422(t *testing.T) {
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "T1", "opt-camp2")

	t.Run("past date", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
			SessionID: "sess-a",
			Slots: []SlotRequest{
				slotReq("2025-02-20", "09:00", "10:00"),
				slotReq("2025-03-09", "09:00", "10:00"),
			},
		})

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeAs[ErrorResponse](t, rec)
		assert.Equal(t, "validation", resp.Kind)
		require.Len(t, resp.Violations, 1)
		assert.Equal(t, 0, resp.Violations[0].SlotIndex)
	})

	t.Run("wrong date count", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
			SessionID: "sess-a",
			Slots:     []SlotRequest{slotReq("2025-03-08", "09:00", "10:00")},
		})

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "policy_count", decodeAs[ErrorResponse](t, rec).Kind)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
			SessionID: "sess-missing",
			Slots:     []SlotRequest{slotReq("2025-03-08", "09:00", "10:00")},
		})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeAs[ErrorResponse](t, rec).Kind)
	})
}

func TestCheckConflict(t *testing.T) {
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "T1", "opt-package")
	rec := do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
		SessionID: "sess-a",
		Room:      "R1",
		Slots:     []SlotRequest{slotReq("2025-03-10", "09:00", "10:00")},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Overlapping room
	rec = do(t, h, http.MethodPost, "/api/schedules/conflict", ConflictRequest{ProposalRequest: ProposalRequest{
		SlotRequest: slotReq("2025-03-10", "09:30", "10:30"),
		TeacherID:   "T9",
		Room:        "R1",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[ConflictResultDTO](t, rec)
	assert.True(t, res.Conflict)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, []string{"room"}, res.Conflicts[0].Dimensions)

	// Back to back is clear
	rec = do(t, h, http.MethodPost, "/api/schedules/conflict", ConflictRequest{ProposalRequest: ProposalRequest{
		SlotRequest: slotReq("2025-03-10", "10:00", "11:00"),
		TeacherID:   "T1",
		Room:        "R1",
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeAs[ConflictResultDTO](t, rec)
	assert.False(t, res.Conflict)
	assert.Empty(t, res.Conflicts)
}

func TestSchedule_GetAndPatch(t *testing.T) {
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "T1", "opt-package")
	rec := do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
		SessionID: "sess-a",
		Slots:     []SlotRequest{slotReq("2025-03-10", "09:00", "10:00")},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeAs[BatchResultDTO](t, rec).Schedules[0].ID

	feedback := "Good progress"
	room := "R2"
	rec = do(t, h, http.MethodPatch, "/api/schedules/"+id, UpdateScheduleRequest{Feedback: &feedback, Room: &room})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAs[ScheduleDTO](t, rec)
	assert.Equal(t, "Good progress", got.Feedback)
	assert.Equal(t, "R2", got.Room)

	rec = do(t, h, http.MethodGet, "/api/schedules/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "R2", decodeAs[ScheduleDTO](t, rec).Room)

	rec = do(t, h, http.MethodGet, "/api/schedules/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSchedule_BlankResourcesRejected(t *testing.T) {
	// GIVEN: A booked schedule
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "T1", "opt-package")
	rec := do(t, h, http.MethodPost, "/api/schedules/bulk", BulkSchedulesRequest{
		SessionID: "sess-a",
		Room:      "R1",
		Slots:     []SlotRequest{slotReq("2025-03-10", "09:00", "10:00")},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeAs[BatchResultDTO](t, rec).Schedules[0].ID

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty teacher", `{"teacher_id":""}`, "teacher_id"},
		{"blank room", `{"room":"  "}`, "room"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// WHEN: Clearing a resource on the schedule
			rec := do(t, h, http.MethodPatch, "/api/schedules/"+id, tt.body)

			// THEN: 400 naming the field, and the schedule keeps its resources
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeAs[ErrorResponse](t, rec).Fields, tt.field)

			rec = do(t, h, http.MethodGet, "/api/schedules/"+id, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decodeAs[ScheduleDTO](t, rec)
			assert.Equal(t, "T1", got.TeacherID)
			assert.Equal(t, "R1", got.Room)
		})
	}
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

func TestSession_CreateAssignCancel(t *testing.T) {
	// GIVEN: An unresolved session
	h := newTestRouter(t, nil)
	rec := do(t, h, http.MethodPost, "/api/sessions", CreateSessionRequest{ID: "sess-a", StudentID: "stu-a"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "TBC", decodeAs[SessionDTO](t, rec).Status)

	// WHEN: Assigning course, teacher and option
	rec = do(t, h, http.MethodPost, "/api/sessions/sess-a/assign", AssignSessionRequest{
		CourseID:      "course-piano",
		TeacherID:     "T1",
		ClassOptionID: "opt-camp2",
	})

	// THEN: The session is assigned with the option's limit
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decodeAs[SessionDTO](t, rec)
	assert.Equal(t, "assigned", s.Status)
	assert.Equal(t, 2, s.ClassLimit)
	assert.Equal(t, 2, s.Version)

	// WHEN: Cancelling twice
	rec = do(t, h, http.MethodPost, "/api/sessions/sess-a/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeAs[SessionDTO](t, rec).Status)
	rec = do(t, h, http.MethodPost, "/api/sessions/sess-a/cancel", nil)

	// THEN: The second is an invalid transition
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state_transition", decodeAs[ErrorResponse](t, rec).Kind)
}

func TestSession_NotFound(t *testing.T) {
	h := newTestRouter(t, nil)

	for _, path := range []string{"/api/sessions/nope", "/api/sessions/nope/schedules"} {
		rec := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := do(t, h, http.MethodPost, "/api/sessions/nope/complete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSession_AssignUnknownOptionIs404(t *testing.T) {
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "", "")

	rec := do(t, h, http.MethodPost, "/api/sessions/sess-a/assign", AssignSessionRequest{
		CourseID:      "course-piano",
		TeacherID:     "T1",
		ClassOptionID: "opt-missing",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CLASS OPTION ENDPOINTS
// =============================================================================

func TestClassOptions_SaveListDeactivate(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/class-options", ClassOptionRequest{
		ID:         "opt-fixed",
		Name:       "Piano 12",
		ClassMode:  "fixed-12",
		TuitionFee: "4800",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeAs[ClassOptionDTO](t, rec)
	assert.Equal(t, 12, saved.ClassLimit)
	assert.Equal(t, "4800.00", saved.TuitionFee)
	assert.True(t, saved.Active)

	rec = do(t, h, http.MethodGet, "/api/class-options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]ClassOptionDTO](t, rec), 3)

	rec = do(t, h, http.MethodPost, "/api/class-options/opt-fixed/deactivate", DeactivateClassOptionRequest{Date: "2025-02-28"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	off := decodeAs[ClassOptionDTO](t, rec)
	assert.Equal(t, "2025-02-28", off.EffectiveEndDate)
	assert.False(t, off.Active)

	rec = do(t, h, http.MethodPost, "/api/class-options", `{"name":"Bad","class_mode":"weekly"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EVENTS
// =============================================================================

func TestListEvents(t *testing.T) {
	h := newTestRouter(t, nil)
	createSession(t, h, "sess-a", "stu-a", "T1", "opt-package")
	createSession(t, h, "sess-b", "stu-b", "T2", "opt-package")

	rec := do(t, h, http.MethodGet, "/api/events?session_id=sess-a", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := decodeAs[[]EventDTO](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "sess-a", events[0].SessionID)

	rec = do(t, h, http.MethodGet, "/api/events?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
