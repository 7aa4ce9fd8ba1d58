package scheduling_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdl/schedule-engine/scheduling"
)

var allStatuses = []scheduling.SessionStatus{
	scheduling.StatusTBC,
	scheduling.StatusAssigned,
	scheduling.StatusActive,
	scheduling.StatusCompleted,
	scheduling.StatusCancelled,
}

func TestTransitions_TerminalStatesHaveNoExits(t *testing.T) {
	for _, tr := range scheduling.Transitions() {
		assert.False(t, tr.From.Terminal(), "%s --%s--> %s leaves a terminal state", tr.From, tr.Event, tr.To)
	}
}

func TestTransitions_Table(t *testing.T) {
	tests := []struct {
		from scheduling.SessionStatus
		ev   scheduling.LifecycleEvent
		to   scheduling.SessionStatus
		ok   bool
	}{
		{scheduling.StatusTBC, scheduling.OnAssign, scheduling.StatusAssigned, true},
		{scheduling.StatusTBC, scheduling.OnBatchCommitted, "", false},
		{scheduling.StatusTBC, scheduling.OnComplete, "", false},
		{scheduling.StatusTBC, scheduling.OnCancel, scheduling.StatusCancelled, true},
		{scheduling.StatusAssigned, scheduling.OnBatchCommitted, scheduling.StatusActive, true},
		{scheduling.StatusAssigned, scheduling.OnComplete, "", false},
		{scheduling.StatusActive, scheduling.OnBatchCommitted, scheduling.StatusActive, true},
		{scheduling.StatusActive, scheduling.OnAttendanceCompleted, scheduling.StatusCompleted, true},
		{scheduling.StatusActive, scheduling.OnComplete, scheduling.StatusCompleted, true},
		{scheduling.StatusActive, scheduling.OnCancel, scheduling.StatusCancelled, true},
		{scheduling.StatusActive, scheduling.OnExtend, scheduling.StatusActive, true},
		{scheduling.StatusCompleted, scheduling.OnCancel, "", false},
		{scheduling.StatusCancelled, scheduling.OnAssign, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			tr, ok := scheduling.TransitionFor(tt.from, tt.ev)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.to, tr.To)
			}
		})
	}
}

func TestTransitions_EveryStatusReachable(t *testing.T) {
	reached := map[scheduling.SessionStatus]bool{scheduling.StatusTBC: true}
	for _, tr := range scheduling.Transitions() {
		reached[tr.To] = true
	}
	for _, s := range allStatuses {
		assert.True(t, reached[s], "status %s is unreachable", s)
	}
}

func TestApply_RejectsAndLeavesStatus(t *testing.T) {
	// GIVEN: A completed session
	s := &scheduling.Session{ID: "sess-1", Status: scheduling.StatusCompleted}

	// WHEN: Cancelling it
	_, err := scheduling.Apply(s, scheduling.OnCancel)

	// THEN: Invalid transition, status unchanged
	var iste *scheduling.InvalidStateTransitionError
	require.ErrorAs(t, err, &iste)
	assert.Equal(t, scheduling.StatusCompleted, iste.From)
	assert.Equal(t, scheduling.OnCancel, iste.Event)
	assert.Equal(t, scheduling.StatusCompleted, s.Status)
	assert.Equal(t, scheduling.KindInvalidTransition, scheduling.KindOf(err))
}

func TestRecompute_DerivesCounters(t *testing.T) {
	s := &scheduling.Session{CompletedCount: 99}
	rows := []scheduling.Schedule{
		{Attendance: scheduling.AttendancePresent},
		{Attendance: scheduling.AttendancePresent},
		{Attendance: scheduling.AttendanceAbsent},
		{Attendance: scheduling.AttendanceScheduled},
		{Attendance: scheduling.AttendanceCancelled},
	}

	scheduling.Recompute(s, rows)

	assert.Equal(t, 2, s.CompletedCount)
	assert.Equal(t, 2, s.ScheduledCount)
	assert.Equal(t, 1, s.ClassCancel)
	assert.Equal(t, 4, scheduling.ActiveCount(rows))
}

func TestEntitlementConsumed(t *testing.T) {
	tests := []struct {
		name string
		s    scheduling.Session
		want bool
	}{
		{"fixed-12 at twelve", scheduling.Session{Mode: scheduling.ModeFixed12, ClassLimit: 12, CompletedCount: 12, Status: scheduling.StatusActive}, true},
		{"fixed-12 at eleven", scheduling.Session{Mode: scheduling.ModeFixed12, ClassLimit: 12, CompletedCount: 11, Status: scheduling.StatusActive}, false},
		{"extended to fourteen", scheduling.Session{Mode: scheduling.ModeFixed12, ClassLimit: 14, CompletedCount: 12, Status: scheduling.StatusActive}, false},
		{"camp-2 done", scheduling.Session{Mode: scheduling.ModeCamp2, ClassLimit: 2, CompletedCount: 2, Status: scheduling.StatusActive}, true},
		{"package never", scheduling.Session{Mode: scheduling.ModePackageOpen, CompletedCount: 50, Status: scheduling.StatusActive}, false},
		{"not active", scheduling.Session{Mode: scheduling.ModeCamp2, ClassLimit: 2, CompletedCount: 2, Status: scheduling.StatusAssigned}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scheduling.EntitlementConsumed(tt.s))
		})
	}
}
