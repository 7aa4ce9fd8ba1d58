package scheduling_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdl/schedule-engine/scheduling"
)

func existingRow(id, teacher, student, room string, sl scheduling.Slot) scheduling.Schedule {
	return scheduling.Schedule{
		ID:         scheduling.ScheduleID(id),
		SessionID:  "sess-other",
		StudentID:  scheduling.StudentID(student),
		TeacherID:  scheduling.TeacherID(teacher),
		Room:       scheduling.RoomID(room),
		Date:       sl.Date,
		StartTime:  sl.Start,
		EndTime:    sl.End,
		Attendance: scheduling.AttendanceScheduled,
	}
}

func proposal(teacher, student, room string, sl scheduling.Slot) scheduling.Proposal {
	return scheduling.Proposal{
		Slot:      sl,
		TeacherID: scheduling.TeacherID(teacher),
		StudentID: scheduling.StudentID(student),
		Room:      scheduling.RoomID(room),
	}
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestOverlaps_SymmetricAndHalfOpen(t *testing.T) {
	tests := []struct {
		name string
		a, b scheduling.Slot
		want bool
	}{
		{"partial", slot("2025-03-10", "09:00", "10:00"), slot("2025-03-10", "09:30", "10:30"), true},
		{"contained", slot("2025-03-10", "09:00", "12:00"), slot("2025-03-10", "10:00", "11:00"), true},
		{"identical", slot("2025-03-10", "09:00", "10:00"), slot("2025-03-10", "09:00", "10:00"), true},
		{"adjacent", slot("2025-03-10", "09:00", "10:00"), slot("2025-03-10", "10:00", "11:00"), false},
		{"other day", slot("2025-03-10", "09:00", "10:00"), slot("2025-03-11", "09:00", "10:00"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scheduling.Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, scheduling.Overlaps(tt.b, tt.a))
		})
	}
}

// =============================================================================
// PURE DETECTION
// =============================================================================

func TestDetectConflicts_TeacherDoubleBooked(t *testing.T) {
	// GIVEN: T1 teaches 09:00-10:00 on 2025-03-10
	existing := []scheduling.Schedule{
		existingRow("s1", "T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00")),
	}

	// WHEN: Proposing T1 for 09:30-10:30 with another student and room
	got := scheduling.DetectConflicts([]scheduling.Proposal{
		proposal("T1", "stu-b", "R2", slot("2025-03-10", "09:30", "10:30")),
	}, existing, nil)

	// THEN: One teacher conflict naming s1
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].SlotIndex)
	assert.Equal(t, []scheduling.Dimension{scheduling.DimensionTeacher}, got[0].Dimensions())
	assert.Equal(t, []scheduling.ScheduleID{"s1"}, got[0].ScheduleIDs(scheduling.DimensionTeacher))
}

func TestDetectConflicts_AdjacentIsClear(t *testing.T) {
	existing := []scheduling.Schedule{
		existingRow("s1", "T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00")),
	}

	got := scheduling.DetectConflicts([]scheduling.Proposal{
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "10:00", "11:00")),
	}, existing, nil)

	assert.Empty(t, got)
}

func TestDetectConflicts_AllDimensionsReported(t *testing.T) {
	// GIVEN: Three different rows each holding one of the resources
	existing := []scheduling.Schedule{
		existingRow("s-teacher", "T1", "stu-x", "R9", slot("2025-03-10", "09:00", "10:00")),
		existingRow("s-room", "T8", "stu-y", "R1", slot("2025-03-10", "09:15", "09:45")),
		existingRow("s-student", "T9", "stu-a", "R8", slot("2025-03-10", "09:50", "11:00")),
	}

	// WHEN: Proposing a slot that needs all three
	got := scheduling.DetectConflicts([]scheduling.Proposal{
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "09:30", "10:30")),
	}, existing, nil)

	// THEN: Every dimension is listed, in canonical order
	require.Len(t, got, 1)
	assert.Equal(t, []scheduling.Dimension{
		scheduling.DimensionTeacher, scheduling.DimensionRoom, scheduling.DimensionStudent,
	}, got[0].Dimensions())
	assert.Equal(t, []scheduling.ScheduleID{"s-room"}, got[0].ScheduleIDs(scheduling.DimensionRoom))
	assert.Equal(t, []scheduling.ScheduleID{"s-student"}, got[0].ScheduleIDs(scheduling.DimensionStudent))
}

func TestDetectConflicts_CancelledAndExcludedIgnored(t *testing.T) {
	cancelled := existingRow("s-cancelled", "T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00"))
	cancelled.Attendance = scheduling.AttendanceCancelled
	self := existingRow("s-self", "T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00"))

	got := scheduling.DetectConflicts([]scheduling.Proposal{
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00")),
	}, []scheduling.Schedule{cancelled, self}, map[scheduling.ScheduleID]bool{"s-self": true})

	assert.Empty(t, got)
}

func TestDetectConflicts_SiblingsWithinBatch(t *testing.T) {
	// GIVEN: Two overlapping slots for the same teacher in one batch
	proposals := []scheduling.Proposal{
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00")),
		proposal("T1", "stu-a", "R1", slot("2025-03-11", "09:00", "10:00")),
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "09:30", "10:30")),
	}

	// WHEN: Detecting with no persisted schedules
	got := scheduling.DetectConflicts(proposals, nil, nil)

	// THEN: Slots 0 and 2 point at each other on every shared dimension
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].SlotIndex)
	assert.Equal(t, 2, got[1].SlotIndex)
	require.Len(t, got[0].Collisions, 3)
	for _, c := range got[0].Collisions {
		assert.True(t, c.Sibling())
		assert.Equal(t, 2, c.SiblingIndex)
	}
	assert.Empty(t, got[0].ScheduleIDs(scheduling.DimensionTeacher))
}

func TestDetectConflicts_EmptyResourcesNeverCollide(t *testing.T) {
	existing := []scheduling.Schedule{
		existingRow("s1", "T1", "stu-a", "", slot("2025-03-10", "09:00", "10:00")),
	}

	got := scheduling.DetectConflicts([]scheduling.Proposal{
		proposal("T2", "stu-b", "", slot("2025-03-10", "09:00", "10:00")),
	}, existing, nil)

	assert.Empty(t, got)
}

// =============================================================================
// STORE-BACKED DETECTOR
// =============================================================================

type fakeReader struct {
	rows    []scheduling.Schedule
	filters []scheduling.ScheduleFilter
}

func (f *fakeReader) ListActiveSchedules(_ context.Context, filter scheduling.ScheduleFilter) ([]scheduling.Schedule, error) {
	f.filters = append(f.filters, filter)
	var out []scheduling.Schedule
	for _, s := range f.rows {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestDetector_CheckConflict_NarrowsFilter(t *testing.T) {
	// GIVEN: A reader holding a clashing row
	reader := &fakeReader{rows: []scheduling.Schedule{
		existingRow("s1", "T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00")),
	}}
	detector := scheduling.NewDetector(reader)

	// WHEN: Checking a single proposal
	d, err := detector.CheckConflict(context.Background(),
		proposal("T1", "stu-b", "R2", slot("2025-03-10", "09:30", "10:30")))

	// THEN: The conflict is found via a filter on that date and those resources
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, []scheduling.Dimension{scheduling.DimensionTeacher}, d.Dimensions())

	require.Len(t, reader.filters, 1)
	f := reader.filters[0]
	assert.Equal(t, []scheduling.Date{date("2025-03-10")}, f.Dates)
	assert.Equal(t, []scheduling.TeacherID{"T1"}, f.TeacherIDs)
	assert.Equal(t, []scheduling.RoomID{"R2"}, f.Rooms)
	assert.Equal(t, []scheduling.StudentID{"stu-b"}, f.StudentIDs)
}

func TestDetector_CheckConflict_ExcludeSelf(t *testing.T) {
	reader := &fakeReader{rows: []scheduling.Schedule{
		existingRow("s1", "T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00")),
	}}

	d, err := scheduling.NewDetector(reader).CheckConflict(context.Background(),
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "09:30", "10:30")), "s1")

	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDetector_CheckConflicts_EmptyBatch(t *testing.T) {
	reader := &fakeReader{}

	got, err := scheduling.NewDetector(reader).CheckConflicts(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, reader.filters)
}

func TestResourceKeys_SortedAndDeduplicated(t *testing.T) {
	keys := scheduling.ResourceKeys([]scheduling.Proposal{
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "09:00", "10:00")),
		proposal("T1", "stu-a", "R1", slot("2025-03-10", "11:00", "12:00")),
	})

	assert.Equal(t, []string{
		"room:R1:2025-03-10",
		"student:stu-a:2025-03-10",
		"teacher:T1:2025-03-10",
	}, keys)
}
