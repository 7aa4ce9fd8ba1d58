package scheduling_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// testNow is the fixed "now" shared by the package tests: Saturday 2025-03-01 08:00 UTC.
var testNow = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

func testRules() scheduling.Rules {
	return scheduling.NewRules(scheduling.DefaultBusinessHours, scheduling.FixedClock{At: testNow}, time.UTC)
}

func tod(s string) scheduling.TimeOfDay { return scheduling.MustParseTimeOfDay(s) }

func date(s string) scheduling.Date { return scheduling.MustParseDate(s) }

func slot(d, start, end string) scheduling.Slot {
	return scheduling.Slot{Date: date(d), Start: tod(start), End: tod(end)}
}

// =============================================================================
// SINGLE RULES
// =============================================================================

func TestWithinBusinessHours_Boundaries(t *testing.T) {
	hours := scheduling.DefaultBusinessHours

	tests := []struct {
		name       string
		start, end string
		ok         bool
	}{
		{"inside", "10:00", "11:00", true},
		{"exactly open to close", "09:00", "17:00", true},
		{"starts before open", "08:30", "09:30", false},
		{"ends after close", "16:30", "17:30", false},
		{"entirely after close", "18:00", "19:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := scheduling.WithinBusinessHours(hours, tod(tt.start), tod(tt.end))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ooh *scheduling.OutOfHoursError
			require.ErrorAs(t, err, &ooh)
			assert.ErrorIs(t, err, scheduling.ErrValidation)
			assert.Equal(t, hours.Open, ooh.Open)
			assert.Equal(t, hours.Close, ooh.Close)
		})
	}
}

func TestValidTimeRange_EndMustFollowStart(t *testing.T) {
	assert.NoError(t, scheduling.ValidTimeRange(tod("09:00"), tod("09:30")))

	var ire *scheduling.InvalidRangeError
	assert.ErrorAs(t, scheduling.ValidTimeRange(tod("10:00"), tod("10:00")), &ire)
	assert.ErrorAs(t, scheduling.ValidTimeRange(tod("11:00"), tod("10:00")), &ire)
}

func TestNotPastDate_TodayIsAllowed(t *testing.T) {
	today := date("2025-03-01")

	assert.NoError(t, scheduling.NotPastDate(today, today))
	assert.NoError(t, scheduling.NotPastDate(date("2025-03-02"), today))

	var pde *scheduling.PastDateError
	require.ErrorAs(t, scheduling.NotPastDate(date("2025-02-28"), today), &pde)
	assert.Equal(t, today, pde.Today)
}

// =============================================================================
// RULE SET
// =============================================================================

func TestRules_Today_UsesInjectedClockAndLocation(t *testing.T) {
	// GIVEN: 23:30 UTC on Feb 28, which is already Mar 1 in Tokyo
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	clock := scheduling.FixedClock{At: time.Date(2025, time.February, 28, 23, 30, 0, 0, time.UTC)}

	// THEN: today follows the configured zone
	assert.Equal(t, date("2025-02-28"), scheduling.NewRules(scheduling.DefaultBusinessHours, clock, time.UTC).Today())
	assert.Equal(t, date("2025-03-01"), scheduling.NewRules(scheduling.DefaultBusinessHours, clock, tokyo).Today())
}

func TestValidateSlot_CollectsEveryViolation(t *testing.T) {
	// GIVEN: A past slot that is also reversed and out of hours
	rules := testRules()

	// WHEN: Validating it
	se := rules.ValidateSlot(3, slot("2025-02-20", "19:00", "18:00"))

	// THEN: All three rules are reported for that slot
	require.NotNil(t, se)
	assert.Equal(t, 3, se.Index)
	require.Len(t, se.Violations, 3)

	var (
		pde *scheduling.PastDateError
		ire *scheduling.InvalidRangeError
		ooh *scheduling.OutOfHoursError
	)
	assert.ErrorAs(t, se, &pde)
	assert.ErrorAs(t, se, &ire)
	assert.ErrorAs(t, se, &ooh)
	assert.ErrorIs(t, se, scheduling.ErrValidation)
}

func TestValidateBatch_ReportsAllOffendingSlots(t *testing.T) {
	// GIVEN: Five slots, two of them invalid
	rules := testRules()
	slots := []scheduling.Slot{
		slot("2025-03-10", "09:00", "10:00"),
		slot("2025-03-11", "08:00", "09:00"),
		slot("2025-03-12", "09:00", "10:00"),
		slot("2025-02-27", "09:00", "10:00"),
		slot("2025-03-14", "09:00", "10:00"),
	}

	// WHEN: Validating the batch
	err := rules.ValidateBatch(slots)

	// THEN: Both offenders are listed with their request index
	var bve *scheduling.BatchValidationError
	require.ErrorAs(t, err, &bve)
	require.Len(t, bve.Slots, 2)
	assert.Equal(t, 1, bve.Slots[0].Index)
	assert.Equal(t, 3, bve.Slots[1].Index)
	assert.Equal(t, scheduling.KindValidation, scheduling.KindOf(err))
	assert.False(t, scheduling.IsRetryable(err))
}

func TestValidateBatch_AllValid(t *testing.T) {
	assert.NoError(t, testRules().ValidateBatch([]scheduling.Slot{
		slot("2025-03-01", "09:00", "10:00"),
		slot("2025-03-03", "16:00", "17:00"),
	}))
}

// =============================================================================
// TIME VALUES
// =============================================================================

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want scheduling.TimeOfDay
		ok   bool
	}{
		{"09:00", scheduling.NewTimeOfDay(9, 0), true},
		{"17:30:00", scheduling.NewTimeOfDay(17, 30), true},
		{"24:00", scheduling.NewTimeOfDay(24, 0), true},
		{"9:5", 0, false},
		{"10:00:30", 0, false},
		{"25:00", 0, false},
		{"noon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := scheduling.ParseTimeOfDay(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDate_ParseAndCompare(t *testing.T) {
	d, err := scheduling.ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", d.String())
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, date("2025-03-17"), d.AddDays(7))
	assert.True(t, d.Before(date("2025-03-11")))
	assert.True(t, d.After(date("2024-12-31")))

	_, err = scheduling.ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestKindOf_Classification(t *testing.T) {
	tests := []struct {
		err  error
		want scheduling.Kind
	}{
		{nil, ""},
		{&scheduling.PastDateError{}, scheduling.KindValidation},
		{&scheduling.MismatchError{Field: "student_id"}, scheduling.KindValidation},
		{scheduling.ErrClassOptionInactive, scheduling.KindValidation},
		{&scheduling.IncompleteDateSelectionError{}, scheduling.KindPolicyCount},
		{&scheduling.ExcessDateSelectionError{}, scheduling.KindPolicyCount},
		{&scheduling.ConflictError{}, scheduling.KindConflict},
		{&scheduling.InvalidStateTransitionError{}, scheduling.KindInvalidTransition},
		{scheduling.ErrOptionReferenced, scheduling.KindInvalidTransition},
		{scheduling.ErrSessionNotFound, scheduling.KindNotFound},
		{&scheduling.CommitError{Op: "x", Err: errors.New("disk full")}, scheduling.KindCommit},
		{errors.New("boom"), scheduling.KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scheduling.KindOf(tt.err), "%v", tt.err)
	}
}
