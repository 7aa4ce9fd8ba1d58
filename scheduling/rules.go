package scheduling

import "time"

// =============================================================================
// VALIDATION RULES - Pure predicates over a single proposed slot
// =============================================================================
//
// The same Rules value backs server-side enforcement (Coordinator) and the
// pre-validation endpoint the UI calls, so the two cannot drift.

// BusinessHours is the inclusive window slots must fall in.
type BusinessHours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// DefaultBusinessHours is 09:00-17:00.
var DefaultBusinessHours = BusinessHours{
	Open:  NewTimeOfDay(9, 0),
	Close: NewTimeOfDay(17, 0),
}

func (h BusinessHours) contains(t TimeOfDay) bool {
	return t >= h.Open && t <= h.Close
}

// WithinBusinessHours fails unless both start and end fall inside hours.
func WithinBusinessHours(hours BusinessHours, start, end TimeOfDay) error {
	if hours.contains(start) && hours.contains(end) {
		return nil
	}
	return &OutOfHoursError{Start: start, End: end, Open: hours.Open, Close: hours.Close}
}

// ValidTimeRange fails unless end is strictly after start.
func ValidTimeRange(start, end TimeOfDay) error {
	if end > start {
		return nil
	}
	return &InvalidRangeError{Start: start, End: end}
}

// NotPastDate fails unless date is today or later.
func NotPastDate(date, today Date) error {
	if date.Before(today) {
		return &PastDateError{Date: date, Today: today}
	}
	return nil
}

// Rules bundles the rule set with its configuration.
type Rules struct {
	Hours    BusinessHours
	Clock    Clock
	Location *time.Location
}

func NewRules(hours BusinessHours, clock Clock, loc *time.Location) Rules {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return Rules{Hours: hours, Clock: clock, Location: loc}
}

// Today returns the server-side current date.
func (r Rules) Today() Date { return Today(r.clock(), r.Location) }

// ValidateSlot runs every rule and reports all violations for the slot.
func (r Rules) ValidateSlot(index int, slot Slot) *SlotError {
	return r.validateSlot(index, slot, r.Today())
}

func (r Rules) validateSlot(index int, slot Slot, today Date) *SlotError {
	var violations []error
	if err := NotPastDate(slot.Date, today); err != nil {
		violations = append(violations, err)
	}
	if err := ValidTimeRange(slot.Start, slot.End); err != nil {
		violations = append(violations, err)
	}
	if err := WithinBusinessHours(r.Hours, slot.Start, slot.End); err != nil {
		violations = append(violations, err)
	}
	if len(violations) == 0 {
		return nil
	}
	return &SlotError{Index: index, Slot: slot, Violations: violations}
}

// ValidateBatch validates every slot against a single reading of the clock
// and returns nil or a *BatchValidationError listing each offending slot.
func (r Rules) ValidateBatch(slots []Slot) error {
	today := r.Today()
	var failed []*SlotError
	for i, s := range slots {
		if se := r.validateSlot(i, s, today); se != nil {
			failed = append(failed, se)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &BatchValidationError{Slots: failed}
}

func (r Rules) clock() Clock {
	if r.Clock == nil {
		return SystemClock{}
	}
	return r.Clock
}
