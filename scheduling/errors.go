/*
errors.go - Error taxonomy for the scheduling engine

PURPOSE:
  All error types in one place. Every error the engine returns is one of
  five kinds, each carrying enough structure (slot index, dimension,
  required vs. actual count) for the caller to render an actionable message.

ERROR KINDS:
  1. validation:               business hours / time range / past date
  2. policy_count:             wrong number of dates for the class mode
  3. conflict:                 teacher / room / student double-booking
  4. commit:                   store failure during the atomic write (retryable)
  5. invalid_state_transition: session lifecycle violation

  Plus not_found for unknown sessions, schedules and class options.

USAGE:
  _, err := engine.CreateBulkSchedules(ctx, batch)
  var conflictErr *scheduling.ConflictError
  if errors.As(err, &conflictErr) {
      for _, c := range conflictErr.Conflicts { ... }
  }
  if scheduling.IsRetryable(err) {
      // same payload is safe to resend
  }

SEE ALSO:
  - rules.go, policy.go, conflict.go, lifecycle.go: Producers
  - api/errors.go: HTTP status mapping
*/
package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every slot validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrPolicyCount is wrapped when the selected date count does not fit the class mode.
	ErrPolicyCount = errors.New("date count does not satisfy class option")

	// ErrConflict is wrapped by teacher, room and student double-bookings.
	ErrConflict = errors.New("schedule conflict")

	// ErrCommit is wrapped by store failures during the atomic write.
	ErrCommit = errors.New("commit failed")

	// ErrInvalidTransition is wrapped by session lifecycle violations.
	ErrInvalidTransition = errors.New("invalid session state transition")

	ErrSessionNotFound     = errors.New("session not found")
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrClassOptionNotFound = errors.New("class option not found")

	// ErrClassOptionInactive is returned when assigning an option outside its effective window.
	ErrClassOptionInactive = errors.New("class option is not active")

	// ErrOptionReferenced is returned when changing a class option a session already uses.
	ErrOptionReferenced = errors.New("class option is referenced by a session")

	// ErrDuplicate is returned by stores when a primary key already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// =============================================================================
// KINDS - Tagged variants for callers that switch on category
// =============================================================================

type Kind string

const (
	KindValidation        Kind = "validation"
	KindPolicyCount       Kind = "policy_count"
	KindConflict          Kind = "conflict"
	KindCommit            Kind = "commit"
	KindInvalidTransition Kind = "invalid_state_transition"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

// KindOf classifies err. Nil errors have an empty kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrClassOptionInactive):
		return KindValidation
	case errors.Is(err, ErrPolicyCount):
		return KindPolicyCount
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrOptionReferenced):
		return KindInvalidTransition
	case IsNotFound(err):
		return KindNotFound
	case errors.Is(err, ErrCommit):
		return KindCommit
	}
	return KindInternal
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// OutOfHoursError is returned when a slot starts or ends outside business hours.
type OutOfHoursError struct {
	Start TimeOfDay
	End   TimeOfDay
	Open  TimeOfDay
	Close TimeOfDay
}

func (e *OutOfHoursError) Error() string {
	return fmt.Sprintf("%s-%s is outside business hours %s-%s", e.Start, e.End, e.Open, e.Close)
}

func (e *OutOfHoursError) Unwrap() error { return ErrValidation }

// InvalidRangeError is returned when a slot does not end after it starts.
type InvalidRangeError struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("end time %s must be after start time %s", e.End, e.Start)
}

func (e *InvalidRangeError) Unwrap() error { return ErrValidation }

// PastDateError is returned when a slot is dated before the server's today.
type PastDateError struct {
	Date  Date
	Today Date
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("date %s is in the past (today is %s)", e.Date, e.Today)
}

func (e *PastDateError) Unwrap() error { return ErrValidation }

// SlotError collects every rule a single slot violates.
type SlotError struct {
	Index      int
	Slot       Slot
	Violations []error
}

func (e *SlotError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("slot %d (%s): %s", e.Index, e.Slot, strings.Join(msgs, "; "))
}

func (e *SlotError) Unwrap() []error { return e.Violations }

// BatchValidationError lists every offending slot of a batch.
type BatchValidationError struct {
	Slots []*SlotError
}

func (e *BatchValidationError) Error() string {
	if len(e.Slots) == 1 {
		return e.Slots[0].Error()
	}
	return fmt.Sprintf("%d slots failed validation; first: %s", len(e.Slots), e.Slots[0].Error())
}

func (e *BatchValidationError) Unwrap() []error {
	errs := make([]error, len(e.Slots))
	for i, s := range e.Slots {
		errs[i] = s
	}
	return errs
}

// MismatchError is returned when a batch names a different student or course
// than the session it targets.
type MismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: session has %q, request has %q", e.Field, e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error { return ErrValidation }

// =============================================================================
// POLICY COUNT ERRORS
// =============================================================================

// IncompleteDateSelectionError is returned when too few dates are selected.
type IncompleteDateSelectionError struct {
	Mode      ClassMode
	Required  int
	Selected  int
	Shortfall int
}

func (e *IncompleteDateSelectionError) Error() string {
	return fmt.Sprintf("%s requires %d dates, %d selected (%d more needed)",
		e.Mode, e.Required, e.Selected, e.Shortfall)
}

func (e *IncompleteDateSelectionError) Unwrap() error { return ErrPolicyCount }

// ExcessDateSelectionError is returned when too many dates are selected.
// For cumulative modes Required is the remaining entitlement.
type ExcessDateSelectionError struct {
	Mode     ClassMode
	Required int
	Selected int
	Excess   int
}

func (e *ExcessDateSelectionError) Error() string {
	return fmt.Sprintf("%s allows %d dates, %d selected (%d too many)",
		e.Mode, e.Required, e.Selected, e.Excess)
}

func (e *ExcessDateSelectionError) Unwrap() error { return ErrPolicyCount }

// =============================================================================
// CONFLICT ERRORS
// =============================================================================

// ConflictError carries every conflict found for a batch so the operator can
// resolve all of them in one pass.
type ConflictError struct {
	Conflicts []ConflictDetail
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return ErrConflict.Error()
	}
	first := e.Conflicts[0]
	return fmt.Sprintf("%d conflicting slots; slot %d (%s) collides on %s",
		len(e.Conflicts), first.SlotIndex, first.Slot, joinDimensions(first.Dimensions()))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Dimensions returns every distinct dimension across all conflicts.
func (e *ConflictError) Dimensions() []Dimension {
	seen := make(map[Dimension]bool)
	var out []Dimension
	for _, c := range e.Conflicts {
		for _, d := range c.Dimensions() {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

func joinDimensions(ds []Dimension) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

// =============================================================================
// COMMIT / STATE ERRORS
// =============================================================================

// CommitError wraps a store failure during the atomic write. Nothing was
// persisted; the identical batch is safe to retry.
type CommitError struct {
	Op  string
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.Op, e.Err)
}

func (e *CommitError) Unwrap() []error { return []error{ErrCommit, e.Err} }

// InvalidStateTransitionError is returned when a session cannot take the
// requested edge. Not retryable; indicates a caller logic error.
type InvalidStateTransitionError struct {
	SessionID SessionID
	From      SessionStatus
	Event     LifecycleEvent
	Reason    string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("session %s: cannot %s from status %s", e.SessionID, e.Event, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether resending the identical request may succeed.
// Only commit failures qualify.
func IsRetryable(err error) bool {
	return KindOf(err) == KindCommit
}

// IsClientError reports whether the caller must change the request.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindPolicyCount, KindConflict, KindInvalidTransition:
		return true
	}
	return false
}

// IsNotFound reports whether err names a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrClassOptionNotFound)
}
