package scheduling

import "fmt"

// =============================================================================
// CLASS OPTION POLICY - How many dates a batch must contain
// =============================================================================

// Requirement is the outcome of a date-count check. Required is nil when the
// mode has no fixed count.
type Requirement struct {
	Mode      ClassMode
	Required  *int
	Selected  int
	Satisfied bool
	Allowed   int // dates this batch may contain, when bounded
	Shortfall int
	Excess    int
	Message   string
}

// Err converts an unsatisfied requirement into its typed error.
func (r Requirement) Err() error {
	if r.Satisfied {
		return nil
	}
	if r.Excess > 0 {
		return &ExcessDateSelectionError{Mode: r.Mode, Required: r.Allowed, Selected: r.Selected, Excess: r.Excess}
	}
	return &IncompleteDateSelectionError{
		Mode:      r.Mode,
		Required:  r.Selected + r.Shortfall,
		Selected:  r.Selected,
		Shortfall: r.Shortfall,
	}
}

// CheckDateCount evaluates a batch of selected dates against the class mode.
//
//	fixed-12:     cumulative; scheduled+selected must stay within limit
//	camp-N:       exactly N in this batch, and the session must not already
//	              hold active schedules
//	package-open: any positive batch
//
// scheduled is the session's current non-cancelled schedule count.
func CheckDateCount(mode ClassMode, limit, scheduled, selected int) Requirement {
	r := Requirement{Mode: mode, Selected: selected}

	switch {
	case mode.IsCamp():
		n := mode.CampDays()
		r.Required = intPtr(n)
		r.Allowed = n
		switch {
		case selected < n:
			r.Shortfall = n - selected
			r.Message = fmt.Sprintf("%s needs exactly %d dates: select %d more", mode, n, r.Shortfall)
		case selected > n:
			r.Excess = selected - n
			r.Message = fmt.Sprintf("%s needs exactly %d dates: remove %d", mode, n, r.Excess)
		case scheduled > 0:
			r.Allowed = 0
			r.Excess = selected
			r.Message = fmt.Sprintf("%s already has %d scheduled dates", mode, scheduled)
		default:
			r.Satisfied = true
			r.Message = fmt.Sprintf("%d of %d dates selected", selected, n)
		}

	case mode == ModeFixed12:
		if limit <= 0 {
			limit = mode.DefaultClassLimit()
		}
		r.Required = intPtr(limit)
		r.Allowed = max(limit-scheduled, 0)
		switch {
		case selected == 0:
			r.Shortfall = 1
			r.Message = "select at least one date"
		case scheduled+selected > limit:
			r.Excess = scheduled + selected - limit
			r.Message = fmt.Sprintf("%d of %d classes already scheduled: remove %d dates",
				scheduled, limit, r.Excess)
		default:
			r.Satisfied = true
			r.Message = fmt.Sprintf("%d of %d classes scheduled after this batch", scheduled+selected, limit)
		}

	default:
		if selected == 0 {
			r.Shortfall = 1
			r.Message = "select at least one date"
		} else {
			r.Satisfied = true
			r.Message = fmt.Sprintf("%d dates selected", selected)
		}
	}
	return r
}

// CheckReinstate evaluates bringing one cancelled schedule back into use
// on a session that holds active non-cancelled schedules. Bounded modes
// must stay within their total; package-open is always satisfied.
func CheckReinstate(mode ClassMode, limit, active int) Requirement {
	r := Requirement{Mode: mode, Selected: 1}

	switch {
	case mode.IsCamp():
		limit = mode.CampDays()
	case mode == ModeFixed12:
		if limit <= 0 {
			limit = mode.DefaultClassLimit()
		}
	default:
		r.Satisfied = true
		r.Message = "reinstated"
		return r
	}

	r.Required = intPtr(limit)
	r.Allowed = max(limit-active, 0)
	if active+1 > limit {
		r.Excess = active + 1 - limit
		r.Message = fmt.Sprintf("%d of %d classes already scheduled: cannot reinstate", active, limit)
		return r
	}
	r.Satisfied = true
	r.Message = fmt.Sprintf("%d of %d classes scheduled after reinstating", active+1, limit)
	return r
}

func intPtr(n int) *int { return &n }
