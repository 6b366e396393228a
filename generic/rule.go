/*
rule.go - Jurisdiction rule definitions and window determination

PURPOSE:
  Defines the contract between a jurisdiction and a traveler: how many
  days are allowed, over what window, and how the window is anchored.
  A Rule is configuration data. It is validated once when loaded and
  treated as immutable afterwards.

COUNTING METHODS:
  rolling:
    - Window is the last WindowDays days ending on the reference date
    - Example: Schengen 90/180, any 180-day period ending today
    - Days "expire" one by one as the window slides forward

  calendar_year:
    - Window is the year starting at (ResetMonth, ResetDay)
    - Example: US state residency, Jan 1 - Dec 31
    - Everything resets on the anchor date

  fiscal_year:
    - Same algorithm as calendar_year with a non-Jan-1 anchor
    - Example: UK tax year, Apr 6 - Apr 5

EXAMPLE:
  rule := Rule{
      Code:        "schengen",
      Name:        "Schengen Area",
      DaysAllowed: 90,
      WindowDays:  180,
      Method:      MethodRolling,
  }
  if err := rule.Validate(); err != nil {
      log.Fatal(err) // configuration errors are fatal at load time
  }
  window := rule.Window(generic.Today())
*/
package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// RULE - Counting method and parameters for one jurisdiction
// =============================================================================

// CountingMethod determines how the counting window is built.
type CountingMethod string

const (
	MethodRolling      CountingMethod = "rolling"
	MethodCalendarYear CountingMethod = "calendar_year"
	MethodFiscalYear   CountingMethod = "fiscal_year"
)

// IsValid reports whether m is a known counting method.
func (m CountingMethod) IsValid() bool {
	switch m {
	case MethodRolling, MethodCalendarYear, MethodFiscalYear:
		return true
	}
	return false
}

// Rule defines one jurisdiction's compliance limit.
type Rule struct {
	Code        JurisdictionCode
	Name        string
	DaysAllowed int
	WindowDays  int // rolling window size; informational for year methods
	Method      CountingMethod

	// Year anchor for calendar_year and fiscal_year (default Jan 1)
	ResetMonth time.Month
	ResetDay   int
}

// WithDefaults fills in the Jan 1 anchor when unset.
func (r Rule) WithDefaults() Rule {
	if r.ResetMonth == 0 {
		r.ResetMonth = time.January
	}
	if r.ResetDay == 0 {
		r.ResetDay = 1
	}
	return r
}

// MaxRuleDays bounds DaysAllowed and WindowDays. No real allowance or
// window is longer than a leap year, and the planners iterate over both.
const MaxRuleDays = 366

// Validate returns a *ConfigurationError describing the first problem found.
func (r Rule) Validate() error {
	invalid := func(field, reason string) error {
		return &ConfigurationError{Code: r.Code, Field: field, Reason: reason}
	}

	if r.Code == "" {
		return invalid("code", "must not be empty")
	}
	if r.Method == "" {
		return invalid("counting_method", "is required")
	}
	if !r.Method.IsValid() {
		return invalid("counting_method", fmt.Sprintf("unknown method %q", r.Method))
	}
	if r.DaysAllowed <= 0 {
		return invalid("days_allowed", fmt.Sprintf("must be positive, got %d", r.DaysAllowed))
	}
	if r.DaysAllowed > MaxRuleDays {
		return invalid("days_allowed", fmt.Sprintf("must be at most %d, got %d", MaxRuleDays, r.DaysAllowed))
	}
	if r.Method == MethodRolling && r.WindowDays <= 0 {
		return invalid("window_days", fmt.Sprintf("must be positive for rolling rules, got %d", r.WindowDays))
	}
	if r.WindowDays > MaxRuleDays {
		return invalid("window_days", fmt.Sprintf("must be at most %d, got %d", MaxRuleDays, r.WindowDays))
	}
	if r.ResetMonth != 0 && (r.ResetMonth < time.January || r.ResetMonth > time.December) {
		return invalid("reset_month", fmt.Sprintf("must be 1-12, got %d", r.ResetMonth))
	}
	if r.ResetDay != 0 && (r.ResetDay < 1 || r.ResetDay > 31) {
		return invalid("reset_day", fmt.Sprintf("must be 1-31, got %d", r.ResetDay))
	}
	return nil
}

// IsRolling reports whether days expire individually out of a sliding window.
func (r Rule) IsRolling() bool {
	return r.Method == MethodRolling
}

// =============================================================================
// WINDOW CALCULATOR - Determines which window a date falls into
// =============================================================================

// Window returns the full window containing ref.
//
//	rolling:            [ref - (WindowDays-1), ref]
//	calendar/fiscal:    [anchor, next anchor - 1 day], anchor <= ref
func (r Rule) Window(ref TimePoint) Period {
	switch r.Method {
	case MethodRolling:
		return Period{Start: ref.AddDays(-(r.WindowDays - 1)), End: ref}
	default:
		return r.yearWindow(ref)
	}
}

// CountingWindow is the part of Window that can hold counted days as of ref.
// Year windows stop at ref; future days in the year are not yet spent.
func (r Rule) CountingWindow(ref TimePoint) Period {
	w := r.Window(ref)
	w.End = MinTimePoint(w.End, ref)
	return w
}

func (r Rule) yearWindow(ref TimePoint) Period {
	d := r.WithDefaults()

	start := AnchorDate(ref.Year(), d.ResetMonth, d.ResetDay)
	// If ref is before this year's anchor, we're in the previous year
	if ref.Before(start) {
		start = AnchorDate(ref.Year()-1, d.ResetMonth, d.ResetDay)
	}

	next := AnchorDate(start.Year()+1, d.ResetMonth, d.ResetDay)
	return Period{Start: start, End: next.AddDays(-1)}
}

// NextReset returns the first day of the window following the one containing
// ref. For rolling rules there is no reset; the zero TimePoint is returned.
func (r Rule) NextReset(ref TimePoint) TimePoint {
	if r.IsRolling() {
		return TimePoint{}
	}
	return r.Window(ref).End.AddDays(1)
}
