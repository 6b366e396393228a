/*
Package generic provides the core stay-compliance engine.

PURPOSE:
  This package contains jurisdiction-agnostic types and algorithms for
  counting days spent inside a regulated zone. Whether the rule is a
  Schengen 90/180 visa limit, a UK visitor allowance or a US state's
  183-day tax residency test, the same engine turns a set of trips into
  used/remaining days, a risk status and a what-if forecast.

KEY CONCEPTS IN THIS FILE (types.go):
  - Trip: One continuous stay, inclusive of arrival and departure day
  - Summary: The computed result of applying a Rule to trips at a date
  - Status: Five fixed risk bands derived from percentage used
  - Identifiers: Type-safe jurisdiction, owner and trip IDs

DESIGN PRINCIPLES:
  1. Purity: No I/O, no globals, no goroutines. Same input, same output.
  2. Precision: Percentage uses decimal.Decimal so band edges are exact
  3. Type Safety: Strong typing for IDs prevents mixing owners/jurisdictions
  4. Immutability: Trips passed in are never modified

USAGE:
  calc := &generic.Calculator{PrimaryZone: "schengen"}
  summary := calc.Calculate(rule, trips, generic.Today())
  fmt.Println(summary.DaysRemaining, summary.Status)

SEE ALSO:
  - rule.go: Rule definitions and window determination
  - calculator.go: Summary computation
  - simulator.go: What-if planning
  - aggregator.go: Multi-jurisdiction and family roll-ups
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// JurisdictionCode is the unique key of a Rule (e.g. "schengen", "us_ny").
type JurisdictionCode string

// OwnerID identifies whose trip it is. Empty means the primary traveler.
type OwnerID string

type TripID string

// PrimaryOwner is the owner of trips not scoped to a family member.
const PrimaryOwner OwnerID = ""

// =============================================================================
// TRIP - One continuous stay
// =============================================================================

// TripSource records where a trip came from. The engine ignores it.
type TripSource string

const (
	SourceManual   TripSource = "manual"
	SourceCalendar TripSource = "calendar"
	SourcePhoto    TripSource = "photo"
	SourceGPS      TripSource = "gps"
)

// Trip is one continuous stay. Start and End are both counted.
type Trip struct {
	ID           TripID
	Start        TimePoint
	End          TimePoint
	Jurisdiction JurisdictionCode // empty = legacy trip, implicitly the primary zone
	Owner        OwnerID          // empty = primary traveler

	// Integration metadata, not used by the calculation
	Country    string // ISO 3166-1 alpha-2
	Source     TripSource
	Confidence float64 // importer confidence, 0..1
	Notes      string
}

// Period returns the stay as an inclusive day range.
func (t Trip) Period() Period {
	return Period{Start: t.Start, End: t.End}
}

// Days returns the number of days in the stay.
func (t Trip) Days() int {
	return CountInclusiveDays(t.Start, t.End)
}

// =============================================================================
// STATUS - Risk bands
// =============================================================================

type Status string

const (
	StatusSafe     Status = "safe"     // < 67%
	StatusWarning  Status = "warning"  // [67%, 89%)
	StatusDanger   Status = "danger"   // [89%, 94%)
	StatusCritical Status = "critical" // [94%, 100%)
	StatusExceeded Status = "exceeded" // >= 100%
)

var (
	warningThreshold  = decimal.NewFromInt(67)
	dangerThreshold   = decimal.NewFromInt(89)
	criticalThreshold = decimal.NewFromInt(94)
	exceededThreshold = decimal.NewFromInt(100)
)

// Severity orders statuses from safe (0) to exceeded (4).
func (s Status) Severity() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusDanger:
		return 2
	case StatusCritical:
		return 3
	case StatusExceeded:
		return 4
	default:
		return 0
	}
}

// Percentage returns used/allowed*100. Exact for every integer pair whose
// quotient terminates; otherwise accurate far beyond any band edge.
func Percentage(used, allowed int) decimal.Decimal {
	if allowed <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(used) * 100).Div(decimal.NewFromInt(int64(allowed)))
}

// StatusForPercentage maps a percentage onto the five bands.
func StatusForPercentage(pct decimal.Decimal) Status {
	switch {
	case pct.GreaterThanOrEqual(exceededThreshold):
		return StatusExceeded
	case pct.GreaterThanOrEqual(criticalThreshold):
		return StatusCritical
	case pct.GreaterThanOrEqual(dangerThreshold):
		return StatusDanger
	case pct.GreaterThanOrEqual(warningThreshold):
		return StatusWarning
	default:
		return StatusSafe
	}
}

// StatusFor maps used/allowed days onto the five bands. The bands are the
// same for every jurisdiction. A non-positive allowance is always exceeded.
func StatusFor(used, allowed int) Status {
	if allowed <= 0 {
		return StatusExceeded
	}
	return StatusForPercentage(Percentage(used, allowed))
}

// =============================================================================
// SUMMARY - Computed state at a reference date
// =============================================================================

// Summary is the result of applying one Rule to a set of trips as of a date.
// It is a pure value, recomputed on every call.
type Summary struct {
	Jurisdiction  JurisdictionCode
	ReferenceDate TimePoint

	DaysUsed      int
	DaysAllowed   int
	DaysRemaining int
	Percentage    decimal.Decimal
	Status        Status

	WindowStart TimePoint
	WindowEnd   TimePoint

	// Rolling rules only: the next date on which a counted day leaves the
	// window and how many trips cover that day.
	NextExpiring      *TimePoint
	NextExpiringCount int

	// Matching trips that overlap the counting window
	TripCount int
}

// IsOverLimit reports whether the allowance has been used up or exceeded.
func (s Summary) IsOverLimit() bool {
	return s.DaysUsed >= s.DaysAllowed
}
