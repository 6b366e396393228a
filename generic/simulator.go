/*
simulator.go - What-if trip planning

PURPOSE:
  Answers "COULD I take this trip?" without committing anything. The
  simulator adds a hypothetical trip to the existing ones and replays
  the calculator for every day of the proposed stay.

KEY INSIGHT:
  A trip can be legal on arrival and illegal on day 6. For rolling rules
  the window slides while the traveler is inside the zone: old days drop
  out at the same time new days are added. So every day d of the
  proposed stay is checked as its own reference date, with the proposed
  trip truncated to [start, d].

OPERATIONS:
  Simulate:               Violation days for one proposed trip
  FindEarliestSafeStart:  First start date (from today) with no violation
  FindMaxSafeLength:      Longest trip from a given start with no violation

ITERATION ORDER:
  FindEarliestSafeStart is a nested loop over at most HorizonDays
  candidates x MaxRuleDays days; the earliest date wins. Each candidate
  stops at its first violating day. FindMaxSafeLength binary-searches
  1..DaysAllowed: a trip that violates on day d violates for every
  longer length too, because the days up to d are replayed identically.

EXAMPLE:
  sim := &Simulator{Calculator: calc}
  result := sim.Simulate(schengen, trips, may25, jun3)
  if result.WouldViolate {
      fmt.Println("over by", result.DaysOverLimit, "first on", result.Violations[0])
  }
*/
package generic

import (
	"fmt"
	"sort"
)

// DefaultSearchHorizon bounds FindEarliestSafeStart.
const DefaultSearchHorizon = 365

// =============================================================================
// SIMULATOR
// =============================================================================

// Simulator evaluates hypothetical trips. Safe for concurrent use.
type Simulator struct {
	Calculator *Calculator

	// HorizonDays is how many candidate start dates FindEarliestSafeStart
	// tries. Zero means DefaultSearchHorizon.
	HorizonDays int

	// Now returns "today". Nil means Today().
	Now func() TimePoint
}

// SimulationResult is the outcome of one what-if check.
type SimulationResult struct {
	Jurisdiction JurisdictionCode
	Proposed     Period

	WouldViolate  bool
	Violations    []TimePoint // days on which the count exceeds the allowance
	MaxDaysUsed   int
	DaysOverLimit int
	DaysAllowed   int

	// Status as of the last proposed day
	FinalStatus Status
}

// FirstViolation returns the first violating day, or nil.
func (r SimulationResult) FirstViolation() *TimePoint {
	if len(r.Violations) == 0 {
		return nil
	}
	d := r.Violations[0]
	return &d
}

func (s *Simulator) calculator() *Calculator {
	if s.Calculator == nil {
		return &Calculator{}
	}
	return s.Calculator
}

func (s *Simulator) horizon() int {
	if s.HorizonDays <= 0 {
		return DefaultSearchHorizon
	}
	return s.HorizonDays
}

func (s *Simulator) today() TimePoint {
	if s.Now == nil {
		return Today()
	}
	return s.Now()
}

// Simulate checks a proposed stay [start, end] in rule's jurisdiction.
// Returns *InvalidTripError if end is before start.
func (s *Simulator) Simulate(rule Rule, existing []Trip, start, end TimePoint) (SimulationResult, error) {
	proposed := Trip{ID: "proposed", Start: start, End: end, Jurisdiction: rule.Code}
	if err := ValidateTrip(proposed); err != nil {
		return SimulationResult{}, err
	}
	return s.simulate(rule, existing, proposed), nil
}

func (s *Simulator) simulate(rule Rule, existing []Trip, proposed Trip) SimulationResult {
	calc := s.calculator()

	// One scratch slice: existing trips followed by the truncated proposal
	trips := make([]Trip, len(existing)+1)
	copy(trips, existing)

	result := SimulationResult{
		Jurisdiction: rule.Code,
		Proposed:     proposed.Period(),
		DaysAllowed:  rule.DaysAllowed,
	}

	for d := proposed.Start; d.BeforeOrEqual(proposed.End); d = d.AddDays(1) {
		trips[len(existing)] = truncate(proposed, d)

		summary := calc.Calculate(rule, trips, d)
		if summary.DaysUsed > result.MaxDaysUsed {
			result.MaxDaysUsed = summary.DaysUsed
		}
		if summary.DaysUsed > rule.DaysAllowed {
			result.Violations = append(result.Violations, d)
		}
		result.FinalStatus = summary.Status
	}

	result.WouldViolate = len(result.Violations) > 0
	if over := result.MaxDaysUsed - rule.DaysAllowed; over > 0 {
		result.DaysOverLimit = over
	}
	return result
}

// violates reports whether proposed exceeds the allowance on any of its
// days, returning on the first one.
func (s *Simulator) violates(rule Rule, existing []Trip, proposed Trip) bool {
	calc := s.calculator()

	trips := make([]Trip, len(existing)+1)
	copy(trips, existing)

	for d := proposed.Start; d.BeforeOrEqual(proposed.End); d = d.AddDays(1) {
		trips[len(existing)] = truncate(proposed, d)
		if calc.Calculate(rule, trips, d).DaysUsed > rule.DaysAllowed {
			return true
		}
	}
	return false
}

func truncate(t Trip, end TimePoint) Trip {
	t.End = end
	return t
}

func proposedTrip(rule Rule, start TimePoint, length int) Trip {
	return Trip{ID: "proposed", Start: start, End: start.AddDays(length - 1), Jurisdiction: rule.Code}
}

// FindEarliestSafeStart searches forward from today for the first start date
// at which a trip of length days has no violation. Returns nil when nothing
// within the horizon fits.
func (s *Simulator) FindEarliestSafeStart(rule Rule, existing []Trip, length int) (*TimePoint, error) {
	return s.FindEarliestSafeStartFrom(rule, existing, length, s.today())
}

// FindEarliestSafeStartFrom is FindEarliestSafeStart with an explicit origin.
func (s *Simulator) FindEarliestSafeStartFrom(rule Rule, existing []Trip, length int, from TimePoint) (*TimePoint, error) {
	if length < 1 || length > MaxRuleDays {
		return nil, fmt.Errorf("%w: %d days, must be 1-%d", ErrInvalidTripLength, length, MaxRuleDays)
	}

	for i := 0; i < s.horizon(); i++ {
		start := from.AddDays(i)
		if !s.violates(rule, existing, proposedTrip(rule, start, length)) {
			return &start, nil
		}
	}
	return nil, nil
}

// FindMaxSafeLength returns the longest stay starting on start that never
// exceeds the allowance, searching 1..DaysAllowed days (capped at
// MaxRuleDays). 0 means even a one-day trip would violate.
func (s *Simulator) FindMaxSafeLength(rule Rule, existing []Trip, start TimePoint) int {
	limit := min(rule.DaysAllowed, MaxRuleDays)
	if limit <= 0 {
		return 0
	}
	// Index i is length i+1, so the first violating index is the last safe length
	return sort.Search(limit, func(i int) bool {
		return s.violates(rule, existing, proposedTrip(rule, start, i+1))
	})
}
