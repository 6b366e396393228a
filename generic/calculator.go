/*
calculator.go - Compliance summary calculation

PURPOSE:
  Applies one Rule to a set of trips as of a reference date. This is the
  central calculation that answers "how many days have I used, and how
  close am I to the limit?"

KEY INSIGHT:
  Days are counted as a SET, not a sum. Two trips that overlap on a day
  (a connecting flight logged twice, a calendar import plus a manual
  entry) still count that day once.

WINDOW PER METHOD:
  rolling:        [ref - (window-1), ref]
  calendar_year:  [anchor, min(ref, anchor + 1 year - 1 day)]
  fiscal_year:    same as calendar_year, different anchor

TRIP FILTERING:
  Only trips whose Jurisdiction equals rule.Code count. Trips with an
  empty jurisdiction (legacy data) belong to the caller's PrimaryZone.
  Malformed trips (end before start) are skipped, never counted.

NEXT EXPIRATION (rolling only):
  The earliest counted day e leaves the window on e + WindowDays. That
  is when the traveler gets a day back.

SEE ALSO:
  - rule.go: Window determination
  - period.go: Day-set union
  - simulator.go: Uses Calculate once per candidate day
*/
package generic

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes Summaries. It holds no state besides the zone that
// legacy trips (no jurisdiction) are attributed to, and is safe for
// concurrent use.
type Calculator struct {
	PrimaryZone JurisdictionCode
}

// Matches reports whether trip counts toward rule.
func (c *Calculator) Matches(rule Rule, trip Trip) bool {
	if trip.Jurisdiction == "" {
		return c.PrimaryZone != "" && rule.Code == c.PrimaryZone
	}
	return trip.Jurisdiction == rule.Code
}

// Filter returns the valid trips that count toward rule.
func (c *Calculator) Filter(rule Rule, trips []Trip) []Trip {
	var matched []Trip
	for _, t := range trips {
		if !t.Period().IsValid() {
			continue
		}
		if c.Matches(rule, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

// Calculate applies rule to trips as of ref.
func (c *Calculator) Calculate(rule Rule, trips []Trip, ref TimePoint) Summary {
	window := rule.Window(ref)
	counting := rule.CountingWindow(ref)
	matched := c.Filter(rule, trips)

	periods := make([]Period, 0, len(matched))
	tripCount := 0
	for _, t := range matched {
		p := t.Period()
		periods = append(periods, p)
		if p.Overlaps(counting) {
			tripCount++
		}
	}

	used := UnionDaysCovered(periods, counting)
	remaining := rule.DaysAllowed - used
	if remaining < 0 {
		remaining = 0
	}

	summary := Summary{
		Jurisdiction:  rule.Code,
		ReferenceDate: ref,
		DaysUsed:      used,
		DaysAllowed:   rule.DaysAllowed,
		DaysRemaining: remaining,
		Percentage:    Percentage(used, rule.DaysAllowed),
		Status:        StatusFor(used, rule.DaysAllowed),
		WindowStart:   window.Start,
		WindowEnd:     window.End,
		TripCount:     tripCount,
	}

	if rule.IsRolling() && used > 0 {
		c.predictExpiration(&summary, rule, periods, counting)
	}
	return summary
}

// predictExpiration fills the NextExpiring fields from the earliest counted day.
func (c *Calculator) predictExpiration(s *Summary, rule Rule, periods []Period, window Period) {
	merged := MergePeriods(periods, window)
	if len(merged) == 0 {
		return
	}
	earliest := merged[0].Start
	expires := earliest.AddDays(rule.WindowDays)

	contributing := 0
	for _, p := range periods {
		if p.Contains(earliest) {
			contributing++
		}
	}

	s.NextExpiring = &expires
	s.NextExpiringCount = contributing
}

// CalculateAll runs Calculate for each rule against the same trips.
func (c *Calculator) CalculateAll(rules []Rule, trips []Trip, ref TimePoint) map[JurisdictionCode]Summary {
	out := make(map[JurisdictionCode]Summary, len(rules))
	for _, r := range rules {
		out[r.Code] = c.Calculate(r, trips, ref)
	}
	return out
}
