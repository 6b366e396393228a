package generic

import "sort"

// =============================================================================
// PERIOD - The core concept for day counting
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
//
// Periods show up in two roles:
//   - A trip's stay (arrival day through departure day)
//   - A counting window (rolling 180 days, a calendar year, a fiscal year)
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Len returns the number of days in the period, 0 if End is before Start.
func (p Period) Len() int {
	return CountInclusiveDays(p.Start, p.End)
}

// IsValid reports whether the period has at least one day.
func (p Period) IsValid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.End.Before(p.Start)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Clip intersects p with window. ok is false when they share no day.
func (p Period) Clip(window Period) (clipped Period, ok bool) {
	if !p.IsValid() || !window.IsValid() {
		return Period{}, false
	}
	if p.End.Before(window.Start) || p.Start.After(window.End) {
		return Period{}, false
	}
	return Period{
		Start: Clamp(p.Start, window.Start, window.End),
		End:   Clamp(p.End, window.Start, window.End),
	}, true
}

// Overlaps reports whether p and other share at least one day.
func (p Period) Overlaps(other Period) bool {
	_, ok := p.Clip(other)
	return ok
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// DAY-SET UNION
// =============================================================================

// MergePeriods clips every period to window, drops the ones entirely outside,
// and merges overlapping or adjacent intervals. The result is sorted and
// pairwise disjoint with at least one free day between neighbours.
func MergePeriods(periods []Period, window Period) []Period {
	clipped := make([]Period, 0, len(periods))
	for _, p := range periods {
		if c, ok := p.Clip(window); ok {
			clipped = append(clipped, c)
		}
	}
	if len(clipped) == 0 {
		return nil
	}

	sort.Slice(clipped, func(i, j int) bool {
		return clipped[i].Start.Before(clipped[j].Start)
	})

	merged := []Period{clipped[0]}
	for _, p := range clipped[1:] {
		last := &merged[len(merged)-1]
		// Adjacent (last ends the day before p starts) merges as well
		if p.Start.BeforeOrEqual(last.End.AddDays(1)) {
			last.End = MaxTimePoint(last.End, p.End)
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// UnionDaysCovered counts distinct calendar days inside window that are
// covered by at least one period. Overlapping periods never double-count.
func UnionDaysCovered(periods []Period, window Period) int {
	total := 0
	for _, p := range MergePeriods(periods, window) {
		total += p.Len()
	}
	return total
}

// CoveredDays returns the sorted distinct days inside window covered by any
// period. Prefer UnionDaysCovered when only the count is needed.
func CoveredDays(periods []Period, window Period) []TimePoint {
	var days []TimePoint
	for _, p := range MergePeriods(periods, window) {
		days = append(days, p.Days()...)
	}
	return days
}
