package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staycount/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func period(start, end generic.TimePoint) generic.Period {
	return generic.Period{Start: start, End: end}
}

func year2024() generic.Period {
	return period(date(2024, time.January, 1), date(2024, time.December, 31))
}

// =============================================================================
// INCLUSIVE DAY COUNTING
// =============================================================================

func TestCountInclusiveDays(t *testing.T) {
	tests := []struct {
		name       string
		start, end generic.TimePoint
		want       int
	}{
		{"same day", date(2024, time.March, 1), date(2024, time.March, 1), 1},
		{"january", date(2024, time.January, 1), date(2024, time.January, 31), 31},
		{"leap february", date(2024, time.February, 1), date(2024, time.February, 29), 29},
		{"across year end", date(2023, time.December, 30), date(2024, time.January, 2), 4},
		{"end before start", date(2024, time.March, 2), date(2024, time.March, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.CountInclusiveDays(tt.start, tt.end))
		})
	}
}

func TestClamp(t *testing.T) {
	lo, hi := date(2024, time.January, 1), date(2024, time.January, 31)

	assert.Equal(t, lo, generic.Clamp(date(2023, time.December, 15), lo, hi))
	assert.Equal(t, hi, generic.Clamp(date(2024, time.February, 15), lo, hi))
	assert.Equal(t, date(2024, time.January, 10), generic.Clamp(date(2024, time.January, 10), lo, hi))
}

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 1), d)

	_, err = generic.ParseDate("06/01/2024")
	assert.Error(t, err)
}

func TestAnchorDate_ClampsToMonthEnd(t *testing.T) {
	// Feb 29 anchor in a common year falls back to Feb 28
	assert.Equal(t, date(2025, time.February, 28), generic.AnchorDate(2025, time.February, 29))
	assert.Equal(t, date(2024, time.February, 29), generic.AnchorDate(2024, time.February, 29))
	assert.Equal(t, date(2024, time.April, 30), generic.AnchorDate(2024, time.April, 31))
}

// =============================================================================
// CLIP
// =============================================================================

func TestPeriod_Clip(t *testing.T) {
	window := period(date(2024, time.March, 1), date(2024, time.March, 31))

	clipped, ok := period(date(2024, time.February, 20), date(2024, time.March, 5)).Clip(window)
	require.True(t, ok)
	assert.Equal(t, period(date(2024, time.March, 1), date(2024, time.March, 5)), clipped)

	_, ok = period(date(2024, time.April, 1), date(2024, time.April, 5)).Clip(window)
	assert.False(t, ok, "trip entirely after the window")

	_, ok = period(date(2024, time.March, 5), date(2024, time.March, 1)).Clip(window)
	assert.False(t, ok, "malformed period never clips")
}

// =============================================================================
// DAY-SET UNION
// =============================================================================

func TestUnionDaysCovered_DisjointEqualsSumOfClippedLengths(t *testing.T) {
	// GIVEN: Three non-overlapping trips, one straddling the window start
	// WHEN: Counting the union
	// THEN: It equals the sum of each trip's clipped inclusive length

	window := period(date(2024, time.February, 1), date(2024, time.June, 30))
	trips := []generic.Period{
		period(date(2024, time.January, 20), date(2024, time.February, 10)),
		period(date(2024, time.March, 1), date(2024, time.March, 31)),
		period(date(2024, time.May, 5), date(2024, time.May, 9)),
	}

	sum := 0
	for _, p := range trips {
		if c, ok := p.Clip(window); ok {
			sum += c.Len()
		}
	}

	assert.Equal(t, 10+31+5, sum)
	assert.Equal(t, sum, generic.UnionDaysCovered(trips, window))
}

func TestUnionDaysCovered_OverlapCountedOnce(t *testing.T) {
	// GIVEN: Jan 1-10 and Jan 5-15 overlap on Jan 5-10
	// THEN: 15 distinct days, not 10 + 11
	trips := []generic.Period{
		period(date(2024, time.January, 1), date(2024, time.January, 10)),
		period(date(2024, time.January, 5), date(2024, time.January, 15)),
	}
	assert.Equal(t, 15, generic.UnionDaysCovered(trips, year2024()))
}

func TestUnionDaysCovered_DuplicateTripCountedOnce(t *testing.T) {
	p := period(date(2024, time.July, 1), date(2024, time.July, 7))
	assert.Equal(t, 7, generic.UnionDaysCovered([]generic.Period{p, p, p}, year2024()))
}

func TestUnionDaysCovered_Adjacent(t *testing.T) {
	trips := []generic.Period{
		period(date(2024, time.January, 11), date(2024, time.January, 20)),
		period(date(2024, time.January, 1), date(2024, time.January, 10)),
	}
	assert.Equal(t, 20, generic.UnionDaysCovered(trips, year2024()))

	merged := generic.MergePeriods(trips, year2024())
	require.Len(t, merged, 1, "adjacent trips merge into one interval")
	assert.Equal(t, date(2024, time.January, 1), merged[0].Start)
}

func TestUnionDaysCovered_ContainedTrip(t *testing.T) {
	trips := []generic.Period{
		period(date(2024, time.May, 1), date(2024, time.May, 31)),
		period(date(2024, time.May, 10), date(2024, time.May, 12)),
	}
	assert.Equal(t, 31, generic.UnionDaysCovered(trips, year2024()))
}

func TestUnionDaysCovered_MatchesDaySetUnion(t *testing.T) {
	// Interval merge and a brute-force day set must agree on a messy mix
	window := period(date(2024, time.January, 15), date(2024, time.April, 15))
	trips := []generic.Period{
		period(date(2024, time.January, 1), date(2024, time.January, 20)),
		period(date(2024, time.January, 18), date(2024, time.January, 25)),
		period(date(2024, time.January, 26), date(2024, time.February, 2)),
		period(date(2024, time.February, 10), date(2024, time.February, 10)),
		period(date(2024, time.March, 30), date(2024, time.May, 2)),
		period(date(2024, time.May, 10), date(2024, time.May, 1)), // malformed
	}

	seen := map[string]bool{}
	for _, p := range trips {
		if !p.IsValid() {
			continue
		}
		for _, d := range p.Days() {
			if window.Contains(d) {
				seen[d.String()] = true
			}
		}
	}

	assert.Equal(t, len(seen), generic.UnionDaysCovered(trips, window))
	assert.Len(t, generic.CoveredDays(trips, window), len(seen))
}

func TestUnionDaysCovered_Empty(t *testing.T) {
	assert.Equal(t, 0, generic.UnionDaysCovered(nil, year2024()))
	assert.Empty(t, generic.CoveredDays(nil, year2024()))
}
