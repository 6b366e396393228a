package generic_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staycount/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func schengen() generic.Rule {
	return generic.Rule{
		Code:        "schengen",
		Name:        "Schengen Area",
		DaysAllowed: 90,
		WindowDays:  180,
		Method:      generic.MethodRolling,
	}
}

func stateRule() generic.Rule {
	return generic.Rule{
		Code:        "us_ny",
		Name:        "New York",
		DaysAllowed: 183,
		WindowDays:  365,
		Method:      generic.MethodCalendarYear,
		ResetMonth:  time.January,
		ResetDay:    1,
	}
}

func ukTax() generic.Rule {
	return generic.Rule{
		Code:        "uk_tax",
		DaysAllowed: 183,
		WindowDays:  365,
		Method:      generic.MethodFiscalYear,
		ResetMonth:  time.April,
		ResetDay:    6,
	}
}

func trip(code generic.JurisdictionCode, start, end generic.TimePoint) generic.Trip {
	return generic.Trip{
		ID:           generic.TripID(fmt.Sprintf("%s-%s", code, start)),
		Start:        start,
		End:          end,
		Jurisdiction: code,
	}
}

func newCalculator() *generic.Calculator {
	return &generic.Calculator{PrimaryZone: "schengen"}
}

// =============================================================================
// ROLLING WINDOW SCENARIOS
// =============================================================================

func TestCalculate_Schengen_TwoTripsSafe(t *testing.T) {
	// GIVEN: Schengen 90/180, trips Jan 1-30 (30 days) and Mar 1-31 (31 days)
	// WHEN: Calculating as of 2024-06-01
	// THEN: 61 used, 29 remaining, safe

	trips := []generic.Trip{
		trip("schengen", date(2024, time.January, 1), date(2024, time.January, 30)),
		trip("schengen", date(2024, time.March, 1), date(2024, time.March, 31)),
	}

	s := newCalculator().Calculate(schengen(), trips, date(2024, time.June, 1))

	assert.Equal(t, 61, s.DaysUsed)
	assert.Equal(t, 29, s.DaysRemaining)
	assert.Equal(t, 90, s.DaysAllowed)
	assert.Equal(t, generic.StatusSafe, s.Status)
	assert.Equal(t, 2, s.TripCount)
	assert.Equal(t, date(2023, time.December, 5), s.WindowStart)
	assert.Equal(t, date(2024, time.June, 1), s.WindowEnd)
}

func TestCalculate_Schengen_NextExpiration(t *testing.T) {
	// GIVEN: Earliest counted day is Jan 1, window is 180 days
	// THEN: It leaves the window on Jan 1 + 180 = Jun 29 (leap year)

	trips := []generic.Trip{
		trip("schengen", date(2024, time.January, 1), date(2024, time.January, 30)),
		trip("schengen", date(2024, time.January, 1), date(2024, time.January, 3)),
		trip("schengen", date(2024, time.March, 1), date(2024, time.March, 31)),
	}

	s := newCalculator().Calculate(schengen(), trips, date(2024, time.June, 1))

	require.NotNil(t, s.NextExpiring)
	assert.Equal(t, date(2024, time.June, 29), *s.NextExpiring)
	assert.Equal(t, 2, s.NextExpiringCount, "both trips cover Jan 1")

	// On Jun 29 the Jan 1 day is gone
	later := newCalculator().Calculate(schengen(), trips, date(2024, time.June, 29))
	assert.Equal(t, s.DaysUsed-1, later.DaysUsed)
}

func TestCalculate_Schengen_Exceeded(t *testing.T) {
	// GIVEN: 70 + 25 = 95 days inside the window
	// THEN: 0 remaining, exceeded, percentage >= 100

	trips := []generic.Trip{
		trip("schengen", date(2024, time.January, 1), date(2024, time.March, 10)),
		trip("schengen", date(2024, time.April, 1), date(2024, time.April, 25)),
	}

	s := newCalculator().Calculate(schengen(), trips, date(2024, time.May, 1))

	assert.Equal(t, 95, s.DaysUsed)
	assert.Equal(t, 0, s.DaysRemaining)
	assert.Equal(t, generic.StatusExceeded, s.Status)
	assert.True(t, s.Percentage.GreaterThanOrEqual(decimal.NewFromInt(100)))
	assert.True(t, s.IsOverLimit())
}

func TestCalculate_NoTrips(t *testing.T) {
	s := newCalculator().Calculate(schengen(), nil, date(2024, time.June, 1))

	assert.Equal(t, 0, s.DaysUsed)
	assert.Equal(t, 90, s.DaysRemaining)
	assert.Equal(t, generic.StatusSafe, s.Status)
	assert.True(t, s.Percentage.IsZero())
	assert.Nil(t, s.NextExpiring)
}

func TestCalculate_OverlappingTripsCountedOnce(t *testing.T) {
	trips := []generic.Trip{
		trip("schengen", date(2024, time.April, 1), date(2024, time.April, 10)),
		trip("schengen", date(2024, time.April, 8), date(2024, time.April, 12)),
	}
	s := newCalculator().Calculate(schengen(), trips, date(2024, time.May, 1))
	assert.Equal(t, 12, s.DaysUsed)
}

func TestCalculate_FutureTripNotCounted(t *testing.T) {
	trips := []generic.Trip{
		trip("schengen", date(2024, time.May, 28), date(2024, time.June, 10)),
	}
	s := newCalculator().Calculate(schengen(), trips, date(2024, time.June, 1))
	assert.Equal(t, 5, s.DaysUsed, "only May 28 - Jun 1 have happened")
}

// =============================================================================
// TRIP FILTERING
// =============================================================================

func TestCalculate_FiltersByJurisdiction(t *testing.T) {
	trips := []generic.Trip{
		trip("schengen", date(2024, time.March, 1), date(2024, time.March, 10)),
		trip("uk_visitor", date(2024, time.March, 11), date(2024, time.March, 20)),
	}
	s := newCalculator().Calculate(schengen(), trips, date(2024, time.April, 1))
	assert.Equal(t, 10, s.DaysUsed)
	assert.Equal(t, 1, s.TripCount)
}

func TestCalculateAll_OneSummaryPerRule(t *testing.T) {
	// GIVEN: Schengen, New York and a legacy trip with no jurisdiction
	// WHEN: Both rules run against the same trip list
	// THEN: Each rule picks out its own trips, the legacy one goes to Schengen

	trips := []generic.Trip{
		trip("schengen", date(2024, time.March, 1), date(2024, time.March, 10)),
		trip("us_ny", date(2024, time.January, 1), date(2024, time.January, 20)),
		trip("", date(2024, time.February, 1), date(2024, time.February, 5)),
	}
	calc := newCalculator()

	assert.Len(t, calc.Filter(schengen(), trips), 2)
	assert.Len(t, calc.Filter(stateRule(), trips), 1)

	all := calc.CalculateAll([]generic.Rule{schengen(), stateRule()}, trips, date(2024, time.April, 1))
	require.Len(t, all, 2)
	assert.Equal(t, 15, all["schengen"].DaysUsed)
	assert.Equal(t, 20, all["us_ny"].DaysUsed)
}

func TestCalculate_LegacyTripsBelongToPrimaryZone(t *testing.T) {
	// GIVEN: A trip with no jurisdiction code
	// WHEN: The caller designates schengen as primary zone
	// THEN: It counts for schengen and nowhere else

	legacy := trip("", date(2024, time.March, 1), date(2024, time.March, 10))

	s := newCalculator().Calculate(schengen(), []generic.Trip{legacy}, date(2024, time.April, 1))
	assert.Equal(t, 10, s.DaysUsed)

	uk := generic.Rule{Code: "uk_visitor", DaysAllowed: 180, WindowDays: 365, Method: generic.MethodRolling}
	s = newCalculator().Calculate(uk, []generic.Trip{legacy}, date(2024, time.April, 1))
	assert.Equal(t, 0, s.DaysUsed)

	noZone := &generic.Calculator{}
	s = noZone.Calculate(schengen(), []generic.Trip{legacy}, date(2024, time.April, 1))
	assert.Equal(t, 0, s.DaysUsed, "without a primary zone legacy trips match nothing")
}

func TestCalculate_MalformedTripSkipped(t *testing.T) {
	trips := []generic.Trip{
		trip("schengen", date(2024, time.March, 10), date(2024, time.March, 1)),
		trip("schengen", date(2024, time.March, 15), date(2024, time.March, 16)),
	}
	s := newCalculator().Calculate(schengen(), trips, date(2024, time.April, 1))
	assert.Equal(t, 2, s.DaysUsed)
	assert.Equal(t, 1, s.TripCount)
}

func TestCalculate_DoesNotMutateInput(t *testing.T) {
	trips := []generic.Trip{
		trip("schengen", date(2024, time.March, 20), date(2024, time.March, 25)),
		trip("schengen", date(2024, time.March, 1), date(2024, time.March, 5)),
	}
	before := append([]generic.Trip(nil), trips...)

	newCalculator().Calculate(schengen(), trips, date(2024, time.April, 1))
	assert.Equal(t, before, trips)
}

// =============================================================================
// ROLLING MONOTONICITY
// =============================================================================

func TestCalculate_RollingMonotonicity(t *testing.T) {
	// GIVEN: A fixed set of trips
	// WHEN: The reference date advances one day at a time for a year
	// THEN: days_used only drops when a covered day leaves the window

	rule := schengen()
	trips := []generic.Trip{
		trip("schengen", date(2024, time.January, 5), date(2024, time.February, 3)),
		trip("schengen", date(2024, time.February, 1), date(2024, time.February, 20)),
		trip("schengen", date(2024, time.May, 1), date(2024, time.May, 30)),
		trip("schengen", date(2024, time.August, 15), date(2024, time.September, 2)),
	}
	var periods []generic.Period
	for _, tr := range trips {
		periods = append(periods, tr.Period())
	}

	calc := newCalculator()
	ref := date(2024, time.January, 1)
	prev := calc.Calculate(rule, trips, ref)

	for i := 0; i < 366; i++ {
		next := ref.AddDays(1)
		cur := calc.Calculate(rule, trips, next)

		if cur.DaysUsed < prev.DaysUsed {
			dropped := ref.AddDays(-(rule.WindowDays - 1))
			covered := generic.UnionDaysCovered(periods, generic.Period{Start: dropped, End: dropped})
			assert.Equal(t, 1, covered, "decrease on %s without a covered day leaving the window", next)
			assert.Equal(t, prev.DaysUsed-1, cur.DaysUsed, "at most one day leaves per step")
		}

		ref, prev = next, cur
	}
}

// =============================================================================
// CALENDAR / FISCAL YEAR
// =============================================================================

func TestCalculate_CalendarYear_ResetsOnJanuaryFirst(t *testing.T) {
	// GIVEN: 183/365 calendar-year rule, trip Jun 1 - Dec 31 2024 (214 days)
	// WHEN: Calculating as of 2025-01-15
	// THEN: New year window, prior-year trip excluded

	trips := []generic.Trip{
		trip("us_ny", date(2024, time.June, 1), date(2024, time.December, 31)),
	}

	s := newCalculator().Calculate(stateRule(), trips, date(2025, time.January, 15))

	assert.Equal(t, date(2025, time.January, 1), s.WindowStart)
	assert.Equal(t, date(2025, time.December, 31), s.WindowEnd)
	assert.Equal(t, 0, s.DaysUsed)
	assert.Equal(t, 0, s.TripCount)
	assert.Nil(t, s.NextExpiring, "year rules have no rolling expiration")

	// Same trips as of Dec 31 2024: 214 days, exceeded
	s = newCalculator().Calculate(stateRule(), trips, date(2024, time.December, 31))
	assert.Equal(t, 214, s.DaysUsed)
	assert.Equal(t, generic.StatusExceeded, s.Status)
}

func TestCalculate_CalendarYear_CountsOnlyUpToReference(t *testing.T) {
	trips := []generic.Trip{
		trip("us_ny", date(2024, time.March, 1), date(2024, time.March, 31)),
	}
	s := newCalculator().Calculate(stateRule(), trips, date(2024, time.March, 10))
	assert.Equal(t, 10, s.DaysUsed)
	assert.Equal(t, date(2024, time.December, 31), s.WindowEnd)
}

func TestCalculate_FiscalYear_AnchoredApril6(t *testing.T) {
	// GIVEN: UK tax year anchored Apr 6
	// WHEN: Reference Apr 5 2025
	// THEN: Window is Apr 6 2024 - Apr 5 2025

	trips := []generic.Trip{
		trip("uk_tax", date(2024, time.April, 1), date(2024, time.April, 10)),
		trip("uk_tax", date(2025, time.April, 1), date(2025, time.April, 10)),
	}

	s := newCalculator().Calculate(ukTax(), trips, date(2025, time.April, 5))
	assert.Equal(t, date(2024, time.April, 6), s.WindowStart)
	assert.Equal(t, date(2025, time.April, 5), s.WindowEnd)
	assert.Equal(t, 5+5, s.DaysUsed, "Apr 6-10 2024 and Apr 1-5 2025")

	s = newCalculator().Calculate(ukTax(), trips, date(2025, time.April, 6))
	assert.Equal(t, date(2025, time.April, 6), s.WindowStart)
	assert.Equal(t, 1, s.DaysUsed)
}

// =============================================================================
// STATUS BANDS
// =============================================================================

func TestStatusFor_BoundaryExactness(t *testing.T) {
	tests := []struct {
		used, allowed int
		want          generic.Status
	}{
		{0, 100, generic.StatusSafe},
		{66, 100, generic.StatusSafe},
		{67, 100, generic.StatusWarning},
		{88, 100, generic.StatusWarning},
		{89, 100, generic.StatusDanger},
		{93, 100, generic.StatusDanger},
		{94, 100, generic.StatusCritical},
		{99, 100, generic.StatusCritical},
		{100, 100, generic.StatusExceeded},
		{101, 100, generic.StatusExceeded},

		// Schengen day counts
		{60, 90, generic.StatusSafe},     // 66.67%
		{61, 90, generic.StatusWarning},  // 67.78%
		{80, 90, generic.StatusWarning},  // 88.89%
		{81, 90, generic.StatusDanger},   // 90.00%
		{84, 90, generic.StatusDanger},   // 93.33%
		{85, 90, generic.StatusCritical}, // 94.44%
		{89, 90, generic.StatusCritical},
		{90, 90, generic.StatusExceeded},

		// Exact 0.67 / 0.89 / 0.94 with a non-100 denominator
		{134, 200, generic.StatusWarning},
		{133, 200, generic.StatusSafe},
		{178, 200, generic.StatusDanger},
		{177, 200, generic.StatusWarning},
		{188, 200, generic.StatusCritical},
		{187, 200, generic.StatusDanger},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.used, tt.allowed), func(t *testing.T) {
			assert.Equal(t, tt.want, generic.StatusFor(tt.used, tt.allowed))
		})
	}
}

func TestStatusFor_NonPositiveAllowance(t *testing.T) {
	assert.Equal(t, generic.StatusExceeded, generic.StatusFor(0, 0))
	assert.True(t, generic.Percentage(5, 0).IsZero())
}

func TestPercentage_Exact(t *testing.T) {
	assert.True(t, generic.Percentage(61, 90).GreaterThan(decimal.NewFromInt(67)))
	assert.Equal(t, "50", generic.Percentage(45, 90).String())
	assert.Equal(t, "67.78", generic.Percentage(61, 90).Round(2).String())
}

func TestStatus_Severity(t *testing.T) {
	assert.Less(t, generic.StatusSafe.Severity(), generic.StatusWarning.Severity())
	assert.Less(t, generic.StatusWarning.Severity(), generic.StatusDanger.Severity())
	assert.Less(t, generic.StatusDanger.Severity(), generic.StatusCritical.Severity())
	assert.Less(t, generic.StatusCritical.Severity(), generic.StatusExceeded.Severity())
}

// =============================================================================
// RULE VALIDATION
// =============================================================================

func TestRule_Validate(t *testing.T) {
	require.NoError(t, schengen().Validate())
	require.NoError(t, stateRule().Validate())

	noWindow := schengen()
	noWindow.WindowDays = 0

	noAllowance := stateRule()
	noAllowance.DaysAllowed = 0

	badMethod := schengen()
	badMethod.Method = "lunar"

	badMonth := stateRule()
	badMonth.ResetMonth = 13

	badDay := stateRule()
	badDay.ResetDay = 32

	noCode := schengen()
	noCode.Code = ""

	for name, r := range map[string]generic.Rule{
		"window_days":     noWindow,
		"days_allowed":    noAllowance,
		"counting_method": badMethod,
		"reset_month":     badMonth,
		"reset_day":       badDay,
		"code":            noCode,
	} {
		t.Run(name, func(t *testing.T) {
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, generic.ErrConfiguration))

			var cfgErr *generic.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, name, cfgErr.Field)
		})
	}
}

func TestRule_Validate_UpperBounds(t *testing.T) {
	// GIVEN: Rules sized one day past MaxRuleDays
	// WHEN: Validated
	// THEN: The oversized field is named; a leap-year-sized rule still passes

	hugeAllowance := schengen()
	hugeAllowance.WindowDays = generic.MaxRuleDays
	hugeAllowance.DaysAllowed = generic.MaxRuleDays + 1

	hugeWindow := schengen()
	hugeWindow.WindowDays = generic.MaxRuleDays + 1

	for name, r := range map[string]generic.Rule{
		"days_allowed": hugeAllowance,
		"window_days":  hugeWindow,
	} {
		var cfgErr *generic.ConfigurationError
		require.ErrorAs(t, r.Validate(), &cfgErr, name)
		assert.Equal(t, name, cfgErr.Field)
	}

	leap := schengen()
	leap.DaysAllowed = generic.MaxRuleDays
	leap.WindowDays = generic.MaxRuleDays
	assert.NoError(t, leap.Validate())
}

func TestRule_YearWindowNoWindowDaysNeeded(t *testing.T) {
	r := stateRule()
	r.WindowDays = 0
	assert.NoError(t, r.Validate(), "window_days is unused for year methods")
}

func TestRule_NextReset(t *testing.T) {
	assert.Equal(t, date(2025, time.April, 6), ukTax().NextReset(date(2024, time.December, 1)))
	assert.True(t, schengen().NextReset(date(2024, time.December, 1)).IsZero())
}
