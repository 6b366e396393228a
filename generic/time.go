package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - A calendar day (this IS a day-counting system)
// =============================================================================

// DateLayout is the wire format for every date the system reads or writes.
const DateLayout = "2006-01-02"

// TimePoint is a single calendar day in UTC. Time-of-day is discarded on
// construction so two TimePoints for the same day always compare equal.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates t to its calendar day (in t's own location).
func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return FromTime(t), nil
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint  { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddYears(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(n, 0, 0)} }

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// =============================================================================
// INTERVAL MATH
// =============================================================================

// DaysBetween returns the signed number of days from 'from' to 'to'.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// CountInclusiveDays counts both endpoints: Jan 1..Jan 1 is 1 day.
// Returns 0 when end is before start.
func CountInclusiveDays(start, end TimePoint) int {
	if end.Before(start) {
		return 0
	}
	return DaysBetween(start, end) + 1
}

// Clamp constrains date into [lower, upper].
func Clamp(date, lower, upper TimePoint) TimePoint {
	if date.Before(lower) {
		return lower
	}
	if date.After(upper) {
		return upper
	}
	return date
}

func MinTimePoint(a, b TimePoint) TimePoint {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxTimePoint(a, b TimePoint) TimePoint {
	if a.After(b) {
		return a
	}
	return b
}

// AnchorDate returns (month, day) in the given year. A day past the end of the
// month is pulled back to the month's last day, so Feb 29 anchors fall on
// Feb 28 in common years.
func AnchorDate(year int, month time.Month, day int) TimePoint {
	last := EndOfMonth(year, month).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewTimePoint(year, month, day)
}

func EndOfMonth(year int, month time.Month) TimePoint {
	return FromTime(time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1))
}
