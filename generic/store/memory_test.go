package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staycount/generic"
)

func day(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func TestMemory_TripLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a := generic.Trip{ID: "a", Jurisdiction: "schengen", Start: day(2024, 3, 10), End: day(2024, 3, 20)}
	b := generic.Trip{ID: "b", Jurisdiction: "uk_visitor", Start: day(2024, 1, 5), End: day(2024, 1, 9), Owner: "spouse"}
	require.NoError(t, m.SaveTrip(ctx, a))
	require.NoError(t, m.SaveTrip(ctx, b))

	got, err := m.GetTrip(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, a, *got)

	all, err := m.ListTrips(ctx, generic.TripFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, generic.TripID("b"), all[0].ID, "ordered by start")

	code := generic.JurisdictionCode("schengen")
	filtered, err := m.ListTrips(ctx, generic.TripFilter{Jurisdiction: &code})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	owner := generic.OwnerID("spouse")
	filtered, err = m.ListTrips(ctx, generic.TripFilter{Owner: &owner})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, generic.TripID("b"), filtered[0].ID)

	require.NoError(t, m.DeleteTrip(ctx, "a"))
	_, err = m.GetTrip(ctx, "a")
	assert.ErrorIs(t, err, generic.ErrTripNotFound)
	assert.ErrorIs(t, m.DeleteTrip(ctx, "a"), generic.ErrTripNotFound)
}

func TestMemory_RejectsMalformedTrip(t *testing.T) {
	m := NewMemory()
	err := m.SaveTrip(context.Background(), generic.Trip{ID: "x", Start: day(2024, 3, 10), End: day(2024, 3, 1)})
	assert.ErrorIs(t, err, generic.ErrInvalidTrip)
}

func TestMemory_Rules(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.PutRule(generic.Rule{Code: "us_ny", DaysAllowed: 183, WindowDays: 365, Method: generic.MethodCalendarYear}))
	assert.ErrorIs(t, m.PutRule(generic.Rule{Code: "bad", Method: generic.MethodRolling}), generic.ErrConfiguration)

	r, err := m.GetRule(ctx, "us_ny")
	require.NoError(t, err)
	assert.Equal(t, time.January, r.ResetMonth, "defaults applied on store")
	assert.Equal(t, 1, r.ResetDay)

	_, err = m.GetRule(ctx, "bad")
	assert.ErrorIs(t, err, generic.ErrRuleNotFound)
}

func TestMemory_Snapshots(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	latest, err := m.LatestSnapshot(ctx, generic.PrimaryOwner, "schengen")
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, d := range []generic.TimePoint{day(2024, 5, 3), day(2024, 5, 1), day(2024, 5, 2)} {
		s := generic.Summary{Jurisdiction: "schengen", ReferenceDate: d}
		require.NoError(t, m.SaveSnapshot(ctx, generic.NewSnapshot(d.String(), generic.PrimaryOwner, s, generic.SnapshotScheduled)))
	}

	snaps, err := m.ListSnapshots(ctx, generic.PrimaryOwner, "schengen", 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, day(2024, 5, 2), snaps[0].TakenAt)
	assert.Equal(t, day(2024, 5, 3), snaps[1].TakenAt)

	latest, err = m.LatestSnapshot(ctx, generic.PrimaryOwner, "schengen")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, day(2024, 5, 3), latest.TakenAt)
}
