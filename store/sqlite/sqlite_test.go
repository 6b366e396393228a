package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staycount/generic"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

// =============================================================================
// TRIPS
// =============================================================================

func TestStore_TripRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	trip := generic.Trip{
		ID:           "t1",
		Start:        day(2024, time.March, 1),
		End:          day(2024, time.March, 10),
		Jurisdiction: "schengen",
		Country:      "PT",
		Source:       generic.SourceCalendar,
		Confidence:   0.8,
		Notes:        "Lisbon",
	}
	require.NoError(t, s.SaveTrip(ctx, trip))

	got, err := s.GetTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, trip, *got)

	// Update in place
	trip.End = day(2024, time.March, 12)
	require.NoError(t, s.SaveTrip(ctx, trip))
	got, err = s.GetTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 12), got.End)
}

func TestStore_TripDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveTrip(ctx, generic.Trip{ID: "t", Start: day(2024, 1, 1), End: day(2024, 1, 2)}))
	got, err := s.GetTrip(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, generic.SourceManual, got.Source)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestStore_TripValidation(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveTrip(context.Background(), generic.Trip{ID: "bad", Start: day(2024, 3, 10), End: day(2024, 3, 1)})
	assert.ErrorIs(t, err, generic.ErrInvalidTrip)
}

func TestStore_TripNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetTrip(ctx, "nope")
	assert.ErrorIs(t, err, generic.ErrTripNotFound)
	assert.ErrorIs(t, s.DeleteTrip(ctx, "nope"), generic.ErrTripNotFound)
}

func TestStore_ListTripsFilter(t *testing.T) {
	// GIVEN: Trips for two owners and two jurisdictions
	// WHEN: Listing with owner, jurisdiction and date filters
	// THEN: Only matching trips come back, ordered by start

	ctx := context.Background()
	s := newTestStore(t)

	trips := []generic.Trip{
		{ID: "a", Jurisdiction: "schengen", Start: day(2024, 5, 1), End: day(2024, 5, 10)},
		{ID: "b", Jurisdiction: "schengen", Start: day(2024, 1, 1), End: day(2024, 1, 5)},
		{ID: "c", Jurisdiction: "uk_visitor", Start: day(2024, 3, 1), End: day(2024, 3, 3)},
		{ID: "d", Jurisdiction: "schengen", Owner: "spouse", Start: day(2024, 2, 1), End: day(2024, 2, 9)},
	}
	for _, tr := range trips {
		require.NoError(t, s.SaveTrip(ctx, tr))
	}

	all, err := s.ListTrips(ctx, generic.TripFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, generic.TripID("b"), all[0].ID)

	primary := generic.PrimaryOwner
	code := generic.JurisdictionCode("schengen")
	got, err := s.ListTrips(ctx, generic.TripFilter{Owner: &primary, Jurisdiction: &code})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, generic.TripID("b"), got[0].ID)
	assert.Equal(t, generic.TripID("a"), got[1].ID)

	from, to := day(2024, 1, 6), day(2024, 4, 30)
	got, err = s.ListTrips(ctx, generic.TripFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, generic.TripID("d"), got[0].ID)
	assert.Equal(t, generic.TripID("c"), got[1].ID)
}

func TestStore_DeleteTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveTrip(ctx, generic.Trip{ID: "x", Start: day(2024, 1, 1), End: day(2024, 1, 1)}))
	require.NoError(t, s.DeleteTrip(ctx, "x"))

	all, err := s.ListTrips(ctx, generic.TripFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// RULES
// =============================================================================

func TestStore_Rules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rule := generic.Rule{Code: "th_visa_exempt", Name: "Thailand", DaysAllowed: 60, WindowDays: 180, Method: generic.MethodRolling}
	require.NoError(t, s.SaveRule(ctx, rule))

	got, err := s.GetRule(ctx, "th_visa_exempt")
	require.NoError(t, err)
	assert.Equal(t, rule.WithDefaults(), *got)

	rule.DaysAllowed = 30
	require.NoError(t, s.SaveRule(ctx, rule))
	got, err = s.GetRule(ctx, "th_visa_exempt")
	require.NoError(t, err)
	assert.Equal(t, 30, got.DaysAllowed)

	all, err := s.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetRule(ctx, "atlantis")
	assert.ErrorIs(t, err, generic.ErrRuleNotFound)

	assert.ErrorIs(t, s.SaveRule(ctx, generic.Rule{Code: "bad", Method: generic.MethodRolling}), generic.ErrConfiguration)

	require.NoError(t, s.DeleteRule(ctx, "th_visa_exempt"))
	assert.ErrorIs(t, s.DeleteRule(ctx, "th_visa_exempt"), generic.ErrRuleNotFound)
}

// =============================================================================
// MEMBERS AND TRACKING
// =============================================================================

func TestStore_MembersAndTracking(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveMember(ctx, Member{ID: "spouse", Name: "Alex", Relationship: "spouse"}))
	require.NoError(t, s.SaveMember(ctx, Member{ID: "kid", Name: "Sam"}))
	assert.Error(t, s.SaveMember(ctx, Member{Name: "nobody"}))

	members, err := s.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Alex", members[0].Name)

	require.NoError(t, s.Track(ctx, generic.PrimaryOwner, "schengen"))
	require.NoError(t, s.Track(ctx, generic.PrimaryOwner, "schengen"))
	require.NoError(t, s.Track(ctx, generic.PrimaryOwner, "uk_visitor"))
	require.NoError(t, s.Track(ctx, "spouse", "schengen"))

	codes, err := s.Tracked(ctx, generic.PrimaryOwner)
	require.NoError(t, err)
	assert.Equal(t, []generic.JurisdictionCode{"schengen", "uk_visitor"}, codes)

	all, err := s.AllTracked(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Untrack(ctx, generic.PrimaryOwner, "uk_visitor"))
	codes, err = s.Tracked(ctx, generic.PrimaryOwner)
	require.NoError(t, err)
	assert.Equal(t, []generic.JurisdictionCode{"schengen"}, codes)

	// Deleting a member cascades to their trips and tracking
	require.NoError(t, s.SaveTrip(ctx, generic.Trip{ID: "st", Owner: "spouse", Start: day(2024, 1, 1), End: day(2024, 1, 3)}))
	require.NoError(t, s.DeleteMember(ctx, "spouse"))

	trips, err := s.ListTrips(ctx, generic.TripFilter{})
	require.NoError(t, err)
	assert.Empty(t, trips)

	all, err = s.AllTracked(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	latest, err := s.LatestSnapshot(ctx, generic.PrimaryOwner, "schengen")
	require.NoError(t, err)
	assert.Nil(t, latest)

	calc := &generic.Calculator{}
	rule := generic.Rule{Code: "schengen", DaysAllowed: 90, WindowDays: 180, Method: generic.MethodRolling}
	trips := []generic.Trip{{ID: "t", Jurisdiction: "schengen", Start: day(2024, 3, 1), End: day(2024, 4, 30)}}

	for _, d := range []generic.TimePoint{day(2024, 5, 3), day(2024, 5, 1), day(2024, 5, 2)} {
		sum := calc.Calculate(rule, trips, d)
		require.NoError(t, s.SaveSnapshot(ctx, generic.NewSnapshot("snap-"+d.String(), generic.PrimaryOwner, sum, generic.SnapshotScheduled)))
	}

	snaps, err := s.ListSnapshots(ctx, generic.PrimaryOwner, "schengen", 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, day(2024, 5, 2), snaps[0].TakenAt)
	assert.Equal(t, day(2024, 5, 3), snaps[1].TakenAt)

	latest, err = s.LatestSnapshot(ctx, generic.PrimaryOwner, "schengen")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 61, latest.Summary.DaysUsed)
	assert.Equal(t, generic.StatusWarning, latest.Summary.Status)
	assert.True(t, latest.Summary.Percentage.Equal(generic.Percentage(61, 90)))
	require.NotNil(t, latest.Summary.NextExpiring)
	assert.True(t, latest.Summary.NextExpiring.Equal(day(2024, 8, 28)))

	// Same day replaces
	sum := calc.Calculate(rule, nil, day(2024, 5, 3))
	require.NoError(t, s.SaveSnapshot(ctx, generic.NewSnapshot("again", generic.PrimaryOwner, sum, generic.SnapshotManual)))

	all, err := s.ListSnapshots(ctx, generic.PrimaryOwner, "schengen", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, generic.SnapshotManual, all[2].Reason)
	assert.Equal(t, 0, all[2].Summary.DaysUsed)
}
