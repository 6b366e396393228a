// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/staycount/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TripStore, generic.RuleSource and
// generic.SnapshotStore.
type Memory struct {
	mu        sync.RWMutex
	trips     map[generic.TripID]generic.Trip
	rules     map[generic.JurisdictionCode]generic.Rule
	snapshots map[key][]generic.Snapshot
}

type key struct {
	Owner        generic.OwnerID
	Jurisdiction generic.JurisdictionCode
}

func NewMemory() *Memory {
	return &Memory{
		trips:     make(map[generic.TripID]generic.Trip),
		rules:     make(map[generic.JurisdictionCode]generic.Rule),
		snapshots: make(map[key][]generic.Snapshot),
	}
}

// =============================================================================
// TRIPS
// =============================================================================

func (m *Memory) SaveTrip(_ context.Context, trip generic.Trip) error {
	if err := generic.ValidateTrip(trip); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = trip
	return nil
}

func (m *Memory) GetTrip(_ context.Context, id generic.TripID) (*generic.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrTripNotFound, id)
	}
	return &t, nil
}

func (m *Memory) DeleteTrip(_ context.Context, id generic.TripID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[id]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrTripNotFound, id)
	}
	delete(m.trips, id)
	return nil
}

func (m *Memory) ListTrips(_ context.Context, filter generic.TripFilter) ([]generic.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Trip
	for _, t := range m.trips {
		if filter.Matches(t) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Start.Equal(result[j].Start) {
			return result[i].ID < result[j].ID
		}
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

// =============================================================================
// RULES
// =============================================================================

// PutRule validates and stores a rule.
func (m *Memory) PutRule(rule generic.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.Code] = rule.WithDefaults()
	return nil
}

func (m *Memory) GetRule(_ context.Context, code generic.JurisdictionCode) (*generic.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrRuleNotFound, code)
	}
	return &r, nil
}

func (m *Memory) ListRules(_ context.Context) ([]generic.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, snap generic.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{Owner: snap.Owner, Jurisdiction: snap.Jurisdiction}
	snaps := m.snapshots[k]

	// Keep ordered by TakenAt; equal dates keep insertion order
	i := sort.Search(len(snaps), func(i int) bool {
		return snaps[i].TakenAt.After(snap.TakenAt)
	})
	snaps = append(snaps, generic.Snapshot{})
	copy(snaps[i+1:], snaps[i:])
	snaps[i] = snap
	m.snapshots[k] = snaps
	return nil
}

func (m *Memory) ListSnapshots(_ context.Context, owner generic.OwnerID, code generic.JurisdictionCode, limit int) ([]generic.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.snapshots[key{Owner: owner, Jurisdiction: code}]
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	out := make([]generic.Snapshot, len(snaps))
	copy(out, snaps)
	return out, nil
}

func (m *Memory) LatestSnapshot(_ context.Context, owner generic.OwnerID, code generic.JurisdictionCode) (*generic.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.snapshots[key{Owner: owner, Jurisdiction: code}]
	if len(snaps) == 0 {
		return nil, nil
	}
	s := snaps[len(snaps)-1]
	return &s, nil
}

// Compile-time interface checks
var (
	_ generic.TripStore     = (*Memory)(nil)
	_ generic.RuleSource    = (*Memory)(nil)
	_ generic.SnapshotStore = (*Memory)(nil)
)
