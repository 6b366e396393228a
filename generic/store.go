/*
store.go - Persistence interfaces for trips, rules and snapshots

PURPOSE:
  Defines the boundary between the pure engine and storage. The engine
  never calls these itself; integration code (api, scheduler) loads trips
  and rules through them and hands plain values to the Calculator.

KEY INTERFACES:
  TripStore:     Trip CRUD, owned by the storage layer
  RuleSource:    Read-only rule lookup (the Rule registry)
  SnapshotStore: Historical Summaries for charting and alert state

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing
  - jurisdiction/registry.go: Cached RuleSource over any backend
*/
package generic

import "context"

// =============================================================================
// TRIP STORE
// =============================================================================

// TripFilter narrows ListTrips. Zero values mean "any".
type TripFilter struct {
	Owner        *OwnerID
	Jurisdiction *JurisdictionCode
	From         *TimePoint // trips ending on or after From
	To           *TimePoint // trips starting on or before To
}

// Matches reports whether t passes the filter.
func (f TripFilter) Matches(t Trip) bool {
	if f.Owner != nil && t.Owner != *f.Owner {
		return false
	}
	if f.Jurisdiction != nil && t.Jurisdiction != *f.Jurisdiction {
		return false
	}
	if f.From != nil && t.End.Before(*f.From) {
		return false
	}
	if f.To != nil && t.Start.After(*f.To) {
		return false
	}
	return true
}

// TripStore persists trips. Trips are handed to the engine as read-only copies.
type TripStore interface {
	SaveTrip(ctx context.Context, trip Trip) error
	GetTrip(ctx context.Context, id TripID) (*Trip, error)
	DeleteTrip(ctx context.Context, id TripID) error
	// ListTrips returns matching trips ordered by Start.
	ListTrips(ctx context.Context, filter TripFilter) ([]Trip, error)
}

// =============================================================================
// RULE SOURCE
// =============================================================================

// RuleSource supplies Rule definitions. Returned rules are validated.
type RuleSource interface {
	// GetRule returns ErrRuleNotFound (possibly wrapped) for unknown codes.
	GetRule(ctx context.Context, code JurisdictionCode) (*Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	// ListSnapshots returns snapshots for owner+jurisdiction, oldest first.
	ListSnapshots(ctx context.Context, owner OwnerID, code JurisdictionCode, limit int) ([]Snapshot, error)
	// LatestSnapshot returns nil, nil when none exist.
	LatestSnapshot(ctx context.Context, owner OwnerID, code JurisdictionCode) (*Snapshot, error)
}
