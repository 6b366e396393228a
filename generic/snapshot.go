package generic

// =============================================================================
// SNAPSHOT - Frozen summary for history and alerting
// =============================================================================

// Snapshot captures a Summary at a point in time. Used for:
//   - Historical charts (days used over time)
//   - Alert state (what was the status last time we looked?)
//
// The engine never writes snapshots; the scheduler does.
type Snapshot struct {
	ID           string
	Owner        OwnerID
	Jurisdiction JurisdictionCode
	TakenAt      TimePoint
	Summary      Summary
	Reason       SnapshotReason
}

type SnapshotReason string

const (
	SnapshotScheduled SnapshotReason = "scheduled" // Periodic job
	SnapshotManual    SnapshotReason = "manual"    // Admin triggered
	SnapshotTripEdit  SnapshotReason = "trip_edit" // After a trip was created/changed
)

// NewSnapshot wraps a summary for persistence.
func NewSnapshot(id string, owner OwnerID, s Summary, reason SnapshotReason) Snapshot {
	return Snapshot{
		ID:           id,
		Owner:        owner,
		Jurisdiction: s.Jurisdiction,
		TakenAt:      s.ReferenceDate,
		Summary:      s,
		Reason:       reason,
	}
}
