/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's value types (which carry no JSON tags) from the external
  API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATES:
  Every date is a "YYYY-MM-DD" string. Percentages are decimal strings
  rounded to two places ("67.78").

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/staycount/factory"
	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/store/sqlite"
)

// =============================================================================
// TRIPS
// =============================================================================

// TripDTO represents a trip in API responses.
type TripDTO struct {
	ID           string  `json:"id"`
	Owner        string  `json:"owner,omitempty"`
	Jurisdiction string  `json:"jurisdiction"`
	Country      string  `json:"country,omitempty"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Days         int     `json:"days"`
	Source       string  `json:"source"`
	Confidence   float64 `json:"confidence"`
	Notes        string  `json:"notes,omitempty"`
}

// TripRequest is the body for creating or replacing a trip.
type TripRequest struct {
	ID           string  `json:"id,omitempty"`
	Owner        string  `json:"owner,omitempty"`
	Jurisdiction string  `json:"jurisdiction,omitempty"`
	Country      string  `json:"country,omitempty"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Source       string  `json:"source,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

func toTripDTO(t generic.Trip) TripDTO {
	return TripDTO{
		ID:           string(t.ID),
		Owner:        string(t.Owner),
		Jurisdiction: string(t.Jurisdiction),
		Country:      t.Country,
		StartDate:    t.Start.String(),
		EndDate:      t.End.String(),
		Days:         t.Days(),
		Source:       string(t.Source),
		Confidence:   t.Confidence,
		Notes:        t.Notes,
	}
}

// =============================================================================
// RULES
// =============================================================================

// RuleDTO represents a rule in API responses.
type RuleDTO struct {
	factory.RuleJSON
	Custom bool `json:"custom"`
}

// =============================================================================
// SUMMARIES
// =============================================================================

// SummaryDTO represents a compliance summary.
type SummaryDTO struct {
	Owner             string          `json:"owner,omitempty"`
	Jurisdiction      string          `json:"jurisdiction"`
	ReferenceDate     string          `json:"reference_date"`
	DaysUsed          int             `json:"days_used"`
	DaysAllowed       int             `json:"days_allowed"`
	DaysRemaining     int             `json:"days_remaining"`
	Percentage        decimal.Decimal `json:"percentage"`
	Status            string          `json:"status"`
	WindowStart       string          `json:"window_start"`
	WindowEnd         string          `json:"window_end"`
	NextExpiring      *string         `json:"next_expiring,omitempty"`
	NextExpiringCount int             `json:"next_expiring_count,omitempty"`
	TripCount         int             `json:"trip_count"`
}

func toSummaryDTO(owner generic.OwnerID, s generic.Summary) SummaryDTO {
	dto := SummaryDTO{
		Owner:             string(owner),
		Jurisdiction:      string(s.Jurisdiction),
		ReferenceDate:     s.ReferenceDate.String(),
		DaysUsed:          s.DaysUsed,
		DaysAllowed:       s.DaysAllowed,
		DaysRemaining:     s.DaysRemaining,
		Percentage:        s.Percentage.Round(2),
		Status:            string(s.Status),
		WindowStart:       s.WindowStart.String(),
		WindowEnd:         s.WindowEnd.String(),
		NextExpiringCount: s.NextExpiringCount,
		TripCount:         s.TripCount,
	}
	if s.NextExpiring != nil {
		dto.NextExpiring = datePtr(*s.NextExpiring)
	}
	return dto
}

// SummariesResponse is the multi-jurisdiction dashboard view.
type SummariesResponse struct {
	Owner       string       `json:"owner,omitempty"`
	AsOf        string       `json:"as_of"`
	WorstStatus string       `json:"worst_status"`
	Summaries   []SummaryDTO `json:"summaries"`
}

// FamilySummaryDTO holds one summary per traveler for one rule.
type FamilySummaryDTO struct {
	Jurisdiction string       `json:"jurisdiction"`
	AsOf         string       `json:"as_of"`
	Primary      SummaryDTO   `json:"primary"`
	Members      []SummaryDTO `json:"members"`
	MostAtRisk   string       `json:"most_at_risk"`
}

// =============================================================================
// PLANNING
// =============================================================================

// SimulateRequest proposes a trip.
type SimulateRequest struct {
	Owner        string `json:"owner,omitempty"`
	Jurisdiction string `json:"jurisdiction"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

// SimulationDTO is the what-if outcome.
type SimulationDTO struct {
	Jurisdiction   string   `json:"jurisdiction"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	ProposedDays   int      `json:"proposed_days"`
	WouldViolate   bool     `json:"would_violate"`
	Violations     []string `json:"violations"`
	FirstViolation *string  `json:"first_violation,omitempty"`
	MaxDaysUsed    int      `json:"max_days_used"`
	DaysOverLimit  int      `json:"days_over_limit"`
	DaysAllowed    int      `json:"days_allowed"`
	FinalStatus    string   `json:"final_status"`
}

func toSimulationDTO(r generic.SimulationResult) SimulationDTO {
	dto := SimulationDTO{
		Jurisdiction:  string(r.Jurisdiction),
		StartDate:     r.Proposed.Start.String(),
		EndDate:       r.Proposed.End.String(),
		ProposedDays:  r.Proposed.Len(),
		WouldViolate:  r.WouldViolate,
		Violations:    make([]string, len(r.Violations)),
		MaxDaysUsed:   r.MaxDaysUsed,
		DaysOverLimit: r.DaysOverLimit,
		DaysAllowed:   r.DaysAllowed,
		FinalStatus:   string(r.FinalStatus),
	}
	for i, d := range r.Violations {
		dto.Violations[i] = d.String()
	}
	if first := r.FirstViolation(); first != nil {
		dto.FirstViolation = datePtr(*first)
	}
	return dto
}

// EarliestStartRequest asks for the first safe start date.
type EarliestStartRequest struct {
	Owner        string `json:"owner,omitempty"`
	Jurisdiction string `json:"jurisdiction"`
	Length       int    `json:"length"`
	From         string `json:"from,omitempty"` // defaults to today
}

// EarliestStartDTO answers EarliestStartRequest. EarliestStart is absent
// when nothing within the search horizon fits.
type EarliestStartDTO struct {
	Jurisdiction  string  `json:"jurisdiction"`
	Length        int     `json:"length"`
	From          string  `json:"from"`
	Found         bool    `json:"found"`
	EarliestStart *string `json:"earliest_start,omitempty"`
	EarliestEnd   *string `json:"earliest_end,omitempty"`
}

// MaxLengthRequest asks how long a trip starting on StartDate can be.
type MaxLengthRequest struct {
	Owner        string `json:"owner,omitempty"`
	Jurisdiction string `json:"jurisdiction"`
	StartDate    string `json:"start_date"`
}

// MaxLengthDTO answers MaxLengthRequest.
type MaxLengthDTO struct {
	Jurisdiction string  `json:"jurisdiction"`
	StartDate    string  `json:"start_date"`
	MaxDays      int     `json:"max_days"`
	LastSafeDay  *string `json:"last_safe_day,omitempty"`
}

// =============================================================================
// TRACKING, SNAPSHOTS, MEMBERS
// =============================================================================

// TrackRequest adds a jurisdiction to an owner's dashboard.
type TrackRequest struct {
	Owner        string `json:"owner,omitempty"`
	Jurisdiction string `json:"jurisdiction"`
}

// TrackedDTO lists an owner's tracked jurisdictions.
type TrackedDTO struct {
	Owner         string   `json:"owner,omitempty"`
	Jurisdictions []string `json:"jurisdictions"`
}

// SnapshotDTO represents a stored summary.
type SnapshotDTO struct {
	ID           string     `json:"id"`
	Owner        string     `json:"owner,omitempty"`
	Jurisdiction string     `json:"jurisdiction"`
	TakenAt      string     `json:"taken_at"`
	Reason       string     `json:"reason"`
	Summary      SummaryDTO `json:"summary"`
}

func toSnapshotDTO(s generic.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:           s.ID,
		Owner:        string(s.Owner),
		Jurisdiction: string(s.Jurisdiction),
		TakenAt:      s.TakenAt.String(),
		Reason:       string(s.Reason),
		Summary:      toSummaryDTO(s.Owner, s.Summary),
	}
}

// SnapshotRunDTO reports a snapshot pass.
type SnapshotRunDTO struct {
	Written int `json:"written"`
	Alerts  int `json:"alerts"`
	Failed  int `json:"failed"`
}

// MemberDTO represents a family member.
type MemberDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateMemberRequest is the request to add a family member.
type CreateMemberRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
}

func toMemberDTO(m sqlite.Member) MemberDTO {
	dto := MemberDTO{
		ID:           string(m.ID),
		Name:         m.Name,
		Relationship: m.Relationship,
	}
	if !m.CreatedAt.IsZero() {
		dto.CreatedAt = m.CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func datePtr(tp generic.TimePoint) *string {
	s := tp.String()
	return &s
}
