/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	travel histories. Each scenario creates trips, tracked jurisdictions
	and optionally family members or custom rules, then backfills a month
	of snapshots so history charts are not empty.

AVAILABLE SCENARIOS:

	digital-nomad:  Schengen-heavy traveler close to the 90/180 limit
	family:         Primary traveler plus two members on the same rule
	tax-residency:  US state and UK tax-year day counting
	custom-rule:    A custom 60/180 rule and a July-1 tax year from presets

DATES:

	Every trip is placed relative to "today" (Handler.Now), so a scenario
	loaded on any date shows the same picture.

HOW SCENARIOS WORK:
 1. Reset database (clear all data, caches)
 2. Create custom rules via factory (if any)
 3. Create members and trips
 4. Track jurisdictions
 5. Backfill snapshots

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "family"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - jurisdiction/presets.go: Rule JSON presets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/jurisdiction"
	"github.com/warp/staycount/store/sqlite"
)

// scenarioHistoryDays is how many daily snapshots a scenario backfills.
const scenarioHistoryDays = 30

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "digital-nomad",
		Name:        "Digital Nomad",
		Description: "Three Schengen stays adding up to 80 of 90 days, plus a UK visit",
		Category:    "visa",
	},
	{
		ID:          "family",
		Name:        "Family",
		Description: "Primary traveler, spouse at 85/90 and a child, all on Schengen",
		Category:    "visa",
	},
	{
		ID:          "tax-residency",
		Name:        "Tax Residency",
		Description: "New York calendar-year and UK April-6 tax-year day counting",
		Category:    "tax",
	},
	{
		ID:          "custom-rule",
		Name:        "Custom Rules",
		Description: "A 60/180 visa-exempt rule and a July-1 tax year defined from JSON",
		Category:    "custom",
	},
}

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loader, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	if err := loader(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	if err := h.backfillSnapshots(ctx, scenarioHistoryDays); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to backfill snapshots", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info().Str("scenario", req.ScenarioID).Msg("Scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data (for testing/demo).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Rules.Purge()
	if err := h.Cache.InvalidateAll(ctx); err != nil {
		h.Logger.Warn().Err(err).Msg("Failed to invalidate summary cache")
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"digital-nomad": h.loadDigitalNomadScenario,
		"family":        h.loadFamilyScenario,
		"tax-residency": h.loadTaxResidencyScenario,
		"custom-rule":   h.loadCustomRuleScenario,
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDigitalNomadScenario(ctx context.Context) error {
	stays := []scenarioTrip{
		{code: jurisdiction.Schengen, country: "PT", from: -150, days: 30, notes: "Lisbon"},
		{code: jurisdiction.Schengen, country: "ES", from: -60, days: 30, notes: "Barcelona"},
		{code: jurisdiction.UKVisitor, country: "GB", from: -30, days: 10, notes: "London"},
		{code: jurisdiction.Schengen, country: "DE", from: -20, days: 20, notes: "Berlin"},
	}
	if err := h.addTrips(ctx, generic.PrimaryOwner, stays); err != nil {
		return err
	}
	return h.track(ctx, generic.PrimaryOwner, jurisdiction.Schengen, jurisdiction.UKVisitor, jurisdiction.USVWP)
}

func (h *Handler) loadFamilyScenario(ctx context.Context) error {
	members := []sqlite.Member{
		{ID: "spouse", Name: "Alex", Relationship: "spouse"},
		{ID: "child", Name: "Sam", Relationship: "child"},
	}
	for _, m := range members {
		if err := h.Store.SaveMember(ctx, m); err != nil {
			return err
		}
	}

	if err := h.addTrips(ctx, generic.PrimaryOwner, []scenarioTrip{
		{code: jurisdiction.Schengen, country: "FR", from: -30, days: 30, notes: "Paris"},
	}); err != nil {
		return err
	}
	if err := h.addTrips(ctx, "spouse", []scenarioTrip{
		{code: jurisdiction.Schengen, country: "FR", from: -85, days: 55, notes: "Paris, remote work"},
		{code: jurisdiction.Schengen, country: "IT", from: -30, days: 30, notes: "Rome"},
	}); err != nil {
		return err
	}
	if err := h.addTrips(ctx, "child", []scenarioTrip{
		{code: jurisdiction.Schengen, country: "FR", from: -10, days: 10, notes: "School holiday"},
	}); err != nil {
		return err
	}

	for _, owner := range []generic.OwnerID{generic.PrimaryOwner, "spouse", "child"} {
		if err := h.track(ctx, owner, jurisdiction.Schengen); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadTaxResidencyScenario(ctx context.Context) error {
	stays := []scenarioTrip{
		{code: jurisdiction.USNewYork, country: "US", from: -120, days: 60, notes: "NYC office"},
		{code: jurisdiction.USNewYork, country: "US", from: -40, days: 25, notes: "NYC office"},
		{code: jurisdiction.UKTax, country: "GB", from: -14, days: 14, notes: "London client"},
	}
	if err := h.addTrips(ctx, generic.PrimaryOwner, stays); err != nil {
		return err
	}
	return h.track(ctx, generic.PrimaryOwner, jurisdiction.USNewYork, jurisdiction.UKTax)
}

func (h *Handler) loadCustomRuleScenario(ctx context.Context) error {
	presets := []string{
		jurisdiction.RollingRuleJSON("th_visa_exempt", "Thailand visa exempt", 60, 180),
		jurisdiction.FiscalYearRuleJSON("au_tax", "Australia tax year", 183, time.July, 1),
	}
	for _, js := range presets {
		if err := h.createRuleFromJSON(ctx, js); err != nil {
			return err
		}
	}

	stays := []scenarioTrip{
		{code: "th_visa_exempt", country: "TH", from: -45, days: 45, notes: "Chiang Mai"},
		{code: "au_tax", country: "AU", from: -100, days: 40, notes: "Sydney"},
	}
	if err := h.addTrips(ctx, generic.PrimaryOwner, stays); err != nil {
		return err
	}
	return h.track(ctx, generic.PrimaryOwner, "th_visa_exempt", "au_tax")
}

// =============================================================================
// HELPERS
// =============================================================================

// scenarioTrip is a stay placed relative to today: it starts `from` days
// from today and lasts `days` days.
type scenarioTrip struct {
	code    generic.JurisdictionCode
	country string
	from    int
	days    int
	notes   string
}

func (h *Handler) addTrips(ctx context.Context, owner generic.OwnerID, stays []scenarioTrip) error {
	today := h.today()
	for _, s := range stays {
		start := today.AddDays(s.from)
		trip := generic.Trip{
			ID:           generic.TripID(uuid.NewString()),
			Owner:        owner,
			Jurisdiction: s.code,
			Country:      s.country,
			Start:        start,
			End:          start.AddDays(s.days - 1),
			Source:       generic.SourceManual,
			Confidence:   1,
			Notes:        s.notes,
		}
		if err := h.Store.SaveTrip(ctx, trip); err != nil {
			return fmt.Errorf("trip %s: %w", s.notes, err)
		}
	}
	return nil
}

func (h *Handler) track(ctx context.Context, owner generic.OwnerID, codes ...generic.JurisdictionCode) error {
	for _, code := range codes {
		if err := h.Store.Track(ctx, owner, code); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) createRuleFromJSON(ctx context.Context, js string) error {
	rule, err := h.RuleFactory.ParseRule(js)
	if err != nil {
		return err
	}
	if err := h.Store.SaveRule(ctx, *rule); err != nil {
		return err
	}
	h.Rules.Invalidate(rule.Code)
	return nil
}

// backfillSnapshots writes one scheduled snapshot per tracked pair for each
// of the last days days, ending today.
func (h *Handler) backfillSnapshots(ctx context.Context, days int) error {
	tracked, err := h.Store.AllTracked(ctx)
	if err != nil {
		return err
	}
	today := h.today()

	for owner, codes := range tracked {
		trips, err := h.ownerTrips(ctx, owner)
		if err != nil {
			return err
		}
		for _, code := range codes {
			rule, err := h.Rules.GetRule(ctx, code)
			if err != nil {
				return err
			}
			for i := days - 1; i >= 0; i-- {
				summary := h.Calculator.Calculate(*rule, trips, today.AddDays(-i))
				snap := generic.NewSnapshot(uuid.NewString(), owner, summary, generic.SnapshotScheduled)
				if err := h.Store.SaveSnapshot(ctx, snap); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
