/*
handlers.go - HTTP API handlers for the stay-compliance engine

PURPOSE:
  Exposes the compliance engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Trips:
    GET    /api/trips                   List trips (?owner=&jurisdiction=&from=&to=)
    POST   /api/trips                   Create trip
    GET    /api/trips/{id}              Get trip
    PUT    /api/trips/{id}              Replace trip
    DELETE /api/trips/{id}              Delete trip

  Rules:
    GET    /api/rules                   List built-in and custom rules
    POST   /api/rules                   Create or replace a custom rule
    GET    /api/rules/{code}            Get rule
    DELETE /api/rules/{code}            Delete a custom rule

  Dashboard:
    GET    /api/tracked                 Tracked jurisdictions (?owner=)
    POST   /api/tracked                 Track a jurisdiction
    DELETE /api/tracked/{code}          Stop tracking (?owner=)
    GET    /api/summary/{code}          One summary (?owner=&as_of=)
    GET    /api/summaries               All tracked summaries (?owner=&as_of=&codes=)
    GET    /api/family/{code}/summary   Every traveler against one rule (?as_of=)

  Planning:
    POST   /api/simulate                What-if for one proposed trip
    POST   /api/plan/earliest           Earliest safe start for a length
    POST   /api/plan/max-length         Longest safe stay from a start

  History:
    GET    /api/snapshots/{code}        Snapshot history (?owner=&limit=)
    POST   /api/snapshots/run           Snapshot every tracked pair now

  Members:
    GET    /api/members                 List family members
    POST   /api/members                 Add family member
    DELETE /api/members/{id}            Remove member and their data

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    GET    /api/scenarios/current       Currently loaded scenario
    POST   /api/scenarios/load          Load a demo scenario
    POST   /api/scenarios/reset         Clear the database

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Rules: Cached rule registry (built-ins + custom rules)
  - Calculator/Simulator/Aggregator: The pure engine
  - Cache: Rendered summary cache (redis or no-op)
  - Snapshots: Snapshot scheduler, for manual and post-edit passes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid rule
  - 404: Trip, rule or member not found
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/staycount/factory"
	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/jurisdiction"
	"github.com/warp/staycount/metrics"
	"github.com/warp/staycount/store/sqlite"
)

// DefaultMaxTripDays caps a single trip when no limit is configured.
const DefaultMaxTripDays = 90

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Rules       *jurisdiction.Registry
	RuleFactory *factory.RuleFactory
	Calculator  *generic.Calculator
	Simulator   *generic.Simulator
	Aggregator  *generic.Aggregator
	Cache       SummaryCache
	Snapshots   *SnapshotScheduler
	Logger      zerolog.Logger

	// MaxTripDays rejects single trips longer than this.
	MaxTripDays int

	// Now returns "today". Nil means generic.Today().
	Now func() generic.TimePoint

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler with a calculator attributed to the primary
// zone and a no-op cache. Callers override exported fields as needed.
func NewHandler(store *sqlite.Store, rules *jurisdiction.Registry, logger zerolog.Logger) *Handler {
	calc := &generic.Calculator{PrimaryZone: jurisdiction.PrimaryZone}
	h := &Handler{
		Store:       store,
		Rules:       rules,
		RuleFactory: factory.NewRuleFactory(),
		Calculator:  calc,
		Aggregator:  &generic.Aggregator{Calculator: calc, Rules: rules},
		Cache:       NoopCache{},
		Logger:      logger,
		MaxTripDays: DefaultMaxTripDays,
	}
	h.Simulator = &generic.Simulator{Calculator: calc, Now: h.today}
	return h
}

func (h *Handler) today() generic.TimePoint {
	if h.Now == nil {
		return generic.Today()
	}
	return h.Now()
}

// =============================================================================
// TRIP HANDLERS
// =============================================================================

// ListTrips returns trips matching the query filters, ordered by start.
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter generic.TripFilter

	if q.Has("owner") {
		owner := generic.OwnerID(q.Get("owner"))
		filter.Owner = &owner
	}
	if code := q.Get("jurisdiction"); code != "" {
		jc := generic.JurisdictionCode(code)
		filter.Jurisdiction = &jc
	}
	for param, dst := range map[string]**generic.TimePoint{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(param); v != "" {
			tp, err := generic.ParseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s date", param), err)
				return
			}
			*dst = &tp
		}
	}

	trips, err := h.Store.ListTrips(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trips", err)
		return
	}

	dtos := make([]TripDTO, len(trips))
	for i, t := range trips {
		dtos[i] = toTripDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTrip validates and stores a new trip.
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req TripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	trip, err := h.tripFromRequest(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Invalid trip", err)
		return
	}

	if err := h.saveTrip(r.Context(), trip); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save trip", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTripDTO(trip))
}

// GetTrip returns one trip.
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.Store.GetTrip(r.Context(), generic.TripID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get trip", err)
		return
	}
	writeJSON(w, http.StatusOK, toTripDTO(*trip))
}

// UpdateTrip replaces an existing trip. The owner may change; both the old
// and new owner's cached summaries are dropped.
func (h *Handler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	existing, err := h.Store.GetTrip(ctx, generic.TripID(id))
	if err != nil {
		writeDomainError(w, "Failed to get trip", err)
		return
	}

	var req TripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = id

	trip, err := h.tripFromRequest(ctx, req)
	if err != nil {
		writeDomainError(w, "Invalid trip", err)
		return
	}

	if err := h.saveTrip(ctx, trip); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save trip", err)
		return
	}
	if existing.Owner != trip.Owner {
		h.afterTripChange(ctx, existing.Owner)
	}
	writeJSON(w, http.StatusOK, toTripDTO(trip))
}

// DeleteTrip removes a trip.
func (h *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.TripID(chi.URLParam(r, "id"))

	trip, err := h.Store.GetTrip(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get trip", err)
		return
	}
	if err := h.Store.DeleteTrip(ctx, id); err != nil {
		writeDomainError(w, "Failed to delete trip", err)
		return
	}
	h.afterTripChange(ctx, trip.Owner)
	w.WriteHeader(http.StatusNoContent)
}

// tripFromRequest parses and validates a trip body.
func (h *Handler) tripFromRequest(ctx context.Context, req TripRequest) (generic.Trip, error) {
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		return generic.Trip{}, &generic.InvalidTripError{TripID: generic.TripID(req.ID), Reason: "start_date must be YYYY-MM-DD"}
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		return generic.Trip{}, &generic.InvalidTripError{TripID: generic.TripID(req.ID), Reason: "end_date must be YYYY-MM-DD"}
	}

	trip := generic.Trip{
		ID:           generic.TripID(req.ID),
		Owner:        generic.OwnerID(req.Owner),
		Jurisdiction: generic.JurisdictionCode(req.Jurisdiction),
		Country:      strings.ToUpper(strings.TrimSpace(req.Country)),
		Start:        start,
		End:          end,
		Source:       generic.TripSource(req.Source),
		Confidence:   req.Confidence,
		Notes:        req.Notes,
	}
	if trip.Source == "" {
		trip.Source = generic.SourceManual
	}
	if trip.Confidence == 0 {
		trip.Confidence = 1
	}
	trip = jurisdiction.ResolveTrip(trip)

	if err := generic.ValidateTrip(trip); err != nil {
		return generic.Trip{}, err
	}
	// An empty jurisdiction means the primary zone, so a country that
	// resolves to nothing must not fall through silently.
	if trip.Jurisdiction == "" && trip.Country != "" {
		return generic.Trip{}, &generic.InvalidTripError{
			TripID: trip.ID, Start: trip.Start, End: trip.End,
			Reason: fmt.Sprintf("cannot infer a jurisdiction for country %s", trip.Country),
		}
	}
	if limit := h.maxTripDays(); trip.Days() > limit {
		return generic.Trip{}, &generic.InvalidTripError{
			TripID: trip.ID, Start: trip.Start, End: trip.End,
			Reason: fmt.Sprintf("a single trip may not exceed %d days", limit),
		}
	}
	if trip.Confidence < 0 || trip.Confidence > 1 {
		return generic.Trip{}, &generic.InvalidTripError{TripID: trip.ID, Start: trip.Start, End: trip.End, Reason: "confidence must be between 0 and 1"}
	}
	if trip.Jurisdiction == jurisdiction.Schengen && trip.Country != "" && !jurisdiction.IsSchengenCountry(trip.Country) {
		return generic.Trip{}, &generic.InvalidTripError{
			TripID: trip.ID, Start: trip.Start, End: trip.End,
			Reason: fmt.Sprintf("country %s is not a Schengen state", trip.Country),
		}
	}
	if trip.Owner != generic.PrimaryOwner {
		if err := h.requireMember(ctx, trip.Owner); err != nil {
			return generic.Trip{}, err
		}
	}
	if trip.Jurisdiction != "" {
		if _, err := h.Rules.GetRule(ctx, trip.Jurisdiction); err != nil {
			if errors.Is(err, generic.ErrRuleNotFound) {
				return generic.Trip{}, &generic.InvalidTripError{
					TripID: trip.ID, Start: trip.Start, End: trip.End,
					Reason: fmt.Sprintf("unknown jurisdiction %q", trip.Jurisdiction),
				}
			}
			return generic.Trip{}, err
		}
	}
	return trip, nil
}

func (h *Handler) maxTripDays() int {
	if h.MaxTripDays <= 0 {
		return DefaultMaxTripDays
	}
	return h.MaxTripDays
}

func (h *Handler) requireMember(ctx context.Context, owner generic.OwnerID) error {
	members, err := h.Store.ListMembers(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.ID == owner {
			return nil
		}
	}
	return &generic.InvalidTripError{Reason: fmt.Sprintf("unknown family member %q", owner)}
}

func (h *Handler) saveTrip(ctx context.Context, trip generic.Trip) error {
	if err := h.Store.SaveTrip(ctx, trip); err != nil {
		return err
	}
	h.afterTripChange(ctx, trip.Owner)
	return nil
}

// afterTripChange drops cached summaries and records a trip_edit snapshot
// for each jurisdiction the owner tracks. Failures are logged only: the
// trip itself is already stored.
func (h *Handler) afterTripChange(ctx context.Context, owner generic.OwnerID) {
	if err := h.Cache.InvalidateOwner(ctx, owner); err != nil {
		h.Logger.Warn().Err(err).Str("owner", string(owner)).Msg("Failed to invalidate summary cache")
	}
	if h.Snapshots == nil {
		return
	}
	if _, err := h.Snapshots.SnapshotOwner(ctx, owner, generic.SnapshotTripEdit); err != nil {
		h.Logger.Warn().Err(err).Str("owner", string(owner)).Msg("Failed to snapshot after trip edit")
	}
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns every rule the registry knows, flagging custom ones.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rules, err := h.Rules.ListRules(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}
	custom, err := h.Store.ListRules(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list custom rules", err)
		return
	}
	isCustom := make(map[generic.JurisdictionCode]bool, len(custom))
	for _, c := range custom {
		isCustom[c.Code] = true
	}

	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = RuleDTO{RuleJSON: h.RuleFactory.ToJSON(rule), Custom: isCustom[rule.Code]}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule stores a custom rule from its JSON definition.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, err := h.RuleFactory.FromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid rule", err)
		return
	}
	if err := h.Store.SaveRule(ctx, *rule); err != nil {
		writeDomainError(w, "Failed to save rule", err)
		return
	}
	h.afterRuleChange(ctx, rule.Code)

	writeJSON(w, http.StatusCreated, RuleDTO{RuleJSON: h.RuleFactory.ToJSON(*rule), Custom: true})
}

// GetRule returns one rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	code := generic.JurisdictionCode(chi.URLParam(r, "code"))

	rule, err := h.Rules.GetRule(r.Context(), code)
	if err != nil {
		writeDomainError(w, "Failed to get rule", err)
		return
	}
	_, customErr := h.Store.GetRule(r.Context(), code)
	writeJSON(w, http.StatusOK, RuleDTO{RuleJSON: h.RuleFactory.ToJSON(*rule), Custom: customErr == nil})
}

// DeleteRule removes a custom rule. A built-in with the same code, if any,
// becomes visible again.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := generic.JurisdictionCode(chi.URLParam(r, "code"))

	if err := h.Store.DeleteRule(ctx, code); err != nil {
		writeDomainError(w, "Failed to delete rule", err)
		return
	}
	h.afterRuleChange(ctx, code)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) afterRuleChange(ctx context.Context, code generic.JurisdictionCode) {
	h.Rules.Invalidate(code)
	if err := h.Cache.InvalidateAll(ctx); err != nil {
		h.Logger.Warn().Err(err).Msg("Failed to invalidate summary cache")
	}
}

// =============================================================================
// TRACKING HANDLERS
// =============================================================================

// GetTracked lists the jurisdictions on an owner's dashboard.
func (h *Handler) GetTracked(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)
	codes, err := h.Store.Tracked(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tracked jurisdictions", err)
		return
	}

	dto := TrackedDTO{Owner: string(owner), Jurisdictions: make([]string, len(codes))}
	for i, c := range codes {
		dto.Jurisdictions[i] = string(c)
	}
	writeJSON(w, http.StatusOK, dto)
}

// Track adds a jurisdiction to an owner's dashboard.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	owner := generic.OwnerID(req.Owner)
	code := generic.JurisdictionCode(req.Jurisdiction)

	if _, err := h.Rules.GetRule(ctx, code); err != nil {
		writeDomainError(w, "Unknown jurisdiction", err)
		return
	}
	if err := h.Store.Track(ctx, owner, code); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to track jurisdiction", err)
		return
	}
	writeJSON(w, http.StatusCreated, TrackedDTO{Owner: req.Owner, Jurisdictions: []string{req.Jurisdiction}})
}

// Untrack removes a jurisdiction from an owner's dashboard.
func (h *Handler) Untrack(w http.ResponseWriter, r *http.Request) {
	code := generic.JurisdictionCode(chi.URLParam(r, "code"))
	if err := h.Store.Untrack(r.Context(), ownerParam(r), code); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to untrack jurisdiction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SUMMARY HANDLERS
// =============================================================================

// GetSummary returns one jurisdiction's summary for an owner.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)
	code := generic.JurisdictionCode(chi.URLParam(r, "code"))

	asOf, err := h.dateParam(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	if cached := h.cachedSummary(ctx, owner, code, asOf); cached != nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	rule, err := h.Rules.GetRule(ctx, code)
	if err != nil {
		writeDomainError(w, "Failed to get rule", err)
		return
	}
	trips, err := h.ownerTrips(ctx, owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trips", err)
		return
	}

	summary := h.Calculator.Calculate(*rule, trips, asOf)
	metrics.CalculationsTotal.WithLabelValues(string(code), string(summary.Status)).Inc()

	dto := toSummaryDTO(owner, summary)
	h.storeSummary(ctx, owner, code, asOf, dto)
	writeJSON(w, http.StatusOK, dto)
}

// GetSummaries returns one summary per requested jurisdiction. Codes come
// from ?codes=a,b, else the owner's tracked list, else the primary zone.
func (h *Handler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)

	asOf, err := h.dateParam(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	codes, err := h.summaryCodes(ctx, r, owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tracked jurisdictions", err)
		return
	}

	trips, err := h.ownerTrips(ctx, owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trips", err)
		return
	}

	summaries, err := h.Aggregator.SummarizeAll(ctx, codes, trips, asOf)
	if err != nil {
		writeDomainError(w, "Failed to summarize", err)
		return
	}

	resp := SummariesResponse{
		Owner:       string(owner),
		AsOf:        asOf.String(),
		WorstStatus: string(generic.StatusSafe),
		Summaries:   make([]SummaryDTO, 0, len(summaries)),
	}
	worst := generic.StatusSafe
	for _, code := range sortedCodes(summaries) {
		s := summaries[code]
		metrics.CalculationsTotal.WithLabelValues(string(code), string(s.Status)).Inc()
		if s.Status.Severity() > worst.Severity() {
			worst = s.Status
		}
		dto := toSummaryDTO(owner, s)
		h.storeSummary(ctx, owner, code, asOf, dto)
		resp.Summaries = append(resp.Summaries, dto)
	}
	resp.WorstStatus = string(worst)
	writeJSON(w, http.StatusOK, resp)
}

// GetFamilySummary returns the primary traveler's and every member's
// summary against one rule. Members without trips are included.
func (h *Handler) GetFamilySummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := generic.JurisdictionCode(chi.URLParam(r, "code"))

	asOf, err := h.dateParam(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	rule, err := h.Rules.GetRule(ctx, code)
	if err != nil {
		writeDomainError(w, "Failed to get rule", err)
		return
	}

	trips, err := h.Store.ListTrips(ctx, generic.TripFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trips", err)
		return
	}
	members, err := h.Store.ListMembers(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	primary, byMember := generic.GroupByOwner(trips)
	for _, m := range members {
		if _, ok := byMember[m.ID]; !ok {
			byMember[m.ID] = nil
		}
	}

	family := h.Aggregator.SummarizeFamily(*rule, primary, byMember, asOf)
	atRisk, _ := family.MostAtRisk()

	dto := FamilySummaryDTO{
		Jurisdiction: string(code),
		AsOf:         asOf.String(),
		Primary:      toSummaryDTO(generic.PrimaryOwner, family.Primary),
		Members:      make([]SummaryDTO, 0, len(family.Members)),
		MostAtRisk:   string(atRisk),
	}
	ids := make([]generic.OwnerID, 0, len(family.Members))
	for id := range family.Members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		dto.Members = append(dto.Members, toSummaryDTO(id, family.Members[id]))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) summaryCodes(ctx context.Context, r *http.Request, owner generic.OwnerID) ([]generic.JurisdictionCode, error) {
	if raw := r.URL.Query().Get("codes"); raw != "" {
		var codes []generic.JurisdictionCode
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, generic.JurisdictionCode(c))
			}
		}
		return codes, nil
	}

	codes, err := h.Store.Tracked(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 && h.Calculator.PrimaryZone != "" {
		codes = []generic.JurisdictionCode{h.Calculator.PrimaryZone}
	}
	return codes, nil
}

func (h *Handler) cachedSummary(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode, asOf generic.TimePoint) *SummaryDTO {
	dto, err := h.Cache.Get(ctx, owner, code, asOf)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("Summary cache read failed")
		return nil
	}
	return dto
}

func (h *Handler) storeSummary(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode, asOf generic.TimePoint, dto SummaryDTO) {
	if err := h.Cache.Set(ctx, owner, code, asOf, dto); err != nil {
		h.Logger.Warn().Err(err).Msg("Summary cache write failed")
	}
}

// =============================================================================
// PLANNING HANDLERS
// =============================================================================

// Simulate checks a proposed trip against the owner's existing trips.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	if limit := h.maxTripDays(); generic.CountInclusiveDays(start, end) > limit {
		writeDomainError(w, "Invalid proposed trip", &generic.InvalidTripError{
			TripID: "proposed", Start: start, End: end,
			Reason: fmt.Sprintf("a single trip may not exceed %d days", limit),
		})
		return
	}

	rule, trips, err := h.planningInput(ctx, req.Owner, req.Jurisdiction)
	if err != nil {
		writeDomainError(w, "Failed to load planning input", err)
		return
	}

	result, err := h.Simulator.Simulate(*rule, trips, start, end)
	if err != nil {
		writeDomainError(w, "Invalid proposed trip", err)
		return
	}
	metrics.SimulationsTotal.WithLabelValues(req.Jurisdiction, "simulate", outcome(!result.WouldViolate)).Inc()
	writeJSON(w, http.StatusOK, toSimulationDTO(result))
}

// EarliestStart finds the first safe start date for a trip of a given length.
func (h *Handler) EarliestStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EarliestStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from := h.today()
	if req.From != "" {
		tp, err := generic.ParseDate(req.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		from = tp
	}
	if limit := h.maxTripDays(); req.Length < 1 || req.Length > limit {
		writeDomainError(w, "Invalid trip length",
			fmt.Errorf("%w: %d days, must be 1-%d", generic.ErrInvalidTripLength, req.Length, limit))
		return
	}

	rule, trips, err := h.planningInput(ctx, req.Owner, req.Jurisdiction)
	if err != nil {
		writeDomainError(w, "Failed to load planning input", err)
		return
	}

	start, err := h.Simulator.FindEarliestSafeStartFrom(*rule, trips, req.Length, from)
	if err != nil {
		writeDomainError(w, "Invalid trip length", err)
		return
	}
	metrics.SimulationsTotal.WithLabelValues(req.Jurisdiction, "earliest", outcome(start != nil)).Inc()

	dto := EarliestStartDTO{
		Jurisdiction: req.Jurisdiction,
		Length:       req.Length,
		From:         from.String(),
		Found:        start != nil,
	}
	if start != nil {
		dto.EarliestStart = datePtr(*start)
		dto.EarliestEnd = datePtr(start.AddDays(req.Length - 1))
	}
	writeJSON(w, http.StatusOK, dto)
}

// MaxLength finds the longest safe stay starting on a given date.
func (h *Handler) MaxLength(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MaxLengthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	rule, trips, err := h.planningInput(ctx, req.Owner, req.Jurisdiction)
	if err != nil {
		writeDomainError(w, "Failed to load planning input", err)
		return
	}

	days := h.Simulator.FindMaxSafeLength(*rule, trips, start)
	metrics.SimulationsTotal.WithLabelValues(req.Jurisdiction, "max_length", outcome(days > 0)).Inc()

	dto := MaxLengthDTO{Jurisdiction: req.Jurisdiction, StartDate: start.String(), MaxDays: days}
	if days > 0 {
		dto.LastSafeDay = datePtr(start.AddDays(days - 1))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) planningInput(ctx context.Context, owner, code string) (*generic.Rule, []generic.Trip, error) {
	if code == "" {
		return nil, nil, &generic.InvalidTripError{Reason: "jurisdiction is required"}
	}
	rule, err := h.Rules.GetRule(ctx, generic.JurisdictionCode(code))
	if err != nil {
		return nil, nil, err
	}
	trips, err := h.ownerTrips(ctx, generic.OwnerID(owner))
	if err != nil {
		return nil, nil, err
	}
	return rule, trips, nil
}

func outcome(ok bool) string {
	if ok {
		return "safe"
	}
	return "violation"
}

// =============================================================================
// SNAPSHOT HANDLERS
// =============================================================================

// ListSnapshots returns stored summaries for charting, oldest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	code := generic.JurisdictionCode(chi.URLParam(r, "code"))

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	snaps, err := h.Store.ListSnapshots(r.Context(), ownerParam(r), code, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunSnapshots runs a snapshot pass immediately.
func (h *Handler) RunSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.Snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot scheduler not configured", nil)
		return
	}
	result, err := h.Snapshots.RunNow(r.Context(), generic.SnapshotManual)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Snapshot pass failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotRunDTO{Written: result.Written, Alerts: result.Alerts, Failed: result.Failed})
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all family members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember adds a family member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	m := sqlite.Member{ID: generic.OwnerID(req.ID), Name: req.Name, Relationship: req.Relationship}
	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// DeleteMember removes a member with their trips, tracking and snapshots.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.OwnerID(chi.URLParam(r, "id"))
	if id == generic.PrimaryOwner {
		writeError(w, http.StatusBadRequest, "Member id is required", nil)
		return
	}
	if err := h.Store.DeleteMember(ctx, id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sqlite.ErrMemberNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "Failed to delete member", err)
		return
	}
	if err := h.Cache.InvalidateOwner(ctx, id); err != nil {
		h.Logger.Warn().Err(err).Msg("Failed to invalidate summary cache")
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) ownerTrips(ctx context.Context, owner generic.OwnerID) ([]generic.Trip, error) {
	return h.Store.ListTrips(ctx, generic.TripFilter{Owner: &owner})
}

func ownerParam(r *http.Request) generic.OwnerID {
	return generic.OwnerID(r.URL.Query().Get("owner"))
}

// dateParam parses a YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dateParam(r *http.Request, name string) (generic.TimePoint, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return h.today(), nil
	}
	return generic.ParseDate(v)
}

func sortedCodes(m map[generic.JurisdictionCode]generic.Summary) []generic.JurisdictionCode {
	codes := make([]generic.JurisdictionCode, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto 400/404/500.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
