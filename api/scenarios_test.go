package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenarios_ListAndCurrent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	ts.loadScenario(t, "digital-nomad")
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "digital-nomad", decode[ScenarioDTO](t, rec).ID)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "moon-base"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An unknown scenario does not wipe the loaded one
	rec = ts.do(t, http.MethodGet, "/api/trips", nil)
	assert.NotEmpty(t, decode[[]TripDTO](t, rec))

	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
	rec = ts.do(t, http.MethodGet, "/api/trips", nil)
	assert.Empty(t, decode[[]TripDTO](t, rec))
}

func TestScenario_DigitalNomad(t *testing.T) {
	// GIVEN: The digital-nomad scenario
	// WHEN: The dashboard is requested
	// THEN: Schengen sits at 80/90 (warning) and UK at 10/180

	ts := newTestServer(t)
	ts.loadScenario(t, "digital-nomad")

	rec := ts.do(t, http.MethodGet, "/api/summaries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SummariesResponse](t, rec)
	require.Len(t, resp.Summaries, 3)

	byCode := map[string]SummaryDTO{}
	for _, s := range resp.Summaries {
		byCode[s.Jurisdiction] = s
	}
	assert.Equal(t, 80, byCode["schengen"].DaysUsed)
	assert.Equal(t, "warning", byCode["schengen"].Status)
	assert.Equal(t, 10, byCode["uk_visitor"].DaysUsed)
	assert.Equal(t, 0, byCode["us_vwp"].DaysUsed)
	assert.Equal(t, "warning", resp.WorstStatus)

	rec = ts.do(t, http.MethodGet, "/api/snapshots/schengen", nil)
	snaps := decode[[]SnapshotDTO](t, rec)
	require.Len(t, snaps, scenarioHistoryDays)
	assert.Equal(t, "2024-06-01", snaps[len(snaps)-1].TakenAt)
	assert.Equal(t, 80, snaps[len(snaps)-1].Summary.DaysUsed)
}

func TestScenario_Family(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "family")

	rec := ts.do(t, http.MethodGet, "/api/family/schengen/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fam := decode[FamilySummaryDTO](t, rec)

	assert.Equal(t, 30, fam.Primary.DaysUsed)
	assert.Equal(t, "spouse", fam.MostAtRisk)
	require.Len(t, fam.Members, 2)
	assert.Equal(t, 10, fam.Members[0].DaysUsed)
	assert.Equal(t, 85, fam.Members[1].DaysUsed)
	assert.Equal(t, "critical", fam.Members[1].Status)

	rec = ts.do(t, http.MethodGet, "/api/snapshots/schengen?owner=spouse&limit=5", nil)
	assert.Len(t, decode[[]SnapshotDTO](t, rec), 5)
}

func TestScenario_TaxResidency(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "tax-residency")

	rec := ts.do(t, http.MethodGet, "/api/summary/us_ny", nil)
	s := decode[SummaryDTO](t, rec)
	assert.Equal(t, 85, s.DaysUsed)
	assert.Equal(t, 183, s.DaysAllowed)
	assert.Equal(t, "2024-01-01", s.WindowStart)
	assert.Nil(t, s.NextExpiring)

	rec = ts.do(t, http.MethodGet, "/api/summary/uk_tax", nil)
	s = decode[SummaryDTO](t, rec)
	assert.Equal(t, 14, s.DaysUsed)
	assert.Equal(t, "2024-04-06", s.WindowStart)
}

func TestScenario_CustomRule(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "custom-rule")

	rec := ts.do(t, http.MethodGet, "/api/rules/th_visa_exempt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[RuleDTO](t, rec).Custom)

	rec = ts.do(t, http.MethodGet, "/api/summary/th_visa_exempt", nil)
	s := decode[SummaryDTO](t, rec)
	assert.Equal(t, 45, s.DaysUsed)
	assert.Equal(t, "warning", s.Status)

	rec = ts.do(t, http.MethodGet, "/api/summary/au_tax", nil)
	s = decode[SummaryDTO](t, rec)
	assert.Equal(t, "2023-07-01", s.WindowStart)
	assert.Equal(t, 40, s.DaysUsed)

	// Reset drops custom rules too
	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/rules/th_visa_exempt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
