package services

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/capsim/backend/src/engine"
)

// newSimFixture creates a project with a founding transaction and returns
// both services wired to the same cache, the way main assembles them.
func newSimFixture(t *testing.T) (ProjectService, SimulationService, int64) {
	t.Helper()
	db := newTestDB(t)
	reportCache := newTestCache()
	projectSvc := NewProjectService(db, reportCache)
	simSvc := NewSimulationService(db, engine.New(), reportCache)

	project, err := projectSvc.CreateProject(testUserID, "Sim", "")
	require.NoError(t, err)
	_, err = projectSvc.AddTransaction(testUserID, project.ID, foundingPayload())
	require.NoError(t, err)
	return projectSvc, simSvc, project.ID
}

func TestGetCapTable(t *testing.T) {
	_, simSvc, projectID := newSimFixture(t)

	ct, err := simSvc.GetCapTable(testUserID, projectID, "2021-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), ct.TotalShares)
	assert.Equal(t, "2021-01-01", ct.AsOfDate)
	require.Len(t, ct.Entries, 2)

	// Ownership is enforced before any computation.
	_, err = simSvc.GetCapTable(otherUserID, projectID, "2021-01-01", "")
	assert.ErrorIs(t, err, ErrProjectNotFound)

	// An empty as-of date defaults to today, which is after the founding.
	today, err := simSvc.GetCapTable(testUserID, projectID, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), today.TotalShares)
}

func TestDraftTransactionsNeverReachTheEngine(t *testing.T) {
	projectSvc, simSvc, projectID := newSimFixture(t)

	draft := `{
		"type": "FOUNDING", "date": "2020-06-01", "status": "DRAFT", "companyName": "Draft Co",
		"shareClasses": [{"id": "sc-d", "name": "Phantom"}],
		"shareholdings": [{"stakeholderId": "st-9", "stakeholderName": "Ghost", "shareClassId": "sc-d", "shares": 999999}]
	}`
	_, err := projectSvc.AddTransaction(testUserID, projectID, json.RawMessage(draft))
	require.NoError(t, err)

	ct, err := simSvc.GetCapTable(testUserID, projectID, "2021-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), ct.TotalShares)
}

func TestSimulationResultsAreCached(t *testing.T) {
	db := newTestDB(t)
	reportCache := newTestCache()
	projectSvc := NewProjectService(db, reportCache)
	simSvc := NewSimulationService(db, engine.New(), reportCache)

	project, err := projectSvc.CreateProject(testUserID, "Cached", "")
	require.NoError(t, err)
	_, err = projectSvc.AddTransaction(testUserID, project.ID, foundingPayload())
	require.NoError(t, err)

	first, err := simSvc.GetCapTable(testUserID, project.ID, "2021-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), first.TotalShares)

	// A write that bypasses the service layer is invisible while the cached
	// result lives.
	_, err = db.Exec(`INSERT INTO transactions (id, project_id, tx_type, tx_date, status, payload) VALUES
		('tx-raw', ?, 'DEBT_INSTRUMENT', '2020-06-01', 'ACTIVE',
		 '{"id":"tx-raw","type":"DEBT_INSTRUMENT","date":"2020-06-01","status":"ACTIVE","lenderName":"Bank","amount":1000,"seniority":"SENIOR_SECURED"}')`,
		project.ID)
	require.NoError(t, err)

	stale, err := simSvc.GetVoting(testUserID, project.ID, "2021-01-01")
	require.NoError(t, err)
	cachedAgain, err := simSvc.GetVoting(testUserID, project.ID, "2021-01-01")
	require.NoError(t, err)
	assert.Same(t, stale, cachedAgain, "second call must come from the cache")

	simSvc.InvalidateProjectCache(testUserID, project.ID)
	fresh, err := simSvc.GetVoting(testUserID, project.ID, "2021-01-01")
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
}

func TestLogWritesInvalidateSimulationCache(t *testing.T) {
	projectSvc, simSvc, projectID := newSimFixture(t)

	before, err := simSvc.GetCapTable(testUserID, projectID, "2023-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), before.TotalShares)

	round := `{
		"type": "FINANCING_ROUND", "date": "2022-01-01", "roundName": "Series A",
		"preMoneyValuation": 10000000,
		"newShareClass": {"id": "sc-a", "name": "Series A", "liquidationPreferenceRank": 1},
		"newShareholdings": [{"stakeholderId": "st-3", "stakeholderName": "Carol", "shareClassId": "sc-a", "shares": 200000, "investment": 2000000}]
	}`
	_, err = projectSvc.AddTransaction(testUserID, projectID, json.RawMessage(round))
	require.NoError(t, err)

	after, err := simSvc.GetCapTable(testUserID, projectID, "2023-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1200000), after.TotalShares, "the write must drop the cached snapshot")
}

func TestCacheInvalidationIsScopedToTheProject(t *testing.T) {
	db := newTestDB(t)
	reportCache := newTestCache()
	projectSvc := NewProjectService(db, reportCache)
	simSvc := NewSimulationService(db, engine.New(), reportCache)

	one, err := projectSvc.CreateProject(testUserID, "One", "")
	require.NoError(t, err)
	two, err := projectSvc.CreateProject(testUserID, "Two", "")
	require.NoError(t, err)
	for _, id := range []int64{one.ID, two.ID} {
		_, err = projectSvc.AddTransaction(testUserID, id, foundingPayload())
		require.NoError(t, err)
	}

	ctOne, err := simSvc.GetCapTable(testUserID, one.ID, "2021-01-01", "")
	require.NoError(t, err)
	ctTwo, err := simSvc.GetCapTable(testUserID, two.ID, "2021-01-01", "")
	require.NoError(t, err)

	simSvc.InvalidateProjectCache(testUserID, one.ID)

	freshOne, err := simSvc.GetCapTable(testUserID, one.ID, "2021-01-01", "")
	require.NoError(t, err)
	assert.NotSame(t, ctOne, freshOne)

	stillCachedTwo, err := simSvc.GetCapTable(testUserID, two.ID, "2021-01-01", "")
	require.NoError(t, err)
	assert.Same(t, ctTwo, stillCachedTwo)
}

func TestGetWaterfallVotingAndTotalCapitalization(t *testing.T) {
	projectSvc, simSvc, projectID := newSimFixture(t)

	_, err := projectSvc.AddTransaction(testUserID, projectID,
		json.RawMessage(`{"type": "DEBT_INSTRUMENT", "date": "2020-06-01", "lenderName": "Bank", "amount": 200000, "seniority": "SENIOR_SECURED"}`))
	require.NoError(t, err)

	waterfall, err := simSvc.GetWaterfall(testUserID, projectID, "2021-01-01", 1000000, 0, "en")
	require.NoError(t, err)
	assert.InDelta(t, 1000000, waterfall.NetExitProceeds, 0.01)
	assert.NotEmpty(t, waterfall.Distributions)
	assert.NotEmpty(t, waterfall.CalculationLog)

	german, err := simSvc.GetWaterfall(testUserID, projectID, "2021-01-01", 1000000, 0, "de")
	require.NoError(t, err)
	assert.NotSame(t, waterfall, german, "language is part of the cache key")

	voting, err := simSvc.GetVoting(testUserID, projectID, "2021-01-01")
	require.NoError(t, err)
	assert.InDelta(t, 1000000, voting.TotalVotes, 1e-9)

	totalCap, err := simSvc.GetTotalCapitalization(testUserID, projectID, "2021-01-01", "en")
	require.NoError(t, err)
	assert.NotEmpty(t, totalCap.Entries)
	assert.Greater(t, totalCap.TotalValue, 0.0)

	_, err = simSvc.GetWaterfall(otherUserID, projectID, "2021-01-01", 1000000, 0, "en")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCacheKeyMarkersCoverAllResultKinds(t *testing.T) {
	// The delimiter-terminated invalidation marker must appear in every key
	// format, otherwise a result kind would survive project writes. It must
	// not appear in keys of projects sharing a numeric prefix (1 vs 12).
	marker := fmt.Sprintf("user_%d_pf_%d_", int64(7), int64(1))
	for _, key := range []string{
		fmt.Sprintf(ckCapTable, int64(7), int64(1), "2021-01-01", ""),
		fmt.Sprintf(ckWaterfall, int64(7), int64(1), "2021-01-01", 1000000.0, 0.0, "en"),
		fmt.Sprintf(ckVoting, int64(7), int64(1), "2021-01-01"),
		fmt.Sprintf(ckTotalCap, int64(7), int64(1), "2021-01-01", "en"),
	} {
		assert.Contains(t, key, marker)
	}
	assert.NotContains(t, fmt.Sprintf(ckVoting, int64(7), int64(12), "2021-01-01"), marker)
}
