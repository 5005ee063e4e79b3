package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/capsim/backend/src/models"
)

func TestVote(t *testing.T) {
	e := newTestEngine()

	founding := &models.FoundingTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-founding", Date: "2020-01-01", Type: models.TxFounding, Status: models.StatusActive,
		},
		CompanyName: "Acme GmbH",
		ShareClasses: []models.ShareClass{
			{ID: "sc-common", Name: "Common", VotesPerShare: 1, LiquidationPreferenceFactor: 1,
				LiquidationPreferenceType: models.PrefNonParticipating},
			{ID: "sc-super", Name: "Super Voting", VotesPerShare: 10, LiquidationPreferenceFactor: 1,
				LiquidationPreferenceType: models.PrefNonParticipating},
		},
		Shareholdings: []models.Shareholding{
			holding("h-1", "st-alice", "Alice", "sc-common", 600000, 6000),
			holding("h-2", "st-bob", "Bob", "sc-super", 100000, 1000),
		},
	}
	txs := []models.Transaction{founding}
	capTable := e.CapTable(txs, "2021-01-01", "")

	result := e.Vote(capTable, txs)

	assert.InDelta(t, 1600000, result.TotalVotes, 1e-9)
	require.Len(t, result.VoteDistribution, 2)

	// Bob's 100,000 super-voting shares outweigh Alice's 600,000 common.
	assert.Equal(t, "Bob", result.VoteDistribution[0].StakeholderName)
	assert.InDelta(t, 1000000, result.VoteDistribution[0].Votes, 1e-9)
	assert.InDelta(t, 62.5, result.VoteDistribution[0].Percentage, 1e-9)

	assert.Equal(t, "Alice", result.VoteDistribution[1].StakeholderName)
	assert.InDelta(t, 37.5, result.VoteDistribution[1].Percentage, 1e-9)
}

func TestVoteOnlyVestedSharesVote(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 600000, 6000),
		func() models.Shareholding {
			h := holding("h-2", "st-bob", "Bob", "sc-common", 400000, 4000)
			h.VestingScheduleID = "vs-1"
			return h
		}(),
	})
	founding.VestingSchedules = []models.VestingSchedule{
		{ID: "vs-1", GrantDate: "2020-01-01", VestingPeriodMonths: 48, CliffMonths: 12},
	}
	txs := []models.Transaction{founding}

	capTable := e.CapTable(txs, "2020-06-01", "")
	result := e.Vote(capTable, txs)

	require.Len(t, result.VoteDistribution, 1)
	assert.Equal(t, "Alice", result.VoteDistribution[0].StakeholderName)
	assert.InDelta(t, 100.0, result.VoteDistribution[0].Percentage, 1e-9)
}

func TestVoteEmptyCapTable(t *testing.T) {
	e := newTestEngine()
	capTable := e.CapTable(nil, "2021-01-01", "")

	result := e.Vote(capTable, nil)

	assert.Zero(t, result.TotalVotes)
	assert.Empty(t, result.VoteDistribution)
	assert.Equal(t, "2021-01-01", result.AsOfDate)
}
