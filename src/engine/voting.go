// backend/src/engine/voting.go
package engine

import (
	"sort"

	"github.com/username/capsim/backend/src/models"
)

// Vote computes the voting-power distribution for a cap table snapshot.
// Only vested shares vote, weighted by their class's votesPerShare. Entries
// with zero votes are omitted; with no votes at all the distribution is
// empty.
func (e *Engine) Vote(capTable *models.CapTable, transactions []models.Transaction) *models.VotingResult {
	shareClasses := ShareClassesAsOf(transactions, capTable.AsOfDate)

	var totalVotes float64
	for _, entry := range capTable.Entries {
		if sc, ok := shareClasses[entry.ShareClassID]; ok {
			totalVotes += float64(entry.VestedShares) * sc.VotesPerShare
		}
	}

	if totalVotes == 0 {
		return &models.VotingResult{
			VoteDistribution: []models.VoteDistributionEntry{},
			TotalVotes:       0,
			AsOfDate:         capTable.AsOfDate,
		}
	}

	var voteDistribution []models.VoteDistributionEntry
	for _, entry := range capTable.Entries {
		sc, ok := shareClasses[entry.ShareClassID]
		if !ok {
			continue
		}
		votes := float64(entry.VestedShares) * sc.VotesPerShare
		if votes > 0 {
			voteDistribution = append(voteDistribution, models.VoteDistributionEntry{
				StakeholderName: entry.StakeholderName,
				ShareClassName:  entry.ShareClassName,
				Votes:           votes,
				Percentage:      votes / totalVotes * 100,
			})
		}
	}

	sort.SliceStable(voteDistribution, func(i, j int) bool {
		return voteDistribution[i].Votes > voteDistribution[j].Votes
	})

	return &models.VotingResult{
		VoteDistribution: voteDistribution,
		TotalVotes:       totalVotes,
		AsOfDate:         capTable.AsOfDate,
	}
}
