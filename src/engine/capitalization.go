// backend/src/engine/capitalization.go
package engine

import (
	"fmt"
	"sort"

	"github.com/username/capsim/backend/src/models"
)

// TotalCapitalization values every outstanding instrument as of the cap
// table's date: equity at the implied price per share, unconverted
// convertible loans and debt at principal plus accrued interest.
//
// The implied price comes from the most recent financing round's pre-money
// valuation divided by the share count just before that round (the round
// itself excluded from the replay). Without any round, aggregate invested
// capital over total shares is used instead.
func (e *Engine) TotalCapitalization(capTable *models.CapTable, transactions []models.Transaction, labels *Labels) *models.TotalCapitalizationResult {
	asOfDate := capTable.AsOfDate

	relevant := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Base().Date <= asOfDate {
			relevant = append(relevant, tx)
		}
	}

	var lastRound *models.FinancingRoundTransaction
	for _, tx := range relevant {
		if round, ok := tx.(*models.FinancingRoundTransaction); ok {
			if lastRound == nil || round.Date > lastRound.Date {
				lastRound = round
			}
		}
	}

	var pricePerShare float64
	if lastRound != nil {
		capTableBeforeRound := e.CapTable(relevant, lastRound.Date, lastRound.ID)
		if capTableBeforeRound.TotalShares > 0 {
			pricePerShare = lastRound.PreMoneyValuation / float64(capTableBeforeRound.TotalShares)
		}
	} else if capTable.TotalShares > 0 {
		var totalInvestment float64
		for _, entry := range capTable.Entries {
			totalInvestment += entry.InitialInvestment
		}
		pricePerShare = totalInvestment / float64(capTable.TotalShares)
	}

	var entries []models.TotalCapitalizationEntry
	var totalValue float64

	for _, entry := range capTable.Entries {
		value := entry.InitialInvestment
		if pricePerShare > 0 {
			value = float64(entry.Shares) * pricePerShare
		}
		entries = append(entries, models.TotalCapitalizationEntry{
			Key:             fmt.Sprintf("equity-%s-%s", entry.StakeholderID, entry.ShareClassID),
			StakeholderName: entry.StakeholderName,
			InstrumentName:  entry.ShareClassName,
			InstrumentType:  labels.Equity,
			AmountOrShares:  labels.Integer(entry.Shares),
			Value:           value,
		})
		totalValue += value
	}

	convertedLoanIDs := make(map[string]bool)
	for _, tx := range relevant {
		if round, ok := tx.(*models.FinancingRoundTransaction); ok {
			for _, id := range round.ConvertsLoanIDs {
				convertedLoanIDs[id] = true
			}
		}
	}

	for _, tx := range relevant {
		switch t := tx.(type) {
		case *models.ConvertibleLoanTransaction:
			if convertedLoanIDs[t.ID] {
				continue
			}
			value := t.Amount + AccruedInterest(t.Amount, t.InterestRate, t.Date, asOfDate)
			entries = append(entries, models.TotalCapitalizationEntry{
				Key:             "loan-" + t.ID,
				StakeholderName: t.InvestorName,
				InstrumentName:  fmt.Sprintf("%s (%s)", labels.ConvertibleLoan, t.Date),
				InstrumentType:  labels.Hybrid,
				AmountOrShares:  labels.Currency(t.Amount),
				Value:           value,
			})
			totalValue += value

		case *models.DebtInstrumentTransaction:
			value := t.Amount + AccruedInterest(t.Amount, t.InterestRate, t.Date, asOfDate)
			entries = append(entries, models.TotalCapitalizationEntry{
				Key:             "debt-" + t.ID,
				StakeholderName: t.LenderName,
				InstrumentName:  fmt.Sprintf("%s (%s)", labels.DebtInstrument, labels.Seniority(t.Seniority)),
				InstrumentType:  labels.Debt,
				AmountOrShares:  labels.Currency(t.Amount),
				Value:           value,
			})
			totalValue += value
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value > entries[j].Value
	})

	return &models.TotalCapitalizationResult{
		Entries:    entries,
		TotalValue: totalValue,
	}
}
