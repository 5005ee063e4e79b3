package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/username/capsim/backend/src/models"
)

func capEntryFor(t *testing.T, result *models.TotalCapitalizationResult, key string) models.TotalCapitalizationEntry {
	t.Helper()
	for _, e := range result.Entries {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("no capitalization entry with key %s", key)
	return models.TotalCapitalizationEntry{}
}

func TestTotalCapitalizationWithoutRound(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 600000, 6000),
		holding("h-2", "st-bob", "Bob", "sc-common", 400000, 4000),
	})
	loan := &models.ConvertibleLoanTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-loan", Date: "2021-01-01", Type: models.TxConvertibleLoan, Status: models.StatusActive,
		},
		InvestorName: "Angel", StakeholderID: "st-angel",
		Amount: 200000, InterestRate: 0,
		ConversionMechanism: models.MechanismCapAndDiscount,
	}
	debt := &models.DebtInstrumentTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-debt", Date: "2021-01-01", Type: models.TxDebtInstrument, Status: models.StatusActive,
		},
		LenderName: "Bank", Amount: 300000, InterestRate: 0,
		Seniority: models.SenioritySeniorSecured,
	}
	txs := []models.Transaction{founding, loan, debt}

	capTable := e.CapTable(txs, "2022-01-01", "")
	result := e.TotalCapitalization(capTable, txs, EnglishLabels())

	// No round yet: equity is valued at invested capital over total shares,
	// so each position is worth exactly its investment.
	alice := capEntryFor(t, result, "equity-st-alice-sc-common")
	assert.InDelta(t, 6000, alice.Value, 0.01)
	assert.Equal(t, "Equity", alice.InstrumentType)
	assert.Equal(t, "600,000", alice.AmountOrShares)

	loanEntry := capEntryFor(t, result, "loan-tx-loan")
	assert.InDelta(t, 200000, loanEntry.Value, 0.01)
	assert.Equal(t, "Hybrid", loanEntry.InstrumentType)

	debtEntry := capEntryFor(t, result, "debt-tx-debt")
	assert.InDelta(t, 300000, debtEntry.Value, 0.01)
	assert.Equal(t, "Debt", debtEntry.InstrumentType)

	assert.InDelta(t, 510000, result.TotalValue, 0.01)

	// Entries are sorted by value descending.
	assert.Equal(t, "debt-tx-debt", result.Entries[0].Key)
	assert.Equal(t, "loan-tx-loan", result.Entries[1].Key)
}

func TestTotalCapitalizationUsesLastRoundPrice(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 1000000, 10000),
	})
	round := &models.FinancingRoundTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-round", Date: "2021-01-01", Type: models.TxFinancingRound, Status: models.StatusActive,
		},
		RoundName:         "Series A",
		PreMoneyValuation: 10000000,
		NewShareClass: models.ShareClass{
			ID: "sc-a", Name: "Series A", LiquidationPreferenceRank: 1, LiquidationPreferenceFactor: 1,
			LiquidationPreferenceType: models.PrefNonParticipating, VotesPerShare: 1,
		},
		NewShareholdings: []models.Shareholding{
			{ID: "h-inv", StakeholderID: "st-inv", StakeholderName: "Investor",
				ShareClassID: "sc-a", Shares: 100000, Investment: 1000000, OriginalPricePerShare: 10},
		},
	}
	txs := []models.Transaction{founding, round}

	capTable := e.CapTable(txs, "2022-01-01", "")
	result := e.TotalCapitalization(capTable, txs, EnglishLabels())

	// Implied price: 10,000,000 pre-money over the 1,000,000 shares that
	// existed before the round.
	alice := capEntryFor(t, result, "equity-st-alice-sc-common")
	assert.InDelta(t, 10000000, alice.Value, 0.01)

	investor := capEntryFor(t, result, "equity-st-inv-sc-a")
	assert.InDelta(t, 1000000, investor.Value, 0.01)

	assert.InDelta(t, 11000000, result.TotalValue, 0.01)
}

func TestTotalCapitalizationConvertedLoanExcluded(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 1000000, 10000),
	})
	loan := &models.ConvertibleLoanTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-loan", Date: "2021-01-01", Type: models.TxConvertibleLoan, Status: models.StatusActive,
		},
		InvestorName: "Angel", StakeholderID: "st-angel",
		Amount: 200000, InterestRate: 0,
		ConversionMechanism: models.MechanismFixedPrice, FixedConversionPrice: 10,
	}
	round := &models.FinancingRoundTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-round", Date: "2022-01-01", Type: models.TxFinancingRound, Status: models.StatusActive,
		},
		PreMoneyValuation: 10000000,
		NewShareClass: models.ShareClass{
			ID: "sc-a", Name: "Series A", VotesPerShare: 1, LiquidationPreferenceFactor: 1,
			LiquidationPreferenceType: models.PrefNonParticipating,
		},
		ConvertsLoanIDs: []string{"tx-loan"},
	}
	txs := []models.Transaction{founding, loan, round}

	capTable := e.CapTable(txs, "2023-01-01", "")
	result := e.TotalCapitalization(capTable, txs, EnglishLabels())

	for _, entry := range result.Entries {
		assert.NotEqual(t, "loan-tx-loan", entry.Key, "converted loan must not be listed as a hybrid instrument")
	}
	// The angel shows up as equity instead.
	capEntryFor(t, result, "equity-st-angel-sc-a")
}
