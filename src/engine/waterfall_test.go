package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/capsim/backend/src/models"
)

func distributionFor(t *testing.T, result *models.WaterfallResult, stakeholderID string) models.WaterfallDistribution {
	t.Helper()
	for _, d := range result.Distributions {
		if d.StakeholderID == stakeholderID {
			return d
		}
	}
	t.Fatalf("no distribution for stakeholder %s", stakeholderID)
	return models.WaterfallDistribution{}
}

// assertConservation checks that every euro of net proceeds is either
// distributed or reported as remaining.
func assertConservation(t *testing.T, result *models.WaterfallResult) {
	t.Helper()
	var distributed float64
	for _, d := range result.Distributions {
		distributed += d.TotalProceeds
	}
	assert.InDelta(t, result.NetExitProceeds, distributed+result.RemainingValue, 0.01)
}

func TestWaterfallDebtSeniority(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 1000000, 10000),
	})
	bankLoan := &models.DebtInstrumentTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-bank", Date: "2021-01-01", Type: models.TxDebtInstrument, Status: models.StatusActive,
		},
		LenderName: "House Bank", Amount: 500000, InterestRate: 0,
		Seniority: models.SenioritySeniorSecured,
	}
	angelLoan := &models.ConvertibleLoanTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-angel", Date: "2021-01-01", Type: models.TxConvertibleLoan, Status: models.StatusActive,
		},
		InvestorName: "Angel", StakeholderID: "st-angel",
		Amount: 200000, InterestRate: 0,
		ConversionMechanism: models.MechanismCapAndDiscount,
		Seniority:           models.SenioritySubordinated,
	}
	txs := []models.Transaction{founding, bankLoan, angelLoan}

	capTable := e.CapTable(txs, "2022-01-01", "")
	result := e.Waterfall(capTable, txs, 1000000, 0, EnglishLabels())

	assert.InDelta(t, 1000000, result.NetExitProceeds, 0.01)

	bank := distributionFor(t, result, "debt-tx-bank")
	assert.InDelta(t, 500000, bank.FromDebtRepayment, 0.01)
	assert.InDelta(t, 1.0, bank.Multiple, 1e-9)

	angel := distributionFor(t, result, "debt-tx-angel")
	assert.InDelta(t, 200000, angel.FromDebtRepayment, 0.01)

	alice := distributionFor(t, result, "st-alice")
	assert.InDelta(t, 300000, alice.FromConvertedShares, 0.01)

	assertConservation(t, result)
	assert.NotEmpty(t, result.CalculationLog)
}

func TestWaterfallDebtExhaustsProceeds(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 1000000, 10000),
	})
	bankLoan := &models.DebtInstrumentTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-bank", Date: "2021-01-01", Type: models.TxDebtInstrument, Status: models.StatusActive,
		},
		LenderName: "House Bank", Amount: 500000, InterestRate: 0,
		Seniority: models.SenioritySeniorSecured,
	}
	txs := []models.Transaction{founding, bankLoan}

	capTable := e.CapTable(txs, "2022-01-01", "")
	result := e.Waterfall(capTable, txs, 300000, 0, EnglishLabels())

	require.Len(t, result.Distributions, 1)
	bank := result.Distributions[0]
	assert.InDelta(t, 300000, bank.TotalProceeds, 0.01)
	assert.InDelta(t, 0.6, bank.Multiple, 1e-9)
	assert.InDelta(t, 0, result.RemainingValue, 0.01)
	assertConservation(t, result)
}

func TestWaterfallConvertedLoanIsNotDebt(t *testing.T) {
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
	result := e.Waterfall(capTable, txs, 5000000, 0, EnglishLabels())

	for _, d := range result.Distributions {
		assert.NotEqual(t, "debt-tx-loan", d.StakeholderID, "converted loan must not be repaid as debt")
	}
	// The angel participates through the converted shares instead.
	angel := distributionFor(t, result, "st-angel")
	assert.Greater(t, angel.TotalProceeds, 0.0)
	assertConservation(t, result)
}

func TestWaterfallNonParticipatingConversionChoice(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-founders", "Founders", "sc-common", 800000, 80000),
	})
	round := &models.FinancingRoundTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-round", Date: "2021-01-01", Type: models.TxFinancingRound, Status: models.StatusActive,
		},
		RoundName:         "Series A",
		PreMoneyValuation: 8000000,
		NewShareClass: models.ShareClass{
			ID: "sc-a", Name: "Series A",
			LiquidationPreferenceRank: 1, LiquidationPreferenceFactor: 1,
			LiquidationPreferenceType: models.PrefNonParticipating,
			VotesPerShare:             1,
		},
		NewShareholdings: []models.Shareholding{
			{
				ID: "h-inv", StakeholderID: "st-investor", StakeholderName: "Investor",
				ShareClassID: "sc-a", Shares: 200000, Investment: 2000000, OriginalPricePerShare: 10,
			},
		},
	}
	txs := []models.Transaction{founding, round}
	capTable := e.CapTable(txs, "2022-01-01", "")

	t.Run("low exit takes the preference", func(t *testing.T) {
		result := e.Waterfall(capTable, txs, 3000000, 0, EnglishLabels())

		investor := distributionFor(t, result, "st-investor")
		assert.InDelta(t, 2000000, investor.FromLiquidationPreference, 0.01)
		assert.Zero(t, investor.FromConvertedShares)
		assert.InDelta(t, 1.0, investor.Multiple, 1e-6)

		founders := distributionFor(t, result, "st-founders")
		assert.InDelta(t, 1000000, founders.FromConvertedShares, 0.01)
		assertConservation(t, result)
	})

	t.Run("high exit converts to common", func(t *testing.T) {
		result := e.Waterfall(capTable, txs, 20000000, 0, EnglishLabels())

		investor := distributionFor(t, result, "st-investor")
		assert.Zero(t, investor.FromLiquidationPreference)
		assert.InDelta(t, 4000000, investor.FromConvertedShares, 0.01)

		founders := distributionFor(t, result, "st-founders")
		assert.InDelta(t, 16000000, founders.FromConvertedShares, 0.01)
		assertConservation(t, result)
	})

	t.Run("transaction costs reduce the distributable amount", func(t *testing.T) {
		result := e.Waterfall(capTable, txs, 3000000, 500000, EnglishLabels())
		assert.InDelta(t, 2500000, result.NetExitProceeds, 0.01)
		assertConservation(t, result)
	})
}

func TestWaterfallCappedParticipation(t *testing.T) {
	e := newTestEngine()

	founding := &models.FoundingTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-founding", Date: "2020-01-01", Type: models.TxFounding, Status: models.StatusActive,
		},
		CompanyName: "Acme GmbH",
		ShareClasses: []models.ShareClass{
			{ID: "sc-common", Name: "Common", VotesPerShare: 1, LiquidationPreferenceFactor: 1,
				LiquidationPreferenceType: models.PrefNonParticipating},
			{ID: "sc-pref", Name: "Preferred", LiquidationPreferenceRank: 1, LiquidationPreferenceFactor: 1,
				LiquidationPreferenceType: models.PrefCappedParticipating,
				ParticipationCapFactor:    floatPtr(2), VotesPerShare: 1},
		},
		Shareholdings: []models.Shareholding{
			holding("h-1", "st-common", "Founders", "sc-common", 900000, 9000),
			{ID: "h-2", StakeholderID: "st-pref", StakeholderName: "Fund",
				ShareClassID: "sc-pref", Shares: 100000, Investment: 1000000, OriginalPricePerShare: 10},
		},
	}
	txs := []models.Transaction{founding}
	capTable := e.CapTable(txs, "2021-01-01", "")

	t.Run("participation below the cap", func(t *testing.T) {
		result := e.Waterfall(capTable, txs, 10000000, 0, EnglishLabels())

		fund := distributionFor(t, result, "st-pref")
		assert.InDelta(t, 1000000, fund.FromLiquidationPreference, 0.01)
		assert.InDelta(t, 900000, fund.FromParticipation, 0.01)
		assert.InDelta(t, 1900000, fund.TotalProceeds, 0.01)

		common := distributionFor(t, result, "st-common")
		assert.InDelta(t, 8100000, common.TotalProceeds, 0.01)
		assertConservation(t, result)
	})

	t.Run("participation capped at the cap factor", func(t *testing.T) {
		result := e.Waterfall(capTable, txs, 30000000, 0, EnglishLabels())

		// Cap 2x on 1,000,000 invested: preference already paid 1,000,000,
		// so participation stops at another 1,000,000.
		fund := distributionFor(t, result, "st-pref")
		assert.InDelta(t, 2000000, fund.TotalProceeds, 0.01)
		assert.InDelta(t, 2.0, fund.Multiple, 1e-6)

		// The capped slice that the fund could not take stays undistributed.
		assert.Greater(t, result.RemainingValue, 0.0)
		assertConservation(t, result)
	})
}

func TestWaterfallOnlyVestedSharesParticipate(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 500000, 5000),
		func() models.Shareholding {
			h := holding("h-2", "st-bob", "Bob", "sc-common", 500000, 5000)
			h.VestingScheduleID = "vs-1"
			return h
		}(),
	})
	founding.VestingSchedules = []models.VestingSchedule{
		{ID: "vs-1", GrantDate: "2020-01-01", VestingPeriodMonths: 48, CliffMonths: 12},
	}
	txs := []models.Transaction{founding}

	// During the cliff Bob has no vested shares and gets nothing.
	capTable := e.CapTable(txs, "2020-06-01", "")
	result := e.Waterfall(capTable, txs, 1000000, 0, EnglishLabels())

	require.Len(t, result.Distributions, 1)
	assert.Equal(t, "st-alice", result.Distributions[0].StakeholderID)
	assert.InDelta(t, 1000000, result.Distributions[0].TotalProceeds, 0.01)
	assertConservation(t, result)
}

func TestWaterfallGermanCalculationLog(t *testing.T) {
	e := newTestEngine()
	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 1000, 0),
	})
	debt := &models.DebtInstrumentTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-debt", Date: "2020-06-01", Type: models.TxDebtInstrument, Status: models.StatusActive,
		},
		LenderName: "Bank", Amount: 1000, InterestRate: 0,
		Seniority: models.SenioritySeniorSecured,
	}
	txs := []models.Transaction{founding, debt}
	capTable := e.CapTable(txs, "2021-01-01", "")

	result := e.Waterfall(capTable, txs, 5000, 0, GermanLabels())

	bank := distributionFor(t, result, "debt-tx-debt")
	assert.Contains(t, bank.ShareClassName, "Darlehen")
	assert.Contains(t, bank.ShareClassName, "Besichert (Senior)")
}
