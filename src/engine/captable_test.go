package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/capsim/backend/src/models"
)

func TestCapTableFoundingAndVesting(t *testing.T) {
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
		{ID: "vs-1", Name: "Founder", GrantDate: "2020-01-01", VestingPeriodMonths: 48, CliffMonths: 12},
	}
	txs := []models.Transaction{founding}

	t.Run("before cliff only unscheduled shares are vested", func(t *testing.T) {
		ct := e.CapTable(txs, "2020-06-01", "")
		assert.Equal(t, int64(1000000), ct.TotalShares)
		assert.Equal(t, int64(600000), ct.TotalVestedShares)

		alice := entryFor(t, ct, "st-alice", "sc-common")
		assert.Equal(t, int64(600000), alice.Shares)
		assert.Equal(t, int64(600000), alice.VestedShares)
		assert.InDelta(t, 60.0, alice.Percentage, 1e-9)
		assert.Equal(t, "Common", alice.ShareClassName)

		bob := entryFor(t, ct, "st-bob", "sc-common")
		assert.Equal(t, int64(400000), bob.Shares)
		assert.Zero(t, bob.VestedShares)
		assert.InDelta(t, 40.0, bob.Percentage, 1e-9)
	})

	t.Run("fully vested after the period", func(t *testing.T) {
		ct := e.CapTable(txs, "2024-02-01", "")
		assert.Equal(t, int64(1000000), ct.TotalVestedShares)
		bob := entryFor(t, ct, "st-bob", "sc-common")
		assert.Equal(t, bob.Shares, bob.VestedShares)
	})

	t.Run("entries sorted by share count descending", func(t *testing.T) {
		ct := e.CapTable(txs, "2020-06-01", "")
		require.Len(t, ct.Entries, 2)
		assert.Equal(t, "st-alice", ct.Entries[0].StakeholderID)
		assert.Equal(t, "st-bob", ct.Entries[1].StakeholderID)
	})

	t.Run("percentages sum to one hundred", func(t *testing.T) {
		ct := e.CapTable(txs, "2021-06-01", "")
		var sum float64
		for _, entry := range ct.Entries {
			sum += entry.Percentage
		}
		assert.InDelta(t, 100.0, sum, 1e-9)
	})

	t.Run("before the founding date the table is empty", func(t *testing.T) {
		ct := e.CapTable(txs, "2019-01-01", "")
		assert.Zero(t, ct.TotalShares)
		assert.Empty(t, ct.Entries)
	})
}

func TestCapTableStatusAndExclusion(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 1000, 0),
	})
	draft := simpleFounding("2020-02-01", []models.Shareholding{
		holding("h-2", "st-bob", "Bob", "sc-common", 500, 0),
	})
	draft.ID = "tx-draft"
	draft.Status = models.StatusDraft

	archived := simpleFounding("2020-03-01", []models.Shareholding{
		holding("h-3", "st-carol", "Carol", "sc-common", 250, 0),
	})
	archived.ID = "tx-archived"
	archived.Status = models.StatusArchived

	txs := []models.Transaction{founding, draft, archived}

	ct := e.CapTable(txs, "2021-01-01", "")
	assert.Equal(t, int64(1000), ct.TotalShares)

	excluded := e.CapTable(txs, "2021-01-01", "tx-founding")
	assert.Zero(t, excluded.TotalShares)
}

func TestCapTableLoanConversionCapAndDiscount(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 1000000, 10000),
	})
	loan := &models.ConvertibleLoanTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-loan", Date: "2021-01-01", Type: models.TxConvertibleLoan, Status: models.StatusActive,
		},
		InvestorName:        "Angel",
		StakeholderID:       "st-angel",
		Amount:              200000,
		InterestRate:        0,
		ConversionMechanism: models.MechanismCapAndDiscount,
		ValuationCap:        floatPtr(4000000),
		Discount:            0.2,
		Seniority:           models.SenioritySubordinated,
	}
	round := &models.FinancingRoundTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-round", Date: "2022-01-01", Type: models.TxFinancingRound, Status: models.StatusActive,
		},
		RoundName:         "Series A",
		PreMoneyValuation: 10000000,
		NewShareClass: models.ShareClass{
			ID: "sc-series-a", Name: "Series A",
			LiquidationPreferenceRank: 1, LiquidationPreferenceFactor: 1,
			LiquidationPreferenceType: models.PrefNonParticipating,
			AntiDilutionProtection:    models.AntiDilutionBroadBased,
			VotesPerShare:             1,
		},
		NewShareholdings: []models.Shareholding{
			{
				ID: "h-carol", StakeholderID: "st-carol", StakeholderName: "Carol",
				ShareClassID: "sc-series-a", Shares: 200000, Investment: 2000000,
				OriginalPricePerShare: 10,
			},
		},
		ConvertsLoanIDs: []string{"tx-loan"},
	}
	txs := []models.Transaction{founding, loan, round}

	ct := e.CapTable(txs, "2022-06-01", "")

	// Round price 10; cap price 4,000,000 / 1,000,000 = 4 beats the 20%
	// discount price of 8, so 200,000 converts into 50,000 shares.
	angel := entryFor(t, ct, "st-angel", "sc-series-a")
	assert.Equal(t, int64(50000), angel.Shares)
	assert.Equal(t, "Series A", angel.ShareClassName)
	assert.InDelta(t, 200000, angel.InitialInvestment, 1e-9)

	carol := entryFor(t, ct, "st-carol", "sc-series-a")
	assert.Equal(t, int64(200000), carol.Shares)

	assert.Equal(t, int64(1250000), ct.TotalShares)

	// Before the round the loan has no equity effect.
	before := e.CapTable(txs, "2021-06-01", "")
	assert.Equal(t, int64(1000000), before.TotalShares)
}

func TestCapTableLoanConversionMechanisms(t *testing.T) {
	buildTxs := func(loan *models.ConvertibleLoanTransaction) []models.Transaction {
		founding := simpleFounding("2020-01-01", []models.Shareholding{
			holding("h-1", "st-alice", "Alice", "sc-common", 1000000, 10000),
		})
		round := &models.FinancingRoundTransaction{
			TransactionBase: models.TransactionBase{
				ID: "tx-round", Date: "2022-01-01", Type: models.TxFinancingRound, Status: models.StatusActive,
			},
			RoundName:         "Series A",
			PreMoneyValuation: 10000000,
			NewShareClass: models.ShareClass{
				ID: "sc-series-a", Name: "Series A",
				LiquidationPreferenceRank: 1, LiquidationPreferenceFactor: 1,
				LiquidationPreferenceType: models.PrefNonParticipating,
				VotesPerShare:             1,
			},
			ConvertsLoanIDs: []string{loan.ID},
		}
		return []models.Transaction{founding, loan, round}
	}
	baseLoan := func() *models.ConvertibleLoanTransaction {
		return &models.ConvertibleLoanTransaction{
			TransactionBase: models.TransactionBase{
				ID: "tx-loan", Date: "2022-01-01", Type: models.TxConvertibleLoan, Status: models.StatusActive,
			},
			InvestorName: "Angel", StakeholderID: "st-angel",
			Amount: 200000, InterestRate: 0,
		}
	}

	t.Run("fixed price", func(t *testing.T) {
		loan := baseLoan()
		loan.ConversionMechanism = models.MechanismFixedPrice
		loan.FixedConversionPrice = 5
		ct := newTestEngine().CapTable(buildTxs(loan), "2022-06-01", "")
		assert.Equal(t, int64(40000), entryFor(t, ct, "st-angel", "sc-series-a").Shares)
	})

	t.Run("fixed ratio implies a price", func(t *testing.T) {
		loan := baseLoan()
		loan.ConversionMechanism = models.MechanismFixedRatio
		loan.RatioAmount = 1000
		loan.RatioShares = 100
		ct := newTestEngine().CapTable(buildTxs(loan), "2022-06-01", "")
		assert.Equal(t, int64(20000), entryFor(t, ct, "st-angel", "sc-series-a").Shares)
	})

	t.Run("unknown mechanism falls back to cap and discount", func(t *testing.T) {
		loan := baseLoan()
		loan.ConversionMechanism = "LEGACY"
		loan.Discount = 0.5 // round price 10 -> conversion price 5
		ct := newTestEngine().CapTable(buildTxs(loan), "2022-06-01", "")
		assert.Equal(t, int64(40000), entryFor(t, ct, "st-angel", "sc-series-a").Shares)
	})

	t.Run("no determinable price yields a zero-share holding", func(t *testing.T) {
		loan := baseLoan()
		loan.ConversionMechanism = models.MechanismFixedPrice // price left at 0
		ct := newTestEngine().CapTable(buildTxs(loan), "2022-06-01", "")
		angel := entryFor(t, ct, "st-angel", "sc-series-a")
		assert.Zero(t, angel.Shares)
		assert.InDelta(t, 200000, angel.InitialInvestment, 1e-9)
	})
}

func TestCapTableFullRatchet(t *testing.T) {
	e := newTestEngine()

	founding := &models.FoundingTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-founding", Date: "2020-01-01", Type: models.TxFounding, Status: models.StatusActive,
		},
		CompanyName: "Acme GmbH",
		ShareClasses: []models.ShareClass{
			{ID: "sc-common", Name: "Common", VotesPerShare: 1, LiquidationPreferenceFactor: 1,
				LiquidationPreferenceType: models.PrefNonParticipating, AntiDilutionProtection: models.AntiDilutionNone},
			{ID: "sc-seed", Name: "Seed", LiquidationPreferenceRank: 1, LiquidationPreferenceFactor: 1,
				LiquidationPreferenceType: models.PrefNonParticipating,
				AntiDilutionProtection:    models.AntiDilutionFullRatchet, VotesPerShare: 1},
		},
		Shareholdings: []models.Shareholding{
			holding("h-1", "st-founder", "Founder", "sc-common", 900000, 9000),
			{
				ID: "h-2", StakeholderID: "st-seed", StakeholderName: "Seed Fund",
				ShareClassID: "sc-seed", Shares: 100000, Investment: 1000000,
				OriginalPricePerShare: 10,
			},
		},
	}
	downRound := &models.FinancingRoundTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-down", Date: "2021-01-01", Type: models.TxFinancingRound, Status: models.StatusActive,
		},
		RoundName:         "Down Round",
		PreMoneyValuation: 5000000, // price 5, below the seed price of 10
		NewShareClass: models.ShareClass{
			ID: "sc-a", Name: "Series A", LiquidationPreferenceRank: 2, LiquidationPreferenceFactor: 1,
			LiquidationPreferenceType: models.PrefNonParticipating, VotesPerShare: 1,
		},
	}
	txs := []models.Transaction{founding, downRound}

	ct := e.CapTable(txs, "2021-06-01", "")

	// Ratchet repricing: 1,000,000 invested at the new 5.00 price.
	seed := entryFor(t, ct, "st-seed", "sc-seed")
	assert.Equal(t, int64(200000), seed.Shares)

	// Common has no original price recorded, so it is untouched.
	assert.Equal(t, int64(900000), entryFor(t, ct, "st-founder", "sc-common").Shares)

	// An up round leaves the ratchet dormant.
	upRound := &models.FinancingRoundTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-up", Date: "2021-01-01", Type: models.TxFinancingRound, Status: models.StatusActive,
		},
		PreMoneyValuation: 20000000,
		NewShareClass:     models.ShareClass{ID: "sc-a", Name: "Series A", VotesPerShare: 1, LiquidationPreferenceFactor: 1},
	}
	ct = e.CapTable([]models.Transaction{founding, upRound}, "2021-06-01", "")
	assert.Equal(t, int64(100000), entryFor(t, ct, "st-seed", "sc-seed").Shares)
}

func TestCapTableShareTransfer(t *testing.T) {
	e := newTestEngine()

	founding := simpleFounding("2020-01-01", []models.Shareholding{
		holding("h-1", "st-alice", "Alice", "sc-common", 600000, 6000),
		holding("h-2", "st-bob", "Bob", "sc-common", 400000, 4000),
	})
	transfer := &models.ShareTransferTransaction{
		TransactionBase: models.TransactionBase{
			ID: "tx-transfer", Date: "2021-01-01", Type: models.TxShareTransfer, Status: models.StatusActive,
		},
		SellerStakeholderID: "st-alice",
		BuyerStakeholderID:  "st-bob",
		ShareClassID:        "sc-common",
		NumberOfShares:      100000,
		PricePerShare:       2,
	}
	txs := []models.Transaction{founding, transfer}

	t.Run("debits seller and credits existing buyer holding", func(t *testing.T) {
		ct := e.CapTable(txs, "2021-06-01", "")
		assert.Equal(t, int64(500000), entryFor(t, ct, "st-alice", "sc-common").Shares)
		assert.Equal(t, int64(500000), entryFor(t, ct, "st-bob", "sc-common").Shares)
		assert.Equal(t, int64(1000000), ct.TotalShares)
	})

	t.Run("transfer to a new stakeholder creates a holding", func(t *testing.T) {
		toCarol := &models.ShareTransferTransaction{
			TransactionBase: models.TransactionBase{
				ID: "tx-carol", Date: "2021-02-01", Type: models.TxShareTransfer, Status: models.StatusActive,
			},
			SellerStakeholderID:  "st-alice",
			BuyerStakeholderID:   "st-carol",
			BuyerStakeholderName: "Carol",
			ShareClassID:         "sc-common",
			NumberOfShares:       50000,
			PricePerShare:        2,
		}
		ct := e.CapTable([]models.Transaction{founding, toCarol}, "2021-06-01", "")
		carol := entryFor(t, ct, "st-carol", "sc-common")
		assert.Equal(t, int64(50000), carol.Shares)
		assert.Equal(t, "Carol", carol.StakeholderName)
		assert.InDelta(t, 100000, carol.InitialInvestment, 1e-9)
		assert.Equal(t, int64(1000000), ct.TotalShares)
	})

	t.Run("opposite transfers of equal size cancel out", func(t *testing.T) {
		back := &models.ShareTransferTransaction{
			TransactionBase: models.TransactionBase{
				ID: "tx-back", Date: "2021-03-01", Type: models.TxShareTransfer, Status: models.StatusActive,
			},
			SellerStakeholderID: "st-bob",
			BuyerStakeholderID:  "st-alice",
			ShareClassID:        "sc-common",
			NumberOfShares:      100000,
			PricePerShare:       2,
		}
		ct := e.CapTable([]models.Transaction{founding, transfer, back}, "2021-06-01", "")
		assert.Equal(t, int64(600000), entryFor(t, ct, "st-alice", "sc-common").Shares)
		assert.Equal(t, int64(400000), entryFor(t, ct, "st-bob", "sc-common").Shares)
		assert.Equal(t, int64(1000000), ct.TotalShares)
	})

	t.Run("seller without holdings skips the transfer", func(t *testing.T) {
		bogus := &models.ShareTransferTransaction{
			TransactionBase: models.TransactionBase{
				ID: "tx-bogus", Date: "2021-02-01", Type: models.TxShareTransfer, Status: models.StatusActive,
			},
			SellerStakeholderID: "st-nobody",
			BuyerStakeholderID:  "st-bob",
			ShareClassID:        "sc-common",
			NumberOfShares:      1000,
		}
		ct := e.CapTable([]models.Transaction{founding, bogus}, "2021-06-01", "")
		assert.Equal(t, int64(600000), entryFor(t, ct, "st-alice", "sc-common").Shares)
		assert.Equal(t, int64(400000), entryFor(t, ct, "st-bob", "sc-common").Shares)
	})

	t.Run("source transactions are never mutated by replay", func(t *testing.T) {
		_ = e.CapTable(txs, "2021-06-01", "")
		_ = e.CapTable(txs, "2021-06-01", "")
		assert.Equal(t, int64(600000), founding.Shareholdings[0].Shares)
		assert.Equal(t, int64(400000), founding.Shareholdings[1].Shares)
	})
}
