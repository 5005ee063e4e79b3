// backend/src/engine/captable.go
package engine

import (
	"math"
	"sort"

	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/models"
)

// CapTable replays the transaction log up to asOfDate into the ownership
// structure at that date. excludeTransactionID, when non-empty, leaves one
// transaction out of the replay; callers use this to compute a "before this
// round" snapshot for pricing previews.
//
// The replay works on a scratch arena of cloned shareholdings, so the
// caller's transactions come back untouched no matter how many ratchets or
// transfers mutate share counts along the way.
func (e *Engine) CapTable(transactions []models.Transaction, asOfDate string, excludeTransactionID string) *models.CapTable {
	allShareClasses := ShareClassesAsOf(transactions, asOfDate)

	// Vesting schedule definitions are not point-in-time dependent; collect
	// them from every founding transaction regardless of date filters.
	vestingSchedules := make(map[string]models.VestingSchedule)
	for _, tx := range transactions {
		if founding, ok := tx.(*models.FoundingTransaction); ok {
			for _, vs := range founding.VestingSchedules {
				vestingSchedules[vs.ID] = vs
			}
		}
	}

	relevant := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		base := tx.Base()
		if base.Status == models.StatusDraft || base.Status == models.StatusArchived {
			continue
		}
		if base.Date <= asOfDate && base.ID != excludeTransactionID {
			relevant = append(relevant, tx)
		}
	}
	models.SortTransactionsByDate(relevant)

	var arena []*models.Shareholding
	appendHolding := func(sh models.Shareholding) {
		cp := sh
		arena = append(arena, &cp)
	}
	totalArenaShares := func() int64 {
		var sum int64
		for _, sh := range arena {
			sum += sh.Shares
		}
		return sum
	}

	for _, tx := range relevant {
		switch t := tx.(type) {
		case *models.FoundingTransaction:
			for _, sh := range t.Shareholdings {
				appendHolding(sh)
			}

		case *models.FinancingRoundTransaction:
			// 1. Anti-dilution adjustment against the new round price.
			preRoundShares := totalArenaShares()
			if preRoundShares > 0 {
				newPricePerShare := t.PreMoneyValuation / float64(preRoundShares)
				for _, sh := range arena {
					sc, ok := allShareClasses[sh.ShareClassID]
					if !ok || sh.OriginalPricePerShare <= 0 || newPricePerShare >= sh.OriginalPricePerShare {
						continue
					}
					switch sc.AntiDilutionProtection {
					case models.AntiDilutionFullRatchet:
						originalInvestment := float64(sh.Shares) * sh.OriginalPricePerShare
						sh.Shares = int64(math.Round(originalInvestment / newPricePerShare))
					case models.AntiDilutionBroadBased, models.AntiDilutionNarrowBased:
						// Recognized in the data model but without a
						// computational effect; surface the gap.
						logger.L.Debug("Weighted-average anti-dilution not applied",
							"mode", sc.AntiDilutionProtection, "shareholdingID", sh.ID, "roundID", t.ID)
					}
				}
			}

			// 2. Convertible loan conversion at the post-ratchet round price.
			if len(t.ConvertsLoanIDs) > 0 {
				converts := make(map[string]bool, len(t.ConvertsLoanIDs))
				for _, id := range t.ConvertsLoanIDs {
					converts[id] = true
				}

				// Loan terms are recovered from the unfiltered list so a
				// round can convert loans regardless of their status or the
				// current date window.
				var loansToConvert []*models.ConvertibleLoanTransaction
				for _, candidate := range transactions {
					if loan, ok := candidate.(*models.ConvertibleLoanTransaction); ok && converts[loan.ID] {
						loansToConvert = append(loansToConvert, loan)
					}
				}

				preMoneyShares := totalArenaShares()
				if preMoneyShares > 0 {
					pricePerShareInRound := t.PreMoneyValuation / float64(preMoneyShares)
					if pricePerShareInRound > 0 {
						for _, loan := range loansToConvert {
							appendHolding(e.convertLoanToShares(loan, t, preMoneyShares, pricePerShareInRound))
						}
					}
				}
			}

			// 3. New investors of the round.
			for _, sh := range t.NewShareholdings {
				appendHolding(sh)
			}

		case *models.ShareTransferTransaction:
			e.applyShareTransfer(&arena, t)

		case *models.ConvertibleLoanTransaction, *models.DebtInstrumentTransaction, *models.UpdateShareClassTransaction:
			// No direct effect on shareholdings. Loans convert during
			// financing rounds, debt is settled in the waterfall, and class
			// amendments are applied by the share-class resolver.
		}
	}

	totalShares := totalArenaShares()
	entries := groupShareholdings(arena, totalShares, allShareClasses)

	var totalVestedShares int64
	for i := range entries {
		entry := &entries[i]
		var vested int64
		for _, sh := range arena {
			if sh.StakeholderID != entry.StakeholderID || sh.ShareClassID != entry.ShareClassID {
				continue
			}
			if sh.VestingScheduleID == "" {
				vested += sh.Shares // no schedule, fully vested
				continue
			}
			if schedule, ok := vestingSchedules[sh.VestingScheduleID]; ok {
				vested += VestedShares(sh.Shares, schedule, asOfDate)
			} else {
				vested += sh.Shares
			}
		}
		entry.VestedShares = vested
		totalVestedShares += vested
	}

	return &models.CapTable{
		AsOfDate:          asOfDate,
		TotalShares:       totalShares,
		TotalVestedShares: totalVestedShares,
		Entries:           entries,
	}
}

// applyShareTransfer debits the seller's tranches in list order and credits
// the buyer. A seller with no matching holdings skips the transfer with a
// diagnostic; the replay continues.
func (e *Engine) applyShareTransfer(arena *[]*models.Shareholding, t *models.ShareTransferTransaction) {
	var sellerHoldings []*models.Shareholding
	for _, sh := range *arena {
		if sh.StakeholderID == t.SellerStakeholderID && sh.ShareClassID == t.ShareClassID {
			sellerHoldings = append(sellerHoldings, sh)
		}
	}

	if len(sellerHoldings) == 0 {
		logger.L.Warn("Share transfer seller has no holdings of the transferred class, skipping",
			"transactionID", t.ID, "sellerStakeholderID", t.SellerStakeholderID, "shareClassID", t.ShareClassID)
		return
	}

	sharesToTransfer := t.NumberOfShares
	for _, holding := range sellerHoldings {
		if sharesToTransfer <= 0 {
			break
		}
		deduction := holding.Shares
		if sharesToTransfer < deduction {
			deduction = sharesToTransfer
		}
		holding.Shares -= deduction
		sharesToTransfer -= deduction
	}

	for _, sh := range *arena {
		if sh.StakeholderID == t.BuyerStakeholderID && sh.ShareClassID == t.ShareClassID {
			sh.Shares += t.NumberOfShares
			return
		}
	}

	cp := models.Shareholding{
		ID:                    e.newID(),
		StakeholderID:         t.BuyerStakeholderID,
		StakeholderName:       t.BuyerStakeholderName,
		ShareClassID:          t.ShareClassID,
		Shares:                t.NumberOfShares,
		Investment:            float64(t.NumberOfShares) * t.PricePerShare,
		OriginalPricePerShare: t.PricePerShare,
	}
	*arena = append(*arena, &cp)
}

// groupShareholdings folds the arena into per-(stakeholder, class) entries
// with percentage annotations, sorted by share count descending.
func groupShareholdings(arena []*models.Shareholding, totalShares int64, shareClasses map[string]*models.ShareClass) []models.CapTableEntry {
	type groupKey struct {
		stakeholderID string
		shareClassID  string
	}

	index := make(map[groupKey]int)
	var entries []models.CapTableEntry

	for _, sh := range arena {
		key := groupKey{sh.StakeholderID, sh.ShareClassID}
		i, ok := index[key]
		if !ok {
			className := "Unknown Class"
			if sc, found := shareClasses[sh.ShareClassID]; found {
				className = sc.Name
			}
			entries = append(entries, models.CapTableEntry{
				StakeholderID:   sh.StakeholderID,
				StakeholderName: sh.StakeholderName,
				ShareClassID:    sh.ShareClassID,
				ShareClassName:  className,
			})
			i = len(entries) - 1
			index[key] = i
		}
		entries[i].Shares += sh.Shares
		entries[i].InitialInvestment += sh.Investment
	}

	if totalShares > 0 {
		for i := range entries {
			entries[i].Percentage = float64(entries[i].Shares) / float64(totalShares) * 100
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Shares > entries[j].Shares
	})

	return entries
}
