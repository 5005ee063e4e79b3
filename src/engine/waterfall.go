// backend/src/engine/waterfall.go
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/models"
)

type debtClaim struct {
	id           string
	date         string
	name         string
	amount       float64
	interestRate float64
	seniority    models.Seniority
	typeLabel    string
}

var seniorityOrder = map[models.Seniority]int{
	models.SenioritySeniorSecured:   1,
	models.SenioritySeniorUnsecured: 2,
	models.SenioritySubordinated:    3,
}

// Waterfall simulates the distribution of liquidation proceeds: debt claims
// in seniority order first, then liquidation preferences by rank, then
// pro-rata distribution to common, converted, and participating shares.
// Only vested shares participate on the equity side.
//
// allTransactions must be the unfiltered history: debt and loan terms are
// not part of the cap table snapshot and are recovered from it. The labels
// strategy only shapes the human-readable calculation log and claim names.
func (e *Engine) Waterfall(
	capTable *models.CapTable,
	allTransactions []models.Transaction,
	exitProceeds float64,
	transactionCosts float64,
	labels *Labels,
) *models.WaterfallResult {
	cur := labels.Currency
	var calculationLog []string
	var distributions []models.WaterfallDistribution

	calculationLog = append(calculationLog,
		fmt.Sprintf("Simulation started with Exit Proceeds: %s and Transaction Costs: %s.", cur(exitProceeds), cur(transactionCosts)))
	remainingProceeds := exitProceeds - transactionCosts
	calculationLog = append(calculationLog,
		fmt.Sprintf("-> Net Exit Proceeds available for distribution: %s.", cur(remainingProceeds)))

	calculationLog = append(calculationLog, "Step 1: Consolidating and sorting all debt claims.")

	// Loans already converted into equity are no longer debt.
	convertedLoanIDs := make(map[string]bool)
	for _, tx := range allTransactions {
		if round, ok := tx.(*models.FinancingRoundTransaction); ok {
			for _, id := range round.ConvertsLoanIDs {
				convertedLoanIDs[id] = true
			}
		}
	}

	var allDebtClaims []debtClaim
	for _, tx := range allTransactions {
		switch t := tx.(type) {
		case *models.DebtInstrumentTransaction:
			allDebtClaims = append(allDebtClaims, debtClaim{
				id: t.ID, date: t.Date, name: t.LenderName,
				amount: t.Amount, interestRate: t.InterestRate,
				seniority: t.Seniority, typeLabel: labels.DebtInstrument,
			})
		case *models.ConvertibleLoanTransaction:
			if convertedLoanIDs[t.ID] {
				continue
			}
			seniority := t.Seniority
			if seniority == "" {
				seniority = models.SenioritySubordinated
			}
			allDebtClaims = append(allDebtClaims, debtClaim{
				id: t.ID, date: t.Date, name: t.InvestorName,
				amount: t.Amount, interestRate: t.InterestRate,
				seniority: seniority, typeLabel: labels.ConvertibleLoan,
			})
		}
	}

	sort.SliceStable(allDebtClaims, func(i, j int) bool {
		return claimRank(allDebtClaims[i].seniority) < claimRank(allDebtClaims[j].seniority)
	})

	if len(allDebtClaims) > 0 {
		calculationLog = append(calculationLog, "Step 2: Paying off debt claims in order of seniority.")
	}

	for _, claim := range allDebtClaims {
		if remainingProceeds <= 0 {
			break
		}

		interest := AccruedInterest(claim.amount, claim.interestRate, claim.date, capTable.AsOfDate)
		totalOwed := claim.amount + interest
		payoutAmount := math.Min(totalOwed, remainingProceeds)

		seniorityLabel := labels.Seniority(claim.seniority)
		multiple := 0.0
		if claim.amount > 0 {
			multiple = payoutAmount / claim.amount
		}

		distributions = append(distributions, models.WaterfallDistribution{
			StakeholderID:     "debt-" + claim.id,
			StakeholderName:   claim.name,
			ShareClassID:      "debt",
			ShareClassName:    fmt.Sprintf("%s (%s)", claim.typeLabel, seniorityLabel),
			InitialInvestment: claim.amount,
			FromDebtRepayment: payoutAmount,
			TotalProceeds:     payoutAmount,
			Multiple:          multiple,
		})

		remainingProceeds -= payoutAmount
		calculationLog = append(calculationLog,
			fmt.Sprintf("   - Paying %s (%s, %s): Owed %s. Paid %s. Remaining: %s.",
				claim.name, claim.typeLabel, seniorityLabel, cur(totalOwed), cur(payoutAmount), cur(remainingProceeds)))
	}

	if remainingProceeds <= 0 {
		calculationLog = append(calculationLog, "Proceeds exhausted after debt repayment.")
		sortDistributions(distributions)
		return &models.WaterfallResult{
			NetExitProceeds: exitProceeds - transactionCosts,
			Distributions:   distributions,
			RemainingValue:  remainingProceeds,
			CalculationLog:  calculationLog,
		}
	}

	shareClasses := ShareClassesAsOf(allTransactions, capTable.AsOfDate)

	type enhancedEntry struct {
		models.CapTableEntry
		shareClass   *models.ShareClass
		payout       models.WaterfallDistribution
		hasConverted bool
	}

	var allEntries []*enhancedEntry
	for _, entry := range capTable.Entries {
		if entry.VestedShares <= 0 {
			continue
		}
		sc, ok := shareClasses[entry.ShareClassID]
		if !ok {
			logger.L.Warn("Cap table entry references unknown share class, excluded from waterfall",
				"shareClassID", entry.ShareClassID, "stakeholderID", entry.StakeholderID)
			continue
		}
		allEntries = append(allEntries, &enhancedEntry{
			CapTableEntry: entry,
			shareClass:    sc,
			payout: models.WaterfallDistribution{
				StakeholderID:     entry.StakeholderID,
				StakeholderName:   entry.StakeholderName,
				ShareClassID:      entry.ShareClassID,
				ShareClassName:    entry.ShareClassName,
				InitialInvestment: entry.InitialInvestment,
			},
		})
	}

	var preferredEntries []*enhancedEntry
	for _, entry := range allEntries {
		if entry.shareClass.LiquidationPreferenceRank > 0 {
			preferredEntries = append(preferredEntries, entry)
		}
	}
	sort.SliceStable(preferredEntries, func(i, j int) bool {
		return preferredEntries[i].shareClass.LiquidationPreferenceRank < preferredEntries[j].shareClass.LiquidationPreferenceRank
	})

	calculationLog = append(calculationLog, "Step 3: Evaluating preferred shares conversion (Non-Participating).")
	valuePerCommonShareIfAllConverted := 0.0
	if capTable.TotalVestedShares > 0 {
		valuePerCommonShareIfAllConverted = remainingProceeds / float64(capTable.TotalVestedShares)
	}
	calculationLog = append(calculationLog,
		fmt.Sprintf("   - As-converted value per share: %s.", cur(valuePerCommonShareIfAllConverted)))

	for _, entry := range preferredEntries {
		if entry.shareClass.LiquidationPreferenceType != models.PrefNonParticipating {
			continue
		}
		preferenceAmount := entry.InitialInvestment * entry.shareClass.LiquidationPreferenceFactor
		conversionValue := float64(entry.VestedShares) * valuePerCommonShareIfAllConverted
		if conversionValue > preferenceAmount {
			entry.hasConverted = true
			calculationLog = append(calculationLog,
				fmt.Sprintf("   - %s (%s): Converts. As-converted value (%s) > Preference (%s).",
					entry.StakeholderName, entry.ShareClassName, cur(conversionValue), cur(preferenceAmount)))
		} else {
			calculationLog = append(calculationLog,
				fmt.Sprintf("   - %s (%s): Takes preference. Preference (%s) >= As-converted value (%s).",
					entry.StakeholderName, entry.ShareClassName, cur(preferenceAmount), cur(conversionValue)))
		}
	}

	calculationLog = append(calculationLog, "Step 4: Paying out liquidation preferences.")
	for _, entry := range preferredEntries {
		if remainingProceeds <= 0 {
			break
		}
		if entry.hasConverted {
			continue
		}
		preferenceAmount := entry.InitialInvestment * entry.shareClass.LiquidationPreferenceFactor
		payoutAmount := math.Min(preferenceAmount, remainingProceeds)
		entry.payout.FromLiquidationPreference = payoutAmount
		remainingProceeds -= payoutAmount
		calculationLog = append(calculationLog,
			fmt.Sprintf("   - Paying %s (%s) preference: %s. Remaining proceeds: %s.",
				entry.StakeholderName, entry.ShareClassName, cur(payoutAmount), cur(remainingProceeds)))
	}

	calculationLog = append(calculationLog,
		fmt.Sprintf("Step 5: Distributing remaining proceeds (%s) to common and participating shares.", cur(remainingProceeds)))
	if remainingProceeds > 0.01 {
		var finalDistributionShares int64
		for _, entry := range allEntries {
			if entry.shareClass.LiquidationPreferenceRank == 0 ||
				entry.hasConverted ||
				entry.shareClass.LiquidationPreferenceType == models.PrefFullParticipating ||
				entry.shareClass.LiquidationPreferenceType == models.PrefCappedParticipating {
				finalDistributionShares += entry.VestedShares
			}
		}

		if finalDistributionShares > 0 {
			valuePerFinalShare := remainingProceeds / float64(finalDistributionShares)
			calculationLog = append(calculationLog,
				fmt.Sprintf("   - Total participating/common shares: %s. Final value per share: %s.",
					labels.Integer(finalDistributionShares), cur(valuePerFinalShare)))

			for _, entry := range allEntries {
				var logMsg string
				isCommonOrConverted := entry.shareClass.LiquidationPreferenceRank == 0 || entry.hasConverted
				isFullParticipating := entry.shareClass.LiquidationPreferenceType == models.PrefFullParticipating && !entry.hasConverted
				isCappedParticipating := entry.shareClass.LiquidationPreferenceType == models.PrefCappedParticipating && !entry.hasConverted

				switch {
				case isCommonOrConverted:
					payout := float64(entry.VestedShares) * valuePerFinalShare
					entry.payout.FromConvertedShares += payout
					remainingProceeds -= payout
					logMsg = fmt.Sprintf("gets %s from common/converted shares.", cur(payout))

				case isFullParticipating:
					payout := float64(entry.VestedShares) * valuePerFinalShare
					entry.payout.FromParticipation += payout
					remainingProceeds -= payout
					logMsg = fmt.Sprintf("gets %s from full participation.", cur(payout))

				case isCappedParticipating:
					capFactor := 1.0
					if entry.shareClass.ParticipationCapFactor != nil && *entry.shareClass.ParticipationCapFactor != 0 {
						capFactor = *entry.shareClass.ParticipationCapFactor
					}
					cap := entry.InitialInvestment * capFactor
					alreadyPaid := entry.payout.FromLiquidationPreference
					potentialPayout := float64(entry.VestedShares) * valuePerFinalShare
					allowedPayout := math.Max(0, cap-alreadyPaid)
					participationPayout := math.Min(potentialPayout, allowedPayout)
					entry.payout.FromParticipation += participationPayout
					remainingProceeds -= participationPayout
					logMsg = fmt.Sprintf("gets %s from capped participation (Cap: %s, Already paid: %s).",
						cur(participationPayout), cur(cap), cur(alreadyPaid))
				}

				if logMsg != "" {
					calculationLog = append(calculationLog,
						fmt.Sprintf("   - %s (%s) %s", entry.StakeholderName, entry.ShareClassName, logMsg))
				}
			}
		} else {
			calculationLog = append(calculationLog,
				fmt.Sprintf("   - No shares eligible for final distribution. Remaining proceeds: %s.", cur(remainingProceeds)))
		}
	}

	for _, entry := range allEntries {
		p := &entry.payout
		p.TotalProceeds = p.FromDebtRepayment + p.FromLiquidationPreference + p.FromParticipation + p.FromConvertedShares
		if p.InitialInvestment > 0 {
			p.Multiple = p.TotalProceeds / p.InitialInvestment
		}
		if p.TotalProceeds > 0.01 {
			distributions = append(distributions, *p)
		}
	}
	sortDistributions(distributions)

	calculationLog = append(calculationLog, "Step 6: Finalizing distributions.")
	return &models.WaterfallResult{
		NetExitProceeds: exitProceeds - transactionCosts,
		Distributions:   distributions,
		RemainingValue:  remainingProceeds,
		CalculationLog:  calculationLog,
	}
}

func claimRank(s models.Seniority) int {
	if rank, ok := seniorityOrder[s]; ok {
		return rank
	}
	return seniorityOrder[models.SenioritySubordinated]
}

func sortDistributions(distributions []models.WaterfallDistribution) {
	sort.SliceStable(distributions, func(i, j int) bool {
		return distributions[i].TotalProceeds > distributions[j].TotalProceeds
	})
}
