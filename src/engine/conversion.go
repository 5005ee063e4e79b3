// backend/src/engine/conversion.go
package engine

import (
	"math"

	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/models"
)

// convertLoanToShares converts a single convertible loan into a shareholding
// in the round's new share class. preMoneyShares is the total share count
// immediately before the round (post-ratchet), roundPricePerShare the price
// paid by the round's new investors.
//
// When no finite positive conversion price can be determined the conversion
// degrades to a zero-share holding that retains the investment amount, so
// the money stays visible in capitalization views without distorting equity
// percentages.
func (e *Engine) convertLoanToShares(
	loan *models.ConvertibleLoanTransaction,
	round *models.FinancingRoundTransaction,
	preMoneyShares int64,
	roundPricePerShare float64,
) models.Shareholding {
	interest := AccruedInterest(loan.Amount, loan.InterestRate, loan.Date, round.Date)
	totalOwed := loan.Amount + interest

	conversionPrice := math.Inf(1)

	capAndDiscountPrice := func() float64 {
		capPrice := math.Inf(1)
		if loan.ValuationCap != nil && *loan.ValuationCap != 0 && preMoneyShares > 0 {
			capPrice = *loan.ValuationCap / float64(preMoneyShares)
		}
		discountPrice := roundPricePerShare * (1 - loan.Discount)
		return math.Min(capPrice, discountPrice)
	}

	switch loan.ConversionMechanism {
	case models.MechanismCapAndDiscount:
		conversionPrice = capAndDiscountPrice()

	case models.MechanismFixedPrice:
		if loan.FixedConversionPrice > 0 {
			conversionPrice = loan.FixedConversionPrice
		}

	case models.MechanismFixedRatio:
		if loan.RatioAmount > 0 && loan.RatioShares > 0 {
			// Implicit price from the agreed shares-per-amount ratio.
			conversionPrice = loan.RatioAmount / loan.RatioShares
		}

	default:
		// Older data may lack the mechanism field entirely.
		logger.L.Warn("Unknown or missing conversion mechanism, falling back to cap and discount",
			"loanID", loan.ID, "mechanism", loan.ConversionMechanism)
		conversionPrice = capAndDiscountPrice()
	}

	if math.IsInf(conversionPrice, 1) || conversionPrice <= 0 {
		logger.L.Error("Could not determine a valid conversion price for loan, conversion yields zero shares",
			"loanID", loan.ID, "mechanism", loan.ConversionMechanism)
		return models.Shareholding{
			ID:                    e.newID(),
			StakeholderID:         loan.StakeholderID,
			StakeholderName:       loan.InvestorName,
			ShareClassID:          round.NewShareClass.ID,
			Shares:                0,
			Investment:            loan.Amount,
			OriginalPricePerShare: 0,
		}
	}

	convertedShares := int64(math.Round(totalOwed / conversionPrice))

	return models.Shareholding{
		ID:                    e.newID(),
		StakeholderID:         loan.StakeholderID,
		StakeholderName:       loan.InvestorName,
		ShareClassID:          round.NewShareClass.ID,
		Shares:                convertedShares,
		Investment:            loan.Amount,
		OriginalPricePerShare: conversionPrice,
	}
}
