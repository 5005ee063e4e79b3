// backend/src/engine/vesting.go
package engine

import (
	"math"

	"github.com/username/capsim/backend/src/models"
)

// VestedShares computes the vested share count for a grant under monthly
// linear vesting with a cliff. The elapsed time is a whole calendar-month
// difference; the day of month is ignored. Before the grant date or the
// cliff nothing is vested; at or past the full vesting period everything is.
// The schedule's acceleration field is carried in the data model but has no
// effect here.
func VestedShares(totalShares int64, schedule models.VestingSchedule, asOfDate string) int64 {
	asOf, okAsOf := parseDate(asOfDate)
	grant, okGrant := parseDate(schedule.GrantDate)
	if !okAsOf || !okGrant {
		// Unparseable dates degrade to fully vested rather than erroring.
		return totalShares
	}

	if asOf.Before(grant) {
		return 0
	}

	monthsPassed := monthsBetween(grant, asOf)
	if monthsPassed < schedule.CliffMonths {
		return 0
	}
	if schedule.VestingPeriodMonths <= 0 || monthsPassed >= schedule.VestingPeriodMonths {
		return totalShares
	}

	vestedRatio := float64(monthsPassed) / float64(schedule.VestingPeriodMonths)
	return int64(math.Floor(float64(totalShares) * vestedRatio))
}
