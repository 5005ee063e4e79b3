// backend/src/engine/interest.go
package engine

// AccruedInterest computes simple daily interest on a principal from a start
// date up to an as-of date. The year length averages leap years at 365.25
// days. Returns 0 when the as-of date precedes the start date or when either
// date is unparseable.
func AccruedInterest(principal, annualRate float64, fromDate, asOfDate string) float64 {
	days, ok := daysBetween(fromDate, asOfDate)
	if !ok || days < 0 {
		return 0
	}
	return principal * annualRate * (float64(days) / 365.25)
}
