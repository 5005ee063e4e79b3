// backend/src/engine/dates.go
package engine

import "time"

const isoDate = "2006-01-02"

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// daysBetween returns the calendar-day difference between two ISO dates,
// computed in UTC so timezones and DST never skew the count. The second
// return is false when either date is unparseable.
func daysBetween(fromStr, toStr string) (int, bool) {
	from, ok := parseDate(fromStr)
	if !ok {
		return 0, false
	}
	to, ok := parseDate(toStr)
	if !ok {
		return 0, false
	}
	return int(to.Sub(from).Hours() / 24), true
}

// monthsBetween returns the whole calendar-month difference, ignoring the
// day of month, floored at 0.
func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 - int(from.Month()) + int(to.Month())
	if months < 0 {
		return 0
	}
	return months
}
