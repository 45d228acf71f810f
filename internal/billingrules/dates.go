package billingrules

import "time"

// truncateUTC reduces a timestamp to its UTC calendar date (midnight UTC).
// All day arithmetic in this package goes through this helper so that
// local time-of-day and DST transitions can never shift a comparison.
func truncateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from `from` to `to`,
// positive when `to` is later. Both inputs are truncated to UTC midnight
// before differencing, so the result depends only on the calendar dates.
func DaysBetween(from, to time.Time) int {
	f := truncateUTC(from)
	t := truncateUTC(to)
	return int(t.Sub(f).Hours() / 24)
}

// DayOfMonth returns the 1-31 calendar day component of the date, in UTC.
func DayOfMonth(t time.Time) int {
	return t.UTC().Day()
}
