package recurring

import (
	"fmt"
	"time"
)

// ErrUnknownInterval is returned when an interval kind is not one of
// the supported values. A malformed interval must surface as an error
// rather than produce a zero-length advance.
var ErrUnknownInterval = fmt.Errorf("unknown recurrence interval")

// NextOccurrence computes the due instant following 'from' for the
// given interval. anchorDay is the schedule's day-of-month anchor,
// normally the start date's day; values below 1 fall back to the day
// of 'from'. It is pure and does no I/O.
//
// Monthly advances target the anchor day, clamped to the length of the
// target month: Jan 31 -> Feb 29 -> Mar 31. Clamping against 'from'
// instead of the anchor would drift every occurrence after a short
// month. Quarterly applies the monthly rule three times. Yearly keeps
// the month and targets the anchor day, so a Feb 29 schedule lands on
// Feb 28 in non-leap years and back on Feb 29 in leap years.
//
// The result is always strictly after 'from' for every valid interval.
func NextOccurrence(from time.Time, interval IntervalKind, anchorDay int) (time.Time, error) {
	if anchorDay < 1 {
		anchorDay = from.Day()
	}
	switch interval {
	case IntervalDaily:
		return from.AddDate(0, 0, 1), nil
	case IntervalWeekly:
		return from.AddDate(0, 0, 7), nil
	case IntervalBiweekly:
		return from.AddDate(0, 0, 14), nil
	case IntervalMonthly:
		return addClampedMonth(from, anchorDay), nil
	case IntervalQuarterly:
		next := from
		for i := 0; i < 3; i++ {
			next = addClampedMonth(next, anchorDay)
		}
		return next, nil
	case IntervalYearly:
		return addClampedYear(from, anchorDay), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}
}

// addClampedMonth advances one calendar month toward the anchor day,
// clamping to the last valid day of the target month. time.AddDate
// normalizes overflow (Jan 31 + 1 month = Mar 2/3), so the target day
// is computed explicitly.
func addClampedMonth(t time.Time, anchorDay int) time.Time {
	year, month := t.Year(), t.Month()+1
	if month > time.December {
		month = time.January
		year++
	}
	day := anchorDay
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func addClampedYear(t time.Time, anchorDay int) time.Time {
	year := t.Year() + 1
	day := anchorDay
	if last := daysInMonth(year, t.Month()); day > last {
		day = last
	}
	return time.Date(year, t.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
