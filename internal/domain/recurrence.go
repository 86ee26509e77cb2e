package domain

import "time"

// Recurrence is the cadence at which an approved template spawns new tasks.
type Recurrence string

// Supported recurrence rules.
const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// IsValid reports whether r is a supported rule.
func (r Recurrence) IsValid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// IsDue reports whether a template created at createdAt fires on asOf.
//
// Monthly templates created on a day the asOf month does not have (the 31st
// in a 30-day month, the 29th-31st in February) fire on that month's last day.
func (r Recurrence) IsDue(createdAt, asOf time.Time) bool {
	createdAt = createdAt.UTC()
	asOf = asOf.UTC()

	switch r {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		return asOf.Weekday() == createdAt.Weekday()
	case RecurrenceMonthly:
		day := createdAt.Day()
		if last := daysIn(asOf.Year(), asOf.Month()); day > last {
			day = last
		}
		return asOf.Day() == day
	default:
		return false
	}
}

// NextDueDate returns the start of asOf's day advanced by one cadence unit.
func (r Recurrence) NextDueDate(asOf time.Time) time.Time {
	day := StartOfDay(asOf)

	switch r {
	case RecurrenceDaily:
		return day.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return day.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return AddMonthsClamped(day, 1)
	default:
		return day
	}
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped adds n months without overflowing into the following
// month: Jan 31 + 1 month is the last day of February.
func AddMonthsClamped(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, n, 0)
	day := t.Day()
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
