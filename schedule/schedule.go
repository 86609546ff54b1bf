// Package schedule computes maintenance cycle boundaries.
//
// All dates are day granular and normalized to UTC midnight. Boundaries are
// always derived from an anchor so that cycles keep a fixed cadence even when
// evaluation runs late.
package schedule

import (
	"time"

	"badgekit/core"
)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from one date to another.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// EndOfMonth returns the last day of the given month.
func EndOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// AddMonths moves d by n months, clamping to the last day of the target month.
func AddMonths(d time.Time, n int) time.Time {
	d = Day(d)
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := EndOfMonth(first.Year(), first.Month())
	if d.Day() > last.Day() {
		return last
	}
	return time.Date(first.Year(), first.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// NextBoundary returns the first cycle boundary after anchor.
func NextBoundary(rs core.ResetSchedule, anchor time.Time) (time.Time, error) {
	anchor = Day(anchor)
	switch rs.Frequency {
	case core.FrequencyDaily:
		return anchor.AddDate(0, 0, 1), nil
	case core.FrequencyWeekly:
		return anchor.AddDate(0, 0, 7), nil
	case core.FrequencyMonthly:
		return AddMonths(anchor, 1), nil
	case core.FrequencyQuarterly:
		return AddMonths(anchor, 3), nil
	case core.FrequencyYearly:
		return AddMonths(anchor, 12), nil
	case core.FrequencyCustom:
		if rs.Interval <= 0 {
			return time.Time{}, core.ErrInvalidSchedule
		}
		switch rs.Unit {
		case core.UnitDays, "":
			return anchor.AddDate(0, 0, rs.Interval), nil
		case core.UnitWeeks:
			return anchor.AddDate(0, 0, 7*rs.Interval), nil
		case core.UnitMonths:
			return AddMonths(anchor, rs.Interval), nil
		}
	}
	return time.Time{}, core.ErrInvalidSchedule
}

// Dates returns the cycle end after anchor and the grace end that would
// follow it. graceEnd is nil when no grace period is configured.
func Dates(rs core.ResetSchedule, graceDays int, anchor time.Time) (end time.Time, graceEnd *time.Time, err error) {
	end, err = NextBoundary(rs, anchor)
	if err != nil {
		return time.Time{}, nil, err
	}
	if graceDays > 0 {
		g := GraceEnd(end, graceDays)
		graceEnd = &g
	}
	return end, graceEnd, nil
}

// GraceEnd is end plus the grace period.
func GraceEnd(end time.Time, graceDays int) time.Time {
	return Day(end).AddDate(0, 0, graceDays)
}
