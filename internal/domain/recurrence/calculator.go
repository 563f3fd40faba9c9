package recurrence

import (
	"time"

	"notifyd/internal/domain/constant"
)

// Scan bounds for variants that may skip candidates (day-of-month overflow,
// leap-day anchors). A monthly anchor on day 31 always lands within the next
// two months with a 31-day month; Feb 29 recurs within at most 8 years.
const (
	monthScanLimit = 48
	yearScanLimit  = 8
)

// Spec is the immutable value the calculator operates on. Anchor must already
// be expressed in Location; callers that want a fixed-offset interpretation
// pass a time.FixedZone as Location.
type Spec struct {
	Type          constant.ScheduleType
	Anchor        time.Time
	Location      *time.Location
	WeekDays      []time.Weekday
	IntervalEvery int
	IntervalUnit  constant.IntervalUnit
	EndDate       *time.Time
	Active        bool
}

// NextAfter returns the first occurrence of spec strictly after the given
// instant. The second return value is false when no occurrence exists: the
// spec is inactive, the end date would be exceeded, a one-time anchor has
// passed, or a custom spec is malformed. It never returns an instant equal
// to after.
func NextAfter(spec Spec, after time.Time) (time.Time, bool) {
	if !spec.Active {
		return time.Time{}, false
	}
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}

	var next time.Time
	var ok bool
	switch spec.Type {
	case constant.TypeOneTime:
		next, ok = spec.Anchor, spec.Anchor.After(after)
	case constant.TypeDaily:
		next, ok = nextDaily(spec.Anchor, loc, after)
	case constant.TypeWeekly:
		next, ok = nextWeekly(spec.Anchor, loc, spec.WeekDays, after)
	case constant.TypeMonthly:
		next, ok = nextMonthly(spec.Anchor, loc, after)
	case constant.TypeYearly:
		next, ok = nextYearly(spec.Anchor, loc, after)
	case constant.TypeCustom:
		next, ok = nextCustom(spec.Anchor, loc, spec.IntervalEvery, spec.IntervalUnit, after)
	default:
		// Unknown type is indistinguishable from exhaustion.
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	if spec.EndDate != nil && next.After(*spec.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

// nextDaily projects the anchor's time-of-day onto after's calendar day and
// advances one day when that candidate has already passed.
func nextDaily(anchor time.Time, loc *time.Location, after time.Time) (time.Time, bool) {
	ref := after.In(loc)
	cand := time.Date(ref.Year(), ref.Month(), ref.Day(),
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), loc)
	if !cand.After(after) {
		cand = cand.AddDate(0, 0, 1)
	}
	return cand, true
}

// nextWeekly scans forward day by day for the first target weekday whose
// projected time-of-day is after the reference. An empty weekday set defaults
// to the anchor's own weekday.
func nextWeekly(anchor time.Time, loc *time.Location, days []time.Weekday, after time.Time) (time.Time, bool) {
	if len(days) == 0 {
		days = []time.Weekday{anchor.Weekday()}
	}
	target := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		target[d] = true
	}

	ref := after.In(loc)
	for i := 0; i <= 7; i++ {
		day := ref.AddDate(0, 0, i)
		if !target[day.Weekday()] {
			continue
		}
		cand := time.Date(day.Year(), day.Month(), day.Day(),
			anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), loc)
		if cand.After(after) {
			return cand, true
		}
	}
	return time.Time{}, false
}

// nextMonthly projects the anchor's day-of-month onto after's month and walks
// forward month by month. Months that lack the anchor's day are skipped; the
// day check catches time.Date's normalization of e.g. Feb 31 into March.
func nextMonthly(anchor time.Time, loc *time.Location, after time.Time) (time.Time, bool) {
	ref := after.In(loc)
	year, month := ref.Year(), ref.Month()
	for i := 0; i < monthScanLimit; i++ {
		cand := time.Date(year, month+time.Month(i), anchor.Day(),
			anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), loc)
		if cand.Day() == anchor.Day() && cand.After(after) {
			return cand, true
		}
	}
	return time.Time{}, false
}

// nextYearly projects the anchor's month and day onto after's year and walks
// forward year by year. A Feb 29 anchor only lands in leap years.
func nextYearly(anchor time.Time, loc *time.Location, after time.Time) (time.Time, bool) {
	ref := after.In(loc)
	for i := 0; i < yearScanLimit; i++ {
		cand := time.Date(ref.Year()+i, anchor.Month(), anchor.Day(),
			anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), loc)
		if cand.Month() == anchor.Month() && cand.Day() == anchor.Day() && cand.After(after) {
			return cand, true
		}
	}
	return time.Time{}, false
}

// nextCustom returns the first anchor + k*interval strictly after the
// reference. The step count is computed in closed form (or estimated and
// corrected with a bounded walk for calendar units) so a small interval after
// a long gap does not iterate once per elapsed step. A malformed interval
// yields no occurrence.
func nextCustom(anchor time.Time, loc *time.Location, every int, unit constant.IntervalUnit, after time.Time) (time.Time, bool) {
	if every <= 0 || !unit.Valid() {
		return time.Time{}, false
	}
	if anchor.After(after) {
		return anchor, true
	}

	switch unit {
	case constant.UnitMinute, constant.UnitHour:
		step := time.Duration(every) * time.Minute
		if unit == constant.UnitHour {
			step = time.Duration(every) * time.Hour
		}
		steps := after.Sub(anchor)/step + 1
		return anchor.Add(time.Duration(steps) * step), true
	case constant.UnitDay, constant.UnitWeek:
		stepDays := every
		if unit == constant.UnitWeek {
			stepDays = every * 7
		}
		add := func(t time.Time, n int) time.Time { return t.In(loc).AddDate(0, 0, n*stepDays) }
		return walkFromEstimate(anchor, after, int(after.Sub(anchor).Hours())/(24*stepDays), add), true
	case constant.UnitMonth:
		ref := after.In(loc)
		a := anchor.In(loc)
		elapsed := (ref.Year()-a.Year())*12 + int(ref.Month()-a.Month())
		add := func(t time.Time, n int) time.Time { return t.In(loc).AddDate(0, n*every, 0) }
		return walkFromEstimate(anchor, after, elapsed/every, add), true
	}
	return time.Time{}, false
}

// walkFromEstimate positions the candidate near the closed-form step estimate
// and then corrects in single steps, so the walk is O(1) regardless of the
// elapsed gap. The estimate may be off by a step or two around DST shifts and
// short months.
func walkFromEstimate(anchor, after time.Time, estimate int, add func(time.Time, int) time.Time) time.Time {
	if estimate < 0 {
		estimate = 0
	}
	cand := add(anchor, estimate)
	for cand.After(after) && estimate > 0 {
		prev := add(anchor, estimate-1)
		if !prev.After(after) {
			break
		}
		estimate--
		cand = prev
	}
	for !cand.After(after) {
		estimate++
		cand = add(anchor, estimate)
	}
	return cand
}
