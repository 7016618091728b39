// Package businesstime converts wall-clock intervals into business-hour
// intervals: elapsed time counted only inside configured working hours and
// working weekdays. It ports the day-by-day walk from the original Python
// BusinessTimeCalculator rather than a closed-form calculation, because the
// walk is what makes midnight-splitting and half-minute truncation fall out
// naturally instead of needing special-cased arithmetic.
package businesstime

import "time"

// Config holds the working-hours definition, re-read at the start of every
// calculation so config edits take effect on the next tick, never mid-tick.
type Config struct {
	// WorkStartHour is the first hour (0-23) of the business day, inclusive.
	WorkStartHour int
	// WorkEndHour is the hour (1-24) business ends, exclusive.
	WorkEndHour int
	// WorkDays holds ISO weekday numbers, 1=Monday .. 7=Sunday.
	WorkDays map[int]bool
}

// DefaultConfig matches spec.md's defaults: 9am-7pm, Monday through Friday.
func DefaultConfig() Config {
	return Config{
		WorkStartHour: 9,
		WorkEndHour:   19,
		WorkDays:      map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true},
	}
}

// HoursPerDay reports how many business hours fall within a single working day.
func (c Config) HoursPerDay() int {
	return c.WorkEndHour - c.WorkStartHour
}

func isoWeekday(t time.Time) int {
	// time.Weekday is Sunday=0..Saturday=6; spec wants Monday=1..Sunday=7.
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Calculator answers business-time questions against a fixed Config. It
// performs no I/O; callers read Config fresh from their own configuration
// store before constructing one for a given calculation.
type Calculator struct {
	cfg Config
}

func New(cfg Config) Calculator {
	return Calculator{cfg: cfg}
}

// IsBusinessDay reports whether t's weekday is a configured working day.
func (c Calculator) IsBusinessDay(t time.Time) bool {
	return c.cfg.WorkDays[isoWeekday(t)]
}

// IsBusinessTime reports whether t falls inside a working day's business window.
func (c Calculator) IsBusinessTime(t time.Time) bool {
	if !c.IsBusinessDay(t) {
		return false
	}
	h := t.Hour()
	return h >= c.cfg.WorkStartHour && h < c.cfg.WorkEndHour
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// NextBusinessStart returns the smallest t' >= t at which IsBusinessTime
// holds, truncated to the minute. If t is already inside a business window
// it is returned unchanged (minute-truncated).
func (c Calculator) NextBusinessStart(t time.Time) time.Time {
	t = t.Truncate(time.Minute)

	if c.IsBusinessDay(t) && c.IsBusinessTime(t) {
		return t
	}

	if c.IsBusinessDay(t) {
		if t.Hour() < c.cfg.WorkStartHour {
			return atHour(t, c.cfg.WorkStartHour)
		}
		// Today's business window is over; roll to the next working day.
		next := t.AddDate(0, 0, 1)
		for !c.IsBusinessDay(next) {
			next = next.AddDate(0, 0, 1)
		}
		return atHour(next, c.cfg.WorkStartHour)
	}

	// Not a working day at all; find the next one.
	next := t.AddDate(0, 0, 1)
	for !c.IsBusinessDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return atHour(next, c.cfg.WorkStartHour)
}

// BusinessHoursBetween sums the minutes of a and b's interval that fall
// inside business windows, returned in hours. Returns 0 if a >= b.
func (c Calculator) BusinessHoursBetween(a, b time.Time) float64 {
	if !a.Before(b) {
		return 0
	}

	a = a.Truncate(time.Minute)
	b = b.Truncate(time.Minute)
	if !a.Before(b) {
		return 0
	}

	var totalHours float64
	current := a

	for current.Before(b) {
		if !c.IsBusinessTime(current) {
			current = c.NextBusinessStart(current)
			if !current.Before(b) {
				break
			}
		}

		workEndToday := atHour(current, c.cfg.WorkEndHour)
		dayEnd := b
		if workEndToday.Before(dayEnd) {
			dayEnd = workEndToday
		}

		if dayEnd.After(current) {
			totalHours += dayEnd.Sub(current).Minutes() / 60.0
		}

		current = c.NextBusinessStart(workEndToday.Add(time.Minute))
	}

	return totalHours
}

// Advance returns the timestamp reached by adding hours of business time to
// start. Used to compute "when will this cross the SLA threshold" style
// projections; hours <= 0 returns start unchanged.
func (c Calculator) Advance(start time.Time, hours float64) time.Time {
	if hours <= 0 {
		return start
	}

	current := start.Truncate(time.Minute)
	remaining := hours

	for remaining > 0 {
		if !c.IsBusinessTime(current) {
			current = c.NextBusinessStart(current)
		}

		workEndToday := atHour(current, c.cfg.WorkEndHour)
		remainingToday := workEndToday.Sub(current).Minutes() / 60.0

		if remaining <= remainingToday {
			return current.Add(time.Duration(remaining * float64(time.Hour)))
		}

		remaining -= remainingToday
		current = c.NextBusinessStart(workEndToday.Add(time.Minute))
	}

	return current
}
