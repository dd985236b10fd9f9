/*
Package schedule converts training-session time windows into billable hours.

PURPOSE:
  A session is scheduled as a date plus optional "HH:MM" start/end clock
  times. Compensation is paid per billable hour: the raw duration minus the
  part of it that overlaps the day's lunch window. This package is the only
  place that arithmetic lives.

RULES:
  - Missing start or end  -> 0 hours (session still exists for records)
  - end <= start          -> 0 hours (malformed input is floored, not thrown)
  - Lunch deduction is the minute-overlap of [start,end] with the window,
    so a session that only brushes the lunch window is prorated
  - Weekend flag comes from the session date's local civil day-of-week

The applicable lunch window is a property of the day/category, decided by
the caller (see roster.LunchPlan); Billable only receives the window, or nil
when none applies.

SEE ALSO:
  - roster/clock.go: HH:MM parsing
  - compensation/rate.go: hours -> currency units
*/
package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/drillpay/settlement-engine/roster"
)

// =============================================================================
// LUNCH WINDOW
// =============================================================================

// LunchWindow is a half-open-free minute interval [Start, End) within a day.
type LunchWindow struct {
	StartMin int
	EndMin   int
}

// NewLunchWindow builds a window from "HH:MM" bounds.
func NewLunchWindow(start, end string) (LunchWindow, error) {
	s, err := roster.ParseClock(start)
	if err != nil {
		return LunchWindow{}, err
	}
	e, err := roster.ParseClock(end)
	if err != nil {
		return LunchWindow{}, err
	}
	if e <= s {
		return LunchWindow{}, &roster.ValidationError{Field: "lunch", Value: start + "-" + end, Msg: "end before start"}
	}
	return LunchWindow{StartMin: s, EndMin: e}, nil
}

// overlapMinutes returns how many minutes of [from, to) fall inside the window.
func (w LunchWindow) overlapMinutes(from, to int) int {
	lo := max(from, w.StartMin)
	hi := min(to, w.EndMin)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// =============================================================================
// BILLABLE HOURS
// =============================================================================

var sixty = decimal.NewFromInt(60)

// Billable converts a session's time window into billable hours and reports
// whether the session falls on a weekend. lunch may be nil when no window
// applies to the session's day. Malformed clock strings return a
// roster.ValidationError; a missing start or end is not an error and yields
// zero hours.
func Billable(s roster.TrainingSession, lunch *LunchWindow) (decimal.Decimal, bool, error) {
	weekend := s.IsWeekend()
	if s.Start == "" || s.End == "" {
		return decimal.Zero, weekend, nil
	}

	start, err := roster.ParseClock(s.Start)
	if err != nil {
		return decimal.Zero, weekend, err
	}
	end, err := roster.ParseClock(s.End)
	if err != nil {
		return decimal.Zero, weekend, err
	}

	return billableMinutes(start, end, lunch), weekend, nil
}

// BillableUntil is Billable with the end clock truncated to an early
// departure time. Used when an attendance outcome records leaving before the
// session's scheduled end.
func BillableUntil(s roster.TrainingSession, earlyLeave string, lunch *LunchWindow) (decimal.Decimal, bool, error) {
	weekend := s.IsWeekend()
	if s.Start == "" || s.End == "" {
		return decimal.Zero, weekend, nil
	}

	start, err := roster.ParseClock(s.Start)
	if err != nil {
		return decimal.Zero, weekend, err
	}
	end, err := roster.ParseClock(s.End)
	if err != nil {
		return decimal.Zero, weekend, err
	}
	leave, err := roster.ParseClock(earlyLeave)
	if err != nil {
		return decimal.Zero, weekend, err
	}
	if leave < end {
		end = leave
	}

	return billableMinutes(start, end, lunch), weekend, nil
}

func billableMinutes(start, end int, lunch *LunchWindow) decimal.Decimal {
	raw := end - start
	if raw <= 0 {
		// end conceptually > start; anything else is malformed data and
		// contributes nothing rather than going negative
		return decimal.Zero
	}

	deduct := 0
	if lunch != nil {
		deduct = lunch.overlapMinutes(start, end)
	}

	return decimal.NewFromInt(int64(raw - deduct)).Div(sixty)
}
