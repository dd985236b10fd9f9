/*
Package compensation computes and maintains per-trainee training pay.

PURPOSE:
  Two pieces live here. rate.go is the pure rate table: billable hours plus
  a weekend flag in, whole currency units out, no I/O anywhere. ledger.go is
  the stateful part: one CompensationRow per (trainee, counting session),
  kept in sync with the source schedule and attendance data by an
  upsert-only resynchronization that never duplicates rows and never
  clobbers an administrator's override.

RATE RULES:
  - hours <= 0          -> 0
  - hours <  full day   -> base * hours / fullDay, rounded half-up
  - hours >= full day   -> base (no overtime premium)
  where base is the weekday or weekend anchor from RateConfig.

OVERRIDES:
  Whether a row's rate was computed or manually set is a type-level fact
  (Rate.Source), not an implicit null-check scattered through callers.

SEE ALSO:
  - schedule/: hours calculation feeding this table
  - ledger.go: the sync/upsert machinery
*/
package compensation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE CONFIG - Fiscal-period constants, passed in, never ambient
// =============================================================================

// RateConfig anchors the rate table for one fiscal period.
type RateConfig struct {
	WeekdayBase  int64 // pay for a full standard day on a weekday
	WeekendBase  int64 // pay for a full standard day on a weekend
	FullDayHours decimal.Decimal
}

// Base returns the full-day anchor for the weekend flag.
func (c RateConfig) Base(weekend bool) int64 {
	if weekend {
		return c.WeekendBase
	}
	return c.WeekdayBase
}

// DailyRate maps billable hours plus a weekend flag to whole currency units.
// Pure function; unit-testable without any database access.
func DailyRate(hours decimal.Decimal, weekend bool, cfg RateConfig) int64 {
	if hours.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	if hours.GreaterThanOrEqual(cfg.FullDayHours) {
		return cfg.Base(weekend)
	}
	base := decimal.NewFromInt(cfg.Base(weekend))
	// Round is half away from zero, which is half-up for positive amounts.
	return base.Mul(hours).Div(cfg.FullDayHours).Round(0).IntPart()
}

// =============================================================================
// RATE - Tagged union: computed vs. administrator-overridden
// =============================================================================

type RateSource string

const (
	SourceComputed   RateSource = "computed"
	SourceOverridden RateSource = "overridden"
)

// Rate is a final per-row amount tagged with where it came from.
type Rate struct {
	Amount int64
	Source RateSource
}

func Computed(amount int64) Rate   { return Rate{Amount: amount, Source: SourceComputed} }
func Overridden(amount int64) Rate { return Rate{Amount: amount, Source: SourceOverridden} }

func (r Rate) IsOverridden() bool { return r.Source == SourceOverridden }
