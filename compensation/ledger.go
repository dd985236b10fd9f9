/*
ledger.go - Compensation ledger: sync, overrides, totals

RESPONSIBILITY:
  Maintain exactly one CompensationRow per (trainee, counting session) and
  expose Sync as a full resynchronization from the source schedule and
  attendance data. Sync is idempotent: running it twice with no underlying
  changes produces an identical row set.

SYNC CONTRACT:
  - Upsert keyed by (trainee, session); never insert a duplicate
  - Overwrite hours/weekend/dailyRate, PRESERVE overrideRate verbatim
  - Delete rows whose session vanished or stopped counting
  - Best-effort per row: one malformed session/trainee pair becomes a
    zero-hour row with the failure recorded in the SyncReport; it never
    aborts the rest of the batch
  - A batch with at least one counting session gets its Disbursement
    settlement process created (exactly once)

ATTENDANCE:
  ABSENT trainees get a zero-hour row so the roster view stays complete and
  an override can still be applied. PRESENT and PENDING both accrue hours;
  an early-departure clock time truncates the billable window.

SEE ALSO:
  - rate.go: the pure rate table
  - store/sqlite/compensation.go: the upsert implementation
*/
package compensation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/drillpay/settlement-engine/roster"
	"github.com/drillpay/settlement-engine/schedule"
)

// =============================================================================
// COMPENSATION ROW
// =============================================================================

// Row is the per (trainee, session) compensation record. DailyRate is always
// the un-overridden computed value; OverrideRate, when set, supersedes it.
type Row struct {
	TraineeID     roster.TraineeID
	SessionID     roster.SessionID
	BatchID       roster.BatchID
	TrainingHours decimal.Decimal
	IsWeekend     bool
	DailyRate     int64
	OverrideRate  *int64
	SyncError     string // last per-row sync failure, empty when clean
}

// Final resolves the effective rate as a tagged union.
func (r Row) Final() Rate {
	if r.OverrideRate != nil {
		return Overridden(*r.OverrideRate)
	}
	return Computed(r.DailyRate)
}

// RowKey identifies a row inside a batch.
type RowKey struct {
	TraineeID roster.TraineeID
	SessionID roster.SessionID
}

// =============================================================================
// STORE INTERFACE - Implemented by store/sqlite
// =============================================================================

// Store persists compensation rows. Upsert must preserve an existing row's
// override; only Sync's computed fields may be overwritten.
type Store interface {
	UpsertRow(ctx context.Context, row Row) error
	GetRow(ctx context.Context, trainee roster.TraineeID, session roster.SessionID) (*Row, error)
	ListRows(ctx context.Context, batch roster.BatchID) ([]Row, error)

	// DeleteRowsExcept removes every row of the batch whose key is not in
	// keep. Used by Sync to drop rows for removed/non-counting sessions.
	DeleteRowsExcept(ctx context.Context, batch roster.BatchID, keep []RowKey) (int, error)

	// SetOverride stores or clears (nil) the administrator override.
	SetOverride(ctx context.Context, trainee roster.TraineeID, session roster.SessionID, amount *int64) error
}

// DisbursementCreator is implemented by the settlement engine. Sync calls it
// when the batch has at least one counting session; creation is idempotent.
type DisbursementCreator interface {
	EnsureDisbursement(ctx context.Context, batch roster.BatchID) error
}

// =============================================================================
// LEDGER
// =============================================================================

// Config carries the rate anchors and the lunch windows Sync selects from
// per session (by roster.LunchPlan).
type Config struct {
	Rate          RateConfig
	LunchStandard schedule.LunchWindow
	LunchBrunch   schedule.LunchWindow
}

func (c Config) lunchFor(plan roster.LunchPlan) *schedule.LunchWindow {
	switch plan {
	case roster.LunchBrunch:
		w := c.LunchBrunch
		return &w
	case roster.LunchNone:
		return nil
	default:
		w := c.LunchStandard
		return &w
	}
}

// Ledger maintains compensation rows for batches.
type Ledger struct {
	store        Store
	dir          roster.Directory
	att          roster.AttendanceSource
	disbursement DisbursementCreator // optional
	cfg          Config
	log          *slog.Logger
}

func NewLedger(store Store, dir roster.Directory, att roster.AttendanceSource, cfg Config, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{store: store, dir: dir, att: att, cfg: cfg, log: log}
}

// WithDisbursementCreator wires settlement-process auto-creation into Sync.
func (l *Ledger) WithDisbursementCreator(dc DisbursementCreator) *Ledger {
	l.disbursement = dc
	return l
}

// =============================================================================
// SYNC
// =============================================================================

// RowFailure records one (trainee, session) pair Sync could not compute.
type RowFailure struct {
	Key RowKey
	Err string
}

// SyncReport summarizes a resynchronization.
type SyncReport struct {
	BatchID  roster.BatchID
	Upserted int
	Deleted  int
	Failures []RowFailure
}

// Sync resynchronizes every compensation row of a batch from its sessions,
// trainees and attendance outcomes.
func (l *Ledger) Sync(ctx context.Context, batchID roster.BatchID) (*SyncReport, error) {
	if _, err := l.dir.GetBatch(ctx, batchID); err != nil {
		return nil, fmt.Errorf("sync %s: %w", batchID, err)
	}

	sessions, err := l.dir.ListSessions(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("sync %s: list sessions: %w", batchID, err)
	}
	trainees, err := l.dir.ListTrainees(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("sync %s: list trainees: %w", batchID, err)
	}

	var counting []roster.TrainingSession
	for _, s := range sessions {
		if s.CountsTowardHours {
			counting = append(counting, s)
		}
	}

	if len(counting) > 0 && l.disbursement != nil {
		if err := l.disbursement.EnsureDisbursement(ctx, batchID); err != nil {
			return nil, fmt.Errorf("sync %s: ensure disbursement: %w", batchID, err)
		}
	}

	report := &SyncReport{BatchID: batchID}
	keep := make([]RowKey, 0, len(counting)*len(trainees))

	for _, sess := range counting {
		for _, tr := range trainees {
			row, ferr := l.computeRow(ctx, sess, tr)
			if ferr != nil {
				// Best-effort: record the failure, write a zero-hour row,
				// keep going.
				row = Row{
					TraineeID: tr.ID,
					SessionID: sess.ID,
					BatchID:   batchID,
					IsWeekend: sess.IsWeekend(),
					SyncError: ferr.Error(),
				}
				report.Failures = append(report.Failures, RowFailure{
					Key: RowKey{TraineeID: tr.ID, SessionID: sess.ID},
					Err: ferr.Error(),
				})
				l.log.Warn("compensation row failed, recorded as zero hours",
					"batch", batchID, "trainee", tr.ID, "session", sess.ID, "error", ferr)
			}

			if err := l.store.UpsertRow(ctx, row); err != nil {
				return nil, fmt.Errorf("sync %s: upsert %s/%s: %w", batchID, tr.ID, sess.ID, err)
			}
			report.Upserted++
			keep = append(keep, RowKey{TraineeID: tr.ID, SessionID: sess.ID})
		}
	}

	deleted, err := l.store.DeleteRowsExcept(ctx, batchID, keep)
	if err != nil {
		return nil, fmt.Errorf("sync %s: prune rows: %w", batchID, err)
	}
	report.Deleted = deleted

	l.log.Info("ledger synced",
		"batch", batchID, "upserted", report.Upserted,
		"deleted", report.Deleted, "failures", len(report.Failures))
	return report, nil
}

func (l *Ledger) computeRow(ctx context.Context, sess roster.TrainingSession, tr roster.Trainee) (Row, error) {
	outcome, err := l.att.GetOutcome(ctx, tr.ID, sess.ID)
	if err != nil {
		return Row{}, fmt.Errorf("attendance lookup: %w", err)
	}

	lunch := l.cfg.lunchFor(sess.LunchPlan)

	var hours decimal.Decimal
	var weekend bool
	switch {
	case outcome != nil && outcome.Status == roster.AttendanceAbsent:
		// Absent trainees keep a zero-hour row so the roster stays complete.
		hours, weekend = decimal.Zero, sess.IsWeekend()
	case outcome != nil && outcome.EarlyLeave != "":
		hours, weekend, err = schedule.BillableUntil(sess, outcome.EarlyLeave, lunch)
	default:
		hours, weekend, err = schedule.Billable(sess, lunch)
	}
	if err != nil {
		return Row{}, err
	}

	return Row{
		TraineeID:     tr.ID,
		SessionID:     sess.ID,
		BatchID:       sess.BatchID,
		TrainingHours: hours,
		IsWeekend:     weekend,
		DailyRate:     DailyRate(hours, weekend, l.cfg.Rate),
	}, nil
}

// =============================================================================
// OVERRIDES AND TOTALS
// =============================================================================

// SetOverride stores an administrator override for one row; nil reverts to
// the computed daily rate.
func (l *Ledger) SetOverride(ctx context.Context, trainee roster.TraineeID, session roster.SessionID, amount *int64) error {
	if amount != nil && *amount < 0 {
		return &roster.ValidationError{Field: "override", Value: fmt.Sprint(*amount), Msg: "must not be negative"}
	}
	return l.store.SetOverride(ctx, trainee, session, amount)
}

// Rows lists the batch's compensation rows.
func (l *Ledger) Rows(ctx context.Context, batch roster.BatchID) ([]Row, error) {
	return l.store.ListRows(ctx, batch)
}

// TotalForBatch sums final rates across the whole batch.
func (l *Ledger) TotalForBatch(ctx context.Context, batch roster.BatchID) (int64, error) {
	rows, err := l.store.ListRows(ctx, batch)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		total += r.Final().Amount
	}
	return total, nil
}

// TotalForTrainee sums final rates for one trainee in a batch.
func (l *Ledger) TotalForTrainee(ctx context.Context, trainee roster.TraineeID, batch roster.BatchID) (int64, error) {
	rows, err := l.store.ListRows(ctx, batch)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		if r.TraineeID == trainee {
			total += r.Final().Amount
		}
	}
	return total, nil
}
