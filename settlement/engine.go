/*
engine.go - Settlement workflow operations

OPERATIONS:
  Create   -> new process at its initial stage (clawback gated on the
              batch's disbursement being terminal)
  Advance  -> status moves one stage forward, stamps the entered stage's
              milestone; TerminalStateError at the end
  Revert   -> status moves one stage back, clears the left stage's
              milestone; InitialStateError at the start
  UpdateMetadata -> freely editable at any stage, drives nothing

CONCURRENCY:
  Every write goes through the store's optimistic compare-and-swap on
  Status: the update only applies if Status still equals the value read.
  Two concurrent Advance calls on the same process cannot both succeed past
  the same stage; the loser gets ErrConcurrentModification and may retry.
  Boundary violations reject the single requested operation and leave the
  process untouched - never partially applied.
*/
package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drillpay/settlement-engine/roster"
)

// =============================================================================
// STORE INTERFACE - Implemented by store/sqlite
// =============================================================================

// Store persists settlement processes. Update must be an atomic
// compare-and-swap on status: it writes the full process state only if the
// stored status equals expectStatus, returning ErrConcurrentModification
// otherwise.
type Store interface {
	CreateProcess(ctx context.Context, p *Process) error
	GetProcess(ctx context.Context, id string) (*Process, error)
	GetProcessByBatch(ctx context.Context, batch roster.BatchID, kind Kind) (*Process, error)
	UpdateProcess(ctx context.Context, p *Process, expectStatus Stage) error
}

// LedgerTotals is the read-only view of the compensation ledger the engine
// uses for the informational net figure on clawbacks.
type LedgerTotals interface {
	TotalForBatch(ctx context.Context, batch roster.BatchID) (int64, error)
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store  Store
	totals LedgerTotals // optional, for Net
	now    func() time.Time
	log    *slog.Logger
}

func NewEngine(store Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, now: time.Now, log: log}
}

// WithLedgerTotals wires the compensation ledger in for Net.
func (e *Engine) WithLedgerTotals(t LedgerTotals) *Engine {
	e.totals = t
	return e
}

// WithClock replaces the milestone clock. Tests use this for deterministic
// timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// =============================================================================
// CREATION
// =============================================================================

// Create starts a new process of the given kind for a batch. At most one
// process per (batch, kind) exists; clawback additionally requires the
// batch's disbursement to be at its terminal stage.
func (e *Engine) Create(ctx context.Context, kind Kind, batch roster.BatchID) (*Process, error) {
	if len(Stages(kind)) == 0 {
		return nil, &roster.ValidationError{Field: "kind", Value: string(kind), Msg: "unknown settlement kind"}
	}
	if existing, err := e.store.GetProcessByBatch(ctx, batch, kind); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrProcessExists
	}

	if kind == KindClawback {
		disb, err := e.store.GetProcessByBatch(ctx, batch, KindDisbursement)
		if err != nil {
			return nil, err
		}
		switch {
		case disb == nil:
			return nil, &PrecursorNotTerminalError{
				BatchID:  string(batch),
				Current:  "",
				Required: Terminal(KindDisbursement),
			}
		case !disb.IsTerminal():
			return nil, &PrecursorNotTerminalError{
				BatchID:  string(batch),
				Current:  disb.Status,
				Required: Terminal(KindDisbursement),
			}
		}
	}

	p := &Process{
		ID:         uuid.NewString(),
		BatchID:    batch,
		Kind:       kind,
		Status:     Initial(kind),
		Milestones: make(map[Stage]time.Time),
		CreatedAt:  e.now(),
	}
	if err := e.store.CreateProcess(ctx, p); err != nil {
		return nil, err
	}

	e.log.Info("settlement process created", "batch", batch, "kind", kind, "id", p.ID)
	return p, nil
}

// EnsureDisbursement creates the batch's disbursement process if it does not
// exist yet. Idempotent; called by the compensation ledger during Sync.
func (e *Engine) EnsureDisbursement(ctx context.Context, batch roster.BatchID) error {
	existing, err := e.store.GetProcessByBatch(ctx, batch, KindDisbursement)
	if err != nil || existing != nil {
		return err
	}
	_, err = e.Create(ctx, KindDisbursement, batch)
	if err == ErrProcessExists {
		// Lost a race with another sync; the process exists, which is all
		// this call guarantees.
		return nil
	}
	return err
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Advance moves the process one stage forward and stamps the milestone of
// the stage being entered.
func (e *Engine) Advance(ctx context.Context, id string) (*Process, error) {
	p, err := e.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	idx := stageIndex(p.Kind, p.Status)
	stages := Stages(p.Kind)
	if idx == len(stages)-1 {
		return nil, &TerminalStateError{Kind: p.Kind, Stage: p.Status}
	}

	from := p.Status
	next := stages[idx+1]
	p.Status = next
	p.Milestones[next] = e.now()

	if err := e.store.UpdateProcess(ctx, p, from); err != nil {
		return nil, err
	}

	e.log.Info("settlement advanced", "id", id, "kind", p.Kind, "from", from, "to", next)
	return p, nil
}

// Revert moves the process one stage back and clears the milestone of the
// stage being left. Timestamps of stages prior to the new current stage
// remain intact.
func (e *Engine) Revert(ctx context.Context, id string) (*Process, error) {
	p, err := e.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	idx := stageIndex(p.Kind, p.Status)
	if idx == 0 {
		return nil, &InitialStateError{Kind: p.Kind, Stage: p.Status}
	}

	from := p.Status
	delete(p.Milestones, from)
	p.Status = Stages(p.Kind)[idx-1]

	if err := e.store.UpdateProcess(ctx, p, from); err != nil {
		return nil, err
	}

	e.log.Info("settlement reverted", "id", id, "kind", p.Kind, "from", from, "to", p.Status)
	return p, nil
}

// =============================================================================
// METADATA AND REPORTING
// =============================================================================

// UpdateMetadata replaces the process's editable fields. Allowed at any
// stage; never changes status or milestones.
func (e *Engine) UpdateMetadata(ctx context.Context, id string, md Metadata) (*Process, error) {
	p, err := e.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Metadata = md
	if err := e.store.UpdateProcess(ctx, p, p.Status); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a process by ID.
func (e *Engine) Get(ctx context.Context, id string) (*Process, error) {
	return e.mustGet(ctx, id)
}

// ForBatch lists the batch's processes (either kind may be absent).
func (e *Engine) ForBatch(ctx context.Context, batch roster.BatchID) ([]*Process, error) {
	var out []*Process
	for _, kind := range []Kind{KindDisbursement, KindClawback} {
		p, err := e.store.GetProcessByBatch(ctx, batch, kind)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// Net returns the informational ledgerTotal - refundTotal figure for a
// clawback. The engine never recomputes refund amounts; they are
// administrator-entered.
func (e *Engine) Net(ctx context.Context, id string) (int64, error) {
	p, err := e.mustGet(ctx, id)
	if err != nil {
		return 0, err
	}
	if e.totals == nil {
		return 0, nil
	}
	total, err := e.totals.TotalForBatch(ctx, p.BatchID)
	if err != nil {
		return 0, err
	}
	return total - p.Metadata.CompensationRefund - p.Metadata.TransportRefund, nil
}

func (e *Engine) mustGet(ctx context.Context, id string) (*Process, error) {
	p, err := e.store.GetProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProcessNotFound
	}
	if p.Milestones == nil {
		p.Milestones = make(map[Stage]time.Time)
	}
	return p, nil
}
