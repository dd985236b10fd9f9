/*
Package settlement drives the two admin-operated settlement workflows.

PURPOSE:
  Each training batch can carry two independent ordered-stage processes:
  Disbursement (forward-paying) and Clawback (reimbursement recovery).
  Every process is a single status pointer walking a fixed stage list;
  advancing stamps the entered stage's milestone timestamp exactly once,
  reverting clears the timestamp of the stage being left.

STAGE LISTS (fixed, no branching, no skipping):
  Disbursement: DOC_DRAFT -> DOC_APPROVED -> CMS_DRAFT -> CMS_APPROVED
  Clawback:     REQUESTED -> DEPOSIT_CONFIRMED -> COMPLETED

GATING:
  Disbursement is created automatically once a batch has a counting session
  (the compensation ledger triggers it). Clawback is created only on explicit
  request, and only after Disbursement reached CMS_APPROVED.

The stage lists are an explicit transition table over a closed set of
stages, not array-index arithmetic at call sites: Advance and Revert are
total functions that either transition or return a boundary error.

SEE ALSO:
  - engine.go: advance/revert/create operations
  - store/sqlite/settlement.go: optimistic status compare-and-swap
*/
package settlement

import (
	"time"

	"github.com/drillpay/settlement-engine/roster"
)

// =============================================================================
// KINDS AND STAGES
// =============================================================================

type Kind string

const (
	KindDisbursement Kind = "disbursement"
	KindClawback     Kind = "clawback"
)

type Stage string

const (
	// Disbursement stages
	StageDocDraft    Stage = "DOC_DRAFT"
	StageDocApproved Stage = "DOC_APPROVED"
	StageCMSDraft    Stage = "CMS_DRAFT"
	StageCMSApproved Stage = "CMS_APPROVED"

	// Clawback stages
	StageRequested        Stage = "REQUESTED"
	StageDepositConfirmed Stage = "DEPOSIT_CONFIRMED"
	StageCompleted        Stage = "COMPLETED"
)

var stageTable = map[Kind][]Stage{
	KindDisbursement: {StageDocDraft, StageDocApproved, StageCMSDraft, StageCMSApproved},
	KindClawback:     {StageRequested, StageDepositConfirmed, StageCompleted},
}

// Stages returns the ordered stage list for a kind; nil for unknown kinds.
func Stages(kind Kind) []Stage { return stageTable[kind] }

// Initial returns a kind's first stage, or "" for an unknown kind.
func Initial(kind Kind) Stage {
	stages := stageTable[kind]
	if len(stages) == 0 {
		return ""
	}
	return stages[0]
}

// Terminal returns a kind's last stage, or "" for an unknown kind.
func Terminal(kind Kind) Stage {
	stages := stageTable[kind]
	if len(stages) == 0 {
		return ""
	}
	return stages[len(stages)-1]
}

func stageIndex(kind Kind, stage Stage) int {
	for i, s := range stageTable[kind] {
		if s == stage {
			return i
		}
	}
	return -1
}

// =============================================================================
// PROCESS
// =============================================================================

// Metadata holds the freely editable fields of a process. None of them drive
// transitions. The refund amounts on a clawback are administrator-entered
// absolute values; the engine never derives them from the ledger.
type Metadata struct {
	BankName           string
	AccountNo          string
	AccountHolder      string
	Note               string
	Reason             string
	CompensationRefund int64 // clawback only
	TransportRefund    int64 // clawback only
}

// Process is one settlement workflow instance for a batch. Status is always
// a member of the kind's stage list; Milestones holds one timestamp per
// stage boundary crossed, keyed by the stage entered.
type Process struct {
	ID         string
	BatchID    roster.BatchID
	Kind       Kind
	Status     Stage
	Milestones map[Stage]time.Time
	Metadata   Metadata
	CreatedAt  time.Time
}

// MilestoneAt returns the stamped timestamp for a stage, if crossed.
func (p *Process) MilestoneAt(stage Stage) (time.Time, bool) {
	t, ok := p.Milestones[stage]
	return t, ok
}

// IsTerminal reports whether the process reached its last stage.
func (p *Process) IsTerminal() bool { return p.Status == Terminal(p.Kind) }
