/*
settlement.go - settlement.Store implementation

UpdateProcess is the optimistic compare-and-swap the engine relies on: the
UPDATE carries "AND status = ?" with the status the caller read, and zero
affected rows surfaces as ErrConcurrentModification. Milestones are stored
as a JSON object keyed by stage name.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/drillpay/settlement-engine/roster"
	"github.com/drillpay/settlement-engine/settlement"
)

var _ settlement.Store = (*Store)(nil)

// CreateProcess inserts a new process. Violating the one-per-(batch, kind)
// constraint returns settlement.ErrProcessExists.
func (s *Store) CreateProcess(ctx context.Context, p *settlement.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	milestones, err := marshalMilestones(p.Milestones)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO settlement_processes
		(id, batch_id, kind, status, milestones_json, bank_name, account_no,
		 account_holder, note, reason, compensation_refund, transport_refund,
		 created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.BatchID, string(p.Kind), string(p.Status), milestones,
		nullString(p.Metadata.BankName), nullString(p.Metadata.AccountNo),
		nullString(p.Metadata.AccountHolder), nullString(p.Metadata.Note),
		nullString(p.Metadata.Reason),
		p.Metadata.CompensationRefund, p.Metadata.TransportRefund,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return settlement.ErrProcessExists
	}
	return err
}

// GetProcess returns a process by ID; nil when absent.
func (s *Store) GetProcess(ctx context.Context, id string) (*settlement.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanProcess(s.db.QueryRowContext(ctx,
		selectProcess+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProcessByBatch returns the batch's process of the given kind; nil when
// absent.
func (s *Store) GetProcessByBatch(ctx context.Context, batch roster.BatchID, kind settlement.Kind) (*settlement.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanProcess(s.db.QueryRowContext(ctx,
		selectProcess+" WHERE batch_id = ? AND kind = ?", batch, string(kind)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProcess writes the full process state if and only if the stored
// status still equals expectStatus.
func (s *Store) UpdateProcess(ctx context.Context, p *settlement.Process, expectStatus settlement.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	milestones, err := marshalMilestones(p.Milestones)
	if err != nil {
		return err
	}

	query := `
		UPDATE settlement_processes SET
			status = ?,
			milestones_json = ?,
			bank_name = ?,
			account_no = ?,
			account_holder = ?,
			note = ?,
			reason = ?,
			compensation_refund = ?,
			transport_refund = ?
		WHERE id = ? AND status = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(p.Status), milestones,
		nullString(p.Metadata.BankName), nullString(p.Metadata.AccountNo),
		nullString(p.Metadata.AccountHolder), nullString(p.Metadata.Note),
		nullString(p.Metadata.Reason),
		p.Metadata.CompensationRefund, p.Metadata.TransportRefund,
		p.ID, string(expectStatus),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settlement.ErrConcurrentModification
	}
	return nil
}

const selectProcess = `
	SELECT id, batch_id, kind, status, milestones_json, bank_name, account_no,
	       account_holder, note, reason, compensation_refund, transport_refund,
	       created_at
	FROM settlement_processes`

func scanProcess(sc rowScanner) (*settlement.Process, error) {
	var p settlement.Process
	var kind, status, milestones, createdAt string
	var bank, account, holder, note, reason sql.NullString

	err := sc.Scan(&p.ID, &p.BatchID, &kind, &status, &milestones,
		&bank, &account, &holder, &note, &reason,
		&p.Metadata.CompensationRefund, &p.Metadata.TransportRefund,
		&createdAt)
	if err != nil {
		return nil, err
	}

	p.Kind = settlement.Kind(kind)
	p.Status = settlement.Stage(status)
	p.Metadata.BankName = bank.String
	p.Metadata.AccountNo = account.String
	p.Metadata.AccountHolder = holder.String
	p.Metadata.Note = note.String
	p.Metadata.Reason = reason.String

	p.Milestones, err = unmarshalMilestones(milestones)
	if err != nil {
		return nil, err
	}
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	return &p, nil
}

func marshalMilestones(m map[settlement.Stage]time.Time) (string, error) {
	encoded := make(map[string]string, len(m))
	for stage, t := range m {
		encoded[string(stage)] = t.UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to marshal milestones: %w", err)
	}
	return string(b), nil
}

func unmarshalMilestones(raw string) (map[settlement.Stage]time.Time, error) {
	var encoded map[string]string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal milestones: %w", err)
	}
	out := make(map[settlement.Stage]time.Time, len(encoded))
	for stage, v := range encoded {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse milestone %s: %w", stage, err)
		}
		out[settlement.Stage(stage)] = t
	}
	return out, nil
}
