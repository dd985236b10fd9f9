/*
transport.go - transport.Store implementation

Records are keyed (trainee_id, batch_id). Commit goes through UpsertRecord;
the Manual flag is a plain column here, protection of hand-edited rows is
enforced by the calculator, not the store.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drillpay/settlement-engine/roster"
	"github.com/drillpay/settlement-engine/transport"
)

var _ transport.Store = (*Store)(nil)

// UpsertRecord writes one transport reimbursement record.
func (s *Store) UpsertRecord(ctx context.Context, rec transport.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO transport_records
		(trainee_id, batch_id, address, status, amount, distance_km,
		 has_toll, detail, manual, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trainee_id, batch_id) DO UPDATE SET
			address = excluded.address,
			status = excluded.status,
			amount = excluded.amount,
			distance_km = excluded.distance_km,
			has_toll = excluded.has_toll,
			detail = excluded.detail,
			manual = excluded.manual,
			updated_at = excluded.updated_at
	`

	var dist sql.NullString
	if rec.DistanceKm != nil {
		dist = sql.NullString{String: rec.DistanceKm.String(), Valid: true}
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.TraineeID, rec.BatchID, rec.Address, string(rec.Status),
		rec.Amount, dist, rec.HasToll, nullString(rec.Detail), rec.Manual,
		updatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetRecord returns a trainee's transport record for a batch; nil when absent.
func (s *Store) GetRecord(ctx context.Context, trainee roster.TraineeID, batch roster.BatchID) (*transport.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT trainee_id, batch_id, address, status, amount, distance_km,
		       has_toll, detail, manual, updated_at
		FROM transport_records
		WHERE trainee_id = ? AND batch_id = ?
	`
	rec, err := scanTransportRecord(s.db.QueryRowContext(ctx, query, trainee, batch))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords returns a batch's transport records ordered by trainee.
func (s *Store) ListRecords(ctx context.Context, batch roster.BatchID) ([]transport.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT trainee_id, batch_id, address, status, amount, distance_km,
		       has_toll, detail, manual, updated_at
		FROM transport_records
		WHERE batch_id = ?
		ORDER BY trainee_id
	`
	rows, err := s.db.QueryContext(ctx, query, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transport.Record
	for rows.Next() {
		rec, err := scanTransportRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanTransportRecord(sc rowScanner) (*transport.Record, error) {
	var rec transport.Record
	var status, updatedAt string
	var dist, detail sql.NullString

	err := sc.Scan(&rec.TraineeID, &rec.BatchID, &rec.Address, &status,
		&rec.Amount, &dist, &rec.HasToll, &detail, &rec.Manual, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = transport.Status(status)
	rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at %q: %w", updatedAt, err)
	}
	if dist.Valid {
		d, err := decimal.NewFromString(dist.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse distance %q: %w", dist.String, err)
		}
		rec.DistanceKm = &d
	}
	rec.Detail = detail.String
	return &rec, nil
}
