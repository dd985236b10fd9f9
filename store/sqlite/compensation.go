/*
compensation.go - compensation.Store implementation

The upsert is where the override-preservation invariant lives: ON CONFLICT
overwrites only the computed fields (hours, weekend, daily_rate,
sync_error) and never touches override_rate. SetOverride is the only write
path for that column.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drillpay/settlement-engine/compensation"
	"github.com/drillpay/settlement-engine/roster"
)

var _ compensation.Store = (*Store)(nil)

// UpsertRow writes one compensation row, preserving any existing override.
func (s *Store) UpsertRow(ctx context.Context, row compensation.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO compensation_rows
		(trainee_id, session_id, batch_id, training_hours, is_weekend,
		 daily_rate, override_rate, sync_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trainee_id, session_id) DO UPDATE SET
			batch_id = excluded.batch_id,
			training_hours = excluded.training_hours,
			is_weekend = excluded.is_weekend,
			daily_rate = excluded.daily_rate,
			sync_error = excluded.sync_error,
			updated_at = excluded.updated_at
	`

	var override sql.NullInt64
	if row.OverrideRate != nil {
		override = sql.NullInt64{Int64: *row.OverrideRate, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		row.TraineeID, row.SessionID, row.BatchID,
		row.TrainingHours.String(), row.IsWeekend,
		row.DailyRate, override, nullString(row.SyncError),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetRow returns one compensation row; nil when absent.
func (s *Store) GetRow(ctx context.Context, trainee roster.TraineeID, session roster.SessionID) (*compensation.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT trainee_id, session_id, batch_id, training_hours, is_weekend,
		       daily_rate, override_rate, sync_error
		FROM compensation_rows
		WHERE trainee_id = ? AND session_id = ?
	`
	row, err := scanCompensationRow(s.db.QueryRowContext(ctx, query, trainee, session))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ListRows returns a batch's compensation rows.
func (s *Store) ListRows(ctx context.Context, batch roster.BatchID) ([]compensation.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT trainee_id, session_id, batch_id, training_hours, is_weekend,
		       daily_rate, override_rate, sync_error
		FROM compensation_rows
		WHERE batch_id = ?
		ORDER BY trainee_id, session_id
	`
	rows, err := s.db.QueryContext(ctx, query, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compensation.Row
	for rows.Next() {
		r, err := scanCompensationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DeleteRowsExcept prunes rows of the batch whose key is not in keep.
func (s *Store) DeleteRowsExcept(ctx context.Context, batch roster.BatchID, keep []compensation.RowKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keepSet := make(map[compensation.RowKey]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT trainee_id, session_id FROM compensation_rows WHERE batch_id = ?", batch)
	if err != nil {
		return 0, err
	}
	var stale []compensation.RowKey
	for rows.Next() {
		var k compensation.RowKey
		if err := rows.Scan(&k.TraineeID, &k.SessionID); err != nil {
			rows.Close()
			return 0, err
		}
		if !keepSet[k] {
			stale = append(stale, k)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, k := range stale {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM compensation_rows WHERE trainee_id = ? AND session_id = ?",
			k.TraineeID, k.SessionID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// SetOverride stores or clears the administrator override for one row.
func (s *Store) SetOverride(ctx context.Context, trainee roster.TraineeID, session roster.SessionID, amount *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var override sql.NullInt64
	if amount != nil {
		override = sql.NullInt64{Int64: *amount, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE compensation_rows SET override_rate = ?, updated_at = ? WHERE trainee_id = ? AND session_id = ?",
		override, time.Now().UTC().Format(time.RFC3339), trainee, session)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("compensation row %s/%s: %w", trainee, session, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompensationRow(sc rowScanner) (*compensation.Row, error) {
	var r compensation.Row
	var hours string
	var override sql.NullInt64
	var syncErr sql.NullString

	err := sc.Scan(&r.TraineeID, &r.SessionID, &r.BatchID, &hours,
		&r.IsWeekend, &r.DailyRate, &override, &syncErr)
	if err != nil {
		return nil, err
	}

	r.TrainingHours, err = decimal.NewFromString(hours)
	if err != nil {
		return nil, fmt.Errorf("failed to parse training hours %q: %w", hours, err)
	}
	if override.Valid {
		v := override.Int64
		r.OverrideRate = &v
	}
	r.SyncError = syncErr.String
	return &r, nil
}
