/*
Package sqlite provides the SQLite-backed implementation of every storage
interface the engine defines.

INTERFACES IMPLEMENTED:
  roster.Directory:        batch/trainee/session reads
  roster.AttendanceSource: attendance outcome reads
  compensation.Store:      compensation-row upserts (override-preserving)
  transport.Store:         reimbursement records
  settlement.Store:        workflow processes (optimistic status CAS)
  commuting.Store:         geofence locations and day records

KEY TABLES:
  batches, trainees, batch_trainees:  the directory
  sessions, attendance:               schedule + outcomes
  compensation_rows:                  one row per (trainee, session)
  transport_records:                  one row per (trainee, batch)
  settlement_processes:               one row per (batch, kind)
  geo_locations, commute_records:     geofenced commuting

UNIQUENESS:
  The row-per-pair invariants are enforced by UNIQUE/PRIMARY KEY
  constraints, so a racing resync and manual edit can never produce
  duplicates - the upsert's ON CONFLICT clause decides field by field what
  survives.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead. SQLite is opened
  in WAL mode.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

USAGE:
  store, err := sqlite.New("./data/settlement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - compensation.go, transport.go, settlement.go, commuting.go: the
    per-domain halves of this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/drillpay/settlement-engine/roster"
)

const dayFormat = "2006-01-02"

// ErrNotFound is returned for lookups of unknown batches/trainees/rows.
var ErrNotFound = errors.New("not found")

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Interface conformance for the collaborator boundaries.
var (
	_ roster.Directory        = (*Store)(nil)
	_ roster.AttendanceSource = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Batches (training cycles)
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		unit_name TEXT,
		unit_lat REAL NOT NULL DEFAULT 0,
		unit_lng REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Trainees
	CREATE TABLE IF NOT EXISTS trainees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT,
		created_at TEXT NOT NULL
	);

	-- Batch assignment
	CREATE TABLE IF NOT EXISTS batch_trainees (
		batch_id TEXT NOT NULL,
		trainee_id TEXT NOT NULL,
		PRIMARY KEY (batch_id, trainee_id)
	);

	-- Training sessions
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		category TEXT,
		lunch_plan TEXT NOT NULL DEFAULT 'standard',
		counts_toward_hours BOOLEAN NOT NULL DEFAULT TRUE,
		attendance_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_batch ON sessions(batch_id);

	-- Attendance outcomes
	CREATE TABLE IF NOT EXISTS attendance (
		trainee_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		early_leave TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (trainee_id, session_id)
	);

	-- Compensation rows: exactly one per (trainee, session)
	CREATE TABLE IF NOT EXISTS compensation_rows (
		trainee_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		batch_id TEXT NOT NULL,
		training_hours TEXT NOT NULL,
		is_weekend BOOLEAN NOT NULL,
		daily_rate INTEGER NOT NULL,
		override_rate INTEGER,
		sync_error TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (trainee_id, session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_compensation_batch ON compensation_rows(batch_id);

	-- Transport records: exactly one per (trainee, batch)
	CREATE TABLE IF NOT EXISTS transport_records (
		trainee_id TEXT NOT NULL,
		batch_id TEXT NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0,
		address TEXT,
		distance_km TEXT,
		status TEXT NOT NULL,
		has_toll BOOLEAN NOT NULL DEFAULT FALSE,
		detail TEXT,
		manual BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (trainee_id, batch_id)
	);

	-- Settlement processes: one per (batch, kind)
	CREATE TABLE IF NOT EXISTS settlement_processes (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		milestones_json TEXT NOT NULL DEFAULT '{}',
		bank_name TEXT,
		account_no TEXT,
		account_holder TEXT,
		note TEXT,
		reason TEXT,
		compensation_refund INTEGER NOT NULL DEFAULT 0,
		transport_refund INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (batch_id, kind)
	);

	-- Geofence reference locations
	CREATE TABLE IF NOT EXISTS geo_locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		radius_m REAL NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Commuting records: one per (trainee, calendar day)
	CREATE TABLE IF NOT EXISTS commute_records (
		id TEXT PRIMARY KEY,
		trainee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		check_in_at TEXT,
		check_out_at TEXT,
		location_id TEXT,
		manual BOOLEAN NOT NULL DEFAULT FALSE,
		note TEXT,
		UNIQUE (trainee_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_commute_trainee_date ON commute_records(trainee_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BATCHES
// =============================================================================

// SaveBatch creates or updates a batch.
func (s *Store) SaveBatch(ctx context.Context, b roster.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO batches (id, name, start_date, end_date, unit_name, unit_lat, unit_lng, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			unit_name = excluded.unit_name,
			unit_lat = excluded.unit_lat,
			unit_lng = excluded.unit_lng
	`

	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.Name,
		b.StartDate.Format(dayFormat), b.EndDate.Format(dayFormat),
		b.UnitName, b.UnitLat, b.UnitLng,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetBatch retrieves a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id roster.BatchID) (*roster.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b roster.Batch
	var unitName sql.NullString
	var start, end string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, start_date, end_date, unit_name, unit_lat, unit_lng FROM batches WHERE id = ?",
		id,
	).Scan(&b.ID, &b.Name, &start, &end, &unitName, &b.UnitLat, &b.UnitLng)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	b.UnitName = unitName.String
	b.StartDate, _ = time.ParseInLocation(dayFormat, start, time.Local)
	b.EndDate, _ = time.ParseInLocation(dayFormat, end, time.Local)
	return &b, nil
}

// ListBatches returns all batches, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]roster.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, start_date, end_date, unit_name, unit_lat, unit_lng FROM batches ORDER BY start_date DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []roster.Batch
	for rows.Next() {
		var b roster.Batch
		var unitName sql.NullString
		var start, end string
		if err := rows.Scan(&b.ID, &b.Name, &start, &end, &unitName, &b.UnitLat, &b.UnitLng); err != nil {
			return nil, err
		}
		b.UnitName = unitName.String
		b.StartDate, _ = time.ParseInLocation(dayFormat, start, time.Local)
		b.EndDate, _ = time.ParseInLocation(dayFormat, end, time.Local)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// =============================================================================
// TRAINEES AND ASSIGNMENT
// =============================================================================

// SaveTrainee creates or updates a trainee.
func (s *Store) SaveTrainee(ctx context.Context, t roster.Trainee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO trainees (id, name, address, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Name, nullString(t.Address), time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetTrainee retrieves a trainee by ID.
func (s *Store) GetTrainee(ctx context.Context, id roster.TraineeID) (*roster.Trainee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t roster.Trainee
	var address sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, address FROM trainees WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &address)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trainee %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Address = address.String
	return &t, nil
}

// AssignTrainee links a trainee to a batch. Idempotent.
func (s *Store) AssignTrainee(ctx context.Context, batch roster.BatchID, trainee roster.TraineeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO batch_trainees (batch_id, trainee_id) VALUES (?, ?)",
		batch, trainee)
	return err
}

// ListTrainees returns the trainees assigned to a batch.
func (s *Store) ListTrainees(ctx context.Context, batch roster.BatchID) ([]roster.Trainee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT t.id, t.name, t.address
		FROM trainees t
		JOIN batch_trainees bt ON bt.trainee_id = t.id
		WHERE bt.batch_id = ?
		ORDER BY t.id
	`
	rows, err := s.db.QueryContext(ctx, query, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trainees []roster.Trainee
	for rows.Next() {
		var t roster.Trainee
		var address sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &address); err != nil {
			return nil, err
		}
		t.Address = address.String
		trainees = append(trainees, t)
	}
	return trainees, rows.Err()
}

// =============================================================================
// SESSIONS
// =============================================================================

// SaveSession creates or updates a training session.
func (s *Store) SaveSession(ctx context.Context, sess roster.TrainingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sessions
		(id, batch_id, date, start_time, end_time, category, lunch_plan,
		 counts_toward_hours, attendance_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			category = excluded.category,
			lunch_plan = excluded.lunch_plan,
			counts_toward_hours = excluded.counts_toward_hours,
			attendance_enabled = excluded.attendance_enabled
	`
	lunch := sess.LunchPlan
	if lunch == "" {
		lunch = roster.LunchStandard
	}
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.BatchID, sess.Date.Format(dayFormat),
		nullString(sess.Start), nullString(sess.End),
		nullString(sess.Category), lunch,
		sess.CountsTowardHours, sess.AttendanceEnabled,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, id roster.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

// ListSessions returns all sessions of a batch in date order.
func (s *Store) ListSessions(ctx context.Context, batch roster.BatchID) ([]roster.TrainingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, batch_id, date, start_time, end_time, category, lunch_plan,
		       counts_toward_hours, attendance_enabled
		FROM sessions
		WHERE batch_id = ?
		ORDER BY date ASC, start_time ASC
	`
	rows, err := s.db.QueryContext(ctx, query, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []roster.TrainingSession
	for rows.Next() {
		var sess roster.TrainingSession
		var date string
		var start, end, category sql.NullString
		if err := rows.Scan(&sess.ID, &sess.BatchID, &date, &start, &end,
			&category, &sess.LunchPlan, &sess.CountsTowardHours, &sess.AttendanceEnabled); err != nil {
			return nil, err
		}
		sess.Date, _ = time.ParseInLocation(dayFormat, date, time.Local)
		sess.Start = start.String
		sess.End = end.String
		sess.Category = category.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// =============================================================================
// ATTENDANCE (roster.AttendanceSource plus the admin-sheet upsert)
// =============================================================================

// SaveOutcome upserts one attendance outcome (self-report or admin sheet).
func (s *Store) SaveOutcome(ctx context.Context, o roster.AttendanceOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO attendance (trainee_id, session_id, status, reason, early_leave, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(trainee_id, session_id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			early_leave = excluded.early_leave,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		o.TraineeID, o.SessionID, o.Status,
		nullString(o.Reason), nullString(o.EarlyLeave),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetOutcome returns the outcome for one (trainee, session); nil when
// nothing was reported.
func (s *Store) GetOutcome(ctx context.Context, trainee roster.TraineeID, session roster.SessionID) (*roster.AttendanceOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var o roster.AttendanceOutcome
	var reason, earlyLeave sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT trainee_id, session_id, status, reason, early_leave FROM attendance WHERE trainee_id = ? AND session_id = ?",
		trainee, session,
	).Scan(&o.TraineeID, &o.SessionID, &o.Status, &reason, &earlyLeave)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.Reason = reason.String
	o.EarlyLeave = earlyLeave.String
	return &o, nil
}

// ListOutcomes returns every outcome of a trainee's sessions in a batch.
func (s *Store) ListOutcomes(ctx context.Context, batch roster.BatchID, trainee roster.TraineeID) ([]roster.AttendanceOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT a.trainee_id, a.session_id, a.status, a.reason, a.early_leave
		FROM attendance a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.batch_id = ? AND a.trainee_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, batch, trainee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []roster.AttendanceOutcome
	for rows.Next() {
		var o roster.AttendanceOutcome
		var reason, earlyLeave sql.NullString
		if err := rows.Scan(&o.TraineeID, &o.SessionID, &o.Status, &reason, &earlyLeave); err != nil {
			return nil, err
		}
		o.Reason = reason.String
		o.EarlyLeave = earlyLeave.String
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
