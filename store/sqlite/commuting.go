/*
commuting.go - commuting.Store implementation

Commute rows are keyed by (trainee_id, date); SaveDayRecord upserts on that
pair so a manual correction and a device check-in for the same day land on
the same row.
*/
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/drillpay/settlement-engine/commuting"
	"github.com/drillpay/settlement-engine/roster"
)

var _ commuting.Store = (*Store)(nil)

// SaveDayRecord creates or replaces the trainee's commute row for the day.
func (s *Store) SaveDayRecord(ctx context.Context, rec commuting.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO commute_records
		(id, trainee_id, date, check_in_at, check_out_at, location_id, manual, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trainee_id, date) DO UPDATE SET
			check_in_at = excluded.check_in_at,
			check_out_at = excluded.check_out_at,
			location_id = excluded.location_id,
			manual = excluded.manual,
			note = excluded.note
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.TraineeID, rec.Date.Format(dayFormat),
		nullTime(rec.CheckInAt), nullTime(rec.CheckOutAt),
		nullString(rec.LocationID), rec.Manual, nullString(rec.Note),
	)
	return err
}

// GetDayRecord returns the trainee's commute row for a day; nil when absent.
func (s *Store) GetDayRecord(ctx context.Context, trainee roster.TraineeID, day time.Time) (*commuting.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, trainee_id, date, check_in_at, check_out_at, location_id, manual, note
		FROM commute_records
		WHERE trainee_id = ? AND date = ?
	`
	rec, err := scanCommuteRecord(s.db.QueryRowContext(ctx, query, trainee, day.Format(dayFormat)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListDayRecords returns the trainee's commute rows with from <= date <= to.
func (s *Store) ListDayRecords(ctx context.Context, trainee roster.TraineeID, from, to time.Time) ([]commuting.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, trainee_id, date, check_in_at, check_out_at, location_id, manual, note
		FROM commute_records
		WHERE trainee_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`
	rows, err := s.db.QueryContext(ctx, query, trainee,
		from.Format(dayFormat), to.Format(dayFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commuting.Record
	for rows.Next() {
		rec, err := scanCommuteRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// =============================================================================
// REFERENCE LOCATIONS
// =============================================================================

// SaveLocation creates or updates a geofence reference location.
func (s *Store) SaveLocation(ctx context.Context, loc commuting.ReferenceLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO geo_locations (id, name, lat, lng, radius_m, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			lat = excluded.lat,
			lng = excluded.lng,
			radius_m = excluded.radius_m,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		loc.ID, loc.Name, loc.Lat, loc.Lng, loc.RadiusM, loc.Active)
	return err
}

// ListLocations returns all reference locations, active or not.
func (s *Store) ListLocations(ctx context.Context) ([]commuting.ReferenceLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, lat, lng, radius_m, active FROM geo_locations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commuting.ReferenceLocation
	for rows.Next() {
		var loc commuting.ReferenceLocation
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Lat, &loc.Lng, &loc.RadiusM, &loc.Active); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// DeleteLocation removes a reference location.
func (s *Store) DeleteLocation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM geo_locations WHERE id = ?", id)
	return err
}

func scanCommuteRecord(sc rowScanner) (*commuting.Record, error) {
	var rec commuting.Record
	var date string
	var checkIn, checkOut, locationID, note sql.NullString

	err := sc.Scan(&rec.ID, &rec.TraineeID, &date, &checkIn, &checkOut,
		&locationID, &rec.Manual, &note)
	if err != nil {
		return nil, err
	}

	rec.Date, err = time.ParseInLocation(dayFormat, date, time.Local)
	if err != nil {
		return nil, err
	}
	rec.CheckInAt = parseTimePtr(checkIn)
	rec.CheckOutAt = parseTimePtr(checkOut)
	rec.LocationID = locationID.String
	rec.Note = note.String
	return &rec, nil
}
