/*
service.go - Check-in/check-out recording over the geofence

SEQUENCE RULES (per trainee, per calendar day):
  check-in:   rejected if ANY record already exists for the day. A second
              check-in after a completed one is rejected rather than
              ignored or overwritten: the first check-in is a fact and
              silently replacing it would destroy the audit trail.
  check-out:  rejected unless an open check-in (no check-out yet) exists.
  manual:     administrator-entered, bypasses the geofence entirely, but
              still lands on the single per-day row.

AGGREGATION:
  Rows of days where the trainee's attendance outcome is ABSENT are listed
  but not counted toward settlement, even when the geofence check passed.
  Days outside the batch window are likewise listed only.
*/
package commuting

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drillpay/settlement-engine/roster"
)

// =============================================================================
// RECORD
// =============================================================================

type CheckKind string

const (
	CheckIn  CheckKind = "checkIn"
	CheckOut CheckKind = "checkOut"
)

// Record is the single per (trainee, calendar day) commuting row.
type Record struct {
	ID         string
	TraineeID  roster.TraineeID
	Date       time.Time // civil date, midnight local
	CheckInAt  *time.Time
	CheckOutAt *time.Time
	LocationID string // matched reference location, empty for manual rows
	Manual     bool
	Note       string
}

// =============================================================================
// STORE INTERFACE - Implemented by store/sqlite
// =============================================================================

type Store interface {
	GetDayRecord(ctx context.Context, trainee roster.TraineeID, day time.Time) (*Record, error)
	SaveDayRecord(ctx context.Context, rec Record) error
	ListDayRecords(ctx context.Context, trainee roster.TraineeID, from, to time.Time) ([]Record, error)

	ListLocations(ctx context.Context) ([]ReferenceLocation, error)
	SaveLocation(ctx context.Context, loc ReferenceLocation) error
	DeleteLocation(ctx context.Context, id string) error
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store Store
	dir   roster.Directory
	att   roster.AttendanceSource
	now   func() time.Time
	log   *slog.Logger
}

func NewService(store Store, dir roster.Directory, att roster.AttendanceSource, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, dir: dir, att: att, now: time.Now, log: log}
}

// WithClock replaces the wall clock for deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ValidateAndRecord validates the reported position against the active
// geofences and records the check for today.
func (s *Service) ValidateAndRecord(ctx context.Context, trainee roster.TraineeID, pos Position, kind CheckKind) (*Record, error) {
	locations, err := s.store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	matched, err := Validate(pos, locations)
	if err != nil {
		return nil, err
	}

	now := s.now()
	day := civilDay(now)
	rec, err := s.store.GetDayRecord(ctx, trainee, day)
	if err != nil {
		return nil, err
	}

	switch kind {
	case CheckIn:
		if rec != nil {
			return nil, &SequenceError{Msg: "check-in already recorded for today"}
		}
		rec = &Record{
			ID:         uuid.NewString(),
			TraineeID:  trainee,
			Date:       day,
			CheckInAt:  &now,
			LocationID: matched.ID,
		}
	case CheckOut:
		if rec == nil || rec.CheckInAt == nil {
			return nil, &SequenceError{Msg: "check-out without a prior check-in today"}
		}
		if rec.CheckOutAt != nil {
			return nil, &SequenceError{Msg: "check-out already recorded for today"}
		}
		rec.CheckOutAt = &now
	default:
		return nil, &roster.ValidationError{Field: "type", Value: string(kind), Msg: "want checkIn or checkOut"}
	}

	if err := s.store.SaveDayRecord(ctx, *rec); err != nil {
		return nil, err
	}
	s.log.Info("commuting check recorded", "trainee", trainee, "kind", kind, "location", matched.Name)
	return rec, nil
}

// RecordManual stores an administrator-entered record for a day. No
// geofence validation; the per-day uniqueness holds because the day's
// single row is updated in place.
func (s *Service) RecordManual(ctx context.Context, trainee roster.TraineeID, day time.Time, checkIn, checkOut *time.Time, note string) (*Record, error) {
	if checkIn == nil && checkOut == nil {
		return nil, &roster.ValidationError{Field: "times", Value: "", Msg: "need a check-in or check-out time"}
	}
	if checkOut != nil && checkIn == nil {
		return nil, &SequenceError{Msg: "manual check-out requires a check-in time"}
	}

	day = civilDay(day)
	rec, err := s.store.GetDayRecord(ctx, trainee, day)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{ID: uuid.NewString(), TraineeID: trainee, Date: day}
	}
	rec.CheckInAt = checkIn
	rec.CheckOutAt = checkOut
	rec.Manual = true
	rec.Note = note
	rec.LocationID = ""

	if err := s.store.SaveDayRecord(ctx, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// =============================================================================
// SETTLEMENT-ORIENTED AGGREGATION
// =============================================================================

// RecordView is a commuting row plus whether it counts toward settlement.
type RecordView struct {
	Record
	Counted bool
	Skipped string // why a displayed row is not counted
}

// ListForSettlement returns a trainee's commuting rows inside the batch's
// window, marking which rows count: rows on days where the trainee was
// ABSENT are displayed but not counted, as are rows outside the window.
func (s *Service) ListForSettlement(ctx context.Context, batchID roster.BatchID, trainee roster.TraineeID) ([]RecordView, error) {
	batch, err := s.dir.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	absent, err := s.absentDays(ctx, batchID, trainee)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListDayRecords(ctx, trainee, batch.StartDate, batch.EndDate.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		v := RecordView{Record: rec, Counted: true}
		switch {
		case !batch.ContainsDay(rec.Date):
			v.Counted = false
			v.Skipped = "outside training window"
		case absent[rec.Date.Format("2006-01-02")]:
			v.Counted = false
			v.Skipped = "trainee absent"
		}
		views = append(views, v)
	}
	return views, nil
}

// absentDays maps "YYYY-MM-DD" -> true for days the trainee was ABSENT at
// any session.
func (s *Service) absentDays(ctx context.Context, batchID roster.BatchID, trainee roster.TraineeID) (map[string]bool, error) {
	sessions, err := s.dir.ListSessions(ctx, batchID)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.att.ListOutcomes(ctx, batchID, trainee)
	if err != nil {
		return nil, err
	}

	byID := make(map[roster.SessionID]roster.TrainingSession, len(sessions))
	for _, sess := range sessions {
		byID[sess.ID] = sess
	}

	days := make(map[string]bool)
	for _, o := range outcomes {
		if o.Status != roster.AttendanceAbsent {
			continue
		}
		if sess, ok := byID[o.SessionID]; ok {
			days[sess.Date.Format("2006-01-02")] = true
		}
	}
	return days, nil
}

// Locations lists all reference locations.
func (s *Service) Locations(ctx context.Context) ([]ReferenceLocation, error) {
	return s.store.ListLocations(ctx)
}

// SaveLocation creates or updates a reference location.
func (s *Service) SaveLocation(ctx context.Context, loc ReferenceLocation) (ReferenceLocation, error) {
	if loc.RadiusM <= 0 {
		return loc, &roster.ValidationError{Field: "radius", Value: "", Msg: "must be positive"}
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	return loc, s.store.SaveLocation(ctx, loc)
}

// DeleteLocation removes a reference location.
func (s *Service) DeleteLocation(ctx context.Context, id string) error {
	return s.store.DeleteLocation(ctx, id)
}

func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
