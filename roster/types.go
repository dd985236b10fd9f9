/*
Package roster defines the shared domain model for training batches.

PURPOSE:
  This package contains the types every engine component reads: batches,
  trainees, scheduled sessions, and attendance outcomes. It also defines the
  read-only collaborator interfaces (Directory, AttendanceSource) that the
  surrounding administrative system implements - the engine never owns
  scheduling or attendance capture, it only consumes them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Batch: a multi-day training cycle grouping sessions and trainees
  - TrainingSession: one scheduled time block inside a batch
  - AttendanceOutcome: per (trainee, session) presence record
  - Directory / AttendanceSource: collaborator interfaces

DESIGN PRINCIPLES:
  1. Type Safety: Strong typing for IDs prevents mixing batch/trainee/session IDs
  2. Read-Only Boundary: Directory and AttendanceSource expose no writes;
     mutation belongs to the host CRUD system
  3. Civil Dates: session dates are calendar days in local time, never UTC
     instants, so weekend detection cannot shift across timezone boundaries

SEE ALSO:
  - clock.go: HH:MM clock-time parsing shared by schedule and attendance
  - schedule/: billable-hours calculation over these types
  - compensation/: the ledger that fans in sessions x trainees
*/
package roster

import (
	"context"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BatchID string
type TraineeID string
type SessionID string

// =============================================================================
// BATCH - A scheduled multi-day training cycle
// =============================================================================

// Batch groups sessions and assigned trainees. UnitLat/UnitLng is the unit's
// reference location, used as the origin for transport reimbursement routing.
type Batch struct {
	ID        BatchID
	Name      string
	StartDate time.Time // civil date, midnight local
	EndDate   time.Time // civil date, inclusive
	UnitName  string
	UnitLat   float64
	UnitLng   float64
}

// ContainsDay reports whether a civil date falls inside the batch window.
func (b Batch) ContainsDay(day time.Time) bool {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return !d.Before(b.StartDate) && !d.After(b.EndDate)
}

// =============================================================================
// TRAINEE
// =============================================================================

// Trainee is a reserve-force member assigned to a batch. Address is the
// free-text home address used for transport reimbursement geocoding; it may
// be empty.
type Trainee struct {
	ID      TraineeID
	Name    string
	Address string
}

// =============================================================================
// TRAINING SESSION - One scheduled time block
// =============================================================================

// LunchPlan selects which configured lunch window applies to a session's day.
// It is a property of the day/category set when the session is scheduled.
type LunchPlan string

const (
	LunchStandard LunchPlan = "standard"
	LunchBrunch   LunchPlan = "brunch"
	LunchNone     LunchPlan = "none"
)

// TrainingSession identifies a scheduled block within a batch. Start and End
// are same-day "HH:MM" clock times; either may be empty, in which case the
// session exists for record purposes but contributes no billable hours.
type TrainingSession struct {
	ID                SessionID
	BatchID           BatchID
	Date              time.Time // civil date, midnight local
	Start             string    // "HH:MM", empty = unset
	End               string    // "HH:MM", empty = unset
	Category          string
	LunchPlan         LunchPlan
	CountsTowardHours bool // meals etc. are excluded from compensation
	AttendanceEnabled bool
}

// IsWeekend evaluates the session's day-of-week in the local civil calendar.
func (s TrainingSession) IsWeekend() bool {
	wd := s.Date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// =============================================================================
// ATTENDANCE OUTCOME - Read-only input to the compensation ledger
// =============================================================================

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendancePending AttendanceStatus = "PENDING"
)

// AttendanceOutcome records presence per (trainee, session). EarlyLeave is an
// optional "HH:MM" clock time; when set, billable hours are truncated to it.
type AttendanceOutcome struct {
	TraineeID  TraineeID
	SessionID  SessionID
	Status     AttendanceStatus
	Reason     string
	EarlyLeave string // "HH:MM", empty = none
}

// =============================================================================
// COLLABORATOR INTERFACES - Owned by the surrounding CRUD system
// =============================================================================

// Directory is the read-only batch/trainee listing the engine consumes.
type Directory interface {
	GetBatch(ctx context.Context, id BatchID) (*Batch, error)
	GetTrainee(ctx context.Context, id TraineeID) (*Trainee, error)

	// ListTrainees returns the trainees assigned to a batch.
	ListTrainees(ctx context.Context, batch BatchID) ([]Trainee, error)

	// ListSessions returns all sessions of a batch, counting or not.
	ListSessions(ctx context.Context, batch BatchID) ([]TrainingSession, error)
}

// AttendanceSource exposes per-session attendance outcomes. A nil outcome
// means nothing was reported yet; callers treat that as PENDING.
type AttendanceSource interface {
	GetOutcome(ctx context.Context, trainee TraineeID, session SessionID) (*AttendanceOutcome, error)

	// ListOutcomes returns every outcome recorded for a trainee in a batch.
	ListOutcomes(ctx context.Context, batch BatchID, trainee TraineeID) ([]AttendanceOutcome, error)
}
