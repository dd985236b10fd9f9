package commuting

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange matches any geofence rejection by distance.
	ErrOutOfRange = errors.New("position outside every active geofence")

	// ErrNoActiveLocation matches the fail-closed rejection when no
	// reference location is active.
	ErrNoActiveLocation = errors.New("no active reference location")

	// ErrSequence matches any check-in/check-out ordering violation.
	ErrSequence = errors.New("commuting sequence violation")
)

// OutOfRangeError carries the nearest active location's distance so the
// rejection message can say how far off the trainee was.
type OutOfRangeError struct {
	NearestMeters float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("position out of range: nearest active location %.0fm away", e.NearestMeters)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }

// NoActiveLocationError is the fail-closed rejection.
type NoActiveLocationError struct{}

func (e *NoActiveLocationError) Error() string { return "no active reference location registered" }

func (e *NoActiveLocationError) Unwrap() error { return ErrNoActiveLocation }

// SequenceError reports an invalid check-in/check-out order, e.g. a
// check-out with no prior check-in that day, or a second check-in.
type SequenceError struct {
	Msg string
}

func (e *SequenceError) Error() string { return e.Msg }

func (e *SequenceError) Unwrap() error { return ErrSequence }
