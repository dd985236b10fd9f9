package roster

import (
	"errors"
	"fmt"
)

// ErrValidation is the sentinel for malformed input. Wrap with
// ValidationError for field context; match with errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a malformed field value (bad clock time, missing
// required field). It is a client error, never a system failure.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ParseClock parses a same-day "HH:MM" clock time into minutes since
// midnight. The empty string is NOT accepted here; callers decide what an
// unset time means (the schedule calculator treats it as zero hours).
func ParseClock(s string) (int, error) {
	var h, m int
	if len(s) != 5 || s[2] != ':' {
		return 0, &ValidationError{Field: "clock", Value: s, Msg: "want HH:MM"}
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, &ValidationError{Field: "clock", Value: s, Msg: "want HH:MM"}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, &ValidationError{Field: "clock", Value: s, Msg: "out of range"}
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight back to "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
