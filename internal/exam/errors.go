package exam

import (
	"errors"
	"fmt"
)

// ErrLoadFailure matches every *LoadError via errors.Is.
var ErrLoadFailure = errors.New("exam load failed")

// Load failure reasons.
const (
	ReasonInvalidID         = "invalid_id"
	ReasonNetwork           = "network"
	ReasonNotFound          = "not_found"
	ReasonUnavailable       = "unavailable"
	ReasonInvalidDefinition = "invalid_definition"
	ReasonBackend           = "backend"
)

// LoadError describes why an exam could not be loaded. Loads are never retried automatically.
type LoadError struct {
	ExamID int64
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load exam %d: %s", e.ExamID, e.Reason)
	}
	return fmt.Sprintf("load exam %d: %s: %v", e.ExamID, e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrLoadFailure
}
