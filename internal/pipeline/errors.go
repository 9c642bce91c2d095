package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessingFailed is matched by every *ProcessingError.
	ErrProcessingFailed = errors.New("meal processing failed")

	// ErrInFlight means another delivery is still working on the meal.
	ErrInFlight = errors.New("meal processing already in flight")
)

// ProcessingError reports a failed attempt after the meal was persisted as failed.
type ProcessingError struct {
	MealID string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing meal %s: %v", e.MealID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) Is(target error) bool { return target == ErrProcessingFailed }
