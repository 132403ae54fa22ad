package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/verifact/internal/events"
)

var (
	// ErrInvalidConfig is wrapped by validation errors about Config.
	ErrInvalidConfig = errors.New("invalid pipeline config")

	// ErrInvalidInput is wrapped by validation errors about the input text.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRunTimeout is the cancellation cause when a run exceeds its
	// deadline. Wait returns it only with RaiseOnError and zero verdicts.
	ErrRunTimeout = errors.New("run timed out")

	// ErrRunCancelled is the cancellation cause set by Run.Cancel.
	ErrRunCancelled = errors.New("run cancelled")
)

// ValidationError reports a rejected config field or input. It is returned
// before any stage is called.
type ValidationError struct {
	Field  string
	Reason string
	kind   error
}

func invalidConfig(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), kind: ErrInvalidConfig}
}

func invalidInput(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), kind: ErrInvalidInput}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

// StageError describes a stage call that failed for good. ClaimIndex is
// events.NoClaim for claim detection.
type StageError struct {
	Stage      events.Stage
	ClaimIndex int
	Claim      string
	Attempts   int
	Elapsed    time.Duration
	Err        error
}

func (e *StageError) Error() string {
	if e.ClaimIndex == events.NoClaim {
		return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed for claim %d %q after %d attempt(s): %v",
		e.Stage, e.ClaimIndex, e.Claim, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
