package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCriticalInconsistency marks a failed operation whose rollback also failed.
// The ledgers involved are known to disagree and need manual reconciliation.
var ErrCriticalInconsistency = errors.New("critical inconsistency")

// Step is one reversible write. Undo may be nil for steps without side effects
// or whose effect is repaired by the saga's OnCompensated hook.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// StepError reports which step of an operation failed.
type StepError struct {
	Operation string
	Step      string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Operation, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// UndoFailure is one compensating action that did not succeed.
type UndoFailure struct {
	Step string
	Err  error
}

// CompensationError is returned when an operation failed and at least one
// compensating action failed too.
type CompensationError struct {
	Operation string
	Cause     error
	Failed    []UndoFailure
}

func (e *CompensationError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s (%v)", f.Step, f.Err))
	}
	return fmt.Sprintf("%s: %s: compensation failed for %s after: %v",
		e.Operation, ErrCriticalInconsistency, strings.Join(parts, "; "), e.Cause)
}

// Unwrap exposes both the sentinel and the original failure to errors.Is/As.
func (e *CompensationError) Unwrap() []error {
	return []error{ErrCriticalInconsistency, e.Cause}
}

// Saga runs steps strictly in order and undoes completed steps in reverse on failure.
type Saga struct {
	Name  string
	Steps []Step
	// OnCompensated runs after every undo succeeded, and only when at least one
	// step had completed. A failure here is treated as a compensation failure.
	OnCompensated func(ctx context.Context) error
}

// Add appends a step.
func (s *Saga) Add(name string, do, undo func(ctx context.Context) error) {
	s.Steps = append(s.Steps, Step{Name: name, Do: do, Undo: undo})
}

// Run executes the saga. It returns nil, the failing step's *StepError after a
// clean rollback, or a *CompensationError. No step is retried.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.Steps {
		err := step.Do(ctx)
		if err == nil {
			continue
		}
		cause := &StepError{Operation: s.Name, Step: step.Name, Err: err}
		failed := s.compensate(ctx, i)
		if i > 0 && len(failed) == 0 && s.OnCompensated != nil {
			if hookErr := s.OnCompensated(ctx); hookErr != nil {
				failed = append(failed, UndoFailure{Step: "resynchronise balances", Err: hookErr})
			}
		}
		if len(failed) > 0 {
			return &CompensationError{Operation: s.Name, Cause: cause, Failed: failed}
		}
		return cause
	}
	return nil
}

// compensate undoes steps [0, failedAt) in reverse order, attempting every undo
// even after one fails.
func (s *Saga) compensate(ctx context.Context, failedAt int) []UndoFailure {
	var failed []UndoFailure
	for i := failedAt - 1; i >= 0; i-- {
		step := s.Steps[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil {
			failed = append(failed, UndoFailure{Step: step.Name, Err: err})
		}
	}
	return failed
}
