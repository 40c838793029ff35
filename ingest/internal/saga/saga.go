// Package saga runs an ordered list of reversible steps. When a step fails,
// the steps that already completed are undone in reverse order.
package saga

import (
	"context"
	"fmt"
)

// Step is one reversible action. Undo may be nil for steps with nothing to revert.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// StepError identifies the step whose Do failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Saga executes its steps in order.
type Saga struct {
	steps []Step

	// OnCompensationError observes Undo failures. They never replace the step error.
	OnCompensationError func(step string, err error)
}

func New(steps ...Step) *Saga {
	return &Saga{steps: steps}
}

// Run executes every step. On the first failure it compensates and returns a *StepError.
// Compensation runs on a context that is not cancelled with ctx.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Do(ctx); err != nil {
			s.compensate(context.WithoutCancel(ctx), i)
			return &StepError{Step: step.Name, Err: err}
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, failed int) {
	for j := failed - 1; j >= 0; j-- {
		undo := s.steps[j].Undo
		if undo == nil {
			continue
		}
		if err := undo(ctx); err != nil && s.OnCompensationError != nil {
			s.OnCompensationError(s.steps[j].Name, err)
		}
	}
}
