// Package workflow runs ordered, individually retried steps. A step that
// still fails after its retries stops the run; completed steps stay done.
package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError reports the step that stopped a run.
type StepError struct {
	Step      string
	Attempts  int
	Completed []string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type Runner struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewRunner returns a runner with three attempts per step.
func NewRunner() *Runner {
	return &Runner{Attempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

func (r *Runner) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.InitialInterval
	exp.MaxInterval = r.MaxInterval
	exp.MaxElapsedTime = 0
	retries := r.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Run executes steps in order and returns the names of those that completed.
func (r *Runner) Run(ctx context.Context, name string, steps []Step) ([]string, error) {
	completed := make([]string, 0, len(steps))
	for _, step := range steps {
		attempts := 0
		op := func() error {
			attempts++
			return step.Run(ctx)
		}
		notify := func(err error, wait time.Duration) {
			log.Printf("workflow %s: step %s attempt %d failed, retrying in %s: %v", name, step.Name, attempts, wait, err)
		}
		if err := backoff.RetryNotify(op, r.policy(ctx), notify); err != nil {
			return completed, &StepError{Step: step.Name, Attempts: attempts, Completed: completed, Err: err}
		}
		completed = append(completed, step.Name)
	}
	return completed, nil
}
