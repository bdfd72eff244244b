package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/internal/metrickeys"
	"github.com/cschleiden/go-taskflow/log"
	"github.com/cschleiden/go-taskflow/metrics"
)

// RetryableTask runs its child again when it terminates unsuccessfully, waiting an exponentially
// growing delay between attempts. The exit status is the one of the last attempt.
type RetryableTask struct {
	execution

	child       Task
	maxAttempts int
	backoff     *backoff.ExponentialBackOff

	attempts int
	retryAt  time.Time
}

var _ Task = (*RetryableTask)(nil)

func NewRetryable(name string, child Task, opts ...Option) (*RetryableTask, error) {
	o := applyOptions(opts)

	multiplier := o.Retry.BackoffCoefficient
	if multiplier < 1 {
		multiplier = 1
	}

	maxInterval := o.Retry.MaxRetryInterval
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     o.Retry.FirstRetryInterval,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               o.Clock,
	}
	b.Reset()

	r := &RetryableTask{
		child:       child,
		maxAttempts: o.Retry.MaxAttempts,
		backoff:     b,
	}
	r.init(r, name, KindRetryable, o)

	if err := attach(r, child); err != nil {
		return nil, fmt.Errorf("retryable task %q: %w", name, err)
	}

	return r, nil
}

func (r *RetryableTask) Children() []Task {
	return []Task{r.child}
}

// Attempts returns the number of times the child was started in the current run.
func (r *RetryableTask) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.attempts
}

func (r *RetryableTask) Submit(ctx context.Context, c Controller) error {
	r.op.Lock()
	defer r.op.Unlock()

	if r.State() != core.StateNew {
		return r.invalid("submit")
	}

	r.bind(c)

	if err := r.transition(core.StateSubmitted, ""); err != nil {
		return err
	}

	return r.start(ctx, c)
}

// start submits the child if it is due and admitted.
func (r *RetryableTask) start(ctx context.Context, c Controller) error {
	if r.child.State() != core.StateNew {
		return nil
	}

	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if r.clock.Now().Before(retryAt) || !c.Admit(r.child) {
		return nil
	}

	if err := r.child.Submit(ctx, c); err != nil {
		return err
	}

	r.mu.Lock()
	r.attempts++
	r.version++
	r.mu.Unlock()

	return nil
}

func (r *RetryableTask) UpdateState(ctx context.Context, c Controller) (core.State, error) {
	r.op.Lock()
	defer r.op.Unlock()

	state := r.State()
	if state == core.StateNew || state.Terminal() {
		return state, nil
	}

	if err := r.start(ctx, c); err != nil {
		return state, err
	}

	if _, err := r.child.UpdateState(ctx, c); err != nil {
		return r.State(), err
	}

	cs := r.child.State()
	switch {
	case cs == core.StateStopped:
		r.follow(core.StateStopped)
		return r.State(), nil
	case cs != core.StateNew:
		r.follow(core.StateRunning)
	}

	if !cs.Terminal() {
		return r.State(), nil
	}

	exit := r.child.ExitStatus()
	attempts := r.Attempts()

	if exit.Succeeded() || attempts >= r.maxAttempts {
		return core.StateTerminated, r.terminate(exit)
	}

	delay := r.backoff.NextBackOff()
	if delay == backoff.Stop {
		return core.StateTerminated, r.terminate(exit)
	}

	r.taskLogger().Debug("retrying task",
		log.AttemptKey, attempts,
		log.ExitCodeKey, exit.Code,
		log.DurationKey, delay.Milliseconds(),
	)

	c.Backend().Metrics().Counter(metrickeys.TaskRetried, metrics.Tags{metrickeys.Kind: string(r.child.Kind())}, 1)

	r.mu.Lock()
	r.retryAt = r.clock.Now().Add(delay)
	r.mu.Unlock()

	if err := r.child.Redo(); err != nil {
		r.taskLogger().Error("cannot redo child", "error", err)
		return core.StateTerminated, r.terminate(core.FailedWith(core.ExitCodeSoftware, err))
	}

	if err := r.start(ctx, c); err != nil {
		return r.State(), err
	}

	return r.State(), nil
}

func (r *RetryableTask) follow(target core.State) {
	if err := r.transition(target, ""); err != nil {
		r.taskLogger().Debug("cannot follow child state", "error", err)
	}
}

func (r *RetryableTask) Kill(ctx context.Context, c Controller) error {
	r.op.Lock()
	defer r.op.Unlock()

	if r.State().Terminal() {
		return nil
	}

	if err := killAll(ctx, c, []Task{r.child}); err != nil {
		return err
	}

	return r.terminate(core.Killed())
}

func (r *RetryableTask) Redo() error {
	r.op.Lock()
	defer r.op.Unlock()

	if r.State() != core.StateTerminated {
		return r.invalid("redo")
	}

	if r.child.State() == core.StateTerminated {
		if err := r.child.Redo(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.attempts = 0
	r.retryAt = time.Time{}
	r.mu.Unlock()

	r.backoff.Reset()

	return r.transition(core.StateNew, "redo")
}
