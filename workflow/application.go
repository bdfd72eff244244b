package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/internal/metrickeys"
	"github.com/cschleiden/go-taskflow/log"
	"github.com/cschleiden/go-taskflow/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Application is a task running a single job on the backend.
type Application struct {
	execution

	spec            backend.JobSpec
	maxPollFailures int

	handle       backend.Handle
	pollFailures int
	status       backend.Status
	output       *backend.Output
}

var _ Task = (*Application)(nil)

func NewApplication(name string, spec backend.JobSpec, opts ...Option) (*Application, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("application %q: %w", name, err)
	}

	o := applyOptions(opts)

	a := &Application{
		spec:            spec,
		maxPollFailures: o.MaxPollFailures,
	}
	a.init(a, name, KindApplication, o)

	return a, nil
}

func (a *Application) Spec() backend.JobSpec {
	return a.spec
}

// Handle returns the backend handle of the current run, empty if the application was not submitted.
func (a *Application) Handle() backend.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.handle
}

// Output returns the output retrieved from the backend once the application terminated successfully.
func (a *Application) Output() *backend.Output {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.output
}

func (a *Application) Children() []Task {
	return nil
}

func (a *Application) Submit(ctx context.Context, c Controller) error {
	a.op.Lock()
	defer a.op.Unlock()

	if a.State() != core.StateNew {
		return a.invalid("submit")
	}

	a.bind(c)
	b := c.Backend()

	ctx, span := b.Tracer().Start(ctx, "Application.Submit", trace.WithAttributes(
		attribute.String(log.TaskIDKey, a.id),
		attribute.String(log.TaskNameKey, a.name),
		attribute.String(log.BackendKey, b.Name()),
	))
	defer span.End()

	h, err := b.Submit(ctx, a.spec)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		a.taskLogger().Warn("submitting job failed", "error", err)

		return a.terminate(core.FailedWith(core.ExitCodeUnavailable, &core.BackendFailure{Op: "submit", Err: err}))
	}

	span.SetAttributes(attribute.String(log.HandleKey, string(h)))

	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()

	b.Metrics().Counter(metrickeys.TaskSubmitted, metrics.Tags{metrickeys.Kind: string(KindApplication)}, 1)

	return a.transition(core.StateSubmitted, "submitted as "+string(h))
}

func (a *Application) UpdateState(ctx context.Context, c Controller) (core.State, error) {
	a.op.Lock()
	defer a.op.Unlock()

	state := a.State()
	switch state {
	case core.StateNew, core.StateTerminated:
		return state, nil
	case core.StateTerminating:
		// Fetching the output was interrupted before
		return a.collect(ctx, c.Backend())
	}

	b := c.Backend()
	h := a.Handle()

	status, err := b.Poll(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}

		a.pollFailures++
		a.taskLogger().Warn("polling job failed",
			log.HandleKey, h,
			log.AttemptKey, a.pollFailures,
			"error", err,
		)

		if a.pollFailures < a.maxPollFailures {
			return state, nil
		}

		a.release(ctx, b, h)

		return core.StateTerminated, a.terminate(core.FailedWith(
			core.ExitCodeUnavailable,
			&core.BackendFailure{Op: "poll", Err: fmt.Errorf("%d consecutive failures: %w", a.pollFailures, err)},
		))
	}

	a.pollFailures = 0

	switch status.State {
	case backend.JobPending:
	case backend.JobRunning:
		if err := a.transition(core.StateRunning, ""); err != nil {
			return state, err
		}
	case backend.JobStopped:
		if err := a.transition(core.StateStopped, status.Message); err != nil {
			return state, err
		}
	case backend.JobDone:
		a.status = status

		// Every finished job passes through RUNNING, even if it was never observed running.
		if err := a.transition(core.StateRunning, ""); err != nil {
			return state, err
		}

		if err := a.transition(core.StateTerminating, "fetching output"); err != nil {
			return state, err
		}

		return a.collect(ctx, b)
	}

	return a.State(), nil
}

// collect fetches the output of the finished job and terminates the application.
func (a *Application) collect(ctx context.Context, b backend.Backend) (core.State, error) {
	h := a.Handle()

	out, err := b.FetchOutput(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return core.StateTerminating, ctx.Err()
		}

		a.taskLogger().Warn("fetching output failed", log.HandleKey, h, "error", err)
		a.release(ctx, b, h)

		return core.StateTerminated, a.terminate(core.FailedWith(
			core.ExitCodeIOError,
			&core.BackendFailure{Op: "fetch output", Err: err},
		))
	}

	a.mu.Lock()
	a.output = out
	a.mu.Unlock()

	a.release(ctx, b, h)

	exit := core.Success()
	if a.status.ExitCode != core.ExitCodeSuccess {
		reason := a.status.Message
		if reason == "" {
			reason = fmt.Sprintf("job exited with code %d", a.status.ExitCode)
		}

		exit = core.Failed(a.status.ExitCode, reason)
	}

	return core.StateTerminated, a.terminate(exit)
}

// release frees the job on the backend. Failures only leak backend resources and are logged.
func (a *Application) release(ctx context.Context, b backend.Backend, h backend.Handle) {
	if err := b.Free(ctx, h); err != nil && !errors.Is(err, backend.ErrJobNotFound) {
		a.taskLogger().Warn("freeing job failed", log.HandleKey, h, "error", err)
	}
}

func (a *Application) Kill(ctx context.Context, c Controller) error {
	a.op.Lock()
	defer a.op.Unlock()

	state := a.State()
	if state.Terminal() {
		return nil
	}

	b := c.Backend()

	if state != core.StateNew {
		h := a.Handle()
		if err := b.Kill(ctx, h); err != nil {
			a.taskLogger().Warn("killing job failed", log.HandleKey, h, "error", err)
		}

		a.release(ctx, b, h)
	}

	b.Metrics().Counter(metrickeys.TaskKilled, metrics.Tags{metrickeys.Kind: string(KindApplication)}, 1)

	return a.terminate(core.Killed())
}

func (a *Application) Redo() error {
	a.op.Lock()
	defer a.op.Unlock()

	if a.State() != core.StateTerminated {
		return a.invalid("redo")
	}

	a.mu.Lock()
	a.handle = ""
	a.output = nil
	a.status = backend.Status{}
	a.mu.Unlock()

	a.pollFailures = 0

	return a.transition(core.StateNew, "redo")
}
