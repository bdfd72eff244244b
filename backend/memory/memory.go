// Package memory provides an in-process backend that runs registered Go functions as jobs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/internal/metrickeys"
	"github.com/cschleiden/go-taskflow/internal/slots"
	"github.com/cschleiden/go-taskflow/log"
	"github.com/cschleiden/go-taskflow/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// JobFunc executes a job. The returned data is made available as the job's output. Returning an
// *ExitError selects the exit code, any other error results in exit code 1.
type JobFunc func(ctx context.Context, spec backend.JobSpec) ([]byte, error)

// ExitError terminates a job with a specific exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}

	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type job struct {
	handle backend.Handle
	spec   backend.JobSpec
	fn     JobFunc
	cancel context.CancelFunc

	mu         sync.Mutex
	state      backend.JobState
	exitCode   int
	message    string
	data       []byte
	startedAt  time.Time
	finishedAt time.Time
}

func (j *job) status() backend.Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	return backend.Status{State: j.state, ExitCode: j.exitCode, Message: j.message}
}

// finish records the outcome unless the job already finished, e.g. because it was killed.
func (j *job) finish(now time.Time, code int, message string, data []byte) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == backend.JobDone {
		return false
	}

	j.state = backend.JobDone
	j.exitCode = code
	j.message = message
	j.data = data
	j.finishedAt = now

	return true
}

var _ backend.Backend = (*memoryBackend)(nil)

type memoryBackend struct {
	options *options
	slots   *slots.Slots

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[backend.Handle]*job
	closed bool
}

func NewMemoryBackend(opts ...option) *memoryBackend {
	bo := backend.ApplyOptions()
	options := &options{
		Options: &bo,
		jobs:    map[string]JobFunc{},
	}

	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &memoryBackend{
		options: options,
		slots:   slots.New(options.MaxParallelJobs),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    map[backend.Handle]*job{},
	}
}

func (mb *memoryBackend) Name() string {
	return "memory"
}

func (mb *memoryBackend) Logger() *slog.Logger {
	return mb.options.Logger
}

func (mb *memoryBackend) Tracer() trace.Tracer {
	return mb.options.TracerProvider.Tracer(backend.TracerName)
}

func (mb *memoryBackend) Metrics() metrics.Client {
	return mb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "memory"})
}

func (mb *memoryBackend) Options() *backend.Options {
	return mb.options.Options
}

func (mb *memoryBackend) Submit(ctx context.Context, spec backend.JobSpec) (backend.Handle, error) {
	fn, ok := mb.options.jobs[spec.Command()]
	if !ok {
		return "", fmt.Errorf("%w: %q", backend.ErrUnknownJob, spec.Command())
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return "", backend.ErrBackendClosed
	}

	jobCtx, cancel := context.WithCancel(mb.ctx)
	j := &job{
		handle: backend.Handle(uuid.NewString()),
		spec:   spec,
		fn:     fn,
		cancel: cancel,
		state:  backend.JobPending,
	}
	mb.jobs[j.handle] = j

	mb.wg.Add(1)
	go mb.run(jobCtx, j)

	return j.handle, nil
}

func (mb *memoryBackend) run(ctx context.Context, j *job) {
	defer mb.wg.Done()
	defer j.cancel()

	if err := mb.slots.Reserve(ctx); err != nil {
		j.finish(mb.options.Clock.Now(), core.ExitCodeKilled, "killed before start", nil)
		return
	}
	defer mb.slots.Release()

	j.mu.Lock()
	if j.state == backend.JobDone {
		// Killed while waiting for a slot
		j.mu.Unlock()
		return
	}
	j.state = backend.JobRunning
	j.startedAt = mb.options.Clock.Now()
	j.mu.Unlock()

	mb.Metrics().Counter(metrickeys.JobStarted, metrics.Tags{}, 1)

	data, err := mb.execute(ctx, j)

	code, message := core.ExitCodeSuccess, ""
	if err != nil {
		code, message = exitCode(ctx, err), err.Error()
	}

	if j.finish(mb.options.Clock.Now(), code, message, data) {
		j.mu.Lock()
		duration := j.finishedAt.Sub(j.startedAt)
		j.mu.Unlock()

		mb.Metrics().Counter(metrickeys.JobFinished, metrics.Tags{}, 1)
		mb.Metrics().Timing(metrickeys.JobDuration, metrics.Tags{}, duration)
	}
}

func (mb *memoryBackend) execute(ctx context.Context, j *job) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := core.NewPanicError(r)
			mb.options.Logger.Error("job panicked",
				log.HandleKey, j.handle,
				"error", pe.Error(),
				"stacktrace", pe.Stacktrace(),
			)

			data, err = nil, &ExitError{Code: core.ExitCodeSoftware, Err: pe}
		}
	}()

	return j.fn(ctx, j.spec)
}

func exitCode(ctx context.Context, err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}

	if ctx.Err() != nil {
		return core.ExitCodeKilled
	}

	return core.ExitCodeFailure
}

func (mb *memoryBackend) lookup(h backend.Handle) (*job, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	j, ok := mb.jobs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", backend.ErrJobNotFound, h)
	}

	return j, nil
}

func (mb *memoryBackend) Poll(ctx context.Context, h backend.Handle) (backend.Status, error) {
	j, err := mb.lookup(h)
	if err != nil {
		return backend.Status{}, err
	}

	return j.status(), nil
}

func (mb *memoryBackend) FetchOutput(ctx context.Context, h backend.Handle) (*backend.Output, error) {
	j, err := mb.lookup(h)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != backend.JobDone {
		return nil, backend.ErrJobNotDone
	}

	return &backend.Output{
		Dir:  j.spec.OutputDir,
		Data: j.data,
	}, nil
}

func (mb *memoryBackend) Kill(ctx context.Context, h backend.Handle) error {
	j, err := mb.lookup(h)
	if err != nil {
		return err
	}

	j.finish(mb.options.Clock.Now(), core.ExitCodeKilled, "killed", nil)
	j.cancel()

	return nil
}

func (mb *memoryBackend) Free(ctx context.Context, h backend.Handle) error {
	j, err := mb.lookup(h)
	if err != nil {
		return err
	}

	j.cancel()

	mb.mu.Lock()
	delete(mb.jobs, h)
	mb.mu.Unlock()

	return nil
}

// Close cancels all jobs and waits for their functions to return.
func (mb *memoryBackend) Close() error {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()

	mb.cancel()
	mb.wg.Wait()

	return nil
}
