// Package tester provides a scripted, deterministic backend for testing workflows without
// executing anything.
package tester

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/internal/metrickeys"
	"github.com/cschleiden/go-taskflow/metrics"
	"go.opentelemetry.io/otel/trace"
)

// Script describes how a job behaves. Every Poll consumes the next entry of States; once
// States is exhausted the job is done with ExitCode, unless Hold is set, in which case it
// keeps reporting the last state until Finish is called.
type Script struct {
	States   []backend.JobState
	ExitCode int
	Hold     bool

	// SubmitErr fails the submission
	SubmitErr error

	// PollErrs is the number of polls failing with PollErr before the states are reported
	PollErrs int
	PollErr  error

	FetchErr error
	Data     []byte
}

// Running reports the job running for n polls and then done with exitCode.
func Running(n, exitCode int) Script {
	states := make([]backend.JobState, n)
	for i := range states {
		states[i] = backend.JobRunning
	}

	return Script{States: states, ExitCode: exitCode}
}

// Blocked reports the job running until it is finished or killed.
func Blocked() Script {
	return Script{States: []backend.JobState{backend.JobRunning}, Hold: true}
}

// Call is a recorded backend call.
type Call struct {
	Op      string
	Handle  backend.Handle
	Command string
}

type job struct {
	handle backend.Handle
	spec   backend.JobSpec
	script Script

	polls    int
	pollErrs int
	state    backend.JobState
	exitCode int
	freed    bool
}

var _ backend.Backend = (*Backend)(nil)

type Backend struct {
	options *options

	mu     sync.Mutex
	next   int
	jobs   map[backend.Handle]*job
	order  []backend.Handle
	calls  []Call
	closed bool

	active    int
	maxActive int
}

func NewBackend(opts ...BackendOption) *Backend {
	bo := backend.ApplyOptions()
	options := &options{
		Options: &bo,
		Scripts: map[string]Script{},
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Backend{
		options: options,
		jobs:    map[backend.Handle]*job{},
	}
}

func (b *Backend) Name() string {
	return "tester"
}

func (b *Backend) Logger() *slog.Logger {
	return b.options.Logger
}

func (b *Backend) Tracer() trace.Tracer {
	return b.options.TracerProvider.Tracer(backend.TracerName)
}

func (b *Backend) Metrics() metrics.Client {
	return b.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "tester"})
}

func (b *Backend) Options() *backend.Options {
	return b.options.Options
}

func (b *Backend) script(command string) Script {
	if s, ok := b.options.Scripts[command]; ok {
		return s
	}

	return b.options.DefaultScript
}

func (b *Backend) record(op string, h backend.Handle, command string) {
	b.calls = append(b.calls, Call{Op: op, Handle: h, Command: command})
}

func (b *Backend) Submit(ctx context.Context, spec backend.JobSpec) (backend.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record("submit", "", spec.Command())

	if b.closed {
		return "", backend.ErrBackendClosed
	}

	s := b.script(spec.Command())
	if s.SubmitErr != nil {
		return "", s.SubmitErr
	}

	b.next++
	h := backend.Handle(fmt.Sprintf("%s-%d", spec.Command(), b.next))
	b.jobs[h] = &job{
		handle: h,
		spec:   spec,
		script: s,
		state:  backend.JobPending,
	}
	b.order = append(b.order, h)

	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}

	return h, nil
}

func (b *Backend) lookup(h backend.Handle) (*job, error) {
	j, ok := b.jobs[h]
	if !ok || j.freed {
		return nil, fmt.Errorf("%w: %v", backend.ErrJobNotFound, h)
	}

	return j, nil
}

func (b *Backend) done(j *job, code int) {
	if j.state == backend.JobDone {
		return
	}

	j.state = backend.JobDone
	j.exitCode = code
	b.active--
}

func (b *Backend) Poll(ctx context.Context, h backend.Handle) (backend.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, err := b.lookup(h)
	if err != nil {
		return backend.Status{}, err
	}

	b.record("poll", h, j.spec.Command())

	if j.state == backend.JobDone {
		return backend.Status{State: j.state, ExitCode: j.exitCode}, nil
	}

	if j.pollErrs < j.script.PollErrs {
		j.pollErrs++

		perr := j.script.PollErr
		if perr == nil {
			perr = fmt.Errorf("polling %v failed", h)
		}

		return backend.Status{}, perr
	}

	switch {
	case j.polls < len(j.script.States):
		j.state = j.script.States[j.polls]
		j.polls++
		if j.state == backend.JobDone {
			b.done(j, j.script.ExitCode)
		}
	case !j.script.Hold:
		b.done(j, j.script.ExitCode)
	}

	return backend.Status{State: j.state, ExitCode: j.exitCode}, nil
}

func (b *Backend) FetchOutput(ctx context.Context, h backend.Handle) (*backend.Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, err := b.lookup(h)
	if err != nil {
		return nil, err
	}

	b.record("fetch", h, j.spec.Command())

	if j.state != backend.JobDone {
		return nil, backend.ErrJobNotDone
	}

	if j.script.FetchErr != nil {
		return nil, j.script.FetchErr
	}

	return &backend.Output{Dir: j.spec.OutputDir, Data: j.script.Data}, nil
}

func (b *Backend) Kill(ctx context.Context, h backend.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, err := b.lookup(h)
	if err != nil {
		return err
	}

	b.record("kill", h, j.spec.Command())
	b.done(j, core.ExitCodeKilled)

	return nil
}

func (b *Backend) Free(ctx context.Context, h backend.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, err := b.lookup(h)
	if err != nil {
		return err
	}

	b.record("free", h, j.spec.Command())
	b.done(j, j.exitCode)
	j.freed = true

	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}

// Finish completes a held job with the given exit code.
func (b *Backend) Finish(h backend.Handle, exitCode int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, err := b.lookup(h)
	if err != nil {
		return err
	}

	b.done(j, exitCode)

	return nil
}

// Handles returns the handles of all jobs submitted for command, in submission order.
func (b *Backend) Handles(command string) []backend.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	var r []backend.Handle
	for _, h := range b.order {
		if b.jobs[h].spec.Command() == command {
			r = append(r, h)
		}
	}

	return r
}

// Calls returns all recorded calls of the given operation, or all calls if op is empty.
func (b *Backend) Calls(op string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()

	var r []Call
	for _, c := range b.calls {
		if op == "" || c.Op == op {
			r = append(r, c)
		}
	}

	return r
}

// Submitted returns the commands of all successfully submitted jobs in submission order.
func (b *Backend) Submitted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := make([]string, 0, len(b.order))
	for _, h := range b.order {
		r = append(r, b.jobs[h].spec.Command())
	}

	return r
}

// MaxActive returns the highest number of jobs submitted but not yet done at any time.
func (b *Backend) MaxActive() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.maxActive
}
