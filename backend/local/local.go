// Package local provides a backend running jobs as processes on the local machine.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/internal/metrickeys"
	"github.com/cschleiden/go-taskflow/internal/slots"
	"github.com/cschleiden/go-taskflow/log"
	"github.com/cschleiden/go-taskflow/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type process struct {
	handle  backend.Handle
	spec    backend.JobSpec
	workDir string
	cancel  context.CancelFunc

	mu       sync.Mutex
	state    backend.JobState
	exitCode int
	message  string
}

func (p *process) status() backend.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return backend.Status{State: p.state, ExitCode: p.exitCode, Message: p.message}
}

func (p *process) finish(code int, message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == backend.JobDone {
		return false
	}

	p.state = backend.JobDone
	p.exitCode = code
	p.message = message

	return true
}

var _ backend.Backend = (*localBackend)(nil)

type localBackend struct {
	options *options
	slots   *slots.Slots

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	processes map[backend.Handle]*process
	closed    bool
}

// NewLocalBackend creates a backend that runs every job in its own working directory below the
// configured base directory.
func NewLocalBackend(opts ...option) (*localBackend, error) {
	bo := backend.ApplyOptions()
	options := &options{
		Options: &bo,
		BaseDir: filepath.Join(os.TempDir(), "taskflow"),
	}

	for _, opt := range opts {
		opt(options)
	}

	if err := os.MkdirAll(options.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &localBackend{
		options:   options,
		slots:     slots.New(options.MaxParallelJobs),
		ctx:       ctx,
		cancel:    cancel,
		processes: map[backend.Handle]*process{},
	}, nil
}

func (lb *localBackend) Name() string {
	return "local"
}

func (lb *localBackend) Logger() *slog.Logger {
	return lb.options.Logger
}

func (lb *localBackend) Tracer() trace.Tracer {
	return lb.options.TracerProvider.Tracer(backend.TracerName)
}

func (lb *localBackend) Metrics() metrics.Client {
	return lb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "local"})
}

func (lb *localBackend) Options() *backend.Options {
	return lb.options.Options
}

func (lb *localBackend) Submit(ctx context.Context, spec backend.JobSpec) (backend.Handle, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	if _, err := exec.LookPath(spec.Command()); err != nil {
		return "", fmt.Errorf("looking up command: %w", err)
	}

	h := backend.Handle(uuid.NewString())
	workDir := filepath.Join(lb.options.BaseDir, string(h))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("creating working directory: %w", err)
	}

	if err := stageInputs(spec.Inputs, workDir); err != nil {
		os.RemoveAll(workDir)
		return "", fmt.Errorf("staging inputs: %w", err)
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.closed {
		os.RemoveAll(workDir)
		return "", backend.ErrBackendClosed
	}

	procCtx, cancel := context.WithCancel(lb.ctx)
	p := &process{
		handle:  h,
		spec:    spec,
		workDir: workDir,
		cancel:  cancel,
		state:   backend.JobPending,
	}
	lb.processes[h] = p

	lb.wg.Add(1)
	go lb.run(procCtx, p)

	return h, nil
}

func (lb *localBackend) run(ctx context.Context, p *process) {
	defer lb.wg.Done()
	defer p.cancel()

	if err := lb.slots.Reserve(ctx); err != nil {
		p.finish(core.ExitCodeKilled, "killed before start")
		return
	}
	defer lb.slots.Release()

	if p.spec.RequestedWalltime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.spec.RequestedWalltime)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.spec.Command(), p.spec.Arguments[1:]...)
	cmd.Dir = p.workDir
	cmd.Env = environ(p.spec.Environment)

	stdout, stderr, closeStreams, err := openStreams(p.workDir, p.spec)
	if err != nil {
		p.finish(core.ExitCodeIOError, err.Error())
		return
	}
	defer closeStreams()
	cmd.Stdout, cmd.Stderr = stdout, stderr

	p.mu.Lock()
	if p.state == backend.JobDone {
		p.mu.Unlock()
		return
	}
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		p.finish(core.ExitCodeUnavailable, err.Error())
		return
	}
	p.state = backend.JobRunning
	p.mu.Unlock()

	lb.Metrics().Counter(metrickeys.JobStarted, metrics.Tags{}, 1)

	err = cmd.Wait()

	code, message := core.ExitCodeSuccess, ""
	if err != nil {
		var ee *exec.ExitError
		switch {
		case ctx.Err() != nil:
			code, message = core.ExitCodeKilled, ctx.Err().Error()
		case errors.As(err, &ee):
			code, message = ee.ExitCode(), ee.Error()
		default:
			code, message = core.ExitCodeFailure, err.Error()
		}
	}

	if p.finish(code, message) {
		lb.Metrics().Counter(metrickeys.JobFinished, metrics.Tags{}, 1)
	}

	lb.options.Logger.Debug("process finished",
		log.HandleKey, p.handle,
		log.ExitCodeKey, code,
	)
}

func (lb *localBackend) lookup(h backend.Handle) (*process, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	p, ok := lb.processes[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", backend.ErrJobNotFound, h)
	}

	return p, nil
}

func (lb *localBackend) Poll(ctx context.Context, h backend.Handle) (backend.Status, error) {
	p, err := lb.lookup(h)
	if err != nil {
		return backend.Status{}, err
	}

	return p.status(), nil
}

// FetchOutput copies the declared outputs and the captured streams into the spec's output
// directory. Without an output directory the files are left in the working directory.
func (lb *localBackend) FetchOutput(ctx context.Context, h backend.Handle) (*backend.Output, error) {
	p, err := lb.lookup(h)
	if err != nil {
		return nil, err
	}

	if p.status().State != backend.JobDone {
		return nil, backend.ErrJobNotDone
	}

	names := append([]string{}, p.spec.Outputs...)
	for _, s := range []string{p.spec.Stdout, p.spec.Stderr} {
		if s != "" && !contains(names, s) {
			names = append(names, s)
		}
	}
	sort.Strings(names)

	dir := p.workDir
	if p.spec.OutputDir != "" {
		dir = p.spec.OutputDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	out := &backend.Output{Dir: dir}
	for _, name := range names {
		src := filepath.Join(p.workDir, name)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			if contains(p.spec.Outputs, name) {
				return nil, fmt.Errorf("output %q was not produced", name)
			}

			continue
		}

		dst := filepath.Join(dir, name)
		if dir != p.workDir {
			if err := copyFile(src, dst); err != nil {
				return nil, fmt.Errorf("retrieving %q: %w", name, err)
			}
		}

		out.Files = append(out.Files, dst)
	}

	return out, nil
}

func (lb *localBackend) Kill(ctx context.Context, h backend.Handle) error {
	p, err := lb.lookup(h)
	if err != nil {
		return err
	}

	p.finish(core.ExitCodeKilled, "killed")
	p.cancel()

	return nil
}

// Free removes the working directory of the job.
func (lb *localBackend) Free(ctx context.Context, h backend.Handle) error {
	p, err := lb.lookup(h)
	if err != nil {
		return err
	}

	p.cancel()

	lb.mu.Lock()
	delete(lb.processes, h)
	lb.mu.Unlock()

	if lb.options.KeepWorkDirs {
		return nil
	}

	return os.RemoveAll(p.workDir)
}

func (lb *localBackend) Close() error {
	lb.mu.Lock()
	lb.closed = true
	lb.mu.Unlock()

	lb.cancel()
	lb.wg.Wait()

	return nil
}

func environ(env map[string]string) []string {
	result := os.Environ()

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}

	return result
}

func openStreams(dir string, spec backend.JobSpec) (io.Writer, io.Writer, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	open := func(name string) (io.Writer, error) {
		if name == "" {
			return io.Discard, nil
		}

		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}

		files = append(files, f)
		return f, nil
	}

	stdout, err := open(spec.Stdout)
	if err != nil {
		closeAll()
		return nil, nil, nil, err
	}

	if spec.Stderr == spec.Stdout {
		return stdout, stdout, closeAll, nil
	}

	stderr, err := open(spec.Stderr)
	if err != nil {
		closeAll()
		return nil, nil, nil, err
	}

	return stdout, stderr, closeAll, nil
}

func stageInputs(inputs []string, dir string) error {
	for _, in := range inputs {
		if err := copyFile(in, filepath.Join(dir, filepath.Base(in))); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
