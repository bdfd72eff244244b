package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-taskflow/metrics"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotDone    = errors.New("job has not finished")
	ErrUnknownJob    = errors.New("no job registered for command")
	ErrBackendClosed = errors.New("backend is closed")
)

type ErrNotSupported struct {
	Message string
}

func (e ErrNotSupported) Error() string {
	return fmt.Sprintf("not supported: %s", e.Message)
}

const TracerName = "go-taskflow"

// Handle identifies a job submitted to a backend.
type Handle string

// Backend is the resource manager executing the jobs of applications. Implementations report the
// outcome of a job through its Status; a returned error means the backend itself could not
// perform the operation.
//
//go:generate mockery --name=Backend --inpackage
type Backend interface {
	// Name of the backend, used in logs and metric tags
	Name() string

	// Submit hands the job to the backend and returns a handle to refer to it.
	Submit(ctx context.Context, spec JobSpec) (Handle, error)

	// Poll returns the current status of the job.
	Poll(ctx context.Context, h Handle) (Status, error)

	// FetchOutput retrieves the output of a finished job. It returns ErrJobNotDone if the job has not
	// finished yet.
	FetchOutput(ctx context.Context, h Handle) (*Output, error)

	// Kill requests termination of the job. Killing a finished job is not an error.
	Kill(ctx context.Context, h Handle) error

	// Free releases any resources held for the job. The handle is invalid afterwards.
	Free(ctx context.Context, h Handle) error

	// Close releases all resources held by the backend.
	Close() error

	// Logger returns the configured logger for the backend
	Logger() *slog.Logger

	// Tracer returns the configured trace provider for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options
}
