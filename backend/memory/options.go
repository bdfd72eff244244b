package memory

import (
	"github.com/cschleiden/go-taskflow/backend"
)

type options struct {
	*backend.Options

	// MaxParallelJobs limits the number of job functions executing at the same time. Jobs
	// submitted beyond the limit stay pending. 0 means no limit.
	MaxParallelJobs int

	jobs map[string]JobFunc
}

type option func(*options)

// WithJob registers fn to execute jobs whose first argument is command.
func WithJob(command string, fn JobFunc) option {
	return func(o *options) {
		o.jobs[command] = fn
	}
}

func WithMaxParallelJobs(n int) option {
	return func(o *options) {
		o.MaxParallelJobs = n
	}
}

// WithBackendOptions allows to pass generic backend options.
func WithBackendOptions(opts ...backend.BackendOption) option {
	return func(o *options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}
