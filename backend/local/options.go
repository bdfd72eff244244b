package local

import (
	"github.com/cschleiden/go-taskflow/backend"
)

type options struct {
	*backend.Options

	// BaseDir is the directory below which every job gets its own working directory.
	BaseDir string

	// KeepWorkDirs disables removal of working directories in Free.
	KeepWorkDirs bool

	// MaxParallelJobs limits the number of processes running at the same time. 0 means no limit.
	MaxParallelJobs int
}

type option func(*options)

func WithBaseDir(dir string) option {
	return func(o *options) {
		o.BaseDir = dir
	}
}

func WithKeepWorkDirs() option {
	return func(o *options) {
		o.KeepWorkDirs = true
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
