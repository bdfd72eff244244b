package tester

import "github.com/cschleiden/go-taskflow/backend"

type options struct {
	*backend.Options

	DefaultScript Script
	Scripts       map[string]Script
}

type BackendOption func(*options)

// WithScript sets the script for jobs whose first argument is command.
func WithScript(command string, s Script) BackendOption {
	return func(o *options) {
		o.Scripts[command] = s
	}
}

// WithDefaultScript sets the script for commands without a registered script. The default
// finishes successfully on the first poll.
func WithDefaultScript(s Script) BackendOption {
	return func(o *options) {
		o.DefaultScript = s
	}
}

func WithBackendOptions(opts ...backend.BackendOption) BackendOption {
	return func(o *options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}
