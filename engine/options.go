package engine

import (
	"time"

	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/workflow"
)

type Options struct {
	// PollingInterval is the time between two calls to Progress in Run and in background mode.
	PollingInterval time.Duration

	// MaxInFlight limits the number of applications that are submitted, running, or stopped.
	// 0 means no limit.
	MaxInFlight int

	// MaxSubmitted limits the number of applications that are submitted but not yet running.
	// 0 means no limit.
	MaxSubmitted int

	// CanSubmit is asked before an application is submitted. Returning false keeps the task
	// NEW until a later Progress.
	CanSubmit func(t workflow.Task) bool

	// ForgetTerminated drops terminated root tasks from the engine. Their last snapshot is kept
	// for ForgottenTTL and can be retrieved with Forgotten.
	ForgetTerminated   bool
	ForgottenTTL       time.Duration
	ForgottenCacheSize int

	// Store receives the snapshot of every root task whose state changed.
	Store store.Store
}

var DefaultOptions = Options{
	PollingInterval:    time.Second,
	ForgottenTTL:       10 * time.Minute,
	ForgottenCacheSize: 1_000,
}

type Option func(o *Options)

func WithPollingInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PollingInterval = d
	}
}

func WithMaxInFlight(n int) Option {
	return func(o *Options) {
		o.MaxInFlight = n
	}
}

func WithMaxSubmitted(n int) Option {
	return func(o *Options) {
		o.MaxSubmitted = n
	}
}

func WithCanSubmit(fn func(t workflow.Task) bool) Option {
	return func(o *Options) {
		o.CanSubmit = fn
	}
}

// WithForgetTerminated drops terminated roots and keeps their snapshots for ttl.
func WithForgetTerminated(ttl time.Duration) Option {
	return func(o *Options) {
		o.ForgetTerminated = true
		if ttl > 0 {
			o.ForgottenTTL = ttl
		}
	}
}

func WithStore(s store.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}
