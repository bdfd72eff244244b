package workflow

import (
	"time"

	"github.com/benbjohnson/clock"
)

type options struct {
	ID           string
	Clock        clock.Clock
	OnTerminated []func(Task)

	// Sequential collections
	Next NextFunc

	// Parallel collections
	Concurrency int

	// Applications
	MaxPollFailures int

	// Retryable tasks
	Retry RetryOptions
}

type RetryOptions struct {
	// Maximum number of attempts, including the first one
	MaxAttempts int

	// Time to wait before the first retry
	FirstRetryInterval time.Duration

	// Maximum delay for any individual retry attempt
	MaxRetryInterval time.Duration

	// Coefficient for calculating the next retry delay
	BackoffCoefficient float64
}

var DefaultRetryOptions = RetryOptions{
	MaxAttempts:        3,
	FirstRetryInterval: time.Second,
	BackoffCoefficient: 2,
}

// DefaultMaxPollFailures is the number of consecutive failed polls after which an application is
// terminated with a backend failure.
const DefaultMaxPollFailures = 3

type Option func(*options)

func applyOptions(opts []Option) *options {
	o := &options{
		Clock:           clock.New(),
		Next:            ContinueOnFailure,
		MaxPollFailures: DefaultMaxPollFailures,
		Retry:           DefaultRetryOptions,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithID sets the id of the task instead of generating one.
func WithID(id string) Option {
	return func(o *options) {
		o.ID = id
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.Clock = c
	}
}

func WithOnTerminated(fn func(Task)) Option {
	return func(o *options) {
		o.OnTerminated = append(o.OnTerminated, fn)
	}
}

// WithNext sets the hook deciding how a sequential collection continues after a child terminated.
func WithNext(fn NextFunc) Option {
	return func(o *options) {
		o.Next = fn
	}
}

// WithConcurrency updates up to n children of a parallel collection at the same time. 0 and 1
// update children one after the other.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.Concurrency = n
	}
}

func WithMaxPollFailures(n int) Option {
	return func(o *options) {
		o.MaxPollFailures = n
	}
}

func WithRetry(r RetryOptions) Option {
	return func(o *options) {
		o.Retry = r
	}
}
