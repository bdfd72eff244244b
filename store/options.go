package store

import (
	"log/slog"

	"github.com/benbjohnson/clock"
)

type Options struct {
	Logger *slog.Logger

	// Clock stamps the entries with the time they were saved.
	Clock clock.Clock
}

var DefaultOptions = Options{
	Logger: slog.Default(),
	Clock:  clock.New(),
}

type StoreOption func(*Options)

func WithLogger(logger *slog.Logger) StoreOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithClock(c clock.Clock) StoreOption {
	return func(o *Options) {
		o.Clock = c
	}
}

func ApplyOptions(opts ...StoreOption) Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if options.Clock == nil {
		options.Clock = clock.New()
	}

	return options
}
