package redis

import (
	"time"

	"github.com/cschleiden/go-taskflow/store"
)

type RedisOptions struct {
	store.Options

	// AutoExpiration is the time after which terminated workflows expire from the store.
	AutoExpiration time.Duration

	KeyPrefix string
}

type RedisStoreOption func(*RedisOptions)

func WithStoreOptions(opts ...store.StoreOption) RedisStoreOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

// WithAutoExpiration sets the duration after which terminated workflows will expire from the
// store. If set to 0 (default), workflows never expire and need to be removed manually.
func WithAutoExpiration(expireTerminatedAfter time.Duration) RedisStoreOption {
	return func(o *RedisOptions) {
		o.AutoExpiration = expireTerminatedAfter
	}
}

func WithKeyPrefix(keyPrefix string) RedisStoreOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}
