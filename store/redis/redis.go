package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/workflow"
	"github.com/redis/go-redis/v9"
)

var _ store.Store = (*redisStore)(nil)

func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*redisStore, error) {
	options := &RedisOptions{
		Options: store.ApplyOptions(),
	}

	for _, opt := range opts {
		opt(options)
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &redisStore{
		rdb:     client,
		options: options,
	}, nil
}

type redisStore struct {
	rdb     redis.UniversalClient
	options *RedisOptions
}

func (rs *redisStore) Save(ctx context.Context, snap workflow.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	key := workflowKey(rs.options.KeyPrefix, snap.ID)

	_, err = rs.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]interface{}{
			"name":       snap.Name,
			"kind":       string(snap.Kind),
			"state":      snap.State.String(),
			"updated_at": rs.options.Clock.Now().UnixMilli(),
			"snapshot":   data,
		})

		if rs.options.AutoExpiration > 0 && snap.State == core.StateTerminated {
			p.Expire(ctx, key, rs.options.AutoExpiration)
		} else {
			p.Persist(ctx, key)
		}

		p.ZAdd(ctx, workflowsKey(rs.options.KeyPrefix), redis.Z{Score: 0, Member: snap.ID})

		return nil
	})
	if err != nil {
		return fmt.Errorf("saving workflow %v: %w", snap.ID, err)
	}

	return nil
}

func (rs *redisStore) Load(ctx context.Context, id string) (*workflow.Snapshot, error) {
	data, err := rs.rdb.HGet(ctx, workflowKey(rs.options.KeyPrefix, id), "snapshot").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %v", store.ErrNotFound, id)
		}

		return nil, fmt.Errorf("loading workflow %v: %w", id, err)
	}

	var snap workflow.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}

	return &snap, nil
}

func (rs *redisStore) List(ctx context.Context) ([]store.Entry, error) {
	ids, err := rs.rdb.ZRange(ctx, workflowsKey(rs.options.KeyPrefix), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}

	cmds := make([]*redis.SliceCmd, 0, len(ids))
	if _, err := rs.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, p.HMGet(ctx, workflowKey(rs.options.KeyPrefix, id), "name", "kind", "state", "updated_at"))
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}

	entries := make([]store.Entry, 0, len(ids))
	var expired []interface{}

	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 4 || vals[0] == nil {
			// Expired, drop it from the index
			expired = append(expired, ids[i])
			continue
		}

		e, err := entryFromHash(ids[i], vals)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if len(expired) > 0 {
		if err := rs.rdb.ZRem(ctx, workflowsKey(rs.options.KeyPrefix), expired...).Err(); err != nil {
			rs.options.Logger.WarnContext(ctx, "could not remove expired workflows from index", "error", err)
		}
	}

	return entries, nil
}

func entryFromHash(id string, vals []interface{}) (store.Entry, error) {
	str := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}

	state, err := core.ParseState(str(vals[2]))
	if err != nil {
		return store.Entry{}, fmt.Errorf("workflow %v: %w", id, err)
	}

	updatedAt, err := strconv.ParseInt(str(vals[3]), 10, 64)
	if err != nil {
		return store.Entry{}, fmt.Errorf("workflow %v: parsing update time: %w", id, err)
	}

	return store.Entry{
		ID:        id,
		Name:      str(vals[0]),
		Kind:      workflow.Kind(str(vals[1])),
		State:     state,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

func (rs *redisStore) Remove(ctx context.Context, id string) error {
	var del *redis.IntCmd

	if _, err := rs.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, workflowKey(rs.options.KeyPrefix, id))
		p.ZRem(ctx, workflowsKey(rs.options.KeyPrefix), id)

		return nil
	}); err != nil {
		return fmt.Errorf("removing workflow %v: %w", id, err)
	}

	if del.Val() == 0 {
		return fmt.Errorf("%w: %v", store.ErrNotFound, id)
	}

	return nil
}

// Close does not close the client, it is owned by the caller.
func (rs *redisStore) Close() error {
	return nil
}
