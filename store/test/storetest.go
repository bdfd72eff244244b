package test

import (
	"context"
	"testing"
	"time"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/workflow"
	"github.com/stretchr/testify/require"
)

func StoreTest(t *testing.T, setup func() store.Store, teardown func(s store.Store)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, s store.Store)
	}{
		{
			name: "Save_Load",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				snap := sample("wf-1")
				require.NoError(t, s.Save(ctx, snap))

				loaded, err := s.Load(ctx, "wf-1")
				require.NoError(t, err)
				require.Equal(t, snap, *loaded)
			},
		},
		{
			name: "Save_Replaces",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				snap := sample("wf-1")
				require.NoError(t, s.Save(ctx, snap))

				snap.State = core.StateTerminated
				snap.ExitStatus = core.Failed(3, "broken")
				require.NoError(t, s.Save(ctx, snap))

				loaded, err := s.Load(ctx, "wf-1")
				require.NoError(t, err)
				require.Equal(t, core.StateTerminated, loaded.State)
				require.Equal(t, 3, loaded.ExitStatus.Code)

				entries, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				require.Equal(t, core.StateTerminated, entries[0].State)
			},
		},
		{
			name: "Load_NotFound",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				_, err := s.Load(ctx, "does-not-exist")
				require.ErrorIs(t, err, store.ErrNotFound)
			},
		},
		{
			name: "List_Empty",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				entries, err := s.List(ctx)
				require.NoError(t, err)
				require.Empty(t, entries)
			},
		},
		{
			name: "List_OrderedByID",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				for _, id := range []string{"c", "a", "b"} {
					require.NoError(t, s.Save(ctx, sample(id)))
				}

				entries, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, entries, 3)

				ids := []string{}
				for _, e := range entries {
					ids = append(ids, e.ID)
				}
				require.Equal(t, []string{"a", "b", "c"}, ids)

				require.Equal(t, "sample", entries[0].Name)
				require.Equal(t, workflow.KindSequential, entries[0].Kind)
				require.Equal(t, core.StateRunning, entries[0].State)
				require.False(t, entries[0].UpdatedAt.IsZero())
			},
		},
		{
			name: "Remove",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				require.NoError(t, s.Save(ctx, sample("wf-1")))
				require.NoError(t, s.Save(ctx, sample("wf-2")))

				require.NoError(t, s.Remove(ctx, "wf-1"))

				_, err := s.Load(ctx, "wf-1")
				require.ErrorIs(t, err, store.ErrNotFound)

				entries, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				require.Equal(t, "wf-2", entries[0].ID)
			},
		},
		{
			name: "Remove_NotFound",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				err := s.Remove(ctx, "does-not-exist")
				require.ErrorIs(t, err, store.ErrNotFound)
			},
		},
		{
			name: "Save_KeepsTree",
			f: func(t *testing.T, ctx context.Context, s store.Store) {
				require.NoError(t, s.Save(ctx, sample("wf-1")))

				loaded, err := s.Load(ctx, "wf-1")
				require.NoError(t, err)

				app, ok := loaded.Find("wf-1-app-2")
				require.True(t, ok)
				require.Equal(t, core.StateTerminated, app.State)
				require.Equal(t, 1, app.ExitStatus.Code)
				require.Equal(t, "job-2", string(app.Handle))
				require.Len(t, app.History, 2)
				require.True(t, app.History[1].At.Equal(at.Add(time.Second)))

				require.Equal(t, map[core.State]int{
					core.StateRunning:    2,
					core.StateTerminated: 1,
				}, loaded.Count())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup()
			ctx := context.Background()
			tt.f(t, ctx, s)
			if teardown != nil {
				teardown(s)
			} else {
				require.NoError(t, s.Close())
			}
		})
	}
}

// SaveSample saves a sample workflow with the id "sample".
func SaveSample(t *testing.T, s store.Store) workflow.Snapshot {
	t.Helper()

	snap := sample("sample")
	require.NoError(t, s.Save(context.Background(), snap))

	return snap
}

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(id string) workflow.Snapshot {
	return workflow.Snapshot{
		ID:    id,
		Name:  "sample",
		Kind:  workflow.KindSequential,
		State: core.StateRunning,
		History: []workflow.Transition{
			{From: core.StateNew, To: core.StateSubmitted, At: at},
			{From: core.StateSubmitted, To: core.StateRunning, At: at},
		},
		Cursor: 1,
		Children: []workflow.Snapshot{
			{
				ID:     id + "-app-1",
				Name:   "first",
				Kind:   workflow.KindApplication,
				State:  core.StateRunning,
				Handle: "job-1",
				History: []workflow.Transition{
					{From: core.StateNew, To: core.StateSubmitted, At: at},
				},
			},
			{
				ID:         id + "-app-2",
				Name:       "second",
				Kind:       workflow.KindApplication,
				State:      core.StateTerminated,
				ExitStatus: core.Failed(1, "exit status 1"),
				Handle:     "job-2",
				History: []workflow.Transition{
					{From: core.StateNew, To: core.StateSubmitted, At: at},
					{From: core.StateRunning, To: core.StateTerminated, At: at.Add(time.Second), Reason: "exit status 1"},
				},
			},
		},
	}
}
