package test

import (
	"context"
	"testing"
	"time"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/engine"
	"github.com/cschleiden/go-taskflow/workflow"
	"github.com/stretchr/testify/require"
)

// EndToEndBackendTest runs workflows through an engine on top of the backend under test.
func EndToEndBackendTest(t *testing.T, jobs Jobs, setup func() backend.Backend, teardown func(b backend.Backend)) {
	app := func(t *testing.T, name string, spec backend.JobSpec) *workflow.Application {
		a, err := workflow.NewApplication(name, spec)
		require.NoError(t, err)

		return a
	}

	run := func(t *testing.T, ctx context.Context, e *engine.Engine, roots ...workflow.Task) {
		for _, r := range roots {
			require.NoError(t, e.Add(r))
		}

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		require.NoError(t, e.Run(ctx))
	}

	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "SimpleApplication",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				e := engine.New(b, engine.WithPollingInterval(5*time.Millisecond))
				a := app(t, "a", jobs.Succeed)

				run(t, ctx, e, a)

				require.Equal(t, core.StateTerminated, a.State())
				require.True(t, a.ExitStatus().Succeeded())
				require.NotNil(t, a.Output())
			},
		},
		{
			name: "FailingApplication",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				e := engine.New(b, engine.WithPollingInterval(5*time.Millisecond))
				a := app(t, "a", jobs.Fail)

				run(t, ctx, e, a)

				require.Equal(t, jobs.FailCode, a.ExitStatus().Code)
			},
		},
		{
			name: "Sequence",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				e := engine.New(b, engine.WithPollingInterval(5*time.Millisecond))

				seq, err := workflow.NewSequential("seq", []workflow.Task{
					app(t, "a", jobs.Succeed),
					app(t, "b", jobs.Fail),
					app(t, "c", jobs.Succeed),
				})
				require.NoError(t, err)

				run(t, ctx, e, seq)

				// Sequences continue after failures, the outcome is the one of the last task
				require.True(t, seq.ExitStatus().Succeeded())
				require.Equal(t, jobs.FailCode, seq.Task(1).ExitStatus().Code)
				require.Equal(t, 3, seq.Cursor())
			},
		},
		{
			name: "ParallelOfSequences",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				e := engine.New(b, engine.WithPollingInterval(5*time.Millisecond), engine.WithMaxInFlight(2))

				seqs := []workflow.Task{}
				for i := 0; i < 3; i++ {
					seq, err := workflow.NewSequential("seq", []workflow.Task{
						app(t, "a", jobs.Succeed),
						app(t, "b", jobs.Succeed),
					})
					require.NoError(t, err)

					seqs = append(seqs, seq)
				}

				par, err := workflow.NewParallel("par", seqs)
				require.NoError(t, err)

				run(t, ctx, e, par)

				require.True(t, par.ExitStatus().Succeeded())
				require.Equal(t, 10, e.Stats().OK)
			},
		},
		{
			name: "KillBlockedWorkflow",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				e := engine.New(b, engine.WithPollingInterval(5*time.Millisecond))

				par, err := workflow.NewParallel("par", []workflow.Task{
					app(t, "a", jobs.Block),
					app(t, "b", jobs.Block),
				})
				require.NoError(t, err)
				require.NoError(t, e.Add(par))

				require.NoError(t, e.Progress(ctx))
				require.Equal(t, core.StateSubmitted, par.State())

				require.NoError(t, e.Kill(par))
				run(t, ctx, e)

				require.Equal(t, core.ExitCodeKilled, par.ExitStatus().Code)
				for _, c := range par.Children() {
					require.Equal(t, core.ExitCodeKilled, c.ExitStatus().Code)
				}
			},
		},
		{
			name: "Redo",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				e := engine.New(b, engine.WithPollingInterval(5*time.Millisecond))
				a := app(t, "a", jobs.Succeed)

				run(t, ctx, e, a)
				first := a.Handle()

				require.NoError(t, e.Redo(a))
				require.Equal(t, core.StateNew, a.State())

				run(t, ctx, e)

				require.True(t, a.ExitStatus().Succeeded())
				require.NotEqual(t, first, a.Handle())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()
			tt.f(t, ctx, b)
			if teardown != nil {
				teardown(b)
			}
		})
	}
}
