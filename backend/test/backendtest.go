package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/stretchr/testify/require"
)

// Jobs are the job specs a backend under test can execute.
type Jobs struct {
	// Succeed finishes with exit code 0
	Succeed backend.JobSpec

	// Fail finishes with FailCode
	Fail     backend.JobSpec
	FailCode int

	// Block runs until it is killed
	Block backend.JobSpec
}

func BackendTest(t *testing.T, jobs Jobs, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "Submit_ReturnsHandle",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Succeed)
				require.NoError(t, err)
				require.NotEmpty(t, h)
			},
		},
		{
			name: "Submit_ReturnsUniqueHandles",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h1, err := b.Submit(ctx, jobs.Succeed)
				require.NoError(t, err)

				h2, err := b.Submit(ctx, jobs.Succeed)
				require.NoError(t, err)

				require.NotEqual(t, h1, h2)
			},
		},
		{
			name: "Poll_ErrorsForUnknownHandle",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				_, err := b.Poll(ctx, backend.Handle("does-not-exist"))
				require.ErrorIs(t, err, backend.ErrJobNotFound)
			},
		},
		{
			name: "Poll_ReportsSuccess",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Succeed)
				require.NoError(t, err)

				s := waitDone(t, ctx, b, h)
				require.Equal(t, core.ExitCodeSuccess, s.ExitCode)
			},
		},
		{
			name: "Poll_ReportsFailureExitCode",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Fail)
				require.NoError(t, err)

				s := waitDone(t, ctx, b, h)
				require.Equal(t, jobs.FailCode, s.ExitCode)
			},
		},
		{
			name: "FetchOutput_ErrorsWhileRunning",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Block)
				require.NoError(t, err)

				_, err = b.FetchOutput(ctx, h)
				require.ErrorIs(t, err, backend.ErrJobNotDone)

				require.NoError(t, b.Kill(ctx, h))
			},
		},
		{
			name: "FetchOutput_ReturnsOutputWhenDone",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Succeed)
				require.NoError(t, err)

				waitDone(t, ctx, b, h)

				out, err := b.FetchOutput(ctx, h)
				require.NoError(t, err)
				require.NotNil(t, out)
			},
		},
		{
			name: "Kill_TerminatesBlockedJob",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Block)
				require.NoError(t, err)

				require.NoError(t, b.Kill(ctx, h))

				s := waitDone(t, ctx, b, h)
				require.Equal(t, core.ExitCodeKilled, s.ExitCode)
			},
		},
		{
			name: "Kill_FinishedJobIsNoop",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Succeed)
				require.NoError(t, err)

				waitDone(t, ctx, b, h)

				require.NoError(t, b.Kill(ctx, h))

				s, err := b.Poll(ctx, h)
				require.NoError(t, err)
				require.Equal(t, core.ExitCodeSuccess, s.ExitCode)
			},
		},
		{
			name: "Free_InvalidatesHandle",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.Submit(ctx, jobs.Succeed)
				require.NoError(t, err)

				waitDone(t, ctx, b, h)

				require.NoError(t, b.Free(ctx, h))

				_, err = b.Poll(ctx, h)
				require.True(t, errors.Is(err, backend.ErrJobNotFound))
			},
		},
		{
			name: "Close_RejectsSubmissions",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				require.NoError(t, b.Close())

				_, err := b.Submit(ctx, jobs.Succeed)
				require.ErrorIs(t, err, backend.ErrBackendClosed)
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

func waitDone(t *testing.T, ctx context.Context, b backend.Backend, h backend.Handle) backend.Status {
	t.Helper()

	var s backend.Status
	require.Eventually(t, func() bool {
		status, err := b.Poll(ctx, h)
		if err != nil {
			return false
		}

		s = status
		return s.State == backend.JobDone
	}, 10*time.Second, 5*time.Millisecond)

	return s
}
