package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/backend/test"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testJobs() []option {
	return []option{
		WithJob("succeed", func(ctx context.Context, spec backend.JobSpec) ([]byte, error) {
			return []byte("ok"), nil
		}),
		WithJob("fail", func(ctx context.Context, spec backend.JobSpec) ([]byte, error) {
			return nil, &ExitError{Code: 3, Err: errors.New("failed")}
		}),
		WithJob("block", func(ctx context.Context, spec backend.JobSpec) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		WithJob("panic", func(ctx context.Context, spec backend.JobSpec) ([]byte, error) {
			panic("boom")
		}),
	}
}

func Test_MemoryBackend(t *testing.T) {
	defer goleak.VerifyNone(t)

	test.BackendTest(t, test.Jobs{
		Succeed:  backend.JobSpec{Arguments: []string{"succeed"}},
		Fail:     backend.JobSpec{Arguments: []string{"fail"}},
		FailCode: 3,
		Block:    backend.JobSpec{Arguments: []string{"block"}},
	}, func() backend.Backend {
		return NewMemoryBackend(testJobs()...)
	}, func(b backend.Backend) {
		require.NoError(t, b.Close())
	})
}

func Test_MemoryBackend_UnknownJob(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()

	_, err := b.Submit(context.Background(), backend.JobSpec{Arguments: []string{"missing"}})
	require.ErrorIs(t, err, backend.ErrUnknownJob)
}

func Test_MemoryBackend_PanicIsSoftwareError(t *testing.T) {
	b := NewMemoryBackend(testJobs()...)
	defer b.Close()

	ctx := context.Background()
	h, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"panic"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := b.Poll(ctx, h)
		return s.State == backend.JobDone
	}, time.Second, time.Millisecond)

	s, err := b.Poll(ctx, h)
	require.NoError(t, err)
	require.Equal(t, core.ExitCodeSoftware, s.ExitCode)
	require.Contains(t, s.Message, "boom")
}

func Test_MemoryBackend_ReturnsData(t *testing.T) {
	b := NewMemoryBackend(testJobs()...)
	defer b.Close()

	ctx := context.Background()
	h, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"succeed"}, OutputDir: "out"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := b.Poll(ctx, h)
		return s.State == backend.JobDone
	}, time.Second, time.Millisecond)

	out, err := b.FetchOutput(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out.Data)
	require.Equal(t, "out", out.Dir)
}

func Test_MemoryBackend_MaxParallelJobs(t *testing.T) {
	release := make(chan struct{})

	b := NewMemoryBackend(
		WithMaxParallelJobs(1),
		WithJob("wait", func(ctx context.Context, spec backend.JobSpec) ([]byte, error) {
			select {
			case <-release:
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	)
	defer b.Close()

	ctx := context.Background()
	h1, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"wait"}})
	require.NoError(t, err)
	h2, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"wait"}})
	require.NoError(t, err)

	var first, second backend.Handle
	require.Eventually(t, func() bool {
		s1, _ := b.Poll(ctx, h1)
		s2, _ := b.Poll(ctx, h2)

		switch {
		case s1.State == backend.JobRunning:
			first, second = h1, h2
		case s2.State == backend.JobRunning:
			first, second = h2, h1
		default:
			return false
		}

		return true
	}, time.Second, time.Millisecond)

	s, err := b.Poll(ctx, second)
	require.NoError(t, err)
	require.Equal(t, backend.JobPending, s.State)

	close(release)

	require.Eventually(t, func() bool {
		s1, _ := b.Poll(ctx, first)
		s2, _ := b.Poll(ctx, second)
		return s1.State == backend.JobDone && s2.State == backend.JobDone
	}, time.Second, time.Millisecond)
}

func Test_EndToEndMemoryBackend(t *testing.T) {
	test.EndToEndBackendTest(t, test.Jobs{
		Succeed:  backend.JobSpec{Arguments: []string{"succeed"}},
		Fail:     backend.JobSpec{Arguments: []string{"fail"}},
		FailCode: 3,
		Block:    backend.JobSpec{Arguments: []string{"block"}},
	}, func() backend.Backend {
		return NewMemoryBackend(append(testJobs(), WithMaxParallelJobs(2))...)
	}, func(b backend.Backend) {
		require.NoError(t, b.Close())
	})
}
