package tester

import (
	"context"
	"errors"
	"testing"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/backend/test"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/stretchr/testify/require"
)

func Test_TesterBackend(t *testing.T) {
	test.BackendTest(t, test.Jobs{
		Succeed:  backend.JobSpec{Arguments: []string{"succeed"}},
		Fail:     backend.JobSpec{Arguments: []string{"fail"}},
		FailCode: 3,
		Block:    backend.JobSpec{Arguments: []string{"block"}},
	}, func() backend.Backend {
		return NewBackend(
			WithScript("fail", Running(1, 3)),
			WithScript("block", Blocked()),
		)
	}, nil)
}

func Test_Script_States(t *testing.T) {
	b := NewBackend(WithScript("job", Script{
		States:   []backend.JobState{backend.JobPending, backend.JobRunning, backend.JobStopped},
		ExitCode: 2,
	}))

	ctx := context.Background()
	h, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"job"}})
	require.NoError(t, err)

	for _, expected := range []backend.JobState{backend.JobPending, backend.JobRunning, backend.JobStopped, backend.JobDone, backend.JobDone} {
		s, err := b.Poll(ctx, h)
		require.NoError(t, err)
		require.Equal(t, expected, s.State)
	}

	s, _ := b.Poll(ctx, h)
	require.Equal(t, 2, s.ExitCode)
}

func Test_Script_PollErrors(t *testing.T) {
	pollErr := errors.New("unreachable")
	b := NewBackend(WithScript("job", Script{PollErrs: 2, PollErr: pollErr}))

	ctx := context.Background()
	h, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"job"}})
	require.NoError(t, err)

	_, err = b.Poll(ctx, h)
	require.ErrorIs(t, err, pollErr)
	_, err = b.Poll(ctx, h)
	require.ErrorIs(t, err, pollErr)

	s, err := b.Poll(ctx, h)
	require.NoError(t, err)
	require.Equal(t, backend.JobDone, s.State)
}

func Test_Script_Hold(t *testing.T) {
	b := NewBackend(WithScript("job", Blocked()))

	ctx := context.Background()
	h, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"job"}})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		s, err := b.Poll(ctx, h)
		require.NoError(t, err)
		require.Equal(t, backend.JobRunning, s.State)
	}

	require.Equal(t, 1, b.MaxActive())
	require.NoError(t, b.Finish(h, 0))

	s, err := b.Poll(ctx, h)
	require.NoError(t, err)
	require.Equal(t, backend.JobDone, s.State)
	require.Equal(t, core.ExitCodeSuccess, s.ExitCode)
}

func Test_RecordsCalls(t *testing.T) {
	b := NewBackend(WithScript("b", Script{SubmitErr: errors.New("rejected")}))

	ctx := context.Background()
	h, err := b.Submit(ctx, backend.JobSpec{Arguments: []string{"a"}})
	require.NoError(t, err)

	_, err = b.Submit(ctx, backend.JobSpec{Arguments: []string{"b"}})
	require.Error(t, err)

	require.NoError(t, b.Kill(ctx, h))

	require.Equal(t, []string{"a"}, b.Submitted())
	require.Len(t, b.Calls("submit"), 2)
	require.Equal(t, []Call{{Op: "kill", Handle: h, Command: "a"}}, b.Calls("kill"))
	require.Equal(t, []backend.Handle{h}, b.Handles("a"))
}
