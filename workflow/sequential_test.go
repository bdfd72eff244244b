package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/tester"
	"github.com/stretchr/testify/require"
)

func Test_Sequential_RunsChildrenInOrder(t *testing.T) {
	c, b := newController()

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	drive(t, c, s)

	require.Equal(t, []string{"a", "b", "c"}, b.Submitted())
	require.True(t, s.ExitStatus().Succeeded())
	require.Equal(t, 3, s.Cursor())

	for _, child := range s.Children() {
		require.Equal(t, core.StateTerminated, child.State())
	}
}

func Test_Sequential_AtMostOneChildActive(t *testing.T) {
	c, b := newController(tester.WithDefaultScript(tester.Running(2, 0)))

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, c))

	for s.State() != core.StateTerminated {
		_, err := s.UpdateState(ctx, c)
		require.NoError(t, err)

		active := 0
		for i, child := range s.Children() {
			switch {
			case i < s.Cursor():
				require.Equal(t, core.StateTerminated, child.State())
			case i > s.Cursor():
				require.Equal(t, core.StateNew, child.State())
			}

			if child.State().Active() {
				active++
			}
		}

		require.LessOrEqual(t, active, 1)
	}

	require.Equal(t, 1, b.MaxActive())
}

func Test_Sequential_Empty(t *testing.T) {
	c, _ := newController()

	s, err := NewSequential("seq", nil)
	require.NoError(t, err)

	require.Equal(t, 1, drive(t, c, s))
	require.True(t, s.ExitStatus().Succeeded())
}

func Test_Sequential_ContinuesAfterFailureByDefault(t *testing.T) {
	c, b := newController(tester.WithScript("a", tester.Running(0, 2)))

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	drive(t, c, s)

	require.Equal(t, []string{"a", "b", "c"}, b.Submitted())
	require.Equal(t, 2, s.Task(0).ExitStatus().Code)

	// The last child determines the outcome
	require.True(t, s.ExitStatus().Succeeded())
}

func Test_Sequential_AbortOnFailure(t *testing.T) {
	c, b := newController(tester.WithScript("a", tester.Running(0, 2)))

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")}, WithNext(AbortOnFailure))
	require.NoError(t, err)

	drive(t, c, s)

	require.Equal(t, []string{"a"}, b.Submitted())
	require.Equal(t, 2, s.ExitStatus().Code)
	require.Equal(t, core.StateNew, s.Task(1).State())
	require.Equal(t, core.StateNew, s.Task(2).State())
}

func Test_Sequential_AppendRunsBeforeTermination(t *testing.T) {
	c, b := newController(tester.WithDefaultScript(tester.Running(1, 0)))

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, c))
	_, err = s.UpdateState(ctx, c)
	require.NoError(t, err)

	require.NoError(t, s.Append(newApp(t, "c")))

	for s.State() != core.StateTerminated {
		_, err := s.UpdateState(ctx, c)
		require.NoError(t, err)
	}

	require.Equal(t, []string{"a", "b", "c"}, b.Submitted())
}

func Test_Sequential_NextHookExtendsSequence(t *testing.T) {
	c, b := newController()

	extended := false
	s, err := NewSequential("seq", []Task{newApp(t, "a")}, WithNext(func(s *SequentialCollection, done int) (Decision, error) {
		if !extended {
			extended = true

			a, err := NewApplication("b", s.Task(0).(*Application).Spec())
			if err != nil {
				return Stop, err
			}

			return Continue, s.Append(a)
		}

		return Continue, nil
	}))
	require.NoError(t, err)

	drive(t, c, s)

	require.Equal(t, []string{"a", "a"}, b.Submitted())
	require.Equal(t, []string{"a", "b"}, names(s.Children()))
}

func Test_Sequential_NextHookStops(t *testing.T) {
	c, b := newController()

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b")}, WithNext(func(*SequentialCollection, int) (Decision, error) {
		return Stop, nil
	}))
	require.NoError(t, err)

	drive(t, c, s)

	require.Equal(t, []string{"a"}, b.Submitted())
	require.True(t, s.ExitStatus().Succeeded())
}

func Test_Sequential_NextHookError(t *testing.T) {
	c, _ := newController()

	hookErr := errors.New("cannot decide")
	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b")}, WithNext(func(*SequentialCollection, int) (Decision, error) {
		return Stop, hookErr
	}))
	require.NoError(t, err)

	drive(t, c, s)

	require.Equal(t, core.ExitCodeSoftware, s.ExitStatus().Code)
	require.Equal(t, hookErr.Error(), s.ExitStatus().Reason)
}

func Test_Sequential_EditPastEntryFails(t *testing.T) {
	c, _ := newController(tester.WithScript("b", tester.Blocked()))

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, c))
	_, err = s.UpdateState(ctx, c)
	require.NoError(t, err)
	require.Equal(t, 1, s.Cursor())

	err = s.Remove(0)
	require.ErrorIs(t, err, core.ErrSequenceEdit)

	var see *core.SequenceEditError
	require.ErrorAs(t, err, &see)
	require.Equal(t, 0, see.Index)
	require.Equal(t, 1, see.Cursor)

	require.ErrorIs(t, s.Replace(0, newApp(t, "x")), core.ErrSequenceEdit)
	require.ErrorIs(t, s.Remove(5), core.ErrSequenceEdit)

	// Future entries can be edited
	require.NoError(t, s.Replace(2, newApp(t, "d")))
	require.Equal(t, []string{"a", "b", "d"}, names(s.Children()))
}

func Test_Sequential_EditTerminatedFails(t *testing.T) {
	c, _ := newController()

	s, err := NewSequential("seq", []Task{newApp(t, "a")})
	require.NoError(t, err)

	drive(t, c, s)

	require.ErrorIs(t, s.Append(newApp(t, "b")), core.ErrSequenceEdit)
	require.ErrorIs(t, s.Remove(0), core.ErrSequenceEdit)
}

func Test_Sequential_RemoveRunningAbandonsIt(t *testing.T) {
	c, b := newController(tester.WithScript("a", tester.Blocked()))

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, c))
	_, err = s.UpdateState(ctx, c)
	require.NoError(t, err)

	running := s.Task(0)
	require.Equal(t, core.StateRunning, running.State())

	require.NoError(t, s.Remove(0))

	// The next entry is current right away
	require.Equal(t, 0, s.Cursor())
	require.Equal(t, "b", s.Task(0).Name())
	require.False(t, Attached(running))

	for s.State() != core.StateTerminated {
		_, err := s.UpdateState(ctx, c)
		require.NoError(t, err)
	}

	require.Equal(t, core.ExitCodeKilled, running.ExitStatus().Code)
	require.Len(t, b.Calls("kill"), 1)
	require.Equal(t, []string{"a", "b"}, b.Submitted())
	require.True(t, s.ExitStatus().Succeeded())
}

func Test_Sequential_ReplaceRunningReruns(t *testing.T) {
	c, b := newController(tester.WithScript("a", tester.Blocked()))

	s, err := NewSequential("seq", []Task{newApp(t, "a")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, c))
	_, err = s.UpdateState(ctx, c)
	require.NoError(t, err)

	require.NoError(t, s.Replace(0, newApp(t, "a2")))

	for s.State() != core.StateTerminated {
		_, err := s.UpdateState(ctx, c)
		require.NoError(t, err)
	}

	require.Equal(t, []string{"a", "a2"}, b.Submitted())
	require.Len(t, b.Calls("kill"), 1)
}

func Test_Sequential_RedoFrom(t *testing.T) {
	c, b := newController()

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	drive(t, c, s)

	require.ErrorIs(t, s.RedoFrom(4), core.ErrSequenceEdit)
	require.NoError(t, s.RedoFrom(1))

	require.Equal(t, core.StateNew, s.State())
	require.Equal(t, 1, s.Cursor())
	require.Equal(t, core.StateTerminated, s.Task(0).State())
	require.Equal(t, core.StateNew, s.Task(1).State())

	drive(t, c, s)

	require.Equal(t, []string{"a", "b", "c", "b", "c"}, b.Submitted())
}

func Test_Sequential_RedoRequiresTerminated(t *testing.T) {
	s, err := NewSequential("seq", []Task{newApp(t, "a")})
	require.NoError(t, err)

	require.ErrorIs(t, s.Redo(), core.ErrInvalidState)
}

func Test_Sequential_KillKillsChildren(t *testing.T) {
	c, b := newController(tester.WithScript("a", tester.Blocked()))

	s, err := NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, c))
	_, err = s.UpdateState(ctx, c)
	require.NoError(t, err)

	require.NoError(t, s.Kill(ctx, c))

	require.Equal(t, core.ExitCodeKilled, s.ExitStatus().Code)
	for _, child := range s.Children() {
		require.Equal(t, core.StateTerminated, child.State())
		require.Equal(t, core.ExitCodeKilled, child.ExitStatus().Code)
	}

	require.Len(t, b.Calls("kill"), 1)

	// Killing again is a no-op
	require.NoError(t, s.Kill(ctx, c))
}

func Test_Sequential_RespectsAdmission(t *testing.T) {
	c, b := newController()
	deny := denyController{c}

	s, err := NewSequential("seq", []Task{newApp(t, "a")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, deny))

	st, err := s.UpdateState(ctx, deny)
	require.NoError(t, err)
	require.Equal(t, core.StateSubmitted, st)
	require.Empty(t, b.Submitted())

	st, err = s.UpdateState(ctx, c)
	require.NoError(t, err)
	require.Equal(t, core.StateTerminated, st)
}

func Test_Sequential_FollowsStoppedChild(t *testing.T) {
	c, _ := newController(tester.WithScript("a", tester.Script{
		States: []backend.JobState{backend.JobStopped, backend.JobRunning},
	}))

	s, err := NewSequential("seq", []Task{newApp(t, "a")})
	require.NoError(t, err)

	drive(t, c, s)

	require.Equal(t, []core.State{
		core.StateSubmitted,
		core.StateStopped,
		core.StateRunning,
		core.StateTerminated,
	}, reached(s.History()))
}

// pollHook calls fn before each poll of the wrapped backend.
type pollHook struct {
	*tester.Backend
	fn func(h backend.Handle)
}

func (p *pollHook) Poll(ctx context.Context, h backend.Handle) (backend.Status, error) {
	p.fn(h)
	return p.Backend.Poll(ctx, h)
}

func Test_Sequential_RemoveCurrentDuringUpdate(t *testing.T) {
	b := tester.NewBackend()

	var s *SequentialCollection
	removed := false
	c := NewController(&pollHook{Backend: b, fn: func(backend.Handle) {
		if !removed {
			removed = true
			require.NoError(t, s.Remove(0))
		}
	}})

	a := newApp(t, "a")

	var err error
	s, err = NewSequential("seq", []Task{a, newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	drive(t, c, s)

	require.True(t, removed)
	require.Equal(t, []string{"a", "b", "c"}, b.Submitted())
	require.Equal(t, []string{"b", "c"}, names(s.Children()))
	for _, child := range s.Children() {
		require.Equal(t, core.StateTerminated, child.State(), child.Name())
	}
	require.Equal(t, 2, s.Cursor())
	require.True(t, s.ExitStatus().Succeeded())
}

func Test_Sequential_ReplaceCurrentDuringUpdate(t *testing.T) {
	b := tester.NewBackend(tester.WithScript("a", tester.Running(0, 3)))

	var s *SequentialCollection
	replaced := false
	c := NewController(&pollHook{Backend: b, fn: func(backend.Handle) {
		if !replaced {
			replaced = true
			require.NoError(t, s.Replace(0, newApp(t, "x")))
		}
	}})

	var err error
	s, err = NewSequential("seq", []Task{newApp(t, "a"), newApp(t, "b")})
	require.NoError(t, err)

	drive(t, c, s)

	// The failure of the replaced entry does not count for the sequence
	require.Equal(t, []string{"a", "x", "b"}, b.Submitted())
	require.Equal(t, []string{"x", "b"}, names(s.Children()))
	require.True(t, s.ExitStatus().Succeeded())
}
