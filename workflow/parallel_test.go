package workflow

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/tester"
	"github.com/stretchr/testify/require"
)

func Test_Parallel_BothSucceed(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b tester.Script
	}{
		{"a first", tester.Running(0, 0), tester.Running(3, 0)},
		{"b first", tester.Running(3, 0), tester.Running(0, 0)},
		{"together", tester.Running(1, 0), tester.Running(1, 0)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newController(tester.WithScript("a", tc.a), tester.WithScript("b", tc.b))

			a, b := newApp(t, "a"), newApp(t, "b")
			p, err := NewParallel("par", []Task{a, b})
			require.NoError(t, err)

			ctx := context.Background()
			require.NoError(t, p.Submit(ctx, c))

			for p.State() != core.StateTerminated {
				_, err := p.UpdateState(ctx, c)
				require.NoError(t, err)

				if p.State() == core.StateTerminated {
					break
				}

				// Not terminated while a child is still active
				require.False(t, a.State().Terminal() && b.State().Terminal())
			}

			require.True(t, a.State().Terminal())
			require.True(t, b.State().Terminal())
			require.True(t, p.ExitStatus().Succeeded())
		})
	}
}

func Test_Parallel_SubmitsAllChildren(t *testing.T) {
	c, b := newController(tester.WithDefaultScript(tester.Blocked()))

	p, err := NewParallel("par", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	require.NoError(t, p.Submit(context.Background(), c))

	require.ElementsMatch(t, []string{"a", "b", "c"}, b.Submitted())
	require.Equal(t, 3, b.MaxActive())
}

func Test_Parallel_Empty(t *testing.T) {
	c, _ := newController()

	p, err := NewParallel("par", nil)
	require.NoError(t, err)

	require.Equal(t, 1, drive(t, c, p))
	require.True(t, p.ExitStatus().Succeeded())
}

func Test_Parallel_AggregatesFirstFailureInOrder(t *testing.T) {
	c, _ := newController(
		tester.WithScript("a", tester.Running(3, 4)),
		tester.WithScript("b", tester.Running(0, 0)),
		tester.WithScript("c", tester.Running(0, 9)),
	)

	p, err := NewParallel("par", []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c")})
	require.NoError(t, err)

	drive(t, c, p)

	// c fails first, but a comes first in the collection
	es := p.ExitStatus()
	require.Equal(t, 4, es.Code)
	require.Equal(t, "2 of 3 tasks failed", es.Reason)

	statuses := p.Statuses()
	require.Len(t, statuses, 3)
	require.Equal(t, 4, statuses[0].ExitStatus.Code)
	require.Equal(t, 0, statuses[1].ExitStatus.Code)
	require.Equal(t, 9, statuses[2].ExitStatus.Code)
}

func Test_Parallel_OrderIndependence(t *testing.T) {
	scripts := map[string]tester.Script{
		"a": tester.Running(2, 0),
		"b": tester.Running(0, 5),
		"c": tester.Running(4, 0),
		"d": tester.Running(1, 7),
	}

	var expected *core.ExitStatus

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		opts := []tester.BackendOption{}
		for name, s := range scripts {
			opts = append(opts, tester.WithScript(name, s))
		}
		c, _ := newController(opts...)

		tasks := []Task{newApp(t, "a"), newApp(t, "b"), newApp(t, "c"), newApp(t, "d")}
		p, err := NewParallel("par", tasks)
		require.NoError(t, err)

		ctx := context.Background()
		require.NoError(t, p.Submit(ctx, c))

		// Advance the children in a random order
		for p.State() != core.StateTerminated {
			rnd.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })

			for _, child := range tasks[:1+rnd.Intn(len(tasks))] {
				_, err := child.UpdateState(ctx, c)
				require.NoError(t, err)
			}

			_, err := p.UpdateState(ctx, c)
			require.NoError(t, err)
		}

		es := p.ExitStatus()
		if expected == nil {
			expected = &es
		}

		require.Equal(t, *expected, es)
	}

	require.Equal(t, 5, expected.Code)
	require.Equal(t, "2 of 4 tasks failed", expected.Reason)
}

func Test_Parallel_Concurrency(t *testing.T) {
	c, _ := newController(tester.WithDefaultScript(tester.Running(2, 0)))

	tasks := make([]Task, 0, 8)
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		tasks = append(tasks, newApp(t, n))
	}

	p, err := NewParallel("par", tasks, WithConcurrency(3))
	require.NoError(t, err)

	require.Equal(t, 3, drive(t, c, p))
	require.True(t, p.ExitStatus().Succeeded())
}

func Test_Parallel_RespectsAdmission(t *testing.T) {
	c, b := newController()

	p, err := NewParallel("par", []Task{newApp(t, "a"), newApp(t, "b")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, denyController{c}))

	s, err := p.UpdateState(ctx, denyController{c})
	require.NoError(t, err)
	require.Equal(t, core.StateRunning, s)
	require.Empty(t, b.Submitted())

	s, err = p.UpdateState(ctx, c)
	require.NoError(t, err)
	require.Equal(t, core.StateTerminated, s)
}

func Test_Parallel_AddAndRemove(t *testing.T) {
	c, b := newController(tester.WithScript("a", tester.Blocked()))

	a := newApp(t, "a")
	p, err := NewParallel("par", []Task{a})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, c))
	_, err = p.UpdateState(ctx, c)
	require.NoError(t, err)

	require.NoError(t, p.Add(newApp(t, "b")))
	require.NoError(t, p.Remove(a))
	require.ErrorIs(t, p.Remove(a), ErrNotChild)

	for p.State() != core.StateTerminated {
		_, err := p.UpdateState(ctx, c)
		require.NoError(t, err)
	}

	require.Equal(t, core.ExitCodeKilled, a.ExitStatus().Code)
	require.Equal(t, []string{"a", "b"}, b.Submitted())
	require.True(t, p.ExitStatus().Succeeded())

	require.ErrorIs(t, p.Add(newApp(t, "c")), core.ErrInvalidState)
}

func Test_Parallel_RemoveAfterTermination(t *testing.T) {
	c, _ := newController(tester.WithScript("b", tester.Running(0, 3)))

	a, bt := newApp(t, "a"), newApp(t, "b")
	p, err := NewParallel("par", []Task{a, bt})
	require.NoError(t, err)

	drive(t, c, p)
	require.Equal(t, 3, p.ExitStatus().Code)

	require.ErrorIs(t, p.Remove(bt), core.ErrInvalidState)
	require.Equal(t, []string{"a", "b"}, names(p.Children()))
	require.True(t, Attached(bt))

	// A redone collection can be edited again
	require.NoError(t, p.Redo())
	require.NoError(t, p.Remove(bt))
	require.False(t, Attached(bt))
}

func Test_Parallel_FailureDoesNotAbortSiblings(t *testing.T) {
	c, b := newController(
		tester.WithScript("a", tester.Script{SubmitErr: errors.New("rejected")}),
		tester.WithScript("b", tester.Running(2, 0)),
	)

	bt := newApp(t, "b")
	p, err := NewParallel("par", []Task{newApp(t, "a"), bt})
	require.NoError(t, err)

	drive(t, c, p)

	require.True(t, bt.ExitStatus().Succeeded())
	require.Equal(t, []string{"b"}, b.Submitted())
	require.Equal(t, core.ExitCodeUnavailable, p.ExitStatus().Code)
}

func Test_Parallel_Kill(t *testing.T) {
	c, _ := newController(tester.WithDefaultScript(tester.Blocked()))

	p, err := NewParallel("par", []Task{newApp(t, "a"), newApp(t, "b")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, c))
	require.NoError(t, p.Kill(ctx, c))

	require.Equal(t, core.ExitCodeKilled, p.ExitStatus().Code)
	for _, s := range p.Statuses() {
		require.Equal(t, core.StateTerminated, s.State)
	}
}

func Test_Parallel_Redo(t *testing.T) {
	c, b := newController()

	p, err := NewParallel("par", []Task{newApp(t, "a"), newApp(t, "b")})
	require.NoError(t, err)

	drive(t, c, p)
	require.NoError(t, p.Redo())
	drive(t, c, p)

	require.Len(t, b.Submitted(), 4)
	require.Equal(t, []core.State{
		core.StateSubmitted,
		core.StateRunning,
		core.StateTerminated,
		core.StateNew,
		core.StateSubmitted,
		core.StateRunning,
		core.StateTerminated,
	}, reached(p.History()))
}
