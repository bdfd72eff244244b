package workflow

import (
	"testing"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/stretchr/testify/require"
)

func Test_Attach_SelfAppend(t *testing.T) {
	s, err := NewSequential("seq", nil)
	require.NoError(t, err)

	err = s.Append(s)
	require.ErrorIs(t, err, core.ErrCyclicWorkflow)

	var cwe *core.CyclicWorkflowError
	require.ErrorAs(t, err, &cwe)
	require.Equal(t, []string{"seq", "seq"}, cwe.Path)
}

func Test_Attach_NestedCycle(t *testing.T) {
	inner, err := NewSequential("inner", []Task{newApp(t, "a")})
	require.NoError(t, err)

	outer, err := NewParallel("outer", []Task{inner})
	require.NoError(t, err)

	err = inner.Append(outer)
	require.ErrorIs(t, err, core.ErrCyclicWorkflow)

	var cwe *core.CyclicWorkflowError
	require.ErrorAs(t, err, &cwe)
	require.Equal(t, []string{"inner", "outer", "inner"}, cwe.Path)

	// The sequence is unchanged
	require.Equal(t, 1, inner.Len())
}

func Test_Attach_CycleThroughStagedCollection(t *testing.T) {
	st, err := NewStaged("staged", nil)
	require.NoError(t, err)

	p, err := NewParallel("par", []Task{st})
	require.NoError(t, err)

	require.ErrorIs(t, st.Append(p), core.ErrCyclicWorkflow)
	require.ErrorIs(t, p.Add(p), core.ErrCyclicWorkflow)
}

func Test_Attach_AlreadyAttached(t *testing.T) {
	a := newApp(t, "a")

	_, err := NewSequential("first", []Task{a})
	require.NoError(t, err)
	require.True(t, Attached(a))

	_, err = NewParallel("second", []Task{a})
	require.ErrorIs(t, err, core.ErrAlreadyAttached)

	_, err = NewRetryable("retry", a)
	require.ErrorIs(t, err, core.ErrAlreadyAttached)
}

func Test_Attach_DuplicateRollsBack(t *testing.T) {
	a, b := newApp(t, "a"), newApp(t, "b")

	_, err := NewSequential("seq", []Task{a, b, a})
	require.ErrorIs(t, err, core.ErrAlreadyAttached)

	require.False(t, Attached(a))
	require.False(t, Attached(b))
}

func Test_Attach_RemovedTaskCanMove(t *testing.T) {
	a := newApp(t, "a")

	p, err := NewParallel("par", []Task{a})
	require.NoError(t, err)

	require.NoError(t, p.Remove(a))
	require.False(t, Attached(a))

	s, err := NewSequential("seq", nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(a))
}

func Test_Attach_Nil(t *testing.T) {
	s, err := NewSequential("seq", nil)
	require.NoError(t, err)

	require.Error(t, s.Append(nil))
}
