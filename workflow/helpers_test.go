package workflow

import (
	"context"
	"testing"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/tester"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T, command string, opts ...Option) *Application {
	t.Helper()

	a, err := NewApplication(command, backend.JobSpec{Arguments: []string{command}}, opts...)
	require.NoError(t, err)

	return a
}

func newController(opts ...tester.BackendOption) (Controller, *tester.Backend) {
	b := tester.NewBackend(opts...)
	return NewController(b), b
}

// drive submits task and updates it until it is terminated.
func drive(t *testing.T, c Controller, task Task) int {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, task.Submit(ctx, c))

	for i := 1; i <= 100; i++ {
		s, err := task.UpdateState(ctx, c)
		require.NoError(t, err)

		if s == core.StateTerminated {
			return i
		}
	}

	require.FailNow(t, "task did not terminate")
	return 0
}

func reached(h []Transition) []core.State {
	r := make([]core.State, 0, len(h))
	for _, tr := range h {
		r = append(r, tr.To)
	}

	return r
}

func names(tasks []Task) []string {
	r := make([]string, 0, len(tasks))
	for _, t := range tasks {
		r = append(r, t.Name())
	}

	return r
}

// denyController admits nothing.
type denyController struct {
	Controller
}

func (denyController) Admit(Task) bool {
	return false
}
