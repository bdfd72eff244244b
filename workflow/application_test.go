package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/tester"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func Test_NewApplication_ValidatesSpec(t *testing.T) {
	_, err := NewApplication("empty", backend.JobSpec{})
	require.ErrorIs(t, err, backend.ErrInvalidJobSpec)

	_, err = NewApplication("abs", backend.JobSpec{Arguments: []string{"x"}, Outputs: []string{"/etc/passwd"}})
	require.ErrorIs(t, err, backend.ErrInvalidJobSpec)
}

func Test_Application_Succeeds(t *testing.T) {
	c, b := newController()
	a := newApp(t, "job")

	require.Equal(t, core.StateNew, a.State())

	drive(t, c, a)

	require.Equal(t, []core.State{
		core.StateSubmitted,
		core.StateRunning,
		core.StateTerminating,
		core.StateTerminated,
	}, reached(a.History()))
	require.True(t, a.ExitStatus().Succeeded())
	require.NotNil(t, a.Output())
	require.Len(t, b.Calls("free"), 1)
}

func Test_Application_RecordsExitCode(t *testing.T) {
	c, _ := newController(tester.WithScript("job", tester.Running(2, 3)))
	a := newApp(t, "job")

	require.Equal(t, 3, drive(t, c, a))

	es := a.ExitStatus()
	require.Equal(t, 3, es.Code)
	require.Equal(t, "job exited with code 3", es.Reason)
	require.Error(t, es.Err())
}

func Test_Application_SubmitFailureTerminates(t *testing.T) {
	c, _ := newController(tester.WithScript("job", tester.Script{SubmitErr: errors.New("no resources")}))
	a := newApp(t, "job")

	require.NoError(t, a.Submit(context.Background(), c))

	require.Equal(t, core.StateTerminated, a.State())
	require.Equal(t, []core.State{core.StateTerminated}, reached(a.History()))

	es := a.ExitStatus()
	require.Equal(t, core.ExitCodeUnavailable, es.Code)
	require.ErrorIs(t, es.Err(), core.ErrBackendFailure)
}

func Test_Application_ToleratesPollFailures(t *testing.T) {
	c, _ := newController(tester.WithScript("job", tester.Script{PollErrs: 2}))
	a := newApp(t, "job")

	require.Equal(t, 3, drive(t, c, a))
	require.True(t, a.ExitStatus().Succeeded())
}

func Test_Application_TerminatesAfterMaxPollFailures(t *testing.T) {
	c, _ := newController(tester.WithScript("job", tester.Script{PollErrs: 5}))
	a := newApp(t, "job", WithMaxPollFailures(2))

	require.Equal(t, 2, drive(t, c, a))

	es := a.ExitStatus()
	require.Equal(t, core.ExitCodeUnavailable, es.Code)
	require.ErrorIs(t, es.Err(), core.ErrBackendFailure)

	// Never seen running
	require.Equal(t, []core.State{core.StateSubmitted, core.StateTerminated}, reached(a.History()))
}

func Test_Application_FetchFailureIsIOError(t *testing.T) {
	c, _ := newController(tester.WithScript("job", tester.Script{FetchErr: errors.New("disk full")}))
	a := newApp(t, "job")

	drive(t, c, a)

	es := a.ExitStatus()
	require.Equal(t, core.ExitCodeIOError, es.Code)
	require.ErrorIs(t, es.Err(), core.ErrBackendFailure)
	require.Nil(t, a.Output())
}

func Test_Application_Stopped(t *testing.T) {
	c, _ := newController(tester.WithScript("job", tester.Script{
		States: []backend.JobState{backend.JobStopped, backend.JobRunning},
	}))
	a := newApp(t, "job")

	drive(t, c, a)

	require.Equal(t, []core.State{
		core.StateSubmitted,
		core.StateStopped,
		core.StateRunning,
		core.StateTerminating,
		core.StateTerminated,
	}, reached(a.History()))
}

func Test_Application_UpdateIsIdempotent(t *testing.T) {
	c, _ := newController(tester.WithScript("job", tester.Blocked()))
	a := newApp(t, "job")

	ctx := context.Background()

	// Nothing happens before submission
	s, err := a.UpdateState(ctx, c)
	require.NoError(t, err)
	require.Equal(t, core.StateNew, s)
	require.Empty(t, a.History())

	require.NoError(t, a.Submit(ctx, c))

	for i := 0; i < 3; i++ {
		s, err := a.UpdateState(ctx, c)
		require.NoError(t, err)
		require.Equal(t, core.StateRunning, s)
	}

	require.Len(t, a.History(), 2)
}

func Test_Application_SubmitTwiceFails(t *testing.T) {
	c, _ := newController()
	a := newApp(t, "job")

	ctx := context.Background()
	require.NoError(t, a.Submit(ctx, c))

	err := a.Submit(ctx, c)
	require.ErrorIs(t, err, core.ErrInvalidState)

	var ise *core.InvalidStateError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, core.StateSubmitted, ise.State)
}

func Test_Application_Kill(t *testing.T) {
	t.Run("new", func(t *testing.T) {
		c, b := newController()
		a := newApp(t, "job")

		require.NoError(t, a.Kill(context.Background(), c))

		require.Equal(t, core.StateTerminated, a.State())
		require.Equal(t, core.ExitCodeKilled, a.ExitStatus().Code)
		require.Empty(t, b.Calls("kill"))
	})

	t.Run("running", func(t *testing.T) {
		c, b := newController(tester.WithScript("job", tester.Blocked()))
		a := newApp(t, "job")

		ctx := context.Background()
		require.NoError(t, a.Submit(ctx, c))
		_, err := a.UpdateState(ctx, c)
		require.NoError(t, err)

		require.NoError(t, a.Kill(ctx, c))

		require.Equal(t, core.StateTerminated, a.State())
		require.Equal(t, core.ExitCodeKilled, a.ExitStatus().Code)
		require.Len(t, b.Calls("kill"), 1)
	})

	t.Run("terminated", func(t *testing.T) {
		c, b := newController()
		a := newApp(t, "job")
		drive(t, c, a)

		require.NoError(t, a.Kill(context.Background(), c))

		require.True(t, a.ExitStatus().Succeeded())
		require.Empty(t, b.Calls("kill"))
	})
}

func Test_Application_OnTerminatedOncePerRun(t *testing.T) {
	c, _ := newController()

	calls := 0
	a := newApp(t, "job", WithOnTerminated(func(Task) { calls++ }))

	drive(t, c, a)
	require.Equal(t, 1, calls)

	// Further updates and kills do not terminate again
	_, err := a.UpdateState(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, a.Kill(context.Background(), c))
	require.Equal(t, 1, calls)

	require.NoError(t, a.Redo())
	require.Equal(t, core.StateNew, a.State())
	require.Empty(t, a.Handle())

	drive(t, c, a)
	require.Equal(t, 2, calls)
}

func Test_Application_RedoRequiresTerminated(t *testing.T) {
	a := newApp(t, "job")

	require.ErrorIs(t, a.Redo(), core.ErrInvalidState)
}

func Test_Application_HistoryUsesClock(t *testing.T) {
	clk := clock.NewMock()
	c, _ := newController()
	a := newApp(t, "job", WithClock(clk))

	drive(t, c, a)

	for _, tr := range a.History() {
		require.Equal(t, clk.Now(), tr.At)
	}
}

func Test_Application_ContextErrorsAreReturned(t *testing.T) {
	b := backend.NewMockBackend(t)
	b.On("Logger").Return(backend.DefaultOptions.Logger)
	b.On("Tracer").Return(backend.DefaultOptions.TracerProvider.Tracer(backend.TracerName))
	b.On("Name").Return("mock")
	b.On("Metrics").Return(backend.DefaultOptions.Metrics)
	b.On("Submit", mock.Anything, mock.Anything).Return(backend.Handle("h"), nil)

	c := NewController(b)
	a := newApp(t, "job")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Submit(ctx, c))

	cancel()
	b.On("Poll", mock.Anything, backend.Handle("h")).Return(backend.Status{}, context.Canceled)

	s, err := a.UpdateState(ctx, c)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, core.StateSubmitted, s)

	// Interruptions are not counted as poll failures
	require.Equal(t, 0, a.pollFailures)
}

func Test_Application_SubmitSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))

	c, _ := newController(tester.WithBackendOptions(backend.WithTracerProvider(tp)))
	a := newApp(t, "job")

	require.NoError(t, a.Submit(context.Background(), c))

	spans := exporter.GetSpans().Snapshots()
	require.Len(t, spans, 1)
	require.Equal(t, "Application.Submit", spans[0].Name())
}
