package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_CanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateNew, StateSubmitted, true},
		{StateNew, StateTerminated, true},
		{StateNew, StateRunning, false},
		{StateSubmitted, StateRunning, true},
		{StateSubmitted, StateStopped, true},
		{StateSubmitted, StateNew, false},
		{StateRunning, StateStopped, true},
		{StateRunning, StateTerminating, true},
		{StateRunning, StateTerminated, true},
		{StateRunning, StateSubmitted, false},
		{StateStopped, StateRunning, true},
		{StateStopped, StateTerminating, false},
		{StateTerminating, StateTerminated, true},
		{StateTerminating, StateRunning, false},
		{StateTerminated, StateNew, true},
		{StateTerminated, StateRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			require.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func Test_State_Classification(t *testing.T) {
	for _, s := range States {
		require.False(t, s.Terminal() && s.Active(), s.String())
	}

	require.True(t, StateTerminated.Terminal())
	require.False(t, StateNew.Active())
	require.True(t, StateStopped.Active())
	require.True(t, StateTerminating.Active())
}

func Test_ParseState(t *testing.T) {
	for _, s := range States {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}

	s, err := ParseState("running")
	require.NoError(t, err)
	require.Equal(t, StateRunning, s)

	_, err = ParseState("paused")
	require.Error(t, err)

	require.Equal(t, "State(42)", State(42).String())
}

func Test_State_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]State{"state": StateTerminating})
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"TERMINATING"}`, string(b))

	var s State
	require.Error(t, json.Unmarshal([]byte(`"bogus"`), &s))
}

func Test_State_Scan(t *testing.T) {
	var s State
	require.NoError(t, s.Scan([]byte("STOPPED")))
	require.Equal(t, StateStopped, s)

	require.NoError(t, s.Scan("NEW"))
	require.Equal(t, StateNew, s)

	require.Error(t, s.Scan(42))

	v, err := StateRunning.Value()
	require.NoError(t, err)
	require.Equal(t, "RUNNING", v)
}
