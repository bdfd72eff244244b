package core

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
)

// State is the lifecycle state of a task.
type State int

const (
	StateNew State = iota
	StateSubmitted
	StateRunning
	StateStopped
	// StateTerminating is entered while the output of a finished job is being retrieved.
	StateTerminating
	StateTerminated
)

var stateNames = map[State]string{
	StateNew:         "NEW",
	StateSubmitted:   "SUBMITTED",
	StateRunning:     "RUNNING",
	StateStopped:     "STOPPED",
	StateTerminating: "TERMINATING",
	StateTerminated:  "TERMINATED",
}

// States lists all states in lifecycle order.
var States = []State{StateNew, StateSubmitted, StateRunning, StateStopped, StateTerminating, StateTerminated}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal returns true if no further transition happens without an explicit re-run.
func (s State) Terminal() bool {
	return s == StateTerminated
}

// Active returns true for states in which a task is making progress on a backend.
func (s State) Active() bool {
	switch s {
	case StateSubmitted, StateRunning, StateStopped, StateTerminating:
		return true
	}

	return false
}

func ParseState(v string) (State, error) {
	for s, n := range stateNames {
		if strings.EqualFold(n, v) {
			return s, nil
		}
	}

	return StateNew, fmt.Errorf("unknown state %q", v)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}

	*s = v
	return nil
}

var (
	_ sql.Scanner   = (*State)(nil)
	_ driver.Valuer = State(0)
)

func (s State) Value() (driver.Value, error) {
	return s.String(), nil
}

func (s *State) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into State", value)
	}
}

var transitions = map[State][]State{
	StateNew:         {StateSubmitted, StateTerminated},
	StateSubmitted:   {StateRunning, StateStopped, StateTerminated},
	StateRunning:     {StateStopped, StateTerminating, StateTerminated},
	StateStopped:     {StateRunning, StateTerminated},
	StateTerminating: {StateTerminated},
	StateTerminated:  {StateNew},
}

// CanTransition reports whether from -> to is an edge of the task state machine.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}
