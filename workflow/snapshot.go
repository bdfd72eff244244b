package workflow

import (
	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
)

// Snapshot is a serialisable description of a task and its descendants.
type Snapshot struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Kind       Kind            `json:"kind"`
	State      core.State      `json:"state"`
	ExitStatus core.ExitStatus `json:"exit_status"`

	// Application
	Handle backend.Handle `json:"handle,omitempty"`

	// Sequential and staged collections
	Cursor int `json:"cursor,omitempty"`

	// Retryable tasks
	Attempts int `json:"attempts,omitempty"`

	History  []Transition `json:"history,omitempty"`
	Children []Snapshot   `json:"children,omitempty"`
}

func (e *execution) snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		ID:         e.id,
		Name:       e.name,
		Kind:       e.kind,
		State:      e.state,
		ExitStatus: e.exit,
		History:    append([]Transition{}, e.history...),
	}
}

func snapshotAll(tasks []Task) []Snapshot {
	if len(tasks) == 0 {
		return nil
	}

	r := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		r = append(r, t.Snapshot())
	}

	return r
}

func (a *Application) Snapshot() Snapshot {
	s := a.snapshot()
	s.Handle = a.Handle()

	return s
}

func (s *SequentialCollection) Snapshot() Snapshot {
	snap := s.snapshot()
	snap.Cursor = s.Cursor()
	snap.Children = snapshotAll(s.Children())

	return snap
}

func (p *ParallelCollection) Snapshot() Snapshot {
	snap := p.snapshot()
	snap.Children = snapshotAll(p.Children())

	return snap
}

func (r *RetryableTask) Snapshot() Snapshot {
	snap := r.snapshot()
	snap.Attempts = r.Attempts()
	snap.Children = snapshotAll(r.Children())

	return snap
}

// Find returns the snapshot of the task with the given id in the tree of s.
func (s Snapshot) Find(id string) (Snapshot, bool) {
	if s.ID == id {
		return s, true
	}

	for _, c := range s.Children {
		if r, ok := c.Find(id); ok {
			return r, true
		}
	}

	return Snapshot{}, false
}

// Count returns the number of tasks in the tree of s per state.
func (s Snapshot) Count() map[core.State]int {
	r := map[core.State]int{}
	s.count(r)

	return r
}

func (s Snapshot) count(r map[core.State]int) {
	r[s.State]++
	for _, c := range s.Children {
		c.count(r)
	}
}
