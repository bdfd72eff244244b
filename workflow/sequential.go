package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/log"
)

type Decision int

const (
	// Continue moves on to the next child of the sequence.
	Continue Decision = iota

	// Stop terminates the sequence, later children are not run.
	Stop
)

// NextFunc is called after the current child of a sequential collection terminated. done is the
// number of children that have terminated so far. The function may edit the collection.
type NextFunc func(s *SequentialCollection, done int) (Decision, error)

// ContinueOnFailure runs every child of the sequence regardless of the outcome of the previous ones.
func ContinueOnFailure(s *SequentialCollection, done int) (Decision, error) {
	return Continue, nil
}

// AbortOnFailure stops the sequence after the first child that did not succeed.
func AbortOnFailure(s *SequentialCollection, done int) (Decision, error) {
	if t := s.Task(done - 1); t != nil && !t.ExitStatus().Succeeded() {
		return Stop, nil
	}

	return Continue, nil
}

// SequentialCollection runs its children one after the other. The sequence can be edited while
// it runs, as long as only entries at or after the cursor are touched.
type SequentialCollection struct {
	execution

	next NextFunc

	// listMu guards the fields below
	listMu    sync.Mutex
	tasks     []Task
	cursor    int
	abandoned []Task
	last      Task
}

var _ Task = (*SequentialCollection)(nil)

func NewSequential(name string, tasks []Task, opts ...Option) (*SequentialCollection, error) {
	o := applyOptions(opts)

	s := &SequentialCollection{
		next:  o.Next,
		tasks: append([]Task{}, tasks...),
	}
	s.init(s, name, KindSequential, o)

	if err := attachAll(s, s.tasks); err != nil {
		return nil, fmt.Errorf("sequential collection %q: %w", name, err)
	}

	for s.cursor < len(s.tasks) && s.tasks[s.cursor].State().Terminal() {
		s.last = s.tasks[s.cursor]
		s.cursor++
	}

	return s, nil
}

func (s *SequentialCollection) Children() []Task {
	s.listMu.Lock()
	defer s.listMu.Unlock()

	return append([]Task{}, s.tasks...)
}

// Len returns the number of entries in the sequence.
func (s *SequentialCollection) Len() int {
	s.listMu.Lock()
	defer s.listMu.Unlock()

	return len(s.tasks)
}

// Task returns the entry at index i, nil if there is none.
func (s *SequentialCollection) Task(i int) Task {
	s.listMu.Lock()
	defer s.listMu.Unlock()

	if i < 0 || i >= len(s.tasks) {
		return nil
	}

	return s.tasks[i]
}

// Cursor returns the index of the current entry. It equals Len once the sequence is exhausted.
func (s *SequentialCollection) Cursor() int {
	s.listMu.Lock()
	defer s.listMu.Unlock()

	return s.cursor
}

func (s *SequentialCollection) editError(i int, reason string) error {
	return &core.SequenceEditError{TaskID: s.id, Index: i, Cursor: s.cursor, Reason: reason}
}

// checkEdit validates that entry i may be changed. listMu must be held.
func (s *SequentialCollection) checkEdit(i int) error {
	if s.State().Terminal() {
		return s.editError(i, "collection is terminated")
	}

	if i < 0 || i >= len(s.tasks) {
		return s.editError(i, "index out of range")
	}

	if i < s.cursor {
		return s.editError(i, "entry is before the cursor")
	}

	if s.tasks[i].State().Terminal() {
		return s.editError(i, "entry is terminated")
	}

	return nil
}

// Append adds t to the end of the sequence.
func (s *SequentialCollection) Append(t Task) error {
	if s.State().Terminal() {
		s.listMu.Lock()
		defer s.listMu.Unlock()

		return s.editError(len(s.tasks), "collection is terminated")
	}

	if err := attach(s, t); err != nil {
		return err
	}

	s.listMu.Lock()
	s.tasks = append(s.tasks, t)
	s.listMu.Unlock()

	s.touch()

	return nil
}

// Remove deletes entry i from the sequence. Removing the running current entry abandons it: it is
// killed during the next update and the following entry becomes current.
func (s *SequentialCollection) Remove(i int) error {
	s.listMu.Lock()

	if err := s.checkEdit(i); err != nil {
		s.listMu.Unlock()
		return err
	}

	t := s.tasks[i]
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	if t.State().Active() {
		s.abandoned = append(s.abandoned, t)
	}
	s.listMu.Unlock()

	detach(t)
	s.touch()

	s.taskLogger().Debug("removed task from sequence", log.IndexKey, i, "removed", t.ID())

	return nil
}

// Replace swaps entry i for t. A running entry is abandoned as in Remove.
func (s *SequentialCollection) Replace(i int, t Task) error {
	s.listMu.Lock()
	err := s.checkEdit(i)
	s.listMu.Unlock()
	if err != nil {
		return err
	}

	if err := attach(s, t); err != nil {
		return err
	}

	s.listMu.Lock()

	// The sequence may have changed while the lock was released
	if err := s.checkEdit(i); err != nil {
		s.listMu.Unlock()
		detach(t)
		return err
	}

	old := s.tasks[i]
	s.tasks[i] = t
	if old.State().Active() {
		s.abandoned = append(s.abandoned, old)
	}
	s.listMu.Unlock()

	detach(old)
	s.touch()

	return nil
}

// RedoFrom re-runs a terminated sequence starting with entry i. Entries from i on are reset to
// NEW, earlier entries keep their outcome.
func (s *SequentialCollection) RedoFrom(i int) error {
	s.op.Lock()
	defer s.op.Unlock()

	return s.redoFrom(i)
}

func (s *SequentialCollection) redoFrom(i int) error {
	if s.State() != core.StateTerminated {
		return s.invalid("redo")
	}

	s.listMu.Lock()
	if i < 0 || i > len(s.tasks) {
		s.listMu.Unlock()
		return s.editError(i, "index out of range")
	}

	tasks := append([]Task{}, s.tasks[i:]...)
	s.cursor = i
	s.last = nil
	if i > 0 {
		s.last = s.tasks[i-1]
	}
	s.listMu.Unlock()

	for _, t := range tasks {
		if t.State() == core.StateTerminated {
			if err := t.Redo(); err != nil {
				return err
			}
		}
	}

	return s.transition(core.StateNew, fmt.Sprintf("redo from %d", i))
}

func (s *SequentialCollection) Redo() error {
	return s.RedoFrom(0)
}

func (s *SequentialCollection) current() Task {
	s.listMu.Lock()
	defer s.listMu.Unlock()

	if s.cursor >= len(s.tasks) {
		return nil
	}

	return s.tasks[s.cursor]
}

func (s *SequentialCollection) Submit(ctx context.Context, c Controller) error {
	s.op.Lock()
	defer s.op.Unlock()

	if s.State() != core.StateNew {
		return s.invalid("submit")
	}

	s.bind(c)

	if err := s.transition(core.StateSubmitted, ""); err != nil {
		return err
	}

	if cur := s.current(); cur != nil && cur.State() == core.StateNew && c.Admit(cur) {
		return cur.Submit(ctx, c)
	}

	return nil
}

func (s *SequentialCollection) UpdateState(ctx context.Context, c Controller) (core.State, error) {
	s.op.Lock()
	defer s.op.Unlock()

	state := s.State()
	if state == core.StateNew || state.Terminal() {
		return state, nil
	}

	s.listMu.Lock()
	abandoned := s.abandoned
	s.abandoned = nil
	s.listMu.Unlock()

	for _, t := range abandoned {
		if err := t.Kill(ctx, c); err != nil {
			return s.State(), err
		}
	}

	for {
		cur := s.current()
		if cur == nil {
			s.listMu.Lock()
			last := s.last
			s.listMu.Unlock()

			exit := core.Success()
			if last != nil {
				exit = last.ExitStatus()
			}

			if err := s.transition(core.StateRunning, ""); err != nil {
				return s.State(), err
			}

			return core.StateTerminated, s.terminate(exit)
		}

		if cur.State() == core.StateNew {
			if !c.Admit(cur) {
				return s.follow(cur), nil
			}

			if err := cur.Submit(ctx, c); err != nil {
				return s.State(), err
			}
		}

		if _, err := cur.UpdateState(ctx, c); err != nil {
			return s.State(), err
		}

		s.listMu.Lock()
		// cur may have been removed or replaced while it was updated
		moved := s.cursor >= len(s.tasks) || s.tasks[s.cursor] != cur
		s.listMu.Unlock()
		if moved {
			continue
		}

		if !cur.State().Terminal() {
			return s.follow(cur), nil
		}

		s.follow(cur)

		s.listMu.Lock()
		s.last = cur
		done := s.cursor + 1
		s.listMu.Unlock()

		decision, err := s.next(s, done)
		if err != nil {
			s.taskLogger().Error("next hook failed", log.CursorKey, done-1, "error", err)
			return core.StateTerminated, s.terminate(core.FailedWith(core.ExitCodeSoftware, err))
		}

		s.listMu.Lock()
		// Entries before the terminated child cannot change, so it is still at the cursor
		s.cursor++
		s.listMu.Unlock()
		s.touch()

		if decision == Stop {
			return core.StateTerminated, s.terminate(cur.ExitStatus())
		}
	}
}

// follow reflects the state of the current child in the collection's own state.
func (s *SequentialCollection) follow(cur Task) core.State {
	target := core.StateRunning
	switch cur.State() {
	case core.StateNew:
		return s.State()
	case core.StateStopped:
		target = core.StateStopped
	}

	if err := s.transition(target, ""); err != nil {
		s.taskLogger().Debug("cannot follow child state", "error", err)
	}

	return s.State()
}

func (s *SequentialCollection) Kill(ctx context.Context, c Controller) error {
	s.op.Lock()
	defer s.op.Unlock()

	if s.State().Terminal() {
		return nil
	}

	s.listMu.Lock()
	tasks := append(append([]Task{}, s.abandoned...), s.tasks...)
	s.abandoned = nil
	s.listMu.Unlock()

	if err := killAll(ctx, c, tasks); err != nil {
		return err
	}

	return s.terminate(core.Killed())
}

// killAll kills every non-terminal task. Terminal tasks are skipped.
func killAll(ctx context.Context, c Controller, tasks []Task) error {
	for _, t := range tasks {
		if t.State().Terminal() {
			continue
		}

		if err := t.Kill(ctx, c); err != nil {
			return err
		}
	}

	return nil
}
