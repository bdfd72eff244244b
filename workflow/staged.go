package workflow

import (
	"fmt"

	"github.com/cschleiden/go-taskflow/core"
)

// StageFunc creates the task for a stage of a staged collection. done contains the tasks of the
// previous stages, all of them succeeded. Returning a nil task ends the collection.
type StageFunc func(done []Task) (Task, error)

// StagedCollection is a sequential collection whose children are created lazily: the task for a
// stage is only built once the previous stage succeeded. A failed stage ends the collection.
type StagedCollection struct {
	SequentialCollection

	stages []StageFunc
}

var _ Task = (*StagedCollection)(nil)

func NewStaged(name string, stages []StageFunc, opts ...Option) (*StagedCollection, error) {
	o := applyOptions(opts)

	st := &StagedCollection{
		stages: stages,
	}
	st.init(st, name, KindStaged, o)
	st.next = st.nextStage

	if len(stages) > 0 {
		first, err := stages[0](nil)
		if err != nil {
			return nil, fmt.Errorf("staged collection %q: stage 0: %w", name, err)
		}

		if first != nil {
			if err := st.Append(first); err != nil {
				return nil, fmt.Errorf("staged collection %q: %w", name, err)
			}
		}
	}

	return st, nil
}

// Stages returns the number of stages of the collection.
func (st *StagedCollection) Stages() int {
	return len(st.stages)
}

// RedoFrom re-runs a terminated staged collection starting with stage i. Stages after i are
// dropped and built again once their predecessors succeed.
func (st *StagedCollection) RedoFrom(i int) error {
	st.op.Lock()
	defer st.op.Unlock()

	if st.State() != core.StateTerminated {
		return st.invalid("redo")
	}

	st.listMu.Lock()
	var dropped []Task
	if i >= 0 && i+1 < len(st.tasks) {
		dropped = append(dropped, st.tasks[i+1:]...)
		st.tasks = st.tasks[: i+1 : i+1]
	}
	st.listMu.Unlock()

	for _, t := range dropped {
		detach(t)
	}

	if err := st.redoFrom(i); err != nil {
		return err
	}

	if len(dropped) > 0 {
		st.touch()
	}

	return nil
}

func (st *StagedCollection) Redo() error {
	return st.RedoFrom(0)
}

func (st *StagedCollection) nextStage(s *SequentialCollection, done int) (Decision, error) {
	tasks := s.Children()

	if !tasks[done-1].ExitStatus().Succeeded() {
		return Stop, nil
	}

	// The stage following the one that just succeeded
	k := done
	if k < len(tasks) || k >= len(st.stages) {
		return Continue, nil
	}

	t, err := st.stages[k](tasks[:k])
	if err != nil {
		return Stop, fmt.Errorf("stage %d: %w", k, err)
	}

	if t == nil {
		return Stop, nil
	}

	if err := s.Append(t); err != nil {
		return Stop, fmt.Errorf("stage %d: %w", k, err)
	}

	return Continue, nil
}
