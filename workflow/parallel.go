package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/cschleiden/go-taskflow/core"
	"golang.org/x/sync/errgroup"
)

// ParallelCollection runs all of its children at the same time, as far as the controller admits
// them. It terminates once every child terminated.
//
// The exit status is success if every child succeeded. Otherwise it carries the exit code and
// failure of the first failed child in collection order, independent of the order in which
// the children finished.
type ParallelCollection struct {
	execution

	concurrency int

	listMu  sync.Mutex
	tasks   []Task
	removed []Task
}

var _ Task = (*ParallelCollection)(nil)

func NewParallel(name string, tasks []Task, opts ...Option) (*ParallelCollection, error) {
	o := applyOptions(opts)

	p := &ParallelCollection{
		concurrency: o.Concurrency,
		tasks:       append([]Task{}, tasks...),
	}
	p.init(p, name, KindParallel, o)

	if err := attachAll(p, p.tasks); err != nil {
		return nil, fmt.Errorf("parallel collection %q: %w", name, err)
	}

	return p, nil
}

func (p *ParallelCollection) Children() []Task {
	p.listMu.Lock()
	defer p.listMu.Unlock()

	return append([]Task{}, p.tasks...)
}

// ChildStatus is the state of a child of a parallel collection.
type ChildStatus struct {
	ID         string
	Name       string
	State      core.State
	ExitStatus core.ExitStatus
}

// Statuses returns the status of every child in collection order.
func (p *ParallelCollection) Statuses() []ChildStatus {
	tasks := p.Children()

	r := make([]ChildStatus, 0, len(tasks))
	for _, t := range tasks {
		r = append(r, ChildStatus{
			ID:         t.ID(),
			Name:       t.Name(),
			State:      t.State(),
			ExitStatus: t.ExitStatus(),
		})
	}

	return r
}

// Add adds t to the collection. It is started during the next update.
func (p *ParallelCollection) Add(t Task) error {
	if p.State().Terminal() {
		return p.invalid("add to")
	}

	if err := attach(p, t); err != nil {
		return err
	}

	p.listMu.Lock()
	p.tasks = append(p.tasks, t)
	p.listMu.Unlock()

	p.touch()

	return nil
}

// Remove takes t out of the collection. An active task is killed during the next update.
func (p *ParallelCollection) Remove(t Task) error {
	if p.State().Terminal() {
		return p.invalid("remove from")
	}

	p.listMu.Lock()

	idx := -1
	for i, c := range p.tasks {
		if c.base() == t.base() {
			idx = i
			break
		}
	}

	if idx < 0 {
		p.listMu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotChild, t.ID())
	}

	p.tasks = append(p.tasks[:idx:idx], p.tasks[idx+1:]...)
	if t.State().Active() {
		p.removed = append(p.removed, t)
	}
	p.listMu.Unlock()

	detach(t)
	p.touch()

	return nil
}

func (p *ParallelCollection) Submit(ctx context.Context, c Controller) error {
	p.op.Lock()
	defer p.op.Unlock()

	if p.State() != core.StateNew {
		return p.invalid("submit")
	}

	p.bind(c)

	if err := p.transition(core.StateSubmitted, ""); err != nil {
		return err
	}

	return p.submitChildren(ctx, c)
}

// submitChildren submits every new child the controller admits.
func (p *ParallelCollection) submitChildren(ctx context.Context, c Controller) error {
	for _, t := range p.Children() {
		if t.State() != core.StateNew || !c.Admit(t) {
			continue
		}

		if err := t.Submit(ctx, c); err != nil {
			return err
		}
	}

	return nil
}

func (p *ParallelCollection) UpdateState(ctx context.Context, c Controller) (core.State, error) {
	p.op.Lock()
	defer p.op.Unlock()

	state := p.State()
	if state == core.StateNew || state.Terminal() {
		return state, nil
	}

	p.listMu.Lock()
	removed := p.removed
	p.removed = nil
	p.listMu.Unlock()

	if err := killAll(ctx, c, removed); err != nil {
		return state, err
	}

	if err := p.submitChildren(ctx, c); err != nil {
		return p.State(), err
	}

	tasks := p.Children()
	if err := p.updateChildren(ctx, c, tasks); err != nil {
		return p.State(), err
	}

	active, stopped := 0, 0
	for _, t := range tasks {
		switch s := t.State(); {
		case s == core.StateStopped:
			stopped++
			active++
		case !s.Terminal():
			active++
		}
	}

	if active == 0 {
		if err := p.transition(core.StateRunning, ""); err != nil {
			return p.State(), err
		}

		return core.StateTerminated, p.terminate(aggregate(tasks))
	}

	target := core.StateRunning
	if stopped == active {
		target = core.StateStopped
	}

	if err := p.transition(target, ""); err != nil {
		p.taskLogger().Debug("cannot follow child states", "error", err)
	}

	return p.State(), nil
}

func (p *ParallelCollection) updateChildren(ctx context.Context, c Controller, tasks []Task) error {
	if p.concurrency <= 1 {
		for _, t := range tasks {
			if !t.State().Active() {
				continue
			}

			if _, err := t.UpdateState(ctx, c); err != nil {
				return err
			}
		}

		return nil
	}

	// Children are disjoint subtrees and can be updated independently
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, t := range tasks {
		if !t.State().Active() {
			continue
		}

		g.Go(func() error {
			_, err := t.UpdateState(gctx, c)
			return err
		})
	}

	return g.Wait()
}

func aggregate(tasks []Task) core.ExitStatus {
	var first *core.ExitStatus
	failed := 0

	for _, t := range tasks {
		es := t.ExitStatus()
		if es.Succeeded() {
			continue
		}

		failed++
		if first == nil {
			first = &es
		}
	}

	if first == nil {
		return core.Success()
	}

	return core.ExitStatus{
		Code:    first.Code,
		Reason:  fmt.Sprintf("%d of %d tasks failed", failed, len(tasks)),
		Failure: first.Failure,
	}
}

func (p *ParallelCollection) Kill(ctx context.Context, c Controller) error {
	p.op.Lock()
	defer p.op.Unlock()

	if p.State().Terminal() {
		return nil
	}

	p.listMu.Lock()
	tasks := append(append([]Task{}, p.removed...), p.tasks...)
	p.removed = nil
	p.listMu.Unlock()

	if err := killAll(ctx, c, tasks); err != nil {
		return err
	}

	return p.terminate(core.Killed())
}

func (p *ParallelCollection) Redo() error {
	p.op.Lock()
	defer p.op.Unlock()

	if p.State() != core.StateTerminated {
		return p.invalid("redo")
	}

	for _, t := range p.Children() {
		if t.State() == core.StateTerminated {
			if err := t.Redo(); err != nil {
				return err
			}
		}
	}

	return p.transition(core.StateNew, "redo")
}
