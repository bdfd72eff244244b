package workflow

import (
	"errors"
	"fmt"

	"github.com/cschleiden/go-taskflow/core"
)

var ErrNotChild = errors.New("task is not a child of the collection")

// attach makes child a child of parent. It fails if child already belongs to a collection or if
// parent is child itself or one of its descendants.
func attach(parent, child Task) error {
	if child == nil {
		return errors.New("task must not be nil")
	}

	if path := findPath(child, parent); path != nil {
		names := make([]string, 0, len(path)+1)
		names = append(names, parent.Name())
		for _, t := range path {
			names = append(names, t.Name())
		}

		return &core.CyclicWorkflowError{Path: names}
	}

	e := child.base()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.attached {
		return fmt.Errorf("%w: %s", core.ErrAlreadyAttached, child.ID())
	}

	e.attached = true

	return nil
}

func attachAll(parent Task, children []Task) error {
	for i, c := range children {
		if err := attach(parent, c); err != nil {
			detachAll(children[:i])
			return err
		}
	}

	return nil
}

func detach(child Task) {
	e := child.base()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.attached = false
}

func detachAll(children []Task) {
	for _, c := range children {
		detach(c)
	}
}

// findPath returns the path from root to target, nil if target is not in the tree of root.
func findPath(root, target Task) []Task {
	if root.base() == target.base() {
		return []Task{root}
	}

	for _, c := range root.Children() {
		if p := findPath(c, target); p != nil {
			return append([]Task{root}, p...)
		}
	}

	return nil
}

// Claim marks t as owned by a driver other than a collection, such as an engine managing it as a
// root. A claimed task cannot be added to a collection until it is released.
func Claim(t Task) error {
	e := t.base()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.attached {
		return fmt.Errorf("%w: %s", core.ErrAlreadyAttached, t.ID())
	}

	e.attached = true

	return nil
}

// Release gives up a claim taken with Claim.
func Release(t Task) {
	detach(t)
}

// Attached reports whether t is the child of a collection or claimed.
func Attached(t Task) bool {
	e := t.base()

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.attached
}
