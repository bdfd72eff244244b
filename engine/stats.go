package engine

import (
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/workflow"
)

// Stats counts the tasks managed by an engine, roots and all their descendants.
type Stats struct {
	ByState map[core.State]int

	// Terminated tasks that succeeded and failed
	OK     int
	Failed int

	Total int

	ByKind map[workflow.Kind]map[core.State]int
}

// Stats returns counts over every task in the trees of the managed roots.
func (e *Engine) Stats() Stats {
	s := Stats{
		ByState: map[core.State]int{},
		ByKind:  map[workflow.Kind]map[core.State]int{},
	}

	for _, st := range core.States {
		s.ByState[st] = 0
	}

	for _, r := range e.Tasks() {
		workflow.Walk(r, func(t workflow.Task, _ int) bool {
			state := t.State()

			s.Total++
			s.ByState[state]++

			kind, ok := s.ByKind[t.Kind()]
			if !ok {
				kind = map[core.State]int{}
				s.ByKind[t.Kind()] = kind
			}
			kind[state]++

			if state == core.StateTerminated {
				if t.ExitStatus().Succeeded() {
					s.OK++
				} else {
					s.Failed++
				}
			}

			return true
		})
	}

	return s
}
