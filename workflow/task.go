package workflow

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/log"
	"github.com/google/uuid"
)

type Kind string

const (
	KindApplication Kind = "application"
	KindSequential  Kind = "sequential"
	KindParallel    Kind = "parallel"
	KindStaged      Kind = "staged"
	KindRetryable   Kind = "retryable"
)

// Transition is a recorded state change of a task.
type Transition struct {
	From   core.State `json:"from"`
	To     core.State `json:"to"`
	At     time.Time  `json:"at"`
	Reason string     `json:"reason,omitempty"`
}

// Task is a schedulable unit of work. The set of tasks is closed: Application and the
// collection types of this package are the only implementations.
type Task interface {
	ID() string
	Name() string
	Kind() Kind
	State() core.State

	// ExitStatus is only meaningful once the task is terminated.
	ExitStatus() core.ExitStatus

	History() []Transition

	// Submit moves a new task to SUBMITTED. It returns a *core.InvalidStateError if the task is
	// not new. Backend failures terminate the task instead of being returned.
	Submit(ctx context.Context, c Controller) error

	// UpdateState advances the task and returns its state afterwards. New and terminated tasks
	// are not changed. The only errors returned are errors of ctx.
	UpdateState(ctx context.Context, c Controller) (core.State, error)

	// Kill terminates the task with core.ExitCodeKilled. Killing a terminated task is a no-op.
	Kill(ctx context.Context, c Controller) error

	// Redo resets a terminated task to NEW so that it can run again.
	Redo() error

	// OnTerminated registers fn to be called every time the task reaches TERMINATED. Callbacks
	// must not call operations of the task itself.
	OnTerminated(fn func(Task))

	// Children returns the direct children of a collection, nil for an application.
	Children() []Task

	Snapshot() Snapshot

	base() *execution
}

// execution holds the state shared by every task type.
type execution struct {
	// op serialises the operations of a task
	op sync.Mutex

	mu        sync.Mutex
	self      Task
	id        string
	name      string
	kind      Kind
	clock     clock.Clock
	logger    *slog.Logger
	state     core.State
	exit      core.ExitStatus
	history   []Transition
	callbacks []func(Task)
	attached  bool
	version   uint64
}

func (e *execution) init(self Task, name string, kind Kind, o *options) {
	e.self = self
	e.id = o.ID
	if e.id == "" {
		e.id = uuid.NewString()
	}
	e.name = name
	e.kind = kind
	e.clock = o.Clock
	e.logger = slog.Default()
	e.state = core.StateNew
	e.callbacks = append(e.callbacks, o.OnTerminated...)
}

func (e *execution) base() *execution {
	return e
}

func (e *execution) ID() string {
	return e.id
}

func (e *execution) Name() string {
	return e.name
}

func (e *execution) Kind() Kind {
	return e.kind
}

func (e *execution) State() core.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *execution) ExitStatus() core.ExitStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.exit
}

func (e *execution) History() []Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]Transition{}, e.history...)
}

func (e *execution) OnTerminated(fn func(Task)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.callbacks = append(e.callbacks, fn)
}

// bind uses the backend's logger for all further log output of the task.
func (e *execution) bind(c Controller) {
	l := c.Backend().Logger()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger = l.With(
		log.TaskIDKey, e.id,
		log.TaskNameKey, e.name,
		log.TaskKindKey, string(e.kind),
	)
}

func (e *execution) taskLogger() *slog.Logger {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.logger
}

func (e *execution) transition(to core.State, reason string) error {
	return e.transitionWith(to, reason, nil)
}

// terminate moves the task to TERMINATED with the given exit status.
func (e *execution) terminate(exit core.ExitStatus) error {
	return e.transitionWith(core.StateTerminated, exit.Reason, &exit)
}

func (e *execution) transitionWith(to core.State, reason string, exit *core.ExitStatus) error {
	e.mu.Lock()

	from := e.state
	if from == to {
		e.mu.Unlock()
		return nil
	}

	if !core.CanTransition(from, to) {
		e.mu.Unlock()
		return &core.InvalidStateError{TaskID: e.id, Op: "move to " + to.String(), State: from}
	}

	e.state = to
	e.version++
	e.history = append(e.history, Transition{From: from, To: to, At: e.clock.Now(), Reason: reason})

	switch {
	case exit != nil:
		e.exit = *exit
	case to == core.StateNew:
		e.exit = core.ExitStatus{}
	}

	var callbacks []func(Task)
	if to == core.StateTerminated {
		callbacks = append(callbacks, e.callbacks...)
	}

	logger := e.logger
	self := e.self
	exitStatus := e.exit
	e.mu.Unlock()

	logger.Debug("task state changed",
		log.PrevStateKey, from.String(),
		log.StateKey, to.String(),
	)

	if to == core.StateTerminated {
		logger.Debug("task terminated",
			log.ExitCodeKey, exitStatus.Code,
			log.ReasonKey, exitStatus.Reason,
		)
	}

	for _, cb := range callbacks {
		cb(self)
	}

	return nil
}

// invalid returns the error for op not being allowed in the current state.
func (e *execution) invalid(op string) error {
	return &core.InvalidStateError{TaskID: e.id, Op: op, State: e.State()}
}

func (e *execution) revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.version
}

func (e *execution) touch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.version++
}

// Walk calls fn for t and all its descendants, depth first. Returning false from fn skips the
// descendants of the task.
func Walk(t Task, fn func(t Task, depth int) bool) {
	walk(t, 0, fn)
}

func walk(t Task, depth int, fn func(Task, int) bool) {
	if !fn(t, depth) {
		return
	}

	for _, c := range t.Children() {
		walk(c, depth+1, fn)
	}
}

// Revision changes whenever the state of t or any of its descendants changes, or a collection in
// the tree is edited.
func Revision(t Task) uint64 {
	h := fnv.New64a()
	Walk(t, func(t Task, _ int) bool {
		fmt.Fprintf(h, "%s:%d;", t.ID(), t.base().revision())
		return true
	})

	return h.Sum64()
}

// IsApplication reports whether t runs a job on a backend itself, as opposed to a collection.
func IsApplication(t Task) bool {
	_, ok := t.(*Application)
	return ok
}
