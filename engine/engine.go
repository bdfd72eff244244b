// Package engine drives workflows: it submits new root tasks, advances active ones by polling
// them, applies admission limits to applications and persists workflow snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/internal/metrickeys"
	"github.com/cschleiden/go-taskflow/log"
	"github.com/cschleiden/go-taskflow/metrics"
	"github.com/cschleiden/go-taskflow/workflow"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnknownTask    = errors.New("task is not managed by the engine")
	ErrNotRoot        = errors.New("task is part of a collection")
	ErrAlreadyStarted = errors.New("engine is already running in the background")
)

type Engine struct {
	b       backend.Backend
	options *Options

	logger *slog.Logger
	tracer trace.Tracer
	mc     metrics.Client
	clock  clock.Clock

	// progressMu serialises calls to Progress
	progressMu sync.Mutex

	mu        sync.Mutex
	tasks     []workflow.Task
	kills     []workflow.Task
	revisions map[string]uint64

	// admitMu guards the admission counters, recomputed at the start of each Progress
	admitMu   sync.Mutex
	inFlight  int
	submitted int

	forgotten *ttlcache.Cache[string, workflow.Snapshot]

	bgMu     sync.Mutex
	bgCancel context.CancelFunc
	bgDone   chan struct{}
}

var _ workflow.Controller = (*Engine)(nil)

func New(b backend.Backend, opts ...Option) *Engine {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.PollingInterval <= 0 {
		options.PollingInterval = DefaultOptions.PollingInterval
	}

	mc := b.Metrics()

	forgotten := ttlcache.New(
		ttlcache.WithTTL[string, workflow.Snapshot](options.ForgottenTTL),
		ttlcache.WithCapacity[string, workflow.Snapshot](uint64(options.ForgottenCacheSize)),
		ttlcache.WithDisableTouchOnHit[string, workflow.Snapshot](),
	)

	forgotten.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, workflow.Snapshot]) {
		reason := ""
		switch er {
		case ttlcache.EvictionReasonExpired:
			reason = "expired"
		case ttlcache.EvictionReasonCapacityReached:
			reason = "capacity"
		case ttlcache.EvictionReasonDeleted:
			reason = "deleted"
		}

		mc.Counter(metrickeys.EngineForgottenCacheEviction, metrics.Tags{metrickeys.EvictionReason: reason}, 1)
	})

	clk := b.Options().Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		b:         b,
		options:   &options,
		logger:    b.Logger().With(log.BackendKey, b.Name()),
		tracer:    b.Tracer(),
		mc:        mc,
		clock:     clk,
		revisions: map[string]uint64{},
		forgotten: forgotten,
	}
}

func (e *Engine) Backend() backend.Backend {
	return e.b
}

// Add hands a root task to the engine. It is submitted by the next Progress. Adding a task
// twice has no effect.
func (e *Engine) Add(t workflow.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rootIndex(t) >= 0 {
		return nil
	}

	// Roots cannot become children of a collection while the engine drives them
	if err := workflow.Claim(t); err != nil {
		return fmt.Errorf("adding task %s: %w", t.ID(), errors.Join(ErrNotRoot, err))
	}

	e.tasks = append(e.tasks, t)

	e.logger.Debug("added task", log.TaskIDKey, t.ID(), log.TaskNameKey, t.Name(), log.TaskKindKey, t.Kind())

	return nil
}

// Remove stops managing the root task t. The task is not killed.
func (e *Engine) Remove(t workflow.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.rootIndex(t)
	if i < 0 {
		return fmt.Errorf("removing task %s: %w", t.ID(), ErrUnknownTask)
	}

	e.tasks = append(e.tasks[:i:i], e.tasks[i+1:]...)
	delete(e.revisions, t.ID())
	workflow.Release(t)

	return nil
}

// rootIndex returns the position of t in the root tasks, -1 if it is not a root. mu must be held.
func (e *Engine) rootIndex(t workflow.Task) int {
	for i, r := range e.tasks {
		if r.ID() == t.ID() {
			return i
		}
	}

	return -1
}

// Tasks returns the root tasks managed by the engine.
func (e *Engine) Tasks() []workflow.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]workflow.Task{}, e.tasks...)
}

// Find looks up a managed task, root or descendant, by id.
func (e *Engine) Find(id string) (workflow.Task, bool) {
	var found workflow.Task

	for _, r := range e.Tasks() {
		workflow.Walk(r, func(t workflow.Task, _ int) bool {
			if found != nil {
				return false
			}

			if t.ID() == id {
				found = t
				return false
			}

			return true
		})

		if found != nil {
			return found, true
		}
	}

	return nil, false
}

// Forgotten returns the last snapshot of a terminated root that was dropped by the engine.
func (e *Engine) Forgotten(id string) (workflow.Snapshot, bool) {
	item := e.forgotten.Get(id)
	if item == nil {
		return workflow.Snapshot{}, false
	}

	return item.Value(), true
}

// Kill requests t to be killed. The kill is carried out by the next Progress.
func (e *Engine) Kill(t workflow.Task) error {
	if _, ok := e.Find(t.ID()); !ok {
		return fmt.Errorf("killing task %s: %w", t.ID(), ErrUnknownTask)
	}

	if t.State().Terminal() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.kills = append(e.kills, t)

	return nil
}

// Redo resets the terminated root task t, the next Progress submits it again.
func (e *Engine) Redo(t workflow.Task) error {
	e.mu.Lock()
	isRoot := e.rootIndex(t) >= 0
	e.mu.Unlock()

	if !isRoot {
		if _, ok := e.Find(t.ID()); ok {
			return fmt.Errorf("redoing task %s: %w", t.ID(), ErrNotRoot)
		}

		return fmt.Errorf("redoing task %s: %w", t.ID(), ErrUnknownTask)
	}

	return t.Redo()
}

// Admit implements workflow.Controller. Only applications are subject to the limits of the
// engine, collections are always admitted.
func (e *Engine) Admit(t workflow.Task) bool {
	if !workflow.IsApplication(t) {
		return true
	}

	e.admitMu.Lock()
	defer e.admitMu.Unlock()

	admitted := true
	switch {
	case e.options.CanSubmit != nil && !e.options.CanSubmit(t):
		admitted = false
	case e.options.MaxInFlight > 0 && e.inFlight >= e.options.MaxInFlight:
		admitted = false
	case e.options.MaxSubmitted > 0 && e.submitted >= e.options.MaxSubmitted:
		admitted = false
	}

	if !admitted {
		e.mc.Counter(metrickeys.EngineNotAdmitted, metrics.Tags{}, 1)
		return false
	}

	e.inFlight++
	e.submitted++

	return true
}

// recount recomputes the admission counters from the applications in the trees of roots.
func (e *Engine) recount(roots []workflow.Task) {
	inFlight, submitted := 0, 0

	for _, r := range roots {
		workflow.Walk(r, func(t workflow.Task, _ int) bool {
			if !workflow.IsApplication(t) {
				return true
			}

			s := t.State()
			if s.Active() {
				inFlight++
			}

			if s == core.StateSubmitted {
				submitted++
			}

			return true
		})
	}

	e.admitMu.Lock()
	defer e.admitMu.Unlock()

	e.inFlight = inFlight
	e.submitted = submitted
}

// Progress advances every managed workflow by one step: requested kills are carried out, active
// roots are updated and new roots are submitted if admitted.
func (e *Engine) Progress(ctx context.Context) error {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()

	timer := metrics.NewTimer(e.mc, e.clock, metrickeys.EngineProgress, metrics.Tags{})
	defer timer.Stop()

	e.mu.Lock()
	roots := append([]workflow.Task{}, e.tasks...)
	kills := e.kills
	e.kills = nil
	e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "Engine.Progress", trace.WithAttributes(
		attribute.Int("tasks", len(roots)),
		attribute.Int("kills", len(kills)),
	))
	defer span.End()

	prev := make([]core.State, len(roots))
	for i, r := range roots {
		prev[i] = r.State()
	}

	var errs []error

	for _, t := range kills {
		if err := t.Kill(ctx, e); err != nil {
			if interrupted(err) {
				return err
			}

			errs = append(errs, fmt.Errorf("killing task %s: %w", t.ID(), err))
		}
	}

	e.recount(roots)

	for _, r := range roots {
		if !r.State().Active() {
			continue
		}

		if _, err := r.UpdateState(ctx, e); err != nil {
			if interrupted(err) {
				return err
			}

			errs = append(errs, fmt.Errorf("updating task %s: %w", r.ID(), err))
		}
	}

	// Applications that terminated during the update free their slots for new roots
	e.recount(roots)

	for _, r := range roots {
		if r.State() != core.StateNew || !e.Admit(r) {
			continue
		}

		if err := r.Submit(ctx, e); err != nil {
			if interrupted(err) {
				return err
			}

			errs = append(errs, fmt.Errorf("submitting task %s: %w", r.ID(), err))
		}
	}

	var done []workflow.Task
	for i, r := range roots {
		if !prev[i].Terminal() && r.State().Terminal() {
			e.terminated(ctx, r)
			done = append(done, r)
		}
	}

	e.persist(ctx, roots)

	if e.options.ForgetTerminated {
		e.forget(done)
	}

	e.mc.Gauge(metrickeys.EngineTasksManaged, metrics.Tags{}, int64(len(e.Tasks())))
	e.admitMu.Lock()
	e.mc.Gauge(metrickeys.EngineInFlight, metrics.Tags{}, int64(e.inFlight))
	e.admitMu.Unlock()

	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) terminated(ctx context.Context, t workflow.Task) {
	es := t.ExitStatus()

	outcome := "ok"
	if !es.Succeeded() {
		outcome = "failed"
	}

	e.mc.Counter(metrickeys.TaskTerminated, metrics.Tags{
		metrickeys.Kind:    string(t.Kind()),
		metrickeys.Outcome: outcome,
	}, 1)

	e.logger.InfoContext(ctx, "workflow terminated",
		log.TaskIDKey, t.ID(),
		log.TaskNameKey, t.Name(),
		log.ExitCodeKey, es.Code,
		log.ReasonKey, es.Reason,
	)
}

// persist saves the snapshots of the roots that changed since they were last saved.
func (e *Engine) persist(ctx context.Context, roots []workflow.Task) {
	if e.options.Store == nil {
		return
	}

	for _, r := range roots {
		rev := workflow.Revision(r)

		e.mu.Lock()
		last, ok := e.revisions[r.ID()]
		e.mu.Unlock()

		if ok && last == rev {
			continue
		}

		if err := e.options.Store.Save(ctx, r.Snapshot()); err != nil {
			e.logger.ErrorContext(ctx, "could not save workflow", log.TaskIDKey, r.ID(), "error", err)
			e.mc.Counter(metrickeys.EngineStoreErrors, metrics.Tags{}, 1)
			continue
		}

		e.mu.Lock()
		e.revisions[r.ID()] = rev
		e.mu.Unlock()
	}
}

func (e *Engine) forget(done []workflow.Task) {
	if len(done) == 0 {
		return
	}

	e.forgotten.DeleteExpired()

	for _, t := range done {
		e.forgotten.Set(t.ID(), t.Snapshot(), ttlcache.DefaultTTL)

		e.mu.Lock()
		if i := e.rootIndex(t); i >= 0 {
			e.tasks = append(e.tasks[:i:i], e.tasks[i+1:]...)
			workflow.Release(t)
		}
		delete(e.revisions, t.ID())
		e.mu.Unlock()

		e.logger.Debug("forgot terminated workflow", log.TaskIDKey, t.ID())
	}

	e.mc.Gauge(metrickeys.EngineForgottenCacheSize, metrics.Tags{}, int64(e.forgotten.Len()))
}

// Done reports whether every managed root task is terminated.
func (e *Engine) Done() bool {
	for _, r := range e.Tasks() {
		if !r.State().Terminal() {
			return false
		}
	}

	return true
}

// Run calls Progress every polling interval until all managed tasks are terminated or ctx is
// canceled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.Ticker(e.options.PollingInterval)
	defer ticker.Stop()

	for {
		if err := e.Progress(ctx); err != nil {
			if interrupted(err) {
				return err
			}

			e.logger.ErrorContext(ctx, "error advancing workflows", "error", err)
		}

		if e.Done() {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Start runs the engine in the background until Stop is called or ctx is canceled. Unlike Run,
// a background engine keeps polling when all tasks are terminated, so tasks can be added at any
// time.
func (e *Engine) Start(ctx context.Context) error {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()

	if e.bgCancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	e.bgCancel = cancel
	e.bgDone = make(chan struct{})

	go e.loop(ctx, e.bgDone)

	return nil
}

func (e *Engine) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := e.clock.Ticker(e.options.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		if err := e.Progress(ctx); err != nil && ctx.Err() == nil {
			e.logger.ErrorContext(ctx, "error advancing workflows", "error", err)
		}
	}
}

// Stop ends background mode and waits for the current Progress to finish.
func (e *Engine) Stop() {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()

	if e.bgCancel == nil {
		return
	}

	e.bgCancel()
	<-e.bgDone

	e.bgCancel = nil
	e.bgDone = nil
}

// WaitFor polls until t is terminated or ctx is canceled. It does not advance t itself, the
// engine has to be running in the background or be driven by another goroutine.
func (e *Engine) WaitFor(ctx context.Context, t workflow.Task, interval time.Duration) error {
	if interval <= 0 {
		interval = e.options.PollingInterval
	}

	ticker := e.clock.Ticker(interval)
	defer ticker.Stop()

	for !t.State().Terminal() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
