package diag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cschleiden/go-taskflow/engine"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/workflow"
)

// Source provides the workflows served by the diagnostics endpoints. store.Store implements it.
type Source interface {
	List(ctx context.Context) ([]store.Entry, error)

	// Load returns store.ErrNotFound for unknown workflows.
	Load(ctx context.Context, id string) (*workflow.Snapshot, error)
}

var _ Source = (store.Store)(nil)

type engineSource struct {
	e *engine.Engine
}

// EngineSource serves the roots managed by e and the workflows it has forgotten.
func EngineSource(e *engine.Engine) Source {
	return &engineSource{e: e}
}

func (es *engineSource) List(_ context.Context) ([]store.Entry, error) {
	now := es.e.Backend().Options().Clock.Now()

	entries := []store.Entry{}
	for _, t := range es.e.Tasks() {
		entries = append(entries, store.EntryOf(t.Snapshot(), now))
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(entries[i].ID, entries[j].ID) < 0
	})

	return entries, nil
}

func (es *engineSource) Load(_ context.Context, id string) (*workflow.Snapshot, error) {
	if t, ok := es.e.Find(id); ok {
		snap := t.Snapshot()
		return &snap, nil
	}

	if snap, ok := es.e.Forgotten(id); ok {
		return &snap, nil
	}

	return nil, fmt.Errorf("%w: %v", store.ErrNotFound, id)
}
