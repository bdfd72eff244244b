// Package store persists snapshots of the workflows managed by an engine.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/workflow"
)

var ErrNotFound = errors.New("workflow not found")

// Entry summarises a stored workflow without its task tree.
type Entry struct {
	ID        string
	Name      string
	Kind      workflow.Kind
	State     core.State
	UpdatedAt time.Time
}

//go:generate mockery --name=Store --inpackage
type Store interface {
	// Save stores the snapshot of a root task, replacing any previous one with the same id.
	Save(ctx context.Context, snap workflow.Snapshot) error

	// Load returns the last saved snapshot of the workflow with the given id, ErrNotFound if
	// there is none.
	Load(ctx context.Context, id string) (*workflow.Snapshot, error)

	// List returns all stored workflows ordered by id.
	List(ctx context.Context) ([]Entry, error)

	Remove(ctx context.Context, id string) error

	Close() error
}

// EntryOf returns the entry describing snap.
func EntryOf(snap workflow.Snapshot, updatedAt time.Time) Entry {
	return Entry{
		ID:        snap.ID,
		Name:      snap.Name,
		Kind:      snap.Kind,
		State:     snap.State,
		UpdatedAt: updatedAt,
	}
}
