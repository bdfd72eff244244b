// Package sqlstore implements the queries shared by the SQL snapshot stores.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/workflow"
)

// Store runs the snapshot queries against a database with a `workflows` table. Upsert is the
// dialect specific statement inserting or replacing a row from
// (id, name, kind, state, snapshot, updated_at).
type Store struct {
	DB      *sql.DB
	Upsert  string
	Options *store.Options
}

func (s *Store) Save(ctx context.Context, snap workflow.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if _, err := s.DB.ExecContext(
		ctx,
		s.Upsert,
		snap.ID,
		snap.Name,
		string(snap.Kind),
		snap.State,
		data,
		s.Options.Clock.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("saving workflow %v: %w", snap.ID, err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*workflow.Snapshot, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT snapshot FROM `workflows` WHERE id = ?", id)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", store.ErrNotFound, id)
		}

		return nil, fmt.Errorf("loading workflow %v: %w", id, err)
	}

	var snap workflow.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}

	return &snap, nil
}

func (s *Store) List(ctx context.Context) ([]store.Entry, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT id, name, kind, state, updated_at FROM `workflows` ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	entries := make([]store.Entry, 0)

	for rows.Next() {
		var e store.Entry
		var kind string
		var state core.State
		var updatedAt int64

		if err := rows.Scan(&e.ID, &e.Name, &kind, &state, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning workflow: %w", err)
		}

		e.Kind = workflow.Kind(kind)
		e.State = state
		e.UpdatedAt = time.UnixMilli(updatedAt).UTC()

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}

	return entries, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM `workflows` WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("removing workflow %v: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%w: %v", store.ErrNotFound, id)
	}

	return nil
}
