package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/cschleiden/go-taskflow/internal/sqlstore"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

const upsert = "INSERT INTO `workflows` (id, name, kind, state, snapshot, updated_at) VALUES (?, ?, ?, ?, ?, ?) " +
	"ON CONFLICT(id) DO UPDATE SET name = excluded.name, kind = excluded.kind, state = excluded.state, " +
	"snapshot = excluded.snapshot, updated_at = excluded.updated_at"

var _ store.Store = (*sqliteStore)(nil)

// NewInMemoryStore returns a store backed by a private in-memory database.
func NewInMemoryStore(opts ...option) *sqliteStore {
	s := newSqliteStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), opts...)

	s.db.SetMaxOpenConns(1)

	return s
}

func NewSqliteStore(path string, opts ...option) *sqliteStore {
	return newSqliteStore(fmt.Sprintf("file:%v?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path), opts...)
}

func newSqliteStore(dsn string, opts ...option) *sqliteStore {
	so := store.ApplyOptions()
	options := &options{
		Options:         &so,
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	s := &sqliteStore{
		Store: sqlstore.Store{
			DB:      db,
			Upsert:  upsert,
			Options: options.Options,
		},
		db:      db,
		options: options,
	}

	if options.ApplyMigrations {
		if err := s.Migrate(); err != nil {
			panic(err)
		}
	}

	return s
}

type sqliteStore struct {
	sqlstore.Store

	db      *sql.DB
	options *options
}

// Migrate applies any pending database migrations.
func (s *sqliteStore) Migrate() error {
	dbi, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
