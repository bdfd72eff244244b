package mysql

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/cschleiden/go-taskflow/internal/sqlstore"
	"github.com/cschleiden/go-taskflow/store"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

const upsert = "INSERT INTO `workflows` (id, name, kind, state, snapshot, updated_at) VALUES (?, ?, ?, ?, ?, ?) " +
	"ON DUPLICATE KEY UPDATE name = VALUES(name), kind = VALUES(kind), state = VALUES(state), " +
	"snapshot = VALUES(snapshot), updated_at = VALUES(updated_at)"

var _ store.Store = (*mysqlStore)(nil)

func NewMysqlStore(host string, port int, user, password, database string, opts ...option) *mysqlStore {
	so := store.ApplyOptions()
	options := &options{
		Options:         &so,
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&interpolateParams=true", user, password, host, port, database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	if options.MySQLOptions != nil {
		options.MySQLOptions(db)
	}

	s := &mysqlStore{
		Store: sqlstore.Store{
			DB:      db,
			Upsert:  upsert,
			Options: options.Options,
		},
		dsn:     dsn,
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

type mysqlStore struct {
	sqlstore.Store

	dsn     string
	db      *sql.DB
	options *options
}

// Migrate applies any pending database migrations.
func (s *mysqlStore) Migrate() error {
	schemaDsn := s.dsn + "&multiStatements=true"
	db, err := sql.Open("mysql", schemaDsn)
	if err != nil {
		return fmt.Errorf("opening schema database: %w", err)
	}

	dbi, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "mysql", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		return fmt.Errorf("closing migration: %w", errors.Join(srcErr, dbErr))
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("closing schema database: %w", err)
	}

	return nil
}

func (s *mysqlStore) Close() error {
	return s.db.Close()
}
