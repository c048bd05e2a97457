package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bookkeeper.org/internal/bookkeeper"
)

// Store backs the three persistence contracts with Postgres.
type Store struct {
	db *sql.DB
}

var (
	_ bookkeeper.QuotaStore    = (*Store)(nil)
	_ bookkeeper.UsageStore    = (*Store)(nil)
	_ bookkeeper.CustomerStore = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool. Used by tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// wrapErr maps driver errors onto the typed error kinds: missing rows read as
// ErrNotFound, everything else is a connectivity-class failure the caller may
// retry.
func wrapErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return bookkeeper.ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", bookkeeper.ErrTransient, op, err)
}
