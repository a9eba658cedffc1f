// Package pg implements the store interfaces on Postgres via database/sql
// over the pgx stdlib driver. Schema is managed by the embedded migrations
// (see cmd migrate).
package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kibitzbot/kibitz/internal/store"
)

// OpenDB opens a Postgres connection pool.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by Postgres.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Messages: NewMessageStore(db),
		OptOuts:  NewOptOutStore(db),
		Groups:   NewGroupStore(db),
	}
}
