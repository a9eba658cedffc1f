package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kibitzbot/kibitz/internal/model"
)

// OptOutStore implements store.OptOutStore on Postgres.
type OptOutStore struct {
	db *sql.DB
}

func NewOptOutStore(db *sql.DB) *OptOutStore {
	return &OptOutStore{db: db}
}

func (s *OptOutStore) Get(ctx context.Context, jid string) (*model.OptOut, error) {
	var o model.OptOut
	err := s.db.QueryRowContext(ctx,
		`SELECT jid, created_at FROM opt_outs WHERE jid = $1`, jid).
		Scan(&o.JID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opt-out %s: %w", jid, err)
	}
	return &o, nil
}

func (s *OptOutStore) Upsert(ctx context.Context, optOut model.OptOut) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO opt_outs (jid, created_at) VALUES ($1, $2)
		 ON CONFLICT (jid) DO NOTHING`,
		optOut.JID, optOut.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert opt-out %s: %w", optOut.JID, err)
	}
	return nil
}

func (s *OptOutStore) Delete(ctx context.Context, jid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM opt_outs WHERE jid = $1`, jid); err != nil {
		return fmt.Errorf("delete opt-out %s: %w", jid, err)
	}
	return nil
}
