package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kibitzbot/kibitz/internal/model"
)

// GroupStore implements store.GroupStore on Postgres.
// Community keys are stored as a jsonb array so the linked-group lookup can
// use the jsonb exists-any operator.
type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

const groupColumns = `group_jid, name, managed, notify_on_spam, community_keys`

func (s *GroupStore) Get(ctx context.Context, groupJID string) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE group_jid = $1`, groupJID)

	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupJID, err)
	}
	return g, nil
}

func (s *GroupStore) Linked(ctx context.Context, group *model.Group) ([]model.Group, error) {
	if group == nil || len(group.CommunityKeys) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM groups
		 WHERE group_jid <> $1 AND community_keys ?| $2`,
		group.GroupJID, group.CommunityKeys)
	if err != nil {
		return nil, fmt.Errorf("linked groups for %s: %w", group.GroupJID, err)
	}
	defer rows.Close()

	var out []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func scanGroup(row rowScanner) (*model.Group, error) {
	var (
		g    model.Group
		name sql.NullString
		keys []byte
	)
	if err := row.Scan(&g.GroupJID, &name, &g.Managed, &g.NotifyOnSpam, &keys); err != nil {
		return nil, err
	}
	g.Name = name.String
	if len(keys) > 0 {
		if err := json.Unmarshal(keys, &g.CommunityKeys); err != nil {
			return nil, fmt.Errorf("unmarshal community keys: %w", err)
		}
	}
	return &g, nil
}
