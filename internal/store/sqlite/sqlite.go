// Package sqlite implements the store interfaces on a local SQLite file for
// standalone (single-host) deployments. Schema is created on open; the
// Postgres backing is the one managed by migrations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	message_id  TEXT PRIMARY KEY,
	chat_jid    TEXT NOT NULL,
	sender_jid  TEXT NOT NULL,
	group_jid   TEXT,
	text        TEXT,
	media_url   TEXT,
	reply_to_id TEXT,
	ts          INTEGER NOT NULL,
	reactions   TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages (chat_jid, ts DESC);

CREATE TABLE IF NOT EXISTS opt_outs (
	jid        TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
	group_jid      TEXT PRIMARY KEY,
	name           TEXT,
	managed        INTEGER NOT NULL DEFAULT 0,
	notify_on_spam INTEGER NOT NULL DEFAULT 0,
	community_keys TEXT
);
`

// Open opens (and initializes) the standalone database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite is not safe for concurrent writers over one connection pool
	// beyond what SQLite serializes itself; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by SQLite.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Messages: &MessageStore{db: db},
		OptOuts:  &OptOutStore{db: db},
		Groups:   &GroupStore{db: db},
	}
}

// MessageStore implements store.MessageStore on SQLite.
type MessageStore struct {
	db *sql.DB
}

const messageColumns = `message_id, chat_jid, sender_jid, group_jid, text, media_url, reply_to_id, ts, reactions`

func (s *MessageStore) Get(ctx context.Context, messageID string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	return msg, nil
}

func (s *MessageStore) Recent(ctx context.Context, chatJID string, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_jid = ? ORDER BY ts DESC LIMIT ?`,
		chatJID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages for %s: %w", chatJID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) Since(ctx context.Context, chatJID string, t time.Time, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_jid = ? AND ts >= ? ORDER BY ts DESC LIMIT ?`,
		chatJID, t.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("messages since %s for %s: %w", t, chatJID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) Save(ctx context.Context, msg model.Message) error {
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return fmt.Errorf("marshal reactions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (message_id, chat_jid, sender_jid, group_jid, text, media_url, reply_to_id, ts, reactions)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ChatJID, msg.SenderJID,
		msg.GroupJID, msg.Text, msg.MediaURL, msg.ReplyToID,
		msg.Timestamp.UnixMilli(), string(reactions))
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.MessageID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		msg       model.Message
		groupJID  sql.NullString
		text      sql.NullString
		mediaURL  sql.NullString
		replyToID sql.NullString
		tsMilli   int64
		reactions sql.NullString
	)
	err := row.Scan(&msg.MessageID, &msg.ChatJID, &msg.SenderJID,
		&groupJID, &text, &mediaURL, &replyToID, &tsMilli, &reactions)
	if err != nil {
		return nil, err
	}
	msg.GroupJID = groupJID.String
	msg.Text = text.String
	msg.MediaURL = mediaURL.String
	msg.ReplyToID = replyToID.String
	msg.Timestamp = time.UnixMilli(tsMilli).UTC()
	if reactions.String != "" {
		if err := json.Unmarshal([]byte(reactions.String), &msg.Reactions); err != nil {
			return nil, fmt.Errorf("unmarshal reactions: %w", err)
		}
	}
	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	var out []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// OptOutStore implements store.OptOutStore on SQLite.
type OptOutStore struct {
	db *sql.DB
}

func (s *OptOutStore) Get(ctx context.Context, jid string) (*model.OptOut, error) {
	var (
		o       model.OptOut
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT jid, created_at FROM opt_outs WHERE jid = ?`, jid).
		Scan(&o.JID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opt-out %s: %w", jid, err)
	}
	o.CreatedAt = time.UnixMilli(created).UTC()
	return &o, nil
}

func (s *OptOutStore) Upsert(ctx context.Context, optOut model.OptOut) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO opt_outs (jid, created_at) VALUES (?, ?)`,
		optOut.JID, optOut.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert opt-out %s: %w", optOut.JID, err)
	}
	return nil
}

func (s *OptOutStore) Delete(ctx context.Context, jid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM opt_outs WHERE jid = ?`, jid); err != nil {
		return fmt.Errorf("delete opt-out %s: %w", jid, err)
	}
	return nil
}

// GroupStore implements store.GroupStore on SQLite. The linked-group lookup
// filters in Go: standalone deployments have few groups.
type GroupStore struct {
	db *sql.DB
}

func (s *GroupStore) Get(ctx context.Context, groupJID string) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT group_jid, name, managed, notify_on_spam, community_keys FROM groups WHERE group_jid = ?`,
		groupJID)
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
		`SELECT group_jid, name, managed, notify_on_spam, community_keys FROM groups WHERE group_jid <> ?`,
		group.GroupJID)
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
		for _, key := range g.CommunityKeys {
			if slices.Contains(group.CommunityKeys, key) {
				out = append(out, *g)
				break
			}
		}
	}
	return out, rows.Err()
}

func scanGroup(row rowScanner) (*model.Group, error) {
	var (
		g    model.Group
		name sql.NullString
		keys sql.NullString
	)
	if err := row.Scan(&g.GroupJID, &name, &g.Managed, &g.NotifyOnSpam, &keys); err != nil {
		return nil, err
	}
	g.Name = name.String
	if keys.String != "" {
		if err := json.Unmarshal([]byte(keys.String), &g.CommunityKeys); err != nil {
			return nil, fmt.Errorf("unmarshal community keys: %w", err)
		}
	}
	return &g, nil
}
