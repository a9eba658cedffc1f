package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kibitzbot/kibitz/internal/model"
)

// MessageStore implements store.MessageStore on Postgres.
// Reactions are stored denormalized as a jsonb column: they are only ever
// read back whole, alongside their message.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `message_id, chat_jid, sender_jid, group_jid, text, media_url, reply_to_id, ts, reactions`

func (s *MessageStore) Get(ctx context.Context, messageID string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = $1`, messageID)

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
		`SELECT `+messageColumns+` FROM messages WHERE chat_jid = $1 ORDER BY ts DESC LIMIT $2`,
		chatJID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages for %s: %w", chatJID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *MessageStore) Since(ctx context.Context, chatJID string, t time.Time, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_jid = $1 AND ts >= $2 ORDER BY ts DESC LIMIT $3`,
		chatJID, t, limit)
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
		`INSERT INTO messages (message_id, chat_jid, sender_jid, group_jid, text, media_url, reply_to_id, ts, reactions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (message_id) DO NOTHING`,
		msg.MessageID, msg.ChatJID, msg.SenderJID,
		nullable(msg.GroupJID), nullable(msg.Text), nullable(msg.MediaURL), nullable(msg.ReplyToID),
		msg.Timestamp, reactions)
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
		reactions []byte
	)
	err := row.Scan(&msg.MessageID, &msg.ChatJID, &msg.SenderJID,
		&groupJID, &text, &mediaURL, &replyToID, &msg.Timestamp, &reactions)
	if err != nil {
		return nil, err
	}
	msg.GroupJID = groupJID.String
	msg.Text = text.String
	msg.MediaURL = mediaURL.String
	msg.ReplyToID = replyToID.String
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
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

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
