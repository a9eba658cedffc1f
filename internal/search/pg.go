package search

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kibitzbot/kibitz/internal/model"
)

// PGSearcher runs hybrid search over the pgvector-backed topics table:
// vector distance ranks candidates, and a full-text match on the topic
// summary pulls lexically relevant topics ahead.
type PGSearcher struct {
	db *sql.DB
}

func NewPGSearcher(db *sql.DB) *PGSearcher {
	return &PGSearcher{db: db}
}

// textMatchBoost is subtracted from the vector distance of topics whose
// summary matches the query text, so exact-term hits outrank near neighbors.
const textMatchBoost = 0.15

func (s *PGSearcher) Search(ctx context.Context, query string, queryVector []float32, groupJIDs []string, limit int) ([]TopicResult, error) {
	if len(queryVector) == 0 || len(groupJIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT topic_id, group_jid, summary, embedding <-> $1::vector AS distance
		 FROM topics
		 WHERE group_jid = ANY($2)
		 ORDER BY (embedding <-> $1::vector)
		   - CASE WHEN $3 <> '' AND to_tsvector('simple', summary) @@ plainto_tsquery('simple', $3)
		          THEN $4::float8 ELSE 0 END
		 LIMIT $5`,
		vectorLiteral(queryVector), groupJIDs, query, textMatchBoost, limit)
	if err != nil {
		return nil, fmt.Errorf("topic search: %w", err)
	}
	defer rows.Close()

	var results []TopicResult
	for rows.Next() {
		var r TopicResult
		if err := rows.Scan(&r.TopicID, &r.GroupJID, &r.Summary, &r.VectorDistance); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		msgs, err := s.topicMessages(ctx, results[i].TopicID)
		if err != nil {
			return nil, err
		}
		results[i].Messages = msgs
	}
	return results, nil
}

func (s *PGSearcher) topicMessages(ctx context.Context, topicID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.message_id, m.chat_jid, m.sender_jid, m.text, m.ts
		 FROM topic_messages tm
		 JOIN messages m ON m.message_id = tm.message_id
		 WHERE tm.topic_id = $1
		 ORDER BY m.ts`,
		topicID)
	if err != nil {
		return nil, fmt.Errorf("topic %s messages: %w", topicID, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			m    model.Message
			text sql.NullString
			ts   time.Time
		)
		if err := rows.Scan(&m.MessageID, &m.ChatJID, &m.SenderJID, &text, &ts); err != nil {
			return nil, err
		}
		m.Text = text.String
		m.Timestamp = ts.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// vectorLiteral renders a vector as the pgvector input syntax "[1,2,3]".
func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
