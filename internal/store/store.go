// Package store defines the persistence interfaces the pipeline reads and
// writes, plus the backing-selection config. Implementations live in the
// pg and sqlite subpackages.
package store

import (
	"context"
	"time"

	"github.com/kibitzbot/kibitz/internal/model"
)

// MessageStore persists and reads chat messages.
// Get returns (nil, nil) when the message does not exist; a missing reply
// parent is a valid state, not an error.
type MessageStore interface {
	Get(ctx context.Context, messageID string) (*model.Message, error)
	// Recent returns up to limit messages for a chat, newest first.
	Recent(ctx context.Context, chatJID string, limit int) ([]model.Message, error)
	// Since returns up to limit messages for a chat with timestamp >= t, newest first.
	Since(ctx context.Context, chatJID string, t time.Time, limit int) ([]model.Message, error)
	Save(ctx context.Context, msg model.Message) error
}

// OptOutStore manages participant opt-out records.
// Get returns (nil, nil) when no record exists.
type OptOutStore interface {
	Get(ctx context.Context, jid string) (*model.OptOut, error)
	Upsert(ctx context.Context, optOut model.OptOut) error
	Delete(ctx context.Context, jid string) error
}

// GroupStore reads per-group configuration.
// Get returns (nil, nil) for unknown groups.
type GroupStore interface {
	Get(ctx context.Context, groupJID string) (*model.Group, error)
	// Linked returns the other groups sharing any of the group's community
	// keys, excluding the group itself.
	Linked(ctx context.Context, group *model.Group) ([]model.Group, error)
}

// Stores bundles all persistence backends for injection.
type Stores struct {
	Messages MessageStore
	OptOuts  OptOutStore
	Groups   GroupStore
}

// Config selects and configures the storage backing.
type Config struct {
	// PostgresDSN enables the Postgres backing when set (env only, never
	// persisted in config files).
	PostgresDSN string `json:"-"`
	// SQLitePath is the standalone-mode database file.
	SQLitePath string `json:"sqlite_path"`
}
