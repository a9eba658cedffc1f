// Package digest keeps a short rolling summary of each chat's recent
// activity, used as ambient context when answering questions.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/providers"
	"github.com/kibitzbot/kibitz/internal/redact"
	"github.com/kibitzbot/kibitz/internal/store"
)

const (
	defaultTTL        = 15 * time.Minute
	digestFetchLimit  = 100
	digestMaxTokens   = 300
	refreshCheckEvery = time.Minute
)

const digestPrompt = `Summarize the following group chat activity in 3-5 short sentences. Focus on topics discussed and decisions made. Do not mention individual message counts.

%s`

type entry struct {
	text       string
	builtAt    time.Time
	refreshing bool
}

// Cache computes and caches per-chat digests.
type Cache struct {
	stores   *store.Stores
	provider providers.Provider
	model    string
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	refreshCron string
	now         func() time.Time
}

type Config struct {
	Model       string // cheap summarization model
	TTL         time.Duration
	RefreshCron string // cron expression gating the background sweep
}

func NewCache(stores *store.Stores, provider providers.Provider, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Cache{
		stores:      stores,
		provider:    provider,
		model:       cfg.Model,
		ttl:         cfg.TTL,
		entries:     make(map[string]*entry),
		refreshCron: cfg.RefreshCron,
		now:         time.Now,
	}
}

// Get returns the cached digest for chatJID, computing it when absent or
// stale. A digest failure is not fatal: callers get an empty string and the
// pipeline continues without ambient context.
func (c *Cache) Get(ctx context.Context, chatJID string) string {
	c.mu.Lock()
	e, ok := c.entries[chatJID]
	if ok && c.now().Sub(e.builtAt) < c.ttl {
		text := e.text
		c.mu.Unlock()
		return text
	}
	c.mu.Unlock()

	text, err := c.build(ctx, chatJID)
	if err != nil {
		slog.Warn("digest build failed", "chat_jid", chatJID, "error", err)
		return ""
	}

	c.mu.Lock()
	c.entries[chatJID] = &entry{text: text, builtAt: c.now()}
	c.mu.Unlock()
	return text
}

func (c *Cache) build(ctx context.Context, chatJID string) (string, error) {
	msgs, err := c.stores.Messages.Recent(ctx, chatJID, digestFetchLimit)
	if err != nil {
		return "", fmt.Errorf("fetch recent for digest: %w", err)
	}
	if len(msgs) == 0 {
		return "", nil
	}

	labels, err := redact.BuildOptOutMap(ctx, c.stores.OptOuts, redact.SenderJIDs(msgs))
	if err != nil {
		return "", fmt.Errorf("opt-out map for digest: %w", err)
	}

	// Recent() is newest first; the transcript reads better chronological.
	ordered := make([]model.Message, len(msgs))
	for i, m := range msgs {
		ordered[len(msgs)-1-i] = m
	}

	resp, err := c.provider.Chat(ctx, providers.ChatRequest{
		Model: c.model,
		Messages: []providers.Message{
			{Role: "user", Content: fmt.Sprintf(digestPrompt, redact.ChatToText(ordered, labels, ""))},
		},
		MaxTokens: digestMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// RunRefresh periodically re-builds stale cached digests. The sweep only
// fires when the configured cron expression is due, so off-hours refreshes
// can be skipped entirely.
func (c *Cache) RunRefresh(ctx context.Context) {
	if c.refreshCron == "" {
		return
	}
	gron := gronx.New()
	if !gron.IsValid(c.refreshCron) {
		slog.Error("invalid digest refresh cron, background refresh disabled",
			"cron", c.refreshCron)
		return
	}

	ticker := time.NewTicker(refreshCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := gron.IsDue(c.refreshCron, c.now())
			if err != nil || !due {
				continue
			}
			c.refreshStale(ctx)
		}
	}
}

func (c *Cache) refreshStale(ctx context.Context) {
	c.mu.Lock()
	var stale []string
	for chatJID, e := range c.entries {
		if !e.refreshing && c.now().Sub(e.builtAt) >= c.ttl {
			e.refreshing = true
			stale = append(stale, chatJID)
		}
	}
	c.mu.Unlock()

	for _, chatJID := range stale {
		text, err := c.build(ctx, chatJID)
		c.mu.Lock()
		e := c.entries[chatJID]
		if e != nil {
			e.refreshing = false
			if err == nil {
				e.text = text
				e.builtAt = c.now()
			}
		}
		c.mu.Unlock()
		if err != nil {
			slog.Warn("digest refresh failed", "chat_jid", chatJID, "error", err)
		}
	}
}
