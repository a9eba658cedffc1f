// Package handler implements the message processing pipeline: admission,
// media enrichment, command handling, intent routing, and reply generation.
package handler

import (
	"context"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/digest"
	"github.com/kibitzbot/kibitz/internal/embed"
	"github.com/kibitzbot/kibitz/internal/providers"
	"github.com/kibitzbot/kibitz/internal/search"
	"github.com/kibitzbot/kibitz/internal/store"
	"github.com/kibitzbot/kibitz/internal/tools"
)

// Downloader fetches media payloads referenced by messages.
type Downloader interface {
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// Transcriber converts voice audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Models selects which model handles each pipeline stage.
type Models struct {
	Router string // intent classification (cheap)
	Answer string // question answering and summaries
	Vision string // image analysis
}

// Config carries the handler's static settings.
type Config struct {
	AdminJIDs   []string
	Models      Models
	TokenBudget int // context window token budget; 0 means the default
	MaxMessages int // context window message cap; 0 means the default
}

// EventFunc receives pipeline events for the gateway's live feed. May be nil.
type EventFunc func(event string, fields map[string]interface{})

// Deps wires the handler to its collaborators. Everything the pipeline
// touches comes through here, which keeps the tests honest.
type Deps struct {
	Stores      *store.Stores
	Provider    providers.Provider
	Embedder    embed.Embedder
	Searcher    search.Searcher
	Digests     *digest.Cache
	Transcriber Transcriber
	Downloader  Downloader
	Tools       *tools.Registry
	Admitter    bus.Admitter
	Deliver     func(bus.OutboundMessage)
	Events      EventFunc
	Config      Config
}

// Handler processes inbound messages end to end.
type Handler struct {
	deps Deps
}

func New(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) isAdmin(jid string) bool {
	for _, admin := range h.deps.Config.AdminJIDs {
		if admin == jid {
			return true
		}
	}
	return false
}

func (h *Handler) emit(event string, fields map[string]interface{}) {
	if h.deps.Events != nil {
		h.deps.Events(event, fields)
	}
}

func (h *Handler) reply(inbound bus.InboundMessage, content string) {
	h.deps.Deliver(bus.OutboundMessage{
		Channel:   inbound.Channel,
		ChatJID:   inbound.Message.ChatJID,
		Content:   content,
		ReplyToID: inbound.Message.MessageID,
	})
	h.emit("reply.sent", map[string]interface{}{
		"chat_jid":   inbound.Message.ChatJID,
		"message_id": inbound.Message.MessageID,
	})
}
