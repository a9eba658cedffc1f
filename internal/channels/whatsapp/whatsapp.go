// Package whatsapp bridges WhatsApp into the pipeline via an external bridge
// process: inbound messages arrive on a webhook, outbound replies go through
// the bridge's REST API.
package whatsapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/model"
)

const ChannelName = "whatsapp"

type Config struct {
	BridgeURL   string
	BridgeToken string
}

// WhatsAppChannel receives bridge webhooks and sends replies through the
// bridge client.
type WhatsAppChannel struct {
	client  *Client
	bus     *bus.MessageBus
	selfJID string
}

func New(cfg Config, msgBus *bus.MessageBus) *WhatsAppChannel {
	return &WhatsAppChannel{
		client: NewClient(cfg.BridgeURL, cfg.BridgeToken),
		bus:    msgBus,
	}
}

func (c *WhatsAppChannel) Name() string { return ChannelName }

// Start resolves the bot's own JID from the bridge. Inbound delivery is
// webhook-driven, so there is no receive loop to spin up.
func (c *WhatsAppChannel) Start(ctx context.Context) error {
	jid, err := c.client.MyJID(ctx)
	if err != nil {
		return err
	}
	c.selfJID = jid
	slog.Info("whatsapp channel ready", "self_jid", jid)
	return nil
}

func (c *WhatsAppChannel) Stop(_ context.Context) error { return nil }

func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	return c.client.SendMessage(ctx, msg.ChatJID, msg.Content, msg.ReplyToID)
}

// SelfJID returns the bridge session's JID, empty before Start.
func (c *WhatsAppChannel) SelfJID() string { return c.selfJID }

// Downloader exposes media fetching for the pipeline.
func (c *WhatsAppChannel) Downloader() *Client { return c.client }

// webhookEnvelope is the bridge's inbound event payload.
type webhookEnvelope struct {
	MessageID     string   `json:"message_id"`
	ChatJID       string   `json:"chat_jid"`
	SenderJID     string   `json:"sender_jid"`
	GroupJID      string   `json:"group_jid,omitempty"`
	Text          string   `json:"text,omitempty"`
	MediaURL      string   `json:"media_url,omitempty"`
	ReplyToID     string   `json:"reply_to_id,omitempty"`
	Timestamp     int64    `json:"timestamp"` // unix milliseconds
	MentionedJIDs []string `json:"mentioned_jids,omitempty"`
	Reactions     []struct {
		Emoji     string `json:"emoji"`
		SenderJID string `json:"sender_jid"`
	} `json:"reactions,omitempty"`
}

// WebhookHandler returns the HTTP handler the gateway mounts for bridge
// events. Responses are always 2xx once the payload parses; admission
// decisions happen in the pipeline, not at the transport.
func (c *WhatsAppChannel) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env webhookEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		if env.MessageID == "" || env.ChatJID == "" {
			http.Error(w, "message_id and chat_jid required", http.StatusBadRequest)
			return
		}

		msg := model.Message{
			MessageID: env.MessageID,
			ChatJID:   env.ChatJID,
			SenderJID: env.SenderJID,
			GroupJID:  env.GroupJID,
			Text:      env.Text,
			MediaURL:  env.MediaURL,
			ReplyToID: env.ReplyToID,
			Timestamp: time.UnixMilli(env.Timestamp).UTC(),
		}
		for _, r := range env.Reactions {
			msg.Reactions = append(msg.Reactions, model.Reaction{
				Emoji:     r.Emoji,
				SenderJID: r.SenderJID,
			})
		}

		mentioned := false
		for _, jid := range env.MentionedJIDs {
			if jid == c.selfJID {
				mentioned = true
				break
			}
		}

		ok := c.bus.PublishInbound(bus.InboundMessage{
			Channel:   ChannelName,
			SelfJID:   c.selfJID,
			Mentioned: mentioned,
			Message:   msg,
		})
		if !ok {
			slog.Warn("inbound bus full, dropping whatsapp message",
				"message_id", env.MessageID, "chat_jid", env.ChatJID)
			// Tell the bridge to retry later.
			http.Error(w, "queue full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
