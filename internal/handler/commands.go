package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/model"
)

const (
	optOutConfirmation = "You're opted out. Your messages will appear as \"Anonymous\" in anything I write. Send \"opt-in\" to undo."
	optInConfirmation  = "Welcome back! Your messages will appear with your name again."
	statusOptedOut     = "You are currently opted out: your messages appear as \"Anonymous\"."
	statusOptedIn      = "You are currently opted in: your messages appear with your name."
	dmHelp             = "Hi! In here I only handle privacy settings. Send \"opt-out\" to hide your name from my summaries and answers, \"opt-in\" to undo, or \"status\" to check. Mention me in a group to ask questions."
)

// handleDirect processes a DM. Direct messages only carry privacy commands;
// everything else gets a short pointer to the group features.
func (h *Handler) handleDirect(ctx context.Context, inbound bus.InboundMessage) {
	msg := inbound.Message
	command := strings.ToLower(strings.TrimSpace(msg.Text))

	switch command {
	case "opt-out", "optout", "opt out":
		err := h.deps.Stores.OptOuts.Upsert(ctx, model.OptOut{
			JID:       msg.SenderJID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			slog.Error("opt-out upsert failed", "jid", msg.SenderJID, "error", err)
			h.reply(inbound, apologyMessage)
			return
		}
		slog.Info("user opted out", "jid", msg.SenderJID)
		h.reply(inbound, optOutConfirmation)

	case "opt-in", "optin", "opt in":
		if err := h.deps.Stores.OptOuts.Delete(ctx, msg.SenderJID); err != nil {
			slog.Error("opt-in delete failed", "jid", msg.SenderJID, "error", err)
			h.reply(inbound, apologyMessage)
			return
		}
		slog.Info("user opted in", "jid", msg.SenderJID)
		h.reply(inbound, optInConfirmation)

	case "status":
		optOut, err := h.deps.Stores.OptOuts.Get(ctx, msg.SenderJID)
		if err != nil {
			slog.Error("opt-out lookup failed", "jid", msg.SenderJID, "error", err)
			h.reply(inbound, apologyMessage)
			return
		}
		if optOut != nil {
			h.reply(inbound, statusOptedOut)
		} else {
			h.reply(inbound, statusOptedIn)
		}

	default:
		h.reply(inbound, dmHelp)
	}
}
