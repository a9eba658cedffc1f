package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/media"
	"github.com/kibitzbot/kibitz/internal/model"
)

const (
	voiceTranscriptPrefix  = "[Voice transcript] "
	imageDescriptionPrefix = "[Image] "
	repliedVoicePrefix     = "[Replied voice transcript] "
	repliedImagePrefix     = "[Replied image] "

	groupInviteLinkMarker = "https://chat.whatsapp.com/"
)

// Handle runs one inbound message through the full pipeline. Every message
// is persisted for history; only messages addressed to the bot produce a
// reply.
func (h *Handler) Handle(ctx context.Context, inbound bus.InboundMessage) {
	msg := inbound.Message

	// Admission first: retried webhook deliveries and duplicate bridge
	// events must not be processed twice.
	if !h.deps.Admitter.Admit(msg.MessageID) {
		slog.Debug("duplicate message dropped", "message_id", msg.MessageID)
		return
	}
	h.emit("message.admitted", map[string]interface{}{
		"message_id": msg.MessageID,
		"chat_jid":   msg.ChatJID,
	})

	// The bot's own outgoing messages echo back through the bridge. They
	// stay in history so reply chains land on them and they render as [Bot]
	// in context windows, but they never re-enter the pipeline.
	if inbound.SelfJID != "" && msg.SenderJID == inbound.SelfJID {
		if err := h.deps.Stores.Messages.Save(ctx, msg); err != nil {
			slog.Error("failed to persist bot message", "message_id", msg.MessageID, "error", err)
		}
		return
	}

	// Media enrichment happens before persistence so history carries the
	// transcript, not just a media URL.
	msg = h.enrichMedia(ctx, msg)
	inbound.Message = msg

	if err := h.deps.Stores.Messages.Save(ctx, msg); err != nil {
		slog.Error("failed to persist message", "message_id", msg.MessageID, "error", err)
		// Carry on: replying still works, history is just short one message.
	}

	// No usable text even after enrichment (a document attachment, a voice
	// note the transcriber could not handle): nothing to route.
	if strings.TrimSpace(msg.Text) == "" {
		slog.Info("message without text dropped",
			"message_id", msg.MessageID, "has_media", msg.MediaURL != "")
		return
	}

	if !msg.IsGroup() {
		h.handleDirect(ctx, inbound)
		return
	}

	group, err := h.deps.Stores.Groups.Get(ctx, msg.GroupJID)
	if err != nil {
		slog.Warn("group lookup failed", "group_jid", msg.GroupJID, "error", err)
	}
	// A registered group with the managed flag off is observe-only: its
	// messages stay in history but never get a reply.
	if group != nil && !group.Managed {
		return
	}

	h.checkLinkSpam(inbound, group)

	if !h.addressedToBot(ctx, inbound) {
		return
	}

	if h.blockedCommand(inbound) {
		// Admin-only command from a non-admin: silent drop.
		slog.Info("admin command from non-admin dropped",
			"sender_jid", msg.SenderJID, "message_id", msg.MessageID)
		return
	}

	h.route(ctx, inbound)
}

// enrichMedia replaces the text of voice and image messages with model-usable
// content, covering both media on the message itself and media on the message
// it replies to. Failures leave the message untouched; a missing transcript is
// better than a dropped message.
func (h *Handler) enrichMedia(ctx context.Context, msg model.Message) model.Message {
	msg = h.enrichOwnMedia(ctx, msg)
	return h.enrichRepliedMedia(ctx, msg)
}

func (h *Handler) enrichOwnMedia(ctx context.Context, msg model.Message) model.Message {
	if msg.MediaURL == "" || h.deps.Downloader == nil {
		return msg
	}

	switch media.Classify(msg.MediaURL) {
	case media.Audio:
		if h.deps.Transcriber == nil {
			return msg
		}
		audio, err := h.deps.Downloader.DownloadMedia(ctx, msg.MediaURL)
		if err != nil {
			slog.Warn("media download failed", "message_id", msg.MessageID, "error", err)
			return msg
		}
		transcript, err := h.deps.Transcriber.Transcribe(ctx, audio, "voice-note.ogg")
		if err != nil || transcript == "" {
			slog.Warn("voice transcription failed", "message_id", msg.MessageID, "error", err)
			return msg
		}
		enriched := voiceTranscriptPrefix + transcript
		if msg.Text != "" {
			enriched += "\n" + msg.Text
		}
		return msg.WithText(enriched)

	case media.Image:
		data, err := h.deps.Downloader.DownloadMedia(ctx, msg.MediaURL)
		if err != nil {
			slog.Warn("media download failed", "message_id", msg.MessageID, "error", err)
			return msg
		}
		description, err := media.AnalyzeImage(ctx, h.deps.Provider, h.deps.Config.Models.Vision, data, msg.Text)
		if err != nil || description == "" {
			slog.Warn("image analysis failed", "message_id", msg.MessageID, "error", err)
			return msg
		}
		enriched := imageDescriptionPrefix + description
		if msg.Text != "" {
			enriched += "\n" + msg.Text
		}
		return msg.WithText(enriched)

	default:
		return msg
	}
}

// enrichRepliedMedia handles the "what did they say?" pattern: a reply to a
// voice note gets the note's transcript prepended, a reply to an image gets
// the image described with the reply text steering the analysis.
func (h *Handler) enrichRepliedMedia(ctx context.Context, msg model.Message) model.Message {
	if msg.ReplyToID == "" || h.deps.Downloader == nil {
		return msg
	}
	parent, err := h.deps.Stores.Messages.Get(ctx, msg.ReplyToID)
	if err != nil || parent == nil || parent.MediaURL == "" {
		return msg
	}

	switch media.Classify(parent.MediaURL) {
	case media.Audio:
		if h.deps.Transcriber == nil {
			return msg
		}
		audio, err := h.deps.Downloader.DownloadMedia(ctx, parent.MediaURL)
		if err != nil {
			slog.Warn("replied media download failed", "message_id", parent.MessageID, "error", err)
			return msg
		}
		transcript, err := h.deps.Transcriber.Transcribe(ctx, audio, "voice-note.ogg")
		if err != nil || transcript == "" {
			slog.Warn("replied voice transcription failed", "message_id", parent.MessageID, "error", err)
			return msg
		}
		enriched := repliedVoicePrefix + transcript
		if msg.Text != "" {
			enriched += "\n" + msg.Text
		}
		return msg.WithText(enriched)

	case media.Image:
		data, err := h.deps.Downloader.DownloadMedia(ctx, parent.MediaURL)
		if err != nil {
			slog.Warn("replied media download failed", "message_id", parent.MessageID, "error", err)
			return msg
		}
		description, err := media.AnalyzeImage(ctx, h.deps.Provider, h.deps.Config.Models.Vision, data, msg.Text)
		if err != nil || description == "" {
			slog.Warn("replied image analysis failed", "message_id", parent.MessageID, "error", err)
			return msg
		}
		enriched := repliedImagePrefix + description
		if msg.Text != "" {
			enriched += "\n" + msg.Text
		}
		return msg.WithText(enriched)

	default:
		return msg
	}
}

// addressedToBot reports whether the group message asks for the bot: an
// explicit @mention, or a reply to one of the bot's own messages.
func (h *Handler) addressedToBot(ctx context.Context, inbound bus.InboundMessage) bool {
	if inbound.Mentioned {
		return true
	}
	if inbound.Message.ReplyToID == "" || inbound.SelfJID == "" {
		return false
	}
	parent, err := h.deps.Stores.Messages.Get(ctx, inbound.Message.ReplyToID)
	if err != nil {
		slog.Warn("reply-to lookup failed", "message_id", inbound.Message.ReplyToID, "error", err)
		return false
	}
	return parent != nil && parent.SenderJID == inbound.SelfJID
}

// checkLinkSpam flags group invite links posted by non-admins. The spam
// notice goes to the group only when the group has opted into notifications.
func (h *Handler) checkLinkSpam(inbound bus.InboundMessage, group *model.Group) {
	msg := inbound.Message
	if !strings.Contains(msg.Text, groupInviteLinkMarker) || h.isAdmin(msg.SenderJID) {
		return
	}
	if group == nil || !group.NotifyOnSpam {
		return
	}

	slog.Info("group invite link detected",
		"group_jid", msg.GroupJID, "sender_jid", msg.SenderJID)
	h.reply(inbound, fmt.Sprintf("⚠️ @%s posted a group invite link. Admins, please review.",
		model.UserPart(msg.SenderJID)))
}

// blockedCommand reports whether the message is an admin-only command issued
// by a non-admin. Such messages are dropped without any reply.
func (h *Handler) blockedCommand(inbound bus.InboundMessage) bool {
	text := strings.TrimSpace(stripMention(inbound.Message.Text))
	if !strings.HasPrefix(text, "/kb_qa") {
		return false
	}
	return !h.isAdmin(inbound.Message.SenderJID)
}

// stripMention removes a leading @handle so commands and questions parse the
// same whether or not the platform injects the mention into the text.
func stripMention(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "@") {
		return trimmed
	}
	if idx := strings.IndexAny(trimmed, " \t\n"); idx > 0 {
		return strings.TrimSpace(trimmed[idx:])
	}
	return ""
}
