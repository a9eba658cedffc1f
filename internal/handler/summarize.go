package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/providers"
	"github.com/kibitzbot/kibitz/internal/redact"
)

const (
	summarizeWindow   = 24 * time.Hour
	summarizeMaxMsgs  = 30
	summarizeMaxToken = 600
)

// handleSummarize recaps the last day of group activity.
func (h *Handler) handleSummarize(ctx context.Context, inbound bus.InboundMessage) error {
	msg := inbound.Message
	since := time.Now().Add(-summarizeWindow)

	msgs, err := h.deps.Stores.Messages.Since(ctx, msg.ChatJID, since, summarizeMaxMsgs)
	if err != nil {
		return fmt.Errorf("fetch messages for summary: %w", err)
	}

	// Don't summarize the request itself.
	filtered := msgs[:0]
	for _, m := range msgs {
		if m.MessageID != msg.MessageID {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		h.reply(inbound, "Nothing much happened in the last 24 hours 😴")
		return nil
	}

	labels, err := redact.BuildOptOutMap(ctx, h.deps.Stores.OptOuts, redact.SenderJIDs(filtered))
	if err != nil {
		return fmt.Errorf("opt-out map for summary: %w", err)
	}

	// Since() returns newest first; the transcript reads chronological.
	ordered := make([]model.Message, len(filtered))
	for i, m := range filtered {
		ordered[len(filtered)-1-i] = m
	}

	resp, err := h.deps.Provider.Chat(ctx, providers.ChatRequest{
		Model: h.deps.Config.Models.Answer,
		Messages: []providers.Message{
			{Role: "user", Content: fmt.Sprintf(summarizePrompt,
				redact.ChatToText(ordered, labels, inbound.SelfJID))},
		},
		MaxTokens: summarizeMaxToken,
	})
	if err != nil {
		return fmt.Errorf("summary generation: %w", err)
	}

	h.reply(inbound, resp.Content)
	return nil
}
