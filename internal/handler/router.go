package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/providers"
)

// Intent is the routed category of a message addressed to the bot.
type Intent string

const (
	IntentSummarize   Intent = "summarize"
	IntentAskQuestion Intent = "ask_question"
	IntentAbout       Intent = "about"
	IntentOther       Intent = "other"
)

const apologyMessage = "Sorry, something went wrong. Please try again 🙏"

// route classifies the message and dispatches to the matching flow. Any
// error past this point turns into a single apology reply; the user never
// sees a stack trace.
func (h *Handler) route(ctx context.Context, inbound bus.InboundMessage) {
	intent := h.classify(ctx, inbound.Message.Text)
	h.emit("intent.classified", map[string]interface{}{
		"message_id": inbound.Message.MessageID,
		"intent":     string(intent),
	})
	slog.Info("intent classified",
		"message_id", inbound.Message.MessageID, "intent", string(intent))

	var err error
	switch intent {
	case IntentSummarize:
		err = h.handleSummarize(ctx, inbound)
	case IntentAbout:
		err = h.handleAbout(ctx, inbound)
	default:
		// Questions and anything unclassifiable go through the knowledge
		// flow; it degrades gracefully to plain conversation.
		err = h.handleKnowledge(ctx, inbound)
	}

	if err != nil {
		slog.Error("pipeline error",
			"message_id", inbound.Message.MessageID,
			"intent", string(intent),
			"error", err)
		h.emit("pipeline.error", map[string]interface{}{
			"message_id": inbound.Message.MessageID,
			"intent":     string(intent),
			"error":      err.Error(),
		})
		h.reply(inbound, apologyMessage)
	}
}

// classify asks the cheap router model for the intent. Classification
// failures are not fatal: an unrouteable message falls back to IntentOther.
func (h *Handler) classify(ctx context.Context, text string) Intent {
	resp, err := h.deps.Provider.Chat(ctx, providers.ChatRequest{
		Model: h.deps.Config.Models.Router,
		Messages: []providers.Message{
			{Role: "system", Content: routerPrompt},
			{Role: "user", Content: stripMention(text)},
		},
		MaxTokens: 50,
		JSONMode:  true,
	})
	if err != nil {
		slog.Warn("intent classification failed", "error", err)
		return IntentOther
	}

	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		slog.Warn("intent response unparseable", "content", resp.Content)
		return IntentOther
	}

	switch Intent(strings.ToLower(strings.TrimSpace(parsed.Intent))) {
	case IntentSummarize:
		return IntentSummarize
	case IntentAskQuestion:
		return IntentAskQuestion
	case IntentAbout:
		return IntentAbout
	default:
		return IntentOther
	}
}

// extractJSON tolerates models that wrap JSON in code fences despite JSON
// mode being requested.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1]
		}
	}
	return trimmed
}
