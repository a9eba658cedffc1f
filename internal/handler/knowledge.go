package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/history"
	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/providers"
	"github.com/kibitzbot/kibitz/internal/redact"
	"github.com/kibitzbot/kibitz/internal/search"
)

const (
	topicSearchLimit = 3

	// maxToolIterations bounds the tool loop; a model stuck calling tools
	// gets cut off rather than burning tokens forever.
	maxToolIterations = 4
)

// handleKnowledge answers a question using conversation context, the chat
// digest, past topic discussions, and the tool registry.
func (h *Handler) handleKnowledge(ctx context.Context, inbound bus.InboundMessage) error {
	msg := inbound.Message

	tokenBudget := h.deps.Config.TokenBudget
	if tokenBudget <= 0 {
		tokenBudget = history.DefaultTokenBudget
	}
	maxMessages := h.deps.Config.MaxMessages
	if maxMessages <= 0 {
		maxMessages = history.DefaultMaxMessages
	}

	window, err := history.BuildContextWindow(ctx, h.deps.Stores.Messages, msg, tokenBudget, maxMessages)
	if err != nil {
		return fmt.Errorf("build context window: %w", err)
	}

	topics := h.searchTopics(ctx, inbound, window)

	// One opt-out map covers the window, the trigger, and topic sources so
	// a given sender renders identically everywhere in the prompt.
	jids := redact.SenderJIDs(window)
	jids = append(jids, msg.SenderJID)
	for _, t := range topics {
		jids = append(jids, redact.SenderJIDs(t.Messages)...)
	}
	labels, err := redact.BuildOptOutMap(ctx, h.deps.Stores.OptOuts, jids)
	if err != nil {
		return fmt.Errorf("opt-out map: %w", err)
	}

	prompt := h.buildKnowledgePrompt(ctx, inbound, window, topics, labels)

	content, err := h.runToolLoop(ctx, prompt)
	if err != nil {
		return fmt.Errorf("answer generation: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("empty answer from model")
	}

	h.reply(inbound, content)
	return nil
}

// searchTopics embeds the question and looks up similar past discussions in
// this group and its linked community groups. Search is best-effort: any
// failure just means the answer goes out without topic context.
func (h *Handler) searchTopics(ctx context.Context, inbound bus.InboundMessage, window []model.Message) []search.TopicResult {
	msg := inbound.Message
	if h.deps.Embedder == nil || h.deps.Searcher == nil || msg.GroupJID == "" {
		return nil
	}

	question := stripMention(msg.Text)
	if question == "" {
		return nil
	}
	question = h.rephraseQuery(ctx, question, window, inbound.SelfJID)

	vectors, err := h.deps.Embedder.Embed(ctx, []string{question})
	if err != nil || len(vectors) == 0 {
		slog.Warn("question embedding failed", "error", err)
		return nil
	}

	groupJIDs := []string{msg.GroupJID}
	if group, err := h.deps.Stores.Groups.Get(ctx, msg.GroupJID); err == nil && group != nil {
		linked, err := h.deps.Stores.Groups.Linked(ctx, group)
		if err != nil {
			slog.Warn("linked group lookup failed", "group_jid", msg.GroupJID, "error", err)
		}
		for _, g := range linked {
			groupJIDs = append(groupJIDs, g.GroupJID)
		}
	}

	results, err := h.deps.Searcher.Search(ctx, question, vectors[0], groupJIDs, topicSearchLimit)
	if err != nil {
		slog.Warn("topic search failed", "error", err)
		return nil
	}
	return results
}

// rephraseQuery turns a conversational message into a standalone retrieval
// query using the cheap router model. The context window is included so
// pronouns and references resolve; senders are rendered without an opt-out
// map, which anonymizes everyone. Falls back to the original text.
func (h *Handler) rephraseQuery(ctx context.Context, question string, window []model.Message, selfJID string) string {
	conversation := "(none)"
	if len(window) > 0 {
		conversation = redact.ChatToText(window, nil, selfJID)
	}

	resp, err := h.deps.Provider.Chat(ctx, providers.ChatRequest{
		Model: h.deps.Config.Models.Router,
		Messages: []providers.Message{
			{Role: "user", Content: fmt.Sprintf(rephrasePrompt, conversation, question)},
		},
		MaxTokens: 100,
	})
	if err != nil {
		slog.Warn("query rephrasing failed", "error", err)
		return question
	}
	rephrased := strings.TrimSpace(resp.Content)
	if rephrased == "" {
		return question
	}
	return rephrased
}

func (h *Handler) buildKnowledgePrompt(ctx context.Context, inbound bus.InboundMessage, window []model.Message, topics []search.TopicResult, labels map[string]string) []providers.Message {
	msg := inbound.Message

	var b strings.Builder
	if len(window) > 0 {
		b.WriteString("Recent conversation:\n")
		b.WriteString(redact.ChatToText(window, labels, inbound.SelfJID))
		b.WriteString("\n")
	}
	if h.deps.Digests != nil {
		if digestText := h.deps.Digests.Get(ctx, msg.ChatJID); digestText != "" {
			b.WriteString("Chat digest:\n")
			b.WriteString(digestText)
			b.WriteString("\n\n")
		}
	}
	if len(topics) > 0 {
		b.WriteString("Past discussions that may be relevant:\n")
		b.WriteString(search.FormatResults(topics, labels, inbound.SelfJID))
		b.WriteString("\n\n")
	}

	sender := labels[msg.SenderJID]
	if sender == "" {
		sender = redact.AnonymousLabel
	}
	fmt.Fprintf(&b, "%s says: %s", sender, stripMention(msg.Text))

	return []providers.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// runToolLoop drives the chat/tool-execution cycle until the model produces
// a text answer or the iteration cap is hit.
func (h *Handler) runToolLoop(ctx context.Context, messages []providers.Message) (string, error) {
	var defs []providers.ToolDefinition
	if h.deps.Tools != nil {
		defs = h.deps.Tools.Defs()
	}

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := h.deps.Provider.Chat(ctx, providers.ChatRequest{
			Model:    h.deps.Config.Models.Answer,
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    h.executeTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	// Cap reached: one last call without tools forces a text answer.
	resp, err := h.deps.Provider.Chat(ctx, providers.ChatRequest{
		Model:    h.deps.Config.Models.Answer,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (h *Handler) executeTool(ctx context.Context, call providers.ToolCall) string {
	tool, ok := h.deps.Tools.Get(call.Name)
	if !ok {
		return fmt.Sprintf("unknown tool %q", call.Name)
	}

	slog.Info("executing tool", "tool", call.Name)
	result := tool.Execute(ctx, call.Arguments)
	if result.IsError {
		slog.Warn("tool failed", "tool", call.Name, "error", result.ForLLM)
	}
	return result.ForLLM
}
