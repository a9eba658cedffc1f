// Package history assembles the conversation context handed to the model:
// the reply chain of the triggering message plus as much recent chat as the
// token budget allows.
package history

import (
	"context"
	"log/slog"
	"sort"

	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/store"
)

const (
	// Rough token estimate; good enough for budgeting a chat transcript.
	charsPerToken = 4

	DefaultTokenBudget = 2000
	DefaultMaxMessages = 25

	maxReplyChainDepth = 10

	// Overfetch so that skipped duplicates don't starve the window.
	overfetchSlack = 10
	maxFetch       = 50
)

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// ResolveReplyChain walks the reply-to links of msg upward, returning the
// ancestors ordered oldest first. The walk is capped at maxReplyChainDepth
// and fails open: a missing ancestor or a store error truncates the chain
// rather than failing the request.
func ResolveReplyChain(ctx context.Context, messages store.MessageStore, msg model.Message) []model.Message {
	var chain []model.Message
	replyTo := msg.ReplyToID
	for depth := 0; replyTo != "" && depth < maxReplyChainDepth; depth++ {
		parent, err := messages.Get(ctx, replyTo)
		if err != nil {
			slog.Warn("reply chain lookup failed, truncating",
				"message_id", replyTo, "error", err)
			break
		}
		if parent == nil {
			break
		}
		chain = append(chain, *parent)
		replyTo = parent.ReplyToID
	}

	// Walked newest-to-oldest; flip to chronological.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// BuildContextWindow returns the messages to present as context for trigger,
// in chronological order. The reply chain is always included in full; recent
// chat history fills whatever token budget and message slots remain. The
// trigger itself is never part of the window.
func BuildContextWindow(ctx context.Context, messages store.MessageStore, trigger model.Message, tokenBudget, maxMessages int) ([]model.Message, error) {
	chain := ResolveReplyChain(ctx, messages, trigger)

	seen := make(map[string]bool, len(chain)+1)
	seen[trigger.MessageID] = true

	window := make([]model.Message, 0, maxMessages)
	budget := tokenBudget
	for _, m := range chain {
		seen[m.MessageID] = true
		window = append(window, m)
		budget -= EstimateTokens(m.Text)
	}

	remaining := maxMessages - len(window)
	if remaining > 0 && budget > 0 {
		fetch := remaining + overfetchSlack
		if fetch > maxFetch {
			fetch = maxFetch
		}
		recent, err := messages.Recent(ctx, trigger.ChatJID, fetch)
		if err != nil {
			return nil, err
		}

		// Newest first: prefer fresher context, stop at the first message
		// that would blow the budget.
		for _, m := range recent {
			if remaining == 0 {
				break
			}
			if seen[m.MessageID] {
				continue
			}
			cost := EstimateTokens(m.Text)
			if cost > budget {
				break
			}
			seen[m.MessageID] = true
			window = append(window, m)
			budget -= cost
			remaining--
		}
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})
	return window, nil
}
