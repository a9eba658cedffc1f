// Package search retrieves past discussion topics relevant to a question.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/redact"
)

// TopicResult is one matched topic with its source messages.
type TopicResult struct {
	TopicID        string
	GroupJID       string
	Summary        string
	VectorDistance float64
	Messages       []model.Message
}

// Searcher finds topics matching a query, scoped to the given groups. Both
// the raw text and its embedding are provided so implementations can combine
// lexical and vector signals.
type Searcher interface {
	Search(ctx context.Context, query string, queryVector []float32, groupJIDs []string, limit int) ([]TopicResult, error)
}

// FormatResults renders topic search results for the model prompt. Source
// message senders go through the opt-out map like any other transcript.
func FormatResults(results []TopicResult, optOutMap map[string]string, selfJID string) string {
	if len(results) == 0 {
		return "No relevant past discussions found."
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Topic %d: %s\n", i+1, r.Summary)
		if len(r.Messages) > 0 {
			b.WriteString(redact.ChatToText(r.Messages, optOutMap, selfJID))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
