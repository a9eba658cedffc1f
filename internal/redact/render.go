package redact

import (
	"fmt"
	"strings"

	"github.com/kibitzbot/kibitz/internal/model"
)

const timestampLayout = "2006-01-02 15:04"

// RenderReactions formats a message's reactions for a transcript. Emoji keep
// their first-seen order. When every emoji was used exactly once the counts
// are dropped ("👍, 🎉"); otherwise each emoji carries its count ("👍 3, 🎉 1").
func RenderReactions(reactions []model.Reaction) string {
	if len(reactions) == 0 {
		return ""
	}

	counts := make(map[string]int, len(reactions))
	var order []string
	for _, r := range reactions {
		if r.Emoji == "" {
			continue
		}
		if counts[r.Emoji] == 0 {
			order = append(order, r.Emoji)
		}
		counts[r.Emoji]++
	}
	if len(order) == 0 {
		return ""
	}

	allSingle := true
	for _, emoji := range order {
		if counts[emoji] > 1 {
			allSingle = false
			break
		}
	}

	parts := make([]string, len(order))
	for i, emoji := range order {
		if allSingle {
			parts[i] = emoji
		} else {
			parts[i] = fmt.Sprintf("%s %d", emoji, counts[emoji])
		}
	}
	return strings.Join(parts, ", ")
}

// ChatToText renders messages as a plain-text transcript for the model.
// Sender labels come from optOutMap; the bot's own messages are labeled
// BotLabel. Messages without a label fall back to AnonymousLabel.
func ChatToText(msgs []model.Message, optOutMap map[string]string, selfJID string) string {
	var b strings.Builder
	for _, m := range msgs {
		label := optOutMap[m.SenderJID]
		if selfJID != "" && m.SenderJID == selfJID {
			label = BotLabel
		}
		if label == "" {
			label = AnonymousLabel
		}

		text := m.Text
		if text == "" && m.MediaURL != "" {
			text = "<media>"
		}

		fmt.Fprintf(&b, "%s: %s: %s", m.Timestamp.Format(timestampLayout), label, text)
		if reactions := RenderReactions(m.Reactions); reactions != "" {
			fmt.Fprintf(&b, ". Reactions: %s", reactions)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
