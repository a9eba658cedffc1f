// Package redact maps sender JIDs to display labels, hiding users who have
// opted out of having their messages shown to the model.
package redact

import (
	"context"

	"github.com/kibitzbot/kibitz/internal/model"
	"github.com/kibitzbot/kibitz/internal/store"
)

const (
	// AnonymousLabel replaces the display name of opted-out senders.
	AnonymousLabel = "Anonymous"

	// BotLabel marks the bot's own messages in rendered transcripts.
	BotLabel = "[Bot]"
)

// BuildOptOutMap returns a display label for every JID in jids. Opt-out
// lookups happen once per distinct JID; rendering then stays consistent
// across the whole transcript.
func BuildOptOutMap(ctx context.Context, optOuts store.OptOutStore, jids []string) (map[string]string, error) {
	labels := make(map[string]string, len(jids))
	for _, jid := range jids {
		if jid == "" {
			continue
		}
		if _, ok := labels[jid]; ok {
			continue
		}
		optOut, err := optOuts.Get(ctx, jid)
		if err != nil {
			return nil, err
		}
		if optOut != nil {
			labels[jid] = AnonymousLabel
		} else {
			labels[jid] = "@" + model.UserPart(jid)
		}
	}
	return labels, nil
}

// SenderJIDs collects the distinct sender JIDs of msgs in first-seen order.
func SenderJIDs(msgs []model.Message) []string {
	seen := make(map[string]bool, len(msgs))
	var jids []string
	for _, m := range msgs {
		if m.SenderJID == "" || seen[m.SenderJID] {
			continue
		}
		seen[m.SenderJID] = true
		jids = append(jids, m.SenderJID)
	}
	return jids
}
