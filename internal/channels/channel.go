// Package channels connects messaging platforms to the processing pipeline
// via the message bus.
package channels

import (
	"context"

	"github.com/kibitzbot/kibitz/internal/bus"
)

// Channel is a messaging platform adapter.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp", "telegram").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
