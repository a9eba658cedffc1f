package handler

import (
	"context"

	"github.com/kibitzbot/kibitz/internal/bus"
)

func (h *Handler) handleAbout(_ context.Context, inbound bus.InboundMessage) error {
	h.reply(inbound, aboutMessage)
	return nil
}
