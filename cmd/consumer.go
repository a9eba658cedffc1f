package cmd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/handler"
)

// perMessageTimeout bounds one message's trip through the pipeline,
// including model calls and tool use.
const perMessageTimeout = 3 * time.Minute

// runConsumers drains the inbound bus with a fixed worker pool. Workers
// exit when ctx is done and the pool waits for in-flight messages.
func runConsumers(ctx context.Context, msgBus *bus.MessageBus, h *handler.Handler, workers int) {
	if workers <= 0 {
		workers = 4
	}
	slog.Info("inbound consumers started", "workers", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				inbound, ok := msgBus.ConsumeInbound(ctx)
				if !ok {
					return
				}

				runID := uuid.NewString()
				log := slog.With("run_id", runID, "worker", worker,
					"message_id", inbound.Message.MessageID)
				log.Debug("processing message")

				msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
				h.Handle(msgCtx, inbound)
				cancel()
			}
		}(i)
	}
	wg.Wait()
	slog.Info("inbound consumers stopped")
}
