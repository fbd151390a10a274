// Package journal records published loop events to a write-only sink for
// offline inspection. A journal is an ordinary hub subscriber: it observes
// the stream, it never feeds conversation history, and losing it never
// affects a run.
package journal

import (
	"context"
	"log/slog"

	"github.com/nevindra/conduit"
)

// Sink persists one published message. Implementations live in
// journal/sqlite and journal/postgres.
type Sink interface {
	// Record writes one message. Best effort: the pump logs failures and
	// keeps going.
	Record(ctx context.Context, m conduit.Message) error
	// Close releases the sink's resources.
	Close() error
}

// Attach subscribes to the loop and pumps every published message into the
// sink on a background goroutine. The returned stop function unsubscribes,
// waits for the pump to drain, and closes the sink. Record failures are
// logged and skipped so a broken journal never stalls its subscription
// longer than the write itself.
func Attach(loop *conduit.Loop, sink Sink, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	subID, stream, err := loop.Subscribe()
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		for m := range stream {
			if err := sink.Record(ctx, m); err != nil {
				logger.Warn("journal record failed", "kind", m.Kind, "run", m.RunID, "error", err)
			}
		}
	}()

	stop := func() {
		loop.Unsubscribe(subID)
		<-done
		if err := sink.Close(); err != nil {
			logger.Warn("journal close failed", "error", err)
		}
	}
	return stop, nil
}
