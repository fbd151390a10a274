package observer

import (
	"context"
	"time"

	"github.com/nevindra/conduit"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedStreamer wraps any conduit.Streamer to emit a span and metrics for
// every generation. Operations the inner streamer starts under the context it
// receives become children of the generation span via propagation.
type ObservedStreamer struct {
	inner conduit.Streamer
	inst  *Instruments
}

// WrapStreamer returns an instrumented Streamer.
func WrapStreamer(inner conduit.Streamer, inst *Instruments) *ObservedStreamer {
	return &ObservedStreamer{inner: inner, inst: inst}
}

func (o *ObservedStreamer) Name() string { return o.inner.Name() }

// GenerateStreaming wraps the inner call with a generation span, counting
// streamed messages and token usage on the way through.
func (o *ObservedStreamer) GenerateStreaming(ctx context.Context, history []conduit.Message, opts conduit.TurnOptions, ch chan<- conduit.Message) error {
	ctx, span := o.inst.Tracer.Start(ctx, "streamer.generate", trace.WithAttributes(
		AttrStreamer.String(o.inner.Name()),
		AttrRunID.String(opts.RunID),
		AttrThreadID.String(opts.ThreadID),
	))
	defer span.End()
	start := time.Now()

	// Tap the stream so counting happens without disturbing the consumer.
	tap := make(chan conduit.Message, 32)
	done := make(chan struct{})
	var streamed int64
	var usage conduit.Usage
	go func() {
		defer close(done)
		for m := range tap {
			streamed++
			if m.Kind == conduit.KindUsage && m.Usage != nil {
				usage = *m.Usage
			}
			select {
			case ch <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	err := o.inner.GenerateStreaming(ctx, history, opts, tap)
	close(tap)
	<-done

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if ctx.Err() != nil && err != nil {
		status = "cancelled"
	} else if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrChunks.Int64(streamed),
		AttrTokensIn.Int(usage.InputTokens),
		AttrTokensOut.Int(usage.OutputTokens),
		AttrStatus.String(status),
	)

	attrs := metric.WithAttributes(
		AttrStreamer.String(o.inner.Name()),
		AttrStatus.String(status),
	)
	o.inst.Generations.Add(ctx, 1, attrs)
	o.inst.GenerationDuration.Record(ctx, durationMs, attrs)
	if total := usage.InputTokens + usage.OutputTokens; total > 0 {
		o.inst.TokenUsage.Add(ctx, int64(total),
			metric.WithAttributes(AttrStreamer.String(o.inner.Name())))
	}
	return err
}

var _ conduit.Streamer = (*ObservedStreamer)(nil)
