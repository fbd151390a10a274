package observer

import (
	"context"

	"github.com/nevindra/conduit"

	"go.opentelemetry.io/otel/metric"
)

// ObserveLoop subscribes to the loop and turns its published event stream
// into metrics: run assignments, completions, forks, and tool traffic. The
// returned stop function unsubscribes and waits for the counter goroutine.
func ObserveLoop(loop *conduit.Loop, inst *Instruments) (func(), error) {
	subID, stream, err := loop.Subscribe()
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		threadAttr := metric.WithAttributes(AttrThreadID.String(loop.ThreadID()))
		for m := range stream {
			switch m.Kind {
			case conduit.KindRunAssignment:
				injected := m.Assignment != nil && m.Assignment.Injected
				inst.RunsAssigned.Add(ctx, 1, threadAttr,
					metric.WithAttributes(AttrInjected.Bool(injected)))
			case conduit.KindRunCompleted:
				inst.RunsCompleted.Add(ctx, 1, threadAttr)
				if m.Completion != nil && m.Completion.Forked {
					inst.RunsForked.Add(ctx, 1, threadAttr)
				}
			case conduit.KindToolCall:
				inst.ToolCalls.Add(ctx, 1, threadAttr,
					metric.WithAttributes(AttrFunction.String(m.FunctionName)))
			case conduit.KindToolResult:
				inst.ToolResults.Add(ctx, 1, threadAttr,
					metric.WithAttributes(AttrFunction.String(m.FunctionName)))
			}
		}
	}()

	stop := func() {
		loop.Unsubscribe(subID)
		<-done
	}
	return stop, nil
}
