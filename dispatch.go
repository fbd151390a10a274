package conduit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// maxParallelDispatch caps the number of concurrently executing tool calls
// to avoid overwhelming external services with unbounded parallelism.
const maxParallelDispatch = 10

// toolFuture tracks one in-flight tool execution. payload is valid once done
// is closed; the channel close is the happens-before barrier for readers.
type toolFuture struct {
	call     Message
	payload  string
	duration time.Duration
	done     chan struct{}
}

// startToolCall launches the handler for call in a background goroutine and
// returns immediately. Parallelism across futures is bounded by the loop's
// dispatch semaphore.
func (l *Loop) startToolCall(ctx context.Context, call Message) *toolFuture {
	f := &toolFuture{call: call, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		select {
		case l.dispatchSem <- struct{}{}:
			defer func() { <-l.dispatchSem }()
		case <-ctx.Done():
			f.payload = errorPayload(ctx.Err().Error())
			return
		}
		start := time.Now()
		f.payload = l.invokeTool(ctx, call)
		f.duration = time.Since(start)
	}()
	return f
}

// invokeTool maps the call to its handler and produces the result payload.
// Unknown functions and handler failures never propagate as errors; they
// come back as error JSON so the model can self-correct.
func (l *Loop) invokeTool(ctx context.Context, call Message) string {
	args := call.FunctionArgs
	if args == "" {
		args = "{}"
	}

	handler, ok := l.handlers[call.FunctionName]
	if !ok {
		l.logger.Warn("unknown function requested",
			"function", call.FunctionName, "run", call.RunID, "call", call.ToolCallID)
		return unknownFunctionPayload(call.FunctionName, l.functionNames())
	}

	var span Span
	if l.tracer != nil {
		var tctx context.Context
		tctx, span = l.tracer.Start(ctx, "tool.dispatch",
			StringAttr("tool.function", call.FunctionName),
			StringAttr("run.id", call.RunID))
		ctx = tctx
		defer span.End()
	}

	out, err := safeInvoke(ctx, handler, call.FunctionName, args)
	if err != nil {
		l.logger.Error("tool handler failed",
			"function", call.FunctionName, "call", call.ToolCallID, "error", err)
		if span != nil {
			span.Error(err)
		}
		return errorPayload(err.Error())
	}
	return out
}

// safeInvoke runs the handler with panic recovery so a misbehaving tool
// cannot crash the driver.
func safeInvoke(ctx context.Context, h ToolHandler, name, args string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %q panic: %v", name, p)
		}
	}()
	return h(ctx, args)
}

// functionNames returns the registered function names, sorted for stable
// payloads.
func (l *Loop) functionNames() []string {
	names := make([]string, 0, len(l.handlers))
	for name := range l.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func errorPayload(msg string) string {
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: msg})
	return string(b)
}

func unknownFunctionPayload(name string, available []string) string {
	b, _ := json.Marshal(struct {
		Error              string   `json:"error"`
		AvailableFunctions []string `json:"available_functions"`
	}{
		Error:              "Unknown function: " + name,
		AvailableFunctions: available,
	})
	return string(b)
}
