package conduit

import (
	"context"
	"sync/atomic"
)

// streamBuffer is the channel capacity between adjacent pipeline stages.
const streamBuffer = 16

// StreamFunc produces one model response as a message stream: it writes
// messages to ch in order and returns the terminal error. The caller owns ch
// and closes it after the call returns. Streamer.GenerateStreaming has this
// shape once bound; middleware stages wrap it.
type StreamFunc func(ctx context.Context, history []Message, opts TurnOptions, ch chan<- Message) error

// Middleware wraps a StreamFunc with a behavior-preserving transformation of
// its message stream (or of its request, for request-side stages).
type Middleware func(next StreamFunc) StreamFunc

// Chain applies stages to base so that stages[0] transforms the base output
// first, stages[1] second, and so on.
func Chain(base StreamFunc, stages ...Middleware) StreamFunc {
	f := base
	for _, s := range stages {
		f = s(f)
	}
	return f
}

// startInner runs next into a fresh intermediate channel and returns the
// channel plus a wait function yielding next's terminal error. The channel
// closes when next returns.
func startInner(ctx context.Context, history []Message, opts TurnOptions, next StreamFunc) (<-chan Message, func() error) {
	in := make(chan Message, streamBuffer)
	errc := make(chan error, 1)
	go func() {
		errc <- next(ctx, history, opts, in)
		close(in)
	}()
	return in, func() error { return <-errc }
}

// forward sends m downstream, honoring cancellation.
func forward(ctx context.Context, out chan<- Message, m Message) error {
	select {
	case out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OrderStage stamps every streamed message with a monotonic order index and
// the identifiers of the turn that produced it. The counter is shared across
// turns so indices are monotonic for the whole thread.
func OrderStage(counter *atomic.Int64, agent string) Middleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, history []Message, opts TurnOptions, out chan<- Message) error {
			in, wait := startInner(ctx, history, opts, next)
			var ferr error
			for m := range in {
				if ferr != nil {
					continue // drain so the inner goroutine can finish
				}
				m.OrderIdx = int(counter.Add(1))
				if m.RunID == "" {
					m.RunID = opts.RunID
				}
				if m.GenerationID == "" {
					m.GenerationID = opts.GenerationID
				}
				if m.ThreadID == "" {
					m.ThreadID = opts.ThreadID
				}
				if m.FromAgent == "" {
					m.FromAgent = agent
				}
				ferr = forward(ctx, out, m)
			}
			if err := wait(); err != nil {
				return err
			}
			return ferr
		}
	}
}

// StitchStage accumulates streamed tool-argument fragments and emits a full
// argument snapshot each time the accumulated text forms balanced JSON, so
// subscribers can render partial tool calls before the call completes.
// Fragments that do not yet close a structural boundary are swallowed.
// Everything else passes through unchanged.
func StitchStage() Middleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, history []Message, opts TurnOptions, out chan<- Message) error {
			partial := make(map[string]string)
			in, wait := startInner(ctx, history, opts, next)
			var ferr error
			for m := range in {
				if ferr != nil {
					continue
				}
				if m.Kind == KindToolArgsUpdate {
					acc := partial[m.ToolCallID] + m.FunctionArgs
					partial[m.ToolCallID] = acc
					if !balancedJSON(acc) {
						continue
					}
					m.FunctionArgs = acc
				}
				ferr = forward(ctx, out, m)
			}
			if err := wait(); err != nil {
				return err
			}
			return ferr
		}
	}
}

// PublishStage forwards every message downstream unchanged and publishes it
// to the hub as a side effect. It sits upstream of the joiner so chunk-level
// updates reach subscribers before aggregation.
func PublishStage(hub *Hub) Middleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, history []Message, opts TurnOptions, out chan<- Message) error {
			in, wait := startInner(ctx, history, opts, next)
			var ferr error
			for m := range in {
				if ferr != nil {
					continue
				}
				hub.Publish(ctx, m)
				ferr = forward(ctx, out, m)
			}
			if err := wait(); err != nil {
				return err
			}
			return ferr
		}
	}
}

// JoinStage coalesces runs of adjacent text and reasoning chunks into
// aggregated KindText / KindReasoning messages for conversation history.
// Chunks and argument snapshots do not travel past this stage; subscribers
// already received them from the publish stage.
func JoinStage() Middleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, history []Message, opts TurnOptions, out chan<- Message) error {
			var agg *Message
			flush := func() error {
				if agg == nil {
					return nil
				}
				m := *agg
				agg = nil
				return forward(ctx, out, m)
			}

			in, wait := startInner(ctx, history, opts, next)
			var ferr error
			for m := range in {
				if ferr != nil {
					continue
				}
				switch m.Kind {
				case KindTextChunk, KindReasoningChunk:
					joined := KindText
					if m.Kind == KindReasoningChunk {
						joined = KindReasoning
					}
					if agg != nil && agg.Kind != joined {
						ferr = flush()
						if ferr != nil {
							continue
						}
					}
					if agg == nil {
						first := m
						first.Kind = joined
						first.Content = ""
						agg = &first
					}
					agg.Content += m.Content
				case KindText, KindReasoning:
					// The provider sent its own aggregate: it supersedes the
					// chunks accumulated for the same segment.
					if agg != nil {
						if agg.Kind == m.Kind {
							agg = nil
						} else {
							ferr = flush()
							if ferr != nil {
								continue
							}
						}
					}
					ferr = forward(ctx, out, m)
				case KindToolArgsUpdate:
					// Snapshot only; the completed KindToolCall follows.
				default:
					ferr = flush()
					if ferr == nil {
						ferr = forward(ctx, out, m)
					}
				}
			}
			if ferr == nil {
				ferr = flush()
			}
			if err := wait(); err != nil {
				return err
			}
			return ferr
		}
	}
}

// balancedJSON reports whether s opens and closes the same number of objects
// and arrays outside string literals. Cheap structural check; it does not
// validate the JSON.
func balancedJSON(s string) bool {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && !inString && len(s) > 0
}
