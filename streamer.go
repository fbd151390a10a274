package conduit

import "context"

// Streamer is the external agent the loop drives. GenerateStreaming produces
// one model response as a lazy message stream: it writes messages to ch in
// arrival order and returns the terminal error (nil at normal end of
// response, ctx.Err() on cancellation). The caller owns ch and closes it
// after GenerateStreaming returns.
//
// streamer/openaicompat provides an implementation over any OpenAI-compatible
// chat completions endpoint.
type Streamer interface {
	// Name identifies the provider or agent; it is stamped onto messages as
	// FromAgent by the order stage.
	Name() string
	GenerateStreaming(ctx context.Context, history []Message, opts TurnOptions, ch chan<- Message) error
}
