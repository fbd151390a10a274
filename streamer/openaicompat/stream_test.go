package openaicompat

import (
	"context"
	"strings"
	"testing"

	"github.com/nevindra/conduit"
)

// runSSE drives StreamSSE over a raw SSE body and collects the messages.
func runSSE(t *testing.T, body string) []conduit.Message {
	t.Helper()
	ch := make(chan conduit.Message, 64)
	errc := make(chan error, 1)
	go func() {
		errc <- StreamSSE(context.Background(), strings.NewReader(body), ch)
		close(ch)
	}()
	var out []conduit.Message
	for m := range ch {
		out = append(out, m)
	}
	if err := <-errc; err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}
	return out
}

func TestStreamSSETextDeltas(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"Hel"}}]}

data: {"choices":[{"delta":{"content":"lo"}}]}

data: [DONE]
`
	out := runSSE(t, body)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 2 chunks + 1 aggregate: %+v", len(out), out)
	}
	if out[0].Kind != conduit.KindTextChunk || out[0].Content != "Hel" {
		t.Errorf("first = %+v", out[0])
	}
	if out[1].Kind != conduit.KindTextChunk || out[1].Content != "lo" {
		t.Errorf("second = %+v", out[1])
	}
	if out[2].Kind != conduit.KindText || out[2].Content != "Hello" {
		t.Errorf("aggregate = %+v", out[2])
	}
}

func TestStreamSSEToolCallFragments(t *testing.T) {
	body := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":"{\"city\":"}}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"SF\"}"}}]}}]}

data: [DONE]
`
	out := runSSE(t, body)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 2 fragments + 1 call: %+v", len(out), out)
	}
	for i := 0; i < 2; i++ {
		if out[i].Kind != conduit.KindToolArgsUpdate || out[i].ToolCallID != "call_1" {
			t.Errorf("fragment %d = %+v", i, out[i])
		}
	}
	call := out[2]
	if call.Kind != conduit.KindToolCall || call.ToolCallID != "call_1" || call.FunctionName != "get_weather" {
		t.Fatalf("call = %+v", call)
	}
	if call.FunctionArgs != `{"city":"SF"}` {
		t.Errorf("args = %q", call.FunctionArgs)
	}
}

func TestStreamSSEParallelToolCalls(t *testing.T) {
	body := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"t1","function":{"name":"a","arguments":"{}"}}]}}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"t2","function":{"name":"b","arguments":"{}"}}]}}]}

data: [DONE]
`
	out := runSSE(t, body)
	var calls []conduit.Message
	for _, m := range out {
		if m.Kind == conduit.KindToolCall {
			calls = append(calls, m)
		}
	}
	if len(calls) != 2 || calls[0].ToolCallID != "t1" || calls[1].ToolCallID != "t2" {
		t.Fatalf("calls = %+v, want t1 then t2", calls)
	}
}

func TestStreamSSEUsageAndMalformedChunks(t *testing.T) {
	body := `data: not json at all

data: {"choices":[{"delta":{"content":"ok"}}]}

data: {"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3}}

data: [DONE]
`
	out := runSSE(t, body)
	last := out[len(out)-1]
	if last.Kind != conduit.KindUsage || last.Usage == nil {
		t.Fatalf("last = %+v, want usage", last)
	}
	if last.Usage.InputTokens != 7 || last.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", last.Usage)
	}
}

func TestStreamSSEInvalidArgsFallBackToEmptyObject(t *testing.T) {
	body := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"t1","function":{"name":"a","arguments":"{\"x\":"}}]}}]}

data: [DONE]
`
	out := runSSE(t, body)
	last := out[len(out)-1]
	if last.Kind != conduit.KindToolCall || last.FunctionArgs != "{}" {
		t.Errorf("call = %+v, want args reset to {}", last)
	}
}
