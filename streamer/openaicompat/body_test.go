package openaicompat

import (
	"testing"

	"github.com/nevindra/conduit"
)

func TestBuildBodyMapsHistory(t *testing.T) {
	history := []conduit.Message{
		{Kind: conduit.KindText, Role: "user", Content: "weather please"},
		conduit.ToolCallMessage("t1", "get_weather", `{"city":"SF"}`),
		conduit.ToolCallMessage("t2", "get_time", ""),
		{Kind: conduit.KindToolResult, Role: "user", ToolCallID: "t1", Content: "sunny"},
		{Kind: conduit.KindToolResult, Role: "user", ToolCallID: "t2", Content: "noon"},
		{Kind: conduit.KindText, Role: "assistant", Content: "sunny at noon"},
		{Kind: conduit.KindRunCompleted, Role: "system"},
		{Kind: conduit.KindUsage, Usage: &conduit.Usage{}},
	}

	req := BuildBody(history, conduit.TurnOptions{Model: "gpt-test"})
	if req.Model != "gpt-test" {
		t.Errorf("model = %q", req.Model)
	}

	wantRoles := []string{"user", "assistant", "tool", "tool", "assistant"}
	if len(req.Messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d: %+v", len(req.Messages), len(wantRoles), req.Messages)
	}
	for i, want := range wantRoles {
		if req.Messages[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, req.Messages[i].Role, want)
		}
	}

	// Adjacent tool calls collapse into one assistant message.
	calls := req.Messages[1].ToolCalls
	if len(calls) != 2 {
		t.Fatalf("assistant message has %d tool calls, want 2", len(calls))
	}
	if calls[0].ID != "t1" || calls[0].Function.Name != "get_weather" {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Function.Arguments != "{}" {
		t.Errorf("empty args not defaulted: %q", calls[1].Function.Arguments)
	}

	// Tool results carry the wire protocol's tool role and correlation id.
	if req.Messages[2].ToolCallID != "t1" || req.Messages[2].Content != "sunny" {
		t.Errorf("tool result = %+v", req.Messages[2])
	}
}

func TestBuildBodyToolDefs(t *testing.T) {
	opts := conduit.TurnOptions{
		Model: "m",
		Tools: []conduit.ToolDefinition{
			{Name: "greet", Description: "Say hello"},
		},
	}
	req := BuildBody(nil, opts)
	if len(req.Tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(req.Tools))
	}
	tool := req.Tools[0]
	if tool.Type != "function" || tool.Function.Name != "greet" {
		t.Errorf("tool = %+v", tool)
	}
	if string(tool.Function.Parameters) != "{}" {
		t.Errorf("missing parameters not defaulted: %q", tool.Function.Parameters)
	}
}

func TestBuildBodySkipsChunksAndBookkeeping(t *testing.T) {
	history := []conduit.Message{
		conduit.TextChunk("par"),
		{Kind: conduit.KindRunAssignment, Role: "system"},
		{Kind: conduit.KindReasoning, Role: "assistant", Content: "hmm"},
	}
	req := BuildBody(history, conduit.TurnOptions{Model: "m"})
	if len(req.Messages) != 0 {
		t.Errorf("got %d messages, want 0: %+v", len(req.Messages), req.Messages)
	}
}
