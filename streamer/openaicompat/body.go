package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/conduit"
)

// BuildBody converts conversation history and per-turn options into an
// OpenAI-format ChatRequest.
//
// History mapping: aggregated text becomes plain role messages; aggregated
// reasoning is not replayed; runs of adjacent tool calls collapse into one assistant message with a
// tool_calls array; tool results become role:"tool" messages correlated by
// tool_call_id (the wire protocol's convention; conduit marks them "user"
// internally). Loop bookkeeping (assignments, completions, usage) never
// reaches the provider.
func BuildBody(history []conduit.Message, opts conduit.TurnOptions) ChatRequest {
	var msgs []Message
	var calls []ToolCallRequest

	flushCalls := func() {
		if len(calls) == 0 {
			return
		}
		msgs = append(msgs, Message{Role: "assistant", ToolCalls: calls})
		calls = nil
	}

	for _, m := range history {
		switch m.Kind {
		case conduit.KindToolCall:
			args := m.FunctionArgs
			if args == "" {
				args = "{}"
			}
			calls = append(calls, ToolCallRequest{
				ID:   m.ToolCallID,
				Type: "function",
				Function: FunctionCall{
					Name:      m.FunctionName,
					Arguments: args,
				},
			})
		case conduit.KindToolResult:
			flushCalls()
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case conduit.KindText:
			flushCalls()
			role := m.Role
			if role == "" {
				role = "user"
			}
			msgs = append(msgs, Message{Role: role, Content: m.Content})
		case conduit.KindReasoning:
			// Reasoning is model-internal; it is not replayed.
		default:
			// Chunks, assignments, completions, usage: bookkeeping only.
		}
	}
	flushCalls()

	req := ChatRequest{
		Model:       opts.Model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if len(opts.Tools) > 0 {
		req.Tools = BuildToolDefs(opts.Tools)
	}
	return req
}

// BuildToolDefs converts conduit tool definitions to the OpenAI tool format.
func BuildToolDefs(tools []conduit.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
