package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/nevindra/conduit"
)

// StreamSSE reads an SSE stream from body and writes conduit messages to ch:
// a KindTextChunk or KindReasoningChunk per delta, a KindToolArgsUpdate per
// tool-argument fragment, and, once the stream ends, the aggregated
// KindText message, one KindToolCall per completed call, and a KindUsage
// message when the provider reported usage.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func StreamSSE(ctx context.Context, body io.Reader, ch chan<- conduit.Message) error {
	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	send := func(m conduit.Message) error {
		select {
		case ch <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var fullContent strings.Builder
	var usage *conduit.Usage

	// Tool calls stream incrementally: each chunk carries an index, and
	// arguments arrive as string fragments.
	type partialToolCall struct {
		ID   string
		Name string
		Args strings.Builder
	}
	var toolCalls []*partialToolCall

	for scanner.Scan() {
		line := scanner.Text()

		// SSE lines that carry data start with "data: ".
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk ChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		if chunk.Usage != nil {
			usage = &conduit.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta == nil {
			continue
		}

		if delta.Content != "" {
			fullContent.WriteString(delta.Content)
			if err := send(conduit.TextChunk(delta.Content)); err != nil {
				return err
			}
		}
		if delta.Reasoning != "" {
			if err := send(conduit.Message{Kind: conduit.KindReasoningChunk, Role: "assistant", Content: delta.Reasoning}); err != nil {
				return err
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			for len(toolCalls) <= idx {
				toolCalls = append(toolCalls, &partialToolCall{})
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args.WriteString(tc.Function.Arguments)
				err := send(conduit.Message{
					Kind:         conduit.KindToolArgsUpdate,
					Role:         "assistant",
					ToolCallID:   toolCalls[idx].ID,
					FunctionName: toolCalls[idx].Name,
					FunctionArgs: tc.Function.Arguments,
				})
				if err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if fullContent.Len() > 0 {
		err := send(conduit.Message{Kind: conduit.KindText, Role: "assistant", Content: fullContent.String()})
		if err != nil {
			return err
		}
	}
	for _, tc := range toolCalls {
		args := tc.Args.String()
		if args != "" && !json.Valid([]byte(args)) {
			args = "{}"
		}
		if err := send(conduit.ToolCallMessage(tc.ID, tc.Name, args)); err != nil {
			return err
		}
	}
	if usage != nil {
		err := send(conduit.Message{Kind: conduit.KindUsage, Role: "assistant", Usage: usage})
		if err != nil {
			return err
		}
	}
	return nil
}
