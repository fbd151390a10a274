package conduit

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind identifies the variant of a Message.
type MessageKind string

const (
	// KindTextChunk carries an incremental text fragment from the streamer.
	KindTextChunk MessageKind = "text-chunk"
	// KindReasoningChunk carries an incremental reasoning fragment.
	KindReasoningChunk MessageKind = "reasoning-chunk"
	// KindText is an aggregated text message produced by the joiner stage.
	KindText MessageKind = "text"
	// KindReasoning is an aggregated reasoning message produced by the joiner.
	KindReasoning MessageKind = "reasoning"
	// KindToolCall is a completed request to invoke a named function.
	KindToolCall MessageKind = "tool-call"
	// KindToolArgsUpdate carries a partial tool-argument snapshot emitted by
	// the stitcher stage while argument JSON is still streaming.
	KindToolArgsUpdate MessageKind = "tool-args-update"
	// KindToolResult is the outcome of a KindToolCall, correlated by ToolCallID.
	KindToolResult MessageKind = "tool-result"
	// KindRunAssignment is emitted by the loop when an input is accepted.
	KindRunAssignment MessageKind = "run-assignment"
	// KindRunCompleted is emitted by the loop when a run ends.
	KindRunCompleted MessageKind = "run-completed"
	// KindUsage carries provider token accounting.
	KindUsage MessageKind = "usage"
)

// Message is the single polymorphic value flowing through the pipeline, the
// publishing hub, and conversation history. Kind selects the variant; fields
// not meaningful for a variant are left zero. Provider kinds outside the set
// above are forwarded unchanged.
type Message struct {
	Kind MessageKind `json:"kind"`

	// Correlation. Stamped by the order stage for streamed messages and by
	// the loop for messages it synthesizes itself.
	RunID        string `json:"run_id,omitempty"`
	GenerationID string `json:"generation_id,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
	OrderIdx     int    `json:"order_idx,omitempty"`

	// Role is the sender role ("user", "assistant", "system").
	Role string `json:"role,omitempty"`
	// FromAgent identifies the producing provider or agent.
	FromAgent string `json:"from_agent,omitempty"`

	Content string `json:"content,omitempty"`

	// Tool traffic. ToolCallID is required on KindToolCall and copied onto
	// the matching KindToolResult. FunctionArgs is the raw argument string,
	// typically JSON; empty for niladic calls.
	ToolCallID   string `json:"tool_call_id,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	FunctionArgs string `json:"function_args,omitempty"`

	// Variant payloads.
	Assignment *RunAssignment `json:"assignment,omitempty"`
	Completion *RunCompletion `json:"completion,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// RunAssignment records the acceptance of one user input as a run.
type RunAssignment struct {
	RunID        string `json:"run_id"`
	GenerationID string `json:"generation_id"`
	InputID      string `json:"input_id,omitempty"`
	ParentRunID  string `json:"parent_run_id,omitempty"`
	// Injected is true when the input arrived while another run was in
	// flight and was captured for the fork handoff.
	Injected bool `json:"injected"`
}

// RunCompletion records the end of a run.
type RunCompletion struct {
	RunID string `json:"run_id"`
	// Forked is true when the run ended because new input was injected;
	// ForkedToRunID is the run that follows immediately.
	Forked        bool   `json:"forked"`
	ForkedToRunID string `json:"forked_to_run_id,omitempty"`
	// Error holds the turn failure that ended the run (a stream error or a
	// tool call without a tool_call_id), empty on success.
	Error string `json:"error,omitempty"`
}

// Usage tracks provider token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// UserInput is one submission to the loop: an ordered sequence of messages
// plus optional caller-supplied correlation.
type UserInput struct {
	Messages []Message
	// InputID is an optional client correlation id, echoed on the assignment.
	InputID string
	// ParentRunID overrides the loop's parent inference when set.
	ParentRunID string
}

// --- Message constructors ---

// UserText builds a single-message UserInput from plain text.
func UserText(text string) UserInput {
	return UserInput{Messages: []Message{{Kind: KindText, Role: "user", Content: text}}}
}

// TextChunk builds an incremental assistant text fragment.
func TextChunk(text string) Message {
	return Message{Kind: KindTextChunk, Role: "assistant", Content: text}
}

// ToolCallMessage builds a completed tool invocation request.
func ToolCallMessage(callID, function, args string) Message {
	return Message{Kind: KindToolCall, Role: "assistant", ToolCallID: callID, FunctionName: function, FunctionArgs: args}
}

// ToolResultMessage builds the result for a tool call. The result carries the
// "user" role so the next turn sees it as a user-side contribution.
func ToolResultMessage(call Message, payload string) Message {
	return Message{
		Kind:         KindToolResult,
		Role:         "user",
		RunID:        call.RunID,
		GenerationID: call.GenerationID,
		ThreadID:     call.ThreadID,
		FromAgent:    call.FromAgent,
		ToolCallID:   call.ToolCallID,
		FunctionName: call.FunctionName,
		Content:      payload,
	}
}

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
