package conduit

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the public surface.
var (
	// ErrEmptyInput is returned by Send when the input carries no messages.
	ErrEmptyInput = errors.New("conduit: input has no messages")
	// ErrDisposed is returned by public calls after Close.
	ErrDisposed = errors.New("conduit: loop disposed")
	// ErrNotRunning is returned when an operation requires a running loop.
	ErrNotRunning = errors.New("conduit: loop not running")
	// ErrAlreadyRunning is returned by a second Start or Run.
	ErrAlreadyRunning = errors.New("conduit: loop already running")
	// ErrHubClosed is returned by Subscribe after the hub closed.
	ErrHubClosed = errors.New("conduit: hub closed")
)

// MissingCallIDError reports a tool call that arrived without a tool_call_id.
// This is a contract violation by an upstream pipeline stage, not a
// recoverable tool failure: the turn raises it and the run ends.
type MissingCallIDError struct {
	Function string
}

func (e *MissingCallIDError) Error() string {
	return fmt.Sprintf("conduit: tool call for %q has no tool_call_id", e.Function)
}
