package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nevindra/conduit"
)

// Streamer implements conduit.Streamer for any OpenAI-compatible API.
type Streamer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	logger  *slog.Logger
}

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer)

// WithName overrides the streamer name reported to the loop (default "openai").
func WithName(name string) StreamerOption {
	return func(s *Streamer) { s.name = name }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) StreamerOption {
	return func(s *Streamer) { s.client = c }
}

// WithLogger sets the structured logger for request diagnostics.
func WithLogger(l *slog.Logger) StreamerOption {
	return func(s *Streamer) { s.logger = l }
}

// New creates a streamer for an OpenAI-compatible chat completions endpoint.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"); the /chat/completions path is appended.
// model is the default; TurnOptions.Model overrides it per turn.
func New(apiKey, model, baseURL string, opts ...StreamerOption) *Streamer {
	s := &Streamer{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the streamer name (default "openai", configurable via WithName).
func (s *Streamer) Name() string { return s.name }

// GenerateStreaming sends one streaming chat completions request and writes
// the response to ch as it arrives: text and reasoning chunks, tool-argument
// fragments, then the aggregated text message, completed tool calls, and
// usage. Returns when the SSE stream ends or ctx is cancelled.
func (s *Streamer) GenerateStreaming(ctx context.Context, history []conduit.Message, opts conduit.TurnOptions, ch chan<- conduit.Message) error {
	body := BuildBody(history, opts)
	if body.Model == "" {
		body.Model = s.model
	}
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openaicompat: marshal request: %w", err)
	}

	url := s.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("openaicompat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("openaicompat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openaicompat: http %d: %s", resp.StatusCode, b)
	}

	if s.logger != nil {
		s.logger.Debug("streaming request sent", "model", body.Model, "messages", len(body.Messages), "tools", len(body.Tools))
	}
	return StreamSSE(ctx, resp.Body, ch)
}

var _ conduit.Streamer = (*Streamer)(nil)
