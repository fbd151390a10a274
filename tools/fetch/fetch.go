// Package fetch provides a tool that downloads URLs and extracts readable
// text for the model.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"

	"github.com/nevindra/conduit"
)

// maxContentLen caps the text returned to the model.
const maxContentLen = 8000

// Tool fetches URLs and extracts readable content.
type Tool struct {
	client *http.Client
}

// New creates a fetch tool with a 15-second timeout.
func New() *Tool {
	return &Tool{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Tool) Definitions() []conduit.ToolDefinition {
	return []conduit.ToolDefinition{{
		Name:        "fetch_page",
		Description: "Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args string) (string, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", fmt.Errorf("invalid args: %w", err)
	}
	if params.URL == "" {
		return "", fmt.Errorf("url is required")
	}

	content, err := t.Fetch(ctx, params.URL)
	if err != nil {
		return "", err
	}
	if len(content) > maxContentLen {
		content = content[:maxContentLen] + "\n... (truncated)"
	}
	return content, nil
}

// Fetch downloads a URL and extracts readable text, NFC-normalized so
// visually identical pages compare equal regardless of source encoding.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ConduitBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil || article.TextContent == "" {
		return "", fmt.Errorf("no readable content at %s", rawURL)
	}
	return norm.NFC.String(strings.TrimSpace(article.TextContent)), nil
}

var _ conduit.Tool = (*Tool)(nil)
