package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nevindra/conduit"
)

func TestGenerateStreamingEndToEnd(t *testing.T) {
	var gotReq ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("auth = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("request not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	s := New("key", "test-model", srv.URL)
	ch := make(chan conduit.Message, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- s.GenerateStreaming(context.Background(), []conduit.Message{
			{Kind: conduit.KindText, Role: "user", Content: "hello"},
		}, conduit.TurnOptions{}, ch)
		close(ch)
	}()

	var out []conduit.Message
	for m := range ch {
		out = append(out, m)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	if !gotReq.Stream || gotReq.StreamOptions == nil || !gotReq.StreamOptions.IncludeUsage {
		t.Error("streaming flags not set on request")
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want default applied", gotReq.Model)
	}
	if len(out) != 2 || out[0].Kind != conduit.KindTextChunk || out[1].Kind != conduit.KindText {
		t.Fatalf("messages = %+v", out)
	}
}

func TestGenerateStreamingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := New("key", "m", srv.URL)
	ch := make(chan conduit.Message, 1)
	err := s.GenerateStreaming(context.Background(), nil, conduit.TurnOptions{}, ch)
	if err == nil {
		t.Fatal("want error on 429")
	}
}
