package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nevindra/conduit"
)

type stubStreamer struct{}

func (stubStreamer) Name() string { return "stub" }

func (stubStreamer) GenerateStreaming(ctx context.Context, _ []conduit.Message, _ conduit.TurnOptions, ch chan<- conduit.Message) error {
	select {
	case ch <- conduit.Message{Kind: conduit.KindText, Role: "assistant", Content: "ok"}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

type memorySink struct {
	mu     sync.Mutex
	events []conduit.Message
	closed bool
}

func (s *memorySink) Record(_ context.Context, m conduit.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, m)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestAttachRecordsPublishedEvents(t *testing.T) {
	l := conduit.New("th", stubStreamer{}, conduit.NewToolRegistry())
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	sink := &memorySink{}
	stop, err := Attach(l, sink, nil)
	if err != nil {
		t.Fatal(err)
	}

	stream, err := l.ExecuteRun(context.Background(), conduit.UserText("hi"))
	if err != nil {
		t.Fatal(err)
	}
	for range stream {
	}

	// The pump runs behind its own queue; give it a moment to drain.
	deadline := time.Now().Add(5 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.events)
		sink.mu.Unlock()
		if n >= 3 { // assignment, text, completion
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal recorded %d events, want at least 3", n)
		}
		time.Sleep(time.Millisecond)
	}

	stop()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.closed {
		t.Error("sink not closed by stop")
	}
	if sink.events[0].Kind != conduit.KindRunAssignment {
		t.Errorf("first recorded = %v, want run-assignment", sink.events[0].Kind)
	}
}
