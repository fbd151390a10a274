package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nevindra/conduit"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "journal.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndCount(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	msgs := []conduit.Message{
		{Kind: conduit.KindRunAssignment, Role: "system", RunID: "r1", ThreadID: "th"},
		conduit.ToolCallMessage("t1", "greet", "{}"),
		{Kind: conduit.KindRunCompleted, Role: "system", RunID: "r1"},
	}
	msgs[1].RunID = "r1"
	for _, m := range msgs {
		if err := s.Record(ctx, m); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := s.CountByRun(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("CountByRun = %d, want 3", n)
	}
	if n, _ := s.CountByRun(ctx, "other"); n != 0 {
		t.Errorf("CountByRun(other) = %d, want 0", n)
	}
}

func TestInitIdempotent(t *testing.T) {
	s := newTestSink(t)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}
