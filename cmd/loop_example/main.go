// Command loop_example wires a complete background agentic loop: an
// OpenAI-compatible streamer, a tool registry, an event journal, optional
// OTEL observability, and a stdin-driven input feed.
//
// Each line typed on stdin becomes a Send call. A line typed while a run is
// still streaming is injected: the in-flight run finishes its turn, forks,
// and the new input runs immediately after with the old run as its parent.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/conduit"
	"github.com/nevindra/conduit/internal/config"
	"github.com/nevindra/conduit/journal"
	journalpg "github.com/nevindra/conduit/journal/postgres"
	journalsqlite "github.com/nevindra/conduit/journal/sqlite"
	"github.com/nevindra/conduit/observer"
	"github.com/nevindra/conduit/streamer/openaicompat"
	"github.com/nevindra/conduit/tools/clock"
	"github.com/nevindra/conduit/tools/fetch"
)

func main() {
	cfg := config.Load(os.Getenv("CONDUIT_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Streamer
	var streamer conduit.Streamer = openaicompat.New(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		openaicompat.WithLogger(logger))

	// Observer (opt-in via config)
	var loopOpts []conduit.LoopOption
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init failed: %v", err)
		}
		defer shutdown(context.Background())
		streamer = observer.WrapStreamer(streamer, inst)
		loopOpts = append(loopOpts, conduit.WithTracer(observer.NewTracer()))
		logger.Info("OTEL observability enabled")
	}

	// Tools
	registry := conduit.NewToolRegistry()
	registry.Add(clock.New())
	registry.Add(fetch.New())

	// Loop
	loopOpts = append(loopOpts,
		conduit.WithLogger(logger),
		conduit.WithMaxTurns(cfg.Loop.MaxTurns),
		conduit.WithInputCapacity(cfg.Loop.InputCapacity),
		conduit.WithOutputCapacity(cfg.Loop.OutputCapacity),
		conduit.WithTurnOptions(conduit.TurnOptions{Model: cfg.LLM.Model}),
	)
	loop := conduit.New(cfg.Loop.ThreadID, streamer, registry, loopOpts...)
	if err := loop.Start(ctx); err != nil {
		log.Fatalf("loop start failed: %v", err)
	}
	defer loop.Close()

	// Journal
	if stopJournal := attachJournal(ctx, cfg, loop, logger); stopJournal != nil {
		defer stopJournal()
	}

	// Metrics over the event stream
	if inst != nil {
		stopObserve, err := observer.ObserveLoop(loop, inst)
		if err != nil {
			log.Fatalf("observe loop failed: %v", err)
		}
		defer stopObserve()
	}

	// Render every published event on stdout.
	subID, stream, err := loop.Subscribe()
	if err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	defer loop.Unsubscribe(subID)
	go render(stream)

	logger.Info("loop running", "thread", cfg.Loop.ThreadID, "model", cfg.LLM.Model)
	fmt.Println("type a message and press enter (ctrl-c to quit):")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		asg, err := loop.Send(ctx, conduit.UserText(line))
		if err != nil {
			logger.Error("send failed", "error", err)
			continue
		}
		if asg.Injected {
			logger.Info("injected into in-flight run", "run", asg.RunID, "parent", asg.ParentRunID)
		}
		if ctx.Err() != nil {
			break
		}
	}

	loop.Stop(10 * time.Second)
}

// attachJournal wires the configured journal backend, if any. Returns the
// stop function, or nil when journaling is disabled.
func attachJournal(ctx context.Context, cfg config.Config, loop *conduit.Loop, logger *slog.Logger) func() {
	var sink journal.Sink
	switch cfg.Journal.Backend {
	case "sqlite":
		s := journalsqlite.New(cfg.Journal.Path)
		if err := s.Init(ctx); err != nil {
			log.Fatalf("journal init failed: %v", err)
		}
		sink = s
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Journal.DSN)
		if err != nil {
			log.Fatalf("journal pool failed: %v", err)
		}
		s := journalpg.New(pool)
		if err := s.Init(ctx); err != nil {
			log.Fatalf("journal init failed: %v", err)
		}
		sink = s
	case "":
		return nil
	default:
		log.Fatalf("unknown journal backend %q", cfg.Journal.Backend)
	}

	stop, err := journal.Attach(loop, sink, logger)
	if err != nil {
		log.Fatalf("journal attach failed: %v", err)
	}
	return stop
}

// render prints published events in a compact, human-readable form.
func render(stream <-chan conduit.Message) {
	for m := range stream {
		switch m.Kind {
		case conduit.KindRunAssignment:
			if m.Assignment.Injected {
				fmt.Printf("\n[run %s injected, parent %s]\n", short(m.RunID), short(m.Assignment.ParentRunID))
			} else {
				fmt.Printf("\n[run %s]\n", short(m.RunID))
			}
		case conduit.KindTextChunk:
			fmt.Print(m.Content)
		case conduit.KindToolCall:
			fmt.Printf("\n[tool %s(%s)]\n", m.FunctionName, m.FunctionArgs)
		case conduit.KindToolResult:
			fmt.Printf("[tool %s -> %s]\n", m.FunctionName, truncate(m.Content, 120))
		case conduit.KindRunCompleted:
			if m.Completion.Forked {
				fmt.Printf("\n[run %s forked -> %s]\n", short(m.RunID), short(m.Completion.ForkedToRunID))
			} else {
				fmt.Printf("\n[run %s done]\n", short(m.RunID))
			}
		}
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
