// Package conduit is a background agentic loop for Go: a long-lived,
// concurrency-safe engine that drives a conversation between users and a
// streaming language-model agent, executes the tools the agent requests, and
// streams every intermediate event to any number of independent subscribers
// in real time.
//
// # Quick Start
//
// Create a loop by composing a streamer and a tool registry:
//
//	registry := conduit.NewToolRegistry()
//	registry.Add(clock.New())
//
//	loop := conduit.New("thread-1",
//		openaicompat.New(apiKey, model, baseURL),
//		registry,
//		conduit.WithLogger(logger),
//	)
//	loop.Start(ctx)
//	defer loop.Close()
//
//	stream, err := loop.ExecuteRun(ctx, conduit.UserText("hi"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	for msg := range stream {
//		fmt.Println(msg.Kind, msg.Content)
//	}
//
// # Core Concepts
//
//   - A run is one user-initiated interaction, possibly spanning several
//     turns (model call plus the parallel execution of every tool it
//     requested).
//   - Input submitted while a run is in flight becomes an injection: a child
//     run announced immediately and started as soon as the in-flight run
//     finishes its current turn (a fork).
//   - Every observable event flows through the publishing hub; subscribers
//     each own a bounded FIFO queue, so a slow consumer never poisons the
//     others.
//   - All model output passes through a fixed middleware pipeline: order
//     assignment, argument stitching, publishing, chunk joining, and tool
//     contract injection.
//
// # Included Implementations
//
// Streamers: streamer/openaicompat (any OpenAI-compatible API).
// Journals: journal/sqlite (local), journal/postgres.
// Observability: observer (OpenTelemetry traces, metrics, logs).
// Tools: tools/clock, tools/fetch.
//
// See cmd/loop_example for a complete reference application.
package conduit
