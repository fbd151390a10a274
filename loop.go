package conduit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// defaultMaxTurns bounds the number of model calls per run.
	defaultMaxTurns = 50
	// defaultInputCapacity bounds the submission queue; writers block when full.
	defaultInputCapacity = 100
	// defaultStopTimeout bounds how long Stop waits for the driver to exit.
	defaultStopTimeout = 30 * time.Second
)

// Loop drives a long-lived conversation between users and a streaming agent
// on one thread. It accepts inputs concurrently, sequences them into runs,
// executes requested tools, and fans every observable event out to
// subscribers through its hub. One Loop instance per thread.
type Loop struct {
	threadID string
	streamer Streamer
	handlers map[string]ToolHandler
	pipeline StreamFunc
	hub      *Hub
	defaults TurnOptions

	maxTurns    int
	stopTimeout time.Duration
	logger      *slog.Logger
	tracer      Tracer

	orderIdx    atomic.Int64
	dispatchSem chan struct{}
	inputCh     chan submission

	// Run state. currentRun, latestRun, and the pending-injection FIFO share
	// one mutex so the queue-vs-inject decision in Send is atomic with run
	// transitions in the driver.
	mu         sync.Mutex
	currentRun string
	latestRun  string
	pending    []pendingInjection

	// history is mutated only by the driver goroutine.
	history []Message

	running  atomic.Bool
	disposed atomic.Bool
	lifeMu   sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// submission pairs a queued input with the promise resolved once the driver
// assigns it a run.
type submission struct {
	input UserInput
	res   chan submitResult
}

type submitResult struct {
	assignment RunAssignment
	err        error
}

// pendingInjection is input captured while a run was in flight, together
// with the assignment already announced for it.
type pendingInjection struct {
	input      UserInput
	assignment RunAssignment
}

// LoopOption configures a Loop.
type LoopOption func(*loopOptions)

type loopOptions struct {
	maxTurns    int
	inputCap    int
	outputCap   int
	stopTimeout time.Duration
	defaults    TurnOptions
	logger      *slog.Logger
	tracer      Tracer
}

// WithMaxTurns sets the per-run turn cap (default 50).
func WithMaxTurns(n int) LoopOption {
	return func(o *loopOptions) { o.maxTurns = n }
}

// WithInputCapacity sets the submission queue capacity (default 100).
func WithInputCapacity(n int) LoopOption {
	return func(o *loopOptions) { o.inputCap = n }
}

// WithOutputCapacity sets the per-subscriber queue capacity (default 1000).
func WithOutputCapacity(n int) LoopOption {
	return func(o *loopOptions) { o.outputCap = n }
}

// WithStopTimeout sets how long Stop waits for the driver (default 30s).
func WithStopTimeout(d time.Duration) LoopOption {
	return func(o *loopOptions) { o.stopTimeout = d }
}

// WithTurnOptions sets the per-turn options template. RunID, GenerationID,
// and ThreadID are overlaid per turn; the rest passes through as configured.
func WithTurnOptions(t TurnOptions) LoopOption {
	return func(o *loopOptions) { o.defaults = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) LoopOption {
	return func(o *loopOptions) { o.logger = l }
}

// WithTracer enables span emission for runs, turns, and tool dispatch.
func WithTracer(t Tracer) LoopOption {
	return func(o *loopOptions) { o.tracer = t }
}

// New creates a Loop for threadID over the given streamer and tool registry.
// The middleware pipeline is assembled here in its fixed order: order
// assignment, argument stitching, publishing, joining, tool contracts.
func New(threadID string, s Streamer, registry *ToolRegistry, opts ...LoopOption) *Loop {
	o := loopOptions{
		maxTurns:    defaultMaxTurns,
		inputCap:    defaultInputCapacity,
		stopTimeout: defaultStopTimeout,
		logger:      nopLogger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxTurns <= 0 {
		o.maxTurns = defaultMaxTurns
	}
	if o.inputCap <= 0 {
		o.inputCap = defaultInputCapacity
	}
	if o.logger == nil {
		o.logger = nopLogger
	}

	l := &Loop{
		threadID:    threadID,
		streamer:    s,
		handlers:    registry.Handlers(),
		hub:         NewHub(o.outputCap, o.logger),
		defaults:    o.defaults,
		maxTurns:    o.maxTurns,
		stopTimeout: o.stopTimeout,
		logger:      o.logger,
		tracer:      o.tracer,
		dispatchSem: make(chan struct{}, maxParallelDispatch),
		inputCh:     make(chan submission, o.inputCap),
	}

	base := StreamFunc(func(ctx context.Context, history []Message, opts TurnOptions, ch chan<- Message) error {
		return s.GenerateStreaming(ctx, history, opts, ch)
	})
	l.pipeline = Chain(base,
		OrderStage(&l.orderIdx, s.Name()),
		StitchStage(),
		PublishStage(l.hub),
		JoinStage(),
		registry.Contracts(),
	)
	return l
}

// ThreadID returns the thread this loop serves.
func (l *Loop) ThreadID() string { return l.threadID }

// IsRunning reports whether the driver is consuming input.
func (l *Loop) IsRunning() bool { return l.running.Load() }

// CurrentRunID returns the run currently in flight, or "" when idle.
func (l *Loop) CurrentRunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentRun
}

// Subscribe registers a hub subscriber. Subscription is hot: only messages
// published afterwards are delivered.
func (l *Loop) Subscribe() (string, <-chan Message, error) {
	if l.disposed.Load() {
		return "", nil, ErrDisposed
	}
	return l.hub.Subscribe()
}

// Unsubscribe removes a hub subscriber. Idempotent.
func (l *Loop) Unsubscribe(id string) {
	l.hub.Unsubscribe(id)
}

// --- Lifecycle ---

// Start launches the driver in a background goroutine. The loop stops when
// ctx is cancelled or Stop is called. Returns ErrAlreadyRunning on a second
// Start and ErrDisposed after Close.
func (l *Loop) Start(ctx context.Context) error {
	if l.disposed.Load() {
		return ErrDisposed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.lifeMu.Lock()
	l.cancel = cancel
	l.done = done
	l.lifeMu.Unlock()

	go func() {
		defer close(done)
		defer l.running.Store(false)
		defer cancel()
		l.logger.Info("loop started", "thread", l.threadID)
		l.consume(runCtx)
		l.logger.Info("loop stopped", "thread", l.threadID)
	}()
	return nil
}

// Run is the blocking form of Start: it starts the driver and blocks the
// calling goroutine until the driver exits (ctx cancelled or Stop called).
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	l.lifeMu.Lock()
	done := l.done
	l.lifeMu.Unlock()
	<-done
	return ctx.Err()
}

// Stop cancels the driver and waits up to timeout for it to exit (the
// configured stop timeout when 0). Logs a warning on timeout instead of
// failing. Idempotent; a never-started loop is a no-op.
func (l *Loop) Stop(timeout time.Duration) {
	l.lifeMu.Lock()
	cancel, done := l.cancel, l.done
	l.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if timeout <= 0 {
		timeout = l.stopTimeout
	}
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	select {
	case <-done:
	case <-time.After(timeout):
		l.logger.Warn("stop timed out waiting for driver", "thread", l.threadID, "timeout", timeout)
	}
}

// Close stops the driver, closes every subscriber, and marks the loop
// disposed. Further public calls fail with ErrDisposed. Idempotent.
func (l *Loop) Close() {
	if l.disposed.Swap(true) {
		return
	}
	l.Stop(0)
	l.hub.Close()
}

// --- Input API ---

// Send submits user input. When the loop is idle the input is queued and
// Send blocks until the driver assigns it a run (input queue back-pressure
// applies). When a run is in flight the input becomes an injection: a child
// run is assigned immediately, its RunAssignment is published, and Send
// returns without waiting; the run starts once the in-flight run finishes
// its current turn.
func (l *Loop) Send(ctx context.Context, input UserInput) (RunAssignment, error) {
	if l.disposed.Load() {
		return RunAssignment{}, ErrDisposed
	}
	if !l.running.Load() {
		return RunAssignment{}, ErrNotRunning
	}
	if len(input.Messages) == 0 {
		return RunAssignment{}, ErrEmptyInput
	}

	l.mu.Lock()
	if l.currentRun != "" {
		asg := RunAssignment{
			RunID:        NewID(),
			GenerationID: NewID(),
			InputID:      input.InputID,
			ParentRunID:  input.ParentRunID,
			Injected:     true,
		}
		if asg.ParentRunID == "" {
			asg.ParentRunID = l.currentRun
		}
		l.mu.Unlock()
		// Publish before enqueueing: the parent cannot fork to this run
		// until the assignment is observable, so no subscriber sees a
		// RunCompleted naming a run whose assignment it missed.
		l.hub.Publish(ctx, l.assignmentMessage(asg))
		l.mu.Lock()
		l.pending = append(l.pending, pendingInjection{input: input, assignment: asg})
		l.mu.Unlock()
		l.logger.Info("input injected", "run", asg.RunID, "parent", asg.ParentRunID)
		return asg, nil
	}
	l.mu.Unlock()

	sub := submission{input: input, res: make(chan submitResult, 1)}
	select {
	case l.inputCh <- sub:
	case <-ctx.Done():
		return RunAssignment{}, ctx.Err()
	case <-l.driverDone():
		return RunAssignment{}, ErrNotRunning
	}
	select {
	case r := <-sub.res:
		return r.assignment, r.err
	case <-ctx.Done():
		return RunAssignment{}, ctx.Err()
	case <-l.driverDone():
		// The driver may have resolved the promise just before exiting.
		select {
		case r := <-sub.res:
			return r.assignment, r.err
		default:
			return RunAssignment{}, ErrNotRunning
		}
	}
}

// driverDone returns the channel closed when the driver goroutine exits.
// Never nil: Send checks running (and therefore a completed Start) first,
// but a nil guard keeps the select safe regardless.
func (l *Loop) driverDone() <-chan struct{} {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()
	if l.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.done
}

// --- Driver ---

// consume is the driver loop: drain pending injections first so an injected
// run immediately follows its parent, then block for queued submissions.
func (l *Loop) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			l.failQueued(ctx)
			return
		}
		if p, ok := l.dequeuePending(); ok {
			// The assignment was already announced at injection time; do
			// not regenerate ids or republish.
			l.runAssigned(ctx, p.input, p.assignment, false)
			continue
		}
		select {
		case <-ctx.Done():
			l.failQueued(ctx)
			return
		case sub := <-l.inputCh:
			l.processSubmission(ctx, sub)
		}
	}
}

// processSubmission assigns a run to a queued input, resolves the
// submitter's promise before any model work, and executes the run.
func (l *Loop) processSubmission(ctx context.Context, sub submission) {
	l.mu.Lock()
	parent := sub.input.ParentRunID
	if parent == "" {
		parent = l.latestRun
	}
	l.mu.Unlock()

	asg := RunAssignment{
		RunID:        NewID(),
		GenerationID: NewID(),
		InputID:      sub.input.InputID,
		ParentRunID:  parent,
	}
	sub.res <- submitResult{assignment: asg}
	l.runAssigned(ctx, sub.input, asg, true)
}

// runAssigned executes one run end to end: mark current, announce the
// assignment (unless it was announced at injection time), seed history,
// drive turns, announce completion.
func (l *Loop) runAssigned(ctx context.Context, input UserInput, asg RunAssignment, announce bool) {
	l.mu.Lock()
	l.currentRun = asg.RunID
	l.mu.Unlock()

	var span Span
	runCtx := ctx
	if l.tracer != nil {
		runCtx, span = l.tracer.Start(ctx, "loop.run",
			StringAttr("run.id", asg.RunID),
			StringAttr("thread.id", l.threadID),
			BoolAttr("run.injected", asg.Injected))
	}

	if announce {
		l.hub.Publish(runCtx, l.assignmentMessage(asg))
	}
	l.history = append(l.history, input.Messages...)

	turns := 0
	forked := false
	var runErr error
	for {
		if runCtx.Err() != nil {
			runErr = runCtx.Err()
			break
		}
		if l.pendingLen() > 0 {
			forked = true
			break
		}
		turns++
		if turns > l.maxTurns {
			l.logger.Warn("max turns reached, ending run", "run", asg.RunID, "max_turns", l.maxTurns)
			break
		}
		hadTools, err := l.turn(runCtx, asg, turns)
		if err != nil {
			runErr = err
			break
		}
		if !hadTools {
			break
		}
	}

	comp := RunCompletion{RunID: asg.RunID, Forked: forked}
	if forked {
		comp.ForkedToRunID = l.peekPendingRunID()
	}
	if runErr != nil && runCtx.Err() == nil {
		comp.Error = runErr.Error()
		l.logger.Error("run failed", "run", asg.RunID, "turns", turns, "error", runErr)
	}

	// A cancelled run unwinds without a completion event; subscribers learn
	// about it from their streams ending.
	if runCtx.Err() == nil {
		l.hub.Publish(runCtx, l.completionMessage(comp))
		l.logger.Info("run completed",
			"run", asg.RunID, "turns", turns, "forked", forked)
	}

	if span != nil {
		span.SetAttr(IntAttr("run.turns", turns), BoolAttr("run.forked", forked))
		if runErr != nil {
			span.Error(runErr)
		}
		span.End()
	}

	l.mu.Lock()
	l.latestRun = asg.RunID
	l.currentRun = ""
	l.mu.Unlock()
}

// turn invokes the pipeline once with the full history, appends every
// streamed message, starts tool executions as their calls arrive, and after
// the stream ends collects every tool result into history and the hub.
// Returns whether the turn produced tool calls.
func (l *Loop) turn(ctx context.Context, asg RunAssignment, turn int) (bool, error) {
	opts := l.defaults
	opts.RunID = asg.RunID
	opts.GenerationID = asg.GenerationID
	opts.ThreadID = l.threadID

	var span Span
	if l.tracer != nil {
		ctx, span = l.tracer.Start(ctx, "loop.turn",
			StringAttr("run.id", asg.RunID),
			IntAttr("turn", turn))
		defer span.End()
	}

	// The pipeline gets its own cancel scope so a fatal contract violation
	// can abort the stream without touching in-flight tool executions.
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	ch := make(chan Message, streamBuffer)
	errc := make(chan error, 1)
	history := l.history
	go func() {
		errc <- l.pipeline(streamCtx, history, opts, ch)
		close(ch)
	}()

	futures := make(map[string]*toolFuture)
	var fatal error
	for m := range ch {
		if fatal != nil {
			continue // drain so the pipeline goroutine can finish
		}
		l.history = append(l.history, m)
		if m.Kind != KindToolCall {
			continue
		}
		if m.ToolCallID == "" {
			fatal = &MissingCallIDError{Function: m.FunctionName}
			cancelStream()
			continue
		}
		// Execution starts now; results are collected after the stream ends.
		futures[m.ToolCallID] = l.startToolCall(ctx, m)
	}
	streamErr := <-errc

	if fatal != nil {
		if span != nil {
			span.Error(fatal)
		}
		return false, fatal
	}
	if streamErr != nil {
		if span != nil {
			span.Error(streamErr)
		}
		return false, streamErr
	}

	for _, f := range futures {
		select {
		case <-f.done:
		case <-ctx.Done():
			// Handlers run to completion on their own; their results are
			// discarded once cancellation has fired.
			return false, ctx.Err()
		}
		res := ToolResultMessage(f.call, f.payload)
		l.history = append(l.history, res)
		l.hub.Publish(ctx, res)
		l.logger.Debug("tool completed",
			"function", f.call.FunctionName, "call", f.call.ToolCallID, "duration", f.duration)
	}

	if span != nil {
		span.SetAttr(IntAttr("turn.tool_calls", len(futures)))
	}
	return len(futures) > 0, nil
}

// --- Pending-injection FIFO ---

func (l *Loop) pendingLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Loop) dequeuePending() (pendingInjection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return pendingInjection{}, false
	}
	p := l.pending[0]
	l.pending = l.pending[1:]
	return p, true
}

// peekPendingRunID returns the run id at the head of the injection queue,
// the run that will immediately follow a forked parent.
func (l *Loop) peekPendingRunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return ""
	}
	return l.pending[0].assignment.RunID
}

// failQueued drains the input queue on shutdown, failing every pending
// promise so no submitter blocks forever.
func (l *Loop) failQueued(ctx context.Context) {
	for {
		select {
		case sub := <-l.inputCh:
			sub.res <- submitResult{err: ctx.Err()}
		default:
			return
		}
	}
}

// --- Core-emitted messages ---

func (l *Loop) assignmentMessage(a RunAssignment) Message {
	return Message{
		Kind:         KindRunAssignment,
		Role:         "system",
		ThreadID:     l.threadID,
		RunID:        a.RunID,
		GenerationID: a.GenerationID,
		Assignment:   &a,
	}
}

func (l *Loop) completionMessage(c RunCompletion) Message {
	return Message{
		Kind:       KindRunCompleted,
		Role:       "system",
		ThreadID:   l.threadID,
		RunID:      c.RunID,
		Completion: &c,
	}
}
