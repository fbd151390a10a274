package conduit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// defaultOutputCapacity is the per-subscriber queue size. A subscriber that
// falls this many messages behind back-pressures publishers for its own
// deliveries only.
const defaultOutputCapacity = 1000

var errSubscriberClosed = errors.New("conduit: subscriber closed")

// Hub fans every published message out to all registered subscribers.
// Each subscriber owns a bounded queue: a slow consumer blocks its own
// delivery without affecting the others, and messages arrive in publication
// order per subscriber. All methods are safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]*subscriber
	capacity int
	closed   bool
	logger   *slog.Logger
}

// subscriber pairs a bounded delivery channel with the close protocol.
// sendMu is held shared for the duration of every blocking send and
// exclusively around close(ch), so the channel is never closed while a
// delivery is in flight. quit aborts in-flight sends.
type subscriber struct {
	id     string
	ch     chan Message
	quit   chan struct{}
	closed atomic.Bool
	sendMu sync.RWMutex
	once   sync.Once
}

// NewHub creates a hub whose subscribers get queues of the given capacity.
// capacity <= 0 uses the default of 1000.
func NewHub(capacity int, logger *slog.Logger) *Hub {
	if capacity <= 0 {
		capacity = defaultOutputCapacity
	}
	if logger == nil {
		logger = nopLogger
	}
	return &Hub{
		subs:     make(map[string]*subscriber),
		capacity: capacity,
		logger:   logger,
	}
}

// Subscribe registers a new subscriber and returns its id and delivery
// channel. Subscription is hot: only messages published after registration
// are delivered. The channel closes when the subscriber is unsubscribed or
// the hub closes.
func (h *Hub) Subscribe() (string, <-chan Message, error) {
	s := &subscriber{
		id:   NewID(),
		ch:   make(chan Message, h.capacity),
		quit: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, ErrHubClosed
	}
	h.subs[s.id] = s
	return s.id, s.ch, nil
}

// Unsubscribe removes a subscriber and closes its channel. Idempotent;
// unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		s.close()
	}
}

// Publish delivers m to every subscriber registered at the moment of the
// call. Deliveries to distinct subscribers run in parallel; each blocks on
// its own full queue until space frees, the subscriber closes, or ctx is
// cancelled. Publish returns once every delivery has completed or been
// abandoned. After Close it is a no-op.
func (h *Hub) Publish(ctx context.Context, m Message) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}
	if len(snapshot) == 1 {
		h.deliver(ctx, snapshot[0], m)
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(snapshot))
	for _, s := range snapshot {
		go func(s *subscriber) {
			defer wg.Done()
			h.deliver(ctx, s, m)
		}(s)
	}
	wg.Wait()
}

// deliver performs one blocking send, swallowing closed-subscriber and
// cancellation failures so the remaining subscribers are unaffected.
func (h *Hub) deliver(ctx context.Context, s *subscriber, m Message) {
	if err := s.send(ctx, m); err != nil {
		h.logger.Warn("delivery dropped", "subscriber", s.id, "kind", m.Kind, "reason", err)
	}
}

// Close closes every subscriber channel and marks the hub closed. Further
// Publish calls are no-ops and further Subscribe calls fail. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	snapshot := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, s := range snapshot {
		s.close()
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *subscriber) send(ctx context.Context, m Message) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return errSubscriberClosed
	}
	select {
	case s.ch <- m:
		return nil
	case <-s.quit:
		return errSubscriberClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close marks the subscriber closed, aborts in-flight sends via quit, then
// closes the delivery channel once no send holds sendMu.
func (s *subscriber) close() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}
