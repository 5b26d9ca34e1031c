package hub

import "sync"

// Kind tags a broadcast message for subscribers.
type Kind string

const (
	KindTelemetry      Kind = "telemetry"
	KindEvent          Kind = "event"
	KindAlert          Kind = "alert"
	KindStatus         Kind = "status"
	KindAgentReasoning Kind = "agent_reasoning"
)

// Message is one broadcast to a run's subscribers.
type Message struct {
	Kind Kind `json:"kind"`
	Data any  `json:"data"`
}

// Subscription is one subscriber's handle. Receive from C until it is
// closed; a closed channel means the subscription was evicted or
// unsubscribed.
type Subscription struct {
	runID string
	ch    chan Message

	// consecutiveDrops is touched only under the hub mutex.
	consecutiveDrops int
	closed           bool
}

// C returns the receive channel.
func (s *Subscription) C() <-chan Message { return s.ch }

// RunID returns the run this subscription follows.
func (s *Subscription) RunID() string { return s.runID }

// Hub fans messages out to per-run subscriber sets.
type Hub struct {
	mu         sync.Mutex
	runs       map[string]map[*Subscription]struct{}
	buffer     int
	evictAfter int
}

// New builds a hub. buffer is each subscriber's queue depth;
// evictAfter is the consecutive-drop count that evicts a subscriber.
func New(buffer, evictAfter int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if evictAfter <= 0 {
		evictAfter = 8
	}
	return &Hub{
		runs:       make(map[string]map[*Subscription]struct{}),
		buffer:     buffer,
		evictAfter: evictAfter,
	}
}

// Subscribe registers a new subscriber for a run. O(1).
func (h *Hub) Subscribe(runID string) *Subscription {
	sub := &Subscription{runID: runID, ch: make(chan Message, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.runs[runID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.runs[runID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. O(1),
// idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	if set, ok := h.runs[sub.runID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.runs, sub.runID)
		}
	}
}

// Publish broadcasts a message to every subscriber of a run. It never
// blocks: a full subscriber loses its oldest message, and a subscriber
// that accumulates evictAfter consecutive drops is removed and closed.
func (h *Hub) Publish(runID string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.runs[runID] {
		select {
		case sub.ch <- msg:
			sub.consecutiveDrops = 0
			continue
		default:
		}

		// Buffer full: drop the oldest, then retry once. The consumer
		// may race us for the oldest slot; either way a slot frees up.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}

		sub.consecutiveDrops++
		if sub.consecutiveDrops >= h.evictAfter {
			h.removeLocked(sub)
		}
	}
}

// Subscribers reports the current subscriber count for a run.
func (h *Hub) Subscribers(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs[runID])
}
