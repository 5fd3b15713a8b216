package liveevents

import (
	"sync"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

// ProcessedEvent is the payload broadcast to live dashboards when an event
// reaches the processed status. Delivery is best effort.
type ProcessedEvent struct {
	Type          string `json:"type"`
	EventID       string `json:"event_id"`
	CustomerLabel string `json:"customer_label"`
	EventType     string `json:"event_type"`
	RevenueCents  int64  `json:"revenue_cents"`
	CostCents     string `json:"cost_cents"`
	MarginCents   string `json:"margin_cents"`
	OccurredAt    string `json:"occurred_at"`
}

// Hub fans processed-event notifications out to per-organization subscribers.
// Slow subscribers drop messages rather than blocking the pipeline.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []ProcessedEvent
	subs   map[uint64]chan ProcessedEvent
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	orgID string
	id    uint64
	ch    chan ProcessedEvent
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(orgID string, event ProcessedEvent) {
	if orgID == "" {
		return
	}
	st := h.getOrCreate(orgID)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.buffer = append(st.buffer, event)
	if len(st.buffer) > h.bufferSize {
		st.buffer = st.buffer[len(st.buffer)-h.bufferSize:]
	}
	for _, ch := range st.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a subscription that first replays the retained buffer.
func (h *Hub) Subscribe(orgID string) *Subscription {
	st := h.getOrCreate(orgID)

	st.mu.Lock()
	defer st.mu.Unlock()

	id := st.nextID
	st.nextID++
	ch := make(chan ProcessedEvent, h.subscriberBuffer+len(st.buffer))
	for _, event := range st.buffer {
		ch <- event
	}
	st.subs[id] = ch

	return &Subscription{hub: h, orgID: orgID, id: id, ch: ch}
}

func (s *Subscription) Events() <-chan ProcessedEvent { return s.ch }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.RLock()
		st := s.hub.streams[s.orgID]
		s.hub.mu.RUnlock()
		if st == nil {
			return
		}
		st.mu.Lock()
		delete(st.subs, s.id)
		st.mu.Unlock()
		close(s.ch)
	})
}

func (h *Hub) getOrCreate(orgID string) *stream {
	h.mu.RLock()
	st := h.streams[orgID]
	h.mu.RUnlock()
	if st != nil {
		return st
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if st = h.streams[orgID]; st != nil {
		return st
	}
	st = &stream{subs: make(map[uint64]chan ProcessedEvent)}
	h.streams[orgID] = st
	return st
}
