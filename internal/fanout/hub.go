package fanout

import (
	"sync"
	"time"
)

// Event is a coarse "order changed, re-pull" signal for a tenant's feed.
// Push is a latency optimization only; the kitchen display's periodic
// re-pull of the active-orders feed is the correctness backstop.
type Event struct {
	TenantID string    `json:"tenant_id"`
	OrderID  string    `json:"order_id"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

// Publisher is what the services see.
type Publisher interface {
	Publish(event Event)
}

const subscriberBuffer = 16

// Subscription is one subscriber's handle on a tenant feed.
type Subscription struct {
	C        <-chan Event
	hub      *Hub
	ch       chan Event
	tenantID string
	once     sync.Once
}

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		close(s.ch)
	})
}

// Hub fans order-changed events out to the connected subscribers of each
// tenant's feed. Delivery is best-effort, at-most-once: a subscriber whose
// buffer is full simply misses the event and catches up on its next poll.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{} // tenantID -> subscriptions
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers interest in tenantID's feed. The caller must Close the
// subscription when its connection drops.
func (h *Hub) Subscribe(tenantID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	tenantSubs, ok := h.subs[tenantID]
	if !ok {
		tenantSubs = make(map[*Subscription]struct{})
		h.subs[tenantID] = tenantSubs
	}
	tenantSubs[sub] = struct{}{}
	sub.tenantID = tenantID
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tenantSubs, ok := h.subs[sub.tenantID]; ok {
		delete(tenantSubs, sub)
		if len(tenantSubs) == 0 {
			delete(h.subs, sub.tenantID)
		}
	}
}

// Publish broadcasts to every active subscriber of the event's tenant
// without blocking the caller.
func (h *Hub) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[event.TenantID] {
		select {
		case sub.ch <- event:
		default:
			// Slow subscriber; it re-pulls on its poll interval.
		}
	}
}
