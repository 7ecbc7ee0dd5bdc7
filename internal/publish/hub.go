// Package publish fans merged snapshots and change events out to subscribers.
package publish

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-token-feed/internal/detect"
	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
)

// DefaultBuffer is the per-subscriber event queue length.
const DefaultBuffer = 16

// Subscription is one registered consumer of the feed.
type Subscription struct {
	ID string
	C  <-chan domain.Event

	ch  chan domain.Event
	hub *Hub
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.ID)
}

// Hub keeps the latest snapshot and the set of live subscribers.
// Publishing never blocks on a subscriber: a full queue drops the event for
// that subscriber only.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	latest *domain.Snapshot

	buffer int
	logger zerolog.Logger
	now    func() time.Time
}

// HubOption configures Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l.With().Str("component", "publisher").Logger()
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[string]*Subscription),
		buffer: DefaultBuffer,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber. If a snapshot has been published, it is
// queued immediately as a snapshot event.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan domain.Event, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latest != nil {
		ch <- h.event(domain.EventSnapshot, h.latest.Records)
	}
	h.subs[sub.ID] = sub
	observability.UpdateSubscribers(len(h.subs))

	h.logger.Debug().Str("subscriber", sub.ID).Int("subscribers", len(h.subs)).Msg("subscribed")
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	observability.UpdateSubscribers(len(h.subs))

	h.logger.Debug().Str("subscriber", id).Int("subscribers", len(h.subs)).Msg("unsubscribed")
}

// Publish stores snap as the latest snapshot and notifies every subscriber:
// one snapshot event, then one event per non-empty delta set.
func (h *Hub) Publish(snap *domain.Snapshot, deltas detect.Deltas) {
	if snap == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = domain.NewSnapshot(snap.Records, snap.CapturedAt)

	events := []domain.Event{h.event(domain.EventSnapshot, h.latest.Records)}
	if len(deltas.PriceDeltas) > 0 {
		events = append(events, h.event(domain.EventPriceDelta, deltas.PriceDeltas))
	}
	if len(deltas.VolumeSpikes) > 0 {
		events = append(events, h.event(domain.EventVolumeSpike, deltas.VolumeSpikes))
	}

	for _, ev := range events {
		for id, sub := range h.subs {
			select {
			case sub.ch <- ev:
				observability.RecordEventPublished(string(ev.Type))
			default:
				observability.RecordEventDropped(string(ev.Type))
				h.logger.Warn().Str("subscriber", id).Str("type", string(ev.Type)).Msg("subscriber queue full, event dropped")
			}
		}
	}
}

// Latest returns a copy of the last published snapshot, or nil.
func (h *Hub) Latest() *domain.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latest == nil {
		return nil
	}
	return domain.NewSnapshot(h.latest.Records, h.latest.CapturedAt)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	observability.UpdateSubscribers(0)
}

// event copies records so subscribers never share slices with the hub.
func (h *Hub) event(t domain.EventType, records []domain.CanonicalRecord) domain.Event {
	tokens := make([]domain.CanonicalRecord, len(records))
	for i, r := range records {
		tokens[i] = r.Clone()
	}
	return domain.Event{Type: t, Tokens: tokens, Timestamp: h.now().UTC()}
}
