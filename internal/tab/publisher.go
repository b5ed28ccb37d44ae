package tab

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/scenario.board/internal/monitoring"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 16

// Update is one published slot change together with the full layout.
type Update struct {
	Slot   Slot
	Layout Layout
}

type subscriber struct {
	id string
	ch chan Update
}

// Publisher fans layout updates out to subscribers. A subscriber whose queue
// is full misses the update; the drop is counted.
type Publisher struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool

	published   atomic.Uint64
	dropped     atomic.Uint64
	subscribers atomic.Int32
}

// NewPublisher creates a publisher with the given per-subscriber buffer.
func NewPublisher(buffer int) *Publisher {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	return &Publisher{buffer: buffer, subs: make(map[string]*subscriber)}
}

// Listener adapts the publisher to Controller.AddListener.
func (p *Publisher) Listener() func(Slot, Layout) {
	return func(slot Slot, l Layout) {
		p.Publish(Update{Slot: slot, Layout: l})
	}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters
// it and closes the channel.
func (p *Publisher) Subscribe() (id string, updates <-chan Update, cancel func()) {
	sub := &subscriber{id: uuid.NewString(), ch: make(chan Update, p.buffer)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(sub.ch)
		return sub.id, sub.ch, func() {}
	}
	p.subs[sub.id] = sub
	p.mu.Unlock()

	n := p.subscribers.Add(1)
	monitoring.Logf("[board] layout subscriber connected: %s (total: %d)", sub.id, n)
	return sub.id, sub.ch, func() { p.remove(sub.id) }
}

func (p *Publisher) remove(id string) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
		close(sub.ch)
	}
	p.mu.Unlock()
	if ok {
		n := p.subscribers.Add(-1)
		monitoring.Logf("[board] layout subscriber disconnected: %s (remaining: %d)", id, n)
	}
}

// Publish delivers u to every subscriber without blocking.
func (p *Publisher) Publish(u Update) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.published.Add(1)
	for _, sub := range p.subs {
		select {
		case sub.ch <- u:
		default:
			dropped := p.dropped.Add(1)
			monitoring.Logf("[board] dropped layout revision %d for %s (total dropped: %d)", u.Layout.Revision, sub.id, dropped)
		}
	}
}

// Close unregisters every subscriber. Later Publish calls are ignored.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		close(sub.ch)
		delete(p.subs, id)
	}
	p.subscribers.Store(0)
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int32  `json:"subscribers"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published:   p.published.Load(),
		Dropped:     p.dropped.Load(),
		Subscribers: p.subscribers.Load(),
	}
}
