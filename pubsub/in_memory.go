package pubsub

import (
	"sync"

	"github.com/hupe1980/collabmesh/core"
)

// DefaultBufferSize is the per-subscriber channel buffer used when
// Subscribe is called on a publisher constructed with no explicit size.
const DefaultBufferSize = 64

// InMemoryPublisher fans broadcasts out to per-document subscribers. It
// is safe for concurrent use. Publish never blocks: a subscriber that
// cannot keep up drops messages, matching the fabric's at-least-once
// (not exactly-once, not lossless) contract.
type InMemoryPublisher struct {
	mu         sync.RWMutex
	subs       map[string][]chan core.Broadcast
	bufferSize int
}

// NewInMemoryPublisher constructs a publisher with the default buffer size.
func NewInMemoryPublisher() *InMemoryPublisher {
	return NewInMemoryPublisherSize(DefaultBufferSize)
}

// NewInMemoryPublisherSize constructs a publisher with an explicit
// per-subscriber buffer size.
func NewInMemoryPublisherSize(bufferSize int) *InMemoryPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &InMemoryPublisher{subs: make(map[string][]chan core.Broadcast), bufferSize: bufferSize}
}

// Publish delivers msg to every subscriber of docID without blocking.
func (p *InMemoryPublisher) Publish(docID string, msg core.Broadcast) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs[docID] {
		select {
		case ch <- msg:
		default:
			// Subscriber buffer full; drop rather than stall the
			// coordinator's critical section.
		}
	}
}

// Subscribe registers a new subscriber for docID and returns its channel
// plus a cancel function that unregisters and closes it.
func (p *InMemoryPublisher) Subscribe(docID string) (<-chan core.Broadcast, func()) {
	ch := make(chan core.Broadcast, p.bufferSize)
	p.mu.Lock()
	p.subs[docID] = append(p.subs[docID], ch)
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		subs := p.subs[docID]
		for i, c := range subs {
			if c == ch {
				p.subs[docID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}
