package events

import (
	"errors"
	"strings"
	"sync"
)

const (
	DefaultBufferSize       = 20
	DefaultSubscriberBuffer = 8
)

// Hub fans status events out to in-process subscribers, one stream per
// invoice. Checkout pages poll or stream from here while an invoice is live.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []StatusEvent
	subs   map[uint64]chan StatusEvent
	nextID uint64
}

type Subscription struct {
	hub       *Hub
	invoiceID string
	id        uint64
	ch        chan StatusEvent
	once      sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers event to every subscriber of the invoice. Slow consumers
// are skipped rather than blocking the status machine.
func (h *Hub) Publish(event StatusEvent) {
	if h == nil {
		return
	}
	invoiceID := strings.TrimSpace(event.InvoiceID)
	if invoiceID == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[invoiceID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan StatusEvent, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe attaches to an invoice's stream and returns the buffered history
// so a late subscriber still sees transitions it missed.
func (h *Hub) Subscribe(invoiceID string) (*Subscription, []StatusEvent, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, nil, errors.New("invalid_invoice_id")
	}

	stream := h.ensureStream(invoiceID)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan StatusEvent)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan StatusEvent, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]StatusEvent(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:       h,
		invoiceID: invoiceID,
		id:        id,
		ch:        ch,
	}, buffer, nil
}

func (h *Hub) ensureStream(invoiceID string) *stream {
	h.mu.RLock()
	current := h.streams[invoiceID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[invoiceID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan StatusEvent)}
		h.streams[invoiceID] = current
	}
	return current
}

func (h *Hub) unsubscribe(invoiceID string, id uint64) {
	if h == nil {
		return
	}
	h.mu.RLock()
	stream := h.streams[invoiceID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[invoiceID]
	if current != stream {
		h.mu.Unlock()
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, invoiceID)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan StatusEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.invoiceID, s.id)
	})
}
