package eventbroker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jupiterclapton/postfeed/internal/adapters/dto"
	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// Subscriber receives encoded frames until Done is closed.
type Subscriber struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

// C returns the frames queued for this subscriber.
func (s *Subscriber) C() <-chan []byte {
	return s.send
}

// Done is closed when the hub drops the subscriber.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans out frames to every connected subscriber without blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	closed bool
	logger *slog.Logger
}

var _ ports.EventPublisher = (*Hub)(nil)

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned subscriber is already done if the hub is closed.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.stop()
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.stop()
}

// Broadcast queues the frame for every subscriber. A full queue drops the frame for that subscriber.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.send <- frame:
		default:
			h.logger.Debug("dropping frame for slow subscriber")
		}
	}
}

// PublishPostEvent encodes the event once and broadcasts it locally.
func (h *Hub) PublishPostEvent(ctx context.Context, event domain.PostEvent) error {
	frame, err := dto.EncodePostEvent(event)
	if err != nil {
		return fmt.Errorf("encode post event: %w", err)
	}
	h.Broadcast(frame)
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later subscriptions are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		s.stop()
		delete(h.subs, s)
	}
}
