package notify

import (
	"sync"

	"github.com/google/uuid"
)

// ChannelSubscriber buffers messages on a channel for a single consumer.
type ChannelSubscriber struct {
	id     string
	origin string

	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// NewChannelSubscriber returns a subscriber with a buffer of size messages.
func NewChannelSubscriber(origin string, size int) *ChannelSubscriber {
	if size < 1 {
		size = 1
	}
	return &ChannelSubscriber{
		id:     uuid.NewString(),
		origin: origin,
		ch:     make(chan Message, size),
	}
}

func (s *ChannelSubscriber) ID() string     { return s.id }
func (s *ChannelSubscriber) Origin() string { return s.origin }

// Messages is closed by Close.
func (s *ChannelSubscriber) Messages() <-chan Message {
	return s.ch
}

// Deliver enqueues msg without blocking.
func (s *ChannelSubscriber) Deliver(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	select {
	case s.ch <- msg:
		return nil
	default:
		return ErrSubscriberBusy
	}
}

// Close stops delivery and closes the channel. Safe to call more than once.
func (s *ChannelSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
