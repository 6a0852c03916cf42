package chat

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when none is given.
const DefaultSubscriberBuffer = 256

// Subscription delivers values published after it was created, in publish order.
// C is closed when the publisher closes, when the subscriber falls more than its
// buffer behind (Lagged then reports true), or when Close is called.
type Subscription[T any] struct {
	C <-chan T

	ch     chan T
	id     int
	hub    *broadcaster[T]
	once   sync.Once
	lagged atomic.Bool
}

// Lagged reports whether C was closed because the subscriber fell behind. The publisher
// is still live in that case and the caller may subscribe again.
func (s *Subscription[T]) Lagged() bool { return s.lagged.Load() }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.remove(s.id)
}

// broadcaster fans values out to subscribers without ever blocking the publisher.
type broadcaster[T any] struct {
	name   string
	mu     sync.Mutex
	subs   map[int]*Subscription[T]
	nextID int
	closed bool
}

func newBroadcaster[T any](name string) *broadcaster[T] {
	return &broadcaster[T]{name: name, subs: make(map[int]*Subscription[T])}
}

func (b *broadcaster[T]) subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan T, buffer)
	s := &Subscription[T]{C: ch, ch: ch, hub: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	s.id = b.nextID
	b.nextID++
	b.subs[s.id] = s
	return s
}

func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		select {
		case s.ch <- v:
		default:
			// slow reader: drop it rather than stall the writer
			delete(b.subs, id)
			s.lagged.Store(true)
			s.once.Do(func() { close(s.ch) })
			slog.Warn("dropping slow subscriber", slog.String("component", b.name), slog.Int("subscriber", id))
		}
	}
}

func (b *broadcaster[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	s.once.Do(func() { close(s.ch) })
}

func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.once.Do(func() { close(s.ch) })
	}
}

func (b *broadcaster[T]) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
