package chat

import (
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Appender is the single append entry point shared by the sequencer and the composer.
type Appender interface {
	Append(src Source, rec Record) (Entry, error)
}

// Log is the ordered, append-only chat log of one session.
// Entries are never removed or reordered; Close ends the log for good.
type Log struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries []Entry
	closed  bool
	hub     *broadcaster[Entry]
}

// NewLog returns an empty log stamping entries with clock.
func NewLog(clock clockwork.Clock) *Log {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Log{clock: clock, hub: newBroadcaster[Entry]("chat_log")}
}

// Append adds rec to the end of the log and notifies subscribers.
func (l *Log) Append(src Source, rec Record) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Entry{}, ErrLogClosed
	}
	e := Entry{
		Seq:        len(l.entries),
		Source:     src,
		AppendedAt: l.clock.Now().UTC(),
		Record:     rec,
	}
	l.entries = append(l.entries, e)
	// publish under l.mu so subscribers observe log order
	l.hub.publish(e)
	return e, nil
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the whole log.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Range returns up to limit entries starting at seq from. A non-positive limit means no limit.
func (l *Log) Range(from, limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if from >= len(l.entries) {
		return []Entry{}
	}
	end := len(l.entries)
	if limit > 0 && from+limit < end {
		end = from + limit
	}
	return slices.Clone(l.entries[from:end])
}

// Subscribe returns the current backlog and a subscription to every entry appended
// afterwards. Together they cover the log exactly once with no gap.
func (l *Log) Subscribe(buffer int) ([]Entry, *Subscription[Entry]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries), l.hub.subscribe(buffer)
}

// SubscribeFrom is Subscribe with the backlog starting at seq from. Callers resuming after
// a lagged subscription pass the seq after the last entry they handled.
func (l *Log) SubscribeFrom(from, buffer int) ([]Entry, *Subscription[Entry]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	from = min(max(from, 0), len(l.entries))
	return slices.Clone(l.entries[from:]), l.hub.subscribe(buffer)
}

// Closed reports whether the log has been closed.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close rejects further appends and ends all subscriptions.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.hub.close()
}
