package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// SessionConfig carries the knobs shared by every session of a Manager.
type SessionConfig struct {
	Clock            clockwork.Clock
	Speed            float64
	ReactionWindow   time.Duration
	ReactionIcons    []string
	Viewer           Sender
	RejectBlank      bool
	SubscriberBuffer int
	Logger           *slog.Logger
}

// Session is one viewer's chat display: the log, the replay feeding it, the composer and
// the reaction row. It owns all of them and tears them down on Close.
type Session struct {
	ID        string
	CreatedAt time.Time

	Log       *Log
	Sequencer *Sequencer
	Composer  *Composer
	Reactions *Reactions

	clock      clockwork.Clock
	script     []Record
	reactHub   *broadcaster[ReactionState]
	subBuffer  int
	lastActive atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewSession wires a session around a copy of script. Nothing runs until Start.
func NewSession(id string, script []Record, cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("session", id))

	s := &Session{
		ID:        id,
		CreatedAt: clock.Now().UTC(),
		clock:     clock,
		script:    slices.Clone(script),
		reactHub:  newBroadcaster[ReactionState]("reactions"),
		subBuffer: cfg.SubscriberBuffer,
	}
	s.Log = NewLog(clock)
	s.Sequencer = NewSequencer(s.Log, WithClock(clock), WithSpeed(cfg.Speed), WithLogger(logger))
	s.Composer = NewComposer(s.Log, cfg.Viewer, cfg.RejectBlank)
	s.Reactions = NewReactions(clock, cfg.ReactionIcons, cfg.ReactionWindow, s.reactHub.publish)
	s.Touch()
	return s
}

// Start begins the replay. It runs at most once per session; later calls return false.
// The replay stops early when ctx is cancelled or the session is closed.
func (s *Session) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.Sequencer.Started() {
		return false
	}
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return s.Sequencer.Start(rctx, s.script)
}

// ScriptLen returns the number of scripted records.
func (s *Session) ScriptLen() int { return len(s.script) }

// Submit sets the input buffer to text and submits it.
func (s *Session) Submit(text string) (Entry, error) {
	s.Touch()
	e, err := s.Composer.SubmitText(text)
	if errors.Is(err, ErrLogClosed) {
		return Entry{}, ErrSessionClosed
	}
	return e, err
}

// SubmitInput submits whatever is in the input buffer.
func (s *Session) SubmitInput() (Entry, error) {
	s.Touch()
	e, err := s.Composer.Submit()
	if errors.Is(err, ErrLogClosed) {
		return Entry{}, ErrSessionClosed
	}
	return e, err
}

// SetInput updates the input buffer.
func (s *Session) SetInput(text string) {
	s.Touch()
	s.Composer.SetInput(text)
}

// React presses reaction button i.
func (s *Session) React(i int) (ReactionState, error) {
	s.Touch()
	return s.Reactions.Activate(i)
}

// Subscribe returns the log backlog and a subscription to later entries.
func (s *Session) Subscribe() ([]Entry, *Subscription[Entry]) {
	s.Touch()
	return s.Log.Subscribe(s.subBuffer)
}

// SubscribeFrom returns the log from seq from onwards and a subscription to later entries.
func (s *Session) SubscribeFrom(from int) ([]Entry, *Subscription[Entry]) {
	s.Touch()
	return s.Log.SubscribeFrom(from, s.subBuffer)
}

// SubscribeReactions streams reaction state changes made after the call.
func (s *Session) SubscribeReactions() *Subscription[ReactionState] {
	return s.reactHub.subscribe(s.subBuffer)
}

// Touch marks the session as used now.
func (s *Session) Touch() { s.lastActive.Store(s.clock.Now().UnixNano()) }

// LastActive returns the time of the latest viewer interaction or stream attach.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the session: a pending replay step fails (and halts the replay), the log
// stops accepting entries, streams end and reaction timers are cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.Log.Close()
	if cancel != nil {
		cancel()
	}
	s.Reactions.Stop()
	s.reactHub.close()
}

// ReplayStatus summarises the replay for presenters.
type ReplayStatus struct {
	Replayed int    `json:"replayed"`
	Total    int    `json:"total"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Closed    bool            `json:"closed"`
	Entries   []Entry         `json:"entries"`
	Input     string          `json:"input"`
	Reactions []ReactionState `json:"reactions"`
	Replay    ReplayStatus    `json:"replay"`
}

// Replay returns the current replay status.
func (s *Session) Replay() ReplayStatus {
	replayed, total := s.Sequencer.Progress()
	if !s.Sequencer.Started() {
		total = len(s.script)
	}
	st := ReplayStatus{Replayed: replayed, Total: total}
	select {
	case <-s.Sequencer.Done():
		st.Done = true
		if err := s.Sequencer.Err(); err != nil {
			st.Error = err.Error()
		}
	default:
	}
	return st
}

// Snapshot captures the session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Closed:    s.Closed(),
		Entries:   s.Log.Entries(),
		Input:     s.Composer.Input(),
		Reactions: s.Reactions.States(),
		Replay:    s.Replay(),
	}
}
