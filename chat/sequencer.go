package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/ooye-live/telemetry"
)

// Sequencer replays a fixed script into a log, one record at a time.
//
// Each record waits its own Delay (divided by the playback speed) measured from the
// moment its step begins, then is appended. Waits are strictly sequential. The first
// failed wait or append halts the run; nothing is retried and later records are never
// appended. A sequencer runs at most once.
type Sequencer struct {
	log    Appender
	clock  clockwork.Clock
	speed  float64
	logger *slog.Logger

	started  atomic.Bool
	done     chan struct{}
	replayed atomic.Int64
	total    atomic.Int64

	mu  sync.Mutex
	err error
}

// SequencerOption customizes a Sequencer.
type SequencerOption func(*Sequencer)

// WithClock sets the timed-wait primitive. Defaults to the real clock.
func WithClock(c clockwork.Clock) SequencerOption {
	return func(s *Sequencer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSpeed scales every delay by 1/speed. Non-positive values keep 1x.
func WithSpeed(speed float64) SequencerOption {
	return func(s *Sequencer) {
		if speed > 0 {
			s.speed = speed
		}
	}
}

// WithLogger sets the logger used for step failures.
func WithLogger(l *slog.Logger) SequencerOption {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSequencer returns a sequencer appending into log.
func NewSequencer(log Appender, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		log:    log,
		clock:  clockwork.NewRealClock(),
		speed:  1.0,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(slog.String("component", "replay"))
	return s
}

// Start launches the replay in its own goroutine. It returns false, and does nothing,
// if the sequencer was already started.
func (s *Sequencer) Start(ctx context.Context, script []Record) bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	script = slices.Clone(script)
	s.total.Store(int64(len(script)))
	go func() { _ = s.run(ctx, script) }()
	return true
}

// Run replays script on the calling goroutine and returns the halting error, if any.
// It returns ErrAlreadyStarted if the sequencer has been started before.
func (s *Sequencer) Run(ctx context.Context, script []Record) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.total.Store(int64(len(script)))
	return s.run(ctx, slices.Clone(script))
}

func (s *Sequencer) run(ctx context.Context, script []Record) (err error) {
	start := s.clock.Now()
	telemetry.IncReplayStarted()
	defer func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		telemetry.ObserveDuration(telemetry.ReplayRunDuration, s.clock.Since(start))
		close(s.done)
	}()

	for i, rec := range script {
		if err := s.step(ctx, rec); err != nil {
			class := ClassifyReplayError(err)
			s.logger.Error("replay step failed, halting script",
				slog.Int("index", i),
				slog.Int("remaining", len(script)-i-1),
				slog.String("class", class.String()),
				slog.Any("err", err))
			telemetry.IncReplayFailure(class.String())
			return fmt.Errorf("replay step %d: %w", i, err)
		}
		s.replayed.Add(1)
		telemetry.IncReplayed()
	}
	s.logger.Debug("replay complete", slog.Int("records", len(script)))
	return nil
}

// step waits the record's delay and appends it.
func (s *Sequencer) step(ctx context.Context, rec Record) error {
	if d := s.scaled(rec.Delay); d > 0 {
		t := s.clock.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.Chan():
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.log.Append(SourceScript, rec)
	return err
}

func (s *Sequencer) scaled(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) / s.speed)
}

// Started reports whether Start or Run has been called.
func (s *Sequencer) Started() bool { return s.started.Load() }

// Done is closed when the run finishes, successfully or not.
func (s *Sequencer) Done() <-chan struct{} { return s.done }

// Err returns the error that halted the run, or nil.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Progress returns how many records have been appended out of the script length.
func (s *Sequencer) Progress() (replayed, total int) {
	return int(s.replayed.Load()), int(s.total.Load())
}
