package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/ooye-live/telemetry"
)

// DefaultReactionWindow is how long a reaction stays active after its latest press.
const DefaultReactionWindow = 2 * time.Second

// DefaultReactionIcons is the reaction button row.
var DefaultReactionIcons = []string{"❤️", "🔥", "😍", "😂", "😭"}

// ReactionState is the observable state of one button.
type ReactionState struct {
	Index  int    `json:"index"`
	Icon   string `json:"icon"`
	Active bool   `json:"active"`
}

// Reactions tracks the pulse state of a row of reaction buttons.
// Each button is independent: inactive -> active on press -> inactive once the window
// after the latest press elapses. A new press supersedes any pending reset.
type Reactions struct {
	clock    clockwork.Clock
	window   time.Duration
	buttons  []*button
	onChange func(ReactionState)
}

type button struct {
	icon string

	mu      sync.Mutex
	active  bool
	gen     uint64
	timer   clockwork.Timer
	stopped bool
}

// NewReactions builds a button row. Empty icons fall back to DefaultReactionIcons and a
// non-positive window to DefaultReactionWindow. onChange may be nil; it is called on every
// press and every reset while the button is locked, so a button's notifications arrive in
// the order its state changed. onChange must not block or call back into Reactions.
func NewReactions(clock clockwork.Clock, icons []string, window time.Duration, onChange func(ReactionState)) *Reactions {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if len(icons) == 0 {
		icons = DefaultReactionIcons
	}
	if window <= 0 {
		window = DefaultReactionWindow
	}
	r := &Reactions{clock: clock, window: window, onChange: onChange}
	for _, icon := range icons {
		r.buttons = append(r.buttons, &button{icon: icon})
	}
	return r
}

// Window returns the reset window.
func (r *Reactions) Window() time.Duration { return r.window }

// Len returns the number of buttons.
func (r *Reactions) Len() int { return len(r.buttons) }

// Activate presses button i.
func (r *Reactions) Activate(i int) (ReactionState, error) {
	if i < 0 || i >= len(r.buttons) {
		return ReactionState{}, fmt.Errorf("%w: index %d", ErrUnknownReaction, i)
	}
	b := r.buttons[i]
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ReactionState{}, ErrSessionClosed
	}
	b.gen++
	gen := b.gen
	b.active = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = r.clock.AfterFunc(r.window, func() { r.expire(i, gen) })
	st := ReactionState{Index: i, Icon: b.icon, Active: true}
	r.notify(st)
	b.mu.Unlock()

	telemetry.IncReaction(b.icon)
	return st, nil
}

// expire clears button i unless a later press (newer gen) owns the reset.
func (r *Reactions) expire(i int, gen uint64) {
	b := r.buttons[i]
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen || !b.active || b.stopped {
		return
	}
	b.active = false
	b.timer = nil
	r.notify(ReactionState{Index: i, Icon: b.icon, Active: false})
}

// Active reports whether button i is active. Unknown indexes are inactive.
func (r *Reactions) Active(i int) bool {
	if i < 0 || i >= len(r.buttons) {
		return false
	}
	b := r.buttons[i]
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// States returns every button's state in row order.
func (r *Reactions) States() []ReactionState {
	out := make([]ReactionState, len(r.buttons))
	for i, b := range r.buttons {
		b.mu.Lock()
		out[i] = ReactionState{Index: i, Icon: b.icon, Active: b.active}
		b.mu.Unlock()
	}
	return out
}

// Stop cancels pending resets and rejects further presses.
func (r *Reactions) Stop() {
	for _, b := range r.buttons {
		b.mu.Lock()
		b.stopped = true
		b.active = false
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.mu.Unlock()
	}
}

func (r *Reactions) notify(st ReactionState) {
	if r.onChange != nil {
		r.onChange(st)
	}
}
