package server

import (
	"github.com/onnwee/ooye-live/chat"
)

// entryFeed follows a session's chat log for one stream. The log drops subscribers that
// fall a full buffer behind; resume then picks up at the first entry the stream has not
// sent yet, so a slow client sees the whole log instead of a premature end of stream.
type entryFeed struct {
	s    *chat.Session
	sub  *chat.Subscription[chat.Entry]
	next int
}

// newEntryFeed subscribes to s and returns the backlog starting at seq from.
func newEntryFeed(s *chat.Session, from int) (*entryFeed, []chat.Entry) {
	// Clamp before subscribing so every seq >= from is delivered exactly once.
	from = min(max(from, 0), s.Log.Len())
	backlog, sub := s.SubscribeFrom(from)
	return &entryFeed{s: s, sub: sub, next: from}, backlog
}

// C is the current subscription channel. It changes after resume.
func (f *entryFeed) C() <-chan chat.Entry { return f.sub.C }

// sent records that e reached the client.
func (f *entryFeed) sent(e chat.Entry) { f.next = e.Seq + 1 }

// resume is called once C is closed. If the subscription was dropped for lagging it
// resubscribes and returns the entries the stream missed; ok is false when the session ended.
func (f *entryFeed) resume() (missed []chat.Entry, ok bool) {
	if !f.sub.Lagged() || f.s.Closed() {
		return nil, false
	}
	f.sub.Close()
	missed, f.sub = f.s.SubscribeFrom(f.next)
	return missed, true
}

func (f *entryFeed) Close() { f.sub.Close() }

// resumeReactions replaces a reaction subscription the session dropped for lagging and
// returns the current button row so the client can resync. When the session ended it
// returns sub unchanged and ok false.
func resumeReactions(s *chat.Session, sub *chat.Subscription[chat.ReactionState]) (*chat.Subscription[chat.ReactionState], []chat.ReactionState, bool) {
	if !sub.Lagged() || s.Closed() {
		return sub, nil, false
	}
	sub.Close()
	next := s.SubscribeReactions()
	return next, s.Reactions.States(), true
}
