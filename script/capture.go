package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/jonboulle/clockwork"

	"github.com/onnwee/ooye-live/chat"
)

// newMemberNotices are the USERNOTICE kinds recorded as new-member records.
var newMemberNotices = map[string]bool{
	"sub":        true,
	"resub":      true,
	"subgift":    true,
	"raid":       true,
	"newchatter": true,
}

// Recorder turns a stream of chat events into a script. Each record's delay is the gap
// since the previous record (the first is 0), capped at MaxGap when MaxGap > 0.
type Recorder struct {
	clock  clockwork.Clock
	maxGap time.Duration

	mu      sync.Mutex
	last    time.Time
	records []chat.Record
}

// NewRecorder returns an empty recorder.
func NewRecorder(clock clockwork.Clock, maxGap time.Duration) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{clock: clock, maxGap: maxGap}
}

// Message records an ordinary chat line.
func (r *Recorder) Message(sender chat.Sender, text string) chat.Record {
	return r.add(chat.MessageTypeMessage, sender, text)
}

// NewMember records a join-style notice.
func (r *Recorder) NewMember(sender chat.Sender, text string) chat.Record {
	return r.add(chat.MessageTypeNewMember, sender, text)
}

func (r *Recorder) add(t chat.MessageType, sender chat.Sender, text string) chat.Record {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var delay time.Duration
	if len(r.records) > 0 {
		delay = max(now.Sub(r.last), 0)
		if r.maxGap > 0 && delay > r.maxGap {
			delay = r.maxGap
		}
	}
	r.last = now
	rec := chat.Record{MessageType: t, Message: text, Sender: sender, Delay: delay}
	r.records = append(r.records, rec)
	return rec
}

// Len returns the number of recorded records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a copy of the script recorded so far.
func (r *Recorder) Records() []chat.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// CaptureConfig configures a live Twitch capture.
type CaptureConfig struct {
	Channel    string
	Username   string // empty for an anonymous read-only connection
	OAuthToken string
	Duration   time.Duration // 0 runs until ctx is done
	MaxRecords int           // 0 means unlimited
	MaxGap     time.Duration
}

// twitchSender maps a Twitch user to a chat sender. Twitch has no first/last name;
// the display name stands in for the first name.
func twitchSender(u twitch.User) chat.Sender {
	return chat.Sender{Username: u.Name, FirstName: u.DisplayName}
}

// Capture joins cfg.Channel and records chat until ctx is done, cfg.Duration elapses or
// cfg.MaxRecords records were captured. It returns what was recorded even on error.
func Capture(ctx context.Context, cfg CaptureConfig, clock clockwork.Clock) ([]chat.Record, error) {
	if cfg.Channel == "" {
		return nil, errors.New("twitch channel required")
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var client *twitch.Client
	if cfg.Username == "" || cfg.OAuthToken == "" {
		slog.Info("twitch creds not set; capturing anonymously", slog.String("component", "capture"))
		client = twitch.NewAnonymousClient()
	} else {
		client = twitch.NewClient(cfg.Username, cfg.OAuthToken)
	}

	rec := NewRecorder(clock, cfg.MaxGap)
	full := func() {
		if cfg.MaxRecords > 0 && rec.Len() >= cfg.MaxRecords {
			stop()
		}
	}
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if ctx.Err() != nil {
			return
		}
		rec.Message(twitchSender(msg.User), msg.Message)
		full()
	})
	client.OnUserNoticeMessage(func(msg twitch.UserNoticeMessage) {
		if ctx.Err() != nil || !newMemberNotices[msg.MsgID] {
			return
		}
		text := msg.SystemMsg
		if text == "" {
			text = msg.Message
		}
		rec.NewMember(twitchSender(msg.User), text)
		full()
	})
	client.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("component", "capture"), slog.String("channel", cfg.Channel))
	})

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
		close(done)
	}()

	client.Join(cfg.Channel)
	err := client.Connect()
	stop()
	<-done
	if err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
		return rec.Records(), fmt.Errorf("twitch chat connect: %w", err)
	}
	return rec.Records(), nil
}
