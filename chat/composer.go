package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/onnwee/ooye-live/telemetry"
)

// ViewerDelay is the nominal delay stamped on viewer records. It is never waited on.
const ViewerDelay = 10 * time.Millisecond

// DefaultViewer is the fixed identity of the local viewer.
var DefaultViewer = Sender{Username: "You", FirstName: "Sanket", LastName: "Kalekar"}

// Composer holds the viewer's pending input and appends it to the log on submit,
// bypassing the sequencer.
type Composer struct {
	log         Appender
	viewer      Sender
	rejectBlank bool

	mu     sync.Mutex
	buffer string
}

// NewComposer returns a composer appending into log as viewer. A zero viewer means DefaultViewer.
// When rejectBlank is set, empty and whitespace-only submissions fail with ErrBlankMessage.
func NewComposer(log Appender, viewer Sender, rejectBlank bool) *Composer {
	if viewer.Username == "" {
		viewer = DefaultViewer
	}
	return &Composer{log: log, viewer: viewer, rejectBlank: rejectBlank}
}

// Viewer returns the sender used for submissions.
func (c *Composer) Viewer() Sender { return c.viewer }

// SetInput replaces the pending input buffer.
func (c *Composer) SetInput(text string) {
	c.mu.Lock()
	c.buffer = text
	c.mu.Unlock()
}

// Input returns the pending input buffer.
func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// Submit appends the buffer as a viewer message and clears it.
// On error the buffer is left as it was.
func (c *Composer) Submit() (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked()
}

// SubmitText replaces the buffer with text and submits it in one step.
func (c *Composer) SubmitText(text string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = text
	return c.submitLocked()
}

func (c *Composer) submitLocked() (Entry, error) {
	if c.rejectBlank && strings.TrimSpace(c.buffer) == "" {
		telemetry.IncBlankRejected()
		return Entry{}, ErrBlankMessage
	}
	e, err := c.log.Append(SourceViewer, Record{
		MessageType: MessageTypeMessage,
		Message:     c.buffer,
		Sender:      c.viewer,
		Delay:       ViewerDelay,
	})
	if err != nil {
		return Entry{}, err
	}
	c.buffer = ""
	telemetry.IncViewerMessage()
	return e, nil
}

// IsViewer reports whether s is the local viewer identity and should be highlighted.
func IsViewer(s Sender) bool { return s.Username == DefaultViewer.Username }
