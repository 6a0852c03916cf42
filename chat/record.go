package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tags a record; it only controls decoration when rendered.
type MessageType string

const (
	// MessageTypeMessage is an ordinary chat line.
	MessageTypeMessage MessageType = "message"
	// MessageTypeNewMember announces a viewer joining; presenters prefix it with NewMemberPrefix.
	MessageTypeNewMember MessageType = "new-member"
)

// NewMemberPrefix is the decoration shown before new-member records.
const NewMemberPrefix = "🎉"

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeMessage || t == MessageTypeNewMember
}

// Sender describes the participant a record is attributed to. Only Username is displayed.
type Sender struct {
	Username  string `json:"username" yaml:"username"`
	FirstName string `json:"firstName" yaml:"firstName"`
	LastName  string `json:"lastName" yaml:"lastName"`
}

// Record is one scripted or viewer-authored chat event.
// Delay is only meaningful for scripted records.
type Record struct {
	MessageType MessageType
	Message     string
	Sender      Sender
	Delay       time.Duration
}

// recordJSON is the wire shape; chatDelay is carried as integer milliseconds.
type recordJSON struct {
	MessageType MessageType `json:"messageType"`
	ChatMessage string      `json:"chatMessage"`
	ChatSender  Sender      `json:"chatSender"`
	ChatDelay   int64       `json:"chatDelay"`
}

// MarshalJSON encodes the record using the chat widget field names.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		MessageType: r.MessageType,
		ChatMessage: r.Message,
		ChatSender:  r.Sender,
		ChatDelay:   r.Delay.Milliseconds(),
	})
}

// UnmarshalJSON decodes a record. A missing messageType defaults to "message";
// negative delays are clamped to zero.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.MessageType == "" {
		raw.MessageType = MessageTypeMessage
	}
	if !raw.MessageType.Valid() {
		return fmt.Errorf("unknown messageType %q", raw.MessageType)
	}
	if raw.ChatDelay < 0 {
		raw.ChatDelay = 0
	}
	*r = Record{
		MessageType: raw.MessageType,
		Message:     raw.ChatMessage,
		Sender:      raw.ChatSender,
		Delay:       time.Duration(raw.ChatDelay) * time.Millisecond,
	}
	return nil
}

// IsNewMember reports whether the record should carry the new-member prefix.
func (r Record) IsNewMember() bool { return r.MessageType == MessageTypeNewMember }

// Source identifies which writer appended an entry.
type Source string

const (
	SourceScript Source = "script"
	SourceViewer Source = "viewer"
)

// Entry is a record as it sits in the log.
type Entry struct {
	Seq        int       `json:"seq"`
	Source     Source    `json:"source"`
	AppendedAt time.Time `json:"appendedAt"`
	Record     Record    `json:"record"`
}
