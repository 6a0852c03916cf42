package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/ooye-live/chat"
)

// FakeSource is a script source with a canned script or error
type FakeSource struct {
	mu      sync.Mutex
	records []chat.Record
	err     error
	calls   int
}

// NewFakeSource returns a source that hands out records on every call
func NewFakeSource(records ...chat.Record) *FakeSource {
	return &FakeSource{records: records}
}

// Script implements chat.ScriptSource
func (f *FakeSource) Script(context.Context) ([]chat.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]chat.Record, len(f.records))
	copy(out, f.records)
	return out, nil
}

// Fail makes later calls return err; nil restores the script
func (f *FakeSource) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Calls returns how many scripts were handed out or refused
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Line builds a scripted chat message from username after delay
func Line(username, text string, delay time.Duration) chat.Record {
	return chat.Record{
		MessageType: chat.MessageTypeMessage,
		Message:     text,
		Sender:      chat.Sender{Username: username},
		Delay:       delay,
	}
}
