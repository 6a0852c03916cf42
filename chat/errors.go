package chat

import (
	"context"
	"errors"
)

var (
	// ErrLogClosed is returned by Append once the owning session has ended.
	ErrLogClosed = errors.New("chat log closed")
	// ErrAlreadyStarted is returned when a sequencer is asked to run a second time.
	ErrAlreadyStarted = errors.New("replay already started")
	// ErrBlankMessage is returned by Submit when blank messages are rejected.
	ErrBlankMessage = errors.New("blank message")
	// ErrUnknownReaction is returned for a reaction index outside the button row.
	ErrUnknownReaction = errors.New("unknown reaction")
	// ErrSessionClosed is returned for input on a session that has ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotFound is returned by Manager lookups for unknown or closed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned by Manager.Create when the session cap is reached.
	ErrTooManySessions = errors.New("too many sessions")
)

// ErrorClass groups replay failures for logging and metrics labels.
type ErrorClass int

const (
	// ErrorClassCanceled means the replay context ended while a step was pending.
	ErrorClassCanceled ErrorClass = iota
	// ErrorClassLogClosed means the append target was torn down.
	ErrorClassLogClosed
	// ErrorClassUnknown covers everything else.
	ErrorClassUnknown
)

// String returns the metrics label for the class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassCanceled:
		return "canceled"
	case ErrorClassLogClosed:
		return "log_closed"
	default:
		return "unknown"
	}
}

// ClassifyReplayError maps a replay-step error to its class.
func ClassifyReplayError(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrLogClosed):
		return ErrorClassLogClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassCanceled
	default:
		return ErrorClassUnknown
	}
}
