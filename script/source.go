// Package script produces the chat scripts replayed by sessions: the built-in demo, JSON or YAML
// files, scripts stored in Postgres, and scripts captured from a live Twitch channel.
package script

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/onnwee/ooye-live/chat"
)

var (
	// ErrNotFound is returned when a named script does not exist.
	ErrNotFound = errors.New("script not found")
	// ErrUnsupportedFormat is returned for script files that are neither JSON nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported script format")
)

// Source produces the ordered script for one session. Every call returns a fresh slice.
type Source interface {
	Script(ctx context.Context) ([]chat.Record, error)
}

// Static serves a fixed in-memory script.
type Static []chat.Record

// Script returns a copy of the records.
func (s Static) Script(context.Context) ([]chat.Record, error) {
	return slices.Clone([]chat.Record(s)), nil
}

// Kind names a script source as configured by SCRIPT_SOURCE.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindFile    Kind = "file"
	KindDB      Kind = "db"
)

// ParseKind validates a SCRIPT_SOURCE value. Empty means builtin.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindBuiltin:
		return KindBuiltin, nil
	case KindFile, KindDB:
		return k, nil
	default:
		return "", fmt.Errorf("unknown script source %q (want builtin, file or db)", s)
	}
}

// normalize applies the loader rules shared by every source: the default message type,
// validation of explicit types and clamping of negative delays.
func normalize(recs []chat.Record) ([]chat.Record, error) {
	for i := range recs {
		if recs[i].MessageType == "" {
			recs[i].MessageType = chat.MessageTypeMessage
		}
		if !recs[i].MessageType.Valid() {
			return nil, fmt.Errorf("record %d: unknown messageType %q", i, recs[i].MessageType)
		}
		if recs[i].Delay < 0 {
			recs[i].Delay = 0
		}
	}
	return recs, nil
}

// Open returns the source selected by kind. path is used by file sources, name and store by db sources.
func Open(kind Kind, path, name string, store *Store) (Source, error) {
	switch kind {
	case "", KindBuiltin:
		return Builtin(), nil
	case KindFile:
		if path == "" {
			return nil, errors.New("SCRIPT_FILE required for file script source")
		}
		if _, err := FormatFromPath(path); err != nil {
			return nil, err
		}
		return File{Path: path}, nil
	case KindDB:
		if store == nil {
			return nil, errors.New("database required for db script source")
		}
		if name == "" {
			return nil, errors.New("SCRIPT_NAME required for db script source")
		}
		return store.Named(name), nil
	default:
		return nil, fmt.Errorf("unknown script source %q", kind)
	}
}
