package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/ooye-live/chat"
)

// Format is a script file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseFormat accepts "json", "yaml" or "yml" and the matching content types.
func ParseFormat(s string) (Format, error) {
	s, _, _ = strings.Cut(s, ",")
	s, _, _ = strings.Cut(s, ";")
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "json", "application/json":
		return FormatJSON, nil
	case "yaml", "yml", "application/yaml", "application/x-yaml", "text/yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Document is a script file. Files may also hold a bare list of records.
type Document struct {
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Records     []chat.Record `json:"records"`
}

// Decode parses a script in the given format.
func Decode(data []byte, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if firstByte(data) == '[' {
			if err := json.Unmarshal(data, &doc.Records); err != nil {
				return Document{}, fmt.Errorf("decode json script: %w", err)
			}
		} else if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("decode json script: %w", err)
		}
	case FormatYAML:
		var err error
		if doc, err = decodeYAML(data); err != nil {
			return Document{}, fmt.Errorf("decode yaml script: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	recs, err := normalize(doc.Records)
	if err != nil {
		return Document{}, err
	}
	doc.Records = recs
	return doc, nil
}

// Encode writes doc in the given format.
func Encode(w io.Writer, doc Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toYAMLDoc(doc)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func firstByte(data []byte) byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0
	}
	return data[0]
}

// File loads a script from a JSON or YAML file on every call, so edits apply to new sessions.
type File struct {
	Path string
	// FS, when set, is read instead of the OS filesystem.
	FS fs.FS
}

// Script reads and decodes the file.
func (f File) Script(context.Context) ([]chat.Record, error) {
	doc, err := f.Load()
	if err != nil {
		return nil, err
	}
	return doc.Records, nil
}

// Load reads the whole document.
func (f File) Load() (Document, error) {
	format, err := FormatFromPath(f.Path)
	if err != nil {
		return Document{}, err
	}
	var data []byte
	if f.FS != nil {
		data, err = fs.ReadFile(f.FS, f.Path)
	} else {
		data, err = os.ReadFile(f.Path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, f.Path)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read script %s: %w", f.Path, err)
	}
	doc, err := Decode(data, format)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", f.Path, err)
	}
	return doc, nil
}

// yamlDelay accepts integer milliseconds or a duration string such as "1.5s".
type yamlDelay time.Duration

func (d *yamlDelay) UnmarshalYAML(n *yaml.Node) error {
	var ms int64
	if err := n.Decode(&ms); err == nil {
		*d = yamlDelay(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: chatDelay must be milliseconds or a duration", n.Line)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: chatDelay: %w", n.Line, err)
	}
	*d = yamlDelay(dur)
	return nil
}

func (d yamlDelay) MarshalYAML() (any, error) {
	return time.Duration(d).Milliseconds(), nil
}

type yamlRecord struct {
	MessageType chat.MessageType `yaml:"messageType,omitempty"`
	ChatMessage string           `yaml:"chatMessage"`
	ChatSender  chat.Sender      `yaml:"chatSender"`
	ChatDelay   yamlDelay        `yaml:"chatDelay"`
}

type yamlDoc struct {
	Name        string       `yaml:"name,omitempty"`
	Description string       `yaml:"description,omitempty"`
	Records     []yamlRecord `yaml:"records"`
}

func decodeYAML(data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, err
	}
	var yd yamlDoc
	if len(root.Content) == 0 {
		return Document{}, nil
	}
	if root.Content[0].Kind == yaml.SequenceNode {
		if err := root.Content[0].Decode(&yd.Records); err != nil {
			return Document{}, err
		}
	} else if err := root.Decode(&yd); err != nil {
		return Document{}, err
	}

	doc := Document{Name: yd.Name, Description: yd.Description, Records: make([]chat.Record, len(yd.Records))}
	for i, r := range yd.Records {
		doc.Records[i] = chat.Record{
			MessageType: r.MessageType,
			Message:     r.ChatMessage,
			Sender:      r.ChatSender,
			Delay:       time.Duration(r.ChatDelay),
		}
	}
	return doc, nil
}

func toYAMLDoc(doc Document) yamlDoc {
	yd := yamlDoc{Name: doc.Name, Description: doc.Description, Records: make([]yamlRecord, len(doc.Records))}
	for i, r := range doc.Records {
		yd.Records[i] = yamlRecord{
			MessageType: r.MessageType,
			ChatMessage: r.Message,
			ChatSender:  r.Sender,
			ChatDelay:   yamlDelay(r.Delay),
		}
	}
	return yd
}
