package script

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/testutil"
)

func TestBuiltinIsFreshAndValid(t *testing.T) {
	src := Builtin()
	a, err := src.Script(context.Background())
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	if len(a) == 0 {
		t.Fatal("builtin script empty")
	}
	if a[0].Delay != 0 {
		t.Errorf("first builtin record delay = %v, want 0", a[0].Delay)
	}
	for i, r := range a {
		if !r.MessageType.Valid() || r.Delay < 0 || r.Sender.Username == "" {
			t.Errorf("record %d invalid: %+v", i, r)
		}
	}
	a[0].Message = "mutated"
	b, _ := src.Script(context.Background())
	if b[0].Message == "mutated" {
		t.Fatal("Script returned shared backing storage")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"a.json", FormatJSON, false},
		{"dir/b.YAML", FormatYAML, false},
		{"c.yml", FormatYAML, false},
		{"d.txt", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFromPath(%q) = %q, %v", tt.path, got, err)
		}
		if tt.wantErr && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("FormatFromPath(%q) err = %v, want ErrUnsupportedFormat", tt.path, err)
		}
	}
}

const jsonList = `[
  {"messageType":"message","chatMessage":"hi","chatSender":{"username":"a","firstName":"A","lastName":"One"},"chatDelay":0},
  {"messageType":"new-member","chatMessage":"joined","chatSender":{"username":"b"},"chatDelay":5000}
]`

const yamlDoc1 = `
name: demo
description: two lines
records:
  - chatMessage: hi
    chatSender: {username: a, firstName: A, lastName: One}
    chatDelay: 0
  - messageType: new-member
    chatMessage: joined
    chatSender: {username: b}
    chatDelay: 5s
  - chatMessage: late
    chatSender: {username: c}
    chatDelay: -250
`

func TestFileSource(t *testing.T) {
	fsys := fstest.MapFS{
		"list.json": {Data: []byte(jsonList)},
		"doc.json":  {Data: []byte(`{"name":"x","records":` + jsonList + `}`)},
		"doc.yaml":  {Data: []byte(yamlDoc1)},
		"list.yml":  {Data: []byte("- chatMessage: hi\n  chatSender: {username: a}\n  chatDelay: 1500\n")},
		"bad.json":  {Data: []byte(`[{"messageType":"shout"}]`)},
		"bad.yaml":  {Data: []byte("- messageType: shout\n")},
		"delay.yml": {Data: []byte("- chatDelay: soon\n")},
		"empty.yml": {Data: []byte("")},
	}
	tests := []struct {
		path     string
		want     []string
		delays   []time.Duration
		wantErr  error
		anyError bool
	}{
		{path: "list.json", want: []string{"hi", "joined"}, delays: []time.Duration{0, 5 * time.Second}},
		{path: "doc.json", want: []string{"hi", "joined"}, delays: []time.Duration{0, 5 * time.Second}},
		{path: "doc.yaml", want: []string{"hi", "joined", "late"}, delays: []time.Duration{0, 5 * time.Second, 0}},
		{path: "list.yml", want: []string{"hi"}, delays: []time.Duration{1500 * time.Millisecond}},
		{path: "empty.yml", want: []string{}},
		{path: "bad.json", anyError: true},
		{path: "bad.yaml", anyError: true},
		{path: "delay.yml", anyError: true},
		{path: "missing.json", wantErr: ErrNotFound},
		{path: "notes.txt", wantErr: ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			recs, err := File{Path: tt.path, FS: fsys}.Script(context.Background())
			if tt.wantErr != nil || tt.anyError {
				if err == nil {
					t.Fatalf("expected error, got %d records", len(recs))
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(recs) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(recs), len(tt.want))
			}
			for i, r := range recs {
				if r.Message != tt.want[i] || r.Delay != tt.delays[i] {
					t.Errorf("record %d = %q/%v, want %q/%v", i, r.Message, r.Delay, tt.want[i], tt.delays[i])
				}
				if !r.MessageType.Valid() {
					t.Errorf("record %d has type %q", i, r.MessageType)
				}
			}
		})
	}
}

func TestYAMLDocumentFields(t *testing.T) {
	doc, err := Decode([]byte(yamlDoc1), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Name != "demo" || doc.Description != "two lines" {
		t.Errorf("doc = %q/%q", doc.Name, doc.Description)
	}
	if !doc.Records[1].IsNewMember() || doc.Records[0].Sender.LastName != "One" {
		t.Errorf("records = %+v", doc.Records)
	}
}

func TestEncodeDecodeKeepsDelays(t *testing.T) {
	doc := Document{Name: "d", Records: Static(demo)}
	for _, f := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		if err := Encode(&buf, doc, f); err != nil {
			t.Fatalf("%s encode: %v", f, err)
		}
		back, err := Decode(buf.Bytes(), f)
		if err != nil {
			t.Fatalf("%s decode: %v", f, err)
		}
		if len(back.Records) != len(demo) {
			t.Fatalf("%s: %d records, want %d", f, len(back.Records), len(demo))
		}
		for i := range demo {
			if back.Records[i] != demo[i] {
				t.Fatalf("%s record %d = %+v, want %+v", f, i, back.Records[i], demo[i])
			}
		}
	}
}

func TestOpen(t *testing.T) {
	if src, err := Open(KindBuiltin, "", "", nil); err != nil || src == nil {
		t.Fatalf("builtin: %v", err)
	}
	if _, err := Open(KindFile, "", "", nil); err == nil {
		t.Error("file source without path accepted")
	}
	if _, err := Open(KindFile, "x.csv", "", nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("csv err = %v", err)
	}
	if _, err := Open(KindDB, "", "demo", nil); err == nil {
		t.Error("db source without store accepted")
	}
	if _, err := Open(KindDB, "", "", &Store{}); err == nil {
		t.Error("db source without name accepted")
	}
	if k, err := ParseKind(" DB "); err != nil || k != KindDB {
		t.Errorf("ParseKind = %q, %v", k, err)
	}
	if _, err := ParseKind("s3"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestRecorderGaps(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRecorder(clock, 10*time.Second)

	clock.Advance(time.Minute) // time before the first line never counts
	first := r.Message(chat.Sender{Username: "a"}, "one")
	clock.Advance(1500 * time.Millisecond)
	second := r.NewMember(chat.Sender{Username: "b"}, "subscribed")
	clock.Advance(time.Hour)
	third := r.Message(chat.Sender{Username: "c"}, "three")

	if first.Delay != 0 {
		t.Errorf("first delay = %v, want 0", first.Delay)
	}
	if second.Delay != 1500*time.Millisecond || !second.IsNewMember() {
		t.Errorf("second = %+v", second)
	}
	if third.Delay != 10*time.Second {
		t.Errorf("third delay = %v, want capped 10s", third.Delay)
	}
	if r.Len() != 3 || len(r.Records()) != 3 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestStoreRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := NewStore(database)
	t.Cleanup(func() { _ = store.Delete(ctx, "script-test") })

	doc := Document{Description: "from test", Records: Static(demo)}
	if err := store.Save(ctx, "script-test", "import", doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Named("script-test").Script(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(demo) {
		t.Fatalf("loaded %d, want %d", len(got), len(demo))
	}
	for i := range demo {
		if got[i] != demo[i] {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], demo[i])
		}
	}
	if _, err := store.Load(ctx, "no-such-script"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}
