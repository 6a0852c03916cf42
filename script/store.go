package script

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/db"
)

// Store reads and writes named scripts in Postgres.
type Store struct {
	DB *sql.DB
}

// NewStore returns a store over an already migrated database.
func NewStore(dbx *sql.DB) *Store { return &Store{DB: dbx} }

// Named returns a Source that loads name from the store on every call.
func (s *Store) Named(name string) Source { return named{store: s, name: name} }

type named struct {
	store *Store
	name  string
}

func (n named) Script(ctx context.Context) ([]chat.Record, error) { return n.store.Load(ctx, n.name) }

// Load returns the records of a stored script.
func (s *Store) Load(ctx context.Context, name string) ([]chat.Record, error) {
	rows, err := db.LoadScript(ctx, s.DB, name)
	if errors.Is(err, db.ErrScriptNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	recs := make([]chat.Record, len(rows))
	for i, r := range rows {
		recs[i] = chat.Record{
			MessageType: chat.MessageType(r.MessageType),
			Message:     r.Message,
			Sender:      chat.Sender{Username: r.SenderUsername, FirstName: r.SenderFirstName, LastName: r.SenderLastName},
			Delay:       time.Duration(r.DelayMS) * time.Millisecond,
		}
	}
	return normalize(recs)
}

// Save stores doc under name, replacing an existing script of the same name.
// origin records where the script came from ("import", "capture", ...).
func (s *Store) Save(ctx context.Context, name, origin string, doc Document) error {
	recs, err := normalize(doc.Records)
	if err != nil {
		return err
	}
	rows := make([]db.ScriptRow, len(recs))
	for i, r := range recs {
		rows[i] = db.ScriptRow{
			Position:        i,
			MessageType:     string(r.MessageType),
			Message:         r.Message,
			SenderUsername:  r.Sender.Username,
			SenderFirstName: r.Sender.FirstName,
			SenderLastName:  r.Sender.LastName,
			DelayMS:         r.Delay.Milliseconds(),
		}
	}
	return db.ReplaceScript(ctx, s.DB, name, doc.Description, origin, rows)
}

// List describes every stored script.
func (s *Store) List(ctx context.Context) ([]db.ScriptInfo, error) {
	return db.ListScripts(ctx, s.DB)
}

// Delete removes a stored script.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := db.DeleteScript(ctx, s.DB, name)
	if errors.Is(err, db.ErrScriptNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}
