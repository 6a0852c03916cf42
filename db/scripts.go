package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrScriptNotFound is returned when no script with the requested name is stored.
var ErrScriptNotFound = errors.New("script not found")

// ScriptRow is one stored chat record. Position is its 0-based index in the script.
type ScriptRow struct {
	Position        int
	MessageType     string
	Message         string
	SenderUsername  string
	SenderFirstName string
	SenderLastName  string
	DelayMS         int64
}

// ScriptInfo describes a stored script without its records.
type ScriptInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Origin      string    `json:"origin"`
	Records     int       `json:"records"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReplaceScript stores rows under name, replacing any previous version in one transaction.
// Positions are reassigned from the slice order.
func ReplaceScript(ctx context.Context, dbx *sql.DB, name, description, origin string, rows []ScriptRow) error {
	if name == "" {
		return errors.New("script name required")
	}
	if origin == "" {
		origin = "import"
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_scripts (name, description, origin, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, origin = EXCLUDED.origin, updated_at = NOW()`,
		name, description, origin); err != nil {
		return fmt.Errorf("upsert script: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM script_records WHERE script_name = $1`, name); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO script_records
		(script_name, position, message_type, message, sender_username, sender_first_name, sender_last_name, delay_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for i, r := range rows {
		delay := r.DelayMS
		if delay < 0 {
			delay = 0
		}
		if _, err := stmt.ExecContext(ctx, name, i, r.MessageType, r.Message, r.SenderUsername, r.SenderFirstName, r.SenderLastName, delay); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadScript returns the rows of a stored script in position order.
func LoadScript(ctx context.Context, dbx *sql.DB, name string) ([]ScriptRow, error) {
	var exists bool
	if err := dbx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM chat_scripts WHERE name = $1)`, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup script: %w", err)
	}
	if !exists {
		return nil, ErrScriptNotFound
	}

	rows, err := dbx.QueryContext(ctx, `SELECT position, message_type, message, sender_username, sender_first_name, sender_last_name, delay_ms
		FROM script_records WHERE script_name = $1 ORDER BY position ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ScriptRow
	for rows.Next() {
		var r ScriptRow
		if err := rows.Scan(&r.Position, &r.MessageType, &r.Message, &r.SenderUsername, &r.SenderFirstName, &r.SenderLastName, &r.DelayMS); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListScripts returns every stored script ordered by name.
func ListScripts(ctx context.Context, dbx *sql.DB) ([]ScriptInfo, error) {
	rows, err := dbx.QueryContext(ctx, `SELECT s.name, s.description, s.origin, s.updated_at, COUNT(r.id)
		FROM chat_scripts s LEFT JOIN script_records r ON r.script_name = s.name
		GROUP BY s.name, s.description, s.origin, s.updated_at
		ORDER BY s.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []ScriptInfo{}
	for rows.Next() {
		var info ScriptInfo
		if err := rows.Scan(&info.Name, &info.Description, &info.Origin, &info.UpdatedAt, &info.Records); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteScript removes a stored script and its records.
func DeleteScript(ctx context.Context, dbx *sql.DB, name string) error {
	res, err := dbx.ExecContext(ctx, `DELETE FROM chat_scripts WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrScriptNotFound
	}
	return nil
}
