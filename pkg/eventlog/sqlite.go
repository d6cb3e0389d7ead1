package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLog persists events in a local SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLiteLog opens (creating if needed) the event log at path.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return NewSQLiteLog(db)
}

// NewSQLiteLog wraps an existing database handle and runs migrations.
func NewSQLiteLog(db *sql.DB) (*SQLiteLog, error) {
	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		flags TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		private_data JSON,
		public_data JSON,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS events_flags ON events (flags);
	CREATE INDEX IF NOT EXISTS events_source ON events (source);`
	_, err := l.db.ExecContext(context.Background(), query)
	return err
}

func (l *SQLiteLog) Append(ctx context.Context, e *Event) error {
	privJSON, _ := json.Marshal(e.PrivateData)
	pubJSON, _ := json.Marshal(e.PublicData)

	query := `INSERT INTO events (
		event_id, flags, source, message, private_data, public_data, created_at, updated_at, elapsed_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO UPDATE SET
		flags = excluded.flags,
		message = excluded.message,
		private_data = excluded.private_data,
		public_data = excluded.public_data,
		updated_at = excluded.updated_at,
		elapsed_ms = excluded.elapsed_ms`

	_, err := l.db.ExecContext(ctx, query,
		e.EventID, string(e.Flags), e.Source, e.Message,
		string(privJSON), string(pubJSON),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		e.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Query(ctx context.Context, f Filter) ([]*Event, error) {
	query := `SELECT event_id, flags, source, message, private_data, public_data, created_at, updated_at, elapsed_ms
		FROM events`
	var (
		where []string
		args  []any
	)
	if f.SourcePrefix != "" {
		where = append(where, "source LIKE ?")
		args = append(args, likePrefix(f.SourcePrefix))
	}
	if f.Flag != "" {
		where = append(where, "flags = ?")
		args = append(args, string(f.Flag))
	}
	if !f.Since.IsZero() {
		where = append(where, "updated_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

func (l *SQLiteLog) Incomplete(ctx context.Context) ([]*Event, error) {
	query := `SELECT event_id, flags, source, message, private_data, public_data, created_at, updated_at, elapsed_ms
		FROM events WHERE flags != ? ORDER BY created_at`
	rows, err := l.db.QueryContext(ctx, query, string(FlagComplete))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// Close releases the underlying database handle.
func (l *SQLiteLog) Close() error { return l.db.Close() }

func likePrefix(p string) string {
	r := strings.NewReplacer("%", `\%`, "_", `\_`)
	return r.Replace(p) + "%"
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		var (
			e         Event
			flags     string
			privJSON  sql.NullString
			pubJSON   sql.NullString
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&e.EventID, &flags, &e.Source, &e.Message,
			&privJSON, &pubJSON, &createdAt, &updatedAt, &e.ElapsedMS); err != nil {
			return nil, err
		}
		e.Flags = Flag(flags)
		e.PrivateData = decodeData(privJSON)
		e.PublicData = decodeData(pubJSON)
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeData(v sql.NullString) map[string]any {
	data := map[string]any{}
	if v.Valid && v.String != "" {
		_ = json.Unmarshal([]byte(v.String), &data)
	}
	return data
}

func parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
