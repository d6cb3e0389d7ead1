package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresLog persists events in PostgreSQL, for deployments where several
// front-end processes share one audit trail.
type PostgresLog struct {
	db *sql.DB
}

// OpenPostgresLog connects to connURL and runs migrations.
func OpenPostgresLog(connURL string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return NewPostgresLog(db)
}

// NewPostgresLog wraps an existing database handle and runs migrations.
func NewPostgresLog(db *sql.DB) (*PostgresLog, error) {
	l := &PostgresLog{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PostgresLog) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		flags TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		private_data JSONB,
		public_data JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		elapsed_ms BIGINT NOT NULL DEFAULT 0
	)`
	_, err := l.db.ExecContext(context.Background(), query)
	return err
}

func (l *PostgresLog) Append(ctx context.Context, e *Event) error {
	privJSON, _ := json.Marshal(e.PrivateData)
	pubJSON, _ := json.Marshal(e.PublicData)

	query := `INSERT INTO events (
		event_id, flags, source, message, private_data, public_data, created_at, updated_at, elapsed_ms
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (event_id) DO UPDATE SET
		flags = EXCLUDED.flags,
		message = EXCLUDED.message,
		private_data = EXCLUDED.private_data,
		public_data = EXCLUDED.public_data,
		updated_at = EXCLUDED.updated_at,
		elapsed_ms = EXCLUDED.elapsed_ms`

	_, err := l.db.ExecContext(ctx, query,
		e.EventID, string(e.Flags), e.Source, e.Message,
		string(privJSON), string(pubJSON),
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(), e.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (l *PostgresLog) Query(ctx context.Context, f Filter) ([]*Event, error) {
	query := `SELECT event_id, flags, source, message, private_data, public_data, created_at, updated_at, elapsed_ms
		FROM events`
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.SourcePrefix != "" {
		where = append(where, "source LIKE "+arg(likePrefix(f.SourcePrefix)))
	}
	if f.Flag != "" {
		where = append(where, "flags = "+arg(string(f.Flag)))
	}
	if !f.Since.IsZero() {
		where = append(where, "updated_at >= "+arg(f.Since.UTC()))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanPGEvents(rows)
}

func (l *PostgresLog) Incomplete(ctx context.Context) ([]*Event, error) {
	query := `SELECT event_id, flags, source, message, private_data, public_data, created_at, updated_at, elapsed_ms
		FROM events WHERE flags != $1 ORDER BY created_at`
	rows, err := l.db.QueryContext(ctx, query, string(FlagComplete))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanPGEvents(rows)
}

// Close releases the underlying database handle.
func (l *PostgresLog) Close() error { return l.db.Close() }

func scanPGEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		var (
			e        Event
			flags    string
			privJSON sql.NullString
			pubJSON  sql.NullString
		)
		if err := rows.Scan(&e.EventID, &flags, &e.Source, &e.Message,
			&privJSON, &pubJSON, &e.CreatedAt, &e.UpdatedAt, &e.ElapsedMS); err != nil {
			return nil, err
		}
		e.Flags = Flag(flags)
		e.PrivateData = decodeData(privJSON)
		e.PublicData = decodeData(pubJSON)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Log = (*SQLiteLog)(nil)
var _ Log = (*PostgresLog)(nil)
var _ Log = (*MemoryLog)(nil)
