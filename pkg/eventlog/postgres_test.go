package eventlog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLog(t *testing.T) (*PostgresLog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	l, err := NewPostgresLog(db)
	require.NoError(t, err)
	return l, mock
}

func TestPostgresLogAppend(t *testing.T) {
	l, mock := newMockLog(t)

	e := New("search", "search: Starting", map[string]any{"args": []string{"from:bre"}})
	mock.ExpectExec("INSERT INTO events").
		WithArgs(e.EventID, "incomplete", "search", "search: Starting",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := l.Append(context.Background(), e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogIncomplete(t *testing.T) {
	l, mock := newMockLog(t)

	cols := []string{"event_id", "flags", "source", "message", "private_data",
		"public_data", "created_at", "updated_at", "elapsed_ms"}
	e := New("rescan", "rescan: Starting", nil)
	mock.ExpectQuery("SELECT .+ FROM events WHERE flags != ").
		WithArgs("complete").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			e.EventID, "running", "rescan", "rescan: Starting",
			`{"args":["all"]}`, `{}`, e.CreatedAt, e.UpdatedAt, int64(0)))

	events, err := l.Incomplete(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, FlagRunning, events[0].Flags)
	assert.Equal(t, "rescan", events[0].Source)
	assert.Equal(t, []any{"all"}, events[0].PrivateData["args"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogQueryBuildsPredicates(t *testing.T) {
	l, mock := newMockLog(t)

	cols := []string{"event_id", "flags", "source", "message", "private_data",
		"public_data", "created_at", "updated_at", "elapsed_ms"}
	mock.ExpectQuery("SELECT .+ FROM events WHERE source LIKE .+ AND flags = .+ LIMIT").
		WithArgs("settings%", "complete", 5).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := l.Query(context.Background(), Filter{
		SourcePrefix: "settings",
		Flag:         FlagComplete,
		Limit:        5,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
