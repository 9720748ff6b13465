package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSink_PersistsEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	sink, err := OpenSQLiteSink(ctx, path, nil)
	require.NoError(t, err)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, sink.Write(ctx, Event{
			Timestamp:  ts.Add(time.Duration(i) * time.Second),
			RequestID:  id,
			ToolName:   "graph_query",
			Backend:    "graph",
			Headers:    map[string]string{"Authorization": Placeholder},
			Arguments:  json.RawMessage(`{"q":1}`),
			Outcome:    "ok",
			Status:     200,
			DurationMS: int64(i),
			Success:    i != 1,
		}))
	}
	require.NoError(t, sink.Close())

	events, err := ReadEvents(ctx, path, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].RequestID)
	assert.Equal(t, "c", events[2].RequestID)
	assert.Equal(t, ts, events[0].Timestamp)
	assert.Equal(t, Placeholder, events[0].Headers["Authorization"])
	assert.JSONEq(t, `{"q":1}`, string(events[0].Arguments))
	assert.False(t, events[1].Success)

	last, err := ReadEvents(ctx, path, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].RequestID)
	assert.Equal(t, "c", last[1].RequestID)
}

func TestSQLiteSink_WriteAfterClose(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLiteSink(ctx, filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	assert.ErrorIs(t, sink.Write(ctx, Event{RequestID: "late"}), ErrSinkClosed)
}

func TestSQLiteSink_WithLogger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := OpenSQLiteSink(ctx, path, nil)
	require.NoError(t, err)

	al := NewLogger(nil, sink)
	al.Record(ctx, Entry{RequestID: "r1", ToolName: "t", Backend: "b", Status: 404, Outcome: "unknown_tool"})
	require.NoError(t, sink.Close())

	events, err := ReadEvents(ctx, path, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 404, events[0].Status)
	assert.Equal(t, "unknown_tool", events[0].Outcome)
}
