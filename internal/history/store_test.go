package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxdeck/voxdeck/internal/dispatch"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "voxdeck.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenBootstrapsSchema(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	for _, table := range []string{"sessions", "command_log"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", table).Scan(&name)
		require.NoError(t, err, "table %q missing", table)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestRecordBeforeSession(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	err := s.RecordCommand(context.Background(), dispatch.CommandRecord{Command: "record"})
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	id, err := s.StartSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, s.SessionID())

	at := time.Date(2026, 3, 14, 20, 15, 0, 0, time.UTC)
	err = s.RecordCommand(ctx, dispatch.CommandRecord{
		Seq: 1, At: at, Heard: "please record arm now", Confidence: 0.87,
		Command: "record arm", Pattern: "record arm", Result: "completed",
		StepsSent: 2, StepsTotal: 2, Duration: 215 * time.Millisecond,
	})
	require.NoError(t, err)
	err = s.RecordCommand(ctx, dispatch.CommandRecord{
		Seq: 2, At: at.Add(5 * time.Second), Heard: "big red button", Confidence: 0.91,
		Command: "panic stop", Pattern: "big red button", Result: "partial",
		StepsSent: 1, StepsTotal: 3, Reason: "unresolved effect master mute",
		Duration: 120 * time.Millisecond,
	})
	require.NoError(t, err)

	recs, err := s.RecentCommands(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, int64(2), recs[0].Seq)
	assert.Equal(t, "partial", recs[0].Result)
	assert.Equal(t, "unresolved effect master mute", recs[0].Reason)
	assert.Equal(t, int64(1), recs[1].Seq)
	assert.Equal(t, "record arm", recs[1].Command)
	assert.Equal(t, "please record arm now", recs[1].Heard)
	assert.Equal(t, int64(215), recs[1].DurationMS)
	assert.Equal(t, id, recs[1].SessionID)
	assert.WithinDuration(t, at, recs[1].At, time.Second)

	sessions, err := s.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Nil(t, sessions[0].EndedAt, "session still open")

	err = s.EndSession(ctx, dispatch.StatsSnapshot{
		Utterances: 7, Matched: 2, Completed: 1, Partial: 1,
		NoMatch: 3, LowConfidence: 2, Debounced: 1,
	})
	require.NoError(t, err)

	sess, err := s.Session(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, sess.EndedAt)
	assert.Equal(t, int64(7), sess.Utterances)
	assert.Equal(t, int64(2), sess.Matched)
	assert.Equal(t, int64(1), sess.Completed)
	assert.Equal(t, int64(1), sess.Partial)
	assert.Equal(t, int64(3), sess.Unmatched)
	assert.Equal(t, int64(2), sess.LowConfidence)
	assert.Equal(t, int64(1), sess.Debounced)

	missing, err := s.Session(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecentCommandsLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.StartSession(ctx)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		err := s.RecordCommand(ctx, dispatch.CommandRecord{
			Seq: int64(i), At: time.Now(), Heard: fmt.Sprintf("utterance %d", i),
			Command: "record", Result: "completed", StepsSent: 1, StepsTotal: 1,
		})
		require.NoError(t, err)
	}

	recs, err := s.RecentCommands(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(5), recs[0].Seq)
	assert.Equal(t, int64(4), recs[1].Seq)
}
