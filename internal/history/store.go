// Package history persists sessions and command outcomes to SQLite.
// History is an audit trail, not a dependency of dispatch: every write
// failure is logged and swallowed by the caller's Recorder seam, and a
// missing database only costs the trail.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/voxdeck/voxdeck/internal/dispatch"
	"github.com/voxdeck/voxdeck/internal/log"
)

// Session is one run of the dispatcher.
type Session struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Utterances    int64      `json:"utterances"`
	Matched       int64      `json:"matched"`
	Completed     int64      `json:"completed"`
	Partial       int64      `json:"partial"`
	Blocked       int64      `json:"blocked"`
	Unmatched     int64      `json:"unmatched"`
	LowConfidence int64      `json:"low_confidence"`
	Debounced     int64      `json:"debounced"`
}

// Record is one persisted command outcome.
type Record struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Seq        int64     `json:"seq"`
	At         time.Time `json:"at"`
	Heard      string    `json:"heard"`
	Confidence float64   `json:"confidence"`
	Command    string    `json:"command"`
	Pattern    string    `json:"pattern,omitempty"`
	Result     string    `json:"result"`
	StepsSent  int       `json:"steps_sent"`
	StepsTotal int       `json:"steps_total"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// Store wraps the history database. StartSession must be called before
// the store is shared with the pipeline.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	sessionID string
}

// Open opens (and creates if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: log.WithComponent("history")}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
  id             TEXT PRIMARY KEY,
  started_at     TEXT NOT NULL,
  ended_at       TEXT,
  utterances     INTEGER NOT NULL DEFAULT 0,
  matched        INTEGER NOT NULL DEFAULT 0,
  completed      INTEGER NOT NULL DEFAULT 0,
  partial        INTEGER NOT NULL DEFAULT 0,
  blocked        INTEGER NOT NULL DEFAULT 0,
  unmatched      INTEGER NOT NULL DEFAULT 0,
  low_confidence INTEGER NOT NULL DEFAULT 0,
  debounced      INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS command_log (
  id          TEXT PRIMARY KEY,
  session_id  TEXT NOT NULL REFERENCES sessions(id),
  seq         INTEGER NOT NULL,
  at          TEXT NOT NULL,
  heard       TEXT NOT NULL,
  confidence  REAL NOT NULL,
  command     TEXT NOT NULL,
  pattern     TEXT,
  result      TEXT NOT NULL,
  steps_sent  INTEGER NOT NULL,
  steps_total INTEGER NOT NULL,
  reason      TEXT,
  duration_ms INTEGER NOT NULL,
  created_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS command_log_session_seq_idx ON command_log(session_id, seq);`,
		`CREATE INDEX IF NOT EXISTS command_log_created_at_idx ON command_log(created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap history db: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession opens a new session row and makes it current.
func (s *Store) StartSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(id, started_at) VALUES(?, ?);
`, id, now)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	s.sessionID = id
	s.logger.Info("session started", "session_id", id)
	return id, nil
}

// SessionID returns the current session, empty before StartSession.
func (s *Store) SessionID() string {
	return s.sessionID
}

// EndSession stamps the current session with its end time and final
// counters.
func (s *Store) EndSession(ctx context.Context, stats dispatch.StatsSnapshot) error {
	if s.sessionID == "" {
		return fmt.Errorf("no session started")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET ended_at = ?, utterances = ?, matched = ?, completed = ?, partial = ?,
    blocked = ?, unmatched = ?, low_confidence = ?, debounced = ?
WHERE id = ?;
`, now, stats.Utterances, stats.Matched, stats.Completed, stats.Partial,
		stats.Blocked, stats.NoMatch, stats.LowConfidence, stats.Debounced, s.sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	s.logger.Info("session ended", "session_id", s.sessionID)
	return nil
}

// RecordCommand persists one command outcome under the current session.
func (s *Store) RecordCommand(ctx context.Context, rec dispatch.CommandRecord) error {
	if s.sessionID == "" {
		return fmt.Errorf("no session started")
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO command_log(
  id, session_id, seq, at, heard, confidence, command, pattern, result,
  steps_sent, steps_total, reason, duration_ms, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, s.sessionID, rec.Seq, rec.At.UTC().Format(time.RFC3339Nano), rec.Heard, rec.Confidence,
		rec.Command, rec.Pattern, rec.Result, rec.StepsSent, rec.StepsTotal, rec.Reason,
		rec.Duration.Milliseconds(), now)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// RecentCommands returns the newest command outcomes first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, seq, at, heard, confidence, command, pattern, result,
       steps_sent, steps_total, reason, duration_ms
FROM command_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			atS     string
			pattern sql.NullString
			reason  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Seq, &atS, &r.Heard, &r.Confidence,
			&r.Command, &pattern, &r.Result, &r.StepsSent, &r.StepsTotal, &reason, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan command row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, atS); err == nil {
			r.At = t
		}
		r.Pattern = pattern.String
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sessions returns the newest sessions first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, ended_at, utterances, matched, completed, partial, blocked,
       unmatched, low_confidence, debounced
FROM sessions
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess     Session
			startedS string
			endedS   sql.NullString
		)
		if err := rows.Scan(&sess.ID, &startedS, &endedS, &sess.Utterances, &sess.Matched,
			&sess.Completed, &sess.Partial, &sess.Blocked,
			&sess.Unmatched, &sess.LowConfidence, &sess.Debounced); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedS); err == nil {
			sess.StartedAt = t
		}
		if endedS.Valid {
			if t, err := time.Parse(time.RFC3339Nano, endedS.String); err == nil {
				sess.EndedAt = &t
			}
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session returns one session by ID, (nil, nil) when absent.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, started_at, ended_at, utterances, matched, completed, partial, blocked,
       unmatched, low_confidence, debounced
FROM sessions
WHERE id = ?;
`, id)

	var (
		sess     Session
		startedS string
		endedS   sql.NullString
	)
	err := row.Scan(&sess.ID, &startedS, &endedS, &sess.Utterances, &sess.Matched,
		&sess.Completed, &sess.Partial, &sess.Blocked,
		&sess.Unmatched, &sess.LowConfidence, &sess.Debounced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, startedS); err == nil {
		sess.StartedAt = t
	}
	if endedS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, endedS.String); err == nil {
			sess.EndedAt = &t
		}
	}
	return &sess, nil
}
