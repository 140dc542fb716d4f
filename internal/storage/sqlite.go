// Package storage persists completed turns per session. The run loop
// itself stays stateless; the server layer appends a turn after each
// run finishes.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/chat"

	_ "modernc.org/sqlite"
)

// SessionMeta describes one conversation session.
type SessionMeta struct {
	ID        string
	Title     string
	Model     string
	CreatedAt string
	UpdatedAt string
}

// Turn is one completed user turn: the input, the final reply, and any
// tool activity that happened along the way.
type Turn struct {
	SessionID   string
	Seq         int
	UserInput   string
	Content     string
	Reasoning   string
	ToolCalls   []chat.ToolCall
	ToolResults []chat.ToolResult
	CreatedAt   string
}

// SQLiteStore implements the turn history store using SQLite with WAL
// mode.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq          INTEGER NOT NULL,
		user_input   TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		reasoning    TEXT NOT NULL DEFAULT '',
		tool_calls   TEXT NOT NULL DEFAULT '[]',
		tool_results TEXT NOT NULL DEFAULT '[]',
		created_at   TEXT NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(meta SessionMeta) error {
	now := nowUTC()
	if strings.TrimSpace(meta.CreatedAt) == "" {
		meta.CreatedAt = now
	}
	if strings.TrimSpace(meta.UpdatedAt) == "" {
		meta.UpdatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		meta.ID, meta.Title, meta.Model, meta.CreatedAt, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSession(id string) (SessionMeta, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionMeta{}, fmt.Errorf("session id is empty")
	}
	row := s.db.QueryRow(`
		SELECT id, title, model, created_at, updated_at
		FROM sessions WHERE id=?`, id)

	var meta SessionMeta
	err := row.Scan(&meta.ID, &meta.Title, &meta.Model, &meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return SessionMeta{}, fmt.Errorf("session not found: %s", id)
		}
		return SessionMeta{}, fmt.Errorf("load session: %w", err)
	}
	return meta, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, title, model, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var meta SessionMeta
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &meta.CreatedAt, &meta.UpdatedAt); err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// AppendTurn stores one completed turn at the next sequence number and
// bumps the session's updated_at.
func (s *SQLiteStore) AppendTurn(turn Turn) error {
	if strings.TrimSpace(turn.SessionID) == "" {
		return fmt.Errorf("session id is empty")
	}
	calls, err := json.Marshal(orEmpty(turn.ToolCalls))
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	results, err := json.Marshal(orEmptyResults(turn.ToolResults))
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}
	now := nowUTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int
	row := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id=?", turn.SessionID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO turns (session_id, seq, user_input, content, reasoning, tool_calls, tool_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, seq, turn.UserInput, turn.Content, turn.Reasoning,
		string(calls), string(results), now,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	if _, err := tx.Exec("UPDATE sessions SET updated_at=? WHERE id=?", now, turn.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListTurns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT session_id, seq, user_input, content, reasoning, tool_calls, tool_results, created_at
		FROM turns WHERE session_id=? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var calls, results string
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.UserInput, &t.Content, &t.Reasoning, &calls, &results, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(calls), &t.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		if err := json.Unmarshal([]byte(results), &t.ToolResults); err != nil {
			return nil, fmt.Errorf("decode tool results: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func orEmpty(calls []chat.ToolCall) []chat.ToolCall {
	if calls == nil {
		return []chat.ToolCall{}
	}
	return calls
}

func orEmptyResults(results []chat.ToolResult) []chat.ToolResult {
	if results == nil {
		return []chat.ToolResult{}
	}
	return results
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
