package storage

import (
	"path/filepath"
	"testing"

	"scribe/internal/chat"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_SessionCRUD(t *testing.T) {
	store := newTestStore(t)

	meta := SessionMeta{
		ID:    "sess_test_001",
		Title: "draft review",
		Model: "test-model",
	}
	if err := store.CreateSession(meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	loaded, err := store.LoadSession("sess_test_001")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.Title != "draft review" {
		t.Fatalf("Title=%q, want %q", loaded.Title, "draft review")
	}
	if loaded.CreatedAt == "" || loaded.UpdatedAt == "" {
		t.Fatal("timestamps should be filled in")
	}

	if _, err := store.LoadSession("missing"); err == nil {
		t.Fatal("LoadSession should fail for unknown id")
	}

	sessions, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions)=%d, want 1", len(sessions))
	}
}

func TestSQLiteStore_AppendAndListTurns(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateSession(SessionMeta{ID: "s1"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first := Turn{
		SessionID: "s1",
		UserInput: "what notes do I have?",
		Content:   "You have 2 notes.",
		Reasoning: "checking the library",
		ToolCalls: []chat.ToolCall{
			{Name: "list_resources", Parameters: map[string]any{"resource_type": "notes"}},
		},
		ToolResults: []chat.ToolResult{
			{Success: true, Data: map[string]any{"count": float64(2)}},
		},
	}
	if err := store.AppendTurn(first); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := store.AppendTurn(Turn{SessionID: "s1", UserInput: "thanks", Content: "Anytime."}); err != nil {
		t.Fatalf("AppendTurn second: %v", err)
	}

	turns, err := store.ListTurns("s1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns)=%d, want 2", len(turns))
	}
	if turns[0].Seq != 1 || turns[1].Seq != 2 {
		t.Fatalf("seqs=%d,%d want 1,2", turns[0].Seq, turns[1].Seq)
	}
	if turns[0].Content != "You have 2 notes." {
		t.Fatalf("Content=%q", turns[0].Content)
	}
	if len(turns[0].ToolCalls) != 1 || turns[0].ToolCalls[0].Name != "list_resources" {
		t.Fatalf("ToolCalls=%+v", turns[0].ToolCalls)
	}
	if len(turns[0].ToolResults) != 1 || !turns[0].ToolResults[0].Success {
		t.Fatalf("ToolResults=%+v", turns[0].ToolResults)
	}
	if len(turns[1].ToolCalls) != 0 {
		t.Fatalf("second turn ToolCalls=%+v, want none", turns[1].ToolCalls)
	}
}

func TestSQLiteStore_AppendTurnRequiresSession(t *testing.T) {
	store := newTestStore(t)

	if err := store.AppendTurn(Turn{SessionID: ""}); err == nil {
		t.Fatal("AppendTurn should reject empty session id")
	}
	// Unknown session violates the foreign key.
	if err := store.AppendTurn(Turn{SessionID: "ghost", Content: "x"}); err == nil {
		t.Fatal("AppendTurn should fail for unknown session")
	}
}

func TestSQLiteStore_TurnsIsolatedPerSession(t *testing.T) {
	store := newTestStore(t)

	_ = store.CreateSession(SessionMeta{ID: "a"})
	_ = store.CreateSession(SessionMeta{ID: "b"})
	_ = store.AppendTurn(Turn{SessionID: "a", Content: "for a"})
	_ = store.AppendTurn(Turn{SessionID: "b", Content: "for b"})

	turns, err := store.ListTurns("a")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "for a" {
		t.Fatalf("turns=%+v", turns)
	}
}
