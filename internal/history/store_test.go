package history

import (
	"context"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendTurnAndTranscript(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnsureCall(ctx, "call-1", "agent-1", "+15555550100"); err != nil {
		t.Fatalf("EnsureCall: %v", err)
	}
	// EnsureCall must be idempotent against a double session-start.
	if err := s.EnsureCall(ctx, "call-1", "agent-1", "+15555550100"); err != nil {
		t.Fatalf("EnsureCall (repeat): %v", err)
	}

	if err := s.AppendTurn(ctx, "call-1", "hello", "hi there"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := s.AppendTurn(ctx, "call-1", "what's the weather", "sunny and 70"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	turns, err := s.Transcript(ctx, "call-1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].User != "hello" || turns[0].Assistant != "hi there" {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
}

func TestStore_FinalizeSetsStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnsureCall(ctx, "call-2", "agent-1", ""); err != nil {
		t.Fatalf("EnsureCall: %v", err)
	}
	if err := s.Finalize(ctx, "call-2", "completed"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	var status string
	row := s.db.QueryRowContext(ctx, `SELECT status FROM calls WHERE call_id = ?`, "call-2")
	if err := row.Scan(&status); err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != "completed" {
		t.Fatalf("expected status completed, got %q", status)
	}
}
