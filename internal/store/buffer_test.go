package store

import "testing"

func mustBuffer(t *testing.T, initial string) Store {
	t.Helper()
	s, err := NewBuffer(initial)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	return s
}

func snapshot(t *testing.T, s Store) string {
	t.Helper()
	text, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return text
}

func TestBufferInsert(t *testing.T) {
	s := mustBuffer(t, "")
	if err := s.Insert(0, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(5, " world"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Insert(5, ","); err != nil {
		t.Fatalf("mid insert: %v", err)
	}
	if got := snapshot(t, s); got != "hello, world" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestBufferInsertOutOfRange(t *testing.T) {
	s := mustBuffer(t, "ab")
	if err := s.Insert(3, "x"); err == nil {
		t.Fatalf("expected out of range error")
	}
	if err := s.Insert(-1, "x"); err == nil {
		t.Fatalf("expected negative position error")
	}
	if got := snapshot(t, s); got != "ab" {
		t.Fatalf("failed insert must not mutate, got %q", got)
	}
}

func TestBufferDelete(t *testing.T) {
	s := mustBuffer(t, "hello world")
	if err := s.Delete(5, 6); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := snapshot(t, s); got != "hello" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestBufferDeleteOutOfRange(t *testing.T) {
	s := mustBuffer(t, "abc")
	if err := s.Delete(1, 5); err == nil {
		t.Fatalf("expected out of range error")
	}
	if err := s.Delete(-1, 1); err == nil {
		t.Fatalf("expected negative position error")
	}
}

func TestBufferRunePositions(t *testing.T) {
	// Positions are rune indices, not byte offsets.
	s := mustBuffer(t, "héllo")
	if err := s.Insert(2, "X"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := snapshot(t, s); got != "héXllo" {
		t.Fatalf("unexpected text %q", got)
	}
	if err := s.Delete(1, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := snapshot(t, s); got != "hllo" {
		t.Fatalf("unexpected text %q", got)
	}
}
