package session

import (
	"sync"
	"testing"

	"github.com/Agate-DB/Carnelia-Collab/internal/store"
)

func newTestDocument(t *testing.T, initial string) *Document {
	t.Helper()
	eng, err := store.NewBuffer(initial)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	return NewDocument("room", "doc", eng)
}

func mustSnapshot(t *testing.T, d *Document) (string, uint64) {
	t.Helper()
	text, version, err := d.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return text, version
}

func TestApplyInsertAssignsSequence(t *testing.T) {
	d := newTestDocument(t, "")
	seq, err := d.ApplyInsert(0, "hi", nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}
	seq, err = d.ApplyInsert(2, "!", nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected seq 2, got %d", seq)
	}
	text, version := mustSnapshot(t, d)
	if text != "hi!" || version != 2 {
		t.Fatalf("unexpected state %q v%d", text, version)
	}
}

func TestApplyInsertClampsOutOfRange(t *testing.T) {
	d := newTestDocument(t, "ab")
	if _, err := d.ApplyInsert(100, "!", nil); err != nil {
		t.Fatalf("insert past end: %v", err)
	}
	if _, err := d.ApplyInsert(-5, ">", nil); err != nil {
		t.Fatalf("insert before start: %v", err)
	}
	text, _ := mustSnapshot(t, d)
	if text != ">ab!" {
		t.Fatalf("expected clamped inserts, got %q", text)
	}
}

func TestApplyInsertEmptyTextStillOrders(t *testing.T) {
	d := newTestDocument(t, "abc")
	calls := 0
	d.SetChangeHook(func() { calls++ })

	seq, err := d.ApplyInsert(1, "", nil)
	if err != nil {
		t.Fatalf("empty insert: %v", err)
	}
	if seq != 1 {
		t.Fatalf("empty insert must consume a sequence number, got %d", seq)
	}
	text, _ := mustSnapshot(t, d)
	if text != "abc" {
		t.Fatalf("empty insert must not mutate, got %q", text)
	}
	if calls != 0 {
		t.Fatalf("no-op must not mark the document dirty")
	}
}

func TestApplyInsertInsideMultibyteRune(t *testing.T) {
	// "é" occupies bytes [1,3); an offset landing inside it pulls back to
	// the rune start.
	d := newTestDocument(t, "héllo")
	if _, err := d.ApplyInsert(2, "X", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	text, _ := mustSnapshot(t, d)
	if text != "hXéllo" {
		t.Fatalf("expected boundary clamp, got %q", text)
	}
}

func TestApplyDeleteClampsRange(t *testing.T) {
	d := newTestDocument(t, "hello")
	seq, err := d.ApplyDelete(1, 100, nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}
	text, _ := mustSnapshot(t, d)
	if text != "h" {
		t.Fatalf("expected clamped delete, got %q", text)
	}
}

func TestApplyDeleteEmptyRangeStillOrders(t *testing.T) {
	d := newTestDocument(t, "abc")
	calls := 0
	d.SetChangeHook(func() { calls++ })

	seq, err := d.ApplyDelete(50, 10, nil)
	if err != nil {
		t.Fatalf("delete past end: %v", err)
	}
	if seq != 1 {
		t.Fatalf("empty delete must consume a sequence number, got %d", seq)
	}
	if _, err := d.ApplyDelete(0, -3, nil); err != nil {
		t.Fatalf("negative length: %v", err)
	}
	text, version := mustSnapshot(t, d)
	if text != "abc" || version != 2 {
		t.Fatalf("unexpected state %q v%d", text, version)
	}
	if calls != 0 {
		t.Fatalf("no-op must not mark the document dirty")
	}
}

func TestApplyDeleteMultibyte(t *testing.T) {
	d := newTestDocument(t, "héllo")
	// Start and end both clamp into the é, collapsing the range.
	seq, err := d.ApplyDelete(2, 1, nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}
	text, _ := mustSnapshot(t, d)
	if text != "héllo" {
		t.Fatalf("collapsed range must not mutate, got %q", text)
	}

	// A range covering the whole rune removes it.
	if _, err := d.ApplyDelete(1, 2, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	text, _ = mustSnapshot(t, d)
	if text != "hllo" {
		t.Fatalf("expected rune removed, got %q", text)
	}
}

func TestApplyNotifySeesAssignedSequence(t *testing.T) {
	d := newTestDocument(t, "")
	var notified uint64
	seq, err := d.ApplyInsert(0, "x", func(s uint64) { notified = s })
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if notified != seq || notified != 1 {
		t.Fatalf("notify saw %d, Apply returned %d", notified, seq)
	}

	seq, err = d.ApplyDelete(0, 1, func(s uint64) { notified = s })
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if notified != seq || notified != 2 {
		t.Fatalf("notify saw %d, Apply returned %d", notified, seq)
	}
}

func TestConcurrentAppliesNotifyInSequenceOrder(t *testing.T) {
	d := newTestDocument(t, "")
	const writers = 8

	// Notify runs under the document lock, so appending here needs no
	// extra synchronisation and the slice records delivery order.
	var order []uint64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.ApplyInsert(0, "x", func(s uint64) {
				order = append(order, s)
			}); err != nil {
				t.Errorf("insert: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(order) != writers {
		t.Fatalf("expected %d notifications, got %d", writers, len(order))
	}
	for i, s := range order {
		if s != uint64(i+1) {
			t.Fatalf("notifications out of order: %v", order)
		}
	}
}

func TestChangeHookFiresOnMutation(t *testing.T) {
	d := newTestDocument(t, "")
	calls := 0
	d.SetChangeHook(func() { calls++ })

	if _, err := d.ApplyInsert(0, "x", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := d.ApplyDelete(0, 1, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 hook calls, got %d", calls)
	}
}

func TestRecordCursorClampsAndSkipsSequence(t *testing.T) {
	d := newTestDocument(t, "hi")
	if _, err := d.ApplyInsert(2, "!", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if got := d.RecordCursor(1, 100); got != 3 {
		t.Fatalf("expected cursor clamped to 3, got %d", got)
	}
	if got := d.RecordCursor(2, -4); got != 0 {
		t.Fatalf("expected cursor clamped to 0, got %d", got)
	}

	_, version := mustSnapshot(t, d)
	if version != 1 {
		t.Fatalf("cursor moves must not consume sequence numbers, got v%d", version)
	}

	cursors := d.Cursors()
	if cursors[1] != 3 || cursors[2] != 0 || len(cursors) != 2 {
		t.Fatalf("unexpected cursors %#v", cursors)
	}

	d.DropCursor(1)
	if cursors := d.Cursors(); len(cursors) != 1 {
		t.Fatalf("expected cursor dropped, got %#v", cursors)
	}
}

func TestClampToBoundary(t *testing.T) {
	s := "héllo" // é at bytes [1,3)
	if got := clampToBoundary(s, -1); got != 0 {
		t.Fatalf("negative: got %d", got)
	}
	if got := clampToBoundary(s, 2); got != 1 {
		t.Fatalf("mid-rune: got %d", got)
	}
	if got := clampToBoundary(s, 3); got != 3 {
		t.Fatalf("boundary: got %d", got)
	}
	if got := clampToBoundary(s, 100); got != len(s) {
		t.Fatalf("past end: got %d", got)
	}
}
