package session

import (
	"sync"
	"unicode/utf8"

	"github.com/Agate-DB/Carnelia-Collab/internal/store"
)

// Document is the serialization point for one (room, doc) pair. All
// mutation traffic for the document funnels through its mutex; documents
// in other rooms or under other names share nothing. Cursors live behind
// their own lock so presence bookkeeping never contends with applies.
type Document struct {
	Room string
	Name string

	mu    sync.Mutex // guards store and seq
	store store.Store
	seq   uint64

	onChange func()

	cursorMu sync.Mutex
	cursors  map[int]int // user id -> clamped byte offset
}

func NewDocument(room, name string, eng store.Store) *Document {
	return &Document{
		Room:    room,
		Name:    name,
		store:   eng,
		cursors: make(map[int]int),
	}
}

// SetChangeHook registers a callback invoked after every content change,
// outside the document lock. The persistence writer hangs off this.
func (d *Document) SetChangeHook(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// ApplyInsert clamps pos to the nearest rune boundary of the current
// content and inserts text there. Out-of-range positions clamp to the
// start or end; they are never an error. notify, when non-nil, runs with
// the assigned sequence number before the document unlocks, so callers
// can fan acknowledgements out in exactly the order sequence numbers
// were assigned.
func (d *Document) ApplyInsert(pos int, text string, notify func(seq uint64)) (uint64, error) {
	d.mu.Lock()
	cur, err := d.store.Snapshot()
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}
	mutated := false
	if text != "" {
		b := clampToBoundary(cur, pos)
		if err := d.store.Insert(utf8.RuneCountInString(cur[:b]), text); err != nil {
			d.mu.Unlock()
			return 0, err
		}
		mutated = true
	}
	d.seq++
	seq := d.seq
	if notify != nil {
		notify(seq)
	}
	hook := d.onChange
	d.mu.Unlock()

	if mutated && hook != nil {
		hook()
	}
	return seq, nil
}

// ApplyDelete clamps the range to the current content. A range that
// clamps to nothing is still an accepted, ordered operation and consumes
// a sequence number. notify behaves as in ApplyInsert.
func (d *Document) ApplyDelete(pos, length int, notify func(seq uint64)) (uint64, error) {
	d.mu.Lock()
	cur, err := d.store.Snapshot()
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}
	if length < 0 {
		length = 0
	}
	start := clampToBoundary(cur, pos)
	end := clampToBoundary(cur, start+length)
	mutated := false
	if start < end {
		runeStart := utf8.RuneCountInString(cur[:start])
		runeLen := utf8.RuneCountInString(cur[start:end])
		if err := d.store.Delete(runeStart, runeLen); err != nil {
			d.mu.Unlock()
			return 0, err
		}
		mutated = true
	}
	d.seq++
	seq := d.seq
	if notify != nil {
		notify(seq)
	}
	hook := d.onChange
	d.mu.Unlock()

	if mutated && hook != nil {
		hook()
	}
	return seq, nil
}

// RecordCursor stores the clamped cursor position for a user. Cursors do
// not touch content or the sequence counter.
func (d *Document) RecordCursor(userID, pos int) int {
	d.mu.Lock()
	cur, err := d.store.Snapshot()
	d.mu.Unlock()
	if err != nil {
		cur = ""
	}
	clamped := clampToBoundary(cur, pos)
	d.cursorMu.Lock()
	d.cursors[userID] = clamped
	d.cursorMu.Unlock()
	return clamped
}

func (d *Document) DropCursor(userID int) {
	d.cursorMu.Lock()
	delete(d.cursors, userID)
	d.cursorMu.Unlock()
}

// Cursors returns a copy of the current cursor map.
func (d *Document) Cursors() map[int]int {
	d.cursorMu.Lock()
	defer d.cursorMu.Unlock()
	out := make(map[int]int, len(d.cursors))
	for id, pos := range d.cursors {
		out[id] = pos
	}
	return out
}

// Snapshot returns the full current content and the last assigned
// sequence number.
func (d *Document) Snapshot() (string, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, err := d.store.Snapshot()
	if err != nil {
		return "", d.seq, err
	}
	return text, d.seq, nil
}

// clampToBoundary pulls a byte offset into [0, len(s)] and then back to
// the nearest rune start so a multi-byte character is never split.
func clampToBoundary(s string, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(s) {
		pos = len(s)
	}
	for pos > 0 && pos < len(s) && !utf8.RuneStart(s[pos]) {
		pos--
	}
	return pos
}
