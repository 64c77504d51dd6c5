package store

import "fmt"

// Buffer is a plain in-memory engine with no merge semantics. It backs
// tests and servers that do not want the CRDT engine.
type Buffer struct {
	runes []rune
}

func NewBuffer(initial string) (Store, error) {
	return &Buffer{runes: []rune(initial)}, nil
}

func (b *Buffer) Insert(pos int, text string) error {
	if pos < 0 || pos > len(b.runes) {
		return fmt.Errorf("insert position %d out of range [0,%d]", pos, len(b.runes))
	}
	ins := []rune(text)
	out := make([]rune, 0, len(b.runes)+len(ins))
	out = append(out, b.runes[:pos]...)
	out = append(out, ins...)
	out = append(out, b.runes[pos:]...)
	b.runes = out
	return nil
}

func (b *Buffer) Delete(pos, n int) error {
	if pos < 0 || n < 0 || pos+n > len(b.runes) {
		return fmt.Errorf("delete range [%d,%d) out of range [0,%d]", pos, pos+n, len(b.runes))
	}
	b.runes = append(b.runes[:pos], b.runes[pos+n:]...)
	return nil
}

func (b *Buffer) Snapshot() (string, error) {
	return string(b.runes), nil
}
