package store

import (
	"github.com/automerge/automerge-go"
)

// CRDT is the default engine, an automerge document with a single text
// field at the root. The document carries full operation history, so a
// future multi-server deployment can sync replicas instead of shipping
// snapshots.
type CRDT struct {
	doc  *automerge.Doc
	text *automerge.Text
}

func NewCRDT(initial string) (Store, error) {
	doc := automerge.New()
	text := automerge.NewText(initial)
	if err := doc.RootMap().Set("content", text); err != nil {
		return nil, err
	}
	return &CRDT{doc: doc, text: text}, nil
}

func (c *CRDT) Insert(pos int, text string) error {
	return c.text.Insert(pos, text)
}

func (c *CRDT) Delete(pos, n int) error {
	return c.text.Delete(pos, n)
}

func (c *CRDT) Snapshot() (string, error) {
	return c.text.Get()
}
