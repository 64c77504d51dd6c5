package store

// Store is the capability boundary to the text merge engine. Positions are
// rune indices; callers are responsible for byte-offset clamping and
// conversion. Conflict resolution and internal representation are the
// engine's business.
type Store interface {
	Insert(pos int, text string) error
	Delete(pos, n int) error
	Snapshot() (string, error)
}

// Factory opens a Store seeded with initial content.
type Factory func(initial string) (Store, error)
