package session

import (
	"sort"
	"sync"

	"github.com/Agate-DB/Carnelia-Collab/internal/metrics"
	"github.com/Agate-DB/Carnelia-Collab/internal/protocol"
)

// DocumentOpener builds the Document for a (room, doc) pair, typically by
// loading the persisted snapshot into a fresh store engine.
type DocumentOpener func(room, doc string) (*Document, error)

// Room holds the sessions and named documents of one collaboration space.
// Rooms are created lazily and never destroyed while the process runs.
type Room struct {
	Name string

	open DocumentOpener

	mu      sync.Mutex
	clients map[*Client]struct{}
	docs    map[string]*Document
}

func NewRoom(name string, open DocumentOpener) *Room {
	return &Room{
		Name:    name,
		open:    open,
		clients: make(map[*Client]struct{}),
		docs:    make(map[string]*Document),
	}
}

func (r *Room) Join(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
	metrics.SessionsActive.Inc()
}

// Leave removes the session and its cursor. The caller is responsible for
// the follow-up Presence broadcast so remaining members observe the exit.
func (r *Room) Leave(c *Client) int {
	r.mu.Lock()
	_, present := r.clients[c]
	delete(r.clients, c)
	var doc *Document
	if d, ok := r.docs[c.DocName]; ok {
		doc = d
	}
	n := len(r.clients)
	r.mu.Unlock()

	if doc != nil {
		doc.DropCursor(c.UserID)
	}
	if present {
		metrics.SessionsActive.Dec()
	}
	return n
}

func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Clients returns a stable copy of the membership for fan-out.
func (r *Room) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Document returns the named document, creating it through the opener on
// first access. At most one Document ever exists per name.
func (r *Room) Document(name string) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[name]; ok {
		return d, nil
	}
	d, err := r.open(r.Name, name)
	if err != nil {
		return nil, err
	}
	r.docs[name] = d
	metrics.DocumentsOpen.Inc()
	return d, nil
}

// GetDocument is the read-only lookup used by the HTTP surface.
func (r *Room) GetDocument(name string) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[name]
	return d, ok
}

// Presence recomputes the live (user, cursor) view from current sessions.
// With docScoped set it is restricted to sessions bound to docName,
// otherwise it spans the whole room.
func (r *Room) Presence(docName string, docScoped bool) ([]protocol.UserInfo, map[int]int) {
	r.mu.Lock()
	users := make([]protocol.UserInfo, 0, len(r.clients))
	live := make(map[int]struct{}, len(r.clients))
	for c := range r.clients {
		if docScoped && c.DocName != docName {
			continue
		}
		users = append(users, protocol.UserInfo{ID: c.UserID, Name: c.Name})
		live[c.UserID] = struct{}{}
	}
	docs := make([]*Document, 0, len(r.docs))
	if docScoped {
		if d, ok := r.docs[docName]; ok {
			docs = append(docs, d)
		}
	} else {
		for _, d := range r.docs {
			docs = append(docs, d)
		}
	}
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	cursors := make(map[int]int)
	for _, d := range docs {
		for id, pos := range d.Cursors() {
			if _, ok := live[id]; ok {
				cursors[id] = pos
			}
		}
	}
	return users, cursors
}
