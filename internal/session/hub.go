package session

import (
	"sync"

	"github.com/Agate-DB/Carnelia-Collab/internal/metrics"
)

// Hub is the room registry. It is handed to every connection handler;
// there is no process-wide singleton.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	open  DocumentOpener
}

func NewHub(open DocumentOpener) *Hub {
	return &Hub{rooms: make(map[string]*Room), open: open}
}

// GetOrCreate is idempotent under concurrent first access: at most one
// Room instance ever exists per name.
func (h *Hub) GetOrCreate(name string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[name]; ok {
		return r
	}
	r := NewRoom(name, h.open)
	h.rooms[name] = r
	metrics.RoomsCreated.Inc()
	return r
}

func (h *Hub) Get(name string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[name]
	return r, ok
}
