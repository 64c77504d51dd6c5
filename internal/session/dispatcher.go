package session

import (
	"fmt"

	"github.com/Agate-DB/Carnelia-Collab/internal/metrics"
	"github.com/Agate-DB/Carnelia-Collab/internal/protocol"
	"github.com/Agate-DB/Carnelia-Collab/internal/utils"
)

// PresenceScope controls whether Presence broadcasts cover the whole room
// or only sessions bound to the same document.
type PresenceScope int

const (
	PresenceRoomWide PresenceScope = iota
	PresencePerDoc
)

func ParsePresenceScope(s string) (PresenceScope, error) {
	switch s {
	case "", "room":
		return PresenceRoomWide, nil
	case "doc":
		return PresencePerDoc, nil
	default:
		return PresenceRoomWide, fmt.Errorf("invalid presence scope %q (want room or doc)", s)
	}
}

// Dispatcher fans accepted operations out to room members. Delivery never
// blocks: a session that cannot keep up is closed, removed from its room,
// and its departure is announced to the remaining members.
type Dispatcher struct {
	log   *utils.Logger
	scope PresenceScope
}

func NewDispatcher(log *utils.Logger, scope PresenceScope) *Dispatcher {
	return &Dispatcher{log: log, scope: scope}
}

// Applied notifies every session on the same room+doc, including the
// originator, so everyone observes the same acknowledgement order.
func (d *Dispatcher) Applied(room *Room, msg protocol.Applied) {
	line, err := protocol.EncodeServer(msg)
	if err != nil {
		d.log.Error("encode applied", "room", room.Name, "doc", msg.Doc, "error", err.Error())
		return
	}
	d.fanOut(room, msg.Doc, line, func(c *Client) bool { return c.DocName == msg.Doc })
}

// Presence recomputes and broadcasts the presence snapshot. docName names
// the document whose activity triggered the broadcast; with room-wide
// scope the snapshot itself still covers the whole room.
func (d *Dispatcher) Presence(room *Room, docName string) {
	docScoped := d.scope == PresencePerDoc
	users, cursors := room.Presence(docName, docScoped)
	line, err := protocol.EncodeServer(protocol.Presence{
		Room:    room.Name,
		Doc:     docName,
		Users:   users,
		Cursors: cursors,
	})
	if err != nil {
		d.log.Error("encode presence", "room", room.Name, "doc", docName, "error", err.Error())
		return
	}
	d.fanOut(room, docName, line, func(c *Client) bool {
		return !docScoped || c.DocName == docName
	})
}

// Users returns the scope-appropriate user list, as carried by Welcome.
func (d *Dispatcher) Users(room *Room, docName string) []protocol.UserInfo {
	users, _ := room.Presence(docName, d.scope == PresencePerDoc)
	return users
}

// fanOut delivers one encoded line to every room member passing include.
// A session whose queue is full or closed is evicted from the room on the
// spot and a fresh Presence snapshot is broadcast, so remaining members
// observe the departure without waiting for the dead connection to
// unwind. The rebroadcast recurses through fanOut; it terminates because
// every level that recurses has removed at least one member.
func (d *Dispatcher) fanOut(room *Room, docName string, line []byte, include func(*Client) bool) {
	var failed []*Client
	for _, c := range room.Clients() {
		if !include(c) {
			continue
		}
		if c.Send(line) {
			continue
		}
		metrics.BroadcastDrops.Inc()
		d.log.Warn("dropping slow session", "conn", c.ID, "user", c.Name, "room", c.RoomName)
		failed = append(failed, c)
	}
	if len(failed) == 0 {
		return
	}
	for _, c := range failed {
		room.Leave(c)
	}
	d.Presence(room, docName)
}
