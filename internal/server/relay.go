package server

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"

	"github.com/Agate-DB/Carnelia-Collab/internal/metrics"
	"github.com/Agate-DB/Carnelia-Collab/internal/protocol"
	"github.com/Agate-DB/Carnelia-Collab/internal/session"
	"github.com/Agate-DB/Carnelia-Collab/internal/storage"
	"github.com/Agate-DB/Carnelia-Collab/internal/store"
	"github.com/Agate-DB/Carnelia-Collab/internal/utils"
)

// ErrLineTooLong marks an inbound line over protocol.MaxLineBytes.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Stream is one client connection, whatever the transport. ReadLine
// returns a single unframed protocol line; WriteLine frames and sends
// one. Implementations are driven by exactly one reader and one writer
// goroutine.
type Stream interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte) error
	Close() error
	RemoteAddr() string
}

// Relay owns the protocol state machine: it decodes client messages,
// applies them through the session layer, and fans results out.
type Relay struct {
	log        *utils.Logger
	hub        *session.Hub
	dispatch   *session.Dispatcher
	writer     *storage.Writer
	nextUserID atomic.Int64
}

func NewRelay(log *utils.Logger, hub *session.Hub, dispatch *session.Dispatcher, writer *storage.Writer) *Relay {
	return &Relay{log: log, hub: hub, dispatch: dispatch, writer: writer}
}

// DocumentOpener wires documents to persisted snapshots: content loads
// from the writer on first open, and every later change marks the
// document dirty for the flush loop.
func DocumentOpener(writer *storage.Writer, engine store.Factory) session.DocumentOpener {
	return func(room, docName string) (*session.Document, error) {
		initial, err := writer.Load(room, docName)
		if err != nil {
			return nil, err
		}
		eng, err := engine(initial)
		if err != nil {
			return nil, err
		}
		d := session.NewDocument(room, docName, eng)
		d.SetChangeHook(func() {
			writer.MarkDirty(room, docName, snapshotSource(d))
		})
		return d, nil
	}
}

func snapshotSource(d *session.Document) storage.SnapshotSource {
	return func() (string, error) {
		text, _, err := d.Snapshot()
		return text, err
	}
}

// HandleStream runs one connection to completion. It returns when the
// peer disconnects, a fatal protocol error occurs, or the session is torn
// down for falling behind.
func (r *Relay) HandleStream(ctx context.Context, s Stream) {
	client := session.NewClient()

	// Sole writer for the stream: drains the outbound queue, then any
	// best-effort leftovers after close, and finally closes the stream to
	// unblock the reader.
	go func() {
		defer s.Close()
		for {
			select {
			case line := <-client.Outbound():
				if err := s.WriteLine(line); err != nil {
					client.Close()
					return
				}
			case <-client.Done():
				for {
					select {
					case line := <-client.Outbound():
						if err := s.WriteLine(line); err != nil {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	var (
		joined bool
		room   *session.Room
		doc    *session.Document
	)
	defer func() {
		client.Close()
		if joined {
			room.Leave(client)
			r.dispatch.Presence(room, client.DocName)
			r.log.Info("session closed", "conn", client.ID, "user", client.Name,
				"room", client.RoomName, "doc", client.DocName)
		}
	}()

	for {
		line, err := s.ReadLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				metrics.ProtocolErrors.Inc()
				r.fail(client, "line exceeds maximum length")
			}
			return
		}
		// The dispatcher may have torn this session down for falling
		// behind; stop applying its operations.
		if client.Closed() {
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		msg, err := protocol.DecodeClient(line)
		if err != nil {
			metrics.ProtocolErrors.Inc()
			r.log.Warn("protocol error", "conn", client.ID, "remote", s.RemoteAddr(), "error", err.Error())
			r.fail(client, err.Error())
			return
		}

		if join, ok := msg.(protocol.Join); ok {
			if joined {
				metrics.ProtocolErrors.Inc()
				r.fail(client, "already joined; open a new connection to switch rooms")
				return
			}
			if !r.handleJoin(client, join, &room, &doc) {
				return
			}
			joined = true
			continue
		}

		if !joined {
			metrics.ProtocolErrors.Inc()
			r.fail(client, "Join must be the first message")
			return
		}

		switch m := msg.(type) {
		case protocol.Insert:
			// The broadcast runs inside the document's serialization
			// point so acknowledgements leave in sequence order.
			_, err := doc.ApplyInsert(m.Pos, m.Text, func(seq uint64) {
				metrics.OpsApplied.WithLabelValues("insert").Inc()
				r.dispatch.Applied(room, protocol.Applied{
					UserID:  client.UserID,
					Room:    room.Name,
					Doc:     doc.Name,
					Op:      protocol.Op{Insert: &m},
					Version: seq,
				})
			})
			if err != nil {
				r.sendError(client, "failed to apply insert")
				r.log.Error("apply insert", "conn", client.ID, "room", room.Name, "doc", doc.Name, "error", err.Error())
			}
		case protocol.Delete:
			_, err := doc.ApplyDelete(m.Pos, m.Len, func(seq uint64) {
				metrics.OpsApplied.WithLabelValues("delete").Inc()
				r.dispatch.Applied(room, protocol.Applied{
					UserID:  client.UserID,
					Room:    room.Name,
					Doc:     doc.Name,
					Op:      protocol.Op{Delete: &m},
					Version: seq,
				})
			})
			if err != nil {
				r.sendError(client, "failed to apply delete")
				r.log.Error("apply delete", "conn", client.ID, "room", room.Name, "doc", doc.Name, "error", err.Error())
			}
		case protocol.Cursor:
			doc.RecordCursor(client.UserID, m.Pos)
			r.dispatch.Presence(room, doc.Name)
		case protocol.SyncRequest:
			text, version, err := doc.Snapshot()
			if err != nil {
				r.sendError(client, "failed to read document")
				continue
			}
			r.send(client, protocol.SyncResponse{
				Room:    room.Name,
				Doc:     doc.Name,
				Text:    text,
				Version: version,
			})
			r.writer.MarkDirty(doc.Room, doc.Name, snapshotSource(doc))
		case protocol.Ping:
			// liveness only; no reply
		}
	}
}

func (r *Relay) handleJoin(client *session.Client, join protocol.Join, room **session.Room, doc **session.Document) bool {
	if utils.AuthRequired() {
		claims, err := utils.ValidateJoinToken(join.Token)
		if err != nil {
			r.fail(client, "invalid join token")
			return false
		}
		if claims.Room != join.Room || claims.User != join.User {
			r.fail(client, "join token does not match room or user")
			return false
		}
	}

	rm := r.hub.GetOrCreate(join.Room)
	d, err := rm.Document(join.Doc)
	if err != nil {
		r.log.Error("open document", "room", join.Room, "doc", join.Doc, "error", err.Error())
		r.fail(client, "failed to open document")
		return false
	}
	text, version, err := d.Snapshot()
	if err != nil {
		r.fail(client, "failed to read document")
		return false
	}

	client.UserID = int(r.nextUserID.Add(1))
	client.Name = join.User
	client.RoomName = join.Room
	client.DocName = join.Doc

	rm.Join(client)
	*room = rm
	*doc = d

	r.send(client, protocol.Welcome{
		UserID:  client.UserID,
		Room:    join.Room,
		Doc:     join.Doc,
		Text:    text,
		Version: version,
		Users:   r.dispatch.Users(rm, join.Doc),
	})
	r.dispatch.Presence(rm, join.Doc)
	r.log.Info("session joined", "conn", client.ID, "user", join.User,
		"user_id", client.UserID, "room", join.Room, "doc", join.Doc)
	return true
}

// send encodes and enqueues a reply for the originator only.
func (r *Relay) send(client *session.Client, msg protocol.ServerMessage) {
	line, err := protocol.EncodeServer(msg)
	if err != nil {
		r.log.Error("encode reply", "conn", client.ID, "error", err.Error())
		return
	}
	client.Send(line)
}

func (r *Relay) sendError(client *session.Client, reason string) {
	r.send(client, protocol.Error{Message: reason})
}

// fail delivers one best-effort Error and terminates the session.
func (r *Relay) fail(client *session.Client, reason string) {
	r.sendError(client, reason)
	client.Close()
}
