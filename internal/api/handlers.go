package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Agate-DB/Carnelia-Collab/internal/protocol"
	"github.com/Agate-DB/Carnelia-Collab/internal/server"
	"github.com/Agate-DB/Carnelia-Collab/internal/session"
	"github.com/Agate-DB/Carnelia-Collab/internal/utils"
)

type Handlers struct {
	log   *utils.Logger
	relay *server.Relay
	hub   *session.Hub
}

func NewHandlers(log *utils.Logger, relay *server.Relay, hub *session.Hub) *Handlers {
	return &Handlers{log: log, relay: relay, hub: hub}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// CollabWS runs the relay protocol over a websocket: one protocol message
// per text frame, same state machine as the TCP listener.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.relay.HandleStream(r.Context(), newWSStream(conn))
}

// GetDocument serves the current snapshot of an already-open document.
// When join auth is enabled the caller must present a bearer token for
// the room.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "room")
	docName := chi.URLParam(r, "doc")

	if utils.AuthRequired() {
		token, err := utils.ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		claims, err := utils.ValidateJoinToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if claims.Room != roomName {
			http.Error(w, "token not valid for this room", http.StatusForbidden)
			return
		}
	}

	room, ok := h.hub.Get(roomName)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	doc, ok := room.GetDocument(docName)
	if !ok {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	text, version, err := doc.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, protocol.SyncResponse{Room: roomName, Doc: docName, Text: text, Version: version})
}

type wsStream struct {
	conn *websocket.Conn
}

func newWSStream(conn *websocket.Conn) server.Stream { return &wsStream{conn: conn} }

func (s *wsStream) ReadLine() ([]byte, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

// wsWriteTimeout bounds one outbound frame so a stalled peer cannot park
// the session's writer goroutine forever.
const wsWriteTimeout = 10 * time.Second

func (s *wsStream) WriteLine(line []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, line)
}

func (s *wsStream) Close() error { return s.conn.Close() }

func (s *wsStream) RemoteAddr() string { return s.conn.RemoteAddr().String() }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
