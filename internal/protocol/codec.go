package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxLineBytes bounds a single protocol line. Longer lines are a protocol
// error and fatal to the connection that sent them.
const MaxLineBytes = 1 << 20

var (
	ErrUnparseable  = errors.New("unparseable message")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// DecodeClient parses one line into a client message. Errors are all
// connection-fatal: ErrUnparseable for broken JSON or framing,
// ErrUnknownType for an unrecognized tag, ErrMissingField for a recognized
// tag lacking a required field.
func DecodeClient(line []byte) (ClientMessage, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrUnparseable
	}

	if line[0] == '"' {
		var tag string
		if err := json.Unmarshal(line, &tag); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
		}
		switch tag {
		case "SyncRequest":
			return SyncRequest{}, nil
		case "Ping":
			return Ping{}, nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
		}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one message tag", ErrUnparseable)
	}

	for tag, body := range envelope {
		switch tag {
		case "Join":
			var w struct {
				User  *string `json:"user"`
				Room  *string `json:"room"`
				Doc   *string `json:"doc"`
				Token *string `json:"token"`
			}
			if err := json.Unmarshal(body, &w); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
			}
			if w.User == nil {
				return nil, fmt.Errorf("%w: Join.user", ErrMissingField)
			}
			if w.Room == nil {
				return nil, fmt.Errorf("%w: Join.room", ErrMissingField)
			}
			if w.Doc == nil {
				return nil, fmt.Errorf("%w: Join.doc", ErrMissingField)
			}
			msg := Join{User: *w.User, Room: *w.Room, Doc: *w.Doc}
			if w.Token != nil {
				msg.Token = *w.Token
			}
			return msg, nil
		case "Insert":
			var w struct {
				Pos  *int    `json:"pos"`
				Text *string `json:"text"`
			}
			if err := json.Unmarshal(body, &w); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
			}
			if w.Pos == nil {
				return nil, fmt.Errorf("%w: Insert.pos", ErrMissingField)
			}
			if w.Text == nil {
				return nil, fmt.Errorf("%w: Insert.text", ErrMissingField)
			}
			return Insert{Pos: *w.Pos, Text: *w.Text}, nil
		case "Delete":
			var w struct {
				Pos *int `json:"pos"`
				Len *int `json:"len"`
			}
			if err := json.Unmarshal(body, &w); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
			}
			if w.Pos == nil {
				return nil, fmt.Errorf("%w: Delete.pos", ErrMissingField)
			}
			if w.Len == nil {
				return nil, fmt.Errorf("%w: Delete.len", ErrMissingField)
			}
			return Delete{Pos: *w.Pos, Len: *w.Len}, nil
		case "Cursor":
			var w struct {
				Pos *int `json:"pos"`
			}
			if err := json.Unmarshal(body, &w); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
			}
			if w.Pos == nil {
				return nil, fmt.Errorf("%w: Cursor.pos", ErrMissingField)
			}
			return Cursor{Pos: *w.Pos}, nil
		case "SyncRequest":
			return SyncRequest{}, nil
		case "Ping":
			return Ping{}, nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
		}
	}
	return nil, ErrUnparseable
}

// EncodeClient is the structural inverse of DecodeClient.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	switch m := msg.(type) {
	case Join:
		return json.Marshal(map[string]Join{"Join": m})
	case Insert:
		return json.Marshal(map[string]Insert{"Insert": m})
	case Delete:
		return json.Marshal(map[string]Delete{"Delete": m})
	case Cursor:
		return json.Marshal(map[string]Cursor{"Cursor": m})
	case SyncRequest:
		return json.Marshal("SyncRequest")
	case Ping:
		return json.Marshal("Ping")
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

type serverEnvelope struct {
	Welcome      *Welcome      `json:"Welcome,omitempty"`
	Applied      *Applied      `json:"Applied,omitempty"`
	Presence     *Presence     `json:"Presence,omitempty"`
	SyncResponse *SyncResponse `json:"SyncResponse,omitempty"`
	Error        *Error        `json:"Error,omitempty"`
}

// EncodeServer renders a server message as its tagged one-line JSON form.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	var env serverEnvelope
	switch m := msg.(type) {
	case Welcome:
		env.Welcome = &m
	case Applied:
		env.Applied = &m
	case Presence:
		env.Presence = &m
	case SyncResponse:
		env.SyncResponse = &m
	case Error:
		env.Error = &m
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return json.Marshal(env)
}

// DecodeServer parses one line into a server message. Used by the client
// binary and by tests.
func DecodeServer(line []byte) (ServerMessage, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrUnparseable
	}
	var env serverEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnparseable, err)
	}
	switch {
	case env.Welcome != nil:
		return *env.Welcome, nil
	case env.Applied != nil:
		return *env.Applied, nil
	case env.Presence != nil:
		return *env.Presence, nil
	case env.SyncResponse != nil:
		return *env.SyncResponse, nil
	case env.Error != nil:
		return *env.Error, nil
	default:
		return nil, ErrUnknownType
	}
}
