package protocol

// Wire message model. Every message is a single JSON value on its own line,
// externally tagged: payload variants are a one-key object, unit variants a
// bare string ("Ping", "SyncRequest").

type UserInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

/*** Client → server ***/

type ClientMessage interface{ clientMessage() }

type Join struct {
	User  string `json:"user"`
	Room  string `json:"room"`
	Doc   string `json:"doc"`
	Token string `json:"token,omitempty"`
}

type Insert struct {
	Pos  int    `json:"pos"`
	Text string `json:"text"`
}

type Delete struct {
	Pos int `json:"pos"`
	Len int `json:"len"`
}

type Cursor struct {
	Pos int `json:"pos"`
}

type SyncRequest struct{}

type Ping struct{}

func (Join) clientMessage()        {}
func (Insert) clientMessage()      {}
func (Delete) clientMessage()      {}
func (Cursor) clientMessage()      {}
func (SyncRequest) clientMessage() {}
func (Ping) clientMessage()        {}

// Op is the accepted-mutation payload echoed inside Applied. Exactly one
// field is set.
type Op struct {
	Insert *Insert `json:"Insert,omitempty"`
	Delete *Delete `json:"Delete,omitempty"`
}

/*** Server → client ***/

type ServerMessage interface{ serverMessage() }

type Welcome struct {
	UserID  int        `json:"user_id"`
	Room    string     `json:"room"`
	Doc     string     `json:"doc"`
	Text    string     `json:"text"`
	Version uint64     `json:"version"`
	Users   []UserInfo `json:"users"`
}

type Applied struct {
	UserID  int    `json:"user_id"`
	Room    string `json:"room"`
	Doc     string `json:"doc"`
	Op      Op     `json:"op"`
	Version uint64 `json:"version"`
}

type Presence struct {
	Room    string      `json:"room"`
	Doc     string      `json:"doc"`
	Users   []UserInfo  `json:"users"`
	Cursors map[int]int `json:"cursors"`
}

type SyncResponse struct {
	Room    string `json:"room"`
	Doc     string `json:"doc"`
	Text    string `json:"text"`
	Version uint64 `json:"version"`
}

type Error struct {
	Message string `json:"message"`
}

func (Welcome) serverMessage()      {}
func (Applied) serverMessage()      {}
func (Presence) serverMessage()     {}
func (SyncResponse) serverMessage() {}
func (Error) serverMessage()        {}
