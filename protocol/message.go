package protocol

import (
	"github.com/dylanconnolly/starparty-be/presence"
)

type Type string

const (
	TypeIdentify Type = "identify"
	TypeSync     Type = "sync"
	TypeJoin     Type = "join"
	TypeLeave    Type = "leave"
	TypeMove     Type = "move"
)

const maxUsernameLen = 64

// Message is the closed set of frames exchanged over a room socket. Only
// the types in this package implement it.
type Message interface {
	Type() Type
	message()
}

// Player is one participant entry in sync and join frames.
type Player struct {
	ID       string         `json:"id"`
	Username string         `json:"username,omitempty"`
	Position presence.State `json:"position"`
}

func PlayerFromRecord(r presence.SessionRecord) Player {
	p := Player{ID: r.ID, Username: r.Username}
	if r.State != nil {
		p.Position = *r.State
	}
	return p
}

// Identify declares a display name. Client to server.
type Identify struct {
	Username string `json:"username"`
}

// ClientMove is a position report from the local participant. It never
// names an id; the server attributes it to the sending connection.
type ClientMove struct {
	Position presence.State `json:"position"`
}

// Sync carries the full active membership of a room. Server to client,
// once per connection.
type Sync struct {
	Players []Player `json:"players"`
}

// Join announces one newly active participant. Server to client.
type Join struct {
	Player Player `json:"player"`
}

// Leave announces that a participant is gone. Server to client.
type Leave struct {
	ID string `json:"id"`
}

// ServerMove relays another participant's position. Server to client.
type ServerMove struct {
	ID       string         `json:"id"`
	Position presence.State `json:"position"`
}

func (Identify) Type() Type   { return TypeIdentify }
func (ClientMove) Type() Type { return TypeMove }
func (Sync) Type() Type       { return TypeSync }
func (Join) Type() Type       { return TypeJoin }
func (Leave) Type() Type      { return TypeLeave }
func (ServerMove) Type() Type { return TypeMove }

func (Identify) message()   {}
func (ClientMove) message() {}
func (Sync) message()       {}
func (Join) message()       {}
func (Leave) message()      {}
func (ServerMove) message() {}
