package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dylanconnolly/starparty-be/presence"
)

var ErrMalformedMessage = errors.New("malformed message")

type envelope struct {
	Type Type `json:"type"`
}

type identifyFrame struct {
	Type     Type    `json:"type" jsonschema:"enum=identify"`
	Username *string `json:"username"`
}

// clientMoveFrame has no id field: an id sent by a client, of any JSON
// type, is skipped like any other unknown field.
type clientMoveFrame struct {
	Type     Type            `json:"type" jsonschema:"enum=move"`
	Position *presence.State `json:"position"`
}

type syncFrame struct {
	Type    Type      `json:"type" jsonschema:"enum=sync"`
	Players *[]Player `json:"players"`
}

type joinFrame struct {
	Type   Type    `json:"type" jsonschema:"enum=join"`
	Player *Player `json:"player"`
}

type leaveFrame struct {
	Type Type    `json:"type" jsonschema:"enum=leave"`
	ID   *string `json:"id"`
}

type serverMoveFrame struct {
	Type     Type            `json:"type" jsonschema:"enum=move"`
	ID       *string         `json:"id"`
	Position *presence.State `json:"position"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

func readType(data []byte) (Type, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", malformed("%s", err)
	}
	if env.Type == "" {
		return "", malformed("missing type")
	}
	return env.Type, nil
}

func unmarshalFrame(data []byte, t Type, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return malformed("%s: %s", t, err)
	}
	return nil
}

// DecodeClient parses a frame sent by a participant. Only identify and
// move are accepted; any id carried by a move is discarded.
func DecodeClient(data []byte) (Message, error) {
	t, err := readType(data)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeIdentify:
		var f identifyFrame
		if err := unmarshalFrame(data, t, &f); err != nil {
			return nil, err
		}
		if f.Username == nil {
			return nil, malformed("identify: missing username")
		}
		name := strings.TrimSpace(*f.Username)
		if name == "" {
			return nil, malformed("identify: empty username")
		}
		if len(name) > maxUsernameLen {
			return nil, malformed("identify: username longer than %d bytes", maxUsernameLen)
		}
		return Identify{Username: name}, nil
	case TypeMove:
		var f clientMoveFrame
		if err := unmarshalFrame(data, t, &f); err != nil {
			return nil, err
		}
		if f.Position == nil {
			return nil, malformed("move: missing position")
		}
		return ClientMove{Position: *f.Position}, nil
	}

	return nil, malformed("unexpected client message type %q", t)
}

// DecodeServer parses a frame relayed by the server.
func DecodeServer(data []byte) (Message, error) {
	t, err := readType(data)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeSync:
		var f syncFrame
		if err := unmarshalFrame(data, t, &f); err != nil {
			return nil, err
		}
		if f.Players == nil {
			return nil, malformed("sync: missing players")
		}
		for i, p := range *f.Players {
			if err := validatePlayer(p); err != nil {
				return nil, malformed("sync: player %d: %s", i, err)
			}
		}
		return Sync{Players: *f.Players}, nil
	case TypeJoin:
		var f joinFrame
		if err := unmarshalFrame(data, t, &f); err != nil {
			return nil, err
		}
		if f.Player == nil {
			return nil, malformed("join: missing player")
		}
		if err := validatePlayer(*f.Player); err != nil {
			return nil, malformed("join: %s", err)
		}
		return Join{Player: *f.Player}, nil
	case TypeLeave:
		var f leaveFrame
		if err := unmarshalFrame(data, t, &f); err != nil {
			return nil, err
		}
		if f.ID == nil || *f.ID == "" {
			return nil, malformed("leave: missing id")
		}
		return Leave{ID: *f.ID}, nil
	case TypeMove:
		var f serverMoveFrame
		if err := unmarshalFrame(data, t, &f); err != nil {
			return nil, err
		}
		if f.ID == nil || *f.ID == "" {
			return nil, malformed("move: missing id")
		}
		if f.Position == nil {
			return nil, malformed("move: missing position")
		}
		return ServerMove{ID: *f.ID, Position: *f.Position}, nil
	}

	return nil, malformed("unexpected server message type %q", t)
}

func validatePlayer(p Player) error {
	if p.ID == "" {
		return errors.New("missing id")
	}
	if p.Position.Kind == "" {
		return errors.New("missing position")
	}
	return nil
}

// Encode renders m as a text frame.
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case Identify:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Identify
		}{m.Type(), m})
	case ClientMove:
		return json.Marshal(struct {
			Type Type `json:"type"`
			ClientMove
		}{m.Type(), m})
	case Sync:
		if m.Players == nil {
			m.Players = []Player{}
		}
		return json.Marshal(struct {
			Type Type `json:"type"`
			Sync
		}{m.Type(), m})
	case Join:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Join
		}{m.Type(), m})
	case Leave:
		return json.Marshal(struct {
			Type Type `json:"type"`
			Leave
		}{m.Type(), m})
	case ServerMove:
		return json.Marshal(struct {
			Type Type `json:"type"`
			ServerMove
		}{m.Type(), m})
	}

	return nil, fmt.Errorf("encode: unsupported message %T", m)
}

// MustEncode is for messages built from already validated state.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}
