package presence

import (
	"errors"
	"time"
)

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrUnknownConnection   = errors.New("connection not registered")
	ErrMissingIdentity     = errors.New("connection carries no initial position")
)

type Variant string

const (
	VariantSpace Variant = "space"
	VariantGlobe Variant = "globe"
)

// StateKind returns the shape of state accepted by rooms of this variant.
func (v Variant) StateKind() StateKind {
	if v == VariantGlobe {
		return StateKindGeo
	}
	return StateKindVec
}

// SessionRecord is the server's view of one live connection.
type SessionRecord struct {
	ID        string    `json:"id"`
	Username  string    `json:"username,omitempty"`
	State     *State    `json:"position,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the record has reported a state yet.
func (r SessionRecord) Active() bool {
	return r.State != nil
}

func (r SessionRecord) clone() SessionRecord {
	c := r
	if r.State != nil {
		st := *r.State
		c.State = &st
	}
	return c
}
