package server

import (
	"errors"
	"fmt"
)

type ConnState int

const (
	StateConnecting ConnState = iota
	StateIdentifying
	StateActive
	StateClosed
)

var ErrInvalidTransition = errors.New("invalid connection state transition")

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentifying:
		return "identifying"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// canTransition reports whether a connection may move from s to next.
// Closed is terminal and every state may close.
func (s ConnState) canTransition(next ConnState) bool {
	if s == StateClosed {
		return false
	}
	switch next {
	case StateIdentifying:
		return s == StateConnecting
	case StateActive:
		return s == StateConnecting || s == StateIdentifying
	case StateClosed:
		return true
	}
	return false
}
