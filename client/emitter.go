package client

import (
	"sync/atomic"

	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
)

// Sender accepts an outbound frame only if it can do so without waiting.
type Sender interface {
	TrySend(b []byte) bool
}

// Emitter pushes the local position once per tick. A sample the sender
// cannot take right away is dropped; the next tick supersedes it.
type Emitter struct {
	sender  Sender
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewEmitter(s Sender) *Emitter {
	return &Emitter{sender: s}
}

func (e *Emitter) Tick(pos presence.State) bool {
	b, err := protocol.Encode(protocol.ClientMove{Position: pos})
	if err != nil || !e.sender.TrySend(b) {
		e.dropped.Add(1)
		return false
	}
	e.sent.Add(1)
	return true
}

func (e *Emitter) Sent() uint64    { return e.sent.Load() }
func (e *Emitter) Dropped() uint64 { return e.dropped.Load() }
