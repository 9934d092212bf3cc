package client

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handle is whatever the renderer uses to address a remote participant.
type Handle any

// Renderer owns the visible representation of remote participants.
type Renderer interface {
	Create(p protocol.Player) Handle
	Move(h Handle, pos presence.State)
	Destroy(h Handle)
}

// Proxy is the local mirror of one remote participant.
type Proxy struct {
	ID           string
	Username     string
	LastPosition presence.State
	Handle       Handle
}

// Reconciler keeps the set of proxies consistent with the server's
// sync, join, move and leave frames. Apply may be called from the network
// goroutine while the render loop reads. The server never sends a
// participant its own entry, so every id seen here is remote.
type Reconciler struct {
	mu       sync.Mutex
	renderer Renderer
	proxies  map[string]*Proxy
	log      zerolog.Logger
}

func NewReconciler(renderer Renderer) *Reconciler {
	return &Reconciler{
		renderer: renderer,
		proxies:  make(map[string]*Proxy),
		log:      log.Logger.With().Str("component", "reconciler").Logger(),
	}
}

func (r *Reconciler) Apply(m protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := m.(type) {
	case protocol.Sync:
		for _, p := range m.Players {
			r.upsert(p)
		}
	case protocol.Join:
		r.upsert(m.Player)
	case protocol.ServerMove:
		p, ok := r.proxies[m.ID]
		if !ok {
			r.log.Debug().Str("id", m.ID).Msg("move for unknown participant ignored")
			return nil
		}
		p.LastPosition = m.Position
		r.renderer.Move(p.Handle, m.Position)
	case protocol.Leave:
		p, ok := r.proxies[m.ID]
		if !ok {
			return nil
		}
		r.renderer.Destroy(p.Handle)
		delete(r.proxies, m.ID)
	default:
		return fmt.Errorf("reconcile: unexpected %s message %T", m.Type(), m)
	}

	return nil
}

// upsert creates a proxy for p unless one exists. Existing proxies are
// left untouched.
func (r *Reconciler) upsert(p protocol.Player) {
	if p.ID == "" {
		return
	}
	if _, ok := r.proxies[p.ID]; ok {
		return
	}

	r.proxies[p.ID] = &Proxy{
		ID:           p.ID,
		Username:     p.Username,
		LastPosition: p.Position,
		Handle:       r.renderer.Create(p),
	}
	r.log.Debug().Str("id", p.ID).Str("username", p.Username).Msg("proxy created")
}

func (r *Reconciler) Get(id string) (Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proxies[id]
	if !ok {
		return Proxy{}, false
	}
	return *p, true
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

// IDs returns the mirrored ids in sorted order.
func (r *Reconciler) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.proxies))
	for id := range r.proxies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Release destroys every proxy.
func (r *Reconciler) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.proxies {
		r.renderer.Destroy(p.Handle)
		delete(r.proxies, id)
	}
}
