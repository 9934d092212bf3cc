package server

import (
	"context"
	"errors"

	"github.com/dylanconnolly/starparty-be/metrics"
	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/rs/zerolog"
)

type inbound struct {
	client *Client
	msg    protocol.Message
}

// Room serializes every lifecycle event of one room on its Run goroutine.
// The registry is also safe to read from other goroutines.
type Room struct {
	id       string
	variant  presence.Variant
	registry *presence.Registry
	hub      *Hub
	log      zerolog.Logger

	// owned by Run
	peers map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}
}

func newRoom(id string, variant presence.Variant, hub *Hub) *Room {
	return &Room{
		id:         id,
		variant:    variant,
		registry:   presence.NewRegistry(),
		hub:        hub,
		log:        hub.log.With().Str("room", id).Logger(),
		peers:      make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		done:       make(chan struct{}),
	}
}

func (r *Room) ID() string                { return r.id }
func (r *Room) Variant() presence.Variant { return r.variant }

// Snapshot returns the active participants of the room.
func (r *Room) Snapshot() []presence.SessionRecord {
	return r.registry.Snapshot()
}

func (r *Room) Run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case c := <-r.register:
			r.connect(c)
		case c := <-r.unregister:
			r.disconnect(c, "connection closed")
		case in := <-r.inbound:
			r.handle(in.client, in.msg)
		case <-ctx.Done():
			for _, c := range r.peers {
				c.close()
			}
			r.log.Info().Msg("stopping room")
			return
		}
	}
}

func (r *Room) join(c *Client) {
	select {
	case r.register <- c:
	case <-r.done:
		c.close()
	}
}

func (r *Room) leave(c *Client) {
	select {
	case r.unregister <- c:
	case <-r.done:
	}
}

func (r *Room) submit(c *Client, msg protocol.Message) {
	select {
	case r.inbound <- inbound{client: c, msg: msg}:
	case <-r.done:
	}
}

func (r *Room) connect(c *Client) {
	if c.State() == StateClosed {
		return
	}
	r.peers[c.id] = c
	metrics.Connections.WithLabelValues(r.id).Inc()

	if r.variant == presence.VariantSpace {
		c.transition(StateIdentifying)
		r.log.Info().Str("conn", c.id).Msg("client connected, awaiting identify")
		return
	}

	if c.initial == nil {
		c.log.Warn().Err(presence.ErrMissingIdentity).Msg("connection stays inactive")
		return
	}
	if err := r.registry.Register(c.id, c.initial); err != nil {
		c.log.Error().Err(err).Msg("register failed")
		return
	}
	r.activate(c)
}

// handle applies one inbound message. Messages from a connection that has
// already closed are dropped.
func (r *Room) handle(c *Client, msg protocol.Message) {
	if _, ok := r.peers[c.id]; !ok || c.State() == StateClosed {
		return
	}

	switch m := msg.(type) {
	case protocol.Identify:
		r.identify(c, m)
	case protocol.ClientMove:
		r.move(c, m)
	default:
		c.log.Warn().Str("type", string(msg.Type())).Msg("unexpected message from client")
	}
}

func (r *Room) identify(c *Client, m protocol.Identify) {
	if r.variant == presence.VariantGlobe {
		c.log.Debug().Msg("identify ignored in globe room")
		return
	}

	err := r.registry.Register(c.id, nil)
	if err != nil && !errors.Is(err, presence.ErrDuplicateConnection) {
		c.log.Error().Err(err).Msg("register failed")
		return
	}
	if err := r.registry.SetUsername(c.id, m.Username); err != nil {
		c.log.Error().Err(err).Msg("identify failed")
		return
	}
	c.log.Info().Str("username", m.Username).Msg("client identified")
}

func (r *Room) move(c *Client, m protocol.ClientMove) {
	if m.Position.Kind != r.variant.StateKind() {
		metrics.MalformedMessages.WithLabelValues(r.id).Inc()
		c.log.Warn().Str("kind", string(m.Position.Kind)).Msg("position does not match room, dropping")
		return
	}

	err := r.registry.UpdateState(c.id, m.Position)
	if errors.Is(err, presence.ErrUnknownConnection) {
		c.log.Debug().Str("state", c.State().String()).Msg("move before identify, dropping")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Msg("update failed")
		return
	}

	if c.State() != StateActive {
		r.activate(c)
		return
	}

	r.broadcast(protocol.ServerMove{ID: c.id, Position: m.Position}, c.id)
}

// activate sends the newcomer the current room and announces it to every
// other active peer.
func (r *Room) activate(c *Client) {
	if err := c.transition(StateActive); err != nil {
		c.log.Warn().Err(err).Msg("activation dropped")
		return
	}

	rec, ok := r.registry.Get(c.id)
	if !ok {
		return
	}

	var players []protocol.Player
	for _, other := range r.registry.Snapshot() {
		if other.ID == c.id {
			continue
		}
		players = append(players, protocol.PlayerFromRecord(other))
	}

	if err := r.deliver(c, protocol.Sync{Players: players}); err != nil {
		r.disconnect(c, err.Error())
		return
	}

	c.announced = true
	r.hub.mirrorSave(r.id, rec)
	metrics.ActiveParticipants.WithLabelValues(r.id).Inc()
	c.log.Info().Int("peers", len(players)).Msg("client active")

	r.broadcast(protocol.Join{Player: protocol.PlayerFromRecord(rec)}, c.id)
}

func (r *Room) deliver(c *Client, m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := c.trySend(b); err != nil {
		metrics.DeliveryFailures.WithLabelValues(r.id).Inc()
		return err
	}
	metrics.MessagesRelayed.WithLabelValues(r.id, string(m.Type())).Inc()
	return nil
}

// broadcast delivers m to every active peer except exclude. Peers that
// cannot take the message are disconnected after the fan-out completes.
func (r *Room) broadcast(m protocol.Message, exclude string) {
	b, err := protocol.Encode(m)
	if err != nil {
		r.log.Error().Err(err).Str("type", string(m.Type())).Msg("encode failed")
		return
	}

	var failed []*Client
	for id, p := range r.peers {
		if id == exclude || p.State() != StateActive {
			continue
		}
		if err := p.trySend(b); err != nil {
			metrics.DeliveryFailures.WithLabelValues(r.id).Inc()
			p.log.Warn().Err(err).Str("type", string(m.Type())).Msg("delivery failed")
			failed = append(failed, p)
			continue
		}
		metrics.MessagesRelayed.WithLabelValues(r.id, string(m.Type())).Inc()
	}

	for _, p := range failed {
		r.disconnect(p, "delivery failed")
	}
}

// disconnect closes c and removes its record. A leave is broadcast only
// for connections whose join went out. Safe to call more than once.
func (r *Room) disconnect(c *Client, reason string) {
	if r.peers[c.id] != c {
		return
	}
	delete(r.peers, c.id)
	c.close()
	metrics.Connections.WithLabelValues(r.id).Dec()

	if _, ok := r.registry.Remove(c.id); !ok {
		c.log.Info().Str("reason", reason).Msg("client left before registering")
		return
	}
	r.hub.mirrorRemove(r.id, c.id)
	c.log.Info().Str("reason", reason).Msg("client disconnected")

	if c.announced {
		metrics.ActiveParticipants.WithLabelValues(r.id).Dec()
		r.broadcast(protocol.Leave{ID: c.id}, c.id)
	}
}
