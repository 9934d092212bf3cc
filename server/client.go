package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dylanconnolly/starparty-be/metrics"
	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var ErrDeliveryFailure = errors.New("delivery failed")

// Client is one websocket connection bound to a room for its lifetime.
type Client struct {
	id      string
	room    *Room
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	log     zerolog.Logger

	// position taken from connection metadata, globe rooms only
	initial *presence.State

	// set once sync has been delivered and peers were sent a join; owned
	// by Room.Run
	announced bool

	mu    sync.Mutex
	state ConnState
}

func newClient(id string, room *Room, conn *websocket.Conn, initial *presence.State, opts Options) *Client {
	return &Client{
		id:      id,
		room:    room,
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(opts.MsgRate), opts.MsgBurst),
		log:     room.log.With().Str("conn", id).Logger(),
		initial: initial,
		state:   StateConnecting,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) transition(next ConnState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.canTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, next)
	}
	if next == StateClosed {
		close(c.send)
	}
	c.state = next

	return nil
}

// close moves the client to Closed and stops its write pump. It reports
// whether this call performed the transition.
func (c *Client) close() bool {
	return c.transition(StateClosed) == nil
}

// trySend queues b without blocking. A full buffer or a closed client
// is a delivery failure.
func (c *Client) trySend(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return fmt.Errorf("%w: %s is closed", ErrDeliveryFailure, c.id)
	}
	select {
	case c.send <- b:
		return nil
	default:
		return fmt.Errorf("%w: %s send buffer full", ErrDeliveryFailure, c.id)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.room.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("error reading message")
			}
			return
		}

		c.handleRead(message)
	}
}

func (c *Client) handleRead(message []byte) {
	if !c.limiter.Allow() {
		metrics.RateLimited.WithLabelValues(c.room.id).Inc()
		c.log.Debug().Msg("rate limited, dropping frame")
		return
	}

	msg, err := protocol.DecodeClient(message)
	if err != nil {
		metrics.MalformedMessages.WithLabelValues(c.room.id).Inc()
		c.log.Warn().Err(err).Bytes("frame", truncate(message, 128)).Msg("dropping message")
		return
	}

	c.room.submit(c, msg)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn().Err(err).Msg("error writing message")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
