package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

var ErrClosed = errors.New("connection closed")

// Conn is a participant's connection to one room. Frames from the server
// are decoded and applied to the reconciler as they arrive.
type Conn struct {
	ws  *websocket.Conn
	rec *Reconciler
	log zerolog.Logger

	// one slot: a position sample that cannot be written yet is dropped
	out  chan []byte
	done chan struct{}
	once sync.Once
}

// RoomURL builds the websocket endpoint for room on base, which may be an
// http(s) or ws(s) URL.
func RoomURL(base, room string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/party/" + url.PathEscape(room)
	return u.String(), nil
}

func Dial(ctx context.Context, endpoint string, header http.Header, rec *Reconciler) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	return &Conn{
		ws:   ws,
		rec:  rec,
		log:  log.Logger.With().Str("endpoint", endpoint).Logger(),
		out:  make(chan []byte, 1),
		done: make(chan struct{}),
	}, nil
}

// Identify queues the identify frame, waiting for the slot if needed.
func (c *Conn) Identify(ctx context.Context, username string) error {
	b, err := protocol.Encode(protocol.Identify{Username: username})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- b:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues b if the outbound slot is free.
func (c *Conn) TrySend(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- b:
		return true
	default:
		return false
	}
}

// Run pumps frames in both directions until the connection drops or ctx
// is done.
func (c *Conn) Run(ctx context.Context) error {
	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	err := c.readLoop()
	c.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Conn) readLoop() error {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPingHandler(func(data string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		msg, err := protocol.DecodeServer(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping server frame")
			continue
		}
		if err := c.rec.Apply(msg); err != nil {
			c.log.Warn().Err(err).Msg("reconcile failed")
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case b := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Warn().Err(err).Msg("error writing message")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}
