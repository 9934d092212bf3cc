package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dylanconnolly/starparty-be/client"
	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer reads one frame from the client, hands it to got, then
// writes each frame in script.
func scriptedServer(t *testing.T, got chan<- []byte, script ...[]byte) *httptest.Server {
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %s", err)
			return
		}
		defer ws.Close()

		_, first, err := ws.ReadMessage()
		if err != nil {
			return
		}
		got <- first

		for _, b := range script {
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}

		// keep reading until the client goes away
		for {
			_, b, err := ws.ReadMessage()
			if err != nil {
				return
			}
			select {
			case got <- b:
			default:
			}
		}
	}))
}

func TestRoomURL(t *testing.T) {
	u, err := client.RoomURL("http://localhost:8080", "sol-system")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/party/sol-system", u)

	u, err = client.RoomURL("https://party.example.com", "globe")
	require.NoError(t, err)
	assert.Equal(t, "wss://party.example.com/party/globe", u)

	_, err = client.RoomURL("ftp://example.com", "globe")
	assert.Error(t, err)
}

func TestConn_IdentifyThenReconcile(t *testing.T) {
	got := make(chan []byte, 4)
	s := scriptedServer(t, got,
		protocol.MustEncode(protocol.Sync{Players: []protocol.Player{
			{ID: "b", Username: "Bob", Position: presence.VecState(1, 2, 3)},
		}}),
		protocol.MustEncode(protocol.Join{Player: protocol.Player{ID: "c", Position: presence.VecState(0, 0, 0)}}),
		[]byte(`{"type":"bogus"}`),
		protocol.MustEncode(protocol.ServerMove{ID: "b", Position: presence.VecState(5, 5, 5)}),
		protocol.MustEncode(protocol.Leave{ID: "c"}),
	)
	defer s.Close()

	rec := client.NewReconciler(newFakeRenderer())
	u := "ws" + strings.TrimPrefix(s.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, u, nil, rec)
	require.NoError(t, err)
	require.NoError(t, conn.Identify(ctx, "Alice"))

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx) }()

	select {
	case first := <-got:
		assert.JSONEq(t, `{"type":"identify","username":"Alice"}`, string(first))
	case <-ctx.Done():
		t.Fatal("identify never arrived")
	}

	assert.Eventually(t, func() bool {
		p, ok := rec.Get("b")
		return ok && rec.Len() == 1 && p.LastPosition == presence.VecState(5, 5, 5)
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := rec.Get("b")
	assert.Equal(t, "Bob", p.Username)

	conn.Close()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestConn_TrySendAfterClose(t *testing.T) {
	got := make(chan []byte, 1)
	s := scriptedServer(t, got)
	defer s.Close()

	u := "ws" + strings.TrimPrefix(s.URL, "http")
	conn, err := client.Dial(context.Background(), u, nil, client.NewReconciler(newFakeRenderer()))
	require.NoError(t, err)

	conn.Close()
	assert.False(t, conn.TrySend([]byte(`{}`)))
	assert.ErrorIs(t, conn.Identify(context.Background(), "Alice"), client.ErrClosed)
}

func TestConn_TrySendDropsWhenSlotTaken(t *testing.T) {
	got := make(chan []byte, 1)
	s := scriptedServer(t, got)
	defer s.Close()

	u := "ws" + strings.TrimPrefix(s.URL, "http")
	conn, err := client.Dial(context.Background(), u, nil, client.NewReconciler(newFakeRenderer()))
	require.NoError(t, err)
	defer conn.Close()

	// nothing drains the slot until Run starts
	assert.True(t, conn.TrySend([]byte(`{"type":"identify","username":"a"}`)))
	assert.False(t, conn.TrySend([]byte(`{"type":"identify","username":"b"}`)))
}
