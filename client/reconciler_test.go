package client_test

import (
	"sync"
	"testing"

	"github.com/dylanconnolly/starparty-be/client"
	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type proxyView struct {
	id  string
	pos presence.State
}

// fakeRenderer records every renderer call.
type fakeRenderer struct {
	mu        sync.Mutex
	created   []string
	moved     []proxyView
	destroyed []string
	live      map[string]*proxyView
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{live: make(map[string]*proxyView)}
}

func (f *fakeRenderer) Create(p protocol.Player) client.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := &proxyView{id: p.ID, pos: p.Position}
	f.created = append(f.created, p.ID)
	f.live[p.ID] = v
	return v
}

func (f *fakeRenderer) Move(h client.Handle, pos presence.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := h.(*proxyView)
	v.pos = pos
	f.moved = append(f.moved, *v)
}

func (f *fakeRenderer) Destroy(h client.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := h.(*proxyView)
	f.destroyed = append(f.destroyed, v.id)
	delete(f.live, v.id)
}

func (f *fakeRenderer) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func player(id string, x, y, z float64) protocol.Player {
	return protocol.Player{ID: id, Position: presence.VecState(x, y, z)}
}

func TestReconciler_SyncCreatesProxies(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	err := rec.Apply(protocol.Sync{Players: []protocol.Player{
		player("b", 1, 2, 3),
		player("c", 4, 5, 6),
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, rec.IDs())
	p, ok := rec.Get("c")
	require.True(t, ok)
	assert.Equal(t, presence.VecState(4, 5, 6), p.LastPosition)
	assert.Equal(t, 2, r.liveCount())
}

func TestReconciler_ExistingProxyNotRecreated(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	require.NoError(t, rec.Apply(protocol.Join{Player: player("b", 1, 1, 1)}))
	require.NoError(t, rec.Apply(protocol.Sync{Players: []protocol.Player{player("b", 9, 9, 9)}}))
	require.NoError(t, rec.Apply(protocol.Join{Player: player("b", 7, 7, 7)}))

	assert.Equal(t, []string{"b"}, r.created)
	p, _ := rec.Get("b")
	assert.Equal(t, presence.VecState(1, 1, 1), p.LastPosition)
}

func TestReconciler_MoveUpdatesProxy(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	require.NoError(t, rec.Apply(protocol.Join{Player: player("b", 0, 0, 0)}))
	require.NoError(t, rec.Apply(protocol.ServerMove{ID: "b", Position: presence.VecState(3, 2, 1)}))

	p, ok := rec.Get("b")
	require.True(t, ok)
	assert.Equal(t, presence.VecState(3, 2, 1), p.LastPosition)
	require.Len(t, r.moved, 1)
	assert.Equal(t, presence.VecState(3, 2, 1), r.moved[0].pos)
}

func TestReconciler_MoveForUnknownIDIgnored(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	require.NoError(t, rec.Apply(protocol.ServerMove{ID: "ghost", Position: presence.VecState(1, 1, 1)}))

	assert.Equal(t, 0, rec.Len())
	assert.Empty(t, r.created)
	assert.Empty(t, r.moved)
}

func TestReconciler_LeaveRemovesProxy(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	require.NoError(t, rec.Apply(protocol.Join{Player: player("b", 0, 0, 0)}))
	require.NoError(t, rec.Apply(protocol.Leave{ID: "b"}))
	require.NoError(t, rec.Apply(protocol.Leave{ID: "b"}))

	assert.Equal(t, 0, rec.Len())
	assert.Equal(t, []string{"b"}, r.destroyed)

	// a move after leave does not bring the proxy back
	require.NoError(t, rec.Apply(protocol.ServerMove{ID: "b", Position: presence.VecState(1, 1, 1)}))
	assert.Equal(t, 0, rec.Len())
}

func TestReconciler_RejectsClientMessages(t *testing.T) {
	rec := client.NewReconciler(newFakeRenderer())

	assert.Error(t, rec.Apply(protocol.Identify{Username: "ada"}))
	assert.Error(t, rec.Apply(protocol.ClientMove{Position: presence.VecState(0, 0, 0)}))
}

func TestReconciler_Release(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	require.NoError(t, rec.Apply(protocol.Sync{Players: []protocol.Player{
		player("b", 0, 0, 0),
		player("c", 0, 0, 0),
	}}))
	rec.Release()

	assert.Equal(t, 0, rec.Len())
	assert.Equal(t, 0, r.liveCount())
	assert.ElementsMatch(t, []string{"b", "c"}, r.destroyed)
}

func TestReconciler_GeoPlayers(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	require.NoError(t, rec.Apply(protocol.Join{Player: protocol.Player{ID: "g", Position: presence.GeoState(51.5, -0.12)}}))

	p, ok := rec.Get("g")
	require.True(t, ok)
	assert.Equal(t, presence.StateKindGeo, p.LastPosition.Kind)
}

func TestReconciler_ConcurrentApply(t *testing.T) {
	r := newFakeRenderer()
	rec := client.NewReconciler(r)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			rec.Apply(protocol.Join{Player: player(id, 0, 0, 0)})
			rec.Apply(protocol.ServerMove{ID: id, Position: presence.VecState(float64(n), 0, 0)})
			_ = rec.IDs()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, rec.Len())
}
