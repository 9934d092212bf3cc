package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) (*DB, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	db := NewDB(Options{Addr: mr.Addr()})
	t.Cleanup(func() { db.Close() })

	return db, mr
}

func record(id, username string) presence.SessionRecord {
	st := presence.VecState(0, 0, 0)
	return presence.SessionRecord{ID: id, Username: username, State: &st, JoinedAt: time.Now()}
}

func TestSaveAndRemoveSession(t *testing.T) {
	db, mr := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSession(ctx, "sol-system", record("a", "Alice")))
	require.NoError(t, db.SaveSession(ctx, "sol-system", record("b", "")))
	require.NoError(t, db.SaveSession(ctx, "globe", record("g", "")))

	counts, err := db.RoomCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sol-system": 2, "globe": 1}, counts)

	assert.True(t, mr.Exists("room:sol-system:sessions"))
	assert.Equal(t, sessionsTTL, mr.TTL("room:sol-system:sessions"))

	require.NoError(t, db.RemoveSession(ctx, "sol-system", "a"))
	// removing twice is harmless
	require.NoError(t, db.RemoveSession(ctx, "sol-system", "a"))

	counts, err = db.RoomCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sol-system": 1, "globe": 1}, counts)
}

func TestRemoveLastSessionDropsRoom(t *testing.T) {
	db, mr := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSession(ctx, "sol-system", record("a", "Alice")))
	require.NoError(t, db.RemoveSession(ctx, "sol-system", "a"))

	assert.False(t, mr.Exists(roomsKey))

	counts, err := db.RoomCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRefreshKeepsConnectedMembers(t *testing.T) {
	db, mr := newTestDB(t)
	ctx := context.Background()

	a := record("a", "Alice")
	require.NoError(t, db.SaveSession(ctx, "sol-system", a))

	// a stays connected; the hub refreshes well inside the expiry
	for i := 0; i < 7; i++ {
		mr.FastForward(10 * time.Minute)
		require.NoError(t, db.RefreshRoom(ctx, "sol-system", []presence.SessionRecord{a}))
	}

	counts, err := db.RoomCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sol-system": 1}, counts)
}

func TestRefreshRestoresLostEntries(t *testing.T) {
	db, mr := newTestDB(t)
	ctx := context.Background()

	a := record("a", "Alice")
	require.NoError(t, db.SaveSession(ctx, "sol-system", a))
	mr.FlushAll()

	require.NoError(t, db.RefreshRoom(ctx, "sol-system", []presence.SessionRecord{a, record("b", "Bob")}))

	counts, err := db.RoomCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sol-system": 2}, counts)

	require.NoError(t, db.RefreshRoom(ctx, "globe", nil))
	assert.False(t, mr.Exists("room:globe:sessions"))
}

func TestExpiredRoomsArePruned(t *testing.T) {
	db, mr := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSession(ctx, "proxima-system", record("p", "")))
	require.NoError(t, db.SaveSession(ctx, "sol-system", record("a", "")))

	mr.FastForward(sessionsTTL - time.Minute)
	require.NoError(t, db.RefreshRoom(ctx, "sol-system", []presence.SessionRecord{record("a", "")}))
	mr.FastForward(2 * time.Minute)

	counts, err := db.RoomCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sol-system": 1}, counts)

	members, err := mr.Members(roomsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"sol-system"}, members)
}

func TestPing(t *testing.T) {
	db, mr := newTestDB(t)

	require.NoError(t, db.Ping(context.Background()))
	mr.Close()
	assert.Error(t, db.Ping(context.Background()))
}
