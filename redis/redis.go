package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/redis/go-redis/v9"
)

const (
	roomsKey    string = "rooms"
	sessionsKey string = "room:%s:sessions"

	sessionsTTL = time.Hour
)

// pruneRoom drops a room from the rooms set once its sessions hash is empty
// or gone. Running it as a script keeps the check and the removal atomic
// against a concurrent SaveSession.
var pruneRoom = redis.NewScript(`
if redis.call("HLEN", KEYS[2]) == 0 then
	return redis.call("SREM", KEYS[1], ARGV[1])
end
return 0
`)

// DB mirrors room membership into Redis so every instance behind a load
// balancer can list rooms. Positions are not mirrored.
type DB struct {
	db *redis.Client
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

func NewDB(opts Options) *DB {
	return &DB{
		db: NewClient(opts),
	}
}

func NewClient(opts Options) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return rdb
}

func (db *DB) Ping(ctx context.Context) error {
	return db.db.Ping(ctx).Err()
}

func (db *DB) Close() error {
	return db.db.Close()
}

type sessionEntry struct {
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// SaveSession records rec as an active member of room.
func (db *DB) SaveSession(ctx context.Context, room string, rec presence.SessionRecord) error {
	if err := db.saveSessions(ctx, room, []presence.SessionRecord{rec}); err != nil {
		return fmt.Errorf("save session %s in %s: %w", rec.ID, room, err)
	}
	return nil
}

// RefreshRoom rewrites every live member of room and pushes the expiry out
// again. Called periodically for rooms with connected members so their
// entries outlive sessionsTTL, and to restore entries lost by a Redis
// restart.
func (db *DB) RefreshRoom(ctx context.Context, room string, recs []presence.SessionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	if err := db.saveSessions(ctx, room, recs); err != nil {
		return fmt.Errorf("refresh room %s: %w", room, err)
	}
	return nil
}

func (db *DB) saveSessions(ctx context.Context, room string, recs []presence.SessionRecord) error {
	key := fmt.Sprintf(sessionsKey, room)

	fields := make([]any, 0, 2*len(recs))
	for _, rec := range recs {
		b, err := json.Marshal(sessionEntry{Username: rec.Username, JoinedAt: rec.JoinedAt})
		if err != nil {
			return err
		}
		fields = append(fields, rec.ID, b)
	}

	pipe := db.db.TxPipeline()
	pipe.HSet(ctx, key, fields...)
	pipe.Expire(ctx, key, sessionsTTL)
	pipe.SAdd(ctx, roomsKey, room)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveSession drops id from room, and room from the listing once it has
// no members left.
func (db *DB) RemoveSession(ctx context.Context, room, id string) error {
	key := fmt.Sprintf(sessionsKey, room)

	if err := db.db.HDel(ctx, key, id).Err(); err != nil {
		return fmt.Errorf("remove session %s from %s: %w", id, room, err)
	}
	if err := pruneRoom.Run(ctx, db.db, []string{roomsKey, key}, room).Err(); err != nil {
		return fmt.Errorf("prune room %s: %w", room, err)
	}

	return nil
}

// RoomCounts returns the number of mirrored members for every room that
// has any. Rooms whose sessions expired are pruned along the way.
func (db *DB) RoomCounts(ctx context.Context) (map[string]int, error) {
	rooms, err := db.db.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, err
	}

	pipe := db.db.Pipeline()
	lens := make(map[string]*redis.IntCmd, len(rooms))
	for _, room := range rooms {
		lens[room] = pipe.HLen(ctx, fmt.Sprintf(sessionsKey, room))
	}
	if len(rooms) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	counts := make(map[string]int, len(rooms))
	for room, cmd := range lens {
		n := int(cmd.Val())
		if n > 0 {
			counts[room] = n
			continue
		}
		if err := pruneRoom.Run(ctx, db.db, []string{roomsKey, fmt.Sprintf(sessionsKey, room)}, room).Err(); err != nil {
			return nil, fmt.Errorf("prune room %s: %w", room, err)
		}
	}

	return counts, nil
}
