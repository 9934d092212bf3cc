package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownRoom = errors.New("unknown room")

	roomIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)
)

// PresenceStore mirrors room membership outside the process.
type PresenceStore interface {
	SaveSession(ctx context.Context, room string, rec presence.SessionRecord) error
	RemoveSession(ctx context.Context, room, id string) error
	RoomCounts(ctx context.Context) (map[string]int, error)
	// RefreshRoom re-saves the live members of room, keeping their
	// entries from expiring while they stay connected.
	RefreshRoom(ctx context.Context, room string, recs []presence.SessionRecord) error
}

type Options struct {
	// AllowedRooms limits which rooms may be opened. Empty allows any id
	// matching the room id pattern.
	AllowedRooms []string
	GlobeRooms   []string
	SendBuffer   int
	MsgRate      float64
	MsgBurst     int

	// MirrorRefresh is how often live rooms are re-saved to the presence
	// store. It must stay below the store's entry expiry.
	MirrorRefresh time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MsgRate <= 0 {
		o.MsgRate = 120
	}
	if o.MsgBurst <= 0 {
		o.MsgBurst = max(1, int(2*o.MsgRate))
	}
	if o.MirrorRefresh <= 0 {
		o.MirrorRefresh = 10 * time.Minute
	}
	return o
}

type mirrorOp struct {
	room   string
	record *presence.SessionRecord
	id     string
}

// Hub tracks every room on this instance. Rooms are created on first
// connect and run until the hub stops.
type Hub struct {
	store  PresenceStore
	opts   Options
	log    zerolog.Logger
	mirror chan mirrorOp

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewHub(store PresenceStore, opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:  store,
		opts:   opts.withDefaults(),
		log:    log.Logger.With().Str("component", "hub").Logger(),
		mirror: make(chan mirrorOp, 1024),
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*Room),
	}
}

// Run applies membership changes to the presence store and periodically
// refreshes live rooms until ctx is done, then stops every room.
func (h *Hub) Run(ctx context.Context) {
	defer h.cancel()

	ticker := time.NewTicker(h.opts.MirrorRefresh)
	defer ticker.Stop()

	for {
		select {
		case op := <-h.mirror:
			h.applyMirror(ctx, op)
		case <-ticker.C:
			h.refreshMirror(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) refreshMirror(ctx context.Context) {
	if h.store == nil {
		return
	}

	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		recs := r.Snapshot()
		if len(recs) == 0 {
			continue
		}
		if err := h.store.RefreshRoom(ctx, r.id, recs); err != nil {
			h.log.Warn().Err(err).Str("room", r.id).Msg("presence mirror refresh failed")
		}
	}
}

func (h *Hub) applyMirror(ctx context.Context, op mirrorOp) {
	var err error
	if op.record != nil {
		err = h.store.SaveSession(ctx, op.room, *op.record)
	} else {
		err = h.store.RemoveSession(ctx, op.room, op.id)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("room", op.room).Msg("presence mirror update failed")
	}
}

func (h *Hub) enqueueMirror(op mirrorOp) {
	if h.store == nil {
		return
	}
	select {
	case h.mirror <- op:
	default:
		h.log.Warn().Str("room", op.room).Msg("presence mirror queue full, dropping update")
	}
}

func (h *Hub) mirrorSave(room string, rec presence.SessionRecord) {
	h.enqueueMirror(mirrorOp{room: room, record: &rec})
}

func (h *Hub) mirrorRemove(room, id string) {
	h.enqueueMirror(mirrorOp{room: room, id: id})
}

func (h *Hub) variant(id string) presence.Variant {
	if slices.Contains(h.opts.GlobeRooms, id) {
		return presence.VariantGlobe
	}
	return presence.VariantSpace
}

func (h *Hub) checkRoom(id string) error {
	if !roomIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, id)
	}
	if len(h.opts.AllowedRooms) > 0 && !slices.Contains(h.opts.AllowedRooms, id) {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, id)
	}
	return nil
}

// Room returns the room for id, starting it if needed.
func (h *Hub) Room(id string) (*Room, error) {
	if err := h.checkRoom(id); err != nil {
		return nil, err
	}

	h.mu.RLock()
	r, ok := h.rooms[id]
	h.mu.RUnlock()
	if ok {
		return r, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		return r, nil
	}
	r = newRoom(id, h.variant(id), h)
	h.rooms[id] = r
	go r.Run(h.ctx)
	h.log.Info().Str("room", id).Str("variant", string(r.variant)).Msg("room started")

	return r, nil
}

// Lookup returns a running room without creating it.
func (h *Hub) Lookup(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

type RoomSummary struct {
	ID           string `json:"id"`
	Variant      string `json:"variant,omitempty"`
	Participants int    `json:"participants"`
}

// Rooms lists rooms with their active participant counts. The presence
// store is preferred so the listing covers every instance.
func (h *Hub) Rooms(ctx context.Context) []RoomSummary {
	if h.store != nil {
		counts, err := h.store.RoomCounts(ctx)
		if err == nil {
			summaries := make([]RoomSummary, 0, len(counts))
			for id, n := range counts {
				summaries = append(summaries, RoomSummary{ID: id, Variant: string(h.variant(id)), Participants: n})
			}
			sortSummaries(summaries)
			return summaries
		}
		h.log.Warn().Err(err).Msg("presence store unavailable, listing local rooms")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	summaries := make([]RoomSummary, 0, len(h.rooms))
	for id, r := range h.rooms {
		summaries = append(summaries, RoomSummary{ID: id, Variant: string(r.variant), Participants: len(r.Snapshot())})
	}
	sortSummaries(summaries)
	return summaries
}

func sortSummaries(s []RoomSummary) {
	sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
}
