package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	headerLatitude  = "CF-IPLatitude"
	headerLongitude = "CF-IPLongitude"
)

type PartyServer struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewPartyServer(hub *Hub, allowedOrigins []string) *PartyServer {
	return &PartyServer{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Connect upgrades the request and binds the connection to the room named
// in the path for its whole life.
func (p *PartyServer) Connect(w http.ResponseWriter, r *http.Request) {
	room, err := p.hub.Room(mux.Vars(r)["room"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var initial *presence.State
	if room.variant == presence.VariantGlobe {
		initial, err = geoFromRequest(r)
		if err != nil {
			log.Warn().Err(err).Str("room", room.id).Msg("ignoring connection geo metadata")
		}
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("room", room.id).Msg("error upgrading connection")
		return
	}

	c := newClient(uuid.New().String(), room, conn, initial, p.hub.opts)
	c.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")
	room.join(c)

	go c.writePump()
	go c.readPump()
}

// geoFromRequest reads the edge-provided position headers, falling back
// to lat and lng query parameters. It returns nil when neither is present.
func geoFromRequest(r *http.Request) (*presence.State, error) {
	lat, lng := r.Header.Get(headerLatitude), r.Header.Get(headerLongitude)
	if lat == "" || lng == "" {
		q := r.URL.Query()
		lat, lng = q.Get("lat"), q.Get("lng")
	}
	if lat == "" || lng == "" {
		return nil, nil
	}

	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, err
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, err
	}

	st := presence.GeoState(la, lo)
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// Rooms writes every known room and its participant count.
func (p *PartyServer) Rooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, p.hub.Rooms(r.Context()))
}

type roomResp struct {
	ID      string            `json:"id"`
	Variant string            `json:"variant"`
	Players []protocol.Player `json:"players"`
}

// Room writes the active participants of one room on this instance.
func (p *PartyServer) Room(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["room"]
	if err := p.hub.checkRoom(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	resp := roomResp{ID: id, Variant: string(p.hub.variant(id)), Players: []protocol.Player{}}
	if room, ok := p.hub.Lookup(id); ok {
		for _, rec := range room.Snapshot() {
			resp.Players = append(resp.Players, protocol.PlayerFromRecord(rec))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *PartyServer) Schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.Schema())
}

func (p *PartyServer) Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, statusCode int, obj any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		http.Error(w, "could not encode response", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(b)
	return err
}
