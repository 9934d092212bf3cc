package presence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type StateKind string

const (
	StateKindVec StateKind = "vec3"
	StateKindGeo StateKind = "geo"
)

var ErrInvalidState = errors.New("invalid state")

// Vec3 is a position in the space scene.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GeoPoint is a marker position on the globe.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// State is the last position a participant reported. Exactly one of the
// two shapes is set, matching the variant of the room it belongs to.
type State struct {
	Kind StateKind
	Vec  Vec3
	Geo  GeoPoint
}

func VecState(x, y, z float64) State {
	return State{Kind: StateKindVec, Vec: Vec3{X: x, Y: y, Z: z}}
}

func GeoState(lat, lng float64) State {
	return State{Kind: StateKindGeo, Geo: GeoPoint{Lat: lat, Lng: lng}}
}

func (s State) Validate() error {
	switch s.Kind {
	case StateKindVec:
		if !finite(s.Vec.X, s.Vec.Y, s.Vec.Z) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidState)
		}
	case StateKindGeo:
		if !finite(s.Geo.Lat, s.Geo.Lng) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidState)
		}
		if s.Geo.Lat < -90 || s.Geo.Lat > 90 {
			return fmt.Errorf("%w: latitude %v out of range", ErrInvalidState, s.Geo.Lat)
		}
		if s.Geo.Lng < -180 || s.Geo.Lng > 180 {
			return fmt.Errorf("%w: longitude %v out of range", ErrInvalidState, s.Geo.Lng)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidState, s.Kind)
	}
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StateKindVec:
		return json.Marshal(s.Vec)
	case StateKindGeo:
		return json.Marshal(s.Geo)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidState, s.Kind)
}

// UnmarshalJSON accepts {"x","y","z"} or {"lat","lng"}. Partial objects
// are rejected rather than zero-filled.
func (s *State) UnmarshalJSON(b []byte) error {
	var raw struct {
		X   *float64 `json:"x"`
		Y   *float64 `json:"y"`
		Z   *float64 `json:"z"`
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidState, err)
	}

	var st State
	switch {
	case raw.X != nil && raw.Y != nil && raw.Z != nil:
		st = VecState(*raw.X, *raw.Y, *raw.Z)
	case raw.Lat != nil && raw.Lng != nil:
		st = GeoState(*raw.Lat, *raw.Lng)
	default:
		return fmt.Errorf("%w: expected x,y,z or lat,lng", ErrInvalidState)
	}
	if err := st.Validate(); err != nil {
		return err
	}

	*s = st
	return nil
}

func (s State) String() string {
	if s.Kind == StateKindGeo {
		return fmt.Sprintf("(%.4f, %.4f)", s.Geo.Lat, s.Geo.Lng)
	}
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", s.Vec.X, s.Vec.Y, s.Vec.Z)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
