package main

import (
	"math"
	"math/rand"

	"github.com/dylanconnolly/starparty-be/client"
	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/dylanconnolly/starparty-be/protocol"
	"github.com/rs/zerolog"
)

var names = []string{
	"Alice", "Bob", "Charlie", "David", "Eve", "Frank", "Grace", "Heidi",
	"Ivan", "Judy", "Kevin", "Linda", "Mallory", "Nancy", "Oscar", "Peggy",
	"Quentin", "Randy", "Steve", "Trent", "Ursula", "Victor", "Walter",
	"Xavier", "Yvonne", "Zoe",
}

func randomName() string {
	return names[rand.Intn(len(names))]
}

const (
	orbitRadius = 30
	orbitStep   = 0.001
)

// orbit walks a circle around the origin with a slight vertical bob.
type orbit struct {
	t float64
}

func (o *orbit) next() presence.State {
	o.t += orbitStep
	return presence.VecState(
		math.Cos(o.t*10)*orbitRadius,
		math.Sin(o.t*15)*2,
		math.Sin(o.t*10)*orbitRadius,
	)
}

// logRenderer stands in for a scene: remote participants only show up in
// the log.
type logRenderer struct {
	log zerolog.Logger
}

func (r logRenderer) Create(p protocol.Player) client.Handle {
	r.log.Info().Str("id", p.ID).Str("username", p.Username).Stringer("position", p.Position).Msg("participant appeared")
	return p.ID
}

func (r logRenderer) Move(h client.Handle, pos presence.State) {
	r.log.Debug().Str("id", h.(string)).Stringer("position", pos).Msg("participant moved")
}

func (r logRenderer) Destroy(h client.Handle) {
	r.log.Info().Str("id", h.(string)).Msg("participant left")
}
