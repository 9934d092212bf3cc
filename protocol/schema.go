package protocol

import (
	"reflect"

	"github.com/dylanconnolly/starparty-be/presence"
	"github.com/invopop/jsonschema"
)

var stateType = reflect.TypeOf(presence.State{})

// Schema documents every frame of the room protocol. The document is
// served to client developers; decoding does not consult it.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	r.Mapper = func(t reflect.Type) *jsonschema.Schema {
		if t != stateType {
			return nil
		}
		vec := r.ReflectFromType(reflect.TypeOf(presence.Vec3{}))
		vec.Version = ""
		vec.Title = "Space position"
		geo := r.ReflectFromType(reflect.TypeOf(presence.GeoPoint{}))
		geo.Version = ""
		geo.Title = "Globe position"
		return &jsonschema.Schema{OneOf: []*jsonschema.Schema{vec, geo}}
	}

	frame := func(v any, title, desc string) *jsonschema.Schema {
		s := r.ReflectFromType(reflect.TypeOf(v))
		s.Version = ""
		s.Title = title
		s.Description = desc
		return s
	}

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Starparty room protocol",
		Description: "UTF-8 JSON text frames exchanged on /party/{room}.",
		OneOf: []*jsonschema.Schema{
			frame(identifyFrame{}, "identify", "Client to server. Declares a display name."),
			frame(clientMoveFrame{}, "move (client)", "Client to server. Reports the sender's position; id is ignored."),
			frame(syncFrame{}, "sync", "Server to client. Full active membership, sent once on activation."),
			frame(joinFrame{}, "join", "Server to client. One participant became active."),
			frame(leaveFrame{}, "leave", "Server to client. One participant left."),
			frame(serverMoveFrame{}, "move (server)", "Server to client. Another participant moved."),
		},
	}
}
