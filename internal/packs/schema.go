// ABOUTME: Derives tool input JSON Schemas from Go structs.
// ABOUTME: Field docs come from jsonschema_description tags.

package packs

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects T into an inline JSON Schema object.
// Fields without omitempty are required.
func GenerateSchema[T any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""

	b, err := json.Marshal(schema)
	if err != nil {
		// Only reachable for types jsonschema cannot describe, which is a programming error.
		panic(fmt.Sprintf("generating schema for %T: %v", v, err))
	}
	return b
}
