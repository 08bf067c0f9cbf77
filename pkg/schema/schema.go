// Package schema describes configuration and parameter structs as JSON schema.
package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ToJSONSchema reflects t into an inlined JSON schema. Fields tagged `keychain:"true"` are
// marked write only.
func ToJSONSchema[T any](t T) (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(t)

	if schema.Properties != nil {
		for _, name := range GetKeychainFields(t) {
			if prop, ok := schema.Properties.Get(name); ok && prop != nil {
				prop.WriteOnly = true
			}
		}
	}

	jsonSchemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(jsonSchemaBytes), nil
}
