package schema

import (
	"reflect"
	"strings"
)

// GetKeychainFields returns the JSON names of the fields tagged `keychain:"true"`.
// Those fields hold secrets and must be kept out of logs and API responses.
func GetKeychainFields[T any](t T) []string {
	typ := reflect.TypeOf(t)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	if typ == nil || typ.Kind() != reflect.Struct {
		return nil
	}

	fields := make([]string, 0)

	for i := range typ.NumField() {
		field := typ.Field(i)
		if field.Tag.Get("keychain") != "true" {
			continue
		}

		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			name = field.Name
		}

		fields = append(fields, name)
	}

	return fields
}
