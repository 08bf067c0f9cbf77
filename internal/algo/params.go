package algo

import (
	"encoding/json"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// PrepareParams decodes raw into a fresh params struct, validates it and normalizes it.
//
// raw may be nil, JSON ([]byte, json.RawMessage or string), a map as produced by a YAML or
// JSON decoder, or a params value/pointer of the definition's own type. Every failure is
// returned as ErrCodeInvalidParameter.
func PrepareParams(def *Definition, raw any) (any, error) {
	params := def.Meta.NewParams()

	if err := decodeParams(params, raw); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to decode %s params", def.ID)
	}

	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid %s params", def.ID)
	}

	if def.Meta.ValidateParams != nil {
		if err := def.Meta.ValidateParams(params); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid %s params", def.ID)
		}
	}

	if def.Meta.ProcessParams == nil {
		return params, nil
	}

	processed, err := def.Meta.ProcessParams(params)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to process %s params", def.ID)
	}

	return processed, nil
}

func decodeParams(params any, raw any) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return json.Unmarshal(v, params)
	case []byte:
		return json.Unmarshal(v, params)
	case string:
		return json.Unmarshal([]byte(v), params)
	}

	target := reflect.ValueOf(params)
	source := reflect.ValueOf(raw)

	if source.Type() == target.Type() {
		if source.IsNil() {
			return nil
		}

		target.Elem().Set(source.Elem())

		return nil
	}

	if source.Type() == target.Type().Elem() {
		target.Elem().Set(source)

		return nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	return json.Unmarshal(encoded, params)
}
