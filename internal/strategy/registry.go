// Package strategy lists the built-in algo order definitions.
package strategy

import (
	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/strategy/accumulate"
	"github.com/rxtech-lab/argo-algo/internal/strategy/iceberg"
	"github.com/rxtech-lab/argo-algo/internal/strategy/macrossover"
	"github.com/rxtech-lab/argo-algo/internal/strategy/ococo"
	"github.com/rxtech-lab/argo-algo/internal/strategy/pingpong"
	"github.com/rxtech-lab/argo-algo/internal/strategy/triangular"
	"github.com/rxtech-lab/argo-algo/internal/strategy/twap"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/rxtech-lab/argo-algo/pkg/schema"
)

// Definitions returns every built-in definition.
func Definitions() []*algo.Definition {
	return []*algo.Definition{
		iceberg.Definition,
		twap.Definition,
		twap.VWAP,
		accumulate.Definition,
		pingpong.Definition,
		ococo.Definition,
		triangular.Definition,
		macrossover.Definition,
	}
}

// Lookup returns the built-in definition id.
func Lookup(id string) (*algo.Definition, error) {
	for _, def := range Definitions() {
		if def.ID == id {
			return def, nil
		}
	}

	return nil, errors.Newf(errors.ErrCodeAlgoNotFound, "unknown algo order %q", id)
}

// Schema returns the JSON schema of the parameters of def.
func Schema(def *algo.Definition) (string, error) {
	out, err := schema.ToJSONSchema(def.Meta.NewParams())
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeInvalidType, err, "failed to build %s schema", def.ID)
	}

	return out, nil
}
