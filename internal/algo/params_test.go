package algo_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareParamsDecodesInputs(t *testing.T) {
	want := &testParams{Symbol: "BTCUSDT", Amount: -1.5, Price: 20}
	def := newTestDefinition(nil)

	tests := []struct {
		name string
		raw  any
	}{
		{name: "json string", raw: `{"symbol":"BTCUSDT","amount":-1.5,"price":20}`},
		{name: "json bytes", raw: []byte(`{"symbol":"BTCUSDT","amount":-1.5,"price":20}`)},
		{name: "raw message", raw: json.RawMessage(`{"symbol":"BTCUSDT","amount":-1.5,"price":20}`)},
		{name: "map", raw: map[string]any{"symbol": "BTCUSDT", "amount": -1.5, "price": 20}},
		{name: "pointer", raw: &testParams{Symbol: "BTCUSDT", Amount: -1.5, Price: 20}},
		{name: "value", raw: testParams{Symbol: "BTCUSDT", Amount: -1.5, Price: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := algo.PrepareParams(def, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, params)
		})
	}
}

func TestPrepareParamsRunsValidateAndProcess(t *testing.T) {
	src := minimalDefinition()
	src.Meta.ValidateParams = func(params any) error {
		if params.(*testParams).Price > 1000 {
			return fmt.Errorf("price too high")
		}

		return nil
	}
	src.Meta.ProcessParams = func(params any) (any, error) {
		p := params.(*testParams)
		p.Symbol = "t" + p.Symbol

		return p, nil
	}

	def, err := algo.Define(src)
	require.NoError(t, err)

	params, err := algo.PrepareParams(def, map[string]any{"symbol": "BTCUSD", "amount": 1, "price": 10})
	require.NoError(t, err)
	assert.Equal(t, "tBTCUSD", params.(*testParams).Symbol)

	_, err = algo.PrepareParams(def, map[string]any{"symbol": "BTCUSD", "amount": 1, "price": 5000})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidParameter))
	assert.Contains(t, err.Error(), "price too high")
}
