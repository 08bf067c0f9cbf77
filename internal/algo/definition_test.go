package algo_test

import (
	"context"
	"testing"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalDefinition() algo.Definition {
	return algo.Definition{
		ID:   "minimal",
		Name: "",
		Meta: algo.Meta{
			NewParams: func() any { return &testParams{} },
			InitState: func(_ any) (any, error) { return &testData{}, nil },
		},
		Events: &algo.Handlers{Orders: &algo.OrderHandlers{}},
	}
}

func TestDefine(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(def *algo.Definition)
	}{
		{name: "missing id", mutate: func(def *algo.Definition) { def.ID = "" }},
		{name: "missing events", mutate: func(def *algo.Definition) { def.Events = nil }},
		{name: "missing order handlers", mutate: func(def *algo.Definition) { def.Events = &algo.Handlers{} }},
		{name: "missing params constructor", mutate: func(def *algo.Definition) { def.Meta.NewParams = nil }},
		{name: "missing state initializer", mutate: func(def *algo.Definition) { def.Meta.InitState = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := minimalDefinition()
			tt.mutate(&def)

			out, err := algo.Define(def)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
		})
	}
}

func TestDefineBackFillsErrorHandlers(t *testing.T) {
	src := minimalDefinition()

	def, err := algo.Define(src)
	require.NoError(t, err)

	assert.Equal(t, "minimal", def.Name)
	assert.NotNil(t, def.Events.Orders.Error)
	assert.NotNil(t, def.Events.Errors.MinimumSize)
	assert.NotNil(t, def.Events.Errors.InsufficientBalance)
	assert.NotNil(t, def.Events.Errors.ActionDisabled)

	// the source definition is left untouched
	assert.Nil(t, src.Events.Orders.Error)
	assert.Nil(t, src.Events.Errors.MinimumSize)
}

func TestDefineKeepsCustomErrorHandlers(t *testing.T) {
	called := false
	src := minimalDefinition()
	src.Events.Errors.MinimumSize = func(_ context.Context, _ *algo.Instance, _ algo.ExchangeError) error {
		called = true

		return nil
	}

	def, err := algo.Define(src)
	require.NoError(t, err)

	require.NoError(t, def.Events.Errors.MinimumSize(context.Background(), nil, algo.ExchangeError{}))
	assert.True(t, called)
}

func TestMustDefinePanicsOnInvalidDefinition(t *testing.T) {
	assert.Panics(t, func() {
		algo.MustDefine(algo.Definition{})
	})
}

func TestPreview(t *testing.T) {
	def := newTestDefinition(nil)

	orders, err := def.Preview(`{"symbol":"ETHUSDT","amount":-2,"price":10}`)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ETHUSDT", orders[0].Symbol)
	assert.Equal(t, -2.0, orders[0].Amount)

	_, err = def.Preview(`{"amount":-2}`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidParameter))

	noPreview, err := algo.Define(minimalDefinition())
	require.NoError(t, err)

	orders, err = noPreview.Preview(nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
