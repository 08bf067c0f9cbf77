package algo_test

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/types"
)

type testParams struct {
	Symbol string  `json:"symbol" validate:"required"`
	Amount float64 `json:"amount" validate:"ne=0"`
	Price  float64 `json:"price" validate:"gte=0"`
}

type testData struct {
	Seen    []string     `json:"seen"`
	Fills   []float64    `json:"fills"`
	Cancels int          `json:"cancels"`
	Timer   algo.TimerID `json:"timer"`
}

func data(inst *algo.Instance) *testData {
	return inst.State.Data.(*testData)
}

// newTestDefinition builds a small algo that records what it sees. Every recorded name is
// also sent to observer when it is not nil.
func newTestDefinition(observer chan<- string) *algo.Definition {
	record := func(ctx context.Context, inst *algo.Instance, name string) {
		inst.H.UpdateState(ctx, func(state *algo.State) {
			d := state.Data.(*testData)
			d.Seen = append(d.Seen, name)
		})

		if observer != nil {
			observer <- name
		}
	}

	self := map[string]algo.Handler[algo.SelfEvent]{
		"a": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			record(ctx, inst, "a")
			inst.H.EmitSelfAsync(ctx, "c")

			return inst.H.EmitSelf(ctx, "b")
		},
		"b": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			record(ctx, inst, "b")

			return nil
		},
		"c": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			record(ctx, inst, "c")

			return nil
		},
		"tick": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			record(ctx, inst, "tick")

			return nil
		},
		"arm": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			id := inst.H.Schedule(ctx, "tick", time.Second)
			inst.H.UpdateState(ctx, func(state *algo.State) {
				state.Data.(*testData).Timer = id
			})

			return nil
		},
		"disarm": func(_ context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			inst.H.ClearTimer(data(inst).Timer)

			return nil
		},
		"trigger": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			inst.H.Debounce(ctx, "resubmit", 50*time.Millisecond)

			return nil
		},
		"resubmit": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			record(ctx, inst, "resubmit")

			return nil
		},
		"submit": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			args := inst.State.Args.(*testParams)
			order := types.NewLimitOrder(inst.State.GID, args.Symbol, args.Amount, args.Price)

			return inst.H.SubmitAllOrders(ctx, []types.Order{order}, 0)
		},
		"cancel": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			return inst.H.CancelAllOrders(ctx, inst.OpenOrders(), 0)
		},
		"stop": func(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
			if err := inst.H.Stop(ctx, nil, algo.StopOptions{Reason: "first"}); err != nil {
				return err
			}

			return inst.H.Stop(ctx, nil, algo.StopOptions{Reason: "second"})
		},
		"fail": func(_ context.Context, _ *algo.Instance, _ algo.SelfEvent) error {
			return fmt.Errorf("handler failed on purpose")
		},
		"boom": func(_ context.Context, _ *algo.Instance, _ algo.SelfEvent) error {
			panic("boom")
		},
	}

	return algo.MustDefine(algo.Definition{
		ID:   "test.algo",
		Name: "Test Algo",
		Meta: algo.Meta{
			NewParams:      func() any { return &testParams{} },
			ValidateParams: nil,
			ProcessParams:  nil,
			InitState: func(_ any) (any, error) {
				return &testData{}, nil
			},
			Serialize:   nil,
			Unserialize: nil,
			DeclareEvents: func(_ context.Context, _ *algo.Instance, h algo.Helpers) error {
				return h.DeclareEvent("alias", "self:b")
			},
			DeclareChannels: func(ctx context.Context, inst *algo.Instance, h algo.Helpers) error {
				return h.DeclareChannel(ctx, types.BookChannel(inst.State.Args.(*testParams).Symbol))
			},
			GenOrderLabel: func(state *algo.State) string {
				return fmt.Sprintf("Test %s", state.Args.(*testParams).Symbol)
			},
			GenPreview: func(args any) ([]types.Order, error) {
				p := args.(*testParams)

				return []types.Order{types.NewLimitOrder(0, p.Symbol, p.Amount, p.Price)}, nil
			},
		},
		Events: &algo.Handlers{
			Self: self,
			Life: algo.LifeHandlers{
				Start: func(ctx context.Context, inst *algo.Instance, _ algo.LifeStart) error {
					record(ctx, inst, "start")

					return nil
				},
				Stop: func(ctx context.Context, inst *algo.Instance, _ algo.LifeStop) error {
					record(ctx, inst, "stop")

					return nil
				},
			},
			Orders: &algo.OrderHandlers{
				Snapshot: nil,
				New:      nil,
				Update:   nil,
				Fill: func(ctx context.Context, inst *algo.Instance, ev algo.OrderFill) error {
					inst.H.UpdateState(ctx, func(state *algo.State) {
						d := state.Data.(*testData)
						d.Fills = append(d.Fills, ev.FillAmount)
					})

					return nil
				},
				Cancel: func(ctx context.Context, inst *algo.Instance, _ algo.OrderCancel) error {
					inst.H.UpdateState(ctx, func(state *algo.State) {
						state.Data.(*testData).Cancels++
					})

					return nil
				},
				Error: nil,
			},
			Data:   algo.DataHandlers{},
			Errors: algo.ErrorHandlers{},
		},
	})
}

var defaultParams = map[string]any{"symbol": "BTCUSDT", "amount": 1.0, "price": 100.0}
