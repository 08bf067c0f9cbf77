// Package macrossover submits one order when a short moving average crosses a long one,
// then stops.
package macrossover

import (
	"context"
	"fmt"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/indicator"
	"github.com/rxtech-lab/argo-algo/internal/strategy/common"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

const (
	ID = "ma_crossover"

	defaultTimeframe = "1m"
)

// Average configures one of the two moving averages.
type Average struct {
	Type        types.IndicatorType `json:"type" yaml:"type" validate:"required,oneof=ma ema"`
	Period      int                 `json:"period" yaml:"period" validate:"gte=1"`
	CandlePrice types.CandlePrice   `json:"candlePrice,omitempty" yaml:"candlePrice,omitempty" validate:"omitempty,oneof=open high low close"`
	Timeframe   string              `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
}

type Params struct {
	Symbol     string          `json:"symbol" yaml:"symbol" validate:"required"`
	Short      Average         `json:"short" yaml:"short"`
	Long       Average         `json:"long" yaml:"long"`
	Amount     float64         `json:"amount" yaml:"amount" validate:"required"`
	OrderType  types.OrderType `json:"orderType" yaml:"orderType" validate:"omitempty,oneof=MARKET LIMIT"`
	OrderPrice float64         `json:"orderPrice,omitempty" yaml:"orderPrice,omitempty" validate:"gte=0"`
	Hidden     bool            `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	PostOnly   bool            `json:"postOnly,omitempty" yaml:"postOnly,omitempty"`
	Lev        int             `json:"lev,omitempty" yaml:"lev,omitempty" validate:"gte=0"`
}

type Data struct {
	Triggered bool `json:"triggered"`

	short *indicator.CandleFeed
	long  *indicator.CandleFeed
}

func data(inst *algo.Instance) *Data {
	d, _ := inst.State.Data.(*Data)

	return d
}

func args(inst *algo.Instance) *Params {
	p, _ := inst.State.Args.(*Params)

	return p
}

// Definition is the moving average crossover algo order.
var Definition = algo.MustDefine(algo.Definition{
	ID:   ID,
	Name: "MA Crossover",
	Meta: algo.Meta{
		NewParams:       func() any { return &Params{} },
		ValidateParams:  validateParams,
		ProcessParams:   processParams,
		InitState:       initState,
		Serialize:       nil,
		Unserialize:     nil,
		DeclareEvents:   nil,
		DeclareChannels: declareChannels,
		GenOrderLabel: func(state *algo.State) string {
			p, _ := state.Args.(*Params)

			return fmt.Sprintf("MA Crossover | %s %s | %s(%d) x %s(%d)", p.OrderType, common.FormatAmount(p.Amount),
				p.Short.Type, p.Short.Period, p.Long.Type, p.Long.Period)
		},
		GenPreview: func(a any) ([]types.Order, error) {
			p, _ := a.(*Params)

			return []types.Order{Order(p, 0)}, nil
		},
	},
	Events: &algo.Handlers{
		Self: nil,
		Life: algo.LifeHandlers{
			Start: onLifeStart,
			Stop:  nil,
		},
		Orders: &algo.OrderHandlers{},
		Data: algo.DataHandlers{
			Trades:  nil,
			Book:    nil,
			Candles: onCandles,
		},
		Errors: algo.ErrorHandlers{},
	},
})

func validateParams(a any) error {
	p, _ := a.(*Params)

	if p.Short.Period >= p.Long.Period {
		return errors.Newf(errors.ErrCodeInvalidParameter, "short period %d must be below long period %d", p.Short.Period, p.Long.Period)
	}

	if p.OrderType == types.OrderTypeLimit && p.OrderPrice <= 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "limit order needs a positive order price")
	}

	return nil
}

func processParams(a any) (any, error) {
	p, _ := a.(*Params)

	if p.OrderType == "" {
		p.OrderType = types.OrderTypeMarket
	}

	for _, avg := range []*Average{&p.Short, &p.Long} {
		if avg.Timeframe == "" {
			avg.Timeframe = defaultTimeframe
		}

		if avg.CandlePrice == "" {
			avg.CandlePrice = types.CandlePriceClose
		}
	}

	return p, nil
}

func newFeed(registry indicator.IndicatorRegistry, avg Average) (*indicator.CandleFeed, error) {
	ind, err := registry.NewIndicator(avg.Type, avg.Period)
	if err != nil {
		return nil, err
	}

	return indicator.NewCandleFeed(ind, avg.CandlePrice), nil
}

func initState(a any) (any, error) {
	p, _ := a.(*Params)
	registry := indicator.NewDefaultRegistry()

	short, err := newFeed(registry, p.Short)
	if err != nil {
		return nil, err
	}

	long, err := newFeed(registry, p.Long)
	if err != nil {
		return nil, err
	}

	return &Data{Triggered: false, short: short, long: long}, nil
}

func declareChannels(ctx context.Context, inst *algo.Instance, h algo.Helpers) error {
	p := args(inst)

	if err := h.DeclareChannel(ctx, types.CandlesChannel(p.Symbol, p.Short.Timeframe)); err != nil {
		return err
	}

	if p.Long.Timeframe == p.Short.Timeframe {
		return nil
	}

	return h.DeclareChannel(ctx, types.CandlesChannel(p.Symbol, p.Long.Timeframe))
}

// Order builds the order submitted on the cross.
func Order(p *Params, gid int64) types.Order {
	o := types.NewMarketOrder(gid, p.Symbol, p.Amount)
	if p.OrderType == types.OrderTypeLimit {
		o = types.NewLimitOrder(gid, p.Symbol, p.Amount, p.OrderPrice)
	}

	return common.Apply(o, p.Hidden, p.PostOnly, p.Lev, "crossover")
}

func onLifeStart(_ context.Context, inst *algo.Instance, _ algo.LifeStart) error {
	p := args(inst)

	inst.H.Logger().Info("waiting for moving average cross",
		zap.String("symbol", p.Symbol),
		zap.Int("short", p.Short.Period),
		zap.Int("long", p.Long.Period),
	)

	return nil
}

func feed(f *indicator.CandleFeed, ev algo.CandlesUpdate) {
	if ev.Snapshot {
		f.Seed(ev.Candles)

		return
	}

	for _, c := range ev.Candles {
		f.Push(c)
	}
}

// onCandles seeds the averages from snapshots and checks for a cross on live updates only,
// so a cross buried in history never fires.
func onCandles(ctx context.Context, inst *algo.Instance, ev algo.CandlesUpdate) error {
	p := args(inst)
	d := data(inst)

	if ev.Symbol != p.Symbol || d.Triggered {
		return nil
	}

	if ev.Timeframe == p.Short.Timeframe {
		feed(d.short, ev)
	}

	if ev.Timeframe == p.Long.Timeframe {
		feed(d.long, ev)
	}

	short, long := d.short.Indicator, d.long.Indicator
	if ev.Snapshot || !short.Ready() || !long.Ready() {
		return nil
	}

	if !short.Crossed(long.Value()) {
		return nil
	}

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		sd.Triggered = true
	})

	inst.H.Trace(ctx, "macrossover:crossed", map[string]any{"short": short.Value(), "long": long.Value()})

	message := fmt.Sprintf("%s: short average %v crossed long average %v", inst.State.Label, short.Value(), long.Value())
	if err := inst.H.Notify(ctx, algo.NotifyInfo, message); err != nil {
		return err
	}

	order := Order(p, inst.GID())

	// submitting through the teardown: batches of a stopping instance are dropped
	return inst.H.Stop(ctx, func(ctx context.Context, ex algo.Executor) error {
		return ex.SubmitOrders(ctx, []types.Order{order}, 0)
	}, algo.StopOptions{Reason: "moving averages crossed"})
}
