// Package pingpong keeps a grid of "ping" orders on the book. Every filled ping is answered
// with a "pong" on the other side at a fixed distance; with Endless set, a filled pong re-arms
// its ping.
package pingpong

import (
	"context"
	"fmt"
	"math"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/indicator"
	"github.com/rxtech-lab/argo-algo/internal/strategy/common"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ID = "ping_pong"

	LabelPing = "ping"
	LabelPong = "pong"

	defaultCandleTimeframe = "1m"
)

// BBands seeds the ping grid from Bollinger Bands instead of a static price range.
type BBands struct {
	Period     int     `json:"period" yaml:"period" validate:"gt=1"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier" validate:"gt=0"`
	Timeframe  string  `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
}

type Params struct {
	Symbol string `json:"symbol" yaml:"symbol" validate:"required"`
	// Amount is the signed amount of every ping; pongs use the opposite sign.
	Amount        float64 `json:"amount" yaml:"amount" validate:"required"`
	PingMinPrice  float64 `json:"pingMinPrice,omitempty" yaml:"pingMinPrice,omitempty" validate:"gte=0"`
	PingMaxPrice  float64 `json:"pingMaxPrice,omitempty" yaml:"pingMaxPrice,omitempty" validate:"gte=0"`
	PongDistance  float64 `json:"pongDistance,omitempty" yaml:"pongDistance,omitempty" validate:"gte=0"`
	OrderCount    int     `json:"orderCount" yaml:"orderCount" validate:"gte=1"`
	Endless       bool    `json:"endless" yaml:"endless"`
	Hidden        bool    `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	PostOnly      bool    `json:"postOnly,omitempty" yaml:"postOnly,omitempty"`
	Lev           int     `json:"lev,omitempty" yaml:"lev,omitempty" validate:"gte=0"`
	SubmitDelayMs int     `json:"submitDelay,omitempty" yaml:"submitDelay,omitempty" validate:"gte=0"`
	BBands        *BBands `json:"bbands,omitempty" yaml:"bbands,omitempty"`
}

// Level pairs a ping price with its pong price.
type Level struct {
	Ping float64 `json:"ping"`
	Pong float64 `json:"pong"`
}

// Data is the persisted ping/pong state. Pings and Pongs map open order cids to table levels.
type Data struct {
	Table  []Level        `json:"table"`
	Pings  map[string]int `json:"pings"`
	Pongs  map[string]int `json:"pongs"`
	Seeded bool           `json:"seeded"`

	feed *indicator.CandleFeed
}

func data(inst *algo.Instance) *Data {
	d, _ := inst.State.Data.(*Data)

	return d
}

func args(inst *algo.Instance) *Params {
	p, _ := inst.State.Args.(*Params)

	return p
}

// Definition is the ping/pong algo order.
var Definition = algo.MustDefine(algo.Definition{
	ID:   ID,
	Name: "Ping/Pong",
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
			if p.BBands != nil {
				return fmt.Sprintf("Ping/Pong | %s x%d | bbands(%d)", common.FormatAmount(p.Amount), p.OrderCount, p.BBands.Period)
			}

			return fmt.Sprintf("Ping/Pong | %s x%d | %s-%s", common.FormatAmount(p.Amount), p.OrderCount,
				common.FormatAmount(p.PingMinPrice), common.FormatAmount(p.PingMaxPrice))
		},
		GenPreview: func(a any) ([]types.Order, error) {
			p, _ := a.(*Params)
			if p.BBands != nil {
				return nil, nil
			}

			table := BuildTable(p.PingMinPrice, p.PingMaxPrice, p.PongDistance, p.OrderCount, p.Amount)

			return pingOrders(p, 0, table), nil
		},
	},
	Events: &algo.Handlers{
		Self: nil,
		Life: algo.LifeHandlers{
			Start: onLifeStart,
			Stop:  nil,
		},
		Orders: &algo.OrderHandlers{
			Snapshot: nil,
			New:      nil,
			Update:   nil,
			Fill:     onOrderFill,
			Cancel:   common.StopOnExternalCancel,
			Error:    nil,
		},
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

	if p.BBands != nil {
		return nil
	}

	if p.PingMinPrice <= 0 || p.PingMaxPrice < p.PingMinPrice {
		return errors.Newf(errors.ErrCodeInvalidParameter, "invalid ping price range %v-%v", p.PingMinPrice, p.PingMaxPrice)
	}

	if p.PongDistance <= 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "pong distance must be positive")
	}

	if p.Amount < 0 && p.PingMinPrice-p.PongDistance <= 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "pong distance puts buy pongs at or below zero")
	}

	return nil
}

func processParams(a any) (any, error) {
	p, _ := a.(*Params)

	if p.BBands != nil && p.BBands.Timeframe == "" {
		p.BBands.Timeframe = defaultCandleTimeframe
	}

	return p, nil
}

func initState(a any) (any, error) {
	p, _ := a.(*Params)
	d := &Data{
		Table:  nil,
		Pings:  make(map[string]int),
		Pongs:  make(map[string]int),
		Seeded: false,
		feed:   nil,
	}

	if p.BBands == nil {
		d.Table = BuildTable(p.PingMinPrice, p.PingMaxPrice, p.PongDistance, p.OrderCount, p.Amount)
		d.Seeded = true

		return d, nil
	}

	bands, err := indicator.NewDefaultRegistry().NewIndicator(types.IndicatorTypeBollingerBands, p.BBands.Period, p.BBands.Multiplier)
	if err != nil {
		return nil, err
	}

	d.feed = indicator.NewCandleFeed(bands, types.CandlePriceClose)

	return d, nil
}

func declareChannels(ctx context.Context, inst *algo.Instance, h algo.Helpers) error {
	p := args(inst)
	if p.BBands == nil || data(inst).Seeded {
		return nil
	}

	return h.DeclareChannel(ctx, types.CandlesChannel(p.Symbol, p.BBands.Timeframe))
}

// BuildTable spaces count pings evenly between minPrice and maxPrice. Each pong sits distance
// away on the far side: above the ping for buys, below it for sells.
func BuildTable(minPrice, maxPrice, distance float64, count int, amount float64) []Level {
	if count < 1 {
		return nil
	}

	low := decimal.NewFromFloat(minPrice)
	step := decimal.Zero

	if count > 1 {
		step = decimal.NewFromFloat(maxPrice).Sub(low).Div(decimal.NewFromInt(int64(count - 1)))
	}

	offset := decimal.NewFromFloat(math.Copysign(distance, amount))
	table := make([]Level, count)

	for i := range table {
		ping := low.Add(step.Mul(decimal.NewFromInt(int64(i)))).Round(8)
		table[i] = Level{
			Ping: ping.InexactFloat64(),
			Pong: ping.Add(offset).Round(8).InexactFloat64(),
		}
	}

	return table
}

// SeedTable builds the grid from Bollinger Bands: buy pings between the lower and middle
// band, sell pings between the middle and upper band. Without a pong distance the pong of a
// ping lands one band width (middle to outer band) away.
func SeedTable(upper, middle, lower float64, p *Params) []Level {
	distance := p.PongDistance

	if p.Amount > 0 {
		if distance <= 0 {
			distance = upper - middle
		}

		return BuildTable(lower, middle, distance, p.OrderCount, p.Amount)
	}

	if distance <= 0 {
		distance = middle - lower
	}

	return BuildTable(middle, upper, distance, p.OrderCount, p.Amount)
}

func newOrder(p *Params, gid int64, amount, price float64, label string) types.Order {
	return common.Apply(types.NewLimitOrder(gid, p.Symbol, amount, price), p.Hidden, p.PostOnly, p.Lev, label)
}

func pingOrders(p *Params, gid int64, table []Level) []types.Order {
	orders := make([]types.Order, len(table))
	for i, level := range table {
		orders[i] = newOrder(p, gid, p.Amount, level.Ping, LabelPing)
	}

	return orders
}

func onLifeStart(ctx context.Context, inst *algo.Instance, ev algo.LifeStart) error {
	d := data(inst)

	if ev.Resumed && (len(d.Pings) > 0 || len(d.Pongs) > 0) {
		return nil
	}

	if !d.Seeded {
		inst.H.Logger().Info("waiting for bollinger bands to seed the ping table")

		return nil
	}

	return submitPings(ctx, inst)
}

func submitPings(ctx context.Context, inst *algo.Instance) error {
	p := args(inst)
	orders := pingOrders(p, inst.GID(), data(inst).Table)

	inst.H.UpdateState(ctx, func(state *algo.State) {
		d, _ := state.Data.(*Data)
		for i, o := range orders {
			d.Pings[o.CID] = i
		}
	})

	return inst.H.SubmitAllOrders(ctx, orders, common.Millis(p.SubmitDelayMs))
}

func onCandles(ctx context.Context, inst *algo.Instance, ev algo.CandlesUpdate) error {
	d := data(inst)
	if d.Seeded || d.feed == nil {
		return nil
	}

	if ev.Snapshot {
		d.feed.Seed(ev.Candles)
	} else {
		for _, c := range ev.Candles {
			d.feed.Push(c)
		}
	}

	bb, _ := d.feed.Indicator.(*indicator.BollingerBands)
	if bb == nil {
		return nil
	}

	upper, middle, lower, ok := bb.Bands()
	if !ok {
		return nil
	}

	table := SeedTable(upper, middle, lower, args(inst))

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		sd.Table = table
		sd.Seeded = true
	})

	inst.H.Trace(ctx, "pingpong:seeded", map[string]any{"upper": upper, "middle": middle, "lower": lower})

	return submitPings(ctx, inst)
}

func onOrderFill(ctx context.Context, inst *algo.Instance, ev algo.OrderFill) error {
	if !ev.Order.IsFullyFilled() {
		return nil
	}

	p := args(inst)
	d := data(inst)
	cid := ev.Order.CID

	if level, ok := d.Pings[cid]; ok {
		pong := newOrder(p, inst.GID(), -p.Amount, d.Table[level].Pong, LabelPong)

		inst.H.UpdateState(ctx, func(state *algo.State) {
			sd, _ := state.Data.(*Data)
			delete(sd.Pings, cid)
			sd.Pongs[pong.CID] = level
		})

		inst.H.Logger().Info("ping filled", zap.Float64("ping", d.Table[level].Ping), zap.Float64("pong", d.Table[level].Pong))

		return inst.H.SubmitAllOrders(ctx, []types.Order{pong}, common.Millis(p.SubmitDelayMs))
	}

	level, ok := d.Pongs[cid]
	if !ok {
		return nil
	}

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		delete(sd.Pongs, cid)
	})

	if p.Endless {
		ping := newOrder(p, inst.GID(), p.Amount, d.Table[level].Ping, LabelPing)

		inst.H.UpdateState(ctx, func(state *algo.State) {
			sd, _ := state.Data.(*Data)
			sd.Pings[ping.CID] = level
		})

		return inst.H.SubmitAllOrders(ctx, []types.Order{ping}, common.Millis(p.SubmitDelayMs))
	}

	if len(d.Pings) == 0 && len(d.Pongs) == 0 {
		return common.Complete(ctx, inst, "all pings and pongs filled")
	}

	return nil
}
