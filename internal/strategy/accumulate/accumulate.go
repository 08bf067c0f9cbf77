// Package accumulate buys or sells a total amount in slices on a (randomly distorted)
// interval, optionally waiting for each slice to fill and catching up when it falls behind.
package accumulate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/strategy/common"
	"github.com/rxtech-lab/argo-algo/internal/strategy/pricing"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

const (
	ID = "accumulate_distribute"

	// CatchUpDelay replaces the slice interval while the algo is behind schedule.
	CatchUpDelay = 200 * time.Millisecond

	defaultCandleTimeframe = "1m"

	eventIntervalTick = "interval_tick"
)

// OrderType is the kind of child order each slice becomes.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeRelative OrderType = "RELATIVE"
)

// Relative prices a slice from a live source plus a delta.
type Relative struct {
	Type   pricing.Source `json:"type" yaml:"type" validate:"required,oneof=bid ask mid trade sma ema"`
	Period int            `json:"period,omitempty" yaml:"period,omitempty" validate:"gte=0"`
	Delta  float64        `json:"delta,omitempty" yaml:"delta,omitempty"`
}

type Params struct {
	Symbol             string    `json:"symbol" yaml:"symbol" validate:"required"`
	Amount             float64   `json:"amount" yaml:"amount" validate:"required"`
	SliceAmount        float64   `json:"sliceAmount" yaml:"sliceAmount" validate:"required"`
	SliceIntervalMs    int       `json:"sliceInterval" yaml:"sliceInterval" validate:"gt=0"`
	IntervalDistortion float64   `json:"intervalDistortion,omitempty" yaml:"intervalDistortion,omitempty" validate:"gte=0,lt=1"`
	AmountDistortion   float64   `json:"amountDistortion,omitempty" yaml:"amountDistortion,omitempty" validate:"gte=0,lt=1"`
	OrderType          OrderType `json:"orderType" yaml:"orderType" validate:"required,oneof=MARKET LIMIT RELATIVE"`
	LimitPrice         float64   `json:"limitPrice,omitempty" yaml:"limitPrice,omitempty" validate:"gte=0"`
	AwaitFill          bool      `json:"awaitFill" yaml:"awaitFill"`
	CatchUp            bool      `json:"catchUp" yaml:"catchUp"`
	RelativeOffset     *Relative `json:"relativeOffset,omitempty" yaml:"relativeOffset,omitempty"`
	RelativeCap        *Relative `json:"relativeCap,omitempty" yaml:"relativeCap,omitempty"`
	CandleTimeframe    string    `json:"candleTimeframe,omitempty" yaml:"candleTimeframe,omitempty"`
	// MaxNoDataTicks stops the algo after that many ticks without the price data a relative
	// slice needs. Zero waits forever.
	MaxNoDataTicks int  `json:"maxNoDataTicks,omitempty" yaml:"maxNoDataTicks,omitempty" validate:"gte=0"`
	Hidden         bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	PostOnly       bool `json:"postOnly,omitempty" yaml:"postOnly,omitempty"`
	Lev            int  `json:"lev,omitempty" yaml:"lev,omitempty" validate:"gte=0"`
	SubmitDelayMs  int  `json:"submitDelay,omitempty" yaml:"submitDelay,omitempty" validate:"gte=0"`
	CancelDelayMs  int  `json:"cancelDelay,omitempty" yaml:"cancelDelay,omitempty" validate:"gte=0"`
	// Seed makes the distortions reproducible. Zero picks a random seed.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Data is the persisted accumulate/distribute state.
type Data struct {
	OrderAmounts    []float64 `json:"orderAmounts"`
	RemainingAmount float64   `json:"remainingAmount"`
	CurrentOrder    int       `json:"currentOrder"`
	OrdersBehind    int       `json:"ordersBehind"`
	NoDataTicks     int       `json:"noDataTicks"`

	timer  algo.TimerID
	market *pricing.Market
	rnd    *rand.Rand
}

func data(inst *algo.Instance) *Data {
	d, _ := inst.State.Data.(*Data)

	return d
}

func args(inst *algo.Instance) *Params {
	p, _ := inst.State.Args.(*Params)

	return p
}

// Definition is the accumulate/distribute algo order.
var Definition = algo.MustDefine(algo.Definition{
	ID:   ID,
	Name: "Accumulate/Distribute",
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

			return fmt.Sprintf("A/D | %s %s | slice %s every %dms", common.FormatAmount(p.Amount), p.OrderType,
				common.FormatAmount(p.SliceAmount), p.SliceIntervalMs)
		},
		GenPreview: func(a any) ([]types.Order, error) {
			p, _ := a.(*Params)

			st, err := initState(p)
			if err != nil {
				return nil, err
			}

			d, _ := st.(*Data)

			var orders []types.Order

			for _, amount := range d.OrderAmounts {
				o, ok := GenerateOrder(p, d.market, 0, amount)
				if !ok {
					return nil, nil
				}

				orders = append(orders, o)
			}

			return orders, nil
		},
	},
	Events: &algo.Handlers{
		Self: map[string]algo.Handler[algo.SelfEvent]{
			eventIntervalTick: onIntervalTick,
		},
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
			Trades: func(_ context.Context, inst *algo.Instance, ev algo.TradesUpdate) error {
				data(inst).market.OnTrades(ev)

				return nil
			},
			Book: func(_ context.Context, inst *algo.Instance, ev algo.BookUpdate) error {
				data(inst).market.OnBook(ev)

				return nil
			},
			Candles: func(_ context.Context, inst *algo.Instance, ev algo.CandlesUpdate) error {
				data(inst).market.OnCandles(ev)

				return nil
			},
		},
		Errors: algo.ErrorHandlers{},
	},
})

func validateParams(a any) error {
	p, _ := a.(*Params)

	if !utils.SameSign(p.Amount, p.SliceAmount) {
		return errors.New(errors.ErrCodeInvalidParameter, "amount and slice amount must have the same sign")
	}

	switch p.OrderType {
	case OrderTypeLimit:
		if p.LimitPrice <= 0 {
			return errors.New(errors.ErrCodeInvalidParameter, "limit orders need a limit price")
		}
	case OrderTypeRelative:
		if p.RelativeOffset == nil {
			return errors.New(errors.ErrCodeInvalidParameter, "relative orders need a relative offset")
		}

		for _, rel := range []*Relative{p.RelativeOffset, p.RelativeCap} {
			if rel != nil && (rel.Type == pricing.SourceSMA || rel.Type == pricing.SourceEMA) && rel.Period <= 0 {
				return errors.Newf(errors.ErrCodeInvalidParameter, "%s source needs a period", rel.Type)
			}
		}
	case OrderTypeMarket:
	}

	return nil
}

func processParams(a any) (any, error) {
	p, _ := a.(*Params)

	if p.CandleTimeframe == "" {
		p.CandleTimeframe = defaultCandleTimeframe
	}

	if !p.AwaitFill {
		p.CatchUp = false
	}

	return p, nil
}

func initState(a any) (any, error) {
	p, _ := a.(*Params)
	rnd := newRand(p.Seed)
	market := pricing.NewMarket(p.Symbol)

	for _, rel := range relatives(p) {
		if err := market.Track(rel.Type, rel.Period, p.CandleTimeframe); err != nil {
			return nil, err
		}
	}

	return &Data{
		OrderAmounts:    SliceAmounts(p, rnd),
		RemainingAmount: p.Amount,
		CurrentOrder:    0,
		OrdersBehind:    0,
		NoDataTicks:     0,
		timer:           0,
		market:          market,
		rnd:             rnd,
	}, nil
}

func relatives(p *Params) []*Relative {
	if p.OrderType != OrderTypeRelative {
		return nil
	}

	out := []*Relative{p.RelativeOffset}
	if p.RelativeCap != nil {
		out = append(out, p.RelativeCap)
	}

	return out
}

func declareChannels(ctx context.Context, inst *algo.Instance, h algo.Helpers) error {
	p := args(inst)

	for _, rel := range relatives(p) {
		if err := h.DeclareChannel(ctx, rel.Type.Channel(p.Symbol, p.CandleTimeframe)); err != nil {
			return err
		}
	}

	return nil
}

// GenerateOrder builds the slice order for amount. It returns false when a relative price
// source has no data yet.
func GenerateOrder(p *Params, m *pricing.Market, gid int64, amount float64) (types.Order, bool) {
	switch p.OrderType {
	case OrderTypeMarket:
		return common.Apply(types.NewMarketOrder(gid, p.Symbol, amount), false, false, p.Lev, "slice"), true
	case OrderTypeLimit:
		return common.Apply(types.NewLimitOrder(gid, p.Symbol, amount, p.LimitPrice), p.Hidden, p.PostOnly, p.Lev, "slice"), true
	case OrderTypeRelative:
		price, ok := RelativePrice(p, m, amount)
		if !ok {
			return types.Order{}, false
		}

		return common.Apply(types.NewLimitOrder(gid, p.Symbol, amount, price), p.Hidden, p.PostOnly, p.Lev, "slice"), true
	}

	return types.Order{}, false
}

// RelativePrice resolves the offset source plus its delta, capped for buys at (and floored
// for sells at) the cap source plus its delta.
func RelativePrice(p *Params, m *pricing.Market, amount float64) (float64, bool) {
	offset, ok := m.PriceOf(p.RelativeOffset.Type, p.RelativeOffset.Period)
	if !ok {
		return 0, false
	}

	price := offset + p.RelativeOffset.Delta

	if p.RelativeCap == nil {
		return price, true
	}

	limit, ok := m.PriceOf(p.RelativeCap.Type, p.RelativeCap.Period)
	if !ok {
		return 0, false
	}

	limit += p.RelativeCap.Delta

	if amount > 0 {
		return math.Min(price, limit), true
	}

	return math.Max(price, limit), true
}

func onLifeStart(ctx context.Context, inst *algo.Instance, ev algo.LifeStart) error {
	if ev.Resumed && len(inst.LiveOrders()) > 0 {
		data(inst).timer = inst.H.Schedule(ctx, eventIntervalTick, NextInterval(args(inst), data(inst).rnd))

		return nil
	}

	return inst.H.EmitSelf(ctx, eventIntervalTick)
}

func (d *Data) nextAmount(p *Params) float64 {
	if d.CurrentOrder < len(d.OrderAmounts) {
		return utils.CapAmount(d.OrderAmounts[d.CurrentOrder], d.RemainingAmount)
	}

	return utils.CapAmount(p.SliceAmount, d.RemainingAmount)
}

func onIntervalTick(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
	p := args(inst)
	d := data(inst)

	d.timer = inst.H.Schedule(ctx, eventIntervalTick, NextInterval(p, d.rnd))

	if live := inst.LiveOrders(); len(live) > 0 {
		if p.AwaitFill {
			inst.H.UpdateState(ctx, func(state *algo.State) {
				state.Data.(*Data).OrdersBehind++
			})

			inst.H.Trace(ctx, "ad:behind", map[string]any{"ordersBehind": d.OrdersBehind})

			return nil
		}

		if err := inst.H.CancelAllOrders(ctx, live, common.Millis(p.CancelDelayMs)); err != nil {
			return err
		}
	}

	if types.IsDust(d.RemainingAmount) {
		return nil
	}

	amount := d.nextAmount(p)

	order, ok := GenerateOrder(p, d.market, inst.GID(), amount)
	if !ok {
		return onNoData(ctx, inst)
	}

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		sd.CurrentOrder++
		sd.NoDataTicks = 0
	})

	inst.H.Trace(ctx, "ad:slice", map[string]any{
		"slice":  d.CurrentOrder,
		"amount": amount,
		"price":  order.PriceOr(0),
	})

	return inst.H.SubmitAllOrders(ctx, []types.Order{order}, common.Millis(p.SubmitDelayMs))
}

// onNoData applies the no-data policy: wait, or give up after MaxNoDataTicks ticks.
func onNoData(ctx context.Context, inst *algo.Instance) error {
	p := args(inst)

	inst.H.UpdateState(ctx, func(state *algo.State) {
		state.Data.(*Data).NoDataTicks++
	})

	ticks := data(inst).NoDataTicks
	inst.H.Trace(ctx, "ad:no_data", map[string]any{"ticks": ticks})

	if p.MaxNoDataTicks == 0 || ticks < p.MaxNoDataTicks {
		return nil
	}

	return common.Abort(ctx, inst, algo.DefaultSettleGrace,
		fmt.Sprintf("no price data for %d ticks", ticks))
}

func onOrderFill(ctx context.Context, inst *algo.Instance, ev algo.OrderFill) error {
	p := args(inst)

	inst.H.UpdateState(ctx, func(state *algo.State) {
		d, _ := state.Data.(*Data)
		d.RemainingAmount = utils.SubAmount(d.RemainingAmount, ev.FillAmount)
	})

	d := data(inst)

	if types.IsDust(d.RemainingAmount) || !utils.SameSign(d.RemainingAmount, p.Amount) {
		return common.Complete(ctx, inst, "total amount filled")
	}

	if !ev.Order.IsFullyFilled() || d.OrdersBehind == 0 {
		return nil
	}

	inst.H.UpdateState(ctx, func(state *algo.State) {
		state.Data.(*Data).OrdersBehind--
	})

	inst.H.Logger().Debug("slice filled while behind schedule",
		zap.Int("ordersBehind", d.OrdersBehind), zap.Bool("catchUp", p.CatchUp))

	if !p.CatchUp {
		return nil
	}

	inst.H.ClearTimer(d.timer)
	d.timer = inst.H.Schedule(ctx, eventIntervalTick, CatchUpDelay)

	return nil
}
