// Package twap spreads an order over time: every slice interval a new slice is priced from
// the configured target and submitted. VWAP uses the same engine with slice amounts weighted
// per elapsed time bucket.
package twap

import (
	"context"
	"fmt"
	"math"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/strategy/common"
	"github.com/rxtech-lab/argo-algo/internal/strategy/pricing"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

const (
	ID     = "twap"
	VWAPID = "vwap"

	eventIntervalTick = "interval_tick"
)

// Target selects how each slice is priced.
type Target string

const (
	TargetFixed  Target = "FIXED"
	TargetOBMid  Target = "OB_MID"
	TargetOBSide Target = "OB_SIDE"
	TargetLast   Target = "LAST"
	// TargetCustom prices at Price but only submits while PriceCondition holds.
	TargetCustom Target = "CUSTOM"
)

// Condition gates custom targets.
type Condition string

const (
	// ConditionSoft submits once any price data arrived.
	ConditionSoft      Condition = "SOFT"
	ConditionMatchMid  Condition = "MATCH_MIDPOINT"
	ConditionMatchSide Condition = "MATCH_SIDE"
	ConditionMatchLast Condition = "MATCH_LAST"
)

type Params struct {
	Symbol          string          `json:"symbol" yaml:"symbol" validate:"required"`
	Amount          float64         `json:"amount" yaml:"amount" validate:"required"`
	SliceAmount     float64         `json:"sliceAmount,omitempty" yaml:"sliceAmount,omitempty"`
	SliceIntervalMs int             `json:"sliceInterval" yaml:"sliceInterval" validate:"gt=0"`
	OrderType       types.OrderType `json:"orderType,omitempty" yaml:"orderType,omitempty" validate:"omitempty,oneof=LIMIT MARKET"`
	PriceTarget     Target          `json:"priceTarget" yaml:"priceTarget" validate:"required,oneof=FIXED OB_MID OB_SIDE LAST CUSTOM"`
	Price           float64         `json:"price,omitempty" yaml:"price,omitempty" validate:"gte=0"`
	PriceCondition  Condition       `json:"priceCondition,omitempty" yaml:"priceCondition,omitempty" validate:"omitempty,oneof=SOFT MATCH_MIDPOINT MATCH_SIDE MATCH_LAST"`
	PriceDelta      float64         `json:"priceDelta,omitempty" yaml:"priceDelta,omitempty" validate:"gte=0"`
	TradeBeyondEnd  bool            `json:"tradeBeyondEnd" yaml:"tradeBeyondEnd"`
	Hidden          bool            `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	PostOnly        bool            `json:"postOnly,omitempty" yaml:"postOnly,omitempty"`
	Lev             int             `json:"lev,omitempty" yaml:"lev,omitempty" validate:"gte=0"`
	SubmitDelayMs   int             `json:"submitDelay,omitempty" yaml:"submitDelay,omitempty" validate:"gte=0"`
	CancelDelayMs   int             `json:"cancelDelay,omitempty" yaml:"cancelDelay,omitempty" validate:"gte=0"`
	// Weights are the relative VWAP volume of each slice interval bucket.
	Weights []float64 `json:"weights,omitempty" yaml:"weights,omitempty" validate:"omitempty,dive,gte=0"`
}

// Data is the persisted TWAP/VWAP state.
type Data struct {
	RemainingAmount float64   `json:"remainingAmount"`
	Ticks           int       `json:"ticks"`
	Buckets         []float64 `json:"buckets,omitempty"`

	timer  algo.TimerID
	market *pricing.Market
}

func data(inst *algo.Instance) *Data {
	d, _ := inst.State.Data.(*Data)

	return d
}

func args(inst *algo.Instance) *Params {
	p, _ := inst.State.Args.(*Params)

	return p
}

// Definition is the TWAP algo order.
var Definition = newDefinition(ID, "TWAP", false)

// VWAP is the volume weighted variant.
var VWAP = newDefinition(VWAPID, "VWAP", true)

func newDefinition(id, name string, weighted bool) *algo.Definition {
	return algo.MustDefine(algo.Definition{
		ID:   id,
		Name: name,
		Meta: algo.Meta{
			NewParams: func() any { return &Params{} },
			ValidateParams: func(a any) error {
				p, _ := a.(*Params)

				return validateParams(p, weighted)
			},
			ProcessParams: processParams,
			InitState: func(a any) (any, error) {
				p, _ := a.(*Params)

				return initState(p, weighted), nil
			},
			Serialize:       nil,
			Unserialize:     nil,
			DeclareEvents:   nil,
			DeclareChannels: declareChannels,
			GenOrderLabel: func(state *algo.State) string {
				p, _ := state.Args.(*Params)

				return fmt.Sprintf("%s | %s %s | every %dms", name,
					common.FormatAmount(p.Amount), p.PriceTarget, p.SliceIntervalMs)
			},
			GenPreview: func(a any) ([]types.Order, error) {
				p, _ := a.(*Params)
				d := initState(p, weighted)

				price, ok := ResolvePrice(p, d.market)
				if !ok {
					return nil, nil
				}

				return []types.Order{sliceOrder(p, 0, sliceAmount(p, d, p.Amount), price)}, nil
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
				Candles: nil,
			},
			Errors: algo.ErrorHandlers{},
		},
	})
}

func validateParams(p *Params, weighted bool) error {
	if weighted {
		if len(p.Weights) == 0 || utils.SumAmounts(p.Weights) <= 0 {
			return errors.New(errors.ErrCodeInvalidParameter, "vwap needs weights with a positive sum")
		}
	} else if !utils.SameSign(p.Amount, p.SliceAmount) {
		return errors.New(errors.ErrCodeInvalidParameter, "amount and slice amount must be non-zero with the same sign")
	}

	if (p.PriceTarget == TargetFixed || p.PriceTarget == TargetCustom) && p.Price <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "price target %s needs a price", p.PriceTarget)
	}

	if p.PriceCondition != "" && p.PriceCondition != ConditionSoft && p.PriceTarget != TargetCustom {
		return errors.Newf(errors.ErrCodeInvalidParameter, "price condition %s only applies to CUSTOM targets", p.PriceCondition)
	}

	return nil
}

func processParams(a any) (any, error) {
	p, _ := a.(*Params)

	if p.OrderType == "" {
		p.OrderType = types.OrderTypeLimit
	}

	if p.PriceCondition == "" {
		p.PriceCondition = ConditionSoft
	}

	return p, nil
}

func initState(p *Params, weighted bool) *Data {
	d := &Data{
		RemainingAmount: p.Amount,
		Ticks:           0,
		Buckets:         nil,
		timer:           0,
		market:          pricing.NewMarket(p.Symbol),
	}

	if weighted {
		d.Buckets = Buckets(p.Amount, p.Weights)
	}

	return d
}

// Buckets normalizes weights into per bucket amounts that sum exactly to amount.
func Buckets(amount float64, weights []float64) []float64 {
	return utils.SplitWeighted(amount, weights)
}

// BucketIndex maps the number of elapsed slice intervals to a weight bucket. Ticks past the
// last bucket keep using it.
func BucketIndex(ticks, buckets int) int {
	if buckets == 0 {
		return 0
	}

	return min(max(ticks, 0), buckets-1)
}

func needsBook(p *Params) bool {
	switch p.PriceTarget {
	case TargetOBMid, TargetOBSide:
		return true
	case TargetCustom:
		return p.PriceCondition != ConditionMatchLast
	case TargetFixed, TargetLast:
		return false
	}

	return false
}

func needsTrades(p *Params) bool {
	switch p.PriceTarget {
	case TargetLast:
		return true
	case TargetCustom:
		return p.PriceCondition == ConditionSoft || p.PriceCondition == ConditionMatchLast
	case TargetFixed, TargetOBMid, TargetOBSide:
		return false
	}

	return false
}

func declareChannels(ctx context.Context, inst *algo.Instance, h algo.Helpers) error {
	p := args(inst)

	if needsBook(p) {
		if err := h.DeclareChannel(ctx, types.BookChannel(p.Symbol)); err != nil {
			return err
		}
	}

	if needsTrades(p) {
		return h.DeclareChannel(ctx, types.TradesChannel(p.Symbol))
	}

	return nil
}

// ResolvePrice returns the slice price for the configured target. It returns false while the
// required market data is missing or a custom target's condition does not hold.
func ResolvePrice(p *Params, m *pricing.Market) (float64, bool) {
	switch p.PriceTarget {
	case TargetFixed:
		return p.Price, true
	case TargetOBMid:
		return m.Price(pricing.SourceMid)
	case TargetOBSide:
		return m.Side(p.Amount)
	case TargetLast:
		return m.Last()
	case TargetCustom:
		return p.Price, customMatches(p, m)
	}

	return 0, false
}

func customMatches(p *Params, m *pricing.Market) bool {
	var (
		live float64
		ok   bool
	)

	switch p.PriceCondition {
	case ConditionSoft:
		return m.HasData()
	case ConditionMatchMid:
		live, ok = m.Price(pricing.SourceMid)
	case ConditionMatchSide:
		live, ok = m.Side(p.Amount)
	case ConditionMatchLast:
		live, ok = m.Last()
	}

	return ok && math.Abs(live-p.Price) <= p.PriceDelta
}

func sliceAmount(p *Params, d *Data, available float64) float64 {
	slice := p.SliceAmount
	if len(d.Buckets) > 0 {
		slice = d.Buckets[BucketIndex(d.Ticks, len(d.Buckets))]
	}

	return utils.CapAmount(slice, available)
}

func sliceOrder(p *Params, gid int64, amount, price float64) types.Order {
	if p.OrderType == types.OrderTypeMarket {
		return common.Apply(types.NewMarketOrder(gid, p.Symbol, amount), false, false, p.Lev, "slice")
	}

	return common.Apply(types.NewLimitOrder(gid, p.Symbol, amount, price), p.Hidden, p.PostOnly, p.Lev, "slice")
}

func onLifeStart(ctx context.Context, inst *algo.Instance, _ algo.LifeStart) error {
	return inst.H.EmitSelf(ctx, eventIntervalTick)
}

func onIntervalTick(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
	p := args(inst)
	d := data(inst)

	d.timer = inst.H.Schedule(ctx, eventIntervalTick, common.Millis(p.SliceIntervalMs))

	live := inst.LiveOrders()
	available := d.RemainingAmount

	if p.TradeBeyondEnd {
		for _, o := range live {
			available = utils.SubAmount(available, o.Amount)
		}
	} else if err := inst.H.CancelAllOrders(ctx, live, common.Millis(p.CancelDelayMs)); err != nil {
		return err
	}

	defer inst.H.UpdateState(ctx, func(state *algo.State) {
		state.Data.(*Data).Ticks++
	})

	if types.IsDust(available) || !utils.SameSign(available, p.Amount) {
		return nil
	}

	price, ok := ResolvePrice(p, d.market)
	if !ok && (p.OrderType == types.OrderTypeLimit || p.PriceTarget == TargetCustom) {
		inst.H.Trace(ctx, "twap:no_price", map[string]any{"target": string(p.PriceTarget), "tick": d.Ticks})

		return nil
	}

	amount := sliceAmount(p, d, available)
	order := sliceOrder(p, inst.GID(), amount, price)

	inst.H.Trace(ctx, "twap:slice", map[string]any{
		"tick":   d.Ticks,
		"amount": amount,
		"price":  price,
	})

	return inst.H.SubmitAllOrders(ctx, []types.Order{order}, common.Millis(p.SubmitDelayMs))
}

func onOrderFill(ctx context.Context, inst *algo.Instance, ev algo.OrderFill) error {
	inst.H.UpdateState(ctx, func(state *algo.State) {
		d, _ := state.Data.(*Data)
		d.RemainingAmount = utils.SubAmount(d.RemainingAmount, ev.FillAmount)
	})

	p := args(inst)
	d := data(inst)

	inst.H.Logger().Debug("slice filled",
		zap.String("cid", ev.Order.CID),
		zap.Float64("fill", ev.FillAmount),
		zap.Float64("remaining", d.RemainingAmount))

	if types.IsDust(d.RemainingAmount) || !utils.SameSign(d.RemainingAmount, p.Amount) {
		inst.H.ClearTimer(d.timer)

		return common.Complete(ctx, inst, "all slices filled")
	}

	return nil
}
