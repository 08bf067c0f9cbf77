// Package triangular runs a three leg arbitrage chain. Each leg is generated only after the
// previous one filled completely, and its amount is derived from what that leg actually
// filled, converted through the live price of the next symbol.
package triangular

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/strategy/common"
	"github.com/rxtech-lab/argo-algo/internal/strategy/pricing"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ID = "triangular_arbitrage"

	LegCount = 3

	SideBuy  Side = "buy"
	SideSell Side = "sell"

	// amountPrecision is the number of decimals a derived leg amount is truncated to.
	amountPrecision = 8
)

type Side string

type Leg struct {
	Symbol string `json:"symbol" yaml:"symbol" validate:"required"`
	Side   Side   `json:"side" yaml:"side" validate:"required,oneof=buy sell"`
}

type Params struct {
	Legs [LegCount]Leg `json:"legs" yaml:"legs" validate:"dive"`
	// Amount is the unsigned amount of the first leg, in its base currency.
	Amount        float64         `json:"amount" yaml:"amount" validate:"gt=0"`
	OrderType     types.OrderType `json:"orderType" yaml:"orderType" validate:"omitempty,oneof=MARKET LIMIT"`
	Hidden        bool            `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	PostOnly      bool            `json:"postOnly,omitempty" yaml:"postOnly,omitempty"`
	Lev           int             `json:"lev,omitempty" yaml:"lev,omitempty" validate:"gte=0"`
	SubmitDelayMs int             `json:"submitDelay,omitempty" yaml:"submitDelay,omitempty" validate:"gte=0"`
}

// Data tracks the chain. Held is what the last filled leg left in the currency the next
// leg spends or sells.
type Data struct {
	Leg     int     `json:"leg"`
	LegCID  string  `json:"legCid"`
	Held    float64 `json:"held"`
	Waiting bool    `json:"waiting"`

	markets map[string]*pricing.Market
}

func data(inst *algo.Instance) *Data {
	d, _ := inst.State.Data.(*Data)

	return d
}

func args(inst *algo.Instance) *Params {
	p, _ := inst.State.Args.(*Params)

	return p
}

// Definition is the triangular arbitrage algo order.
var Definition = algo.MustDefine(algo.Definition{
	ID:   ID,
	Name: "Triangular Arbitrage",
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
			legs := make([]string, 0, LegCount)

			for _, l := range p.Legs {
				legs = append(legs, fmt.Sprintf("%s %s", l.Side, l.Symbol))
			}

			return fmt.Sprintf("Triangular | %s | %s", common.FormatAmount(p.Amount), strings.Join(legs, " > "))
		},
		GenPreview: func(a any) ([]types.Order, error) {
			p, _ := a.(*Params)
			if p.OrderType == types.OrderTypeLimit {
				return nil, nil
			}

			return []types.Order{legOrder(p, 0, 0, firstLegAmount(p), 0)}, nil
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
			Book:    onBook,
			Candles: nil,
		},
		Errors: algo.ErrorHandlers{},
	},
})

func validateParams(a any) error {
	p, _ := a.(*Params)

	for i, l := range p.Legs {
		if l.Symbol == "" {
			return errors.Newf(errors.ErrCodeInvalidParameter, "leg %d has no symbol", i+1)
		}
	}

	if p.Legs[0].Symbol == p.Legs[1].Symbol || p.Legs[1].Symbol == p.Legs[2].Symbol {
		return errors.New(errors.ErrCodeInvalidParameter, "consecutive legs must trade different symbols")
	}

	return nil
}

func processParams(a any) (any, error) {
	p, _ := a.(*Params)

	if p.OrderType == "" {
		p.OrderType = types.OrderTypeMarket
	}

	return p, nil
}

func initState(a any) (any, error) {
	p, _ := a.(*Params)
	markets := make(map[string]*pricing.Market, LegCount)

	for _, l := range p.Legs {
		markets[l.Symbol] = pricing.NewMarket(l.Symbol)
	}

	return &Data{Leg: 0, LegCID: "", Held: 0, Waiting: false, markets: markets}, nil
}

func declareChannels(ctx context.Context, inst *algo.Instance, h algo.Helpers) error {
	seen := make(map[string]bool, LegCount)

	for _, l := range args(inst).Legs {
		if seen[l.Symbol] {
			continue
		}

		seen[l.Symbol] = true

		if err := h.DeclareChannel(ctx, types.BookChannel(l.Symbol)); err != nil {
			return err
		}
	}

	return nil
}

func firstLegAmount(p *Params) float64 {
	if p.Legs[0].Side == SideSell {
		return -p.Amount
	}

	return p.Amount
}

// HeldAfter returns what a fully filled leg left to trade: the base amount after a buy, the
// quote proceeds (filled amount times average price) after a sell.
func HeldAfter(leg Leg, o types.Order) float64 {
	filled := decimal.NewFromFloat(math.Abs(o.FilledAmount()))
	if leg.Side == SideBuy {
		return filled.InexactFloat64()
	}

	price := o.PriceAvg
	if price == 0 {
		price = o.PriceOr(0)
	}

	return filled.Mul(decimal.NewFromFloat(price)).InexactFloat64()
}

// NextLegAmount converts held into the signed amount of leg: a buy spends held at price, a
// sell sells all of it. Amounts are truncated so a leg never spends more than it holds.
func NextLegAmount(held float64, leg Leg, price float64) float64 {
	amount := decimal.NewFromFloat(held)

	if leg.Side == SideSell {
		return amount.Truncate(amountPrecision).Neg().InexactFloat64()
	}

	if price <= 0 {
		return 0
	}

	return amount.Div(decimal.NewFromFloat(price)).Truncate(amountPrecision).InexactFloat64()
}

func legOrder(p *Params, gid int64, idx int, amount, price float64) types.Order {
	o := types.NewMarketOrder(gid, p.Legs[idx].Symbol, amount)
	if p.OrderType == types.OrderTypeLimit {
		o = types.NewLimitOrder(gid, p.Legs[idx].Symbol, amount, price)
	}

	return common.Apply(o, p.Hidden, p.PostOnly, p.Lev, fmt.Sprintf("leg %d", idx+1))
}

func onLifeStart(ctx context.Context, inst *algo.Instance, ev algo.LifeStart) error {
	if ev.Resumed && len(inst.OpenOrders()) > 0 {
		return nil
	}

	return submitLeg(ctx, inst)
}

func onBook(ctx context.Context, inst *algo.Instance, ev algo.BookUpdate) error {
	d := data(inst)

	if m, ok := d.markets[ev.Book.Symbol]; ok {
		m.OnBook(ev)
	}

	if !d.Waiting || ev.Book.Symbol != args(inst).Legs[d.Leg].Symbol {
		return nil
	}

	return submitLeg(ctx, inst)
}

// submitLeg sends the current leg. Legs that need a price wait for the next book update of
// their symbol.
func submitLeg(ctx context.Context, inst *algo.Instance) error {
	p := args(inst)
	d := data(inst)
	leg := p.Legs[d.Leg]
	m := d.markets[leg.Symbol]

	var (
		amount float64
		price  float64
		ok     bool
	)

	if d.Leg == 0 {
		amount = firstLegAmount(p)
		price, ok = m.Taker(amount)
		ok = ok || p.OrderType == types.OrderTypeMarket
	} else {
		price, ok = m.Taker(sideAmount(leg))
		ok = ok || (leg.Side == SideSell && p.OrderType == types.OrderTypeMarket)
		amount = NextLegAmount(d.Held, leg, price)
	}

	if !ok {
		inst.H.UpdateState(ctx, func(state *algo.State) {
			sd, _ := state.Data.(*Data)
			sd.Waiting = true
		})

		inst.H.Trace(ctx, "triangular:no_price", map[string]any{"leg": d.Leg + 1, "symbol": leg.Symbol})

		return nil
	}

	if types.IsDust(amount) {
		return common.Abort(ctx, inst, 0, fmt.Sprintf("leg %d amount is dust", d.Leg+1))
	}

	order := legOrder(p, inst.GID(), d.Leg, amount, price)

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		sd.Waiting = false
		sd.LegCID = order.CID
	})

	inst.H.Logger().Info("submitting leg", zap.Int("leg", d.Leg+1), zap.String("symbol", leg.Symbol), zap.Float64("amount", amount))

	return inst.H.SubmitAllOrders(ctx, []types.Order{order}, common.Millis(p.SubmitDelayMs))
}

func sideAmount(leg Leg) float64 {
	if leg.Side == SideSell {
		return -1
	}

	return 1
}

func onOrderFill(ctx context.Context, inst *algo.Instance, ev algo.OrderFill) error {
	d := data(inst)

	if ev.Order.CID != d.LegCID || !ev.Order.IsFullyFilled() {
		return nil
	}

	p := args(inst)
	held := HeldAfter(p.Legs[d.Leg], ev.Order)

	inst.H.Trace(ctx, "triangular:leg_filled", map[string]any{"leg": d.Leg + 1, "held": held})

	if d.Leg == LegCount-1 {
		return common.Complete(ctx, inst, fmt.Sprintf("all legs filled, %s held", common.FormatAmount(held)))
	}

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		sd.Leg++
		sd.Held = held
		sd.LegCID = ""
	})

	return submitLeg(ctx, inst)
}
