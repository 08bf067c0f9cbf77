// Package ococo implements the OCO-triggers-OCO bracket: an initial order which, once fully
// filled, is followed by a one-cancels-other pair (a limit leg and a stop leg sharing one cid).
package ococo

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/strategy/common"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

const (
	ID = "ococo"

	LabelInitial = "initial"
	LabelOCO     = "oco"
)

type Params struct {
	Symbol     string          `json:"symbol" yaml:"symbol" validate:"required"`
	Amount     float64         `json:"amount" yaml:"amount" validate:"required"`
	OrderType  types.OrderType `json:"orderType" yaml:"orderType" validate:"omitempty,oneof=MARKET LIMIT"`
	OrderPrice float64         `json:"orderPrice,omitempty" yaml:"orderPrice,omitempty" validate:"gte=0"`
	// OCOAmount defaults to the opposite of Amount, closing the position the initial order opened.
	OCOAmount     float64 `json:"ocoAmount,omitempty" yaml:"ocoAmount,omitempty"`
	OCOPrice      float64 `json:"ocoPrice" yaml:"ocoPrice" validate:"gt=0"`
	OCOStopPrice  float64 `json:"ocoStopPrice" yaml:"ocoStopPrice" validate:"gt=0"`
	Hidden        bool    `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	PostOnly      bool    `json:"postOnly,omitempty" yaml:"postOnly,omitempty"`
	Lev           int     `json:"lev,omitempty" yaml:"lev,omitempty" validate:"gte=0"`
	SubmitDelayMs int     `json:"submitDelay,omitempty" yaml:"submitDelay,omitempty" validate:"gte=0"`
}

type Data struct {
	InitialCID    string  `json:"initialCid"`
	InitialFilled bool    `json:"initialFilled"`
	OCOCID        string  `json:"ocoCid"`
	FilledAmount  float64 `json:"filledAmount"`
}

func data(inst *algo.Instance) *Data {
	d, _ := inst.State.Data.(*Data)

	return d
}

func args(inst *algo.Instance) *Params {
	p, _ := inst.State.Args.(*Params)

	return p
}

// Definition is the OCOCO bracket algo order.
var Definition = algo.MustDefine(algo.Definition{
	ID:   ID,
	Name: "OCOCO",
	Meta: algo.Meta{
		NewParams:       func() any { return &Params{} },
		ValidateParams:  validateParams,
		ProcessParams:   processParams,
		InitState:       func(any) (any, error) { return &Data{}, nil },
		Serialize:       nil,
		Unserialize:     nil,
		DeclareEvents:   nil,
		DeclareChannels: nil,
		GenOrderLabel: func(state *algo.State) string {
			p, _ := state.Args.(*Params)

			return fmt.Sprintf("OCOCO | %s %s | OCO %s @ %s stop %s", p.OrderType, common.FormatAmount(p.Amount),
				common.FormatAmount(p.OCOAmount), common.FormatAmount(p.OCOPrice), common.FormatAmount(p.OCOStopPrice))
		},
		GenPreview: func(a any) ([]types.Order, error) {
			p, _ := a.(*Params)

			return []types.Order{InitialOrder(p, 0), OCOOrder(p, 0)}, nil
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
			Cancel:   onOrderCancel,
			Error:    onOrderError,
		},
		Data: algo.DataHandlers{},
		Errors: algo.ErrorHandlers{
			MinimumSize:         onExchangeError,
			InsufficientBalance: onExchangeError,
			ActionDisabled:      onExchangeError,
		},
	},
})

func validateParams(a any) error {
	p, _ := a.(*Params)

	if types.IsDust(p.Amount) {
		return errors.New(errors.ErrCodeInvalidParameter, "amount is dust")
	}

	if p.OrderType != types.OrderTypeMarket && p.OrderPrice <= 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "limit initial order needs a positive order price")
	}

	oco := p.OCOAmount
	if oco == 0 {
		oco = -p.Amount
	}

	// a sell bracket takes profit above the stop, a buy bracket below it
	if oco < 0 && p.OCOPrice <= p.OCOStopPrice {
		return errors.Newf(errors.ErrCodeInvalidParameter, "sell OCO price %v must be above the stop price %v", p.OCOPrice, p.OCOStopPrice)
	}

	if oco > 0 && p.OCOPrice >= p.OCOStopPrice {
		return errors.Newf(errors.ErrCodeInvalidParameter, "buy OCO price %v must be below the stop price %v", p.OCOPrice, p.OCOStopPrice)
	}

	return nil
}

func processParams(a any) (any, error) {
	p, _ := a.(*Params)

	if p.OrderType == "" {
		p.OrderType = types.OrderTypeLimit
	}

	if p.OCOAmount == 0 {
		p.OCOAmount = -p.Amount
	}

	if p.OrderType == types.OrderTypeMarket {
		p.OrderPrice = 0
	}

	return p, nil
}

// InitialOrder builds the order that opens the bracket.
func InitialOrder(p *Params, gid int64) types.Order {
	o := types.NewMarketOrder(gid, p.Symbol, p.Amount)
	if p.OrderType == types.OrderTypeLimit {
		o = types.NewLimitOrder(gid, p.Symbol, p.Amount, p.OrderPrice)
	}

	return common.Apply(o, p.Hidden, p.PostOnly, p.Lev, LabelInitial)
}

// OCOOrder builds the one-cancels-other pair submitted once the initial order filled.
func OCOOrder(p *Params, gid int64) types.Order {
	o := types.NewLimitOrder(gid, p.Symbol, p.OCOAmount, p.OCOPrice)
	o.OCO = true
	o.OCOStopPrice = p.OCOStopPrice

	return common.Apply(o, p.Hidden, false, p.Lev, LabelOCO)
}

func onLifeStart(ctx context.Context, inst *algo.Instance, ev algo.LifeStart) error {
	d := data(inst)

	if ev.Resumed && len(inst.OpenOrders()) > 0 {
		inst.H.Logger().Info("resuming bracket", zap.Bool("initial_filled", d.InitialFilled))

		return nil
	}

	if ev.Resumed && d.InitialFilled {
		// the initial order filled but the OCO never reached the exchange
		return submitOCO(ctx, inst)
	}

	p := args(inst)
	order := InitialOrder(p, inst.GID())

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		sd.InitialCID = order.CID
	})

	return inst.H.SubmitAllOrders(ctx, []types.Order{order}, common.Millis(p.SubmitDelayMs))
}

func submitOCO(ctx context.Context, inst *algo.Instance) error {
	p := args(inst)
	order := OCOOrder(p, inst.GID())

	inst.H.UpdateState(ctx, func(state *algo.State) {
		sd, _ := state.Data.(*Data)
		sd.InitialFilled = true
		sd.OCOCID = order.CID
	})

	inst.H.Trace(ctx, "ococo:initial_filled", map[string]any{"oco_cid": order.CID})

	return inst.H.SubmitAllOrders(ctx, []types.Order{order}, common.Millis(p.SubmitDelayMs))
}

func onOrderFill(ctx context.Context, inst *algo.Instance, ev algo.OrderFill) error {
	d := data(inst)

	switch ev.Order.CID {
	case d.InitialCID:
		inst.H.UpdateState(ctx, func(state *algo.State) {
			sd, _ := state.Data.(*Data)
			sd.FilledAmount = utils.AddAmount(sd.FilledAmount, ev.FillAmount)
		})

		if !ev.Order.IsFullyFilled() || d.InitialFilled {
			return nil
		}

		return submitOCO(ctx, inst)
	case d.OCOCID:
		if !ev.Order.IsFullyFilled() {
			return nil
		}

		return stop(ctx, inst, algo.NotifySuccess, "OCO order filled", 0)
	}

	return nil
}

func onOrderCancel(ctx context.Context, inst *algo.Instance, ev algo.OrderCancel) error {
	return stop(ctx, inst, algo.NotifyError, fmt.Sprintf("order %s was cancelled externally", ev.Order.CID), 0)
}

func onOrderError(ctx context.Context, inst *algo.Instance, ev algo.OrderError) error {
	return stop(ctx, inst, algo.NotifyError, fmt.Sprintf("order error (%s): %s", ev.Order.CID, ev.Message), algo.DefaultSettleGrace)
}

func onExchangeError(ctx context.Context, inst *algo.Instance, ev algo.ExchangeError) error {
	return stop(ctx, inst, algo.NotifyError, fmt.Sprintf("%s: %s", ev.Kind, ev.Message), algo.DefaultSettleGrace)
}

// stop notifies and stops the bracket. Both OCO legs share the group on the exchange while only
// one local order exists, so teardown cancels by gid.
func stop(ctx context.Context, inst *algo.Instance, level algo.NotifyLevel, message string, grace time.Duration) error {
	if inst.Stopping() {
		return nil
	}

	if err := inst.H.Notify(ctx, level, fmt.Sprintf("%s: %s", inst.State.Label, message)); err != nil {
		return err
	}

	return inst.H.Stop(ctx, common.CancelGIDAfter(grace, inst.GID()), algo.StopOptions{Reason: message})
}
