// Package iceberg slices a large limit order into small visible orders, optionally resting
// the excess as a hidden order, and resubmits after every fill until the amount is done.
package iceberg

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
	ID = "iceberg"

	// DefaultResubmitWindow collapses fills arriving close together into one resubmission.
	DefaultResubmitWindow = 50 * time.Millisecond

	eventSubmitOrders = "submit_orders"

	LabelSlice  = "slice"
	LabelHidden = "hidden"
)

// Params configures an iceberg. Amounts are signed: positive buys, negative sells.
type Params struct {
	Symbol         string  `json:"symbol" yaml:"symbol" validate:"required" jsonschema:"title=Symbol,description=Trading pair"`
	Amount         float64 `json:"amount" yaml:"amount" validate:"required" jsonschema:"title=Amount,description=Total signed amount"`
	SliceAmount    float64 `json:"sliceAmount" yaml:"sliceAmount" validate:"required" jsonschema:"title=Slice amount,description=Visible amount per slice"`
	Price          float64 `json:"price" yaml:"price" validate:"gt=0" jsonschema:"title=Price"`
	ExcessAsHidden bool    `json:"excessAsHidden" yaml:"excessAsHidden" jsonschema:"title=Excess as hidden,description=Rest the remainder as a hidden order"`
	PostOnly       bool    `json:"postOnly" yaml:"postOnly"`
	Lev            int     `json:"lev" yaml:"lev" validate:"gte=0"`
	SubmitDelayMs  int     `json:"submitDelay" yaml:"submitDelay" validate:"gte=0"`
	CancelDelayMs  int     `json:"cancelDelay" yaml:"cancelDelay" validate:"gte=0"`
	// ResubmitWindowMs overrides DefaultResubmitWindow.
	ResubmitWindowMs int `json:"resubmitWindow,omitempty" yaml:"resubmitWindow,omitempty" validate:"gte=0"`
}

// Data is the persisted iceberg state.
type Data struct {
	RemainingAmount float64 `json:"remainingAmount"`
}

func data(inst *algo.Instance) *Data {
	d, _ := inst.State.Data.(*Data)

	return d
}

func args(inst *algo.Instance) *Params {
	p, _ := inst.State.Args.(*Params)

	return p
}

// Definition is the iceberg algo order.
var Definition = algo.MustDefine(algo.Definition{
	ID:   ID,
	Name: "Iceberg",
	Meta: algo.Meta{
		NewParams:       func() any { return &Params{} },
		ValidateParams:  validateParams,
		ProcessParams:   processParams,
		InitState:       initState,
		Serialize:       nil,
		Unserialize:     nil,
		DeclareEvents:   nil,
		DeclareChannels: nil,
		GenOrderLabel:   genOrderLabel,
		GenPreview: func(a any) ([]types.Order, error) {
			p, _ := a.(*Params)

			return GenerateOrders(p, 0, p.Amount), nil
		},
	},
	Events: &algo.Handlers{
		Self: map[string]algo.Handler[algo.SelfEvent]{
			eventSubmitOrders: onSubmitOrders,
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
			Cancel:   onOrderCancel,
			Error:    nil,
		},
		Data:   algo.DataHandlers{},
		Errors: algo.ErrorHandlers{},
	},
})

func validateParams(a any) error {
	p, _ := a.(*Params)

	if !utils.SameSign(p.Amount, p.SliceAmount) {
		return errors.New(errors.ErrCodeInvalidParameter, "amount and slice amount must have the same sign")
	}

	if types.IsDust(p.Amount) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "amount %v is below dust", p.Amount)
	}

	return nil
}

func processParams(a any) (any, error) {
	p, _ := a.(*Params)

	if p.ResubmitWindowMs == 0 {
		p.ResubmitWindowMs = int(DefaultResubmitWindow / time.Millisecond)
	}

	return p, nil
}

func initState(a any) (any, error) {
	p, _ := a.(*Params)

	return &Data{RemainingAmount: p.Amount}, nil
}

func genOrderLabel(state *algo.State) string {
	p, _ := state.Args.(*Params)

	return fmt.Sprintf("Iceberg | %s @ %s | slice %s",
		common.FormatAmount(p.Amount), common.FormatAmount(p.Price), common.FormatAmount(p.SliceAmount))
}

// GenerateOrders returns the orders for the next round: the hidden excess first when
// ExcessAsHidden is set and the leftover is above dust, then the visible slice capped at
// the remaining amount.
func GenerateOrders(p *Params, gid int64, remaining float64) []types.Order {
	if types.IsDust(remaining) {
		return nil
	}

	slice := utils.CapAmount(p.SliceAmount, remaining)
	excess := utils.SubAmount(remaining, slice)

	orders := make([]types.Order, 0, 2)

	if p.ExcessAsHidden && !types.IsDust(excess) {
		hidden := types.NewLimitOrder(gid, p.Symbol, excess, p.Price)
		orders = append(orders, common.Apply(hidden, true, false, p.Lev, LabelHidden))
	}

	visible := types.NewLimitOrder(gid, p.Symbol, slice, p.Price)
	orders = append(orders, common.Apply(visible, false, p.PostOnly, p.Lev, LabelSlice))

	return orders
}

func onLifeStart(ctx context.Context, inst *algo.Instance, ev algo.LifeStart) error {
	if ev.Resumed && len(inst.OpenOrders()) > 0 {
		inst.H.Logger().Info("resumed iceberg with open orders",
			zap.Float64("remaining", data(inst).RemainingAmount),
			zap.Int("open", len(inst.OpenOrders())))

		return nil
	}

	return inst.H.EmitSelf(ctx, eventSubmitOrders)
}

func onSubmitOrders(ctx context.Context, inst *algo.Instance, _ algo.SelfEvent) error {
	p := args(inst)
	remaining := data(inst).RemainingAmount

	orders := GenerateOrders(p, inst.GID(), remaining)
	if len(orders) == 0 {
		return common.Complete(ctx, inst, "iceberg completed")
	}

	inst.H.Trace(ctx, "iceberg:generate", map[string]any{
		"remaining": remaining,
		"orders":    len(orders),
	})

	return inst.H.SubmitAllOrders(ctx, orders, common.Millis(p.SubmitDelayMs))
}

// onOrderFill cancels the siblings of the filled order, books the fill and either completes
// or schedules one debounced resubmission.
func onOrderFill(ctx context.Context, inst *algo.Instance, ev algo.OrderFill) error {
	p := args(inst)

	if err := inst.H.CancelAllOrders(ctx, inst.LiveOrders(), common.Millis(p.CancelDelayMs)); err != nil {
		return err
	}

	inst.H.UpdateState(ctx, func(state *algo.State) {
		d, _ := state.Data.(*Data)
		d.RemainingAmount = utils.SubAmount(d.RemainingAmount, ev.FillAmount)
	})

	remaining := data(inst).RemainingAmount

	inst.H.Logger().Info("iceberg order filled",
		zap.String("cid", ev.Order.CID),
		zap.Float64("fill", ev.FillAmount),
		zap.Float64("remaining", remaining))

	if types.IsDust(remaining) || !utils.SameSign(remaining, p.Amount) {
		return common.Complete(ctx, inst, "iceberg completed")
	}

	inst.H.Debounce(ctx, eventSubmitOrders, common.Millis(p.ResubmitWindowMs))

	return nil
}

func onOrderCancel(ctx context.Context, inst *algo.Instance, ev algo.OrderCancel) error {
	p := args(inst)

	if err := inst.H.CancelAllOrders(ctx, inst.LiveOrders(), common.Millis(p.CancelDelayMs)); err != nil {
		return err
	}

	return common.Abort(ctx, inst, 0, fmt.Sprintf("order %s was cancelled externally", ev.Order.CID))
}
