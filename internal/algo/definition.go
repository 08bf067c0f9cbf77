package algo

import (
	"context"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// Handler handles one event kind for an instance. A returned error is logged by the
// runtime; the instance keeps running.
type Handler[E Event] func(ctx context.Context, inst *Instance, ev E) error

type LifeHandlers struct {
	Start Handler[LifeStart]
	Stop  Handler[LifeStop]
}

type OrderHandlers struct {
	Snapshot Handler[OrderSnapshot]
	New      Handler[OrderNew]
	Update   Handler[OrderUpdate]
	Fill     Handler[OrderFill]
	Cancel   Handler[OrderCancel]
	// Error defaults to DefaultOrderErrorHandler.
	Error Handler[OrderError]
}

type DataHandlers struct {
	Trades  Handler[TradesUpdate]
	Book    Handler[BookUpdate]
	Candles Handler[CandlesUpdate]
}

// ErrorHandlers default to DefaultExchangeErrorHandler.
type ErrorHandlers struct {
	MinimumSize         Handler[ExchangeError]
	InsufficientBalance Handler[ExchangeError]
	ActionDisabled      Handler[ExchangeError]
}

// Handlers is the event table of a definition. Nil handlers are skipped.
type Handlers struct {
	Self   map[string]Handler[SelfEvent]
	Life   LifeHandlers
	Orders *OrderHandlers
	Data   DataHandlers
	Errors ErrorHandlers
}

// Meta holds the optional behaviour of a definition. NewParams and InitState are required.
type Meta struct {
	// NewParams returns a pointer to a zero parameter struct; raw input is decoded into it.
	NewParams func() any
	// ValidateParams rejects parameters beyond what the struct tags express.
	ValidateParams func(params any) error
	// ProcessParams normalizes validated parameters (signs, defaults, units).
	ProcessParams func(params any) (any, error)
	// InitState returns the strategy specific state, a pointer to a JSON serializable struct.
	InitState func(args any) (any, error)
	// Serialize overrides DefaultSerialize.
	Serialize func(state *State) (Record, error)
	// Unserialize overrides the default restore of a persisted record.
	Unserialize func(rec Record) (*State, error)
	// DeclareEvents aliases internal event names onto self handlers.
	DeclareEvents func(ctx context.Context, inst *Instance, h Helpers) error
	// DeclareChannels subscribes the instance to market data.
	DeclareChannels func(ctx context.Context, inst *Instance, h Helpers) error
	GenOrderLabel   func(state *State) string
	// GenPreview returns the orders the algorithm would submit first.
	GenPreview func(args any) ([]types.Order, error)
}

// Definition is the immutable description of an algorithm.
type Definition struct {
	ID     string
	Name   string
	Meta   Meta
	Events *Handlers
}

// Define validates def and back-fills the default error handlers. The returned definition
// is a copy and must not be mutated afterwards.
func Define(def Definition) (*Definition, error) {
	if def.ID == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "algo order definition has no id")
	}

	if def.Events == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "algo order %s has no event handlers", def.ID)
	}

	if def.Events.Orders == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "algo order %s has no order handlers", def.ID)
	}

	if def.Meta.NewParams == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "algo order %s has no params constructor", def.ID)
	}

	if def.Meta.InitState == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "algo order %s has no state initializer", def.ID)
	}

	if def.Name == "" {
		def.Name = def.ID
	}

	events := *def.Events
	orders := *def.Events.Orders

	if orders.Error == nil {
		orders.Error = DefaultOrderErrorHandler
	}

	if events.Errors.MinimumSize == nil {
		events.Errors.MinimumSize = DefaultExchangeErrorHandler
	}

	if events.Errors.InsufficientBalance == nil {
		events.Errors.InsufficientBalance = DefaultExchangeErrorHandler
	}

	if events.Errors.ActionDisabled == nil {
		events.Errors.ActionDisabled = DefaultExchangeErrorHandler
	}

	self := make(map[string]Handler[SelfEvent], len(events.Self))
	for name, h := range events.Self {
		self[name] = h
	}

	events.Self = self
	events.Orders = &orders
	def.Events = &events

	return &def, nil
}

// MustDefine is Define for package level definitions; it panics on a bad definition.
func MustDefine(def Definition) *Definition {
	d, err := Define(def)
	if err != nil {
		panic(err)
	}

	return d
}

// Label returns the order label for state.
func (d *Definition) Label(state *State) string {
	if d.Meta.GenOrderLabel != nil {
		return d.Meta.GenOrderLabel(state)
	}

	return d.Name
}

// Preview returns the first orders the algorithm would generate for raw parameters.
func (d *Definition) Preview(raw any) ([]types.Order, error) {
	if d.Meta.GenPreview == nil {
		return nil, nil
	}

	args, err := PrepareParams(d, raw)
	if err != nil {
		return nil, err
	}

	return d.Meta.GenPreview(args)
}
