package algo

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/types"
)

// Section groups the events an algo order definition can handle.
type Section string

const (
	SectionSelf   Section = "self"
	SectionLife   Section = "life"
	SectionOrders Section = "orders"
	SectionData   Section = "data"
	SectionErrors Section = "errors"
	SectionExec   Section = "exec"
)

// Event is dispatched on an instance bus. The set of implementations is closed;
// only SelfEvent carries a dynamic name.
type Event interface {
	// Key is the section qualified event name, e.g. "orders:order_fill".
	Key() string
	event()
}

// ExecEvent is an event handled by the host's generic handlers rather than the definition.
type ExecEvent interface {
	Event
	execEvent()
}

// LifeStart starts an instance. Resumed is set when the instance was restored from a persisted record.
type LifeStart struct {
	Resumed bool
}

type LifeStop struct{}

// SelfEvent is an algorithm internal event such as "submit_orders" or "interval_tick".
type SelfEvent struct {
	Name string
	Args []any
}

type OrderSnapshot struct {
	Orders []types.Order
}

type OrderNew struct {
	Order types.Order
}

type OrderUpdate struct {
	Order types.Order
}

// OrderFill reports a (partial) execution. FillAmount is signed like the order amount.
type OrderFill struct {
	Order      types.Order
	FillAmount float64
}

// OrderCancel reports an order cancelled by someone other than the instance itself.
type OrderCancel struct {
	Order types.Order
}

// OrderError reports a rejected submission or an order level exchange error.
type OrderError struct {
	Order   types.Order
	Message string
}

type TradesUpdate struct {
	Symbol string
	Trades []types.Trade
}

type BookUpdate struct {
	Book types.Book
}

// CandlesUpdate carries a seeding snapshot (oldest first) or live updates of the latest bar.
type CandlesUpdate struct {
	Symbol    string
	Timeframe string
	Candles   []types.Candle
	Snapshot  bool
}

type ErrorKind string

const (
	ErrorMinimumSize         ErrorKind = "minimum_size"
	ErrorInsufficientBalance ErrorKind = "insufficient_balance"
	ErrorActionDisabled      ErrorKind = "action_disabled"
)

// ExchangeError is an account level exchange error tied to one order.
type ExchangeError struct {
	Kind    ErrorKind
	Order   types.Order
	Message string
}

// ExchangeOrder is an order change reported by the exchange. The instance applies it to its
// order bookkeeping and re-dispatches it as OrderNew, OrderUpdate, OrderFill or OrderCancel.
type ExchangeOrder struct {
	Event types.OrderEvent
}

// OrderAck is posted once the exchange accepted a submitted order.
type OrderAck struct {
	Order types.Order
}

// CancelAck is posted once the exchange confirmed a cancellation requested by the instance.
type CancelAck struct {
	Order types.Order
}

// SubmitAll submits orders one by one, waiting Delay before each submission.
type SubmitAll struct {
	Orders []types.Order
	Delay  time.Duration
}

// CancelAll cancels orders one by one, waiting Delay before each cancellation.
type CancelAll struct {
	Orders []types.Order
	Delay  time.Duration
}

// CancelGID cancels every order carrying the instance gid.
type CancelGID struct{}

// Executor performs exchange actions outside an instance event loop. Teardowns use it.
type Executor interface {
	SubmitOrders(ctx context.Context, orders []types.Order, delay time.Duration) error
	CancelOrders(ctx context.Context, orders []types.Order, delay time.Duration) error
	CancelOrdersByGID(ctx context.Context, gid int64) error
	Notify(level NotifyLevel, message string)
}

// Teardown runs after life:stop, off the instance event loop. It must not touch instance state.
type Teardown func(ctx context.Context, ex Executor) error

type StopOptions struct {
	Reason string
}

// Stop ends the instance. Only the first Stop of an instance has any effect.
type Stop struct {
	Teardown Teardown
	Opts     StopOptions
}

type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
)

type Notify struct {
	Level   NotifyLevel
	Message string
}

func (LifeStart) Key() string       { return "life:start" }
func (LifeStop) Key() string        { return "life:stop" }
func (e SelfEvent) Key() string     { return "self:" + e.Name }
func (OrderSnapshot) Key() string   { return "orders:order_snapshot" }
func (OrderNew) Key() string        { return "orders:order_new" }
func (OrderUpdate) Key() string     { return "orders:order_update" }
func (OrderFill) Key() string       { return "orders:order_fill" }
func (OrderCancel) Key() string     { return "orders:order_cancel" }
func (OrderError) Key() string      { return "orders:order_error" }
func (TradesUpdate) Key() string    { return "data:trades" }
func (BookUpdate) Key() string      { return "data:managedBook" }
func (CandlesUpdate) Key() string   { return "data:managedCandles" }
func (e ExchangeError) Key() string { return "errors:" + string(e.Kind) }
func (e ExchangeOrder) Key() string { return "orders:order_" + string(e.Event.Kind) }
func (OrderAck) Key() string        { return "exec:order:ack" }
func (CancelAck) Key() string       { return "exec:order:cancel:ack" }
func (SubmitAll) Key() string       { return "exec:order:submit:all" }
func (CancelAll) Key() string       { return "exec:order:cancel:all" }
func (CancelGID) Key() string       { return "exec:order:cancel:gid" }
func (Stop) Key() string            { return "exec:stop" }
func (Notify) Key() string          { return "exec:notify" }

func (LifeStart) event()     {}
func (LifeStop) event()      {}
func (SelfEvent) event()     {}
func (OrderSnapshot) event() {}
func (OrderNew) event()      {}
func (OrderUpdate) event()   {}
func (OrderFill) event()     {}
func (OrderCancel) event()   {}
func (OrderError) event()    {}
func (TradesUpdate) event()  {}
func (BookUpdate) event()    {}
func (CandlesUpdate) event() {}
func (ExchangeError) event() {}
func (ExchangeOrder) event() {}
func (OrderAck) event()      {}
func (CancelAck) event()     {}
func (SubmitAll) event()     {}
func (CancelAll) event()     {}
func (CancelGID) event()     {}
func (Stop) event()          {}
func (Notify) event()        {}

func (SubmitAll) execEvent() {}
func (CancelAll) execEvent() {}
func (CancelGID) execEvent() {}
func (Stop) execEvent()      {}
func (Notify) execEvent()    {}
