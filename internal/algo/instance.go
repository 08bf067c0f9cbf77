package algo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/tracer"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

// Instance is one running execution of a definition.
type Instance struct {
	State *State
	// H is bound by Bind and never persisted.
	H Helpers

	def    *Definition
	rt     Runtime
	sched  Scheduler
	tracer *tracer.Tracer
	log    *logger.Logger

	stopping   atomic.Bool
	cancelling map[string]struct{}
	timers     map[TimerID]func() bool
	nextTimer  TimerID
	debounced  map[string]TimerID
	aliases    map[string]string
	dirty      bool
	summary    atomic.Pointer[Summary]
}

// Summary is a point in time view of an instance, safe to read from any goroutine.
type Summary struct {
	GID        int64         `json:"gid"`
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Label      string        `json:"label"`
	Active     bool          `json:"active"`
	Stopping   bool          `json:"stopping"`
	OpenOrders []types.Order `json:"open_orders"`
	Submitted  int           `json:"submitted"`
	Cancelled  int           `json:"cancelled"`
}

// InitInstance validates raw parameters and builds an unbound instance with a fresh gid.
// Invalid parameters are returned as ErrCodeInvalidParameter and no gid is consumed.
func InitInstance(def *Definition, raw any, gids *GIDGenerator) (*Instance, error) {
	args, err := PrepareParams(def, raw)
	if err != nil {
		return nil, err
	}

	data, err := def.Meta.InitState(args)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to init %s state", def.ID)
	}

	state := newState(def, gids.Next(), args, data)
	state.Label = def.Label(state)

	return newInstance(def, state), nil
}

// Restore rebuilds an unbound instance from a persisted record.
func Restore(def *Definition, rec Record, gids *GIDGenerator) (*Instance, error) {
	state, err := def.Unserialize(rec)
	if err != nil {
		return nil, err
	}

	gids.Observe(rec.GID)

	// channels are declared again on start
	state.Channels = nil

	return newInstance(def, state), nil
}

func newInstance(def *Definition, state *State) *Instance {
	inst := &Instance{
		State:      state,
		H:          nil,
		def:        def,
		rt:         nil,
		sched:      nil,
		tracer:     nil,
		log:        logger.NewNopLogger(),
		stopping:   atomic.Bool{},
		cancelling: make(map[string]struct{}),
		timers:     make(map[TimerID]func() bool),
		nextTimer:  0,
		debounced:  make(map[string]TimerID),
		aliases:    make(map[string]string),
		dirty:      false,
		summary:    atomic.Pointer[Summary]{},
	}
	inst.refreshSummary()

	return inst
}

// Bind attaches the instance to its runtime and creates its helpers.
func (i *Instance) Bind(b Binding) {
	i.rt = b.Runtime
	i.sched = b.Scheduler
	i.tracer = b.Tracer

	if b.Logger != nil {
		i.log = b.Logger.ForInstance(i.def.ID, i.State.GID)
	}

	i.H = &helpers{inst: i}
}

func (i *Instance) GID() int64 {
	return i.State.GID
}

func (i *Instance) Definition() *Definition {
	return i.def
}

// Declare runs the definition's DeclareEvents and DeclareChannels.
func (i *Instance) Declare(ctx context.Context) error {
	meta := i.def.Meta

	if meta.DeclareEvents != nil {
		if err := meta.DeclareEvents(ctx, i, i.H); err != nil {
			return errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err, "failed to declare events of %d", i.State.GID)
		}
	}

	if meta.DeclareChannels != nil {
		if err := meta.DeclareChannels(ctx, i, i.H); err != nil {
			return errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err, "failed to declare channels of %d", i.State.GID)
		}
	}

	return nil
}

// Stopping reports whether Stop was accepted for the instance.
func (i *Instance) Stopping() bool {
	return i.stopping.Load()
}

// BeginStop marks the instance as stopping. It returns false if it already was.
func (i *Instance) BeginStop() bool {
	return i.stopping.CompareAndSwap(false, true)
}

// ClearTimers stops every pending timer and debounce window of the instance.
func (i *Instance) ClearTimers() {
	for id, stop := range i.timers {
		stop()
		delete(i.timers, id)
	}

	for name := range i.debounced {
		delete(i.debounced, name)
	}
}

// PendingTimers returns the number of timers that have not fired yet.
func (i *Instance) PendingTimers() int {
	return len(i.timers)
}

// OpenOrders returns copies of the open orders, oldest first.
func (i *Instance) OpenOrders() []types.Order {
	return i.State.OpenOrders()
}

// LiveOrders returns the open orders the instance is not already cancelling, oldest first.
func (i *Instance) LiveOrders() []types.Order {
	open := i.State.OpenOrders()
	live := open[:0]

	for _, o := range open {
		if _, ok := i.cancelling[o.CID]; !ok {
			live = append(live, o)
		}
	}

	return live
}

// MarkSubmitted records orders handed to the exchange but not acknowledged yet.
func (i *Instance) MarkSubmitted(orders []types.Order) {
	for _, o := range orders {
		if o.Status == "" {
			o.Status = types.OrderStatusPending
		}

		i.State.AllOrders[o.CID] = o
	}

	i.dirty = true
}

// MarkCancelling records that the instance itself cancels orders, so their close events are
// not reported as external cancellations.
func (i *Instance) MarkCancelling(orders []types.Order) {
	for _, o := range orders {
		i.cancelling[o.CID] = struct{}{}
	}
}

// MarkInactive flags the persisted record as no longer active.
func (i *Instance) MarkInactive() {
	i.State.Active = false
	i.dirty = true
}

// Summary returns the last published summary.
func (i *Instance) Summary() Summary {
	return *i.summary.Load()
}

// Deliver handles one queued envelope. It must only be called from the instance event loop.
func (i *Instance) Deliver(ctx context.Context, env Envelope) {
	if env.Timer != 0 {
		if _, ok := i.timers[env.Timer]; !ok {
			return
		}

		delete(i.timers, env.Timer)
	}

	if env.Debounce != "" {
		delete(i.debounced, env.Debounce)
	}

	key := env.Event.Key()

	if i.Stopping() && !isBookkeeping(env.Event) {
		i.log.Debug("dropping event of stopping instance", zap.String("event", key))

		return
	}

	sig := i.signal(key, env.Parent, nil)

	if err := i.Dispatch(withSignal(ctx, sig), env.Event); err != nil {
		i.log.Warn("failed to handle event", zap.String("event", key), zap.Error(err))
	}

	i.endSignal(sig)
	i.flush(ctx)
}

// Dispatch routes ev to its handler. Strategy events are skipped once the instance is
// stopping; bookkeeping and exec events are always processed.
func (i *Instance) Dispatch(ctx context.Context, ev Event) error {
	if i.Stopping() && isStrategyEvent(ev) {
		return nil
	}

	events := i.def.Events

	switch e := ev.(type) {
	case LifeStart:
		return call(ctx, i, events.Life.Start, e)
	case LifeStop:
		return call(ctx, i, events.Life.Stop, e)
	case SelfEvent:
		return i.dispatchSelf(ctx, e)
	case OrderSnapshot:
		i.applySnapshot(e.Orders)

		return call(ctx, i, events.Orders.Snapshot, e)
	case OrderNew:
		return call(ctx, i, events.Orders.New, e)
	case OrderUpdate:
		return call(ctx, i, events.Orders.Update, e)
	case OrderFill:
		return call(ctx, i, events.Orders.Fill, e)
	case OrderCancel:
		return call(ctx, i, events.Orders.Cancel, e)
	case OrderError:
		i.applyRejected(e.Order)

		return call(ctx, i, events.Orders.Error, e)
	case TradesUpdate:
		return call(ctx, i, events.Data.Trades, e)
	case BookUpdate:
		return call(ctx, i, events.Data.Book, e)
	case CandlesUpdate:
		return call(ctx, i, events.Data.Candles, e)
	case ExchangeError:
		i.applyRejected(e.Order)

		return i.dispatchExchangeError(ctx, e)
	case ExchangeOrder:
		return i.applyOrderEvent(ctx, e.Event)
	case OrderAck:
		i.applyAck(e.Order)

		return nil
	case CancelAck:
		i.applyCancelAck(e.Order)

		return nil
	case SubmitAll:
		return i.exec(ctx, e)
	case CancelAll:
		return i.exec(ctx, e)
	case CancelGID:
		return i.exec(ctx, e)
	case Stop:
		return i.exec(ctx, e)
	case Notify:
		return i.exec(ctx, e)
	}

	i.log.Debug("no route for event", zap.String("event", ev.Key()))

	return nil
}

func (i *Instance) exec(ctx context.Context, ev ExecEvent) error {
	if i.rt == nil {
		return errors.Newf(errors.ErrCodeHostClosed, "instance %d is not bound to a runtime", i.State.GID)
	}

	return i.rt.Exec(ctx, i, ev)
}

func (i *Instance) dispatchSelf(ctx context.Context, ev SelfEvent) error {
	name := ev.Name
	if target, ok := i.aliases[name]; ok {
		name = target
	}

	handler := i.def.Events.Self[name]
	if handler == nil {
		i.log.Debug("no self handler", zap.String("event", ev.Key()))

		return nil
	}

	return call(ctx, i, handler, ev)
}

func (i *Instance) dispatchExchangeError(ctx context.Context, ev ExchangeError) error {
	errs := i.def.Events.Errors

	switch ev.Kind {
	case ErrorMinimumSize:
		return call(ctx, i, errs.MinimumSize, ev)
	case ErrorInsufficientBalance:
		return call(ctx, i, errs.InsufficientBalance, ev)
	case ErrorActionDisabled:
		return call(ctx, i, errs.ActionDisabled, ev)
	}

	i.log.Debug("no handler for exchange error", zap.String("event", ev.Key()))

	return nil
}

func call[E Event](ctx context.Context, inst *Instance, handler Handler[E], ev E) (err error) {
	if handler == nil {
		inst.log.Debug("no handler", zap.String("event", ev.Key()))

		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeStrategyRuntimeError, "%s handler panicked: %v", ev.Key(), r)
		}
	}()

	if err := handler(ctx, inst, ev); err != nil {
		return errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err, "%s handler failed", ev.Key())
	}

	return nil
}

func isBookkeeping(ev Event) bool {
	switch ev.(type) {
	case ExchangeOrder, OrderAck, CancelAck:
		return true
	}

	return false
}

func isStrategyEvent(ev Event) bool {
	switch ev.(type) {
	case LifeStart, SelfEvent, OrderSnapshot, OrderNew, OrderUpdate, OrderFill, OrderCancel, OrderError,
		TradesUpdate, BookUpdate, CandlesUpdate, ExchangeError:
		return true
	}

	return false
}

func (i *Instance) previous(o types.Order) types.Order {
	if prev, ok := i.State.Orders[o.CID]; ok {
		return prev
	}

	if prev, ok := i.State.AllOrders[o.CID]; ok {
		return prev
	}

	prev := o
	prev.Amount = o.AmountOrig

	return prev
}

func (i *Instance) applyOrderEvent(ctx context.Context, oe types.OrderEvent) error {
	o := oe.Order
	prev := i.previous(o)
	i.dirty = true

	switch oe.Kind {
	case types.OrderEventNew:
		if o.Status == "" || o.Status == types.OrderStatusPending {
			o.Status = types.OrderStatusActive
		}

		i.State.Orders[o.CID] = o
		i.State.AllOrders[o.CID] = o

		return i.H.Emit(ctx, OrderNew{Order: o})
	case types.OrderEventUpdate:
		i.State.Orders[o.CID] = o
		i.State.AllOrders[o.CID] = o

		if err := i.H.Emit(ctx, OrderUpdate{Order: o}); err != nil {
			return err
		}

		return i.emitFill(ctx, o, prev)
	case types.OrderEventClose:
		delete(i.State.Orders, o.CID)
		i.State.AllOrders[o.CID] = o

		if err := i.emitFill(ctx, o, prev); err != nil {
			return err
		}

		if o.Status != types.OrderStatusCancelled && o.Status != types.OrderStatusRejected {
			return nil
		}

		i.State.CancelledOrders[o.CID] = o

		if _, self := i.cancelling[o.CID]; self {
			delete(i.cancelling, o.CID)

			return nil
		}

		return i.H.Emit(ctx, OrderCancel{Order: o})
	}

	return errors.Newf(errors.ErrCodeInvalidType, "unknown order event kind %q", oe.Kind)
}

func (i *Instance) emitFill(ctx context.Context, o, prev types.Order) error {
	fill := utils.SubAmount(prev.Amount, o.Amount)
	if types.IsDust(fill) || !utils.SameSign(fill, o.AmountOrig) {
		return nil
	}

	return i.H.Emit(ctx, OrderFill{Order: o, FillAmount: fill})
}

func (i *Instance) applySnapshot(orders []types.Order) {
	for _, o := range orders {
		if !o.IsOpen() {
			continue
		}

		i.State.Orders[o.CID] = o
		i.State.AllOrders[o.CID] = o
	}

	i.dirty = true
}

func (i *Instance) applyAck(o types.Order) {
	if known, ok := i.State.AllOrders[o.CID]; ok && !known.IsOpen() {
		// closed before the ack arrived
		return
	}

	if live, ok := i.State.Orders[o.CID]; ok && live.Status != types.OrderStatusPending {
		if live.ID == "" {
			live.ID = o.ID
			i.State.Orders[o.CID] = live
			i.State.AllOrders[o.CID] = live
		}

		return
	}

	if o.Status == "" || o.Status == types.OrderStatusPending {
		o.Status = types.OrderStatusActive
	}

	i.State.Orders[o.CID] = o
	i.State.AllOrders[o.CID] = o
	i.dirty = true
}

func (i *Instance) applyCancelAck(o types.Order) {
	if known, ok := i.State.AllOrders[o.CID]; ok && !known.IsOpen() {
		return
	}

	if live, ok := i.State.Orders[o.CID]; ok {
		o = live
	}

	o.Status = types.OrderStatusCancelled

	delete(i.State.Orders, o.CID)
	i.State.CancelledOrders[o.CID] = o
	i.State.AllOrders[o.CID] = o
	i.dirty = true
}

func (i *Instance) applyRejected(o types.Order) {
	if o.CID == "" {
		return
	}

	if _, ok := i.State.AllOrders[o.CID]; !ok {
		return
	}

	o.Status = types.OrderStatusRejected

	delete(i.State.Orders, o.CID)
	i.State.AllOrders[o.CID] = o
	i.dirty = true
}

func (i *Instance) signal(name string, parent *tracer.Signal, meta map[string]any) *tracer.Signal {
	if i.tracer == nil {
		return nil
	}

	sig, err := i.tracer.Signal(name, parent, i.State.GID, meta)
	if err != nil {
		i.log.Warn("failed to create signal", zap.String("signal", name), zap.Error(err))

		return nil
	}

	return sig
}

func (i *Instance) endSignal(sig *tracer.Signal) {
	if sig == nil {
		return
	}

	if err := sig.End(); err != nil {
		i.log.Warn("failed to end signal", zap.Int64("signal", sig.ID()), zap.Error(err))
	}
}

func (i *Instance) flush(ctx context.Context) {
	if i.dirty && i.rt != nil {
		i.dirty = false

		rec, err := i.def.Serialize(i.State)
		if err != nil {
			i.log.Warn("failed to serialize instance", zap.Error(err))
		} else {
			i.rt.Persist(ctx, i, rec)
		}
	}

	i.refreshSummary()
}

func (i *Instance) refreshSummary() {
	submitted := 0
	for _, o := range i.State.AllOrders {
		if o.Status != types.OrderStatusRejected {
			submitted++
		}
	}

	i.summary.Store(&Summary{
		GID:        i.State.GID,
		ID:         i.State.ID,
		Name:       i.State.Name,
		Label:      i.State.Label,
		Active:     i.State.Active,
		Stopping:   i.Stopping(),
		OpenOrders: i.State.OpenOrders(),
		Submitted:  submitted,
		Cancelled:  len(i.State.CancelledOrders),
	})
}

// String identifies the instance in logs and errors.
func (i *Instance) String() string {
	return fmt.Sprintf("%s/%d", i.def.ID, i.State.GID)
}

// Flush persists pending state changes. The host calls it after running exec handlers
// outside Deliver.
func (i *Instance) Flush(ctx context.Context) {
	i.flush(ctx)
}
