// Package algotest drives algo order instances synchronously for strategy tests.
//
// A Recorder stands in for the host: it records exec events instead of talking to an
// exchange, keeps queued events and timers until the test releases them, and offers
// shortcuts to simulate acknowledgements, fills and cancellations.
package algotest

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/tracer"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/stretchr/testify/require"
)

// Timer is a timer scheduled by the instance under test.
type Timer struct {
	Env     algo.Envelope
	Delay   time.Duration
	stopped bool
	fired   bool
}

// Name returns the self event the timer fires.
func (t *Timer) Name() string {
	if ev, ok := t.Env.Event.(algo.SelfEvent); ok {
		return ev.Name
	}

	return t.Env.Event.Key()
}

// SignalStore keeps flushed signals in memory.
type SignalStore struct {
	Signals []types.Signal
}

// Store implements tracer.Store.
func (m *SignalStore) Store(_ context.Context, signal types.Signal) error {
	m.Signals = append(m.Signals, signal)

	return nil
}

// Recorder implements algo.Runtime, algo.Scheduler and algo.Executor.
type Recorder struct {
	Inst    *algo.Instance
	Tracer  *tracer.Tracer
	Signals *SignalStore

	Submits    []algo.SubmitAll
	Cancels    []algo.CancelAll
	CancelGIDs int
	Stops      []algo.Stop
	Notifies   []algo.Notify
	Channels   []types.Channel
	Persisted  []algo.Record
	// Log lists the keys of every exec event in the order they reached the recorder.
	Log []string

	// Teardown side effects, recorded by RunTeardowns.
	TeardownCancels    [][]types.Order
	TeardownCancelGIDs int

	t      testing.TB
	ctx    context.Context
	queue  []algo.Envelope
	timers []*Timer
	acked  map[string]bool
}

// New builds an instance of def from params and binds it to a fresh recorder.
func New(t testing.TB, def *algo.Definition, params any) *Recorder {
	t.Helper()

	inst, err := algo.InitInstance(def, params, algo.NewGIDGenerator())
	require.NoError(t, err)

	return Bind(t, inst)
}

// Bind binds an existing instance to a fresh recorder.
func Bind(t testing.TB, inst *algo.Instance) *Recorder {
	signals := &SignalStore{Signals: nil}
	rec := &Recorder{
		Inst:               inst,
		Tracer:             tracer.New(signals),
		Signals:            signals,
		Submits:            nil,
		Cancels:            nil,
		CancelGIDs:         0,
		Stops:              nil,
		Notifies:           nil,
		Channels:           nil,
		Persisted:          nil,
		Log:                nil,
		TeardownCancels:    nil,
		TeardownCancelGIDs: 0,
		t:                  t,
		ctx:                context.Background(),
		queue:              nil,
		timers:             nil,
		acked:              make(map[string]bool),
	}

	inst.Bind(algo.Binding{
		Runtime:   rec,
		Scheduler: rec,
		Tracer:    rec.Tracer,
		Logger:    logger.NewNopLogger(),
	})

	return rec
}

// Start declares events and channels, then delivers life:start.
func (r *Recorder) Start() {
	r.t.Helper()
	require.NoError(r.t, r.Inst.Declare(r.ctx))
	r.Deliver(algo.LifeStart{Resumed: false})
}

// Deliver hands ev to the instance as if it came off its queue.
func (r *Recorder) Deliver(ev algo.Event) {
	r.Inst.Deliver(r.ctx, algo.Envelope{Event: ev, Parent: nil, Timer: 0, Debounce: ""})
}

// Queued returns the number of envelopes posted with EmitAsync.
func (r *Recorder) Queued() int {
	return len(r.queue)
}

// Drain delivers queued envelopes, including ones queued while draining.
func (r *Recorder) Drain() {
	for len(r.queue) > 0 {
		env := r.queue[0]
		r.queue = r.queue[1:]
		r.Inst.Deliver(r.ctx, env)
	}
}

// Timers returns the timers that have neither fired nor been stopped.
func (r *Recorder) Timers() []*Timer {
	var pending []*Timer

	for _, tm := range r.timers {
		if !tm.stopped && !tm.fired {
			pending = append(pending, tm)
		}
	}

	return pending
}

// Fire fires the oldest pending timer for the self event name. It returns false if there is none.
func (r *Recorder) Fire(name string) bool {
	for _, tm := range r.Timers() {
		if tm.Name() == name {
			tm.fired = true
			r.Inst.Deliver(r.ctx, tm.Env)

			return true
		}
	}

	return false
}

// LastSubmit returns the orders of the latest submit batch.
func (r *Recorder) LastSubmit() []types.Order {
	r.t.Helper()
	require.NotEmpty(r.t, r.Submits, "no orders were submitted")

	return r.Submits[len(r.Submits)-1].Orders
}

// SubmittedOrders returns every submitted order in submission order.
func (r *Recorder) SubmittedOrders() []types.Order {
	var orders []types.Order
	for _, batch := range r.Submits {
		orders = append(orders, batch.Orders...)
	}

	return orders
}

// AckSubmitted acknowledges every submitted order that was not acknowledged yet.
func (r *Recorder) AckSubmitted() {
	for _, o := range r.SubmittedOrders() {
		if r.acked[o.CID] {
			continue
		}

		r.acked[o.CID] = true
		o.Status = types.OrderStatusActive
		r.Deliver(algo.OrderAck{Order: o})
	}
}

// ConfirmCancels acknowledges the cancellation of every order of every cancel batch so far.
func (r *Recorder) ConfirmCancels() {
	for _, batch := range r.Cancels {
		for _, o := range batch.Orders {
			r.Deliver(algo.CancelAck{Order: o})
		}
	}
}

// Fill reports an execution of amount (signed like the order) for the order cid.
func (r *Recorder) Fill(cid string, amount float64) {
	r.t.Helper()

	o, ok := r.Inst.State.AllOrders[cid]
	require.True(r.t, ok, "unknown order %s", cid)

	if live, open := r.Inst.State.Orders[cid]; open {
		o = live
	}

	o.Amount = utils.SubAmount(o.Amount, amount)
	kind := types.OrderEventUpdate
	o.Status = types.OrderStatusPartiallyFilled

	if types.IsDust(o.Amount) {
		o.Amount = 0
		o.Status = types.OrderStatusExecuted
		kind = types.OrderEventClose
	}

	r.Deliver(algo.ExchangeOrder{Event: types.OrderEvent{Kind: kind, Order: o}})
}

// FillAll fully executes the order cid.
func (r *Recorder) FillAll(cid string) {
	r.t.Helper()

	o, ok := r.Inst.State.AllOrders[cid]
	require.True(r.t, ok, "unknown order %s", cid)

	if live, open := r.Inst.State.Orders[cid]; open {
		o = live
	}

	r.Fill(cid, o.Amount)
}

// CancelExternally reports the order cid as cancelled by someone other than the instance.
func (r *Recorder) CancelExternally(cid string) {
	r.t.Helper()

	o, ok := r.Inst.State.AllOrders[cid]
	require.True(r.t, ok, "unknown order %s", cid)

	o.Status = types.OrderStatusCancelled
	r.Deliver(algo.ExchangeOrder{Event: types.OrderEvent{Kind: types.OrderEventClose, Order: o}})
}

// RunTeardowns runs the teardown of every recorded stop against the recorder.
func (r *Recorder) RunTeardowns() {
	r.t.Helper()

	for _, stop := range r.Stops {
		if stop.Teardown != nil {
			require.NoError(r.t, stop.Teardown(r.ctx, r))
		}
	}
}

// Reset forgets recorded exec events.
func (r *Recorder) Reset() {
	r.Submits = nil
	r.Cancels = nil
	r.CancelGIDs = 0
	r.Stops = nil
	r.Notifies = nil
	r.Log = nil
}

// Exec implements algo.Runtime the way the host does, minus the exchange.
func (r *Recorder) Exec(ctx context.Context, inst *algo.Instance, ev algo.ExecEvent) error {
	r.Log = append(r.Log, ev.Key())

	switch e := ev.(type) {
	case algo.SubmitAll:
		if inst.Stopping() {
			return nil
		}

		inst.MarkSubmitted(e.Orders)
		r.Submits = append(r.Submits, e)
	case algo.CancelAll:
		inst.MarkCancelling(e.Orders)
		r.Cancels = append(r.Cancels, e)
	case algo.CancelGID:
		r.CancelGIDs++
	case algo.Stop:
		if !inst.BeginStop() {
			return nil
		}

		r.Stops = append(r.Stops, e)

		if err := inst.Dispatch(ctx, algo.LifeStop{}); err != nil {
			return err
		}

		inst.ClearTimers()
		inst.MarkInactive()
	case algo.Notify:
		r.Notifies = append(r.Notifies, e)
	}

	return nil
}

// Subscribe implements algo.Runtime.
func (r *Recorder) Subscribe(_ context.Context, _ *algo.Instance, ch types.Channel) error {
	r.Channels = append(r.Channels, ch)

	return nil
}

// Persist implements algo.Runtime.
func (r *Recorder) Persist(_ context.Context, _ *algo.Instance, rec algo.Record) {
	r.Persisted = append(r.Persisted, rec)
}

// Post implements algo.Scheduler.
func (r *Recorder) Post(env algo.Envelope) {
	r.queue = append(r.queue, env)
}

// After implements algo.Scheduler. Timers only fire through Fire.
func (r *Recorder) After(delay time.Duration, env algo.Envelope) func() bool {
	tm := &Timer{Env: env, Delay: delay, stopped: false, fired: false}
	r.timers = append(r.timers, tm)

	return func() bool {
		active := !tm.stopped && !tm.fired
		tm.stopped = true

		return active
	}
}

// SubmitOrders implements algo.Executor.
func (r *Recorder) SubmitOrders(_ context.Context, orders []types.Order, delay time.Duration) error {
	r.Submits = append(r.Submits, algo.SubmitAll{Orders: orders, Delay: delay})

	return nil
}

// CancelOrders implements algo.Executor.
func (r *Recorder) CancelOrders(_ context.Context, orders []types.Order, _ time.Duration) error {
	r.TeardownCancels = append(r.TeardownCancels, orders)

	return nil
}

// CancelOrdersByGID implements algo.Executor.
func (r *Recorder) CancelOrdersByGID(_ context.Context, _ int64) error {
	r.TeardownCancelGIDs++

	return nil
}

// Notify implements algo.Executor.
func (r *Recorder) Notify(level algo.NotifyLevel, message string) {
	r.Notifies = append(r.Notifies, algo.Notify{Level: level, Message: message})
}
