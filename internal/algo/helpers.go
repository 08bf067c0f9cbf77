package algo

import (
	"context"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

// Helpers are the operations a handler may perform on its own instance. They must only be
// called from the instance event loop, i.e. from inside a handler.
type Helpers interface {
	// Emit dispatches ev on the instance right away.
	Emit(ctx context.Context, ev Event) error
	// EmitSelf dispatches the self event name right away.
	EmitSelf(ctx context.Context, name string, args ...any) error
	// EmitAsync queues ev behind everything already queued for the instance.
	EmitAsync(ctx context.Context, ev Event)
	// EmitSelfAsync queues the self event name.
	EmitSelfAsync(ctx context.Context, name string, args ...any)
	// UpdateState mutates the state and persists the instance once the current event is handled.
	UpdateState(ctx context.Context, update func(state *State))
	// DeclareEvent routes the internal event name to the self handler at handlerPath.
	DeclareEvent(name, handlerPath string) error
	// DeclareChannel subscribes the instance to a market data channel.
	DeclareChannel(ctx context.Context, ch types.Channel) error
	SubmitAllOrders(ctx context.Context, orders []types.Order, delay time.Duration) error
	CancelAllOrders(ctx context.Context, orders []types.Order, delay time.Duration) error
	CancelOrdersByGID(ctx context.Context) error
	// Stop ends the instance. Only the first call has an effect.
	Stop(ctx context.Context, teardown Teardown, opts StopOptions) error
	Notify(ctx context.Context, level NotifyLevel, message string) error
	// Schedule fires the self event name after delay unless the timer is cleared first.
	Schedule(ctx context.Context, name string, delay time.Duration, args ...any) TimerID
	ClearTimer(id TimerID)
	// Debounce fires the self event name once window has passed. Calls made while a window
	// for name is open are coalesced into that one event.
	Debounce(ctx context.Context, name string, window time.Duration, args ...any)
	// Trace records a decision as a child of the current signal.
	Trace(ctx context.Context, name string, meta map[string]any)
	Logger() *logger.Logger
}

type helpers struct {
	inst *Instance
}

func (h *helpers) Emit(ctx context.Context, ev Event) error {
	sig := h.inst.signal(ev.Key(), SignalFrom(ctx), nil)
	defer h.inst.endSignal(sig)

	return h.inst.Dispatch(withSignal(ctx, sig), ev)
}

func (h *helpers) EmitSelf(ctx context.Context, name string, args ...any) error {
	return h.Emit(ctx, SelfEvent{Name: name, Args: args})
}

func (h *helpers) EmitAsync(ctx context.Context, ev Event) {
	h.inst.sched.Post(Envelope{Event: ev, Parent: SignalFrom(ctx), Timer: 0, Debounce: ""})
}

func (h *helpers) EmitSelfAsync(ctx context.Context, name string, args ...any) {
	h.EmitAsync(ctx, SelfEvent{Name: name, Args: args})
}

func (h *helpers) UpdateState(_ context.Context, update func(state *State)) {
	update(h.inst.State)
	h.inst.dirty = true
}

func (h *helpers) DeclareEvent(name, handlerPath string) error {
	target := strings.TrimPrefix(handlerPath, string(SectionSelf)+":")
	if _, ok := h.inst.def.Events.Self[target]; !ok {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "%s has no self handler %q for event %q", h.inst.def.ID, target, name)
	}

	h.inst.aliases[name] = target

	return nil
}

func (h *helpers) DeclareChannel(ctx context.Context, ch types.Channel) error {
	for _, existing := range h.inst.State.Channels {
		if existing.Key() == ch.Key() {
			return nil
		}
	}

	if err := h.inst.rt.Subscribe(ctx, h.inst, ch); err != nil {
		return errors.Wrapf(errors.ErrCodeSubscribeFailed, err, "failed to subscribe to %s", ch.Key())
	}

	h.inst.State.Channels = append(h.inst.State.Channels, ch)
	h.inst.dirty = true

	return nil
}

func (h *helpers) SubmitAllOrders(ctx context.Context, orders []types.Order, delay time.Duration) error {
	if len(orders) == 0 {
		return nil
	}

	return h.Emit(ctx, SubmitAll{Orders: orders, Delay: delay})
}

func (h *helpers) CancelAllOrders(ctx context.Context, orders []types.Order, delay time.Duration) error {
	if len(orders) == 0 {
		return nil
	}

	return h.Emit(ctx, CancelAll{Orders: orders, Delay: delay})
}

func (h *helpers) CancelOrdersByGID(ctx context.Context) error {
	return h.Emit(ctx, CancelGID{})
}

func (h *helpers) Stop(ctx context.Context, teardown Teardown, opts StopOptions) error {
	return h.Emit(ctx, Stop{Teardown: teardown, Opts: opts})
}

func (h *helpers) Notify(ctx context.Context, level NotifyLevel, message string) error {
	return h.Emit(ctx, Notify{Level: level, Message: message})
}

func (h *helpers) Schedule(ctx context.Context, name string, delay time.Duration, args ...any) TimerID {
	return h.inst.schedule(ctx, SelfEvent{Name: name, Args: args}, delay, "")
}

func (h *helpers) ClearTimer(id TimerID) {
	h.inst.clearTimer(id)
}

func (h *helpers) Debounce(ctx context.Context, name string, window time.Duration, args ...any) {
	if _, pending := h.inst.debounced[name]; pending {
		return
	}

	h.inst.debounced[name] = h.inst.schedule(ctx, SelfEvent{Name: name, Args: args}, window, name)
}

func (h *helpers) Trace(ctx context.Context, name string, meta map[string]any) {
	sig := h.inst.signal(name, SignalFrom(ctx), meta)
	h.inst.endSignal(sig)
}

func (h *helpers) Logger() *logger.Logger {
	return h.inst.log
}

func (i *Instance) schedule(ctx context.Context, ev SelfEvent, delay time.Duration, debounce string) TimerID {
	i.nextTimer++
	id := i.nextTimer

	env := Envelope{Event: ev, Parent: SignalFrom(ctx), Timer: id, Debounce: debounce}
	i.timers[id] = i.sched.After(delay, env)

	i.log.Debug("scheduled timer",
		zap.String("event", ev.Key()),
		zap.Int64("timer", int64(id)),
		zap.Duration("delay", delay),
	)

	return id
}

func (i *Instance) clearTimer(id TimerID) {
	stop, ok := i.timers[id]
	if !ok {
		return
	}

	stop()
	delete(i.timers, id)

	for name, pending := range i.debounced {
		if pending == id {
			delete(i.debounced, name)
		}
	}
}
