package algo

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/tracer"
	"github.com/rxtech-lab/argo-algo/internal/types"
)

// TimerID identifies a timer owned by one instance.
type TimerID int64

// Envelope is a queued event together with the signal that caused it.
type Envelope struct {
	Event  Event
	Parent *tracer.Signal
	// Timer is set for events fired by Schedule or Debounce. The event is dropped if the
	// timer was cleared in the meantime.
	Timer TimerID
	// Debounce names the debounce window the event closes.
	Debounce string
}

// Scheduler queues envelopes for an instance event loop.
type Scheduler interface {
	// Post appends env to the instance queue.
	Post(env Envelope)
	// After posts env once delay has passed. The returned func stops the timer.
	After(delay time.Duration, env Envelope) (stop func() bool)
}

// Runtime is the host side of an instance.
type Runtime interface {
	// Exec runs a generic exec handler on the instance event loop.
	Exec(ctx context.Context, inst *Instance, ev ExecEvent) error
	// Subscribe requests a market data channel for the instance.
	Subscribe(ctx context.Context, inst *Instance, ch types.Channel) error
	// Persist saves rec without blocking the event loop.
	Persist(ctx context.Context, inst *Instance, rec Record)
}

// Binding attaches an instance to a runtime.
type Binding struct {
	Runtime   Runtime
	Scheduler Scheduler
	Tracer    *tracer.Tracer
	Logger    *logger.Logger
}

type signalKey struct{}

func withSignal(ctx context.Context, sig *tracer.Signal) context.Context {
	if sig == nil {
		return ctx
	}

	return context.WithValue(ctx, signalKey{}, sig)
}

// SignalFrom returns the signal of the decision running in ctx, or nil.
func SignalFrom(ctx context.Context) *tracer.Signal {
	sig, _ := ctx.Value(signalKey{}).(*tracer.Signal)

	return sig
}
