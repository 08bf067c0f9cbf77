package host

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

// Exec implements algo.Runtime. It runs on the event loop of inst; exchange calls are made
// from separate goroutines whose results are posted back to the instance bus.
func (h *Host) Exec(ctx context.Context, inst *algo.Instance, ev algo.ExecEvent) error {
	switch e := ev.(type) {
	case algo.SubmitAll:
		return h.execSubmitAll(ctx, inst, e)
	case algo.CancelAll:
		return h.execCancelAll(ctx, inst, e)
	case algo.CancelGID:
		gid := inst.GID()
		h.wg.Go(func() {
			if err := h.conn.CancelOrdersByGID(h.ctx, gid); err != nil {
				h.log.Warn("failed to cancel orders by gid", zap.Int64("gid", gid), zap.Error(err))
			}
		})

		return nil
	case algo.Stop:
		return h.execStop(ctx, inst, e)
	case algo.Notify:
		h.notifier.Notify(e.Level, e.Message)

		return nil
	}

	return errors.Newf(errors.ErrCodeInvalidType, "unknown exec event %s", ev.Key())
}

func (h *Host) execSubmitAll(ctx context.Context, inst *algo.Instance, ev algo.SubmitAll) error {
	if inst.Stopping() {
		return nil
	}

	for _, o := range ev.Orders {
		if err := o.Validate(); err != nil {
			return err
		}
	}

	inst.MarkSubmitted(ev.Orders)

	e, ok := h.lookup(inst.GID())
	if !ok {
		return errors.Newf(errors.ErrCodeInstanceNotFound, "algo order %d is not registered", inst.GID())
	}

	parent := algo.SignalFrom(ctx)
	orders := append([]types.Order(nil), ev.Orders...)

	h.wg.Go(func() {
		for n, order := range orders {
			if !h.wait(ev.Delay) {
				return
			}

			if inst.Stopping() {
				h.log.Debug("skipping submission of stopping algo order",
					zap.Int64("gid", order.GID), zap.Int("skipped", len(orders)-n))

				return
			}

			acked, err := h.conn.SubmitOrder(h.ctx, order)
			if err != nil {
				h.log.Warn("failed to submit order",
					zap.Int64("gid", order.GID), zap.String("cid", order.CID), zap.Error(err))
				e.bus.Post(algo.Envelope{Event: submitError(order, err), Parent: parent, Timer: 0, Debounce: ""})

				return
			}

			e.bus.Post(algo.Envelope{Event: algo.OrderAck{Order: acked}, Parent: parent, Timer: 0, Debounce: ""})
		}
	})

	return nil
}

func (h *Host) execCancelAll(ctx context.Context, inst *algo.Instance, ev algo.CancelAll) error {
	inst.MarkCancelling(ev.Orders)

	e, ok := h.lookup(inst.GID())
	if !ok {
		return errors.Newf(errors.ErrCodeInstanceNotFound, "algo order %d is not registered", inst.GID())
	}

	parent := algo.SignalFrom(ctx)
	orders := append([]types.Order(nil), ev.Orders...)

	h.wg.Go(func() {
		for _, order := range orders {
			if !h.wait(ev.Delay) {
				return
			}

			if err := h.conn.CancelOrder(h.ctx, order); err != nil {
				h.log.Warn("failed to cancel order",
					zap.Int64("gid", order.GID), zap.String("cid", order.CID), zap.Error(err))

				continue
			}

			e.bus.Post(algo.Envelope{Event: algo.CancelAck{Order: order}, Parent: parent, Timer: 0, Debounce: ""})
		}
	})

	return nil
}

// execStop runs life:stop on the loop, then tears the instance down off the loop.
func (h *Host) execStop(ctx context.Context, inst *algo.Instance, ev algo.Stop) error {
	if !inst.BeginStop() {
		return nil
	}

	gid := inst.GID()

	h.log.Info("stopping algo order", zap.Int64("gid", gid), zap.String("reason", ev.Opts.Reason))

	stopErr := inst.Dispatch(ctx, algo.LifeStop{})

	inst.ClearTimers()
	inst.MarkInactive()

	channels := append([]types.Channel(nil), inst.State.Channels...)
	teardown := ev.Teardown

	h.wg.Go(func() {
		if teardown != nil {
			tctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), h.config.teardownTimeout())
			if err := teardown(tctx, &executor{h: h, gid: gid}); err != nil {
				h.log.Warn("algo order teardown failed", zap.Int64("gid", gid), zap.Error(err))
			}

			cancel()
		}

		h.deregister(gid, channels)
		h.log.Info("algo order stopped", zap.Int64("gid", gid))
	})

	return stopErr
}

// wait sleeps for delay. It returns false if the host shut down first.
func (h *Host) wait(delay time.Duration) bool {
	if delay <= 0 {
		return h.ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-h.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// submitError turns a failed submission into the event its handlers expect.
func submitError(order types.Order, err error) algo.Event {
	switch errors.GetCode(err) {
	case errors.ErrCodeInsufficientBalance:
		return algo.ExchangeError{Kind: algo.ErrorInsufficientBalance, Order: order, Message: err.Error()}
	case errors.ErrCodeMinimumSize:
		return algo.ExchangeError{Kind: algo.ErrorMinimumSize, Order: order, Message: err.Error()}
	case errors.ErrCodeActionDisabled:
		return algo.ExchangeError{Kind: algo.ErrorActionDisabled, Order: order, Message: err.Error()}
	}

	return algo.OrderError{Order: order, Message: err.Error()}
}

// executor performs teardown actions for one stopped instance.
type executor struct {
	h   *Host
	gid int64
}

func (x *executor) SubmitOrders(ctx context.Context, orders []types.Order, delay time.Duration) error {
	for _, order := range orders {
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		if _, err := x.h.conn.SubmitOrder(ctx, order); err != nil {
			return err
		}
	}

	return nil
}

func (x *executor) CancelOrders(ctx context.Context, orders []types.Order, delay time.Duration) error {
	var firstErr error

	for _, order := range orders {
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		if err := x.h.conn.CancelOrder(ctx, order); err != nil {
			x.h.log.Warn("teardown cancel failed", zap.Int64("gid", x.gid), zap.String("cid", order.CID), zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (x *executor) CancelOrdersByGID(ctx context.Context, gid int64) error {
	return x.h.conn.CancelOrdersByGID(ctx, gid)
}

func (x *executor) Notify(level algo.NotifyLevel, message string) {
	x.h.notifier.Notify(level, message)
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
