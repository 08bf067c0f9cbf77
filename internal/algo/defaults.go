package algo

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/types"
)

// DefaultSettleGrace is how long the default error teardown waits before cancelling open orders.
const DefaultSettleGrace = time.Second

// DefaultOrderErrorHandler notifies, then stops the instance and cancels its open orders after
// DefaultSettleGrace.
func DefaultOrderErrorHandler(ctx context.Context, inst *Instance, ev OrderError) error {
	return notifyAndStop(ctx, inst, fmt.Sprintf("order error (%s): %s", ev.Order.CID, ev.Message))
}

// DefaultExchangeErrorHandler handles minimum size, insufficient balance and action disabled
// errors the same way as DefaultOrderErrorHandler.
func DefaultExchangeErrorHandler(ctx context.Context, inst *Instance, ev ExchangeError) error {
	return notifyAndStop(ctx, inst, fmt.Sprintf("%s: %s", describeErrorKind(ev.Kind), ev.Message))
}

func describeErrorKind(kind ErrorKind) string {
	switch kind {
	case ErrorMinimumSize:
		return "order below minimum size"
	case ErrorInsufficientBalance:
		return "insufficient balance"
	case ErrorActionDisabled:
		return "action disabled"
	}

	return string(kind)
}

func notifyAndStop(ctx context.Context, inst *Instance, message string) error {
	if inst.Stopping() {
		return nil
	}

	open := inst.OpenOrders()

	if err := inst.H.Notify(ctx, NotifyError, fmt.Sprintf("%s: %s", inst.State.Label, message)); err != nil {
		return err
	}

	return inst.H.Stop(ctx, CancelAfter(DefaultSettleGrace, open), StopOptions{Reason: message})
}

// CancelAfter returns a teardown that waits grace, then cancels orders.
func CancelAfter(grace time.Duration, orders []types.Order) Teardown {
	return func(ctx context.Context, ex Executor) error {
		if grace > 0 {
			timer := time.NewTimer(grace)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}

		if len(orders) == 0 {
			return nil
		}

		return ex.CancelOrders(ctx, orders, 0)
	}
}
