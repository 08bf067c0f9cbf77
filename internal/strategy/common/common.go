// Package common holds lifecycle helpers shared by the order generation algorithms.
package common

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/types"
)

// Millis converts a millisecond parameter into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Complete reports success and stops the instance. Orders that are still open are cancelled
// during teardown.
func Complete(ctx context.Context, inst *algo.Instance, message string) error {
	if inst.Stopping() {
		return nil
	}

	live := inst.LiveOrders()

	if err := inst.H.Notify(ctx, algo.NotifySuccess, fmt.Sprintf("%s: %s", inst.State.Label, message)); err != nil {
		return err
	}

	return inst.H.Stop(ctx, algo.CancelAfter(0, live), algo.StopOptions{Reason: message})
}

// Abort reports an error and stops the instance, cancelling its live orders after grace.
func Abort(ctx context.Context, inst *algo.Instance, grace time.Duration, message string) error {
	if inst.Stopping() {
		return nil
	}

	live := inst.LiveOrders()

	if err := inst.H.Notify(ctx, algo.NotifyError, fmt.Sprintf("%s: %s", inst.State.Label, message)); err != nil {
		return err
	}

	return inst.H.Stop(ctx, algo.CancelAfter(grace, live), algo.StopOptions{Reason: message})
}

// StopOnExternalCancel is an order cancel handler for algorithms that cannot continue once
// one of their orders was cancelled by someone else.
func StopOnExternalCancel(ctx context.Context, inst *algo.Instance, ev algo.OrderCancel) error {
	return Abort(ctx, inst, 0, fmt.Sprintf("order %s was cancelled externally", ev.Order.CID))
}

// CancelGIDAfter returns a teardown that cancels every order of gid after grace.
func CancelGIDAfter(grace time.Duration, gid int64) algo.Teardown {
	return func(ctx context.Context, ex algo.Executor) error {
		if err := algo.CancelAfter(grace, nil)(ctx, ex); err != nil {
			return err
		}

		return ex.CancelOrdersByGID(ctx, gid)
	}
}

// FormatAmount renders an amount for labels.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Sign returns 1 for buys and -1 for sells.
func Sign(amount float64) float64 {
	return math.Copysign(1, amount)
}

// Apply sets the shared order flags.
func Apply(o types.Order, hidden, postOnly bool, lev int, label string) types.Order {
	o.Hidden = hidden
	o.PostOnly = postOnly && o.Type == types.OrderTypeLimit
	o.Leverage = lev
	o.Label = label

	return o
}
