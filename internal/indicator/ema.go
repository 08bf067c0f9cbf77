package indicator

import (
	"fmt"

	"github.com/rxtech-lab/argo-algo/internal/types"
)

// EMA indicator implements Exponential Moving Average calculation.
// The first period samples seed it with their simple average, then
// EMA = price * alpha + EMA_prev * (1 - alpha) with alpha = 2 / (period + 1).
type EMA struct {
	period int
	seed   []float64
	ema    float64
	// prev is the EMA before the latest sample, needed to recompute on Update.
	prev  float64
	count int
	out   series
}

// NewEMA creates a new EMA indicator with default configuration.
func NewEMA() Indicator {
	return &EMA{
		period: 20, // Default period
		seed:   nil,
		ema:    0,
		prev:   0,
		count:  0,
		out:    series{values: nil},
	}
}

// Name returns the name of the indicator.
func (e *EMA) Name() types.IndicatorType {
	return types.IndicatorTypeEMA
}

// Config configures the EMA indicator. Expected parameters: period (int).
func (e *EMA) Config(params ...any) error {
	if len(params) != 1 {
		return fmt.Errorf("Config expects 1 parameter: period (int)")
	}

	period, err := periodParam(params[0])
	if err != nil {
		return err
	}

	e.period = period
	e.Reset()

	return nil
}

func (e *EMA) alpha() float64 {
	return 2.0 / float64(e.period+1)
}

func (e *EMA) Add(value float64) {
	e.count++

	if e.count <= e.period {
		e.seed = append(e.seed, value)
		e.prev = e.ema
		e.ema = calculateSimpleMovingAverage(e.seed)
		e.out.push(e.ema)

		return
	}

	e.prev = e.ema
	e.ema = (value * e.alpha()) + (e.prev * (1 - e.alpha()))
	e.out.push(e.ema)
}

func (e *EMA) Update(value float64) {
	if e.count == 0 {
		e.Add(value)

		return
	}

	if e.count <= e.period {
		e.seed[len(e.seed)-1] = value
		e.ema = calculateSimpleMovingAverage(e.seed)
	} else {
		e.ema = (value * e.alpha()) + (e.prev * (1 - e.alpha()))
	}

	e.out.replace(e.ema)
}

func (e *EMA) Value() float64 {
	return e.ema
}

func (e *EMA) Ready() bool {
	return e.count >= e.period
}

func (e *EMA) Crossed(target float64) bool {
	return e.out.crossed(target)
}

func (e *EMA) Len() int {
	return e.count
}

func (e *EMA) Reset() {
	e.seed = nil
	e.ema = 0
	e.prev = 0
	e.count = 0
	e.out.reset()
}
