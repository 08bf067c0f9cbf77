package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// BollingerBands tracks a simple moving average (middle band) and bands at
// stdDev population standard deviations above and below it.
type BollingerBands struct {
	period int
	stdDev float64 // Number of standard deviations
	window []float64
	out    series
	upper  float64
	lower  float64
}

// NewBollingerBands creates a new Bollinger Bands indicator with default configuration.
func NewBollingerBands() Indicator {
	return &BollingerBands{
		period: 20,  // Default period
		stdDev: 2.0, // Default standard deviation
		window: nil,
		out:    series{values: nil},
		upper:  0,
		lower:  0,
	}
}

func (bb *BollingerBands) Name() types.IndicatorType {
	return types.IndicatorTypeBollingerBands
}

// Config configures the Bollinger Bands indicator. Expected parameters: period (int), stdDev (float64).
func (bb *BollingerBands) Config(params ...any) error {
	if len(params) != 2 {
		return errors.New(errors.ErrCodeMissingParameter, "Config expects 2 parameters: period (int), stdDev (float64)")
	}

	period, err := periodParam(params[0])
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPeriod, "invalid Bollinger Bands period", err)
	}

	stdDev, ok := params[1].(float64)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for stdDev parameter, expected float64")
	}

	if stdDev <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "stdDev must be a positive number, got %f", stdDev)
	}

	bb.period = period
	bb.stdDev = stdDev
	bb.Reset()

	return nil
}

func (bb *BollingerBands) Add(value float64) {
	bb.window = append(bb.window, value)
	if len(bb.window) > bb.period {
		bb.window = bb.window[len(bb.window)-bb.period:]
	}

	bb.out.push(bb.calculateBands())
}

func (bb *BollingerBands) Update(value float64) {
	if len(bb.window) == 0 {
		bb.Add(value)

		return
	}

	bb.window[len(bb.window)-1] = value
	bb.out.replace(bb.calculateBands())
}

// Value returns the middle band.
func (bb *BollingerBands) Value() float64 {
	return bb.out.last()
}

// Bands returns upper, middle and lower bands. ok is false until a full period was seen.
func (bb *BollingerBands) Bands() (upper, middle, lower float64, ok bool) {
	return bb.upper, bb.out.last(), bb.lower, bb.Ready()
}

func (bb *BollingerBands) Ready() bool {
	return len(bb.window) >= bb.period
}

func (bb *BollingerBands) Crossed(target float64) bool {
	return bb.out.crossed(target)
}

func (bb *BollingerBands) Len() int {
	return len(bb.out.values)
}

func (bb *BollingerBands) Reset() {
	bb.window = nil
	bb.out.reset()
	bb.upper = 0
	bb.lower = 0
}

// calculateBands recomputes the bands over the current window and returns the middle band.
func (bb *BollingerBands) calculateBands() float64 {
	middle := calculateSimpleMovingAverage(bb.window)

	// Calculate standard deviation
	var squaredDiffSum float64

	for _, v := range bb.window {
		diff := v - middle
		squaredDiffSum += diff * diff
	}

	stdDev := math.Sqrt(squaredDiffSum / float64(len(bb.window)))

	bb.upper = middle + (bb.stdDev * stdDev)
	bb.lower = middle - (bb.stdDev * stdDev)

	return middle
}
