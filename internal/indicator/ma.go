package indicator

import (
	"fmt"

	"github.com/rxtech-lab/argo-algo/internal/types"
)

// MA indicator implements Simple Moving Average calculation.
type MA struct {
	period int
	window []float64
	out    series
}

// NewMA creates a new MA indicator with default configuration.
func NewMA() Indicator {
	return &MA{
		period: 20, // Default period
		window: nil,
		out:    series{values: nil},
	}
}

// Name returns the name of the indicator.
func (m *MA) Name() types.IndicatorType {
	return types.IndicatorTypeMA
}

// Expected parameters: period (int).
func (m *MA) Config(params ...any) error {
	if len(params) != 1 {
		return fmt.Errorf("Config expects 1 parameter: period (int)")
	}

	period, err := periodParam(params[0])
	if err != nil {
		return err
	}

	m.period = period
	m.Reset()

	return nil
}

func (m *MA) Add(value float64) {
	m.window = append(m.window, value)
	if len(m.window) > m.period {
		m.window = m.window[len(m.window)-m.period:]
	}

	m.out.push(calculateSimpleMovingAverage(m.window))
}

func (m *MA) Update(value float64) {
	if len(m.window) == 0 {
		m.Add(value)

		return
	}

	m.window[len(m.window)-1] = value
	m.out.replace(calculateSimpleMovingAverage(m.window))
}

// Value returns the average of the last period samples, or of all samples before the period is full.
func (m *MA) Value() float64 {
	return m.out.last()
}

func (m *MA) Ready() bool {
	return len(m.window) >= m.period
}

func (m *MA) Crossed(target float64) bool {
	return m.out.crossed(target)
}

func (m *MA) Len() int {
	return len(m.out.values)
}

func (m *MA) Reset() {
	m.window = nil
	m.out.reset()
}

// calculateSimpleMovingAverage calculates a simple moving average from the given samples.
func calculateSimpleMovingAverage(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sum := 0.0
	for _, d := range data {
		sum += d
	}

	return sum / float64(len(data))
}

func periodParam(p any) (int, error) {
	period, ok := p.(int)
	if !ok {
		// Try to convert to float first
		periodFloat, ok := p.(float64)
		if !ok {
			return 0, fmt.Errorf("invalid type for period parameter, expected int or float")
		}

		period = int(periodFloat)
	}

	if period <= 0 {
		return 0, fmt.Errorf("period must be a positive integer, got %d", period)
	}

	return period, nil
}
