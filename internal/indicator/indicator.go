package indicator

import (
	"time"

	"github.com/rxtech-lab/argo-algo/internal/types"
)

// maxHistory bounds the output series kept for crossing checks.
const maxHistory = 64

// Indicator is an incremental technical indicator owned by a single algo order instance.
// Values are fed oldest to newest. Add appends a new sample, Update replaces the latest one
// (used while the current candle is still forming).
type Indicator interface {
	// Name returns the name of the indicator
	Name() types.IndicatorType
	// Config applies indicator specific parameters
	Config(params ...any) error
	Add(value float64)
	Update(value float64)
	// Value returns the latest output
	Value() float64
	// Ready reports whether enough samples were seen for a full period
	Ready() bool
	// Crossed reports whether the last step moved the output across target
	Crossed(target float64) bool
	Len() int
	Reset()
}

// series keeps the most recent outputs of an indicator.
type series struct {
	values []float64
}

func (s *series) push(v float64) {
	s.values = append(s.values, v)
	if len(s.values) > maxHistory {
		s.values = s.values[len(s.values)-maxHistory:]
	}
}

func (s *series) replace(v float64) {
	if len(s.values) == 0 {
		s.push(v)

		return
	}

	s.values[len(s.values)-1] = v
}

func (s *series) last() float64 {
	if len(s.values) == 0 {
		return 0
	}

	return s.values[len(s.values)-1]
}

func (s *series) crossed(target float64) bool {
	if len(s.values) < 2 {
		return false
	}

	prev := s.values[len(s.values)-2]
	cur := s.values[len(s.values)-1]

	return (prev < target && cur >= target) || (prev > target && cur <= target)
}

func (s *series) reset() {
	s.values = nil
}

// CandleFeed drives an indicator from candles: a candle with the same open time as the
// previous one updates the last sample, a newer candle adds a sample, older candles are ignored.
type CandleFeed struct {
	Indicator Indicator
	Price     types.CandlePrice
	last      time.Time
}

// NewCandleFeed wraps ind reading the given candle field.
func NewCandleFeed(ind Indicator, price types.CandlePrice) *CandleFeed {
	return &CandleFeed{Indicator: ind, Price: price, last: time.Time{}}
}

// Seed resets the indicator and replays candles oldest to newest.
func (f *CandleFeed) Seed(candles []types.Candle) {
	f.Indicator.Reset()
	f.last = time.Time{}

	for _, c := range candles {
		f.Push(c)
	}
}

// Push applies one live candle.
func (f *CandleFeed) Push(c types.Candle) {
	switch {
	case !f.last.IsZero() && c.Time.Equal(f.last):
		f.Indicator.Update(c.Price(f.Price))
	case f.last.IsZero() || c.Time.After(f.last):
		f.Indicator.Add(c.Price(f.Price))
		f.last = c.Time
	}
}

// Seeded reports whether at least one candle was applied.
func (f *CandleFeed) Seeded() bool {
	return !f.last.IsZero()
}
