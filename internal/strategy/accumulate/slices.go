package accumulate

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/shopspring/decimal"
)

// amountPrecision is the number of decimals a distorted slice is rounded to.
const amountPrecision = 8

// SliceAmounts returns the slice list for p. Without amount distortion the total is cut into
// equal slices; with it every slice is sliceAmount × (1 ± U(0,1) × distortion), capped at what
// is left. Either way the slices sum exactly to the total.
func SliceAmounts(p *Params, rnd *rand.Rand) []float64 {
	if p.AmountDistortion == 0 {
		return utils.SplitEqual(p.Amount, p.SliceAmount)
	}

	total := decimal.NewFromFloat(p.Amount)
	remaining := total
	amounts := make([]float64, 0)
	base := math.Abs(p.SliceAmount)

	for !types.IsDust(remaining.InexactFloat64()) {
		magnitude := base * (1 + distortion(rnd)*p.AmountDistortion)
		magnitude = utils.RoundToDecimalPrecision(magnitude, amountPrecision)

		slice := decimal.NewFromFloat(math.Copysign(magnitude, p.Amount))
		if slice.Abs().GreaterThanOrEqual(remaining.Abs()) || types.IsDust(remaining.Sub(slice).InexactFloat64()) {
			slice = remaining
		}

		if types.IsDust(slice.InexactFloat64()) {
			slice = remaining
		}

		amounts = append(amounts, slice.InexactFloat64())
		remaining = remaining.Sub(slice)
	}

	return amounts
}

// NextInterval returns the wait before the next slice, with the interval distortion applied.
func NextInterval(p *Params, rnd *rand.Rand) time.Duration {
	interval := float64(p.SliceIntervalMs)
	if p.IntervalDistortion > 0 {
		interval *= 1 + distortion(rnd)*p.IntervalDistortion
	}

	return time.Duration(math.Max(interval, 0)) * time.Millisecond
}

// distortion returns a uniform value in [-1, 1).
func distortion(rnd *rand.Rand) float64 {
	return rnd.Float64()*2 - 1
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}

	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
