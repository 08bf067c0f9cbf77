package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// amountPlaces is the precision used when amounts are converted to decimals.
const amountPlaces = 12

// RoundToDecimalPrecision rounds the quantity to the specified decimal precision.
func RoundToDecimalPrecision(quantity float64, decimalPrecision int) float64 {
	multiplier := math.Pow10(decimalPrecision)

	return math.Floor(quantity*multiplier) / multiplier
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(amountPlaces)
}

// SubAmount returns a - b computed in decimal to avoid float drift on repeated fills.
func SubAmount(a, b float64) float64 {
	return dec(a).Sub(dec(b)).InexactFloat64()
}

// AddAmount returns a + b computed in decimal.
func AddAmount(a, b float64) float64 {
	return dec(a).Add(dec(b)).InexactFloat64()
}

// SumAmounts adds amounts in decimal.
func SumAmounts(amounts []float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(dec(a))
	}

	return total.InexactFloat64()
}

// CapAmount returns a slice of |slice| capped at |remaining|, carrying the sign of remaining.
func CapAmount(slice, remaining float64) float64 {
	magnitude := math.Min(math.Abs(slice), math.Abs(remaining))

	return math.Copysign(magnitude, remaining)
}

// SameSign reports whether both values are non-zero with the same sign.
func SameSign(a, b float64) bool {
	return a != 0 && b != 0 && math.Signbit(a) == math.Signbit(b)
}

// SplitEqual splits total into slices of sliceAmount. The last slice carries the remainder
// so the slices sum exactly to total. The sign of total is applied to every slice.
func SplitEqual(total, sliceAmount float64) []float64 {
	t := dec(total)
	s := dec(math.Copysign(math.Abs(sliceAmount), total))

	if s.IsZero() || t.IsZero() {
		return nil
	}

	amounts := make([]float64, 0)
	remaining := t

	for remaining.Abs().GreaterThan(s.Abs()) {
		amounts = append(amounts, s.InexactFloat64())
		remaining = remaining.Sub(s)
	}

	if !remaining.IsZero() {
		amounts = append(amounts, remaining.InexactFloat64())
	}

	return amounts
}

// SplitWeighted splits total proportionally to weights. The last bucket absorbs rounding
// so the result sums exactly to total. Non-positive weight sums yield nil.
func SplitWeighted(total float64, weights []float64) []float64 {
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(dec(w))
	}

	if len(weights) == 0 || !sum.IsPositive() {
		return nil
	}

	t := dec(total)
	amounts := make([]float64, len(weights))
	allocated := decimal.Zero

	for i, w := range weights {
		if i == len(weights)-1 {
			amounts[i] = t.Sub(allocated).InexactFloat64()

			break
		}

		part := t.Mul(dec(w)).Div(sum).Round(amountPlaces)
		amounts[i] = part.InexactFloat64()
		allocated = allocated.Add(part)
	}

	return amounts
}
