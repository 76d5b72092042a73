package detect

import (
	"math"

	"github.com/shopspring/decimal"
)

// Confidence scores how likely a cluster is genuinely periodic:
//
//	wCount·min(1, n/saturation) + wInterval·clamp(1−CV(intervals)) + wAmount·clamp(1−CV(amounts))
//
// normalized by the weight sum. Each term is non-decreasing in regularity,
// and adding a perfectly consistent occurrence never lowers the score.
func Confidence(n int, intervals []int, amounts []decimal.Decimal, opts Options) float64 {
	sat := opts.CountSaturation
	if sat < 1 {
		sat = 1
	}
	countScore := math.Min(1, float64(n)/float64(sat))

	ivs := make([]float64, len(intervals))
	for i, iv := range intervals {
		ivs[i] = float64(iv)
	}
	amts := make([]float64, len(amounts))
	for i, a := range amounts {
		amts[i] = a.InexactFloat64()
	}

	intervalScore := clamp01(1 - cv(ivs))
	amountScore := clamp01(1 - cv(amts))

	wsum := opts.WeightCount + opts.WeightInterval + opts.WeightAmount
	if wsum <= 0 {
		return 0
	}
	score := (opts.WeightCount*countScore + opts.WeightInterval*intervalScore + opts.WeightAmount*amountScore) / wsum
	return math.Round(clamp01(score)*1e4) / 1e4
}

// cv is the population coefficient of variation; 0 for fewer than two
// values or a zero mean.
func cv(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if mean == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss/float64(len(xs))) / math.Abs(mean)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
