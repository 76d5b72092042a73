package registry

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/config"
	"github.com/cleared-dev/pennywise/internal/model"
)

// Options control reconciliation and miss decay.
type Options struct {
	AmountTolerancePct float64
	AmountEpsilon      decimal.Decimal
	GracePct           float64
	MissDecay          float64
	MaxMisses          int
}

// DefaultOptions mirrors config.Default().Detector.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Detector)
}

// OptionsFromConfig converts the YAML detector section.
func OptionsFromConfig(c config.DetectorConfig) Options {
	return Options{
		AmountTolerancePct: c.AmountTolerancePct,
		AmountEpsilon:      decimal.NewFromFloat(c.AmountEpsilon).Round(2),
		GracePct:           c.GracePct,
		MissDecay:          c.MissDecay,
		MaxMisses:          c.MaxMisses,
	}
}

// Misses counts due dates lastSeen+k·freq (k ≥ 1) whose grace window closed
// before now, capped at the miss limit, and returns the first due date that
// is still open.
func (o Options) Misses(lastSeen time.Time, freq model.Frequency, now time.Time) (int, time.Time) {
	if freq <= 0 {
		return 0, lastSeen
	}
	grace := time.Duration(o.GracePct * float64(freq.Period()))
	n := 0
	for {
		due := lastSeen.AddDate(0, 0, (n+1)*freq.Days())
		if !due.Add(grace).Before(now) || n >= o.MaxMisses {
			return n, due
		}
		n++
	}
}

// Decay returns confidence after misses consecutive misses.
func (o Options) Decay(confidence float64, misses int) float64 {
	if misses <= 0 {
		return confidence
	}
	return math.Round(confidence*math.Pow(o.MissDecay, float64(misses))*1e4) / 1e4
}

// materiallyDifferent reports whether next is outside old's tolerance band.
func (o Options) materiallyDifferent(old, next decimal.Decimal) bool {
	band := decimal.Max(old.Abs().Mul(decimal.NewFromFloat(o.AmountTolerancePct)), o.AmountEpsilon)
	return next.Sub(old).Abs().GreaterThan(band)
}

// ValueScore is 1 within one period of the last use and falls linearly to
// 0 at three periods.
func ValueScore(lastUsed time.Time, freq model.Frequency, now time.Time) float64 {
	if freq <= 0 {
		freq = model.Monthly
	}
	periods := now.Sub(lastUsed).Hours() / freq.Period().Hours()
	switch {
	case periods <= 1:
		return 1
	case periods >= 3:
		return 0
	}
	return math.Round((3-periods)/2*1e4) / 1e4
}
