package detect

import (
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/config"
)

// Options are the detector's tunable policy knobs.
type Options struct {
	MinConfidence        float64
	AmountTolerancePct   float64
	AmountEpsilon        decimal.Decimal
	IntervalTolerancePct float64
	CountSaturation      int
	WeightCount          float64
	WeightInterval       float64
	WeightAmount         float64
}

// DefaultOptions mirrors config.Default().Detector.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Detector)
}

// OptionsFromConfig converts the YAML detector section.
func OptionsFromConfig(c config.DetectorConfig) Options {
	return Options{
		MinConfidence:        c.MinConfidence,
		AmountTolerancePct:   c.AmountTolerancePct,
		AmountEpsilon:        decimal.NewFromFloat(c.AmountEpsilon).Round(2),
		IntervalTolerancePct: c.IntervalTolerancePct,
		CountSaturation:      c.CountSaturation,
		WeightCount:          c.Weights.Count,
		WeightInterval:       c.Weights.Interval,
		WeightAmount:         c.Weights.Amount,
	}
}
