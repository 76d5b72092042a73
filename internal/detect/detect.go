// Package detect finds recurring charges in a user's transaction history.
//
// Detection runs in stages: partition debits by normalized merchant key,
// cluster each partition by amount, snap the intervals of each cluster to a
// canonical frequency and score the result. Detect is pure; Service wires
// it to a transaction source and the registry.
package detect

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/merchant"
	"github.com/cleared-dev/pennywise/internal/model"
)

// Skip records a transaction left out of clustering.
type Skip struct {
	TransactionID string
	Err           error
}

// Result is the output of one detection pass.
type Result struct {
	Series    []model.RecurringSeries // every periodic cluster, sorted by key then last occurrence
	Malformed []Skip
	Credits   int
	Dropped   int // clusters with ≥2 occurrences that were not periodic
}

// Detect clusters txns into recurring series. It never fails: malformed
// transactions are reported in Result.Malformed and skipped.
func Detect(txns []model.Transaction, opts Options) Result {
	var res Result

	debits := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		if err := t.Validate(); err != nil {
			res.Malformed = append(res.Malformed, Skip{TransactionID: t.ID, Err: err})
			continue
		}
		if !t.IsDebit() {
			res.Credits++
			continue
		}
		debits = append(debits, t)
	}

	for _, part := range partition(debits) {
		for _, cl := range clusterByAmount(part.txns, opts) {
			if len(cl) < 2 {
				continue
			}
			s, ok := buildSeries(part.key, cl, opts)
			if !ok {
				res.Dropped++
				continue
			}
			res.Series = append(res.Series, s)
		}
	}

	slices.SortFunc(res.Series, func(a, b model.RecurringSeries) int {
		return cmp.Or(
			cmp.Compare(a.MerchantKey, b.MerchantKey),
			a.LastOccurrence().Compare(b.LastOccurrence()),
			a.Amount().Cmp(b.Amount()),
		)
	})
	return res
}

// Accept applies the acceptance policy and returns at most one candidate
// per merchant key: the highest confidence, ties going to the series seen
// most recently.
func Accept(series []model.RecurringSeries, opts Options) []model.RecurringSeries {
	best := make(map[string]model.RecurringSeries)
	for _, s := range series {
		if len(s.Occurrences) < 2 || s.Confidence < opts.MinConfidence {
			continue
		}
		cur, ok := best[s.MerchantKey]
		if !ok || better(s, cur) {
			best[s.MerchantKey] = s
		}
	}

	out := make([]model.RecurringSeries, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b model.RecurringSeries) int {
		return cmp.Compare(a.MerchantKey, b.MerchantKey)
	})
	return out
}

func better(a, b model.RecurringSeries) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.LastOccurrence().Equal(b.LastOccurrence()) {
		return a.LastOccurrence().After(b.LastOccurrence())
	}
	return a.Amount().GreaterThan(b.Amount())
}

type merchantPartition struct {
	key  string
	txns []model.Transaction
}

// partition groups debits by canonical merchant key, in key order.
func partition(debits []model.Transaction) []merchantPartition {
	keys := make([]string, len(debits))
	for i, t := range debits {
		keys[i] = merchant.Normalize(t.Merchant)
	}
	canonical := merchant.Collapse(keys)

	byKey := make(map[string][]model.Transaction)
	for i, t := range debits {
		k := canonical[keys[i]]
		byKey[k] = append(byKey[k], t)
	}

	parts := make([]merchantPartition, 0, len(byKey))
	for k, txns := range byKey {
		parts = append(parts, merchantPartition{key: k, txns: txns})
	}
	slices.SortFunc(parts, func(a, b merchantPartition) int { return cmp.Compare(a.key, b.key) })
	return parts
}

// clusterByAmount greedily groups transactions whose magnitudes stay within
// the tolerance band of the running cluster mean. Each returned cluster is
// ordered oldest first.
func clusterByAmount(txns []model.Transaction, opts Options) [][]model.Transaction {
	sorted := slices.Clone(txns)
	slices.SortFunc(sorted, func(a, b model.Transaction) int {
		return cmp.Or(
			a.Magnitude().Cmp(b.Magnitude()),
			a.Timestamp.Compare(b.Timestamp),
			cmp.Compare(a.ID, b.ID),
		)
	})

	tolPct := decimal.NewFromFloat(opts.AmountTolerancePct)

	var clusters [][]model.Transaction
	var cur []model.Transaction
	sum := decimal.Zero
	for _, t := range sorted {
		if len(cur) > 0 {
			mean := sum.Div(decimal.NewFromInt(int64(len(cur))))
			band := decimal.Max(mean.Mul(tolPct), opts.AmountEpsilon)
			if t.Magnitude().Sub(mean).Abs().GreaterThan(band) {
				clusters = append(clusters, cur)
				cur, sum = nil, decimal.Zero
			}
		}
		cur = append(cur, t)
		sum = sum.Add(t.Magnitude())
	}
	if len(cur) > 0 {
		clusters = append(clusters, cur)
	}

	for _, cl := range clusters {
		slices.SortFunc(cl, func(a, b model.Transaction) int {
			return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ID, b.ID))
		})
	}
	return clusters
}

// buildSeries infers frequency and confidence for a time-ordered cluster.
// ok is false when the cluster is not periodic.
func buildSeries(key string, occ []model.Transaction, opts Options) (model.RecurringSeries, bool) {
	intervals := make([]int, len(occ)-1)
	for i := 1; i < len(occ); i++ {
		intervals[i-1] = daysBetween(occ[i-1].Timestamp, occ[i].Timestamp)
	}

	freq := modalFrequency(intervals, opts.IntervalTolerancePct)
	if freq == model.FrequencyNone {
		return model.RecurringSeries{}, false
	}

	s := model.RecurringSeries{
		MerchantKey: key,
		Occurrences: occ,
		Intervals:   intervals,
		Frequency:   freq,
	}
	last := occ[len(occ)-1]
	s.Merchant = last.Merchant
	for i := len(occ) - 1; i >= 0; i-- {
		if occ[i].MCC != "" {
			s.MCC = occ[i].MCC
			break
		}
	}
	s.Confidence = Confidence(len(occ), intervals, s.Amounts(), opts)
	return s, true
}

// daysBetween counts UTC calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Bucket snaps an interval to the canonical frequency within tolerance, or
// FrequencyNone.
func Bucket(days int, tolerancePct float64) model.Frequency {
	best := model.FrequencyNone
	bestDist := 0.0
	for _, f := range model.CanonicalFrequencies {
		b := float64(f.Days())
		dist := math.Abs(float64(days) - b)
		if dist > tolerancePct*b {
			continue
		}
		if best == model.FrequencyNone || dist < bestDist {
			best, bestDist = f, dist
		}
	}
	return best
}

// modalFrequency returns the most common bucket. Unmatched intervals count
// as their own bucket; if they are the mode, or tie the best bucket, the
// series is not periodic. Ties between buckets go to the shorter period.
func modalFrequency(intervals []int, tolerancePct float64) model.Frequency {
	counts := make(map[model.Frequency]int)
	for _, iv := range intervals {
		counts[Bucket(iv, tolerancePct)]++
	}

	best, bestN := model.FrequencyNone, 0
	for _, f := range model.CanonicalFrequencies {
		if counts[f] > bestN {
			best, bestN = f, counts[f]
		}
	}
	if bestN == 0 || counts[model.FrequencyNone] >= bestN {
		return model.FrequencyNone
	}
	return best
}
