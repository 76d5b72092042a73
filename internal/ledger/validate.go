// Package ledger checks the money invariants that span goals, the
// contribution ledger, round-ups and transfer batches.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/model"
)

// Invariant numbers.
const (
	GoalBalance       = 1 // goal current == sum of its contributions
	PositiveAmount    = 2 // contributions and round-ups are positive
	TwoDecimals       = 3 // money has at most 2 decimal places
	RoundUpSettlement = 4 // round-up status agrees with its batch
	BatchTotal        = 5 // batch amount == sum of member round-ups
	BatchCredit       = 6 // each transferred batch is credited exactly once
	OneActiveRecord   = 7 // at most one active bill/subscription per merchant
)

// ValidationError describes a single invariant violation.
type ValidationError struct {
	Invariant   int
	Subject     string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invariant %d [%s]: %s", e.Invariant, e.Subject, e.Description)
}

// GoalLedger is a goal with its contributions, read from one snapshot.
type GoalLedger struct {
	Goal          model.Goal
	Contributions []model.GoalContribution
}

// Snapshot is everything Validate looks at for one user.
type Snapshot struct {
	Goals         []GoalLedger
	RoundUps      []model.RoundUpTransaction
	Batches       []model.TransferBatch
	Bills         []model.Bill
	Subscriptions []model.Subscription
}

var cents = decimal.NewFromInt(100)

func hasCents(d decimal.Decimal) bool {
	return d.Mul(cents).Equal(d.Mul(cents).Floor())
}

// Validate returns every violation found in s, in invariant order per record.
func Validate(s Snapshot) []ValidationError {
	var errs []ValidationError
	add := func(inv int, subject, format string, args ...any) {
		errs = append(errs, ValidationError{Invariant: inv, Subject: subject, Description: fmt.Sprintf(format, args...)})
	}

	batches := make(map[string]model.TransferBatch, len(s.Batches))
	for _, b := range s.Batches {
		batches[b.ID] = b
	}
	credited := make(map[string]int)

	for _, gl := range s.Goals {
		g := gl.Goal
		sum := decimal.Zero
		for _, c := range gl.Contributions {
			sum = sum.Add(c.Amount)
			if !c.Amount.IsPositive() {
				add(PositiveAmount, c.ID, "contribution %s is not positive", c.Amount)
			}
			if !hasCents(c.Amount) {
				add(TwoDecimals, c.ID, "contribution %s has more than 2 decimal places", c.Amount)
			}
			if c.Source == model.SourceRoundUp {
				credited[c.Reference]++
				b, ok := batches[c.Reference]
				switch {
				case !ok:
					add(BatchCredit, c.ID, "round-up contribution references unknown batch %q", c.Reference)
				case !b.Amount.Equal(c.Amount) || b.GoalID != g.ID:
					add(BatchCredit, c.ID, "contribution %s to %s does not match batch %s of %s to %s",
						c.Amount.StringFixed(2), g.ID, b.ID, b.Amount.StringFixed(2), b.GoalID)
				}
			}
		}
		if !g.Current.Equal(sum) {
			add(GoalBalance, g.ID, "current %s != contributions %s", g.Current.StringFixed(2), sum.StringFixed(2))
		}
		if !hasCents(g.Target) {
			add(TwoDecimals, g.ID, "target %s has more than 2 decimal places", g.Target)
		}
	}

	members := make(map[string]decimal.Decimal)
	for _, r := range s.RoundUps {
		if !r.Multiplied.IsPositive() {
			add(PositiveAmount, r.ID, "round-up %s is not positive", r.Multiplied)
		}
		if !hasCents(r.Multiplied) {
			add(TwoDecimals, r.ID, "round-up %s has more than 2 decimal places", r.Multiplied)
		}

		if r.BatchID == "" {
			if r.Status == model.RoundUpTransferred || r.Status == model.RoundUpFailed {
				add(RoundUpSettlement, r.ID, "%s round-up has no batch", r.Status)
			}
			continue
		}
		members[r.BatchID] = members[r.BatchID].Add(r.Multiplied)
		b, ok := batches[r.BatchID]
		if !ok {
			add(RoundUpSettlement, r.ID, "unknown batch %q", r.BatchID)
			continue
		}
		want := map[model.BatchStatus]model.RoundUpStatus{
			model.BatchOpen:        model.RoundUpPending,
			model.BatchTransferred: model.RoundUpTransferred,
			model.BatchFailed:      model.RoundUpFailed,
		}[b.Status]
		if r.Status != want {
			add(RoundUpSettlement, r.ID, "round-up is %s but batch %s is %s", r.Status, b.ID, b.Status)
		}
	}

	for _, b := range s.Batches {
		if total := members[b.ID]; !total.Equal(b.Amount) {
			add(BatchTotal, b.ID, "amount %s != member round-ups %s", b.Amount.StringFixed(2), total.StringFixed(2))
		}
		n := credited[b.ID]
		switch {
		case b.Status == model.BatchTransferred && n != 1:
			add(BatchCredit, b.ID, "transferred batch credited %d times", n)
		case b.Status != model.BatchTransferred && n != 0:
			add(BatchCredit, b.ID, "%s batch credited %d times", b.Status, n)
		}
	}

	active := make(map[string]string)
	check := func(r model.Recurring) {
		if !r.Active {
			return
		}
		if other, ok := active[r.MerchantKey]; ok {
			add(OneActiveRecord, r.ID, "merchant %q already active as %s", r.MerchantKey, other)
			return
		}
		active[r.MerchantKey] = r.ID
	}
	for _, b := range s.Bills {
		check(b.Recurring)
	}
	for _, sub := range s.Subscriptions {
		check(sub.Recurring)
	}

	return errs
}
