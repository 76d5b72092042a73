// Package goals projects savings-goal progress and manages goals and their
// contribution ledger.
package goals

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/model"
)

// Status classifies a goal's pace.
type Status string

const (
	StatusAchieved Status = "achieved"
	StatusAhead    Status = "ahead"
	StatusOnTrack  Status = "on-track"
	StatusBehind   Status = "behind"
	StatusAtRisk   Status = "at-risk"
)

// Window is the trailing period current monthly savings are measured over.
const Window = 30 * 24 * time.Hour

// Thresholds are the milestone percentages.
var Thresholds = []int{10, 25, 50, 75, 90, 100}

var (
	hundred     = decimal.NewFromInt(100)
	thirty      = decimal.NewFromInt(30)
	aheadFactor = decimal.RequireFromString("1.2")
)

// Milestone is a derived progress marker.
type Milestone struct {
	Percent   int
	Reached   bool
	ReachedAt *time.Time // timestamp of the contribution that crossed it
}

// Projection is a goal's computed progress as of a point in time.
type Projection struct {
	Goal                model.Goal
	Remaining           decimal.Decimal
	PercentComplete     decimal.Decimal
	MonthsRemaining     *decimal.Decimal // nil without a deadline
	RequiredMonthly     *decimal.Decimal // nil without a deadline
	CurrentMonthly      decimal.Decimal
	Status              Status
	ProjectedCompletion *time.Time
	Milestones          []Milestone
}

// Project computes a goal's progress from its ledger. It never divides by
// zero: required savings use at least one month, and projected completion
// is nil when nothing is being saved.
func Project(g model.Goal, contributions []model.GoalContribution, now time.Time) Projection {
	p := Projection{Goal: g}

	p.Remaining = decimal.Max(g.Target.Sub(g.Current), decimal.Zero)
	if g.Target.IsPositive() {
		p.PercentComplete = decimal.Min(g.Current.Div(g.Target).Mul(hundred), hundred).Round(2)
	} else {
		p.PercentComplete = hundred
	}

	from := now.Add(-Window)
	p.CurrentMonthly = decimal.Zero
	for _, c := range contributions {
		if c.Timestamp.After(from) && !c.Timestamp.After(now) {
			p.CurrentMonthly = p.CurrentMonthly.Add(c.Amount)
		}
	}

	if g.Deadline != nil {
		days := int64(g.Deadline.Sub(now).Hours() / 24)
		months := decimal.Max(decimal.NewFromInt(days).Div(thirty), decimal.NewFromInt(1))
		required := p.Remaining.Div(months).Round(2)
		p.MonthsRemaining = &months
		p.RequiredMonthly = &required
	}

	p.Milestones = milestones(g.Target, p.PercentComplete, contributions)
	p.Status = status(p)

	switch {
	case p.Status == StatusAchieved:
		p.ProjectedCompletion = p.Milestones[len(p.Milestones)-1].ReachedAt
	case p.CurrentMonthly.IsPositive():
		months := p.Remaining.Div(p.CurrentMonthly).Ceil().IntPart()
		at := now.AddDate(0, int(months), 0)
		p.ProjectedCompletion = &at
	}
	return p
}

func status(p Projection) Status {
	switch {
	case !p.Goal.Current.LessThan(p.Goal.Target):
		return StatusAchieved
	case p.RequiredMonthly == nil:
		if p.CurrentMonthly.IsPositive() {
			return StatusOnTrack
		}
		return StatusBehind
	case !p.CurrentMonthly.IsPositive():
		return StatusAtRisk
	case p.CurrentMonthly.GreaterThan(p.RequiredMonthly.Mul(aheadFactor)):
		return StatusAhead
	case p.CurrentMonthly.GreaterThanOrEqual(*p.RequiredMonthly):
		return StatusOnTrack
	}
	return StatusBehind
}

// milestones walks the ledger in time order and timestamps each threshold
// with the contribution whose running total crossed it.
func milestones(target, percent decimal.Decimal, contributions []model.GoalContribution) []Milestone {
	out := make([]Milestone, len(Thresholds))
	for i, th := range Thresholds {
		out[i] = Milestone{Percent: th, Reached: percent.GreaterThanOrEqual(decimal.NewFromInt(int64(th)))}
	}
	if !target.IsPositive() {
		return out
	}

	ledger := slices.Clone(contributions)
	slices.SortStableFunc(ledger, func(a, b model.GoalContribution) int { return a.Timestamp.Compare(b.Timestamp) })

	running := decimal.Zero
	next := 0
	for _, c := range ledger {
		running = running.Add(c.Amount)
		pct := running.Div(target).Mul(hundred)
		for next < len(out) && pct.GreaterThanOrEqual(decimal.NewFromInt(int64(out[next].Percent))) {
			at := c.Timestamp
			out[next].ReachedAt = &at
			next++
		}
	}
	return out
}
