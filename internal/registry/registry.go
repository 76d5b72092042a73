// Package registry keeps the durable bill and subscription records in step
// with detector output. Reconcile is the only path that creates records,
// which is what keeps one active record per user and merchant.
package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/pennywise/internal/category"
	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/merchant"
	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/userlock"
)

var (
	// ErrNotFound is returned for unknown record ids.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned for status changes a record cannot make.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the persistence the registry needs. *store.Store satisfies it.
type Store interface {
	ListBills(ctx context.Context, userID string) ([]model.Bill, error)
	ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error)
	GetBill(ctx context.Context, id string) (model.Bill, error)
	GetSubscription(ctx context.Context, id string) (model.Subscription, error)
	UpsertBill(ctx context.Context, b model.Bill) error
	UpsertSubscription(ctx context.Context, s model.Subscription) error
}

// Categorizer supplies bill/subscription classification.
type Categorizer interface {
	Classify(merchantKey, mcc string) (category.Classification, bool)
}

// Action names what reconciliation did to a record.
type Action string

const (
	ActionCreated     Action = "created"
	ActionUpdated     Action = "updated"
	ActionSuppressed  Action = "suppressed"
	ActionDecayed     Action = "decayed"
	ActionDeactivated Action = "deactivated"
)

// Change is one line of a reconciliation report.
type Change struct {
	Action      Action
	Kind        model.Kind
	RecordID    string
	MerchantKey string
	Detail      string
}

// Report summarizes a Reconcile call.
type Report struct {
	Created     int
	Updated     int
	Unchanged   int
	Suppressed  int
	Decayed     int
	Deactivated int
	Changes     []Change
}

func (r *Report) add(c Change) {
	switch c.Action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionSuppressed:
		r.Suppressed++
	case ActionDecayed:
		r.Decayed++
	case ActionDeactivated:
		r.Deactivated++
	}
	r.Changes = append(r.Changes, c)
}

// Service reconciles candidates and serves user operations on records.
type Service struct {
	store  Store
	cats   Categorizer
	locker *userlock.Locker
	opts   Options
	logger zerolog.Logger
}

// NewService creates a registry Service. locker must be the one shared
// with the detector.
func NewService(store Store, cats Categorizer, locker *userlock.Locker, opts Options, logger zerolog.Logger) *Service {
	return &Service{store: store, cats: cats, locker: locker, opts: opts, logger: logger}
}

// entry wraps a bill or a subscription behind one Recurring pointer.
type entry struct {
	bill *model.Bill
	sub  *model.Subscription
}

func (e entry) rec() *model.Recurring {
	if e.sub != nil {
		return &e.sub.Recurring
	}
	return &e.bill.Recurring
}

func (e entry) kind() model.Kind {
	if e.sub != nil {
		return model.KindSubscription
	}
	return model.KindBill
}

func (s *Service) save(ctx context.Context, e entry) error {
	if e.sub != nil {
		return s.store.UpsertSubscription(ctx, *e.sub)
	}
	return s.store.UpsertBill(ctx, *e.bill)
}

func (s *Service) load(ctx context.Context, userID string) ([]entry, error) {
	bills, err := s.store.ListBills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading bills: %w", err)
	}
	subs, err := s.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading subscriptions: %w", err)
	}
	entries := make([]entry, 0, len(bills)+len(subs))
	for i := range bills {
		entries = append(entries, entry{bill: &bills[i]})
	}
	for i := range subs {
		entries = append(entries, entry{sub: &subs[i]})
	}
	return entries, nil
}

// Reconcile applies accepted candidates to the user's records and decays
// records no candidate refreshed. The caller must hold the user's lock;
// detect.Service does.
func (s *Service) Reconcile(ctx context.Context, userID string, candidates []model.RecurringSeries, now time.Time) (Report, error) {
	var report Report

	entries, err := s.load(ctx, userID)
	if err != nil {
		return report, err
	}

	cands := slices.Clone(candidates)
	slices.SortFunc(cands, func(a, b model.RecurringSeries) int { return cmp.Compare(a.MerchantKey, b.MerchantKey) })

	touched := make(map[string]bool)
	for _, c := range cands {
		if e, ok := findActive(entries, c.MerchantKey); ok {
			touched[e.rec().ID] = true
			change, err := s.update(ctx, e, c, now)
			if err != nil {
				return report, err
			}
			if change == nil {
				report.Unchanged++
				continue
			}
			report.add(*change)
			continue
		}

		if reason := s.suppressed(entries, c, now); reason != "" {
			report.add(Change{Action: ActionSuppressed, MerchantKey: c.MerchantKey, Detail: reason})
			continue
		}
		e, err := s.create(ctx, userID, c, now)
		if err != nil {
			return report, err
		}
		touched[e.rec().ID] = true
		entries = append(entries, e)
		report.add(Change{Action: ActionCreated, Kind: e.kind(), RecordID: e.rec().ID, MerchantKey: c.MerchantKey})
	}

	for _, e := range entries {
		r := e.rec()
		if !r.Active || touched[r.ID] {
			continue
		}
		change, err := s.decay(ctx, e, now)
		if err != nil {
			return report, err
		}
		if change == nil {
			report.Unchanged++
			continue
		}
		report.add(*change)
	}
	return report, nil
}

// findActive returns the active record for key: an exact key match first,
// then a near-duplicate spelling.
func findActive(entries []entry, key string) (entry, bool) {
	for _, e := range entries {
		if r := e.rec(); r.Active && r.MerchantKey == key {
			return e, true
		}
	}
	for _, e := range entries {
		if r := e.rec(); r.Active && merchant.Matches(r.MerchantKey, key) {
			return e, true
		}
	}
	return entry{}, false
}

// suppressed returns a non-empty reason when c must not create a record.
func (s *Service) suppressed(entries []entry, c model.RecurringSeries, now time.Time) string {
	for _, e := range entries {
		r := e.rec()
		if r.Active || !merchant.Matches(r.MerchantKey, c.MerchantKey) {
			continue
		}
		switch r.DeactivationReason {
		case model.DeactivatedUser:
			return "deactivated by user"
		case model.DeactivatedMissed:
			if !r.LastSeen.Before(c.LastOccurrence()) {
				return "series already retired"
			}
		}
	}
	if misses, _ := s.opts.Misses(c.LastOccurrence(), c.Frequency, now); misses >= s.opts.MaxMisses {
		return "series already past miss limit"
	}
	return ""
}

func (s *Service) create(ctx context.Context, userID string, c model.RecurringSeries, now time.Time) (entry, error) {
	class, known := s.cats.Classify(c.MerchantKey, c.MCC)
	if !known {
		s.logger.Debug().Str("merchant_key", c.MerchantKey).Msg("merchant not in category map, using fallback")
	}
	misses, nextDue := s.opts.Misses(c.LastOccurrence(), c.Frequency, now)

	rec := model.Recurring{
		ID:          id.New(),
		UserID:      userID,
		Merchant:    c.Merchant,
		MerchantKey: c.MerchantKey,
		Amount:      c.Amount(),
		Frequency:   c.Frequency,
		NextDueDate: nextDue,
		LastSeen:    c.LastOccurrence(),
		Confidence:  s.opts.Decay(c.Confidence, misses),
		MissedCount: misses,
		Active:      true,
		Category:    class.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var e entry
	if class.Kind == model.KindSubscription {
		e.sub = &model.Subscription{
			Recurring:              rec,
			Status:                 model.SubscriptionActive,
			CancellationDifficulty: class.Difficulty,
		}
	} else {
		e.bill = &model.Bill{Recurring: rec}
	}
	if err := s.save(ctx, e); err != nil {
		return entry{}, fmt.Errorf("creating %s for %q: %w", e.kind(), c.MerchantKey, err)
	}
	return e, nil
}

// update refreshes an active record from a candidate. It returns nil when
// nothing changed so repeated runs leave UpdatedAt alone.
func (s *Service) update(ctx context.Context, e entry, c model.RecurringSeries, now time.Time) (*Change, error) {
	r := e.rec()
	before := *r
	var beforeSub model.Subscription
	if e.sub != nil {
		beforeSub = *e.sub
	}

	misses, nextDue := s.opts.Misses(c.LastOccurrence(), c.Frequency, now)
	r.LastSeen = c.LastOccurrence()
	r.NextDueDate = nextDue
	r.Confidence = s.opts.Decay(c.Confidence, misses)
	r.MissedCount = misses

	var notes []string
	if s.opts.materiallyDifferent(r.Amount, c.Amount()) {
		if e.sub != nil && c.Amount().GreaterThan(r.Amount) && e.sub.Status == model.SubscriptionActive {
			e.sub.Status = model.SubscriptionPriceIncrease
		}
		notes = append(notes, fmt.Sprintf("amount %s -> %s", r.Amount.StringFixed(2), c.Amount().StringFixed(2)))
		r.Amount = c.Amount()
		r.Merchant = c.Merchant
	}
	if r.Frequency != c.Frequency {
		notes = append(notes, fmt.Sprintf("frequency %s -> %s", r.Frequency, c.Frequency))
		r.Frequency = c.Frequency
	}
	if e.sub != nil && e.sub.LastUsedAt != nil {
		e.sub.ValueScore = ValueScore(*e.sub.LastUsedAt, r.Frequency, now)
	}

	action := ActionUpdated
	if misses >= s.opts.MaxMisses {
		r.Active = false
		r.DeactivationReason = model.DeactivatedMissed
		action = ActionDeactivated
	}

	if sameRecurring(before, *r) && (e.sub == nil || sameSubscription(beforeSub, *e.sub)) {
		return nil, nil
	}
	r.UpdatedAt = now
	if err := s.save(ctx, e); err != nil {
		return nil, fmt.Errorf("updating %s %s: %w", e.kind(), r.ID, err)
	}
	return &Change{Action: action, Kind: e.kind(), RecordID: r.ID, MerchantKey: r.MerchantKey, Detail: strings.Join(notes, "; ")}, nil
}

// decay ages a record no candidate refreshed this run.
func (s *Service) decay(ctx context.Context, e entry, now time.Time) (*Change, error) {
	r := e.rec()
	misses, nextDue := s.opts.Misses(r.LastSeen, r.Frequency, now)
	delta := misses - r.MissedCount

	var valueChanged bool
	if e.sub != nil && e.sub.LastUsedAt != nil {
		v := ValueScore(*e.sub.LastUsedAt, r.Frequency, now)
		valueChanged = v != e.sub.ValueScore
		e.sub.ValueScore = v
	}
	if delta <= 0 && !valueChanged {
		return nil, nil
	}

	action := ActionUpdated
	if delta > 0 {
		r.Confidence = s.opts.Decay(r.Confidence, delta)
		r.MissedCount = misses
		r.NextDueDate = nextDue
		action = ActionDecayed
		if misses >= s.opts.MaxMisses {
			r.Active = false
			r.DeactivationReason = model.DeactivatedMissed
			action = ActionDeactivated
		}
	}
	r.UpdatedAt = now
	if err := s.save(ctx, e); err != nil {
		return nil, fmt.Errorf("decaying %s %s: %w", e.kind(), r.ID, err)
	}
	return &Change{
		Action: action, Kind: e.kind(), RecordID: r.ID, MerchantKey: r.MerchantKey,
		Detail: fmt.Sprintf("missed %d", misses),
	}, nil
}

func sameRecurring(a, b model.Recurring) bool {
	return a.Merchant == b.Merchant &&
		a.Amount.Equal(b.Amount) &&
		a.Frequency == b.Frequency &&
		a.NextDueDate.Equal(b.NextDueDate) &&
		a.LastSeen.Equal(b.LastSeen) &&
		a.Confidence == b.Confidence &&
		a.MissedCount == b.MissedCount &&
		a.Active == b.Active &&
		a.DeactivationReason == b.DeactivationReason
}

func sameSubscription(a, b model.Subscription) bool {
	return a.Status == b.Status && a.ValueScore == b.ValueScore
}
