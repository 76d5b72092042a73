package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/store"
)

// get loads a record of either kind owned by userID.
func (s *Service) get(ctx context.Context, userID, recordID string) (entry, error) {
	b, err := s.store.GetBill(ctx, recordID)
	if err == nil {
		if b.UserID != userID {
			return entry{}, fmt.Errorf("%s: %w", recordID, ErrNotFound)
		}
		return entry{bill: &b}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return entry{}, err
	}

	sub, err := s.store.GetSubscription(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sub.UserID != userID) {
		return entry{}, fmt.Errorf("%s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return entry{}, err
	}
	return entry{sub: &sub}, nil
}

// Deactivate stops tracking a bill or subscription at the user's request.
// Future detections of the same merchant are suppressed.
func (s *Service) Deactivate(ctx context.Context, userID, recordID string, now time.Time) error {
	unlock := s.locker.Lock(userID)
	defer unlock()

	e, err := s.get(ctx, userID, recordID)
	if err != nil {
		return err
	}
	r := e.rec()
	if !r.Active && r.DeactivationReason == model.DeactivatedUser {
		return nil
	}
	r.Active = false
	r.DeactivationReason = model.DeactivatedUser
	r.UpdatedAt = now
	if err := s.save(ctx, e); err != nil {
		return fmt.Errorf("deactivating %s: %w", recordID, err)
	}
	s.logger.Info().Str("user_id", userID).Str("record_id", recordID).Str("merchant_key", r.MerchantKey).
		Msg("record deactivated by user")
	return nil
}

func (s *Service) subscription(ctx context.Context, userID, subID string) (entry, error) {
	e, err := s.get(ctx, userID, subID)
	if err != nil {
		return entry{}, err
	}
	if e.sub == nil {
		return entry{}, fmt.Errorf("%s is a bill: %w", subID, ErrInvalidTransition)
	}
	return e, nil
}

func (s *Service) transition(ctx context.Context, userID, subID string, now time.Time, apply func(*model.Subscription) error) error {
	unlock := s.locker.Lock(userID)
	defer unlock()

	e, err := s.subscription(ctx, userID, subID)
	if err != nil {
		return err
	}
	if err := apply(e.sub); err != nil {
		return err
	}
	e.sub.UpdatedAt = now
	if err := s.save(ctx, e); err != nil {
		return fmt.Errorf("updating subscription %s: %w", subID, err)
	}
	return nil
}

// PauseSubscription marks an active subscription paused. It stays tracked.
func (s *Service) PauseSubscription(ctx context.Context, userID, subID string, now time.Time) error {
	return s.transition(ctx, userID, subID, now, func(sub *model.Subscription) error {
		if !sub.Active || sub.Status == model.SubscriptionCancelled || sub.Status == model.SubscriptionPaused {
			return fmt.Errorf("pause from %s: %w", sub.Status, ErrInvalidTransition)
		}
		sub.Status = model.SubscriptionPaused
		return nil
	})
}

// ResumeSubscription returns a paused subscription to active.
func (s *Service) ResumeSubscription(ctx context.Context, userID, subID string, now time.Time) error {
	return s.transition(ctx, userID, subID, now, func(sub *model.Subscription) error {
		if sub.Status != model.SubscriptionPaused {
			return fmt.Errorf("resume from %s: %w", sub.Status, ErrInvalidTransition)
		}
		sub.Status = model.SubscriptionActive
		return nil
	})
}

// CancelSubscription records a cancellation. The record is deactivated on
// the user's behalf so later charges do not resurrect it.
func (s *Service) CancelSubscription(ctx context.Context, userID, subID string, now time.Time) error {
	return s.transition(ctx, userID, subID, now, func(sub *model.Subscription) error {
		if sub.Status == model.SubscriptionCancelled {
			return fmt.Errorf("already cancelled: %w", ErrInvalidTransition)
		}
		sub.Status = model.SubscriptionCancelled
		sub.Active = false
		sub.DeactivationReason = model.DeactivatedUser
		return nil
	})
}

// RecordUsage stores a usage signal for a subscription and refreshes its
// value score as of now.
func (s *Service) RecordUsage(ctx context.Context, userID, subID string, usedAt, now time.Time) error {
	return s.transition(ctx, userID, subID, now, func(sub *model.Subscription) error {
		if sub.LastUsedAt != nil && sub.LastUsedAt.After(usedAt) {
			usedAt = *sub.LastUsedAt
		}
		sub.LastUsedAt = &usedAt
		sub.ValueScore = ValueScore(usedAt, sub.Frequency, now)
		return nil
	})
}

// ListActive returns the user's active bills and subscriptions ordered by
// next due date.
func (s *Service) ListActive(ctx context.Context, userID string) ([]model.Bill, []model.Subscription, error) {
	bills, err := s.store.ListBills(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing bills: %w", err)
	}
	subs, err := s.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing subscriptions: %w", err)
	}

	bills = slices.DeleteFunc(bills, func(b model.Bill) bool { return !b.Active })
	subs = slices.DeleteFunc(subs, func(s model.Subscription) bool { return !s.Active })
	slices.SortFunc(bills, func(a, b model.Bill) int {
		return cmp.Or(a.NextDueDate.Compare(b.NextDueDate), cmp.Compare(a.MerchantKey, b.MerchantKey))
	})
	slices.SortFunc(subs, func(a, b model.Subscription) int {
		return cmp.Or(a.NextDueDate.Compare(b.NextDueDate), cmp.Compare(a.MerchantKey, b.MerchantKey))
	})
	return bills, subs, nil
}
