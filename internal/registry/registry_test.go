package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/pennywise/internal/category"
	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/store"
	"github.com/cleared-dev/pennywise/internal/userlock"
)

var day0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s, category.NewService(category.DefaultMap()), userlock.New(), DefaultOptions(), zerolog.Nop()), s
}

// candidate builds a monthly series of n occurrences ending at last.
func candidate(key, amount string, n int, last time.Time, conf float64) model.RecurringSeries {
	occ := make([]model.Transaction, n)
	for i := range n {
		occ[i] = model.Transaction{
			ID:        fmt.Sprintf("%s-%d", key, i),
			UserID:    "u1",
			Timestamp: last.AddDate(0, 0, -30*(n-1-i)),
			Amount:    dec(amount).Neg(),
			Merchant:  key,
		}
	}
	return model.RecurringSeries{
		MerchantKey: key,
		Merchant:    key,
		Occurrences: occ,
		Frequency:   model.Monthly,
		Confidence:  conf,
	}
}

func TestMisses(t *testing.T) {
	o := DefaultOptions()
	last := day0
	grace := 7*24*time.Hour + 12*time.Hour // 25% of 30 days

	tests := []struct {
		name    string
		now     time.Time
		misses  int
		nextDue time.Time
	}{
		{"before due", last.AddDate(0, 0, 10), 0, last.AddDate(0, 0, 30)},
		{"inside grace", last.AddDate(0, 0, 30).Add(grace), 0, last.AddDate(0, 0, 30)},
		{"one miss", last.AddDate(0, 0, 30).Add(grace + time.Hour), 1, last.AddDate(0, 0, 60)},
		{"two misses", last.AddDate(0, 0, 70), 2, last.AddDate(0, 0, 90)},
		{"capped", last.AddDate(0, 0, 400), 3, last.AddDate(0, 0, 120)},
	}
	for _, tt := range tests {
		n, due := o.Misses(last, model.Monthly, tt.now)
		assert.Equal(t, tt.misses, n, tt.name)
		assert.True(t, due.Equal(tt.nextDue), "%s: due %s", tt.name, due)
	}
}

func TestValueScore(t *testing.T) {
	used := day0
	assert.Equal(t, 1.0, ValueScore(used, model.Monthly, used.AddDate(0, 0, 20)))
	assert.Equal(t, 0.5, ValueScore(used, model.Monthly, used.AddDate(0, 0, 60)))
	assert.Equal(t, 0.0, ValueScore(used, model.Monthly, used.AddDate(0, 0, 120)))
}

func TestReconcile_CreatesByCategory(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	now := day0.AddDate(0, 0, 1)

	rep, err := svc.Reconcile(ctx, "u1", []model.RecurringSeries{
		candidate("netflix", "15.49", 6, day0, 1.0),
		candidate("comcast", "89.99", 4, day0, 0.9),
		candidate("unknown gym", "30.00", 4, day0, 0.9),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Created)

	subs, err := s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "netflix", subs[0].MerchantKey)
	assert.Equal(t, model.DifficultyEasy, subs[0].CancellationDifficulty)

	bills, err := s.ListBills(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, "internet", bills[0].Category)
	assert.Equal(t, "uncategorized", bills[1].Category)
}

func TestReconcile_MaterialChanges(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	_, err := svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("netflix", "15.49", 4, day0, 0.9)}, day0)
	require.NoError(t, err)

	// Drift inside tolerance keeps the stored amount.
	next := day0.AddDate(0, 0, 30)
	rep, err := svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("netflix", "15.60", 5, next, 0.95)}, next)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	subs, err := s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, subs[0].Amount.Equal(dec("15.49")))
	assert.Equal(t, model.SubscriptionActive, subs[0].Status)

	// A real price rise replaces the amount and flags the subscription.
	later := next.AddDate(0, 0, 30)
	_, err = svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("netflix", "17.99", 6, later, 1.0)}, later)
	require.NoError(t, err)
	subs, err = s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Amount.Equal(dec("17.99")))
	assert.Equal(t, model.SubscriptionPriceIncrease, subs[0].Status)
	assert.True(t, subs[0].UpdatedAt.Equal(later))
}

func TestReconcile_DecayAndDeactivate(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	_, err := svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("comcast", "89.99", 6, day0, 1.0)}, day0)
	require.NoError(t, err)

	rep, err := svc.Reconcile(ctx, "u1", nil, day0.AddDate(0, 0, 40))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Decayed)
	bills, err := s.ListBills(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, bills[0].Confidence)
	assert.Equal(t, 1, bills[0].MissedCount)
	assert.True(t, bills[0].NextDueDate.Equal(day0.AddDate(0, 0, 60)))

	// Same now again: nothing moves.
	rep, err = svc.Reconcile(ctx, "u1", nil, day0.AddDate(0, 0, 40))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Unchanged)

	rep, err = svc.Reconcile(ctx, "u1", nil, day0.AddDate(0, 0, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deactivated)
	bills, err = s.ListBills(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, bills[0].Active)
	assert.Equal(t, model.DeactivatedMissed, bills[0].DeactivationReason)
	assert.Equal(t, 0.125, bills[0].Confidence)

	// The stale series does not come back...
	rep, err = svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("comcast", "89.99", 6, day0, 1.0)}, day0.AddDate(0, 0, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Suppressed)

	// ...but a resumed one does, as a new record.
	resumed := day0.AddDate(0, 0, 120)
	rep, err = svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("comcast", "89.99", 3, resumed, 0.8)}, resumed)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	bills, err = s.ListBills(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, bills, 2)
}

func TestReconcile_UserDeactivationSuppresses(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	rep, err := svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("geico", "120.00", 4, day0, 0.9)}, day0)
	require.NoError(t, err)
	require.Len(t, rep.Changes, 1)
	recordID := rep.Changes[0].RecordID

	require.NoError(t, svc.Deactivate(ctx, "u1", recordID, day0))

	later := day0.AddDate(0, 0, 30)
	rep, err = svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("geico", "120.00", 5, later, 0.95)}, later)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Suppressed)
	assert.Zero(t, rep.Created)

	bills, subs, err := svc.ListActive(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, bills)
	assert.Empty(t, subs)
}

func TestReconcile_StaleCandidateNotCreated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	rep, err := svc.Reconcile(ctx, "u1", []model.RecurringSeries{candidate("hulu", "7.99", 5, day0, 0.9)}, day0.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Suppressed)
}

func TestSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	rep, err := svc.Reconcile(ctx, "u1", []model.RecurringSeries{
		candidate("spotify", "10.99", 4, day0, 0.9),
		candidate("verizon", "70.00", 4, day0, 0.9),
	}, day0)
	require.NoError(t, err)
	ids := map[string]string{}
	for _, c := range rep.Changes {
		ids[c.MerchantKey] = c.RecordID
	}
	sub := ids["spotify"]

	require.NoError(t, svc.PauseSubscription(ctx, "u1", sub, day0))
	assert.ErrorIs(t, svc.PauseSubscription(ctx, "u1", sub, day0), ErrInvalidTransition)
	require.NoError(t, svc.ResumeSubscription(ctx, "u1", sub, day0))
	assert.ErrorIs(t, svc.ResumeSubscription(ctx, "u1", sub, day0), ErrInvalidTransition)

	assert.ErrorIs(t, svc.PauseSubscription(ctx, "u1", ids["verizon"], day0), ErrInvalidTransition, "bills have no status")
	assert.ErrorIs(t, svc.PauseSubscription(ctx, "u2", sub, day0), ErrNotFound, "other users' records are invisible")
	assert.ErrorIs(t, svc.Deactivate(ctx, "u1", "missing", day0), ErrNotFound)

	require.NoError(t, svc.RecordUsage(ctx, "u1", sub, day0.AddDate(0, 0, -45), day0))
	got, err := s.GetSubscription(ctx, sub)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.Equal(t, 0.75, got.ValueScore)

	require.NoError(t, svc.CancelSubscription(ctx, "u1", sub, day0))
	got, err = s.GetSubscription(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCancelled, got.Status)
	assert.False(t, got.Active)
	assert.Equal(t, model.DeactivatedUser, got.DeactivationReason)
	assert.ErrorIs(t, svc.CancelSubscription(ctx, "u1", sub, day0), ErrInvalidTransition)
}
