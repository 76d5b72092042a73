package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	txns := []model.Transaction{
		{ID: "t2", UserID: "u1", Timestamp: date(2026, 2, 1), Amount: dec("-15.49"), Merchant: "NETFLIX.COM"},
		{ID: "t1", UserID: "u1", Timestamp: date(2026, 1, 1), Amount: dec("-15.49"), Merchant: "NETFLIX.COM", MCC: "4899"},
		{ID: "t3", UserID: "u2", Timestamp: date(2026, 1, 5), Amount: dec("100"), Merchant: "PAYROLL"},
	}
	n, err := s.InsertTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.InsertTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-insert is a no-op")

	got, err := s.ListTransactions(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "4899", got[0].MCC)
	assert.True(t, got[0].Amount.Equal(dec("-15.49")))
	assert.True(t, got[0].Timestamp.Equal(date(2026, 1, 1)))

	got, err = s.ListTransactions(ctx, "u1", date(2026, 1, 15))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].ID)

	one, err := s.GetTransaction(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, "u2", one.UserID)
	_, err = s.GetTransaction(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)
}

func testBill(idStr, key string, active bool) model.Bill {
	now := date(2026, 3, 1)
	return model.Bill{Recurring: model.Recurring{
		ID: idStr, UserID: "u1", Merchant: key, MerchantKey: key,
		Amount: dec("89.99"), Frequency: model.Monthly,
		NextDueDate: date(2026, 3, 31), LastSeen: now, Confidence: 0.9,
		Active: active, Category: "internet", CreatedAt: now, UpdatedAt: now,
	}}
}

func TestUpsertBill(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	b := testBill("b1", "comcast", true)
	require.NoError(t, s.UpsertBill(ctx, b))

	b.Confidence = 0.5
	b.MissedCount = 1
	require.NoError(t, s.UpsertBill(ctx, b))

	bills, err := s.ListBills(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, 0.5, bills[0].Confidence)
	assert.Equal(t, 1, bills[0].MissedCount)
	assert.Equal(t, model.Monthly, bills[0].Frequency)
	assert.True(t, bills[0].Amount.Equal(dec("89.99")))

	got, err := s.GetBill(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "comcast", got.MerchantKey)

	_, err = s.GetSubscription(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound, "kind must match")
}

func TestOneActivePerMerchant(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.UpsertBill(ctx, testBill("b1", "comcast", true)))

	err := s.UpsertBill(ctx, testBill("b2", "comcast", true))
	assert.ErrorIs(t, err, ErrConflict)

	// The index covers subscriptions too.
	sub := model.Subscription{Recurring: testBill("s1", "comcast", true).Recurring, Status: model.SubscriptionActive}
	assert.ErrorIs(t, s.UpsertSubscription(ctx, sub), ErrConflict)

	// Inactive rows are history and do not collide.
	require.NoError(t, s.UpsertBill(ctx, testBill("b3", "comcast", false)))
}

func TestUpsertSubscription(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	used := date(2026, 2, 20)
	sub := model.Subscription{
		Recurring:              testBill("s1", "netflix", true).Recurring,
		Status:                 model.SubscriptionPriceIncrease,
		CancellationDifficulty: model.DifficultyModerate,
		LastUsedAt:             &used,
		ValueScore:             0.75,
	}
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	subs, err := s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, model.SubscriptionPriceIncrease, subs[0].Status)
	assert.Equal(t, model.DifficultyModerate, subs[0].CancellationDifficulty)
	require.NotNil(t, subs[0].LastUsedAt)
	assert.True(t, subs[0].LastUsedAt.Equal(used))
	assert.Equal(t, 0.75, subs[0].ValueScore)

	bills, err := s.ListBills(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestRoundUpConfig(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.GetRoundUpConfig(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	daily := dec("5")
	cfg := model.RoundUpConfig{
		UserID: "u1", Enabled: true, Rule: model.RoundNearest2, Multiplier: model.ClampMultiplier(3),
		DailyCap: &daily, GoalID: "g1", Cadence: model.CadenceWeekly,
		MinimumTransfer: dec("5.00"), EnabledAt: date(2025, 12, 31), UpdatedAt: date(2026, 1, 1),
	}
	require.NoError(t, s.SaveRoundUpConfig(ctx, cfg))

	got, err := s.GetRoundUpConfig(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.EnabledAt.Equal(date(2025, 12, 31)))
	assert.Equal(t, model.RoundNearest2, got.Rule)
	assert.Equal(t, 3, got.Multiplier.Int())
	require.NotNil(t, got.DailyCap)
	assert.True(t, got.DailyCap.Equal(daily))
	assert.Nil(t, got.WeeklyCap)

	cfg.Enabled = false
	cfg.EnabledAt = time.Time{}
	require.NoError(t, s.SaveRoundUpConfig(ctx, cfg))
	got, err = s.GetRoundUpConfig(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.True(t, got.EnabledAt.IsZero())
}

func TestRoundUpEvaluations(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.RoundUpEvaluation(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RecordRoundUpEvaluation(ctx, "u1", "t1", "cap-reached", date(2026, 3, 4)))
	require.NoError(t, s.RecordRoundUpEvaluation(ctx, "u1", "t1", "disabled", date(2026, 3, 5)))

	outcome, err := s.RoundUpEvaluation(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cap-reached", outcome, "first outcome is kept")
}

func pendingRoundUp(rid, source string, amount string, at time.Time) model.RoundUpTransaction {
	return model.RoundUpTransaction{
		ID: rid, UserID: "u1", SourceTransactionID: source,
		OriginalAmount: dec("4.30"), RoundUp: dec(amount), Multiplied: dec(amount),
		Status: model.RoundUpPending, GoalID: "g1", OccurredAt: at, CreatedAt: at,
	}
}

func TestRoundUps(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	day := date(2026, 3, 4)
	require.NoError(t, s.CreateRoundUpTransaction(ctx, pendingRoundUp("r1", "t1", "0.70", day)))
	require.NoError(t, s.CreateRoundUpTransaction(ctx, pendingRoundUp("r2", "t2", "1.30", day.Add(time.Hour))))
	require.NoError(t, s.CreateRoundUpTransaction(ctx, pendingRoundUp("r3", "t3", "2.00", day.AddDate(0, 0, 1))))

	err := s.CreateRoundUpTransaction(ctx, pendingRoundUp("r4", "t1", "0.70", day))
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.RoundUpBySource(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "r2", got.ID)
	_, err = s.RoundUpBySource(ctx, "t9")
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	sum, err := s.SumCapped(ctx, "u1", start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("2.00")), "got %s", sum)

	pending, err := s.UnbatchedPending(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func seedGoal(t *testing.T, s *Store, goalID string) {
	t.Helper()
	now := date(2026, 1, 1)
	require.NoError(t, s.CreateGoal(context.Background(), model.Goal{
		ID: goalID, UserID: "u1", Name: "Emergency fund", Target: dec("1000"),
		Current: dec("999"), Active: true, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestGoals(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	seedGoal(t, s, "g1")

	g, err := s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Current.IsZero(), "goals start empty")
	assert.Nil(t, g.Deadline)

	require.NoError(t, s.AppendContribution(ctx, model.GoalContribution{
		ID: "c1", GoalID: "g1", Amount: dec("25.50"), Source: model.SourceManual, Timestamp: date(2026, 1, 2),
	}))
	require.NoError(t, s.AppendContribution(ctx, model.GoalContribution{
		ID: "c2", GoalID: "g1", Amount: dec("10"), Source: model.SourceManual, Timestamp: date(2026, 1, 3),
	}))

	g, contribs, err := s.GoalSnapshot(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Current.Equal(dec("35.50")))
	require.Len(t, contribs, 2)
	assert.Equal(t, "c1", contribs[0].ID)

	err = s.AppendContribution(ctx, model.GoalContribution{
		ID: "c3", GoalID: "missing", Amount: dec("1"), Source: model.SourceManual, Timestamp: date(2026, 1, 3),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	goals, err := s.ListGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, goals, 1)

	require.NoError(t, s.SetGoalActive(ctx, "g1", false, date(2026, 1, 4)))
	g, err = s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, g.Active)
}

func TestAppendContribution_FaultRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	seedGoal(t, s, "g1")

	s.SetFaultHook(func(step string) error {
		if step == "contribution.inserted" {
			return errors.New("disk full")
		}
		return nil
	})
	err := s.AppendContribution(ctx, model.GoalContribution{
		ID: "c1", GoalID: "g1", Amount: dec("5"), Source: model.SourceManual, Timestamp: date(2026, 1, 2),
	})
	require.Error(t, err)

	g, contribs, err := s.GoalSnapshot(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Current.IsZero())
	assert.Empty(t, contribs)
}

func seedBatch(t *testing.T, s *Store) model.TransferBatch {
	t.Helper()
	ctx := context.Background()
	seedGoal(t, s, "g1")
	day := date(2026, 3, 4)
	require.NoError(t, s.CreateRoundUpTransaction(ctx, pendingRoundUp("r1", "t1", "0.70", day)))
	require.NoError(t, s.CreateRoundUpTransaction(ctx, pendingRoundUp("r2", "t2", "4.30", day)))

	b := model.TransferBatch{
		ID: id.BatchKey([]string{"r1", "r2"}), UserID: "u1", GoalID: "g1", Amount: dec("5.00"),
		RoundUpIDs: []string{"r1", "r2"}, CreatedAt: day, UpdatedAt: day,
	}
	require.NoError(t, s.CreateBatch(ctx, b))
	return b
}

func TestCreateBatch_ClaimsMembers(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	b := seedBatch(t, s)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchOpen, got.Status)
	assert.Equal(t, []string{"r1", "r2"}, got.RoundUpIDs)

	pending, err := s.UnbatchedPending(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A second batch may not claim r1 again; nothing of it is written.
	other := model.TransferBatch{
		ID: id.BatchKey([]string{"r1"}), UserID: "u1", GoalID: "g1", Amount: dec("0.70"),
		RoundUpIDs: []string{"r1"}, CreatedAt: b.CreatedAt, UpdatedAt: b.CreatedAt,
	}
	assert.ErrorIs(t, s.CreateBatch(ctx, other), ErrConflict)
	_, err = s.GetBatch(ctx, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	open, err := s.OpenBatches(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, b.ID, open[0].ID)
}

func TestCompleteBatch(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	b := seedBatch(t, s)
	at := date(2026, 3, 5)

	require.NoError(t, s.CompleteBatch(ctx, b.ID, "xfer_1", at))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchTransferred, got.Status)
	assert.Equal(t, "xfer_1", got.TransferID)

	rus, err := s.ListRoundUps(ctx, "u1", model.RoundUpTransferred)
	require.NoError(t, err)
	require.Len(t, rus, 2)
	require.NotNil(t, rus[0].TransferredAt)
	assert.True(t, rus[0].TransferredAt.Equal(at))

	g, contribs, err := s.GoalSnapshot(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Current.Equal(dec("5.00")))
	require.Len(t, contribs, 1)
	assert.Equal(t, model.SourceRoundUp, contribs[0].Source)
	assert.Equal(t, b.ID, contribs[0].Reference)

	// Completing twice is rejected and credits nothing.
	assert.ErrorIs(t, s.CompleteBatch(ctx, b.ID, "xfer_1", at), ErrConflict)
	g, err = s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Current.Equal(dec("5.00")))
}

func TestCompleteBatch_FaultAtEveryStep(t *testing.T) {
	for _, step := range []string{"complete.marked", "contribution.inserted", "complete.credited", "complete.closed"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			s := openTest(t)
			b := seedBatch(t, s)

			s.SetFaultHook(func(got string) error {
				if got == step {
					return errors.New("crash")
				}
				return nil
			})
			require.Error(t, s.CompleteBatch(ctx, b.ID, "xfer_1", date(2026, 3, 5)))

			got, err := s.GetBatch(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, model.BatchOpen, got.Status)

			pending, err := s.ListRoundUps(ctx, "u1", model.RoundUpPending)
			require.NoError(t, err)
			assert.Len(t, pending, 2)

			g, contribs, err := s.GoalSnapshot(ctx, "g1")
			require.NoError(t, err)
			assert.True(t, g.Current.IsZero())
			assert.Empty(t, contribs)

			// After the fault clears the same batch completes normally.
			s.SetFaultHook(nil)
			require.NoError(t, s.CompleteBatch(ctx, b.ID, "xfer_1", date(2026, 3, 5)))
		})
	}
}

func TestBatchFailure(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	b := seedBatch(t, s)
	at := date(2026, 3, 5)

	n, err := s.RecordBatchFailure(ctx, b.ID, "timeout", at)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.RecordBatchFailure(ctx, b.ID, "timeout", at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.FailBatch(ctx, b.ID, "timeout", at))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchFailed, got.Status)
	assert.Equal(t, "timeout", got.LastError)

	failed, err := s.ListRoundUps(ctx, "u1", model.RoundUpFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	_, err = s.RecordBatchFailure(ctx, b.ID, "again", at)
	assert.ErrorIs(t, err, ErrNotFound, "failed batches are closed")
}

func TestTransferState(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, ok, err := s.TransferState(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetTransferState(ctx, "u1", date(2026, 3, 1)))
	require.NoError(t, s.SetTransferState(ctx, "u1", date(2026, 3, 2)))

	last, ok, err := s.TransferState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(date(2026, 3, 2)))
}

func TestRecordFundTransfer_Replay(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	req := model.TransferRequest{UserID: "u1", Amount: dec("5"), GoalID: "g1", IdempotencyKey: "batch_x"}
	first, err := s.RecordFundTransfer(ctx, req, "xfer_1", date(2026, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, "xfer_1", first.TransferID)
	assert.False(t, first.Replayed)

	again, err := s.RecordFundTransfer(ctx, req, "xfer_2", date(2026, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, "xfer_1", again.TransferID)
	assert.True(t, again.Replayed)

	req.Amount = dec("6")
	_, err = s.RecordFundTransfer(ctx, req, "xfer_3", date(2026, 3, 2))
	assert.ErrorIs(t, err, ErrConflict)

	n, err := s.CountFundTransfers(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
