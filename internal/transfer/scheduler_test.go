package transfer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/pennywise/internal/activity"
	"github.com/cleared-dev/pennywise/internal/funds"
	"github.com/cleared-dev/pennywise/internal/funds/fundstest"
	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/store"
	"github.com/cleared-dev/pennywise/internal/userlock"
)

var now = time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)

var errBank = errors.New("bank unavailable")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memSink struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (m *memSink) Record(entries ...activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memSink) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type harness struct {
	st    *store.Store
	flaky *fundstest.Flaky
	sink  *memSink
	sched *Scheduler
	seq   int
}

func newHarness(t *testing.T, minimum string, script ...error) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "transfer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for _, gid := range []string{"g1", "g2"} {
		require.NoError(t, st.CreateGoal(ctx, model.Goal{
			ID: gid, UserID: "u1", Name: "Goal " + gid, Target: dec("1000"), Active: true,
			CreatedAt: now, UpdatedAt: now,
		}))
	}
	require.NoError(t, st.SaveRoundUpConfig(ctx, model.RoundUpConfig{
		UserID: "u1", Enabled: true, Rule: model.RoundNearest1, Multiplier: model.ClampMultiplier(1),
		GoalID: "g1", Cadence: model.CadenceWeekly, MinimumTransfer: dec(minimum), UpdatedAt: now,
	}))

	h := &harness{st: st, sink: &memSink{}}
	h.flaky = fundstest.NewFlaky(funds.NewSandbox(st, zerolog.Nop()), script...)
	h.sched = NewScheduler(st, h.flaky, userlock.New(), h.sink, DefaultOptions(), zerolog.Nop())
	return h
}

func (h *harness) roundUp(t *testing.T, goalID, amount string) string {
	t.Helper()
	h.seq++
	at := now.Add(-time.Duration(h.seq) * time.Hour)
	r := model.RoundUpTransaction{
		ID: fmt.Sprintf("r%02d", h.seq), UserID: "u1", SourceTransactionID: fmt.Sprintf("t%02d", h.seq),
		OriginalAmount: dec("-4.30"), RoundUp: dec(amount), Multiplied: dec(amount),
		Status: model.RoundUpPending, GoalID: goalID, OccurredAt: at, CreatedAt: at,
	}
	require.NoError(t, h.st.CreateRoundUpTransaction(context.Background(), r))
	return r.ID
}

func (h *harness) goal(t *testing.T, goalID string) (model.Goal, []model.GoalContribution) {
	t.Helper()
	g, contribs, err := h.st.GoalSnapshot(context.Background(), goalID)
	require.NoError(t, err)
	return g, contribs
}

func TestRunCycle_CompletesBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5")
	ids := []string{h.roundUp(t, "g1", "2.50"), h.roundUp(t, "g1", "1.75"), h.roundUp(t, "g1", "1.75")}

	report, err := h.sched.RunCycle(ctx, "u1", now, false)
	require.NoError(t, err)
	assert.True(t, report.Ran)
	require.Len(t, report.Batches, 1)

	res := report.Batches[0]
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, id.BatchKey(ids), res.BatchID)
	assert.True(t, res.Amount.Equal(dec("6.00")))
	assert.Equal(t, 3, res.RoundUps)
	assert.NotEmpty(t, res.TransferID)
	assert.False(t, res.Replayed)
	assert.Equal(t, 1, report.Completed())

	g, contribs := h.goal(t, "g1")
	assert.True(t, g.Current.Equal(dec("6.00")))
	require.Len(t, contribs, 1)
	assert.Equal(t, model.SourceRoundUp, contribs[0].Source)
	assert.Equal(t, res.BatchID, contribs[0].Reference)

	transferred, err := h.st.ListRoundUps(ctx, "u1", model.RoundUpTransferred)
	require.NoError(t, err)
	assert.Len(t, transferred, 3)

	n, err := h.st.CountFundTransfers(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"batch_completed"}, h.sink.actions())

	req := h.flaky.Calls()[0]
	assert.Equal(t, res.BatchID, req.IdempotencyKey)
	assert.Equal(t, "g1", req.GoalID)
}

func TestRunCycle_DefersBelowMinimum(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5")
	h.roundUp(t, "g1", "4.99")

	report, err := h.sched.RunCycle(ctx, "u1", now, false)
	require.NoError(t, err)
	assert.Empty(t, report.Batches)
	require.Len(t, report.Deferred, 1)
	assert.Equal(t, "g1", report.Deferred[0].GoalID)
	assert.True(t, report.Deferred[0].Amount.Equal(dec("4.99")))
	assert.Empty(t, h.flaky.Calls())

	pending, err := h.st.UnbatchedPending(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunCycle_GroupsByCapturedGoal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5")
	h.roundUp(t, "g1", "3.00")
	h.roundUp(t, "g2", "2.00")
	h.roundUp(t, "g1", "3.00")

	report, err := h.sched.RunCycle(ctx, "u1", now, false)
	require.NoError(t, err)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, "g1", report.Batches[0].GoalID)
	assert.True(t, report.Batches[0].Amount.Equal(dec("6.00")))
	require.Len(t, report.Deferred, 1)
	assert.Equal(t, "g2", report.Deferred[0].GoalID)

	g2, _ := h.goal(t, "g2")
	assert.True(t, g2.Current.IsZero())
}

func TestRunCycle_CadenceGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "0")

	report, err := h.sched.RunCycle(ctx, "u1", now, false)
	require.NoError(t, err)
	assert.True(t, report.Ran, "first cycle always runs")

	h.roundUp(t, "g1", "1.00")
	report, err = h.sched.RunCycle(ctx, "u1", now.AddDate(0, 0, 1), false)
	require.NoError(t, err)
	assert.False(t, report.Ran)
	assert.Equal(t, now.AddDate(0, 0, 7), report.NextRun)
	assert.Empty(t, h.flaky.Calls())

	report, err = h.sched.RunCycle(ctx, "u1", now.AddDate(0, 0, 1), true)
	require.NoError(t, err)
	assert.True(t, report.Ran)
	assert.Equal(t, 1, report.Completed())

	h.roundUp(t, "g1", "1.00")
	report, err = h.sched.RunCycle(ctx, "u1", now.AddDate(0, 0, 8), false)
	require.NoError(t, err)
	assert.True(t, report.Ran)
	assert.Equal(t, 1, report.Completed())
}

func TestRunCycle_NoConfig(t *testing.T) {
	h := newHarness(t, "5")
	report, err := h.sched.RunCycle(context.Background(), "nobody", now, true)
	require.NoError(t, err)
	assert.False(t, report.Ran)
}

func TestRunCycle_RetryThenFail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5", errBank, errBank, errBank)
	h.roundUp(t, "g1", "3.00")
	h.roundUp(t, "g1", "3.00")

	var batchID string
	for attempt := 1; attempt <= 2; attempt++ {
		report, err := h.sched.RunCycle(ctx, "u1", now.AddDate(0, 0, attempt), true)
		require.NoError(t, err)
		require.Len(t, report.Batches, 1)
		assert.Equal(t, OutcomeRetrying, report.Batches[0].Outcome)
		assert.Equal(t, attempt, report.Batches[0].Attempts)
		if batchID == "" {
			batchID = report.Batches[0].BatchID
		}
		assert.Equal(t, batchID, report.Batches[0].BatchID, "retry keeps the same batch")
	}

	report, err := h.sched.RunCycle(ctx, "u1", now.AddDate(0, 0, 3), true)
	require.NoError(t, err)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, OutcomeFailed, report.Batches[0].Outcome)
	assert.Equal(t, 3, report.Batches[0].Attempts)
	assert.Contains(t, report.Batches[0].Error, "bank unavailable")

	for _, req := range h.flaky.Calls() {
		assert.Equal(t, batchID, req.IdempotencyKey)
	}
	assert.Len(t, h.flaky.Calls(), 3)

	b, err := h.st.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchFailed, b.Status)

	failed, err := h.st.ListRoundUps(ctx, "u1", model.RoundUpFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	g, contribs := h.goal(t, "g1")
	assert.True(t, g.Current.IsZero())
	assert.Empty(t, contribs)
	assert.Equal(t, []string{"batch_failed"}, h.sink.actions())

	// A failed batch is never resubmitted.
	report, err = h.sched.RunCycle(ctx, "u1", now.AddDate(0, 0, 4), true)
	require.NoError(t, err)
	assert.Empty(t, report.Batches)
	assert.Len(t, h.flaky.Calls(), 3)
}

func TestRunCycle_RetrySucceeds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5", errBank)
	h.roundUp(t, "g1", "5.00")

	report, err := h.sched.RunCycle(ctx, "u1", now, true)
	require.NoError(t, err)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, OutcomeRetrying, report.Batches[0].Outcome)

	report, err = h.sched.RunCycle(ctx, "u1", now.Add(time.Hour), true)
	require.NoError(t, err)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, OutcomeCompleted, report.Batches[0].Outcome)
	assert.Equal(t, 1, report.Batches[0].Attempts)

	g, _ := h.goal(t, "g1")
	assert.True(t, g.Current.Equal(dec("5.00")))
}

func TestRunCycle_CompletionFaultReplays(t *testing.T) {
	for _, step := range []string{"complete.marked", "contribution.inserted", "complete.credited", "complete.closed"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, "5")
			h.roundUp(t, "g1", "4.00")
			h.roundUp(t, "g1", "4.00")

			h.st.SetFaultHook(func(got string) error {
				if got == step {
					return errors.New("crash")
				}
				return nil
			})
			report, err := h.sched.RunCycle(ctx, "u1", now, true)
			require.NoError(t, err)
			require.Len(t, report.Batches, 1)
			first := report.Batches[0]
			assert.Equal(t, OutcomeUnsettled, first.Outcome)

			// Money moved but nothing was applied.
			g, contribs := h.goal(t, "g1")
			assert.True(t, g.Current.IsZero())
			assert.Empty(t, contribs)
			pending, err := h.st.ListRoundUps(ctx, "u1", model.RoundUpPending)
			require.NoError(t, err)
			assert.Len(t, pending, 2)

			h.st.SetFaultHook(nil)
			report, err = h.sched.RunCycle(ctx, "u1", now.Add(time.Hour), true)
			require.NoError(t, err)
			require.Len(t, report.Batches, 1)
			second := report.Batches[0]
			assert.Equal(t, OutcomeCompleted, second.Outcome)
			assert.True(t, second.Replayed)
			assert.Equal(t, first.TransferID, second.TransferID)

			g, contribs = h.goal(t, "g1")
			assert.True(t, g.Current.Equal(dec("8.00")))
			assert.Len(t, contribs, 1)

			n, err := h.st.CountFundTransfers(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, n, "replay moves no money")
		})
	}
}

func TestRunCycle_MissingGoalFailsBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5")
	h.roundUp(t, "gone", "6.00")

	report, err := h.sched.RunCycle(ctx, "u1", now, true)
	require.NoError(t, err)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, OutcomeFailed, report.Batches[0].Outcome)
	assert.Equal(t, "goal not found", report.Batches[0].Error)
	assert.Empty(t, h.flaky.Calls())
}

func TestRunCycle_ArchivedGoalFailsBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5")
	h.roundUp(t, "g2", "6.00")
	require.NoError(t, h.st.SetGoalActive(ctx, "g2", false, now))

	report, err := h.sched.RunCycle(ctx, "u1", now, true)
	require.NoError(t, err)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, OutcomeFailed, report.Batches[0].Outcome)
	assert.Empty(t, h.flaky.Calls())
}

func TestRunCycle_InvalidRequestFailsImmediately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5", fmt.Errorf("%w: rejected", funds.ErrInvalidRequest))
	h.roundUp(t, "g1", "6.00")

	report, err := h.sched.RunCycle(ctx, "u1", now, true)
	require.NoError(t, err)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, OutcomeFailed, report.Batches[0].Outcome)
	assert.Len(t, h.flaky.Calls(), 1)
}

func TestRunCycle_ConcurrentCyclesMoveMoneyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "5")
	h.roundUp(t, "g1", "3.00")
	h.roundUp(t, "g1", "3.00")

	var wg sync.WaitGroup
	reports := make([]CycleReport, 4)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := h.sched.RunCycle(ctx, "u1", now, true)
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	wg.Wait()

	completed := 0
	for _, r := range reports {
		completed += r.Completed()
	}
	assert.Equal(t, 1, completed)

	g, contribs := h.goal(t, "g1")
	assert.True(t, g.Current.Equal(dec("6.00")))
	assert.Len(t, contribs, 1)
}

func TestRunCycle_ContextCancelled(t *testing.T) {
	h := newHarness(t, "5")
	h.roundUp(t, "g1", "6.00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.sched.RunCycle(ctx, "u1", now, true)
	require.Error(t, err)
}
