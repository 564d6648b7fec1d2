package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/leaderboard"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/streak"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/internal/types/ledger"
)

var today = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID, goalID := uuid.New(), uuid.New()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q store.Queries) error {
		require.NoError(t, q.InsertActivity(ctx, &activity.Entry{UserID: userID, GoalID: goalID, Date: today, Minutes: 30}))
		require.NoError(t, q.InsertLedgerEntry(ctx, &ledger.Entry{UserID: userID, GoalID: &goalID, Points: 12, Reason: ledger.ReasonActivityCompletion, ReferenceDate: today}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := s.ActivityExists(ctx, userID, goalID, today)
	require.NoError(t, err)
	assert.False(t, exists)

	total, err := s.SumUserPoints(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestInTxCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID, goalID := uuid.New(), uuid.New()

	err := s.InTx(ctx, func(q store.Queries) error {
		return q.InsertActivity(ctx, &activity.Entry{UserID: userID, GoalID: goalID, Date: today, Minutes: 30})
	})
	require.NoError(t, err)

	minutes, err := s.SumMinutesOnDate(ctx, userID, today)
	require.NoError(t, err)
	assert.Equal(t, 30, minutes)
}

func TestInsertActivityRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID, goalID := uuid.New(), uuid.New()

	require.NoError(t, s.InsertActivity(ctx, &activity.Entry{UserID: userID, GoalID: goalID, Date: today, Minutes: 30}))
	err := s.InsertActivity(ctx, &activity.Entry{UserID: userID, GoalID: goalID, Date: today.Add(3 * time.Hour), Minutes: 40})
	assert.ErrorIs(t, err, apperr.ErrDuplicateActivity)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpsertStreakNeverLowersLongest(t *testing.T) {
	ctx := context.Background()
	s := New()
	goalID := uuid.New()

	require.NoError(t, s.UpsertStreak(ctx, &streak.Streak{GoalID: goalID, CurrentStreak: 9, LongestStreak: 9}))
	require.NoError(t, s.UpsertStreak(ctx, &streak.Streak{GoalID: goalID, CurrentStreak: 1, LongestStreak: 3}))

	got, err := s.GetStreak(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStreak)
	assert.Equal(t, 9, got.LongestStreak)
}

func TestGetStreakNotFound(t *testing.T) {
	_, err := New().GetStreak(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func snapshotRows(key leaderboard.ScopeKey, n int, score float64) []*leaderboard.SnapshotRow {
	rows := make([]*leaderboard.SnapshotRow, n)
	for i := range rows {
		rows[i] = &leaderboard.SnapshotRow{
			ID: uuid.New(), UserID: uuid.New(), PeriodType: key.Period, Category: key.Category,
			PeriodStart: key.Start, PeriodEnd: key.End, Rank: i + 1, Score: score, SnapshotDate: key.End,
		}
	}
	return rows
}

func TestReplaceSnapshotScopeIsAtomicForReaders(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, nil, today)
	require.NoError(t, s.ReplaceSnapshotScope(ctx, key, 1, snapshotRows(key, 50, 1)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	torn := make(chan []*leaderboard.SnapshotRow, 1)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				rows, err := s.ListSnapshot(ctx, key)
				if err != nil || len(rows) == 0 {
					continue
				}
				for _, row := range rows {
					if row.Score != rows[0].Score || len(rows) != 50 {
						select {
						case torn <- rows:
						default:
						}
						break
					}
				}
			}
		}()
	}

	for i := 2; i < 200; i++ {
		require.NoError(t, s.ReplaceSnapshotScope(ctx, key, int64(i), snapshotRows(key, 50, float64(i))))
	}
	close(stop)
	wg.Wait()

	select {
	case rows := <-torn:
		t.Fatalf("reader observed a mixed generation of %d rows", len(rows))
	default:
	}
}

func TestLatestSnapshotPicksNewestWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	coding := "Coding"

	older := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, &coding, today.AddDate(0, 0, -1))
	newer := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, &coding, today)
	overall := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, nil, today)

	require.NoError(t, s.ReplaceSnapshotScope(ctx, older, 1, snapshotRows(older, 3, 1)))
	require.NoError(t, s.ReplaceSnapshotScope(ctx, newer, 2, snapshotRows(newer, 2, 2)))
	require.NoError(t, s.ReplaceSnapshotScope(ctx, overall, 3, snapshotRows(overall, 5, 3)))

	rows, err := s.LatestSnapshot(ctx, leaderboard.PeriodWeekly, &coding)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2.0, rows[0].Score)

	pruned, err := s.PruneSnapshots(ctx, today)
	require.NoError(t, err)
	assert.EqualValues(t, 3, pruned)
}

func TestReplaceSnapshotScopeRefusesOlderGeneration(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := leaderboard.NewScopeKey(leaderboard.PeriodMonthly, nil, today)

	require.NoError(t, s.ReplaceSnapshotScope(ctx, key, 20, snapshotRows(key, 2, 20)))
	err := s.ReplaceSnapshotScope(ctx, key, 10, snapshotRows(key, 4, 10))
	assert.ErrorIs(t, err, store.ErrStaleGeneration)

	rows, err := s.ListSnapshot(ctx, key)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 20.0, rows[0].Score)

	require.NoError(t, s.ReplaceSnapshotScope(ctx, key, 20, snapshotRows(key, 3, 21)), "same generation may rewrite")
	require.NoError(t, s.ReplaceSnapshotScope(ctx, key, 30, nil))
	err = s.ReplaceSnapshotScope(ctx, key, 25, snapshotRows(key, 1, 25))
	assert.ErrorIs(t, err, store.ErrStaleGeneration, "an emptied scope still remembers its generation")
}

func TestInTxHookAndDayLocks(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := uuid.New()

	ran := false
	s.BeforeNextTx(func() { ran = true })
	err := s.InTx(ctx, func(q store.Queries) error {
		return q.LockUserDay(ctx, userID, today.Add(5*time.Hour))
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{userID.String() + ":2026-10-15"}, s.DayLocks())

	ran = false
	require.NoError(t, s.InTx(ctx, func(store.Queries) error { return nil }))
	assert.False(t, ran, "the hook runs once")
}

func TestRefreshOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := today.Add(9 * time.Hour)
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.EnqueueRefresh(ctx, nil, today))

	tasks, err := s.ClaimRefreshTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].Attempts)

	again, err := s.ClaimRefreshTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed tasks stay leased")

	require.NoError(t, s.FailRefreshTask(ctx, tasks[0].ID, errors.New("db down")))
	retry, err := s.ClaimRefreshTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, 2, retry[0].Attempts)
	require.NotNil(t, retry[0].LastError)
	assert.Equal(t, "db down", *retry[0].LastError)

	require.NoError(t, s.CompleteRefreshTask(ctx, retry[0].ID))
	done, err := s.ClaimRefreshTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestRefreshTaskGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnqueueRefresh(ctx, nil, today))

	for i := 0; i < store.MaxRefreshAttempts; i++ {
		tasks, err := s.ClaimRefreshTasks(ctx, 1)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		require.NoError(t, s.FailRefreshTask(ctx, tasks[0].ID, errors.New("fail")))
	}

	tasks, err := s.ClaimRefreshTasks(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFailNextInjectsOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := leaderboard.NewScopeKey(leaderboard.PeriodMonthly, nil, today)
	boom := errors.New("boom")
	s.FailNext("ListSnapshot", boom)

	_, err := s.ListSnapshot(ctx, key)
	assert.ErrorIs(t, err, boom)
	_, err = s.ListSnapshot(ctx, key)
	assert.NoError(t, err)
}
