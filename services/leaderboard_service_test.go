package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/leaderboard"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/user"
)

type boardFixture struct {
	*harness
	bob      *user.User
	bobGoal  *goal.Goal
	carol    *user.User
	daveGoal *goal.Goal
}

// newBoardFixture ranks alice (2 days, 80 points, streak 2) above bob
// (1 day, 30 points, streak 1). carol opted out of leaderboards and dave only
// has a Health goal.
func newBoardFixture(t *testing.T) *boardFixture {
	h := newHarness(t)
	f := &boardFixture{harness: h}

	f.bob = h.addUser("clerk_bob", "bob")
	f.bobGoal = h.addGoal(f.bob.ID, "Coding", 2)

	f.carol = &user.User{ClerkID: "clerk_carol", Username: "carol", Privacy: json.RawMessage(`{"showLeaderboard": false}`)}
	h.st.AddUser(f.carol)
	carolGoal := h.addGoal(f.carol.ID, "Coding", 2)

	dave := h.addUser("clerk_dave", "dave")
	f.daveGoal = h.addGoal(dave.ID, "Health", 2)

	h.seedDay(t, h.goal, day(-1), 60, 40, 1)
	h.seedDay(t, h.goal, day(0), 60, 40, 2)
	h.seedDay(t, f.bobGoal, day(0), 45, 30, 1)
	h.seedDay(t, carolGoal, day(0), 120, 90, 5)
	h.seedDay(t, f.daveGoal, day(0), 30, 20, 1)
	return f
}

func usernames(board *leaderboard.Leaderboard) []string {
	out := []string{}
	for _, e := range board.Rankings {
		out = append(out, e.Username)
	}
	return out
}

func TestGetLeaderboardOnDemand(t *testing.T) {
	f := newBoardFixture(t)

	board, err := f.leaderboard.GetLeaderboard(context.Background(), "coding", "weekly")
	require.NoError(t, err)
	assert.False(t, board.FromSnapshot)
	require.NotNil(t, board.Category)
	assert.Equal(t, "Coding", *board.Category)
	assert.Equal(t, "2026-10-08", board.StartDate)
	assert.Equal(t, "2026-10-15", board.EndDate)

	require.Equal(t, []string{"alice", "bob"}, usernames(board))
	assert.Equal(t, 100.0, board.Rankings[0].Score)
	assert.Equal(t, 45.0, board.Rankings[1].Score)
	assert.Equal(t, 80, board.Rankings[0].RawPoints)
	assert.Equal(t, 2, board.Rankings[0].DaysActive)
}

func TestRecomputeAllServesSnapshots(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()

	stale := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, nil, day(-100))
	f.st.PutSnapshotRows(stale, []*leaderboard.SnapshotRow{{
		ID: uuid.New(), UserID: f.user.ID, PeriodType: leaderboard.PeriodWeekly,
		PeriodStart: stale.Start, PeriodEnd: stale.End, Rank: 1, SnapshotDate: day(-100),
	}})

	require.NoError(t, f.leaderboard.RecomputeAll(ctx))

	board, err := f.leaderboard.GetLeaderboard(ctx, "Coding", "WEEKLY")
	require.NoError(t, err)
	assert.True(t, board.FromSnapshot)
	assert.Equal(t, []string{"alice", "bob"}, usernames(board))

	overall, err := f.leaderboard.GetLeaderboard(ctx, "", "all_time")
	require.NoError(t, err)
	assert.True(t, overall.FromSnapshot)
	assert.Nil(t, overall.Category)
	assert.ElementsMatch(t, []string{"alice", "bob", "dave"}, usernames(overall))

	health, err := f.leaderboard.GetLeaderboard(ctx, "health", "monthly")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, usernames(health))

	pruned, err := f.st.ListSnapshot(ctx, stale)
	require.NoError(t, err)
	assert.Empty(t, pruned)
}

func TestRecomputeTracksRankMovement(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()
	cat := "Coding"
	key := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, &cat, day(0))

	require.NoError(t, f.leaderboard.RecomputeScope(ctx, key))
	f.seedDay(t, f.bobGoal, day(-1), 60, 200, 2)
	require.NoError(t, f.leaderboard.RecomputeScope(ctx, key))

	rows, err := f.st.ListSnapshot(ctx, key)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byUser := map[uuid.UUID]*leaderboard.SnapshotRow{}
	for _, r := range rows {
		byUser[r.UserID] = r
	}
	assert.Equal(t, 1, byUser[f.bob.ID].Rank)
	assert.Equal(t, 1, byUser[f.bob.ID].RankMovement)
	assert.Equal(t, 2, byUser[f.user.ID].Rank)
	assert.Equal(t, -1, byUser[f.user.ID].RankMovement)
}

func TestRecomputeFailureKeepsPreviousGeneration(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()
	cat := "Coding"
	key := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, &cat, day(0))

	require.NoError(t, f.leaderboard.RecomputeScope(ctx, key))
	before, err := f.st.ListSnapshot(ctx, key)
	require.NoError(t, err)

	f.seedDay(t, f.bobGoal, day(-1), 60, 200, 2)
	f.st.FailNext("ReplaceSnapshotScope", errors.New("lock timeout"))
	require.Error(t, f.leaderboard.RecomputeScope(ctx, key))

	after, err := f.st.ListSnapshot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestGetLeaderboardSkipsBadSnapshotRows(t *testing.T) {
	f := newBoardFixture(t)
	cat := "Coding"
	key := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, &cat, day(0))
	f.st.PutSnapshotRows(key, []*leaderboard.SnapshotRow{
		{ID: uuid.New(), UserID: f.user.ID, Rank: 1, Score: 90},
		{ID: uuid.New(), UserID: uuid.Nil, Rank: 2},
		{ID: uuid.New(), UserID: f.bob.ID, Rank: 0},
		{ID: uuid.New(), UserID: uuid.New(), Rank: 3},
	})

	board, err := f.leaderboard.GetLeaderboard(context.Background(), "Coding", "weekly")
	require.NoError(t, err)
	assert.True(t, board.FromSnapshot)
	assert.Equal(t, []string{"alice"}, usernames(board))
	assert.Equal(t, 3, board.SkippedRows)
}

func TestGetLeaderboardFallsBackWhenSnapshotReadFails(t *testing.T) {
	f := newBoardFixture(t)
	require.NoError(t, f.leaderboard.RecomputeAll(context.Background()))
	f.st.FailNext("ListSnapshot", errors.New("connection reset"))

	board, err := f.leaderboard.GetLeaderboard(context.Background(), "Coding", "weekly")
	require.NoError(t, err)
	assert.False(t, board.FromSnapshot)
	assert.Equal(t, []string{"alice", "bob"}, usernames(board))
}

func TestGetLeaderboardRejectsUnknownPeriod(t *testing.T) {
	f := newBoardFixture(t)
	_, err := f.leaderboard.GetLeaderboard(context.Background(), "", "daily")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestGetLeaderboardEmptyScope(t *testing.T) {
	f := newBoardFixture(t)
	board, err := f.leaderboard.GetLeaderboard(context.Background(), "Reading", "weekly")
	require.NoError(t, err)
	assert.NotNil(t, board.Rankings)
	assert.Empty(t, board.Rankings)
}

func TestGetUserRankContext(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()
	require.NoError(t, f.leaderboard.RecomputeAll(ctx))

	rc, err := f.leaderboard.GetUserRankContext(ctx, "clerk_bob", "coding", "weekly")
	require.NoError(t, err)
	assert.False(t, rc.NotRanked)
	assert.True(t, rc.FromSnapshot)
	require.NotNil(t, rc.MyRank)
	assert.Equal(t, 2, rc.MyRank.Rank)
	require.NotNil(t, rc.AboveMe)
	assert.Equal(t, f.user.ID, rc.AboveMe.UserID)
	assert.Nil(t, rc.BelowMe)
	assert.Equal(t, 2, rc.TotalParticipants)

	hidden, err := f.leaderboard.GetUserRankContext(ctx, "clerk_carol", "coding", "weekly")
	require.NoError(t, err)
	assert.True(t, hidden.NotRanked)
	require.NotNil(t, hidden.Reason)
	assert.Equal(t, leaderboard.NotRankedReason, *hidden.Reason)

	_, err = f.leaderboard.GetUserRankContext(ctx, "clerk_nobody", "coding", "weekly")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGetUserRankContextSeesNewcomerBeforeNextSnapshot(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()
	require.NoError(t, f.leaderboard.RecomputeAll(ctx))

	erin := f.addUser("clerk_erin", "erin")
	erinGoal := f.addGoal(erin.ID, "Coding", 2)
	f.seedDay(t, erinGoal, day(0), 30, 10, 1)

	rc, err := f.leaderboard.GetUserRankContext(ctx, "clerk_erin", "coding", "weekly")
	require.NoError(t, err)
	assert.False(t, rc.NotRanked)
	require.NotNil(t, rc.MyRank)
	assert.Equal(t, 3, rc.MyRank.Rank)
	assert.False(t, rc.FromSnapshot)
}

func TestRefreshForActivity(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()
	cat := "coding"
	require.NoError(t, f.leaderboard.RefreshForActivity(ctx, &cat))

	for _, p := range leaderboard.Periods {
		coding := "Coding"
		rows, err := f.st.ListSnapshot(ctx, leaderboard.NewScopeKey(p, &coding, day(0)))
		require.NoError(t, err)
		assert.Len(t, rows, 2, string(p))

		overall, err := f.st.ListSnapshot(ctx, leaderboard.NewScopeKey(p, nil, day(0)))
		require.NoError(t, err)
		assert.Len(t, overall, 3, string(p))

		health := "Health"
		untouched, err := f.st.ListSnapshot(ctx, leaderboard.NewScopeKey(p, &health, day(0)))
		require.NoError(t, err)
		assert.Empty(t, untouched, string(p))
	}
}

type cachedGeneration struct {
	generation int64
	rows       []*leaderboard.SnapshotRow
}

// parkingCache applies the newer-generation-wins rule in process. After
// parkNextSet, the next Set blocks until the returned release is closed.
type parkingCache struct {
	mu      sync.Mutex
	entries map[string]cachedGeneration
	parked  chan struct{}
	release chan struct{}
}

func newParkingCache() *parkingCache {
	return &parkingCache{entries: make(map[string]cachedGeneration)}
}

func (c *parkingCache) Get(_ context.Context, key leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.LockKey()]
	return e.rows, ok
}

func (c *parkingCache) Set(_ context.Context, key leaderboard.ScopeKey, generation int64, rows []*leaderboard.SnapshotRow) {
	c.mu.Lock()
	parked, release := c.parked, c.release
	c.parked, c.release = nil, nil
	c.mu.Unlock()
	if release != nil {
		close(parked)
		<-release
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.LockKey()]; ok && e.generation > generation {
		return
	}
	c.entries[key.LockKey()] = cachedGeneration{generation: generation, rows: rows}
}

func (c *parkingCache) parkNextSet() (<-chan struct{}, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parked, c.release = make(chan struct{}), make(chan struct{})
	return c.parked, c.release
}

func (c *parkingCache) expire(key leaderboard.ScopeKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.LockKey())
}

func (c *parkingCache) generation(key leaderboard.ScopeKey) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key.LockKey()].generation
}

func TestLateCacheFillKeepsNewerGeneration(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()
	cache := newParkingCache()
	lb := NewLeaderboardService(f.st, cache, config.Leaderboard{
		Categories:    []string{"Coding", "Health"},
		RetentionDays: 90,
		Concurrency:   1,
	}, logger.Nop())
	lb.now = f.leaderboard.now

	cat := "Coding"
	key := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, &cat, day(0))
	require.NoError(t, lb.RecomputeScope(ctx, key))
	cache.expire(key)

	// A reader loads the first generation from the store and stalls before
	// filling the cache.
	parked, release := cache.parkNextSet()
	done := make(chan *leaderboard.Leaderboard, 1)
	go func() {
		board, _ := lb.GetLeaderboard(ctx, "Coding", "weekly")
		done <- board
	}()
	select {
	case <-parked:
	case <-time.After(5 * time.Second):
		t.Fatal("reader never reached the cache")
	}

	f.seedDay(t, f.bobGoal, day(-1), 60, 500, 2)
	require.NoError(t, lb.RecomputeScope(ctx, key))
	close(release)
	inFlight := <-done
	require.NotNil(t, inFlight)
	assert.Equal(t, []string{"alice", "bob"}, usernames(inFlight))

	stored, err := f.st.ListSnapshot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, leaderboard.GenerationOf(stored), cache.generation(key))

	board, err := lb.GetLeaderboard(ctx, "Coding", "weekly")
	require.NoError(t, err)
	assert.True(t, board.FromSnapshot)
	require.Equal(t, []string{"bob", "alice"}, usernames(board))
	assert.Equal(t, 530, board.Rankings[0].RawPoints)
}

func TestRecomputeYieldsToNewerStoredGeneration(t *testing.T) {
	f := newBoardFixture(t)
	ctx := context.Background()
	cat := "Coding"
	key := leaderboard.NewScopeKey(leaderboard.PeriodWeekly, &cat, day(0))

	future := time.Now().Add(time.Hour).UnixMicro()
	newer := []*leaderboard.SnapshotRow{{
		ID: uuid.New(), UserID: f.bob.ID, Category: &cat, PeriodType: key.Period,
		PeriodStart: key.Start, PeriodEnd: key.End, Rank: 1, Score: 99, SnapshotDate: day(0), Generation: future,
	}}
	require.NoError(t, f.st.ReplaceSnapshotScope(ctx, key, future, newer))

	require.NoError(t, f.leaderboard.RecomputeScope(ctx, key))

	rows, err := f.st.ListSnapshot(ctx, key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.bob.ID, rows[0].UserID)
	assert.Equal(t, future, rows[0].Generation)
}
