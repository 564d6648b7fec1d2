package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/leaderboard"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/metrics"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/utils"
)

// SnapshotCache fronts snapshot reads. Implementations swallow their own errors.
type SnapshotCache interface {
	Get(ctx context.Context, key leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, bool)
	// Set must keep the cached rows when they belong to a newer generation.
	Set(ctx context.Context, key leaderboard.ScopeKey, generation int64, rows []*leaderboard.SnapshotRow)
}

type noCache struct{}

func (noCache) Get(context.Context, leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, bool) {
	return nil, false
}
func (noCache) Set(context.Context, leaderboard.ScopeKey, int64, []*leaderboard.SnapshotRow) {}

type LeaderboardService struct {
	store         store.Store
	cache         SnapshotCache
	catalog       *leaderboard.Catalog
	weights       leaderboard.Weights
	retentionDays int
	concurrency   int
	generations   *leaderboard.Generations
	group         singleflight.Group
	log           *logger.Logger
	now           func() time.Time
}

func NewLeaderboardService(st store.Store, cache SnapshotCache, cfg config.Leaderboard, log *logger.Logger) *LeaderboardService {
	if cache == nil {
		cache = noCache{}
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &LeaderboardService{
		store:         st,
		cache:         cache,
		catalog:       leaderboard.NewCatalog(cfg.Categories),
		weights:       leaderboard.DefaultWeights(),
		retentionDays: cfg.RetentionDays,
		concurrency:   concurrency,
		generations:   leaderboard.NewGenerations(),
		log:           log.With("service", "LeaderboardService"),
		now:           time.Now,
	}
}

func (s *LeaderboardService) today() time.Time {
	return utils.DateOnly(s.now())
}

// resolveCategory maps a raw category onto the configured spelling. Blank
// means overall.
func (s *LeaderboardService) resolveCategory(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if name, ok := s.catalog.Canonical(raw); ok {
		return &name
	}
	return &raw
}

func (s *LeaderboardService) Categories() []string {
	return s.catalog.Names()
}

func (s *LeaderboardService) computeStandings(ctx context.Context, key leaderboard.ScopeKey) ([]*leaderboard.Standing, error) {
	goals, err := s.store.ListLeaderboardGoals(ctx, key.Category)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, nil
	}

	refs := make([]leaderboard.GoalRef, 0, len(goals))
	goalIDs := make([]uuid.UUID, 0, len(goals))
	owners := make([]uuid.UUID, 0, len(goals))
	seenOwner := make(map[uuid.UUID]bool)
	for _, g := range goals {
		refs = append(refs, leaderboard.GoalRef{ID: g.ID, UserID: g.UserID})
		goalIDs = append(goalIDs, g.ID)
		if !seenOwner[g.UserID] {
			seenOwner[g.UserID] = true
			owners = append(owners, g.UserID)
		}
	}

	users, err := s.store.ListUsersByIDs(ctx, owners)
	if err != nil {
		return nil, err
	}
	visible := make(map[uuid.UUID]bool, len(users))
	for id, u := range users {
		visible[id] = u.ShowOnLeaderboard()
	}

	entries, err := s.store.ListActivitiesInWindow(ctx, goalIDs, key.Start, key.End)
	if err != nil {
		return nil, err
	}
	activities := make([]leaderboard.ActivityRef, len(entries))
	for i, e := range entries {
		activities[i] = leaderboard.ActivityRef{GoalID: e.GoalID, Date: e.Date}
	}

	pointsByGoal, err := s.store.SumPointsByGoalInWindow(ctx, goalIDs, key.Start, key.End)
	if err != nil {
		return nil, err
	}
	streakRows, err := s.store.ListStreaks(ctx, goalIDs)
	if err != nil {
		return nil, err
	}
	streakByGoal := make(map[uuid.UUID]int, len(streakRows))
	for id, st := range streakRows {
		streakByGoal[id] = st.CurrentStreak
	}

	return leaderboard.Compute(leaderboard.Input{
		Goals:        refs,
		Visible:      visible,
		Activities:   activities,
		PointsByGoal: pointsByGoal,
		StreakByGoal: streakByGoal,
	}, s.weights), nil
}

// RecomputeScope ranks one scope and replaces its snapshot generation. The
// generation is taken before any data is read; a run that lost to a newer
// generation of the same scope writes nothing and is not an error.
func (s *LeaderboardService) RecomputeScope(ctx context.Context, key leaderboard.ScopeKey) error {
	start := time.Now()
	defer func() {
		metrics.LeaderboardRecompute.WithLabelValues(string(key.Period)).Observe(time.Since(start).Seconds())
	}()

	generation := s.generations.Next()
	standings, err := s.computeStandings(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to compute %s: %w", key.LockKey(), err)
	}

	previous, err := s.store.LatestSnapshot(ctx, key.Period, key.Category)
	if err != nil {
		s.log.Warn("previous snapshot unavailable, movement reset", "scope", key.LockKey(), "error", err)
		previous = nil
	}

	rows := leaderboard.SnapshotRows(key, standings, leaderboard.PreviousRanks(previous), s.today(), generation)
	err = s.store.ReplaceSnapshotScope(ctx, key, generation, rows)
	if errors.Is(err, store.ErrStaleGeneration) {
		s.log.Debug("newer leaderboard generation already stored", "scope", key.LockKey(), "generation", generation)
		return nil
	}
	if err != nil {
		return err
	}
	s.cache.Set(ctx, key, generation, rows)

	s.log.Debug("leaderboard scope recomputed", "scope", key.LockKey(), "rows", len(rows), "generation", generation)
	return nil
}

func (s *LeaderboardService) scopeKeys(categories []*string, today time.Time) []leaderboard.ScopeKey {
	seen := make(map[string]bool)
	var keys []leaderboard.ScopeKey
	for _, p := range leaderboard.Periods {
		for _, c := range categories {
			key := leaderboard.NewScopeKey(p, c, today)
			if seen[key.LockKey()] {
				continue
			}
			seen[key.LockKey()] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// RecomputeAll refreshes every period for overall and each known category,
// then prunes generations older than the retention window.
func (s *LeaderboardService) RecomputeAll(ctx context.Context) error {
	today := s.today()
	categories := []*string{nil}
	for _, name := range s.catalog.Names() {
		name := name
		categories = append(categories, &name)
	}
	keys := s.scopeKeys(categories, today)

	var mu sync.Mutex
	failed := 0
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := s.RecomputeScope(ctx, key); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				s.log.Error("leaderboard scope recompute failed", "scope", key.LockKey(), "error", err)
				return err
			}
			return nil
		})
	}
	firstErr := g.Wait()

	if s.retentionDays > 0 {
		pruned, err := s.store.PruneSnapshots(ctx, today.AddDate(0, 0, -s.retentionDays))
		if err != nil {
			s.log.Warn("snapshot prune failed", "error", err)
		} else if pruned > 0 {
			s.log.Info("pruned old snapshots", "rows", pruned)
		}
	}

	s.log.Info("leaderboard aggregation finished", "scopes", len(keys), "failed", failed)
	if firstErr != nil {
		return fmt.Errorf("%d of %d scopes failed: %w", failed, len(keys), firstErr)
	}
	return nil
}

// RefreshForActivity recomputes overall and the activity's category for every period.
func (s *LeaderboardService) RefreshForActivity(ctx context.Context, category *string) error {
	categories := []*string{nil}
	if category != nil {
		categories = append(categories, s.resolveCategory(*category))
	}

	var firstErr error
	for _, key := range s.scopeKeys(categories, s.today()) {
		if err := s.RecomputeScope(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *LeaderboardService) emptyBoard(key leaderboard.ScopeKey) *leaderboard.Leaderboard {
	return &leaderboard.Leaderboard{
		Rankings:  []*leaderboard.LeaderboardEntry{},
		Period:    key.Period,
		Category:  key.Category,
		StartDate: utils.FormatDate(key.Start),
		EndDate:   utils.FormatDate(key.End),
	}
}

func (s *LeaderboardService) snapshotRows(ctx context.Context, key leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, string) {
	if rows, ok := s.cache.Get(ctx, key); ok && len(rows) > 0 {
		return rows, "cache"
	}
	rows, err := s.store.ListSnapshot(ctx, key)
	if err != nil {
		s.log.Warn("snapshot read failed, computing on demand", "scope", key.LockKey(), "error", err)
		return nil, ""
	}
	if len(rows) > 0 {
		s.cache.Set(ctx, key, leaderboard.GenerationOf(rows), rows)
	}
	return rows, "snapshot"
}

func (s *LeaderboardService) fromSnapshot(ctx context.Context, key leaderboard.ScopeKey, rows []*leaderboard.SnapshotRow) (*leaderboard.Leaderboard, error) {
	clean, skipped := leaderboard.CleanRows(rows)
	ids := make([]uuid.UUID, len(clean))
	for i, r := range clean {
		ids[i] = r.UserID
	}
	users, err := s.store.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	board := s.emptyBoard(key)
	board.FromSnapshot = true
	for _, r := range clean {
		u, ok := users[r.UserID]
		if !ok {
			skipped++
			continue
		}
		board.Rankings = append(board.Rankings, &leaderboard.LeaderboardEntry{
			Rank:         r.Rank,
			UserID:       r.UserID,
			Username:     u.Username,
			ImageURL:     u.ImageURL,
			Score:        r.Score,
			RawPoints:    r.RawPoints,
			DaysActive:   r.DaysActive,
			Streak:       r.Streak,
			RankMovement: r.RankMovement,
		})
	}
	board.SkippedRows = skipped
	if skipped > 0 {
		s.log.Warn("skipped malformed snapshot rows", "scope", key.LockKey(), "skipped", skipped)
	}
	return board, nil
}

func (s *LeaderboardService) onDemand(ctx context.Context, key leaderboard.ScopeKey) (*leaderboard.Leaderboard, error) {
	v, err, _ := s.group.Do(key.LockKey(), func() (interface{}, error) {
		standings, err := s.computeStandings(ctx, key)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, len(standings))
		for i, st := range standings {
			ids[i] = st.UserID
		}
		users, err := s.store.ListUsersByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}

		board := s.emptyBoard(key)
		for _, st := range standings {
			e := &leaderboard.LeaderboardEntry{
				Rank:       st.Rank,
				UserID:     st.UserID,
				Score:      leaderboard.RoundScore(st.Score, 1),
				RawPoints:  st.RawPoints,
				DaysActive: st.DaysActive,
				Streak:     st.Streak,
			}
			if u, ok := users[st.UserID]; ok {
				e.Username = u.Username
				e.ImageURL = u.ImageURL
			}
			board.Rankings = append(board.Rankings, e)
		}
		return board, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*leaderboard.Leaderboard), nil
}

func (s *LeaderboardService) scopeFor(categoryRaw, periodRaw string) (leaderboard.ScopeKey, error) {
	period, err := leaderboard.ParsePeriod(periodRaw)
	if err != nil {
		return leaderboard.ScopeKey{}, apperr.Validation("%s", err.Error())
	}
	return leaderboard.NewScopeKey(period, s.resolveCategory(categoryRaw), s.today()), nil
}

// GetLeaderboard serves the persisted generation when there is one and
// otherwise ranks on demand. Compute failures yield an empty board.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, categoryRaw, periodRaw string) (*leaderboard.Leaderboard, error) {
	key, err := s.scopeFor(categoryRaw, periodRaw)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, key), nil
}

func (s *LeaderboardService) read(ctx context.Context, key leaderboard.ScopeKey) *leaderboard.Leaderboard {
	if rows, source := s.snapshotRows(ctx, key); len(rows) > 0 {
		board, err := s.fromSnapshot(ctx, key, rows)
		if err == nil {
			metrics.LeaderboardReads.WithLabelValues(source).Inc()
			return board
		}
		s.log.Warn("snapshot rows unusable, computing on demand", "scope", key.LockKey(), "error", err)
	}

	board, err := s.onDemand(ctx, key)
	if err != nil {
		s.log.Error("on-demand leaderboard failed", "scope", key.LockKey(), "error", err)
		metrics.LeaderboardReads.WithLabelValues("empty").Inc()
		return s.emptyBoard(key)
	}
	metrics.LeaderboardReads.WithLabelValues("on_demand").Inc()
	return board
}

// GetUserRankContext locates the user and their neighbours. A user missing
// from the snapshot is looked up in a fresh on-demand ranking.
func (s *LeaderboardService) GetUserRankContext(ctx context.Context, clerkID, categoryRaw, periodRaw string) (*leaderboard.RankContext, error) {
	key, err := s.scopeFor(categoryRaw, periodRaw)
	if err != nil {
		return nil, err
	}
	userID, err := resolveUserID(ctx, s.store, clerkID)
	if err != nil {
		return nil, err
	}

	board := s.read(ctx, key)
	rc := leaderboard.BuildRankContext(board.Rankings, userID)
	rc.FromSnapshot = board.FromSnapshot
	if !rc.NotRanked || !board.FromSnapshot {
		return rc, nil
	}

	live, err := s.onDemand(ctx, key)
	if err != nil {
		s.log.Warn("on-demand rank lookup failed", "user_id", userID, "error", err)
		return rc, nil
	}
	return leaderboard.BuildRankContext(live.Rankings, userID), nil
}
