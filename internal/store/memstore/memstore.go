// Package memstore is an in-memory store.Store used by tests and local runs
// without a database.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/leaderboard"
	"focusforgeAPI/internal/stats"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/streak"
	"focusforgeAPI/internal/trust"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/ledger"
	"focusforgeAPI/internal/types/notification"
	"focusforgeAPI/internal/types/user"
	"focusforgeAPI/utils"
)

const claimLease = 5 * time.Minute

type outboxRow struct {
	task      store.RefreshTask
	claimedAt *time.Time
}

type scopeGeneration struct {
	generation int64
	snapshotAt time.Time
}

type summaryKey struct {
	userID uuid.UUID
	date   time.Time
}

type state struct {
	users         map[uuid.UUID]*user.User
	goals         map[uuid.UUID]*goal.Goal
	activities    []*activity.Entry
	streaks       map[uuid.UUID]*streak.Streak
	ledger        []*ledger.Entry
	badges        []*badge.Definition
	awards        []*badge.Award
	flags         []*trust.Flag
	snapshots     map[string][]*leaderboard.SnapshotRow
	generations   map[string]scopeGeneration
	outbox        []*outboxRow
	nextTaskID    int64
	notifications []*notification.Notification
	devices       map[uuid.UUID][]notification.DeviceToken
	summaries     map[summaryKey]*stats.DailySummary
}

func newState() *state {
	return &state{
		users:     make(map[uuid.UUID]*user.User),
		goals:     make(map[uuid.UUID]*goal.Goal),
		streaks:   make(map[uuid.UUID]*streak.Streak),
		snapshots:   make(map[string][]*leaderboard.SnapshotRow),
		generations: make(map[string]scopeGeneration),
		devices:   make(map[uuid.UUID][]notification.DeviceToken),
		summaries: make(map[summaryKey]*stats.DailySummary),
	}
}

// clone copies the containers. Stored records are never mutated in place,
// so sharing the pointers is safe.
func (st *state) clone() *state {
	c := &state{
		users:         make(map[uuid.UUID]*user.User, len(st.users)),
		goals:         make(map[uuid.UUID]*goal.Goal, len(st.goals)),
		activities:    append([]*activity.Entry(nil), st.activities...),
		streaks:       make(map[uuid.UUID]*streak.Streak, len(st.streaks)),
		ledger:        append([]*ledger.Entry(nil), st.ledger...),
		badges:        append([]*badge.Definition(nil), st.badges...),
		awards:        append([]*badge.Award(nil), st.awards...),
		flags:         append([]*trust.Flag(nil), st.flags...),
		snapshots:     make(map[string][]*leaderboard.SnapshotRow, len(st.snapshots)),
		generations:   make(map[string]scopeGeneration, len(st.generations)),
		nextTaskID:    st.nextTaskID,
		notifications: append([]*notification.Notification(nil), st.notifications...),
		devices:       make(map[uuid.UUID][]notification.DeviceToken, len(st.devices)),
		summaries:     make(map[summaryKey]*stats.DailySummary, len(st.summaries)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.goals {
		c.goals[k] = v
	}
	for k, v := range st.streaks {
		c.streaks[k] = v
	}
	for k, v := range st.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range st.generations {
		c.generations[k] = v
	}
	for k, v := range st.devices {
		c.devices[k] = append([]notification.DeviceToken(nil), v...)
	}
	for k, v := range st.summaries {
		c.summaries[k] = v
	}
	for _, row := range st.outbox {
		cp := *row
		c.outbox = append(c.outbox, &cp)
	}
	return c
}

type Store struct {
	mu       sync.RWMutex
	st       *state
	now      func() time.Time
	faults   map[string]error
	dayLocks *lockLog
	beforeTx func()
}

// lockLog records LockUserDay calls, shared by a store and its transactions.
type lockLog struct {
	mu   sync.Mutex
	keys []string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now, faults: make(map[string]error), dayLocks: &lockLog{}}
}

// SetClock overrides the time source used for created/flagged timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call to op return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// fault must be called with mu held for writing.
func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

// BeforeNextTx runs fn once, right before the next transaction starts. Tests
// use it to commit a competing write between a check and the transaction.
func (s *Store) BeforeNextTx(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeTx = fn
}

// DayLocks lists the user-day locks taken so far, as "user:date".
func (s *Store) DayLocks() []string {
	s.dayLocks.mu.Lock()
	defer s.dayLocks.mu.Unlock()
	return append([]string(nil), s.dayLocks.keys...)
}

// InTx runs fn against a private copy of the state and publishes it only when
// fn succeeds. Transactions are serialized with every other call.
func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	s.mu.Lock()
	hook := s.beforeTx
	s.beforeTx = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InTx"); err != nil {
		return err
	}

	tx := &Store{st: s.st.clone(), now: s.now, faults: s.faults, dayLocks: s.dayLocks}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// seeding

func (s *Store) AddUser(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.st.users[u.ID] = u
}

func (s *Store) AddGoal(g *goal.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now()
	}
	s.st.goals[g.ID] = g
}

// AddFlag stores f as is, keeping a caller supplied FlaggedAt.
func (s *Store) AddFlag(f *trust.Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	s.st.flags = append(s.st.flags, f)
}

// PutSnapshotRows writes rows under key without any cleanup.
func (s *Store) PutSnapshotRows(key leaderboard.ScopeKey, rows []*leaderboard.SnapshotRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.snapshots[key.LockKey()] = rows
}

func (s *Store) RefreshTasks() []store.RefreshTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.RefreshTask, 0, len(s.st.outbox))
	for _, row := range s.st.outbox {
		out = append(out, row.task)
	}
	return out
}

func (s *Store) Notifications(userID uuid.UUID) []*notification.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notification.Notification
	for _, n := range s.st.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) LedgerEntries(userID uuid.UUID) []*ledger.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Entry
	for _, e := range s.st.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// users

func (s *Store) GetUserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.st.users {
		if u.ClerkID == clerkID {
			return u.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("user: %w", apperr.ErrNotFound)
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[userID]
	if !ok {
		return nil, fmt.Errorf("user: %w", apperr.ErrNotFound)
	}
	return u, nil
}

func (s *Store) ListUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*user.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.st.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*user.User, 0, len(s.st.users))
	for _, u := range s.st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return bytes.Compare(users[i].ID[:], users[j].ID[:]) < 0
	})
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

// goals

func (s *Store) GetGoal(ctx context.Context, goalID uuid.UUID) (*goal.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.st.goals[goalID]
	if !ok {
		return nil, fmt.Errorf("goal: %w", apperr.ErrNotFound)
	}
	return g, nil
}

func (s *Store) filterGoals(keep func(*goal.Goal) bool) []*goal.Goal {
	var out []*goal.Goal
	for _, g := range s.st.goals {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (s *Store) ListUserGoals(ctx context.Context, userID uuid.UUID) ([]*goal.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterGoals(func(g *goal.Goal) bool { return g.UserID == userID }), nil
}

func (s *Store) ListLeaderboardGoals(ctx context.Context, category *string) ([]*goal.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterGoals(func(g *goal.Goal) bool { return g.CountsForLeaderboard(category) }), nil
}

// activity

func sameDay(a, b time.Time) bool {
	return utils.DateOnly(a).Equal(utils.DateOnly(b))
}

func inWindow(d, start, end time.Time) bool {
	d = utils.DateOnly(d)
	return !d.Before(utils.DateOnly(start)) && !d.After(utils.DateOnly(end))
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// LockUserDay only records the call: transactions are already serialized.
func (s *Store) LockUserDay(ctx context.Context, userID uuid.UUID, date time.Time) error {
	s.mu.Lock()
	err := s.fault("LockUserDay")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.dayLocks.mu.Lock()
	defer s.dayLocks.mu.Unlock()
	s.dayLocks.keys = append(s.dayLocks.keys, userID.String()+":"+utils.FormatDate(date))
	return nil
}

func (s *Store) ActivityExists(ctx context.Context, userID, goalID uuid.UUID, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activityExists(userID, goalID, date), nil
}

func (s *Store) activityExists(userID, goalID uuid.UUID, date time.Time) bool {
	for _, e := range s.st.activities {
		if e.UserID == userID && e.GoalID == goalID && sameDay(e.Date, date) {
			return true
		}
	}
	return false
}

func (s *Store) InsertActivity(ctx context.Context, e *activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertActivity"); err != nil {
		return err
	}
	if s.activityExists(e.UserID, e.GoalID, e.Date) {
		return apperr.ErrDuplicateActivity
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Date = utils.DateOnly(e.Date)
	e.CreatedAt = s.now()
	cp := *e
	s.st.activities = append(s.st.activities, &cp)
	return nil
}

func (s *Store) SumMinutesOnDate(ctx context.Context, userID uuid.UUID, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, e := range s.st.activities {
		if e.UserID == userID && sameDay(e.Date, date) {
			total += e.Minutes
		}
	}
	return total, nil
}

func (s *Store) RecentGoalActivities(ctx context.Context, goalID uuid.UUID, limit int) ([]*activity.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*activity.Entry
	for _, e := range s.st.activities {
		if e.GoalID == goalID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GoalMinutesByDate(ctx context.Context, goalID uuid.UUID) (map[time.Time]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[time.Time]int)
	for _, e := range s.st.activities {
		if e.GoalID == goalID {
			out[utils.DateOnly(e.Date)] += e.Minutes
		}
	}
	return out, nil
}

func (s *Store) UserActiveDates(ctx context.Context, userID uuid.UUID, goalIDs []uuid.UUID) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var filter map[uuid.UUID]bool
	if goalIDs != nil {
		filter = idSet(goalIDs)
	}
	seen := make(map[time.Time]struct{})
	for _, e := range s.st.activities {
		if e.UserID != userID || (filter != nil && !filter[e.GoalID]) {
			continue
		}
		seen[utils.DateOnly(e.Date)] = struct{}{}
	}
	out := make([]time.Time, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) ListActivitiesInWindow(ctx context.Context, goalIDs []uuid.UUID, start, end time.Time) ([]*activity.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter := idSet(goalIDs)
	var out []*activity.Entry
	for _, e := range s.st.activities {
		if filter[e.GoalID] && inWindow(e.Date, start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) DayTotals(ctx context.Context, userID uuid.UUID, start, end time.Time) (*stats.DayTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := &stats.DayTotals{}
	days := make(map[time.Time]struct{})
	goals := make(map[uuid.UUID]struct{})
	for _, e := range s.st.activities {
		if e.UserID != userID || !inWindow(e.Date, start, end) {
			continue
		}
		t.Minutes += e.Minutes
		t.Activities++
		days[utils.DateOnly(e.Date)] = struct{}{}
		goals[e.GoalID] = struct{}{}
	}
	t.ActiveDays = len(days)
	t.Goals = len(goals)
	for _, l := range s.st.ledger {
		if l.UserID == userID && inWindow(l.ReferenceDate, start, end) {
			t.Points += l.Points
		}
	}
	return t, nil
}

// streaks

func (s *Store) GetStreak(ctx context.Context, goalID uuid.UUID) (*streak.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.st.streaks[goalID]
	if !ok {
		return nil, fmt.Errorf("streak: %w", apperr.ErrNotFound)
	}
	cp := *st
	return &cp, nil
}

func (s *Store) UpsertStreak(ctx context.Context, in *streak.Streak) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	next := *in
	if cur, ok := s.st.streaks[in.GoalID]; ok {
		next.ID = cur.ID
		next.CreatedAt = cur.CreatedAt
		if cur.LongestStreak > next.LongestStreak {
			next.LongestStreak = cur.LongestStreak
		}
	} else {
		if next.ID == uuid.Nil {
			next.ID = uuid.New()
		}
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	s.st.streaks[in.GoalID] = &next
	*in = next
	return nil
}

func (s *Store) ListStreaks(ctx context.Context, goalIDs []uuid.UUID) (map[uuid.UUID]*streak.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*streak.Streak, len(goalIDs))
	for _, id := range goalIDs {
		if st, ok := s.st.streaks[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (s *Store) ListUserStreaks(ctx context.Context, userID uuid.UUID) ([]*streak.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*streak.Streak
	for _, st := range s.st.streaks {
		if st.UserID == userID {
			out = append(out, st)
		}
	}
	return out, nil
}

// ledger

func (s *Store) InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertLedgerEntry"); err != nil {
		return err
	}
	if e.Points < 0 {
		return fmt.Errorf("failed to insert ledger entry: negative points %d", e.Points)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.ReferenceDate = utils.DateOnly(e.ReferenceDate)
	e.CreatedAt = s.now()
	cp := *e
	s.st.ledger = append(s.st.ledger, &cp)
	return nil
}

func (s *Store) SumLedgerOnDate(ctx context.Context, userID uuid.UUID, reason string, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, e := range s.st.ledger {
		if e.UserID == userID && e.Reason == reason && sameDay(e.ReferenceDate, date) {
			total += e.Points
		}
	}
	return total, nil
}

func (s *Store) LedgerReasonExists(ctx context.Context, userID uuid.UUID, reason string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.st.ledger {
		if e.UserID == userID && e.Reason == reason {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SumUserPoints(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, e := range s.st.ledger {
		if e.UserID == userID {
			total += e.Points
		}
	}
	return total, nil
}

func (s *Store) SumUserPointsForGoals(ctx context.Context, userID uuid.UUID, goalIDs []uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter := idSet(goalIDs)
	total := 0
	for _, e := range s.st.ledger {
		if e.UserID == userID && e.GoalID != nil && filter[*e.GoalID] {
			total += e.Points
		}
	}
	return total, nil
}

func (s *Store) SumPointsByGoalInWindow(ctx context.Context, goalIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter := idSet(goalIDs)
	out := make(map[uuid.UUID]int, len(goalIDs))
	for _, e := range s.st.ledger {
		if e.GoalID != nil && filter[*e.GoalID] && inWindow(e.ReferenceDate, start, end) {
			out[*e.GoalID] += e.Points
		}
	}
	return out, nil
}

// badges

func (s *Store) ListBadgeDefinitions(ctx context.Context) ([]*badge.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListBadgeDefinitions"); err != nil {
		return nil, err
	}
	out := append([]*badge.Definition(nil), s.st.badges...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CriteriaType != out[j].CriteriaType {
			return out[i].CriteriaType < out[j].CriteriaType
		}
		return out[i].Threshold < out[j].Threshold
	})
	return out, nil
}

func (s *Store) InsertBadgeDefinition(ctx context.Context, d *badge.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertBadge(d)
}

func (s *Store) insertBadge(d *badge.Definition) error {
	for _, b := range s.st.badges {
		if b.Name == d.Name {
			return nil
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = s.now()
	cp := *d
	s.st.badges = append(s.st.badges, &cp)
	return nil
}

func (s *Store) ListUserAwards(ctx context.Context, userID uuid.UUID) ([]*badge.Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*badge.Award
	for _, a := range s.st.awards {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AwardedAt.Before(out[j].AwardedAt) })
	return out, nil
}

func (s *Store) AwardExists(ctx context.Context, userID, badgeID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.awardExists(userID, badgeID), nil
}

func (s *Store) awardExists(userID, badgeID uuid.UUID) bool {
	for _, a := range s.st.awards {
		if a.UserID == userID && a.BadgeID == badgeID {
			return true
		}
	}
	return false
}

func (s *Store) InsertAward(ctx context.Context, a *badge.Award) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertAward"); err != nil {
		return false, err
	}
	if s.awardExists(a.UserID, a.BadgeID) {
		return false, nil
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	s.st.awards = append(s.st.awards, &cp)
	return true, nil
}

// trust

func (s *Store) InsertFlag(ctx context.Context, f *trust.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.Reviewed = false
	f.FlaggedAt = s.now()
	cp := *f
	s.st.flags = append(s.st.flags, &cp)
	return nil
}

func (s *Store) ListFlagsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*trust.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*trust.Flag
	for _, f := range s.st.flags {
		if f.UserID == userID && !f.FlaggedAt.Before(since) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FlaggedAt.After(out[j].FlaggedAt) })
	return out, nil
}

func (s *Store) HasUnreviewedFlags(ctx context.Context, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.st.flags {
		if f.UserID == userID && !f.Reviewed {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) MarkFlagReviewed(ctx context.Context, flagID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.st.flags {
		if f.ID == flagID {
			cp := *f
			cp.Reviewed = true
			s.st.flags[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("flag %s: %w", flagID, apperr.ErrNotFound)
}

// snapshots

func sameCategory(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) ListSnapshot(ctx context.Context, key leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListSnapshot"); err != nil {
		return nil, err
	}
	return append([]*leaderboard.SnapshotRow(nil), s.st.snapshots[key.LockKey()]...), nil
}

func (s *Store) LatestSnapshot(ctx context.Context, period leaderboard.Period, category *string) ([]*leaderboard.SnapshotRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest []*leaderboard.SnapshotRow
	var latestEnd time.Time
	for _, rows := range s.st.snapshots {
		if len(rows) == 0 {
			continue
		}
		r := rows[0]
		if r.PeriodType != period || !sameCategory(r.Category, category) {
			continue
		}
		if latest == nil || r.PeriodEnd.After(latestEnd) {
			latest, latestEnd = rows, r.PeriodEnd
		}
	}
	out := append([]*leaderboard.SnapshotRow(nil), latest...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *Store) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for k, rows := range s.st.snapshots {
		kept := rows[:0:0]
		for _, r := range rows {
			if r.SnapshotDate.Before(before) {
				pruned++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.st.snapshots, k)
		} else {
			s.st.snapshots[k] = kept
		}
	}
	for k, g := range s.st.generations {
		if g.snapshotAt.Before(before) {
			delete(s.st.generations, k)
		}
	}
	return pruned, nil
}

// ReplaceSnapshotScope swaps the whole generation under the write lock, so a
// concurrent reader sees either the previous rows or the new ones.
func (s *Store) ReplaceSnapshotScope(ctx context.Context, key leaderboard.ScopeKey, generation int64, rows []*leaderboard.SnapshotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ReplaceSnapshotScope"); err != nil {
		return err
	}
	if stored, ok := s.st.generations[key.LockKey()]; ok && stored.generation > generation {
		return store.ErrStaleGeneration
	}
	s.st.generations[key.LockKey()] = scopeGeneration{generation: generation, snapshotAt: utils.DateOnly(s.now())}
	if len(rows) == 0 {
		delete(s.st.snapshots, key.LockKey())
		return nil
	}
	s.st.snapshots[key.LockKey()] = append([]*leaderboard.SnapshotRow(nil), rows...)
	return nil
}

// refresh outbox

func (s *Store) EnqueueRefresh(ctx context.Context, category *string, activityDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("EnqueueRefresh"); err != nil {
		return err
	}
	s.st.nextTaskID++
	s.st.outbox = append(s.st.outbox, &outboxRow{task: store.RefreshTask{
		ID:           s.st.nextTaskID,
		Category:     category,
		ActivityDate: utils.DateOnly(activityDate),
		EnqueuedAt:   s.now(),
	}})
	return nil
}

func (s *Store) ClaimRefreshTasks(ctx context.Context, limit int) ([]*store.RefreshTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []*store.RefreshTask
	for _, row := range s.st.outbox {
		if len(out) >= limit {
			break
		}
		t := &row.task
		if t.ProcessedAt != nil || t.Attempts >= store.MaxRefreshAttempts {
			continue
		}
		if row.claimedAt != nil && now.Sub(*row.claimedAt) < claimLease {
			continue
		}
		claimed := now
		row.claimedAt = &claimed
		t.Attempts++
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) outboxRow(id int64) (*outboxRow, error) {
	for _, row := range s.st.outbox {
		if row.task.ID == id {
			return row, nil
		}
	}
	return nil, fmt.Errorf("refresh task %d: %w", id, apperr.ErrNotFound)
}

func (s *Store) CompleteRefreshTask(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.outboxRow(id)
	if err != nil {
		return err
	}
	done := s.now()
	row.task.ProcessedAt = &done
	row.task.LastError = nil
	return nil
}

func (s *Store) FailRefreshTask(ctx context.Context, id int64, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.outboxRow(id)
	if err != nil {
		return err
	}
	msg := cause.Error()
	row.claimedAt = nil
	row.task.LastError = &msg
	return nil
}

func (s *Store) SeedBadges(ctx context.Context, defs []*badge.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		if err := s.insertBadge(d); err != nil {
			return err
		}
	}
	return nil
}

// notifications

func (s *Store) InsertNotification(ctx context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = notification.StatusPending
	}
	n.CreatedAt = s.now()
	cp := *n
	s.st.notifications = append(s.st.notifications, &cp)
	return nil
}

func (s *Store) NotificationExistsSince(ctx context.Context, userID uuid.UUID, typ notification.NotificationType, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.st.notifications {
		if n.UserID == userID && n.Type == typ && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListDeviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]notification.DeviceToken(nil), s.st.devices[userID]...), nil
}

func (s *Store) RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := s.st.devices[userID]
	for i, t := range tokens {
		if t.Token == token.Token {
			tokens[i].Platform = token.Platform
			return nil
		}
	}
	s.st.devices[userID] = append(tokens, token)
	return nil
}

func (s *Store) MarkNotificationStatus(ctx context.Context, notificationID uuid.UUID, status notification.NotificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.st.notifications {
		if n.ID == notificationID {
			cp := *n
			cp.Status = status
			s.st.notifications[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", notificationID, apperr.ErrNotFound)
}

func (s *Store) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	kept := s.st.notifications[:0:0]
	for _, n := range s.st.notifications {
		if n.ExpiresAt != nil && n.ExpiresAt.Before(now) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	s.st.notifications = kept
	return deleted, nil
}

// rollups

func (s *Store) UpsertDailySummary(ctx context.Context, in *stats.DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.Date = utils.DateOnly(in.Date)
	in.UpdatedAt = s.now()
	cp := *in
	s.st.summaries[summaryKey{userID: in.UserID, date: in.Date}] = &cp
	return nil
}

func (s *Store) ListDailySummaries(ctx context.Context, userID uuid.UUID, since time.Time) ([]*stats.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	since = utils.DateOnly(since)
	var out []*stats.DailySummary
	for k, v := range s.st.summaries {
		if k.userID == userID && !k.date.Before(since) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
