package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/points"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/store/memstore"
	"focusforgeAPI/internal/streak"
	"focusforgeAPI/internal/trust"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/ledger"
	"focusforgeAPI/internal/types/user"
	"focusforgeAPI/utils"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func testToday() time.Time { return utils.DateOnly(testNow) }

func day(offset int) time.Time { return testToday().AddDate(0, 0, offset) }

func testRules() config.Gamification {
	return config.Gamification{
		DailyPointCap:      100,
		WeeklyBonusPoints:  50,
		WeeklyBonusDays:    5,
		MaxMinutesPerEntry: 480,
		MaxMinutesPerDay:   720,
		MinMinutes:         10,
		MaxMinutes:         600,
		MaxPastDays:        30,
		SubmissionsPerHour: 10,
	}
}

type harness struct {
	st            *memstore.Store
	user          *user.User
	goal          *goal.Goal
	notifications *NotificationService
	trust         *TrustService
	points        *PointsService
	badges        *BadgeService
	analytics     *AnalyticsService
	activity      *ActivityService
	leaderboard   *LeaderboardService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := func() time.Time { return testNow }
	log := logger.Nop()

	st := memstore.New()
	st.SetClock(clock)
	require.NoError(t, st.SeedBadges(context.Background(), badge.DefaultCatalog()))

	h := &harness{st: st}
	h.notifications = NewNotificationService(st, log)
	h.notifications.now = clock
	h.trust = NewTrustService(st, trust.DefaultLimits(), h.notifications, log)
	h.trust.now = clock
	h.points = NewPointsService(st, points.DefaultRules(), log)
	h.badges = NewBadgeService(st, h.notifications, log)
	h.badges.now = clock
	h.analytics = NewAnalyticsService(st, h.trust, log)
	h.analytics.now = clock
	h.activity = NewActivityService(st, testRules(), ActivityDeps{
		Trust:         h.trust,
		Points:        h.points,
		Badges:        h.badges,
		Analytics:     h.analytics,
		Notifications: h.notifications,
	}, log)
	h.activity.now = clock
	h.leaderboard = NewLeaderboardService(st, nil, config.Leaderboard{
		Categories:    []string{"Coding", "Health"},
		RetentionDays: 90,
		Concurrency:   2,
	}, log)
	h.leaderboard.now = clock

	h.user = h.addUser("clerk_alice", "alice")
	h.goal = h.addGoal(h.user.ID, "Coding", 3)
	return h
}

func (h *harness) addUser(clerkID, username string) *user.User {
	u := &user.User{ClerkID: clerkID, Username: username}
	h.st.AddUser(u)
	return u
}

func (h *harness) addGoal(userID uuid.UUID, category string, difficulty int) *goal.Goal {
	c := category
	start := day(-60)
	g := &goal.Goal{
		UserID:              userID,
		Title:               category + " practice",
		Category:            &c,
		DailyMinimumMinutes: 30,
		Difficulty:          difficulty,
		IsActive:            true,
		StartDate:           &start,
	}
	h.st.AddGoal(g)
	return g
}

func (h *harness) log(t *testing.T, clerkID string, g *goal.Goal, date time.Time, minutes int) (*activity.LogActivityResponse, error) {
	t.Helper()
	return h.activity.LogActivity(context.Background(), clerkID, &activity.LogActivityRequest{
		GoalID:  g.ID.String(),
		Date:    utils.FormatDate(date),
		Minutes: minutes,
	})
}

// seedDay writes an entry, its points and the goal's current streak directly.
func (h *harness) seedDay(t *testing.T, g *goal.Goal, date time.Time, minutes, pts, currentStreak int) {
	t.Helper()
	err := h.st.InTx(context.Background(), func(q store.Queries) error {
		if err := q.InsertActivity(context.Background(), &activity.Entry{UserID: g.UserID, GoalID: g.ID, Date: date, Minutes: minutes}); err != nil {
			return err
		}
		goalID := g.ID
		if err := q.InsertLedgerEntry(context.Background(), &ledger.Entry{
			UserID:        g.UserID,
			GoalID:        &goalID,
			Points:        pts,
			Reason:        ledger.ReasonActivityCompletion,
			ReferenceDate: date,
		}); err != nil {
			return err
		}
		last := date
		return q.UpsertStreak(context.Background(), &streak.Streak{
			UserID:           g.UserID,
			GoalID:           g.ID,
			CurrentStreak:    currentStreak,
			LongestStreak:    currentStreak,
			LastActivityDate: &last,
		})
	})
	require.NoError(t, err)
}

func (h *harness) ledgerSum(userID uuid.UUID, reason string, date time.Time) int {
	total := 0
	for _, e := range h.st.LedgerEntries(userID) {
		if e.Reason == reason && utils.DateOnly(e.ReferenceDate).Equal(date) {
			total += e.Points
		}
	}
	return total
}
