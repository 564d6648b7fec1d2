package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/points"
	"focusforgeAPI/internal/store/memstore"
	"focusforgeAPI/internal/trust"
	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/user"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"
	"focusforgeAPI/utils"
)

type denyAll struct{}

func (denyAll) Allow(context.Context, uuid.UUID) (bool, error) { return false, nil }

type api struct {
	st            *memstore.Store
	user          *user.User
	goal          *goal.Goal
	activity      *ActivityHandler
	leaderboard   *LeaderboardHandler
	trust         *TrustHandler
	badges        *BadgeHandler
	admin         *AdminHandler
	analytics     *AnalyticsHandler
	notifications *NotificationHandler
}

func rules() config.Gamification {
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

func newAPI(t *testing.T, deps services.ActivityDeps) *api {
	t.Helper()
	log := logger.Nop()
	st := memstore.New()
	require.NoError(t, st.SeedBadges(context.Background(), badge.DefaultCatalog()))

	notificationService := services.NewNotificationService(st, log)
	trustService := services.NewTrustService(st, trust.DefaultLimits(), notificationService, log)
	badgeService := services.NewBadgeService(st, notificationService, log)
	analyticsService := services.NewAnalyticsService(st, trustService, log)
	deps.Trust = trustService
	deps.Points = services.NewPointsService(st, points.DefaultRules(), log)
	deps.Badges = badgeService
	deps.Analytics = analyticsService
	deps.Notifications = notificationService
	activityService := services.NewActivityService(st, rules(), deps, log)
	leaderboardService := services.NewLeaderboardService(st, nil, config.Leaderboard{
		Categories:    []string{"Coding"},
		RetentionDays: 90,
		Concurrency:   2,
	}, log)

	a := &api{
		st:            st,
		activity:      NewActivityHandler(activityService, log),
		leaderboard:   NewLeaderboardHandler(leaderboardService, log),
		trust:         NewTrustHandler(trustService, log),
		badges:        NewBadgeHandler(badgeService, log),
		admin:         NewAdminHandler(badgeService, leaderboardService, log),
		analytics:     NewAnalyticsHandler(analyticsService, log),
		notifications: NewNotificationHandler(notificationService, log),
	}

	a.user = &user.User{ClerkID: "clerk_alice", Username: "alice"}
	st.AddUser(a.user)
	category := "Coding"
	start := utils.AddDays(time.Now(), -60)
	a.goal = &goal.Goal{
		UserID:              a.user.ID,
		Title:               "Coding practice",
		Category:            &category,
		DailyMinimumMinutes: 30,
		Difficulty:          3,
		IsActive:            true,
		StartDate:           &start,
	}
	st.AddGoal(a.goal)
	return a
}

func request(method, target, clerkID string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clerkID != "" {
		req = req.WithContext(middleware.WithClerkID(req.Context(), clerkID))
	}
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rr, &body)
	return body["error"]
}

func (a *api) logBody(daysAgo, minutes int) map[string]interface{} {
	return map[string]interface{}{
		"goal_id": a.goal.ID.String(),
		"date":    utils.FormatDate(utils.AddDays(time.Now().UTC(), -daysAgo)),
		"minutes": minutes,
	}
}

func TestLogActivityHandler(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})

	rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", "clerk_alice", a.logBody(1, 45)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		ID                uuid.UUID `json:"id"`
		PointsEarned      int       `json:"points_earned"`
		CurrentStreak     int       `json:"current_streak"`
		TotalPoints       int       `json:"total_points"`
		Suspicious        bool      `json:"suspicious"`
		Message           string    `json:"message"`
		NewlyEarnedBadges []struct {
			Name string `json:"name"`
		} `json:"newly_earned_badges"`
	}
	decode(t, rr, &resp)
	assert.NotEqual(t, uuid.Nil, resp.ID)
	assert.Positive(t, resp.PointsEarned)
	assert.GreaterOrEqual(t, resp.TotalPoints, resp.PointsEarned)
	assert.False(t, resp.Suspicious)
	assert.Equal(t, "Activity logged successfully", resp.Message)
	require.NotEmpty(t, resp.NewlyEarnedBadges)
	assert.Equal(t, "First Steps", resp.NewlyEarnedBadges[0].Name)
}

func TestLogActivityHandlerErrors(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})
	rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", "clerk_alice", a.logBody(2, 30)))
	require.Equal(t, http.StatusCreated, rr.Code)

	tests := []struct {
		name       string
		clerkID    string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{"unauthenticated", "", a.logBody(1, 30), http.StatusUnauthorized, "User not authenticated"},
		{"malformed json", "clerk_alice", "{", http.StatusBadRequest, "Invalid request body"},
		{"duplicate date", "clerk_alice", a.logBody(2, 30), http.StatusBadRequest, "activity already logged for this goal on this date"},
		{"too few minutes", "clerk_alice", a.logBody(1, 5), http.StatusBadRequest, "minutes spent must be between 10 and 600"},
		{"future date", "clerk_alice", a.logBody(-1, 30), http.StatusBadRequest, "cannot log activity in the future"},
		{"over entry ceiling", "clerk_alice", a.logBody(3, 500), http.StatusUnprocessableEntity, ""},
		{"unknown user", "clerk_nobody", a.logBody(1, 30), http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", tt.clerkID, tt.body))
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			msg := errorOf(t, rr)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestLogActivityHandlerRateLimited(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{Limiter: denyAll{}})

	rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", "clerk_alice", a.logBody(1, 30)))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestLeaderboardHandlers(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})
	rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", "clerk_alice", a.logBody(1, 45)))
	require.Equal(t, http.StatusCreated, rr.Code)

	t.Run("on-demand board", func(t *testing.T) {
		rr := serve(a.leaderboard.GetLeaderboard, request(http.MethodGet, "/api/v1/leaderboard?category=coding&period=weekly", "", nil))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var board struct {
			Rankings []struct {
				Rank     int       `json:"rank"`
				UserID   uuid.UUID `json:"user_id"`
				Username string    `json:"username"`
				Score    float64   `json:"score"`
			} `json:"rankings"`
			Period       string  `json:"period"`
			Category     *string `json:"category"`
			FromSnapshot bool    `json:"from_snapshot"`
		}
		decode(t, rr, &board)
		require.Len(t, board.Rankings, 1)
		assert.Equal(t, 1, board.Rankings[0].Rank)
		assert.Equal(t, "alice", board.Rankings[0].Username)
		assert.Equal(t, "WEEKLY", board.Period)
		require.NotNil(t, board.Category)
		assert.Equal(t, "Coding", *board.Category)
		assert.False(t, board.FromSnapshot)
	})

	t.Run("unknown period", func(t *testing.T) {
		rr := serve(a.leaderboard.GetLeaderboard, request(http.MethodGet, "/api/v1/leaderboard?period=daily", "", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("my rank", func(t *testing.T) {
		rr := serve(a.leaderboard.GetMyRank, request(http.MethodGet, "/api/v1/leaderboard/me", "clerk_alice", nil))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var rc struct {
			MyRank *struct {
				Rank int `json:"rank"`
			} `json:"my_rank"`
			TotalParticipants int  `json:"total_participants"`
			NotRanked         bool `json:"not_ranked"`
		}
		decode(t, rr, &rc)
		require.NotNil(t, rc.MyRank)
		assert.Equal(t, 1, rc.MyRank.Rank)
		assert.Equal(t, 1, rc.TotalParticipants)
		assert.False(t, rc.NotRanked)
	})

	t.Run("my rank requires auth", func(t *testing.T) {
		rr := serve(a.leaderboard.GetMyRank, request(http.MethodGet, "/api/v1/leaderboard/me", "", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("categories", func(t *testing.T) {
		rr := serve(a.leaderboard.GetCategories, request(http.MethodGet, "/api/v1/leaderboard/categories", "", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Categories []string `json:"categories"`
		}
		decode(t, rr, &body)
		assert.Equal(t, []string{"Coding"}, body.Categories)
	})
}

func TestAdminRecomputeServesSnapshots(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})
	rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", "clerk_alice", a.logBody(1, 45)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(a.admin.RecomputeLeaderboards, request(http.MethodPost, "/api/v1/admin/leaderboard/recompute", "", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(a.leaderboard.GetLeaderboard, request(http.MethodGet, "/api/v1/leaderboard", "", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var board struct {
		Rankings     []json.RawMessage `json:"rankings"`
		FromSnapshot bool              `json:"from_snapshot"`
	}
	decode(t, rr, &board)
	assert.True(t, board.FromSnapshot)
	assert.Len(t, board.Rankings, 1)
}

func TestAdminBackfill(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})

	rr := serve(a.admin.BackfillBadges, request(http.MethodPost, "/api/v1/admin/badges/backfill", "", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report badge.BackfillReport
	decode(t, rr, &report)
	assert.Equal(t, 1, report.UsersProcessed)
	assert.Zero(t, report.UsersFailed)
}

type failingJobs struct{}

func (failingJobs) Backfill(context.Context) (*badge.BackfillReport, error) {
	return nil, errors.New("connection reset")
}

func (failingJobs) RecomputeAll(context.Context) error {
	return fmt.Errorf("2 of 10 scopes failed: %w", errors.New("connection reset"))
}

func TestAdminJobFailuresHideInternals(t *testing.T) {
	h := NewAdminHandler(failingJobs{}, failingJobs{}, logger.Nop())

	rr := serve(h.BackfillBadges, request(http.MethodPost, "/api/v1/admin/badges/backfill", "", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Badge backfill failed", errorOf(t, rr))

	rr = serve(h.RecomputeLeaderboards, request(http.MethodPost, "/api/v1/admin/leaderboard/recompute", "", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Leaderboard recompute failed", errorOf(t, rr))
}

func TestTrustHandler(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})

	rr := serve(a.trust.GetTrustSummary, request(http.MethodGet, "/api/v1/trust", "clerk_alice", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var summary trust.Summary
	decode(t, rr, &summary)
	assert.Equal(t, 100, summary.Score)
	assert.Zero(t, summary.SignalsLast30Days)

	rr = serve(a.trust.GetTrustSummary, request(http.MethodGet, "/api/v1/trust", "clerk_nobody", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBadgeHandlers(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})
	rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", "clerk_alice", a.logBody(1, 45)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(a.badges.ListBadges, request(http.MethodGet, "/api/v1/badges", "", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var defs []json.RawMessage
	decode(t, rr, &defs)
	assert.Len(t, defs, len(badge.DefaultCatalog()))

	rr = serve(a.badges.ListMyBadges, request(http.MethodGet, "/api/v1/badges/me", "clerk_alice", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var mine []struct {
		Name   string `json:"name"`
		Earned bool   `json:"earned"`
	}
	decode(t, rr, &mine)
	earned := 0
	for _, b := range mine {
		if b.Earned {
			earned++
			assert.Equal(t, "First Steps", b.Name)
		}
	}
	assert.Equal(t, 1, earned)
}

func TestAnalyticsHandler(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})
	rr := serve(a.activity.LogActivity, request(http.MethodPost, "/api/v1/activities", "clerk_alice", a.logBody(1, 45)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(a.analytics.GetDailySummaries, request(http.MethodGet, "/api/v1/analytics/summaries?days=abc", "clerk_alice", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(a.analytics.GetDailySummaries, request(http.MethodGet, "/api/v1/analytics/summaries?days=7", "clerk_alice", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var summaries []struct {
		TotalMinutes int `json:"total_minutes"`
	}
	decode(t, rr, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, 45, summaries[0].TotalMinutes)
}

func TestRegisterDeviceHandler(t *testing.T) {
	a := newAPI(t, services.ActivityDeps{})

	rr := serve(a.notifications.RegisterDevice, request(http.MethodPost, "/api/v1/notifications/register-device", "clerk_alice",
		map[string]string{"token": "fcm-token-1", "platform": "iOS"}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	tokens, err := a.st.ListDeviceTokens(context.Background(), a.user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "fcm-token-1", tokens[0].Token)

	rr = serve(a.notifications.RegisterDevice, request(http.MethodPost, "/api/v1/notifications/register-device", "clerk_alice",
		map[string]string{"token": " ", "platform": "ios"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "device token is required", errorOf(t, rr))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperr.ErrDuplicateActivity), http.StatusBadRequest},
		{apperr.AntiCheat("too much"), http.StatusUnprocessableEntity},
		{fmt.Errorf("goal not found: %w", apperr.ErrNotFound), http.StatusNotFound},
		{apperr.ErrRateLimited, http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
