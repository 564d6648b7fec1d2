package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/metrics"
	"focusforgeAPI/internal/points"
	"focusforgeAPI/internal/ratelimit"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/streak"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/ledger"
	"focusforgeAPI/utils"
)

// RefreshNotifier is poked after a commit so queued leaderboard refreshes
// are drained without waiting for the next poll.
type RefreshNotifier interface {
	Wake()
}

type ActivityService struct {
	store         store.Store
	rules         config.Gamification
	limiter       ratelimit.Limiter
	trust         *TrustService
	points        *PointsService
	badges        *BadgeService
	analytics     *AnalyticsService
	notifications *NotificationService
	refresh       RefreshNotifier
	log           *logger.Logger
	now           func() time.Time
}

type ActivityDeps struct {
	Limiter       ratelimit.Limiter
	Trust         *TrustService
	Points        *PointsService
	Badges        *BadgeService
	Analytics     *AnalyticsService
	Notifications *NotificationService
}

func NewActivityService(st store.Store, rules config.Gamification, deps ActivityDeps, log *logger.Logger) *ActivityService {
	return &ActivityService{
		store:         st,
		rules:         rules,
		limiter:       deps.Limiter,
		trust:         deps.Trust,
		points:        deps.Points,
		badges:        deps.Badges,
		analytics:     deps.Analytics,
		notifications: deps.Notifications,
		log:           log.With("service", "ActivityService"),
		now:           time.Now,
	}
}

func (s *ActivityService) SetRefreshNotifier(n RefreshNotifier) {
	s.refresh = n
}

// validateEntry applies the submission rules that need no writes.
func (s *ActivityService) validateEntry(g *goal.Goal, userID uuid.UUID, date time.Time, minutes int) error {
	today := utils.DateOnly(s.now())
	if g.UserID != userID {
		return apperr.Validation("goal does not belong to this user")
	}
	if !g.IsActive {
		return apperr.Validation("cannot log activity for inactive goal")
	}
	if date.After(today) {
		return apperr.Validation("cannot log activity in the future")
	}
	if utils.DaysBetween(date, today) > s.rules.MaxPastDays {
		return apperr.Validation("activity date is more than %d days in the past", s.rules.MaxPastDays)
	}
	if minutes < s.rules.MinMinutes || minutes > s.rules.MaxMinutes {
		return apperr.Validation("minutes spent must be between %d and %d", s.rules.MinMinutes, s.rules.MaxMinutes)
	}
	if g.StartDate != nil && date.Before(utils.DateOnly(*g.StartDate)) {
		return apperr.Validation("activity date cannot be before goal start date")
	}
	if g.EndDate != nil && date.After(utils.DateOnly(*g.EndDate)) {
		return apperr.Validation("activity date cannot be after goal end date")
	}
	return nil
}

func (s *ActivityService) checkRate(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		s.log.Warn("submission limiter unavailable", "user_id", userID, "error", err)
		return nil
	}
	if !allowed {
		return fmt.Errorf("too many activity submissions, try again later: %w", apperr.ErrRateLimited)
	}
	return nil
}

type loggedEntry struct {
	entry        *activity.Entry
	streak       streak.Result
	award        points.Award
	alreadyToday int
}

// LogActivity validates and persists one submission. The entry, streak,
// ledger rows and refresh request commit together; badges, rollups and
// notifications follow on a best effort basis.
func (s *ActivityService) LogActivity(ctx context.Context, clerkID string, req *activity.LogActivityRequest) (*activity.LogActivityResponse, error) {
	resp, err := s.logActivity(ctx, clerkID, req)
	switch {
	case err == nil:
		metrics.ActivitiesLogged.WithLabelValues("accepted").Inc()
	case errors.Is(err, apperr.ErrAntiCheat):
		metrics.ActivitiesLogged.WithLabelValues("anti_cheat").Inc()
	case errors.Is(err, apperr.ErrRateLimited):
		metrics.ActivitiesLogged.WithLabelValues("rate_limited").Inc()
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrNotFound):
		metrics.ActivitiesLogged.WithLabelValues("rejected").Inc()
	default:
		metrics.ActivitiesLogged.WithLabelValues("error").Inc()
	}
	return resp, err
}

func (s *ActivityService) logActivity(ctx context.Context, clerkID string, req *activity.LogActivityRequest) (*activity.LogActivityResponse, error) {
	userID, err := resolveUserID(ctx, s.store, clerkID)
	if err != nil {
		return nil, err
	}
	if err := s.checkRate(ctx, userID); err != nil {
		return nil, err
	}

	goalID, err := uuid.Parse(req.GoalID)
	if err != nil {
		return nil, apperr.Validation("invalid goal id")
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		return nil, apperr.Validation("invalid date, expected YYYY-MM-DD")
	}

	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("goal not found: %w", err)
	}
	if err := s.validateEntry(g, userID, date, req.Minutes); err != nil {
		return nil, err
	}
	exists, err := s.store.ActivityExists(ctx, userID, goalID, date)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrDuplicateActivity
	}

	if _, err := s.trust.ValidateActivity(ctx, userID, goalID, req.Minutes, date); err != nil {
		return nil, err
	}
	patternFlagged := s.trust.CheckPattern(ctx, userID, goalID, req.Minutes, date)

	logged, err := s.persist(ctx, g, userID, date, req)
	if err != nil {
		return nil, err
	}
	if s.refresh != nil {
		s.refresh.Wake()
	}

	metrics.PointsAwarded.WithLabelValues(ledger.ReasonActivityCompletion).Add(float64(logged.award.EntryPoints))
	if logged.award.WeeklyBonus > 0 {
		metrics.PointsAwarded.WithLabelValues("weekly-consistency").Add(float64(logged.award.WeeklyBonus))
	}

	earned := s.afterCommit(ctx, userID, date)

	total, err := s.points.TotalPoints(ctx, userID)
	if err != nil {
		s.log.Warn("failed to read total points", "user_id", userID, "error", err)
	}

	suspicious := patternFlagged || s.trust.NearCeiling(req.Minutes, logged.alreadyToday)
	message := "Activity logged successfully"
	if suspicious {
		message = "Activity logged but flagged for review"
	}

	s.log.Info("activity logged",
		"user_id", userID,
		"goal_id", goalID,
		"date", utils.FormatDate(date),
		"minutes", req.Minutes,
		"points", logged.award.Total(),
		"suspicious", suspicious,
	)

	return &activity.LogActivityResponse{
		ID:                logged.entry.ID,
		GoalID:            goalID,
		Date:              utils.FormatDate(date),
		Minutes:           req.Minutes,
		PointsEarned:      logged.award.Total(),
		CurrentStreak:     logged.streak.Current,
		LongestStreak:     logged.streak.Longest,
		TotalPoints:       total,
		Suspicious:        suspicious,
		Message:           message,
		NewlyEarnedBadges: earned,
	}, nil
}

// persist commits the submission. The user's day lock is held for the whole
// transaction, so the ceiling re-check and the daily point cap below see every
// submission for the same date that committed first.
func (s *ActivityService) persist(ctx context.Context, g *goal.Goal, userID uuid.UUID, date time.Time, req *activity.LogActivityRequest) (*loggedEntry, error) {
	out := &loggedEntry{}
	rejected := false
	err := s.store.InTx(ctx, func(q store.Queries) error {
		if err := q.LockUserDay(ctx, userID, date); err != nil {
			return err
		}
		already, err := s.trust.CheckCeilings(ctx, q, userID, req.Minutes, date)
		out.alreadyToday = already
		if err != nil {
			rejected = errors.Is(err, apperr.ErrAntiCheat)
			return err
		}

		e := &activity.Entry{
			UserID:  userID,
			GoalID:  g.ID,
			Date:    date,
			Minutes: req.Minutes,
			Notes:   req.Notes,
		}
		if err := q.InsertActivity(ctx, e); err != nil {
			return err
		}
		out.entry = e

		byDate, err := q.GoalMinutesByDate(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("failed to load goal history: %w", err)
		}
		fresh := streak.Calculate(g.DailyMinimumMinutes, byDate, utils.DateOnly(s.now()))

		stored, err := q.GetStreak(ctx, g.ID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		out.streak = streak.Merge(stored, fresh)
		err = q.UpsertStreak(ctx, &streak.Streak{
			UserID:           userID,
			GoalID:           g.ID,
			CurrentStreak:    out.streak.Current,
			LongestStreak:    out.streak.Longest,
			LastActivityDate: out.streak.LastActivityDate,
		})
		if err != nil {
			return fmt.Errorf("failed to save streak: %w", err)
		}

		out.award, err = s.points.AwardForActivity(ctx, q, g, e, out.streak.Current)
		if err != nil {
			return fmt.Errorf("failed to award points: %w", err)
		}

		return q.EnqueueRefresh(ctx, g.Category, date)
	})
	if err != nil {
		if rejected {
			s.trust.RecordRejection(ctx, userID, g.ID, req.Minutes, date, out.alreadyToday)
		}
		return nil, err
	}
	return out, nil
}

// afterCommit runs the steps whose failure must not undo the submission.
func (s *ActivityService) afterCommit(ctx context.Context, userID uuid.UUID, date time.Time) []activity.EarnedBadge {
	earned := []activity.EarnedBadge{}
	if s.badges != nil {
		awarded, err := s.badges.EvaluateAndAward(ctx, userID)
		if err != nil {
			s.log.Error("badge evaluation failed", "user_id", userID, "error", err)
		}
		earned = append(earned, awarded...)
	}
	if s.analytics != nil {
		if err := s.analytics.UpdateAfterActivity(ctx, userID, date); err != nil {
			s.log.Error("daily summary update failed", "user_id", userID, "error", err)
		}
	}
	if s.notifications != nil {
		if err := s.notifications.AutoGenerate(ctx, userID); err != nil {
			s.log.Error("notification generation failed", "user_id", userID, "error", err)
		}
	}
	return earned
}
