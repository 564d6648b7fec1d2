package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/points"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/ledger"
)

type PointsService struct {
	store store.Store
	rules points.Rules
	log   *logger.Logger
}

func NewPointsService(st store.Store, rules points.Rules, log *logger.Logger) *PointsService {
	return &PointsService{store: st, rules: rules, log: log.With("service", "PointsService")}
}

// AwardForActivity scores a freshly inserted entry and writes the ledger rows.
// It runs on q so the reads see the uncommitted entry. The caller holds the
// user's day lock; without it two submissions for one date could both read
// the same awarded total and overshoot the daily cap.
func (s *PointsService) AwardForActivity(ctx context.Context, q store.Queries, g *goal.Goal, e *activity.Entry, currentStreak int) (points.Award, error) {
	awardedToday, err := q.SumLedgerOnDate(ctx, e.UserID, ledger.ReasonActivityCompletion, e.Date)
	if err != nil {
		return points.Award{}, err
	}
	goalMinutes, err := q.GoalMinutesByDate(ctx, g.ID)
	if err != nil {
		return points.Award{}, err
	}

	breakdown := s.rules.Score(points.Input{
		Difficulty:    g.Difficulty,
		Minutes:       e.Minutes,
		CurrentStreak: currentStreak,
		Date:          e.Date,
		GoalMinutes:   goalMinutes,
		AwardedToday:  awardedToday,
	})
	award := points.Award{Breakdown: breakdown, EntryPoints: breakdown.Points}

	if award.EntryPoints > 0 {
		goalID := g.ID
		err := q.InsertLedgerEntry(ctx, &ledger.Entry{
			UserID:        e.UserID,
			GoalID:        &goalID,
			Points:        award.EntryPoints,
			Reason:        ledger.ReasonActivityCompletion,
			ReferenceDate: e.Date,
		})
		if err != nil {
			return points.Award{}, err
		}
	}

	bonus, err := s.awardWeeklyBonus(ctx, q, e)
	if err != nil {
		return points.Award{}, err
	}
	award.WeeklyBonus = bonus

	s.log.Debug("points awarded",
		"user_id", e.UserID,
		"goal_id", g.ID,
		"raw", breakdown.Raw,
		"multiplier", breakdown.Multiplier,
		"entry_points", award.EntryPoints,
		"weekly_bonus", award.WeeklyBonus,
	)
	return award, nil
}

func (s *PointsService) awardWeeklyBonus(ctx context.Context, q store.Queries, e *activity.Entry) (int, error) {
	if s.rules.WeeklyBonusPoints <= 0 {
		return 0, nil
	}
	dates, err := q.UserActiveDates(ctx, e.UserID, nil)
	if err != nil {
		return 0, err
	}
	due, weekStart := s.rules.WeeklyBonusDue(dates, e.Date)
	if !due {
		return 0, nil
	}

	reason := ledger.WeeklyConsistencyReason(weekStart)
	exists, err := q.LedgerReasonExists(ctx, e.UserID, reason)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	err = q.InsertLedgerEntry(ctx, &ledger.Entry{
		UserID:        e.UserID,
		Points:        s.rules.WeeklyBonusPoints,
		Reason:        reason,
		ReferenceDate: e.Date,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to award weekly bonus: %w", err)
	}
	return s.rules.WeeklyBonusPoints, nil
}

func (s *PointsService) TotalPoints(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.SumUserPoints(ctx, userID)
}
