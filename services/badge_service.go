package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/metrics"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/internal/types/ledger"
	"focusforgeAPI/internal/types/notification"
)

type BadgeService struct {
	store         store.Store
	notifications *NotificationService
	log           *logger.Logger
	now           func() time.Time
}

func NewBadgeService(st store.Store, notifications *NotificationService, log *logger.Logger) *BadgeService {
	return &BadgeService{
		store:         st,
		notifications: notifications,
		log:           log.With("service", "BadgeService"),
		now:           time.Now,
	}
}

// metricsLoader computes badge metrics for one user, limited to the goals of
// category when it is non-nil.
func (s *BadgeService) metricsLoader(userID uuid.UUID) badge.Loader {
	return func(ctx context.Context, category *string) (badge.Metrics, error) {
		goals, err := s.store.ListUserGoals(ctx, userID)
		if err != nil {
			return badge.Metrics{}, err
		}

		goalIDs := make([]uuid.UUID, 0, len(goals))
		titles := make(map[uuid.UUID]string, len(goals))
		for _, g := range goals {
			if !g.InCategory(category) {
				continue
			}
			goalIDs = append(goalIDs, g.ID)
			titles[g.ID] = g.Title
		}

		var total int
		var filter []uuid.UUID
		if category == nil {
			total, err = s.store.SumUserPoints(ctx, userID)
		} else {
			filter = goalIDs
			total, err = s.store.SumUserPointsForGoals(ctx, userID, goalIDs)
		}
		if err != nil {
			return badge.Metrics{}, err
		}

		streakRows, err := s.store.ListStreaks(ctx, goalIDs)
		if err != nil {
			return badge.Metrics{}, err
		}
		streaks := make([]badge.GoalStreak, 0, len(streakRows))
		for _, id := range goalIDs {
			if st, ok := streakRows[id]; ok {
				streaks = append(streaks, badge.GoalStreak{GoalID: id, Title: titles[id], Current: st.CurrentStreak})
			}
		}

		dates, err := s.store.UserActiveDates(ctx, userID, filter)
		if err != nil {
			return badge.Metrics{}, err
		}
		return badge.BuildMetrics(total, streaks, dates), nil
	}
}

// EvaluateAndAward awards every badge the user newly qualifies for.
func (s *BadgeService) EvaluateAndAward(ctx context.Context, userID uuid.UUID) ([]activity.EarnedBadge, error) {
	defs, err := s.store.ListBadgeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	awards, err := s.store.ListUserAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned := make(map[uuid.UUID]bool, len(awards))
	for _, a := range awards {
		earned[a.BadgeID] = true
	}

	candidates, err := badge.Pending(ctx, defs, earned, badge.NewResolver(s.metricsLoader(userID)))
	if err != nil {
		return nil, err
	}

	var out []activity.EarnedBadge
	for _, c := range candidates {
		ok, err := s.award(ctx, userID, c)
		if err != nil {
			if errors.Is(err, apperr.ErrIntegrity) {
				return out, err
			}
			s.log.Error("failed to award badge", "user_id", userID, "badge", c.Definition.Name, "error", err)
			continue
		}
		if !ok {
			continue
		}
		out = append(out, activity.EarnedBadge{
			ID:          c.Definition.ID,
			Name:        c.Definition.Name,
			PointsBonus: c.Definition.PointsBonus,
			Reason:      c.Result.Reason,
		})
		s.afterAward(ctx, userID, c)
	}
	return out, nil
}

// award writes the award row and its bonus in one transaction. It reports
// false when the user already holds the badge.
func (s *BadgeService) award(ctx context.Context, userID uuid.UUID, c badge.Candidate) (bool, error) {
	def := c.Definition
	inserted := false
	err := s.store.InTx(ctx, func(q store.Queries) error {
		exists, err := q.AwardExists(ctx, userID, def.ID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := q.GetUser(ctx, userID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return fmt.Errorf("badge %s for missing user %s: %w", def.Name, userID, apperr.ErrIntegrity)
			}
			return err
		}

		inserted, err = q.InsertAward(ctx, &badge.Award{
			UserID:        userID,
			BadgeID:       def.ID,
			AwardedAt:     s.now(),
			Reason:        c.Result.Reason,
			RelatedGoalID: c.Result.RelatedGoalID,
		})
		if err != nil || !inserted {
			return err
		}

		if def.PointsBonus > 0 {
			return q.InsertLedgerEntry(ctx, &ledger.Entry{
				UserID:        userID,
				GoalID:        c.Result.RelatedGoalID,
				Points:        def.PointsBonus,
				Reason:        ledger.BadgeBonusReason(def.Name),
				ReferenceDate: s.now(),
			})
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *BadgeService) afterAward(ctx context.Context, userID uuid.UUID, c badge.Candidate) {
	def := c.Definition
	metrics.BadgesAwarded.Inc()
	if def.PointsBonus > 0 {
		metrics.PointsAwarded.WithLabelValues("badge-bonus").Add(float64(def.PointsBonus))
	}
	s.log.Info("badge awarded", "user_id", userID, "badge", def.Name, "reason", c.Result.Reason)

	if s.notifications == nil {
		return
	}
	_, err := s.notifications.CreateNotification(ctx, &notification.CreateNotificationRequest{
		UserID:  userID,
		Type:    notification.TypeBadgeEarned,
		Title:   fmt.Sprintf("Badge earned: %s", def.Name),
		Message: c.Result.Reason,
		Data: map[string]any{
			"badge_id":     def.ID.String(),
			"points_bonus": def.PointsBonus,
		},
	})
	if err != nil {
		s.log.Warn("failed to notify badge award", "user_id", userID, "error", err)
	}
}

// Backfill evaluates every user. Per-user failures are logged and counted.
func (s *BadgeService) Backfill(ctx context.Context) (*badge.BackfillReport, error) {
	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &badge.BackfillReport{}
	for _, id := range userIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.UsersProcessed++
		awarded, err := s.EvaluateAndAward(ctx, id)
		if err != nil {
			report.UsersFailed++
			s.log.Error("badge backfill failed for user", "user_id", id, "error", err)
			continue
		}
		if len(awarded) > 0 {
			report.UsersAwarded++
			report.BadgesAwarded += len(awarded)
		}
	}

	s.log.Info("badge backfill finished",
		"users_processed", report.UsersProcessed,
		"users_failed", report.UsersFailed,
		"users_awarded", report.UsersAwarded,
		"badges_awarded", report.BadgesAwarded,
	)
	return report, nil
}

func (s *BadgeService) ListDefinitions(ctx context.Context) ([]*badge.Definition, error) {
	return s.store.ListBadgeDefinitions(ctx)
}

// ListUserBadges returns the whole catalogue with the user's earned status.
func (s *BadgeService) ListUserBadges(ctx context.Context, clerkID string) ([]*badge.WithStatus, error) {
	userID, err := resolveUserID(ctx, s.store, clerkID)
	if err != nil {
		return nil, err
	}
	defs, err := s.store.ListBadgeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	awards, err := s.store.ListUserAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	byBadge := make(map[uuid.UUID]*badge.Award, len(awards))
	for _, a := range awards {
		byBadge[a.BadgeID] = a
	}

	out := make([]*badge.WithStatus, 0, len(defs))
	for _, d := range defs {
		ws := &badge.WithStatus{Definition: *d}
		if a, ok := byBadge[d.ID]; ok {
			awardedAt, reason := a.AwardedAt, a.Reason
			ws.Earned = true
			ws.AwardedAt = &awardedAt
			ws.Reason = &reason
		}
		out = append(out, ws)
	}
	return out, nil
}
