package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/stats"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/utils"
)

const maxSummaryDays = 90

type AnalyticsService struct {
	store store.Store
	trust *TrustService
	log   *logger.Logger
	now   func() time.Time
}

func NewAnalyticsService(st store.Store, trust *TrustService, log *logger.Logger) *AnalyticsService {
	return &AnalyticsService{
		store: st,
		trust: trust,
		log:   log.With("service", "AnalyticsService"),
		now:   time.Now,
	}
}

// UpdateAfterActivity rebuilds the user's rollup row for date.
func (s *AnalyticsService) UpdateAfterActivity(ctx context.Context, userID uuid.UUID, date time.Time) error {
	date = utils.DateOnly(date)

	totals, err := s.store.DayTotals(ctx, userID, date, date)
	if err != nil {
		return err
	}

	streaks, err := s.store.ListUserStreaks(ctx, userID)
	if err != nil {
		return err
	}
	maxStreak := 0
	for _, st := range streaks {
		if st.CurrentStreak > maxStreak {
			maxStreak = st.CurrentStreak
		}
	}

	trustScore := 100
	if s.trust != nil {
		trustScore, err = s.trust.GetTrustScore(ctx, userID)
		if err != nil {
			return err
		}
	}

	summary := &stats.DailySummary{
		UserID:          userID,
		Date:            date,
		TotalMinutes:    totals.Minutes,
		TotalPoints:     totals.Points,
		ActivitiesCount: totals.Activities,
		ActiveGoals:     totals.Goals,
		ActiveFlag:      totals.Activities > 0,
		MaxStreak:       maxStreak,
		TrustScore:      trustScore,
	}
	if err := s.store.UpsertDailySummary(ctx, summary); err != nil {
		return fmt.Errorf("failed to update daily summary: %w", err)
	}
	return nil
}

// GetDailySummaries returns the user's rollups for the last days days, today included.
func (s *AnalyticsService) GetDailySummaries(ctx context.Context, clerkID string, days int) ([]*stats.DailySummary, error) {
	if days <= 0 {
		days = 7
	}
	if days > maxSummaryDays {
		days = maxSummaryDays
	}
	userID, err := resolveUserID(ctx, s.store, clerkID)
	if err != nil {
		return nil, err
	}
	since := utils.DateOnly(s.now()).AddDate(0, 0, -(days - 1))
	return s.store.ListDailySummaries(ctx, userID, since)
}
