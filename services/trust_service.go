package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/metrics"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/trust"
	"focusforgeAPI/internal/types/notification"
	"focusforgeAPI/utils"
)

const (
	trustLookback      = 30 * 24 * time.Hour
	trustAlertLifetime = 7 * 24 * time.Hour
	patternWindow      = 5
)

type TrustService struct {
	store         store.Store
	limits        trust.Limits
	notifications *NotificationService
	log           *logger.Logger
	now           func() time.Time
}

func NewTrustService(st store.Store, limits trust.Limits, notifications *NotificationService, log *logger.Logger) *TrustService {
	return &TrustService{
		store:         st,
		limits:        limits,
		notifications: notifications,
		log:           log.With("service", "TrustService"),
		now:           time.Now,
	}
}

// ValidateActivity checks the hard ceilings before anything is written and
// returns the minutes the user already logged on date. A breach is flagged
// with high severity and returned as an anti-cheat error.
func (s *TrustService) ValidateActivity(ctx context.Context, userID, goalID uuid.UUID, minutes int, date time.Time) (int, error) {
	already, err := s.CheckCeilings(ctx, s.store, userID, minutes, date)
	if errors.Is(err, apperr.ErrAntiCheat) {
		s.RecordRejection(ctx, userID, goalID, minutes, date, already)
	}
	return already, err
}

// CheckCeilings reads the day's minutes through q and applies the ceilings.
// Inside a transaction holding the user's day lock the answer also covers
// submissions that committed after an earlier check. It never flags.
func (s *TrustService) CheckCeilings(ctx context.Context, q store.Queries, userID uuid.UUID, minutes int, date time.Time) (int, error) {
	already, err := q.SumMinutesOnDate(ctx, userID, date)
	if err != nil {
		return 0, err
	}
	return already, s.limits.Validate(minutes, already)
}

// RecordRejection raises the high severity flag for a ceiling breach.
func (s *TrustService) RecordRejection(ctx context.Context, userID, goalID uuid.UUID, minutes int, date time.Time, alreadyToday int) {
	details := map[string]any{
		"goal_id":       goalID.String(),
		"minutes":       minutes,
		"date":          utils.FormatDate(date),
		"already_today": alreadyToday,
	}
	if err := s.FlagSuspicious(ctx, userID, trust.FlagInvalidActivity, details, trust.SeverityHigh); err != nil {
		s.log.Error("failed to record rejected activity", "user_id", userID, "error", err)
	}
}

func (s *TrustService) NearCeiling(minutes, alreadyToday int) bool {
	return s.limits.NearCeiling(minutes, alreadyToday)
}

// CheckPattern compares a submission with the goal's latest entries and
// raises a medium flag when the durations repeat. It never blocks.
func (s *TrustService) CheckPattern(ctx context.Context, userID, goalID uuid.UUID, minutes int, date time.Time) bool {
	recent, err := s.store.RecentGoalActivities(ctx, goalID, patternWindow)
	if err != nil {
		s.log.Warn("pattern check skipped", "goal_id", goalID, "error", err)
		return false
	}
	entries := make([]trust.RecentEntry, len(recent))
	for i, e := range recent {
		entries[i] = trust.RecentEntry{Minutes: e.Minutes, Date: e.Date}
	}
	if !trust.DetectDuplicatePattern(entries, minutes, date) {
		return false
	}

	details := map[string]any{
		"goal_id": goalID.String(),
		"minutes": minutes,
		"date":    utils.FormatDate(date),
	}
	if err := s.FlagSuspicious(ctx, userID, trust.FlagRepeatedPattern, details, trust.SeverityMedium); err != nil {
		s.log.Warn("failed to flag repeated pattern", "user_id", userID, "error", err)
	}
	return true
}

// FlagSuspicious records a flag and alerts the user. The alert is best effort.
func (s *TrustService) FlagSuspicious(ctx context.Context, userID uuid.UUID, typ trust.FlagType, details map[string]any, severity trust.Severity) error {
	f := &trust.Flag{UserID: userID, Type: typ, Details: details, Severity: severity}
	if err := s.store.InsertFlag(ctx, f); err != nil {
		return err
	}
	metrics.SuspiciousFlags.WithLabelValues(string(typ), string(severity)).Inc()
	s.log.Warn("suspicious activity flagged", "user_id", userID, "type", typ, "severity", severity)

	if s.notifications != nil {
		expires := s.now().Add(trustAlertLifetime)
		_, err := s.notifications.CreateNotification(ctx, &notification.CreateNotificationRequest{
			UserID:    userID,
			Type:      notification.TypeTrustAlert,
			Title:     "Activity flagged for review",
			Message:   "One of your recent entries looked unusual and was flagged for review.",
			Data:      map[string]any{"flag_type": string(typ), "severity": string(severity)},
			ExpiresAt: &expires,
		})
		if err != nil {
			s.log.Warn("failed to send trust alert", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (s *TrustService) recentFlags(ctx context.Context, userID uuid.UUID) ([]*trust.Flag, time.Time, error) {
	now := s.now()
	flags, err := s.store.ListFlagsSince(ctx, userID, now.Add(-trustLookback))
	if err != nil {
		return nil, now, fmt.Errorf("failed to load flags: %w", err)
	}
	return flags, now, nil
}

func (s *TrustService) GetTrustScore(ctx context.Context, userID uuid.UUID) (int, error) {
	flags, now, err := s.recentFlags(ctx, userID)
	if err != nil {
		return 0, err
	}
	return trust.Score(flags, now), nil
}

func (s *TrustService) GetTrustSummary(ctx context.Context, clerkID string) (*trust.Summary, error) {
	userID, err := resolveUserID(ctx, s.store, clerkID)
	if err != nil {
		return nil, err
	}
	flags, now, err := s.recentFlags(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := trust.Summarize(flags, now)
	return &summary, nil
}

func (s *TrustService) IsUnderReview(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.store.HasUnreviewedFlags(ctx, userID)
}

func (s *TrustService) MarkReviewed(ctx context.Context, flagID uuid.UUID) error {
	return s.store.MarkFlagReviewed(ctx, flagID)
}
