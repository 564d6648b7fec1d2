package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/types/notification"
	"focusforgeAPI/utils"
)

type NotificationService struct {
	store      store.Store
	dispatcher *NotificationDispatcher
	log        *logger.Logger
	now        func() time.Time
}

func NewNotificationService(st store.Store, log *logger.Logger) *NotificationService {
	return &NotificationService{
		store: st,
		log:   log.With("service", "NotificationService"),
		now:   time.Now,
	}
}

// SetDispatcher enables push delivery. Without one, notifications are only stored.
func (s *NotificationService) SetDispatcher(d *NotificationDispatcher) {
	s.dispatcher = d
}

func (s *NotificationService) CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	n := &notification.Notification{
		UserID:    req.UserID,
		Type:      req.Type,
		Status:    notification.StatusPending,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		s.dispatcher.DispatchNotification(n)
	}
	return n, nil
}

// createIfMissing stores a notification unless one of the same type already
// exists for the user since the start of the dedup window.
func (s *NotificationService) createIfMissing(ctx context.Context, req *notification.CreateNotificationRequest, since time.Time) (bool, error) {
	exists, err := s.store.NotificationExistsSince(ctx, req.UserID, req.Type, since)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := s.CreateNotification(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, clerkID string, req *notification.RegisterDeviceRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return apperr.Validation("device token is required")
	}
	userID, err := resolveUserID(ctx, s.store, clerkID)
	if err != nil {
		return err
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	return s.store.RegisterDeviceToken(ctx, userID, notification.DeviceToken{Token: token, Platform: platform})
}

// AutoGenerate creates the daily reminder, streak risk and weekly summary
// notifications a user is due, each at most once per window.
func (s *NotificationService) AutoGenerate(ctx context.Context, userID uuid.UUID) error {
	now := s.now()
	today := utils.DateOnly(now)
	tomorrow := today.AddDate(0, 0, 1)

	summaries, err := s.store.ListDailySummaries(ctx, userID, today.AddDate(0, 0, -6))
	if err != nil {
		return fmt.Errorf("failed to load summaries: %w", err)
	}

	activeToday := false
	weekPoints, weekMinutes, activeDays := 0, 0, 0
	for _, sum := range summaries {
		if sum.Date.After(today) {
			continue
		}
		weekPoints += sum.TotalPoints
		weekMinutes += sum.TotalMinutes
		if sum.ActiveFlag {
			activeDays++
			if sum.Date.Equal(today) {
				activeToday = true
			}
		}
	}

	if !activeToday {
		_, err := s.createIfMissing(ctx, &notification.CreateNotificationRequest{
			UserID:    userID,
			Type:      notification.TypeDailyReminder,
			Title:     "Keep your streak alive today",
			Message:   "You haven't logged activity yet today. A quick session keeps momentum.",
			ExpiresAt: &tomorrow,
		}, today)
		if err != nil {
			return fmt.Errorf("failed to create daily reminder: %w", err)
		}

		streaks, err := s.store.ListUserStreaks(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load streaks: %w", err)
		}
		maxStreak := 0
		for _, st := range streaks {
			if st.CurrentStreak > maxStreak {
				maxStreak = st.CurrentStreak
			}
		}
		if maxStreak > 0 {
			_, err := s.createIfMissing(ctx, &notification.CreateNotificationRequest{
				UserID:    userID,
				Type:      notification.TypeStreakRisk,
				Title:     "Your streak is at risk",
				Message:   fmt.Sprintf("You are on a %d-day streak. Log at least one session today to keep it going.", maxStreak),
				Data:      map[string]any{"streak": maxStreak},
				ExpiresAt: &tomorrow,
			}, today)
			if err != nil {
				return fmt.Errorf("failed to create streak alert: %w", err)
			}
		}
	}

	_, err = s.createIfMissing(ctx, &notification.CreateNotificationRequest{
		UserID:  userID,
		Type:    notification.TypeWeeklySummary,
		Title:   "Your weekly progress summary",
		Message: fmt.Sprintf("Last 7 days: %d points, %d minutes, %d active days.", weekPoints, weekMinutes, activeDays),
		Data: map[string]any{
			"points":      weekPoints,
			"minutes":     weekMinutes,
			"active_days": activeDays,
		},
	}, utils.WeekStart(today))
	if err != nil {
		return fmt.Errorf("failed to create weekly summary: %w", err)
	}
	return nil
}

// SweepAll runs AutoGenerate for every user and returns how many failed.
func (s *NotificationService) SweepAll(ctx context.Context) int {
	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		s.log.Error("notification sweep could not list users", "error", err)
		return 0
	}
	failed := 0
	for _, id := range userIDs {
		if err := s.AutoGenerate(ctx, id); err != nil {
			failed++
			s.log.Warn("notification generation failed", "user_id", id, "error", err)
		}
	}
	s.log.Info("notification sweep finished", "users", len(userIDs), "failed", failed)
	return failed
}
