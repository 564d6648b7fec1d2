package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeBadgeEarned   NotificationType = "BADGE_EARNED"
	TypeTrustAlert    NotificationType = "TRUST_ALERT"
	TypeStreakRisk    NotificationType = "STREAK_RISK"
	TypeDailyReminder NotificationType = "DAILY_REMINDER"
	TypeWeeklySummary NotificationType = "WEEKLY_SUMMARY"
)

type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

type Notification struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	UserID    uuid.UUID          `json:"user_id" db:"user_id"`
	Type      NotificationType   `json:"type" db:"type"`
	Status    NotificationStatus `json:"status" db:"status"`
	Title     string             `json:"title" db:"title"`
	Message   string             `json:"message" db:"message"`
	Data      map[string]any     `json:"data,omitempty" db:"data"`
	IsRead    bool               `json:"is_read" db:"is_read"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty" db:"expires_at"`
}

type CreateNotificationRequest struct {
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

type DeviceToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
