package stats

import (
	"time"

	"github.com/google/uuid"
)

// DailySummary is the per-user rollup refreshed after each logged activity.
type DailySummary struct {
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	Date            time.Time `json:"date" db:"date"`
	TotalMinutes    int       `json:"total_minutes" db:"total_minutes"`
	TotalPoints     int       `json:"total_points" db:"total_points"`
	ActivitiesCount int       `json:"activities_count" db:"activities_count"`
	ActiveGoals     int       `json:"active_goals" db:"active_goals"`
	ActiveFlag      bool      `json:"active_flag" db:"active_flag"`
	MaxStreak       int       `json:"max_streak" db:"max_streak"`
	TrustScore      int       `json:"trust_score" db:"trust_score"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// DayTotals are the raw activity figures for one user over a date range.
type DayTotals struct {
	Minutes    int `json:"minutes"`
	Points     int `json:"points"`
	Activities int `json:"activities"`
	Goals      int `json:"goals"`
	ActiveDays int `json:"active_days"`
}
