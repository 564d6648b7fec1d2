package activity

import (
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	GoalID    uuid.UUID `json:"goal_id" db:"goal_id"`
	Date      time.Time `json:"date" db:"date"`
	Minutes   int       `json:"minutes" db:"minutes"`
	Notes     *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type LogActivityRequest struct {
	GoalID  string  `json:"goal_id"`
	Date    string  `json:"date"`
	Minutes int     `json:"minutes"`
	Notes   *string `json:"notes,omitempty"`
}

type EarnedBadge struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PointsBonus int       `json:"points_bonus"`
	Reason      string    `json:"reason"`
}

type LogActivityResponse struct {
	ID                uuid.UUID     `json:"id"`
	GoalID            uuid.UUID     `json:"goal_id"`
	Date              string        `json:"date"`
	Minutes           int           `json:"minutes"`
	PointsEarned      int           `json:"points_earned"`
	CurrentStreak     int           `json:"current_streak"`
	LongestStreak     int           `json:"longest_streak"`
	TotalPoints       int           `json:"total_points"`
	Suspicious        bool          `json:"suspicious"`
	Message           string        `json:"message"`
	NewlyEarnedBadges []EarnedBadge `json:"newly_earned_badges"`
}
