package goal

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Goal struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	UserID              uuid.UUID  `json:"user_id" db:"user_id"`
	Title               string     `json:"title" db:"title"`
	Category            *string    `json:"category" db:"category"`
	DailyMinimumMinutes int        `json:"daily_minimum_minutes" db:"daily_minimum_minutes"`
	Difficulty          int        `json:"difficulty" db:"difficulty"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	IsPrivate           bool       `json:"is_private" db:"is_private"`
	StartDate           *time.Time `json:"start_date" db:"start_date"`
	EndDate             *time.Time `json:"end_date" db:"end_date"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}

// InCategory reports whether the goal belongs to category, ignoring case.
// A nil category matches every goal.
func (g *Goal) InCategory(category *string) bool {
	if category == nil {
		return true
	}
	if g.Category == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*g.Category), strings.TrimSpace(*category))
}

// CountsForLeaderboard reports whether activity on this goal may be ranked.
func (g *Goal) CountsForLeaderboard(category *string) bool {
	return g.IsActive && !g.IsPrivate && g.InCategory(category)
}
