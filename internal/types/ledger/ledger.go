package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReasonActivityCompletion = "activity-completion"
	reasonWeeklyPrefix       = "weekly-consistency:"
	reasonBadgePrefix        = "badge bonus: "
)

type Entry struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	GoalID        *uuid.UUID `json:"goal_id,omitempty" db:"goal_id"`
	Points        int        `json:"points" db:"points"`
	Reason        string     `json:"reason" db:"reason"`
	ReferenceDate time.Time  `json:"reference_date" db:"reference_date"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// WeeklyConsistencyReason keys the once-per-week bonus on the Monday it belongs to.
func WeeklyConsistencyReason(weekStart time.Time) string {
	return reasonWeeklyPrefix + weekStart.Format("2006-01-02")
}

func BadgeBonusReason(badgeName string) string {
	return reasonBadgePrefix + badgeName
}
