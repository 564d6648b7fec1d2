package badge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CriteriaType string

const (
	CriteriaPoints      CriteriaType = "POINTS"
	CriteriaStreak      CriteriaType = "STREAK"
	CriteriaDaysActive  CriteriaType = "DAYS_ACTIVE"
	CriteriaConsistency CriteriaType = "CONSISTENCY"
)

type Scope string

const (
	ScopeGlobal      Scope = "GLOBAL"
	ScopePerGoal     Scope = "PER_GOAL"
	ScopePerCategory Scope = "PER_CATEGORY"
)

type Definition struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	Name           string       `json:"name" db:"name"`
	Description    string       `json:"description" db:"description"`
	IconURL        *string      `json:"icon_url,omitempty" db:"icon_url"`
	CriteriaType   CriteriaType `json:"criteria_type" db:"criteria_type"`
	Scope          Scope        `json:"evaluation_scope" db:"evaluation_scope"`
	TargetCategory *string      `json:"target_category,omitempty" db:"target_category"`
	Threshold      int          `json:"threshold" db:"threshold"`
	PointsBonus    int          `json:"points_bonus" db:"points_bonus"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

func (d *Definition) Validate() error {
	switch d.CriteriaType {
	case CriteriaPoints, CriteriaStreak, CriteriaDaysActive, CriteriaConsistency:
	default:
		return fmt.Errorf("badge %q: unknown criteria type %q", d.Name, d.CriteriaType)
	}
	switch d.Scope {
	case ScopeGlobal, ScopePerGoal:
	case ScopePerCategory:
		if d.TargetCategory == nil || *d.TargetCategory == "" {
			return fmt.Errorf("badge %q: PER_CATEGORY scope requires a target category", d.Name)
		}
	default:
		return fmt.Errorf("badge %q: unknown evaluation scope %q", d.Name, d.Scope)
	}
	return nil
}

type Award struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	BadgeID       uuid.UUID  `json:"badge_id" db:"badge_id"`
	AwardedAt     time.Time  `json:"awarded_at" db:"awarded_at"`
	Reason        string     `json:"reason" db:"reason"`
	RelatedGoalID *uuid.UUID `json:"related_goal_id,omitempty" db:"related_goal_id"`
}

type WithStatus struct {
	Definition
	Earned    bool       `json:"earned"`
	AwardedAt *time.Time `json:"awarded_at,omitempty"`
	Reason    *string    `json:"reason,omitempty"`
}

type BackfillReport struct {
	UsersProcessed int `json:"users_processed"`
	UsersFailed    int `json:"users_failed"`
	UsersAwarded   int `json:"users_awarded"`
	BadgesAwarded  int `json:"badges_awarded"`
}
