package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/leaderboard"
	"focusforgeAPI/internal/stats"
	"focusforgeAPI/internal/streak"
	"focusforgeAPI/internal/trust"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/ledger"
	"focusforgeAPI/internal/types/notification"
	"focusforgeAPI/internal/types/user"
)

// RefreshTask is an outbox row asking for a post-commit leaderboard refresh.
type RefreshTask struct {
	ID           int64      `json:"id" db:"id"`
	Category     *string    `json:"category" db:"category"`
	ActivityDate time.Time  `json:"activity_date" db:"activity_date"`
	EnqueuedAt   time.Time  `json:"enqueued_at" db:"enqueued_at"`
	Attempts     int        `json:"attempts" db:"attempts"`
	LastError    *string    `json:"last_error,omitempty" db:"last_error"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// ErrStaleGeneration reports a snapshot write that lost to a newer generation
// of the same scope.
var ErrStaleGeneration = errors.New("a newer leaderboard generation is already stored")

// MaxRefreshAttempts bounds how often a failing outbox row is retried.
const MaxRefreshAttempts = 5

// Queries is the data access surface shared by the pool and a transaction.
// Lookups that find nothing return apperr.ErrNotFound.
type Queries interface {
	// users
	GetUserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error)
	ListUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*user.User, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)

	// goals
	GetGoal(ctx context.Context, goalID uuid.UUID) (*goal.Goal, error)
	ListUserGoals(ctx context.Context, userID uuid.UUID) ([]*goal.Goal, error)
	// ListLeaderboardGoals returns active public goals, optionally limited to
	// a category (case-insensitive).
	ListLeaderboardGoals(ctx context.Context, category *string) ([]*goal.Goal, error)

	// activity entries
	//
	// LockUserDay serializes submissions of one user for one date until the
	// surrounding transaction ends. The daily minutes ceiling and the daily
	// point cap are read-then-write checks and rely on it.
	LockUserDay(ctx context.Context, userID uuid.UUID, date time.Time) error
	ActivityExists(ctx context.Context, userID, goalID uuid.UUID, date time.Time) (bool, error)
	// InsertActivity returns apperr.ErrDuplicateActivity on a (user, goal, date) clash.
	InsertActivity(ctx context.Context, e *activity.Entry) error
	SumMinutesOnDate(ctx context.Context, userID uuid.UUID, date time.Time) (int, error)
	// RecentGoalActivities is ordered by date then creation time, newest first.
	RecentGoalActivities(ctx context.Context, goalID uuid.UUID, limit int) ([]*activity.Entry, error)
	GoalMinutesByDate(ctx context.Context, goalID uuid.UUID) (map[time.Time]int, error)
	// UserActiveDates returns distinct entry dates, restricted to goalIDs when non-nil.
	UserActiveDates(ctx context.Context, userID uuid.UUID, goalIDs []uuid.UUID) ([]time.Time, error)
	ListActivitiesInWindow(ctx context.Context, goalIDs []uuid.UUID, start, end time.Time) ([]*activity.Entry, error)
	DayTotals(ctx context.Context, userID uuid.UUID, start, end time.Time) (*stats.DayTotals, error)

	// streaks
	GetStreak(ctx context.Context, goalID uuid.UUID) (*streak.Streak, error)
	UpsertStreak(ctx context.Context, s *streak.Streak) error
	ListStreaks(ctx context.Context, goalIDs []uuid.UUID) (map[uuid.UUID]*streak.Streak, error)
	ListUserStreaks(ctx context.Context, userID uuid.UUID) ([]*streak.Streak, error)

	// points ledger
	InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error
	SumLedgerOnDate(ctx context.Context, userID uuid.UUID, reason string, date time.Time) (int, error)
	LedgerReasonExists(ctx context.Context, userID uuid.UUID, reason string) (bool, error)
	SumUserPoints(ctx context.Context, userID uuid.UUID) (int, error)
	SumUserPointsForGoals(ctx context.Context, userID uuid.UUID, goalIDs []uuid.UUID) (int, error)
	SumPointsByGoalInWindow(ctx context.Context, goalIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]int, error)

	// badges
	ListBadgeDefinitions(ctx context.Context) ([]*badge.Definition, error)
	InsertBadgeDefinition(ctx context.Context, d *badge.Definition) error
	ListUserAwards(ctx context.Context, userID uuid.UUID) ([]*badge.Award, error)
	AwardExists(ctx context.Context, userID, badgeID uuid.UUID) (bool, error)
	// InsertAward reports false when the (user, badge) pair already exists.
	InsertAward(ctx context.Context, a *badge.Award) (bool, error)

	// trust
	InsertFlag(ctx context.Context, f *trust.Flag) error
	ListFlagsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*trust.Flag, error)
	HasUnreviewedFlags(ctx context.Context, userID uuid.UUID) (bool, error)
	MarkFlagReviewed(ctx context.Context, flagID uuid.UUID) error

	// leaderboard snapshots
	ListSnapshot(ctx context.Context, key leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, error)
	// LatestSnapshot returns the newest generation for a period and category.
	LatestSnapshot(ctx context.Context, period leaderboard.Period, category *string) ([]*leaderboard.SnapshotRow, error)
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)

	// refresh outbox
	EnqueueRefresh(ctx context.Context, category *string, activityDate time.Time) error

	// notifications
	InsertNotification(ctx context.Context, n *notification.Notification) error
	NotificationExistsSince(ctx context.Context, userID uuid.UUID, typ notification.NotificationType, since time.Time) (bool, error)
	ListDeviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error)
	RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error
	MarkNotificationStatus(ctx context.Context, notificationID uuid.UUID, status notification.NotificationStatus) error
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error)

	// rollups
	UpsertDailySummary(ctx context.Context, s *stats.DailySummary) error
	ListDailySummaries(ctx context.Context, userID uuid.UUID, since time.Time) ([]*stats.DailySummary, error)
}

// Store adds the operations that own their transaction boundaries.
type Store interface {
	Queries

	// InTx runs fn inside one transaction, rolling back when fn fails.
	InTx(ctx context.Context, fn func(q Queries) error) error

	// ReplaceSnapshotScope swaps a scope's generation atomically. Writers on
	// the same scope are serialized; readers see the old or the new rows only.
	// A generation older than the stored one is refused with ErrStaleGeneration.
	ReplaceSnapshotScope(ctx context.Context, key leaderboard.ScopeKey, generation int64, rows []*leaderboard.SnapshotRow) error

	// ClaimRefreshTasks leases up to limit pending outbox rows.
	ClaimRefreshTasks(ctx context.Context, limit int) ([]*RefreshTask, error)
	CompleteRefreshTask(ctx context.Context, id int64) error
	FailRefreshTask(ctx context.Context, id int64, cause error) error

	// SeedBadges inserts any catalogue badge whose name is not yet present.
	SeedBadges(ctx context.Context, defs []*badge.Definition) error
}
