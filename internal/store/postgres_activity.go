package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/stats"
	"focusforgeAPI/internal/streak"
	"focusforgeAPI/internal/types/activity"
)

// LockUserDay takes a transaction-scoped advisory lock. Outside a transaction
// it is released as soon as the statement ends.
func (q *pgQueries) LockUserDay(ctx context.Context, userID uuid.UUID, date time.Time) error {
	lockKey := fmt.Sprintf("activity:%s:%s", userID, date.Format("2006-01-02"))
	if _, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("failed to lock submissions for %s: %w", lockKey, err)
	}
	return nil
}

func (q *pgQueries) ActivityExists(ctx context.Context, userID, goalID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM activity_entries WHERE user_id = $1 AND goal_id = $2 AND date = $3)
	`, userID, goalID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing activity: %w", err)
	}
	return exists, nil
}

func (q *pgQueries) InsertActivity(ctx context.Context, e *activity.Entry) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO activity_entries (id, user_id, goal_id, date, minutes, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.UserID, e.GoalID, e.Date, e.Minutes, e.Notes).Scan(&e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrDuplicateActivity
		}
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (q *pgQueries) SumMinutesOnDate(ctx context.Context, userID uuid.UUID, date time.Time) (int, error) {
	var total int
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(minutes), 0) FROM activity_entries WHERE user_id = $1 AND date = $2
	`, userID, date).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum minutes: %w", err)
	}
	return total, nil
}

func (q *pgQueries) RecentGoalActivities(ctx context.Context, goalID uuid.UUID, limit int) ([]*activity.Entry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, goal_id, date, minutes, notes, created_at
		FROM activity_entries
		WHERE goal_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2
	`, goalID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activities: %w", err)
	}
	defer rows.Close()

	var out []*activity.Entry
	for rows.Next() {
		e := &activity.Entry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.GoalID, &e.Date, &e.Minutes, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *pgQueries) GoalMinutesByDate(ctx context.Context, goalID uuid.UUID) (map[time.Time]int, error) {
	rows, err := q.db.Query(ctx, `
		SELECT date, SUM(minutes) FROM activity_entries WHERE goal_id = $1 GROUP BY date
	`, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goal history: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time]int)
	for rows.Next() {
		var d time.Time
		var m int
		if err := rows.Scan(&d, &m); err != nil {
			return nil, fmt.Errorf("failed to scan goal history: %w", err)
		}
		out[d] = m
	}
	return out, rows.Err()
}

func (q *pgQueries) UserActiveDates(ctx context.Context, userID uuid.UUID, goalIDs []uuid.UUID) ([]time.Time, error) {
	var filter []string
	if goalIDs != nil {
		filter = uuidStrings(goalIDs)
	}
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT date
		FROM activity_entries
		WHERE user_id = $1
		  AND ($2::uuid[] IS NULL OR goal_id = ANY($2::uuid[]))
		ORDER BY date
	`, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list active dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan active date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *pgQueries) ListActivitiesInWindow(ctx context.Context, goalIDs []uuid.UUID, start, end time.Time) ([]*activity.Entry, error) {
	if len(goalIDs) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, goal_id, date, minutes, notes, created_at
		FROM activity_entries
		WHERE goal_id = ANY($1::uuid[])
		  AND date BETWEEN $2 AND $3
	`, uuidStrings(goalIDs), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities in window: %w", err)
	}
	defer rows.Close()

	var out []*activity.Entry
	for rows.Next() {
		e := &activity.Entry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.GoalID, &e.Date, &e.Minutes, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *pgQueries) DayTotals(ctx context.Context, userID uuid.UUID, start, end time.Time) (*stats.DayTotals, error) {
	t := &stats.DayTotals{}
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(minutes), 0), COUNT(*), COUNT(DISTINCT goal_id), COUNT(DISTINCT date)
		FROM activity_entries
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
	`, userID, start, end).Scan(&t.Minutes, &t.Activities, &t.Goals, &t.ActiveDays)
	if err != nil {
		return nil, fmt.Errorf("failed to total activities: %w", err)
	}

	err = q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM points_ledger
		WHERE user_id = $1 AND reference_date BETWEEN $2 AND $3
	`, userID, start, end).Scan(&t.Points)
	if err != nil {
		return nil, fmt.Errorf("failed to total points: %w", err)
	}
	return t, nil
}

const streakColumns = `id, user_id, goal_id, current_streak, longest_streak, last_activity_date, created_at, updated_at`

func scanStreak(row interface{ Scan(...any) error }) (*streak.Streak, error) {
	s := &streak.Streak{}
	err := row.Scan(&s.ID, &s.UserID, &s.GoalID, &s.CurrentStreak, &s.LongestStreak, &s.LastActivityDate, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (q *pgQueries) GetStreak(ctx context.Context, goalID uuid.UUID) (*streak.Streak, error) {
	s, err := scanStreak(q.db.QueryRow(ctx, `SELECT `+streakColumns+` FROM goal_streaks WHERE goal_id = $1`, goalID))
	if err != nil {
		return nil, notFound(err, "streak")
	}
	return s, nil
}

func (q *pgQueries) UpsertStreak(ctx context.Context, s *streak.Streak) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO goal_streaks (id, user_id, goal_id, current_streak, longest_streak, last_activity_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (goal_id)
		DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = GREATEST(goal_streaks.longest_streak, EXCLUDED.longest_streak),
			last_activity_date = EXCLUDED.last_activity_date,
			updated_at = NOW()
		RETURNING id, longest_streak, created_at, updated_at
	`, s.ID, s.UserID, s.GoalID, s.CurrentStreak, s.LongestStreak, s.LastActivityDate).
		Scan(&s.ID, &s.LongestStreak, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert streak: %w", err)
	}
	return nil
}

func (q *pgQueries) ListStreaks(ctx context.Context, goalIDs []uuid.UUID) (map[uuid.UUID]*streak.Streak, error) {
	out := make(map[uuid.UUID]*streak.Streak, len(goalIDs))
	if len(goalIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+streakColumns+` FROM goal_streaks WHERE goal_id = ANY($1::uuid[])`, uuidStrings(goalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list streaks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		out[s.GoalID] = s
	}
	return out, rows.Err()
}

func (q *pgQueries) ListUserStreaks(ctx context.Context, userID uuid.UUID) ([]*streak.Streak, error) {
	rows, err := q.db.Query(ctx, `SELECT `+streakColumns+` FROM goal_streaks WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user streaks: %w", err)
	}
	defer rows.Close()

	var out []*streak.Streak
	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
