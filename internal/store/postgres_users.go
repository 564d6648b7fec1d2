package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"focusforgeAPI/internal/types/goal"
	"focusforgeAPI/internal/types/user"
)

func (q *pgQueries) GetUserIDByClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := q.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return uuid.Nil, notFound(err, "user")
	}
	return userID, nil
}

const userColumns = `id, clerk_id, username, image_url, privacy, created_at`

func scanUser(row interface{ Scan(...any) error }) (*user.User, error) {
	u := &user.User{}
	var privacy []byte
	if err := row.Scan(&u.ID, &u.ClerkID, &u.Username, &u.ImageURL, &privacy, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Privacy = privacy
	return u, nil
}

func (q *pgQueries) GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (q *pgQueries) ListUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*user.User, error) {
	out := make(map[uuid.UUID]*user.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, uuidStrings(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (q *pgQueries) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const goalColumns = `id, user_id, title, category, daily_minimum_minutes, difficulty,
	is_active, is_private, start_date, end_date, created_at`

func scanGoal(row interface{ Scan(...any) error }) (*goal.Goal, error) {
	g := &goal.Goal{}
	err := row.Scan(&g.ID, &g.UserID, &g.Title, &g.Category, &g.DailyMinimumMinutes, &g.Difficulty,
		&g.IsActive, &g.IsPrivate, &g.StartDate, &g.EndDate, &g.CreatedAt)
	return g, err
}

func (q *pgQueries) GetGoal(ctx context.Context, goalID uuid.UUID) (*goal.Goal, error) {
	g, err := scanGoal(q.db.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, goalID))
	if err != nil {
		return nil, notFound(err, "goal")
	}
	return g, nil
}

func (q *pgQueries) queryGoals(ctx context.Context, query string, args ...any) ([]*goal.Goal, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (q *pgQueries) ListUserGoals(ctx context.Context, userID uuid.UUID) ([]*goal.Goal, error) {
	return q.queryGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (q *pgQueries) ListLeaderboardGoals(ctx context.Context, category *string) ([]*goal.Goal, error) {
	return q.queryGoals(ctx, `
		SELECT `+goalColumns+`
		FROM goals
		WHERE is_active = TRUE
		  AND is_private = FALSE
		  AND ($1::text IS NULL OR LOWER(TRIM(category)) = LOWER(TRIM($1::text)))
	`, category)
}
