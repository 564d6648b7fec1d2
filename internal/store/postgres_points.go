package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/trust"
	"focusforgeAPI/internal/types/ledger"
)

func (q *pgQueries) InsertLedgerEntry(ctx context.Context, e *ledger.Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO points_ledger (id, user_id, goal_id, points, reason, reference_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.UserID, e.GoalID, e.Points, e.Reason, e.ReferenceDate).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (q *pgQueries) SumLedgerOnDate(ctx context.Context, userID uuid.UUID, reason string, date time.Time) (int, error) {
	var total int
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM points_ledger
		WHERE user_id = $1 AND reason = $2 AND reference_date = $3
	`, userID, reason, date).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return total, nil
}

func (q *pgQueries) LedgerReasonExists(ctx context.Context, userID uuid.UUID, reason string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM points_ledger WHERE user_id = $1 AND reason = $2)
	`, userID, reason).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger reason: %w", err)
	}
	return exists, nil
}

func (q *pgQueries) SumUserPoints(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := q.db.QueryRow(ctx, `SELECT COALESCE(SUM(points), 0) FROM points_ledger WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum user points: %w", err)
	}
	return total, nil
}

func (q *pgQueries) SumUserPointsForGoals(ctx context.Context, userID uuid.UUID, goalIDs []uuid.UUID) (int, error) {
	if len(goalIDs) == 0 {
		return 0, nil
	}
	var total int
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM points_ledger
		WHERE user_id = $1 AND goal_id = ANY($2::uuid[])
	`, userID, uuidStrings(goalIDs)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum goal points: %w", err)
	}
	return total, nil
}

func (q *pgQueries) SumPointsByGoalInWindow(ctx context.Context, goalIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(goalIDs))
	if len(goalIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT goal_id, SUM(points)
		FROM points_ledger
		WHERE goal_id = ANY($1::uuid[])
		  AND reference_date BETWEEN $2 AND $3
		GROUP BY goal_id
	`, uuidStrings(goalIDs), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to sum points by goal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var total int
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("failed to scan goal points: %w", err)
		}
		out[id] = total
	}
	return out, rows.Err()
}

func (q *pgQueries) ListBadgeDefinitions(ctx context.Context) ([]*badge.Definition, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, description, icon_url, criteria_type, evaluation_scope,
		       target_category, threshold, points_bonus, created_at
		FROM badge_definitions
		ORDER BY criteria_type, threshold
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var out []*badge.Definition
	for rows.Next() {
		d := &badge.Definition{}
		err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.IconURL, &d.CriteriaType, &d.Scope,
			&d.TargetCategory, &d.Threshold, &d.PointsBonus, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *pgQueries) InsertBadgeDefinition(ctx context.Context, d *badge.Definition) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO badge_definitions (id, name, description, icon_url, criteria_type, evaluation_scope,
		                               target_category, threshold, points_bonus)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO NOTHING
	`, d.ID, d.Name, d.Description, d.IconURL, string(d.CriteriaType), string(d.Scope),
		d.TargetCategory, d.Threshold, d.PointsBonus)
	if err != nil {
		return fmt.Errorf("failed to insert badge %s: %w", d.Name, err)
	}
	return nil
}

func (q *pgQueries) ListUserAwards(ctx context.Context, userID uuid.UUID) ([]*badge.Award, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, badge_id, awarded_at, reason, related_goal_id
		FROM user_badges
		WHERE user_id = $1
		ORDER BY awarded_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	defer rows.Close()

	var out []*badge.Award
	for rows.Next() {
		a := &badge.Award{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.BadgeID, &a.AwardedAt, &a.Reason, &a.RelatedGoalID); err != nil {
			return nil, fmt.Errorf("failed to scan award: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *pgQueries) AwardExists(ctx context.Context, userID, badgeID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2)
	`, userID, badgeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check award: %w", err)
	}
	return exists, nil
}

func (q *pgQueries) InsertAward(ctx context.Context, a *badge.Award) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	tag, err := q.db.Exec(ctx, `
		INSERT INTO user_badges (id, user_id, badge_id, awarded_at, reason, related_goal_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, a.ID, a.UserID, a.BadgeID, a.AwardedAt, a.Reason, a.RelatedGoalID)
	if err != nil {
		return false, fmt.Errorf("failed to insert award: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *pgQueries) InsertFlag(ctx context.Context, f *trust.Flag) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO suspicious_flags (id, user_id, type, details, severity, reviewed)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING flagged_at
	`, f.ID, f.UserID, string(f.Type), f.Details, string(f.Severity)).Scan(&f.FlaggedAt)
	if err != nil {
		return fmt.Errorf("failed to insert flag: %w", err)
	}
	return nil
}

func (q *pgQueries) ListFlagsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*trust.Flag, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, type, details, severity, reviewed, flagged_at
		FROM suspicious_flags
		WHERE user_id = $1 AND flagged_at >= $2
		ORDER BY flagged_at DESC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer rows.Close()

	var out []*trust.Flag
	for rows.Next() {
		f := &trust.Flag{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.Type, &f.Details, &f.Severity, &f.Reviewed, &f.FlaggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (q *pgQueries) HasUnreviewedFlags(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM suspicious_flags WHERE user_id = $1 AND reviewed = FALSE)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check flags: %w", err)
	}
	return exists, nil
}

func (q *pgQueries) MarkFlagReviewed(ctx context.Context, flagID uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `UPDATE suspicious_flags SET reviewed = TRUE WHERE id = $1`, flagID)
	if err != nil {
		return fmt.Errorf("failed to mark flag reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("flag %s: %w", flagID, apperr.ErrNotFound)
	}
	return nil
}
