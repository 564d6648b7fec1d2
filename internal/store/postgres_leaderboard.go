package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/leaderboard"
	"focusforgeAPI/internal/stats"
	"focusforgeAPI/internal/types/notification"
)

const snapshotSelect = `
	SELECT id, user_id, category, period_type, period_start, period_end, rank, score,
	       raw_points, days_active, streak, rank_movement, snapshot_date, generation
	FROM leaderboard_snapshots
`

func (q *pgQueries) querySnapshot(ctx context.Context, query string, args ...any) ([]*leaderboard.SnapshotRow, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer rows.Close()

	var out []*leaderboard.SnapshotRow
	for rows.Next() {
		r := &leaderboard.SnapshotRow{}
		err := rows.Scan(&r.ID, &r.UserID, &r.Category, &r.PeriodType, &r.PeriodStart, &r.PeriodEnd, &r.Rank,
			&r.Score, &r.RawPoints, &r.DaysActive, &r.Streak, &r.RankMovement, &r.SnapshotDate, &r.Generation)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *pgQueries) ListSnapshot(ctx context.Context, key leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, error) {
	return q.querySnapshot(ctx, snapshotSelect+`
		WHERE period_type = $1
		  AND category IS NOT DISTINCT FROM $2
		  AND period_start = $3
		  AND period_end = $4
		ORDER BY rank
	`, string(key.Period), key.Category, key.Start, key.End)
}

func (q *pgQueries) LatestSnapshot(ctx context.Context, period leaderboard.Period, category *string) ([]*leaderboard.SnapshotRow, error) {
	return q.querySnapshot(ctx, snapshotSelect+`
		WHERE period_type = $1
		  AND category IS NOT DISTINCT FROM $2
		  AND period_end = (
			SELECT MAX(period_end) FROM leaderboard_snapshots
			WHERE period_type = $1 AND category IS NOT DISTINCT FROM $2
		  )
		ORDER BY rank
	`, string(period), category)
}

func (q *pgQueries) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM leaderboard_snapshots WHERE snapshot_date < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM leaderboard_scope_generations WHERE updated_at < $1`, before); err != nil {
		return 0, fmt.Errorf("failed to prune snapshot generations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *pgQueries) EnqueueRefresh(ctx context.Context, category *string, activityDate time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO leaderboard_refresh_outbox (category, activity_date) VALUES ($1, $2)
	`, category, activityDate)
	if err != nil {
		return fmt.Errorf("failed to enqueue leaderboard refresh: %w", err)
	}
	return nil
}

func (q *pgQueries) InsertNotification(ctx context.Context, n *notification.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = notification.StatusPending
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, status, title, message, data, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, n.ID, n.UserID, string(n.Type), string(n.Status), n.Title, n.Message, n.Data, n.ExpiresAt).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (q *pgQueries) NotificationExistsSince(ctx context.Context, userID uuid.UUID, typ notification.NotificationType, since time.Time) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM notifications WHERE user_id = $1 AND type = $2 AND created_at >= $3)
	`, userID, string(typ), since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check notifications: %w", err)
	}
	return exists, nil
}

func (q *pgQueries) ListDeviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := q.db.Query(ctx, `SELECT token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var out []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *pgQueries) RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token notification.DeviceToken) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
	`, userID, token.Token, token.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (q *pgQueries) MarkNotificationStatus(ctx context.Context, notificationID uuid.UUID, status notification.NotificationStatus) error {
	_, err := q.db.Exec(ctx, `UPDATE notifications SET status = $2 WHERE id = $1`, notificationID, string(status))
	if err != nil {
		return fmt.Errorf("failed to mark notification %s as %s: %w", notificationID, status, err)
	}
	return nil
}

func (q *pgQueries) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *pgQueries) UpsertDailySummary(ctx context.Context, s *stats.DailySummary) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO daily_user_summaries (user_id, date, total_minutes, total_points, activities_count,
		                                  active_goals, active_flag, max_streak, trust_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, date)
		DO UPDATE SET
			total_minutes = EXCLUDED.total_minutes,
			total_points = EXCLUDED.total_points,
			activities_count = EXCLUDED.activities_count,
			active_goals = EXCLUDED.active_goals,
			active_flag = EXCLUDED.active_flag,
			max_streak = EXCLUDED.max_streak,
			trust_score = EXCLUDED.trust_score,
			updated_at = NOW()
		RETURNING updated_at
	`, s.UserID, s.Date, s.TotalMinutes, s.TotalPoints, s.ActivitiesCount,
		s.ActiveGoals, s.ActiveFlag, s.MaxStreak, s.TrustScore).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return nil
}

func (q *pgQueries) ListDailySummaries(ctx context.Context, userID uuid.UUID, since time.Time) ([]*stats.DailySummary, error) {
	rows, err := q.db.Query(ctx, `
		SELECT user_id, date, total_minutes, total_points, activities_count,
		       active_goals, active_flag, max_streak, trust_score, updated_at
		FROM daily_user_summaries
		WHERE user_id = $1 AND date >= $2
		ORDER BY date
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}
	defer rows.Close()

	var out []*stats.DailySummary
	for rows.Next() {
		s := &stats.DailySummary{}
		err := rows.Scan(&s.UserID, &s.Date, &s.TotalMinutes, &s.TotalPoints, &s.ActivitiesCount,
			&s.ActiveGoals, &s.ActiveFlag, &s.MaxStreak, &s.TrustScore, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
