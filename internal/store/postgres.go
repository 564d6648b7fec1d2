package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/leaderboard"
)

//go:embed schema.sql
var schemaSQL string

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type pgQueries struct {
	db dbtx
}

type PostgresStore struct {
	*pgQueries
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: &pgQueries{db: pool}, pool: pool}
}

// Migrate applies the idempotent schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgQueries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var snapshotColumns = []string{
	"id", "user_id", "category", "period_type", "period_start", "period_end",
	"rank", "score", "raw_points", "days_active", "streak", "rank_movement", "snapshot_date", "generation",
}

func (s *PostgresStore) ReplaceSnapshotScope(ctx context.Context, key leaderboard.ScopeKey, generation int64, rows []*leaderboard.SnapshotRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.LockKey()); err != nil {
		return fmt.Errorf("failed to lock scope %s: %w", key.LockKey(), err)
	}

	var stored int64
	err = tx.QueryRow(ctx, `
		SELECT generation FROM leaderboard_scope_generations WHERE scope_key = $1
	`, key.LockKey()).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read generation of %s: %w", key.LockKey(), err)
	case stored > generation:
		return ErrStaleGeneration
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO leaderboard_scope_generations (scope_key, generation, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (scope_key) DO UPDATE SET generation = EXCLUDED.generation, updated_at = NOW()
	`, key.LockKey(), generation)
	if err != nil {
		return fmt.Errorf("failed to record generation of %s: %w", key.LockKey(), err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM leaderboard_snapshots
		WHERE period_type = $1
		  AND category IS NOT DISTINCT FROM $2
		  AND period_start = $3
		  AND period_end = $4
	`, string(key.Period), key.Category, key.Start, key.End)
	if err != nil {
		return fmt.Errorf("failed to clear scope %s: %w", key.LockKey(), err)
	}

	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"leaderboard_snapshots"}, snapshotColumns,
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				r := rows[i]
				return []any{
					pgUUID(r.ID), pgUUID(r.UserID), r.Category, string(r.PeriodType), r.PeriodStart, r.PeriodEnd,
					r.Rank, r.Score, r.RawPoints, r.DaysActive, r.Streak, r.RankMovement, r.SnapshotDate, generation,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("failed to write scope %s: %w", key.LockKey(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit scope %s: %w", key.LockKey(), err)
	}
	return nil
}

func (s *PostgresStore) ClaimRefreshTasks(ctx context.Context, limit int) ([]*RefreshTask, error) {
	query := `
		UPDATE leaderboard_refresh_outbox
		SET claimed_at = NOW(), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM leaderboard_refresh_outbox
			WHERE processed_at IS NULL
			  AND attempts < $2
			  AND (claimed_at IS NULL OR claimed_at < NOW() - INTERVAL '5 minutes')
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING id, category, activity_date, enqueued_at, attempts, last_error
	`

	rows, err := s.pool.Query(ctx, query, limit, MaxRefreshAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to claim refresh tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*RefreshTask
	for rows.Next() {
		t := &RefreshTask{}
		if err := rows.Scan(&t.ID, &t.Category, &t.ActivityDate, &t.EnqueuedAt, &t.Attempts, &t.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan refresh task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) CompleteRefreshTask(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE leaderboard_refresh_outbox SET processed_at = NOW(), last_error = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete refresh task %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) FailRefreshTask(ctx context.Context, id int64, cause error) error {
	_, err := s.pool.Exec(ctx, `UPDATE leaderboard_refresh_outbox SET claimed_at = NULL, last_error = $2 WHERE id = $1`, id, cause.Error())
	if err != nil {
		return fmt.Errorf("failed to record refresh failure %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) SeedBadges(ctx context.Context, defs []*badge.Definition) error {
	return s.InTx(ctx, func(q Queries) error {
		for _, d := range defs {
			if err := q.InsertBadgeDefinition(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
