// Package postgres holds the server-side copy of each learner's progress,
// fed by the sync consumer.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// UserRecord is the latest known progress snapshot of a user
type UserRecord struct {
	UserID    string          `json:"user_id"`
	XP        int             `json:"xp"`
	Level     int             `json:"level"`
	Streak    int             `json:"streak"`
	Snapshot  json.RawMessage `json:"snapshot"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const schema = `
	CREATE TABLE IF NOT EXISTS user_records (
		user_id    TEXT        PRIMARY KEY,
		xp         INTEGER     NOT NULL,
		level      INTEGER     NOT NULL,
		streak     INTEGER     NOT NULL DEFAULT 0,
		snapshot   JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

// UserRecordRepository stores user records in PostgreSQL
type UserRecordRepository struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for the given connection string
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewUserRecordRepository creates a new repository
func NewUserRecordRepository(pool *pgxpool.Pool) *UserRecordRepository {
	return &UserRecordRepository{pool: pool}
}

// EnsureSchema creates the user_records table when missing
func (r *UserRecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create user_records: %w", err)
	}
	return nil
}

// Upsert writes rec unless a newer record is already stored. It reports
// whether the row changed.
func (r *UserRecordRepository) Upsert(ctx context.Context, rec *UserRecord) (bool, error) {
	query := `
		INSERT INTO user_records (user_id, xp, level, streak, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			streak = EXCLUDED.streak,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at
		WHERE user_records.updated_at <= EXCLUDED.updated_at
	`
	tag, err := r.pool.Exec(ctx, query,
		rec.UserID, rec.XP, rec.Level, rec.Streak, []byte(rec.Snapshot), rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert user record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get retrieves a user record
func (r *UserRecordRepository) Get(ctx context.Context, userID string) (*UserRecord, error) {
	query := `
		SELECT user_id, xp, level, streak, snapshot, updated_at
		FROM user_records WHERE user_id = $1
	`
	rec := &UserRecord{}
	var snapshot []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID, &rec.XP, &rec.Level, &rec.Streak, &snapshot, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Snapshot = snapshot
	return rec, nil
}

// Leaderboard returns the top users by XP
func (r *UserRecordRepository) Leaderboard(ctx context.Context, limit int) ([]*UserRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, xp, level, streak, updated_at
		FROM user_records ORDER BY xp DESC, user_id LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*UserRecord
	for rows.Next() {
		rec := &UserRecord{}
		if err := rows.Scan(&rec.UserID, &rec.XP, &rec.Level, &rec.Streak, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
