package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// DefaultHistoryLimit caps List when no limit is given
const DefaultHistoryLimit = 50

// AttemptRepository stores graded submissions
type AttemptRepository struct {
	db *DB
}

// NewAttemptRepository creates a repository over db
func NewAttemptRepository(db *DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// EnsureSchema creates the attempts table when missing
func (r *AttemptRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range r.db.Dialect.AttemptsSchema() {
		if _, err := r.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create attempts schema (%s): %w", r.db.Dialect.Name(), err)
		}
	}
	return nil
}

// Record inserts an attempt. Re-recording the same id is a no-op so
// redelivered sync messages stay idempotent.
func (r *AttemptRepository) Record(ctx context.Context, a *domain.Attempt) error {
	results, err := testResultsToStorage(a.TestResults)
	if err != nil {
		return err
	}

	exists, err := r.exists(ctx, a.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attempts (id, user_id, course_id, lesson_id, code, score,
			max_score, passed, xp_earned, test_results, error, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.UserID, a.CourseID, a.LessonID, a.Code, a.Score,
		a.MaxScore, a.Passed, a.XPEarned, results, a.Error, a.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Get returns a single attempt
func (r *AttemptRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Attempt, error) {
	row := r.db.QueryRowContext(ctx, selectAttempts+" WHERE id = ?", id.String())
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

// List returns a user's attempts, newest first. An empty lessonID lists
// attempts for every lesson.
func (r *AttemptRepository) List(ctx context.Context, userID, lessonID string, limit int) ([]*domain.Attempt, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := selectAttempts + " WHERE user_id = ?"
	args := []any{userID}
	if lessonID != "" {
		query += " AND lesson_id = ?"
		args = append(args, lessonID)
	}
	query += " ORDER BY submitted_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*domain.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// BestScore returns the highest score a user reached on a lesson
func (r *AttemptRepository) BestScore(ctx context.Context, userID, lessonID string) (int, error) {
	var best sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(score) FROM attempts WHERE user_id = ? AND lesson_id = ?", userID, lessonID,
	).Scan(&best)
	if err != nil {
		return 0, fmt.Errorf("best score: %w", err)
	}
	return int(best.Int64), nil
}

func (r *AttemptRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts WHERE id = ?", id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check attempt: %w", err)
	}
	return n > 0, nil
}

const selectAttempts = `
	SELECT id, user_id, course_id, lesson_id, code, score, max_score,
		passed, xp_earned, test_results, error, submitted_at
	FROM attempts`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s scanner) (*domain.Attempt, error) {
	var (
		a         domain.Attempt
		id        string
		results   pqtype.NullRawMessage
		submitted time.Time
	)
	err := s.Scan(&id, &a.UserID, &a.CourseID, &a.LessonID, &a.Code, &a.Score,
		&a.MaxScore, &a.Passed, &a.XPEarned, &results, &a.Error, &submitted)
	if err != nil {
		return nil, err
	}

	a.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse attempt id: %w", err)
	}
	a.SubmittedAt = submitted.UTC()
	a.TestResults, err = testResultsToDomain(results)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func testResultsToStorage(results []domain.TestResult) (pqtype.NullRawMessage, error) {
	if len(results) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal test results: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

func testResultsToDomain(raw pqtype.NullRawMessage) ([]domain.TestResult, error) {
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return nil, nil
	}
	var results []domain.TestResult
	if err := json.Unmarshal(raw.RawMessage, &results); err != nil {
		return nil, fmt.Errorf("unmarshal test results: %w", err)
	}
	return results, nil
}
