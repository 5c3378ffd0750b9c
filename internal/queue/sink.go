package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/storage/postgres"
)

// RecordWriter stores the latest snapshot per user
type RecordWriter interface {
	Upsert(ctx context.Context, rec *postgres.UserRecord) (bool, error)
}

// AttemptWriter stores graded attempts
type AttemptWriter interface {
	Record(ctx context.Context, attempt *domain.Attempt) error
}

// Sink is the server-side Handler writing into the central databases
type Sink struct {
	records  RecordWriter
	attempts AttemptWriter
	logger   *slog.Logger
}

// NewSink creates a sink. attempts may be nil to ignore attempt messages.
func NewSink(records RecordWriter, attempts AttemptWriter, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{records: records, attempts: attempts, logger: logger}
}

// HandleProgress upserts the snapshot, keeping the newest per user
func (s *Sink) HandleProgress(ctx context.Context, msg *ProgressMessage) error {
	changed, err := s.records.Upsert(ctx, &postgres.UserRecord{
		UserID:    msg.UserID,
		XP:        msg.XP,
		Level:     msg.Level,
		Streak:    msg.Streak,
		Snapshot:  msg.Snapshot,
		UpdatedAt: msg.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if !changed {
		s.logger.Debug("stale snapshot ignored", "user_id", msg.UserID, "updated_at", msg.UpdatedAt)
	}
	return nil
}

// HandleAttempt stores an attempt
func (s *Sink) HandleAttempt(ctx context.Context, attempt *domain.Attempt) error {
	if s.attempts == nil {
		return nil
	}
	if err := s.attempts.Record(ctx, attempt); err != nil {
		return fmt.Errorf("store attempt: %w", err)
	}
	return nil
}
