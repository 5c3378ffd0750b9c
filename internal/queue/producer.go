package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/progress"
)

// Publisher sends sync messages. The daemon holds a nil Publisher when
// sync is disabled.
type Publisher interface {
	PublishProgress(ctx context.Context, msg *ProgressMessage) error
	PublishAttempt(ctx context.Context, attempt *domain.Attempt) error
}

// jsonPublisher is the part of Connection the producer needs
type jsonPublisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes sync messages to the queues
type Producer struct {
	conn   jsonPublisher
	logger *slog.Logger
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn, logger: conn.logger}
}

// PublishProgress publishes a progress snapshot
func (p *Producer) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if err := p.conn.PublishJSON(ctx, ProgressQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish progress: %w", err)
	}

	p.logger.Debug("published progress",
		"message_id", msg.ID,
		"user_id", msg.UserID,
		"type", msg.Type,
	)
	return nil
}

// PublishAttempt publishes a graded attempt
func (p *Producer) PublishAttempt(ctx context.Context, attempt *domain.Attempt) error {
	if err := p.conn.PublishJSON(ctx, AttemptQueueName, &AttemptMessage{Attempt: *attempt}); err != nil {
		return fmt.Errorf("failed to publish attempt: %w", err)
	}

	p.logger.Debug("published attempt",
		"attempt_id", attempt.ID,
		"user_id", attempt.UserID,
		"lesson_id", attempt.LessonID,
		"score", attempt.Score,
	)
	return nil
}

// NewProgressMessage builds a message from a store snapshot
func NewProgressMessage(eventType domain.EventType, state progress.State) (*ProgressMessage, error) {
	snapshot, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return &ProgressMessage{
		ID:        uuid.New(),
		UserID:    state.UserID,
		Type:      eventType,
		XP:        state.Profile.XP,
		Level:     state.Profile.Level,
		Streak:    state.Profile.Streak,
		Snapshot:  snapshot,
		UpdatedAt: updated,
	}, nil
}
