package session

import (
	"context"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/lesson"
	"github.com/felixgeelhaar/pyquest/internal/progress"
)

// SessionService defines the learner operations used by the daemon
// handlers and the MCP tools
type SessionService interface {
	// Submit grades code against a lesson and records the outcome
	Submit(ctx context.Context, userID, courseID, lessonID, code string) (*Submission, error)

	// Run executes code outside of any lesson
	Run(ctx context.Context, userID, code string) (*RunOutcome, error)

	// Continue feeds one line of input to the learner's suspended run
	Continue(ctx context.Context, userID, input string) (*RunOutcome, error)

	// Attempts lists past submissions, newest first
	Attempts(ctx context.Context, userID, lessonID string, limit int) ([]*domain.Attempt, error)

	// Progress returns the learner's progress store
	Progress(ctx context.Context, userID string) (*progress.Store, error)

	// Lessons returns the course registry
	Lessons() *lesson.Registry

	// RuntimeReady reports whether code can be executed
	RuntimeReady() bool
}

// Ensure Service implements SessionService
var _ SessionService = (*Service)(nil)

// History persists graded submissions. The sqldb attempt repository
// implements this.
type History interface {
	Record(ctx context.Context, attempt *domain.Attempt) error
	List(ctx context.Context, userID, lessonID string, limit int) ([]*domain.Attempt, error)
}

// AttemptPublisher forwards attempts to the sync queue
type AttemptPublisher interface {
	PublishAttempt(ctx context.Context, attempt *domain.Attempt) error
}
