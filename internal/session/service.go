// Package session drives a learner's interaction with lessons: grading
// submissions, running scratch code with interactive input and keeping
// progress and submission history in step.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/lesson"
	"github.com/felixgeelhaar/pyquest/internal/progress"
	"github.com/felixgeelhaar/pyquest/internal/runtime"
	"github.com/felixgeelhaar/pyquest/internal/validator"
)

var (
	ErrHistoryDisabled = errors.New("submission history is disabled")
	ErrEmptyCode       = fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
)

// Submission is the outcome of grading one submission
type Submission struct {
	AttemptID  uuid.UUID                  `json:"attempt_id"`
	Result     *domain.ValidationResult   `json:"result"`
	Completion *progress.CompletionResult `json:"completion,omitempty"`
	Streak     *progress.StreakUpdate     `json:"streak,omitempty"`
	NextLesson string                     `json:"next_lesson,omitempty"`
}

// RunOutcome is the outcome of a scratch run
type RunOutcome struct {
	Result   *runtime.Result      `json:"result"`
	Unlocked []domain.Achievement `json:"unlocked,omitempty"`
}

// suspended remembers whose program is waiting for input. The runtime
// holds at most one execution, so only its owner may continue it.
type suspended struct {
	userID string
	code   string
}

// Service manages learner sessions
type Service struct {
	lessons   *lesson.Registry
	progress  *progress.Registry
	runtime   runtime.Runtime
	validator *validator.Validator
	history   History          // Optional: submission history
	publisher AttemptPublisher // Optional: sync
	logger    *slog.Logger

	mu      sync.Mutex
	waiting *suspended
}

// NewService creates a new session service
func NewService(lessons *lesson.Registry, progressRegistry *progress.Registry, rt runtime.Runtime, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		lessons:  lessons,
		progress: progressRegistry,
		runtime:  rt,
		logger:   logger,
	}
	s.validator = validator.New(rt, validator.WithLogger(logger), validator.WithTracker(s.track))
	return s
}

// SetHistory sets where graded submissions are recorded
func (s *Service) SetHistory(h History) {
	s.history = h
}

// SetPublisher sets the sync publisher for graded submissions
func (s *Service) SetPublisher(p AttemptPublisher) {
	s.publisher = p
}

// Lessons returns the course registry
func (s *Service) Lessons() *lesson.Registry {
	return s.lessons
}

// Progress returns the learner's progress store
func (s *Service) Progress(ctx context.Context, userID string) (*progress.Store, error) {
	return s.progress.Get(ctx, userID)
}

// RuntimeReady reports whether code can be executed
func (s *Service) RuntimeReady() bool {
	return s.runtime.IsReady()
}

// Submit grades code against a lesson. A passing submission completes the
// lesson and extends the streak; every submission is added to the history
// and published for sync. History and sync failures are logged only.
func (s *Service) Submit(ctx context.Context, userID, courseID, lessonID, code string) (*Submission, error) {
	course, l, err := s.lessons.GetLesson(courseID, lessonID)
	if err != nil {
		return nil, err
	}
	if l.Outcome != nil && strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	store, err := s.progress.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open progress: %w", err)
	}

	s.clearWaiting()
	result := s.validator.Validate(ctx, code, l)
	sub := &Submission{Result: result}

	awarded := 0
	if result.CanComplete {
		completion := store.CompleteLesson(ctx, progress.LessonCompletion{
			CourseID:     course.ID,
			LessonID:     l.ID,
			TotalLessons: course.TotalLessons(),
			Score:        result.Score,
			XPEarned:     result.XPEarned,
		})
		sub.Completion = &completion
		if completion.FirstCompletion {
			awarded = result.XPEarned
		}

		streak := store.UpdateStreak(ctx)
		sub.Streak = &streak

		if next, err := s.lessons.NextLesson(course.ID, l.ID); err == nil && next != nil {
			sub.NextLesson = next.ID
		}
	}

	attempt := domain.NewAttempt(userID, l, code, result)
	attempt.XPEarned = awarded
	sub.AttemptID = attempt.ID
	s.recordAttempt(ctx, attempt)

	s.logger.Info("submission graded",
		"user_id", userID,
		"course_id", course.ID,
		"lesson_id", l.ID,
		"score", result.Score,
		"passed", result.CanComplete,
	)
	return sub, nil
}

func (s *Service) recordAttempt(ctx context.Context, attempt *domain.Attempt) {
	if s.history != nil {
		if err := s.history.Record(ctx, attempt); err != nil {
			s.logger.Warn("failed to record attempt", "attempt_id", attempt.ID, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAttempt(ctx, attempt); err != nil {
			s.logger.Warn("failed to publish attempt", "attempt_id", attempt.ID, "error", err)
		}
	}
}

// Run executes scratch code. A run that stops at input() stays suspended
// until Continue; finished runs count toward the learner's stats.
func (s *Service) Run(ctx context.Context, userID, code string) (*RunOutcome, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.waiting = nil
	result, err := s.runtime.Run(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.settleLocked(ctx, userID, code, result)
}

// Continue feeds input to the learner's suspended run
func (s *Service) Continue(ctx context.Context, userID, input string) (*RunOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waiting == nil || s.waiting.userID != userID {
		return nil, domain.ErrNotWaiting
	}
	code := s.waiting.code

	result, err := s.runtime.Continue(ctx, input)
	if err != nil {
		if errors.Is(err, domain.ErrNotWaiting) {
			s.waiting = nil
		}
		return nil, err
	}
	return s.settleLocked(ctx, userID, code, result)
}

func (s *Service) settleLocked(ctx context.Context, userID, code string, result *runtime.Result) (*RunOutcome, error) {
	if result.WaitingForInput {
		s.waiting = &suspended{userID: userID, code: code}
		return &RunOutcome{Result: result}, nil
	}
	s.waiting = nil

	store, err := s.progress.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open progress: %w", err)
	}
	unlocked := store.RecordCodeRun(ctx, progress.CodeRun{
		Code:   code,
		Output: result.Output,
		Error:  result.Error,
	})
	return &RunOutcome{Result: result, Unlocked: unlocked}, nil
}

func (s *Service) clearWaiting() {
	s.mu.Lock()
	s.waiting = nil
	s.mu.Unlock()
}

// Attempts lists past submissions, newest first
func (s *Service) Attempts(ctx context.Context, userID, lessonID string, limit int) ([]*domain.Attempt, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(ctx, userID, lessonID, limit)
}

func (s *Service) track(action string, payload map[string]any) {
	s.logger.Debug("validation step", "action", action, "payload", payload)
}
