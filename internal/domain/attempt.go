package domain

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is one graded submission kept in the learner's history
type Attempt struct {
	ID          uuid.UUID    `json:"id"`
	UserID      string       `json:"user_id"`
	CourseID    string       `json:"course_id"`
	LessonID    string       `json:"lesson_id"`
	Code        string       `json:"code"`
	Score       int          `json:"score"`
	MaxScore    int          `json:"max_score"`
	Passed      bool         `json:"passed"`
	XPEarned    int          `json:"xp_earned"`
	TestResults []TestResult `json:"test_results,omitempty"`
	Error       string       `json:"error,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// NewAttempt records a validation result for a lesson
func NewAttempt(userID string, lesson *Lesson, code string, result *ValidationResult) *Attempt {
	return &Attempt{
		ID:          uuid.New(),
		UserID:      userID,
		CourseID:    lesson.CourseID,
		LessonID:    lesson.ID,
		Code:        code,
		Score:       result.Score,
		MaxScore:    result.MaxScore,
		Passed:      result.CanComplete,
		XPEarned:    result.XPEarned,
		TestResults: result.TestResults,
		Error:       result.Error,
		SubmittedAt: time.Now().UTC(),
	}
}
