package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// Content errors
var (
	ErrCourseNotFound = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrInvalidLesson  = errors.New("invalid lesson")
)

// Progress errors
var (
	ErrToolNotFound        = errors.New("tool not found")
	ErrAchievementNotFound = errors.New("achievement not found")
	ErrInvalidAmount       = errors.New("invalid xp amount")
)

// Runtime errors
var (
	ErrRuntimeNotReady = errors.New("runtime not ready")
	ErrRuntimeBusy     = errors.New("runtime already executing")
	ErrNotWaiting      = errors.New("runtime is not waiting for input")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
