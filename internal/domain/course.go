package domain

import (
	"sort"
	"time"
)

// CourseProgress records which lessons of a course a learner finished
type CourseProgress struct {
	CourseID         string               `json:"course_id"`
	CompletedLessons map[string]time.Time `json:"completed_lessons"`
	Score            int                  `json:"score"`
	TotalLessons     int                  `json:"total_lessons"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// NewCourseProgress creates empty progress for a course
func NewCourseProgress(courseID string, totalLessons int) *CourseProgress {
	return &CourseProgress{
		CourseID:         courseID,
		CompletedLessons: make(map[string]time.Time),
		TotalLessons:     totalLessons,
	}
}

// IsCompleted reports whether a lesson was finished
func (c *CourseProgress) IsCompleted(lessonID string) bool {
	_, ok := c.CompletedLessons[lessonID]
	return ok
}

// ProgressPercent returns completed/total as a percentage
func (c *CourseProgress) ProgressPercent() float64 {
	if c.TotalLessons <= 0 {
		return 0
	}
	return float64(len(c.CompletedLessons)) / float64(c.TotalLessons) * 100
}

// IsFinished reports whether every lesson has been completed
func (c *CourseProgress) IsFinished() bool {
	return c.TotalLessons > 0 && len(c.CompletedLessons) >= c.TotalLessons
}

// LessonIDs returns the completed lesson ids in sorted order
func (c *CourseProgress) LessonIDs() []string {
	ids := make([]string, 0, len(c.CompletedLessons))
	for id := range c.CompletedLessons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
