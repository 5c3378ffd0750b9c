package lesson

import (
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// Registry caches loaded courses. Later loaders override courses with the
// same id, so a user directory can shadow the bundled content.
type Registry struct {
	loaders []*Loader
	mu      sync.RWMutex
	courses map[string]*domain.Course
	loaded  bool
}

// NewRegistry creates a registry reading from the given loaders in order
func NewRegistry(loaders ...*Loader) *Registry {
	return &Registry{
		loaders: loaders,
		courses: make(map[string]*domain.Course),
	}
}

// Load loads all courses into memory
func (r *Registry) Load() error {
	courses := make(map[string]*domain.Course)
	for _, loader := range r.loaders {
		loaded, err := loader.LoadAllCourses()
		if err != nil {
			return fmt.Errorf("load courses from %s: %w", loader.BasePath(), err)
		}
		for _, c := range loaded {
			courses[c.ID] = c
		}
	}

	r.mu.Lock()
	r.courses = courses
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Reload re-reads every course from disk
func (r *Registry) Reload() error {
	return r.Load()
}

// GetCourse returns a course by ID
func (r *Registry) GetCourse(id string) (*domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	course, ok := r.courses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCourseNotFound, id)
	}
	return course, nil
}

// GetLesson returns a lesson and its course
func (r *Registry) GetLesson(courseID, lessonID string) (*domain.Course, *domain.Lesson, error) {
	course, err := r.GetCourse(courseID)
	if err != nil {
		return nil, nil, err
	}
	lesson := course.Lesson(lessonID)
	if lesson == nil {
		return nil, nil, fmt.Errorf("%w: %s/%s", domain.ErrLessonNotFound, courseID, lessonID)
	}
	return course, lesson, nil
}

// ListCourses returns all courses sorted by id
func (r *Registry) ListCourses() []*domain.Course {
	r.mu.RLock()
	defer r.mu.RUnlock()

	courses := make([]*domain.Course, 0, len(r.courses))
	for _, c := range r.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses
}

// NextLesson returns the lesson following lessonID in its course, or nil
// when lessonID is the last one
func (r *Registry) NextLesson(courseID, lessonID string) (*domain.Lesson, error) {
	course, err := r.GetCourse(courseID)
	if err != nil {
		return nil, err
	}
	for i, l := range course.Lessons {
		if l.ID != lessonID {
			continue
		}
		if i+1 < len(course.Lessons) {
			return course.Lessons[i+1], nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", domain.ErrLessonNotFound, courseID, lessonID)
}

// Stats returns statistics about loaded courses
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		CourseCount:  len(r.courses),
		ByDifficulty: make(map[string]int),
	}
	for _, c := range r.courses {
		stats.LessonCount += len(c.Lessons)
		stats.ByDifficulty[c.Difficulty]++
	}
	return stats
}

// RegistryStats holds statistics about the registry
type RegistryStats struct {
	CourseCount  int            `json:"course_count"`
	LessonCount  int            `json:"lesson_count"`
	ByDifficulty map[string]int `json:"by_difficulty"`
}
