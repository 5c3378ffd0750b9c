package lesson

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry(NewLoader(setupCourse(t)))
	if err := registry.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	course, lesson, err := registry.GetLesson("basics", "hello")
	if err != nil {
		t.Fatalf("GetLesson() error = %v", err)
	}
	if course.ID != "basics" || lesson.ID != "hello" {
		t.Errorf("GetLesson() = %s/%s; want basics/hello", course.ID, lesson.ID)
	}

	if _, err := registry.GetCourse("nope"); !errors.Is(err, domain.ErrCourseNotFound) {
		t.Errorf("GetCourse() error = %v; want ErrCourseNotFound", err)
	}
	if _, _, err := registry.GetLesson("basics", "nope"); !errors.Is(err, domain.ErrLessonNotFound) {
		t.Errorf("GetLesson() error = %v; want ErrLessonNotFound", err)
	}

	next, err := registry.NextLesson("basics", "intro")
	if err != nil || next == nil || next.ID != "hello" {
		t.Errorf("NextLesson(intro) = %v, %v; want hello", next, err)
	}
	last, err := registry.NextLesson("basics", "hello")
	if err != nil || last != nil {
		t.Errorf("NextLesson(hello) = %v, %v; want nil", last, err)
	}

	stats := registry.Stats()
	if stats.CourseCount != 1 || stats.LessonCount != 2 || stats.ByDifficulty["beginner"] != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRegistry_LaterLoaderOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "python-basics", "course.yaml"), "id: python-basics\ntitle: Custom\nlessons: [only]\n")
	writeFile(t, filepath.Join(dir, "python-basics", "only.yaml"), "id: only\n")

	registry := NewRegistry(NewBuiltinLoader(), NewLoader(dir))
	if err := registry.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	course, err := registry.GetCourse("python-basics")
	if err != nil {
		t.Fatalf("GetCourse() error = %v", err)
	}
	if course.Title != "Custom" {
		t.Errorf("Title = %q; want user override", course.Title)
	}
	if got := len(registry.ListCourses()); got != 1 {
		t.Errorf("len(ListCourses()) = %d; want 1", got)
	}
}
