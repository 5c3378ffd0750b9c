package lesson

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed builtin
var builtinFS embed.FS

// CourseFile represents the YAML structure for a course
type CourseFile struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Difficulty  string   `yaml:"difficulty"`
	Lessons     []string `yaml:"lessons"`
}

// LessonFile represents the YAML structure for a lesson
type LessonFile struct {
	ID            string       `yaml:"id"`
	Title         string       `yaml:"title"`
	Description   string       `yaml:"description"`
	Starter       string       `yaml:"starter"`
	XP            int          `yaml:"xp"`
	BonusXP       int          `yaml:"bonus_xp"`
	PartialCredit bool         `yaml:"partial_credit"`
	Outcome       *OutcomeFile `yaml:"outcome"`
	Hints         []string     `yaml:"hints"`
	Tags          []string     `yaml:"tags"`
}

// OutcomeFile is the grading rubric of a lesson
type OutcomeFile struct {
	ExpectedOutput   *string        `yaml:"expected_output"`
	ExpectedPattern  string         `yaml:"expected_pattern"`
	ContainsKeywords []string       `yaml:"contains_keywords"`
	HasNoErrors      bool           `yaml:"has_no_errors"`
	TestCases        []TestCaseFile `yaml:"test_cases"`
}

// TestCaseFile is one scored check. Exactly one of ExpectedOutput or
// ExpectedPattern must be set.
type TestCaseFile struct {
	Description     string   `yaml:"description"`
	ExpectedOutput  *string  `yaml:"expected_output"`
	ExpectedPattern string   `yaml:"expected_pattern"`
	Points          int      `yaml:"points"`
	Input           []string `yaml:"input"`
}

// Loader reads courses from a directory tree laid out as
// <course>/course.yaml and <course>/<lesson>.yaml
type Loader struct {
	fsys     fs.FS
	basePath string
}

// NewLoader creates a loader rooted at basePath on disk
func NewLoader(basePath string) *Loader {
	return &Loader{fsys: os.DirFS(basePath), basePath: basePath}
}

// NewBuiltinLoader creates a loader over the courses bundled in the binary
func NewBuiltinLoader() *Loader {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	return &Loader{fsys: sub, basePath: "builtin"}
}

// BasePath returns where courses are read from
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadCourse loads a course and all of its lessons
func (l *Loader) LoadCourse(courseID string) (*domain.Course, error) {
	data, err := fs.ReadFile(l.fsys, path.Join(courseID, "course.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read course file: %w", err)
	}

	var courseFile CourseFile
	if err := yaml.Unmarshal(data, &courseFile); err != nil {
		return nil, fmt.Errorf("parse course file: %w", err)
	}
	if courseFile.ID == "" {
		courseFile.ID = courseID
	}

	course := &domain.Course{
		ID:          courseFile.ID,
		Title:       courseFile.Title,
		Description: courseFile.Description,
		Difficulty:  courseFile.Difficulty,
		Lessons:     make([]*domain.Lesson, 0, len(courseFile.Lessons)),
	}

	seen := make(map[string]bool, len(courseFile.Lessons))
	for _, slug := range courseFile.Lessons {
		lesson, err := l.LoadLesson(courseID, slug)
		if err != nil {
			return nil, fmt.Errorf("load lesson %s: %w", slug, err)
		}
		if seen[lesson.ID] {
			return nil, fmt.Errorf("%w: duplicate lesson id %s", domain.ErrInvalidLesson, lesson.ID)
		}
		seen[lesson.ID] = true
		lesson.CourseID = course.ID
		course.Lessons = append(course.Lessons, lesson)
	}

	return course, nil
}

// LoadLesson loads a single lesson file. Patterns are compiled here so
// authoring mistakes surface at load time.
func (l *Loader) LoadLesson(courseID, slug string) (*domain.Lesson, error) {
	if slug == "" || strings.Contains(slug, "..") {
		return nil, fmt.Errorf("%w: invalid lesson slug %q", domain.ErrInvalidLesson, slug)
	}

	data, err := fs.ReadFile(l.fsys, path.Join(courseID, slug+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("read lesson file: %w", err)
	}

	var lf LessonFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse lesson file: %w", err)
	}

	lesson := &domain.Lesson{
		ID:            lf.ID,
		CourseID:      courseID,
		Title:         lf.Title,
		Description:   lf.Description,
		Starter:       lf.Starter,
		BaseXP:        lf.XP,
		BonusXP:       lf.BonusXP,
		PartialCredit: lf.PartialCredit,
		Hints:         lf.Hints,
		Tags:          lf.Tags,
	}
	if lesson.ID == "" {
		lesson.ID = slug
	}
	if lesson.BaseXP < 0 || lesson.BonusXP < 0 {
		return nil, fmt.Errorf("%w: %s: xp must not be negative", domain.ErrInvalidLesson, lesson.ID)
	}

	if lf.Outcome != nil {
		outcome, err := buildOutcome(lf.Outcome)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidLesson, lesson.ID, err)
		}
		lesson.Outcome = outcome
	}

	return lesson, nil
}

// ListCourseIDs returns the directories that contain a course.yaml
func (l *Loader) ListCourseIDs() ([]string, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read courses directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := fs.Stat(l.fsys, path.Join(entry.Name(), "course.yaml")); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return ids, nil
}

// LoadAllCourses loads every course under the base directory
func (l *Loader) LoadAllCourses() ([]*domain.Course, error) {
	ids, err := l.ListCourseIDs()
	if err != nil {
		return nil, err
	}

	courses := make([]*domain.Course, 0, len(ids))
	for _, id := range ids {
		course, err := l.LoadCourse(id)
		if err != nil {
			return nil, fmt.Errorf("load course %s: %w", id, err)
		}
		courses = append(courses, course)
	}
	return courses, nil
}

func buildOutcome(of *OutcomeFile) (*domain.LessonOutcome, error) {
	outcome := &domain.LessonOutcome{
		ContainsKeywords: of.ContainsKeywords,
		HasNoErrors:      of.HasNoErrors,
	}

	expected, err := expectation(of.ExpectedOutput, of.ExpectedPattern)
	if err != nil {
		return nil, err
	}
	if !expected.IsZero() {
		outcome.ExpectedOutput = &expected
	}

	outcome.TestCases = make([]domain.TestCase, 0, len(of.TestCases))
	for i, tc := range of.TestCases {
		expected, err := expectation(tc.ExpectedOutput, tc.ExpectedPattern)
		if err != nil {
			return nil, fmt.Errorf("test case %d: %w", i, err)
		}
		if expected.IsZero() {
			return nil, fmt.Errorf("test case %d: expected_output or expected_pattern is required", i)
		}
		outcome.TestCases = append(outcome.TestCases, domain.TestCase{
			Description:    tc.Description,
			ExpectedOutput: expected,
			Points:         tc.Points,
			Input:          tc.Input,
		})
	}

	return outcome, nil
}

func expectation(literal *string, pattern string) (domain.ExpectedOutput, error) {
	switch {
	case literal != nil && pattern != "":
		return domain.ExpectedOutput{}, errors.New("expected_output and expected_pattern are mutually exclusive")
	case literal != nil:
		return domain.Literal(*literal), nil
	case pattern != "":
		return domain.CompilePattern(pattern)
	default:
		return domain.ExpectedOutput{}, nil
	}
}
