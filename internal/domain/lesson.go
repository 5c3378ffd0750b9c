package domain

// Lesson is a single authored unit of a course
type Lesson struct {
	ID            string         `json:"id"`
	CourseID      string         `json:"course_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Starter       string         `json:"starter,omitempty"`
	BaseXP        int            `json:"base_xp"`
	BonusXP       int            `json:"bonus_xp,omitempty"`
	PartialCredit bool           `json:"partial_credit"`
	Outcome       *LessonOutcome `json:"outcome,omitempty"` // nil for theory-only lessons
	Hints         []string       `json:"hints,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

// LessonOutcome is the rubric a submission is graded against
type LessonOutcome struct {
	ExpectedOutput   *ExpectedOutput `json:"expected_output,omitempty"`
	ContainsKeywords []string        `json:"contains_keywords,omitempty"`
	HasNoErrors      bool            `json:"has_no_errors"`
	TestCases        []TestCase      `json:"test_cases,omitempty"`
}

// TestCase is one scored check within a lesson outcome
type TestCase struct {
	Description    string         `json:"description"`
	ExpectedOutput ExpectedOutput `json:"expected_output"`
	Points         int            `json:"points"`
	Input          []string       `json:"input,omitempty"` // lines fed to input()
}

// Course groups lessons in authoring order
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Difficulty  string    `json:"difficulty,omitempty"`
	Lessons     []*Lesson `json:"lessons"`
}

// Lesson returns the lesson with the given id, or nil
func (c *Course) Lesson(id string) *Lesson {
	for _, l := range c.Lessons {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// TotalLessons returns the number of lessons in the course
func (c *Course) TotalLessons() int {
	return len(c.Lessons)
}
