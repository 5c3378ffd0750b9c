package domain

// Grading constants. The pass threshold and point weights are fixed
// product rules, not configuration.
const (
	PassThreshold = 70
	OutputPoints  = 25
	KeywordPoints = 25
	PerfectScore  = 100
)

// ValidationResult is the graded outcome of a single submission
type ValidationResult struct {
	Score       int          `json:"score"`
	MaxScore    int          `json:"max_score"`
	CanComplete bool         `json:"can_complete"`
	TestResults []TestResult `json:"test_results"`
	XPEarned    int          `json:"xp_earned"`
	Feedback    []string     `json:"feedback"`
	Suggestions []string     `json:"suggestions"`
	Output      string       `json:"output,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// TestResult mirrors a declared TestCase
type TestResult struct {
	Description  string `json:"description"`
	Passed       bool   `json:"passed"`
	Points       int    `json:"points"`
	EarnedPoints int    `json:"earned_points"`
	Observed     string `json:"observed,omitempty"`
}

// Passed reports whether a score clears the pass threshold
func Passed(score int) bool {
	return score >= PassThreshold
}
