// Package validator grades learner submissions against a lesson's outcome
// rubric. Validation never fails: internal problems become a zero score
// with an explanatory feedback entry.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/progress"
	"github.com/felixgeelhaar/pyquest/internal/runtime"
)

// Tracking actions
const (
	ActionCodeRun  = "code_run"
	ActionTestCase = "test_case"
)

// TrackFunc receives telemetry for each validation step
type TrackFunc func(action string, payload map[string]any)

// sourceRouted lists description words that make a test case inspect the
// submitted source instead of program output
var sourceRouted = []string{"keyword", "contains", "variable", "function"}

const maxObserved = 500

// Validator runs and grades submissions
type Validator struct {
	runtime runtime.Runtime
	track   TrackFunc
	logger  *slog.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithTracker installs a telemetry callback
func WithTracker(fn TrackFunc) Option {
	return func(v *Validator) { v.track = fn }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// New creates a validator executing code through rt
func New(rt runtime.Runtime, opts ...Option) *Validator {
	v := &Validator{runtime: rt, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate grades code against lesson. It always returns a result.
func (v *Validator) Validate(ctx context.Context, code string, lesson *domain.Lesson) (result *domain.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation panicked", "error", r)
			result = failure(fmt.Sprintf("Something went wrong while checking your code: %v", r))
		}
	}()

	if lesson == nil {
		return failure("This lesson has no rubric to check against.")
	}

	if lesson.Outcome == nil {
		return &domain.ValidationResult{
			Score:       domain.PerfectScore,
			MaxScore:    domain.PerfectScore,
			CanComplete: true,
			TestResults: []domain.TestResult{},
			XPEarned:    lesson.BaseXP,
			Feedback:    []string{"Lesson complete!"},
			Suggestions: []string{},
		}
	}

	return v.grade(ctx, code, lesson)
}

func (v *Validator) grade(ctx context.Context, code string, lesson *domain.Lesson) *domain.ValidationResult {
	outcome := lesson.Outcome

	run, err := v.execute(ctx, code, nil)
	v.emit(ActionCodeRun, map[string]any{
		"lesson_id": lesson.ID,
		"success":   err == nil && !run.Failed(),
	})
	if err != nil {
		v.logger.Warn("runtime failed during validation", "lesson", lesson.ID, "error", err)
		return failure(fmt.Sprintf("Could not run your code: %v", err))
	}

	result := &domain.ValidationResult{
		TestResults: make([]domain.TestResult, 0, len(outcome.TestCases)),
		Feedback:    []string{},
		Suggestions: []string{},
		Output:      run.Output,
		Error:       run.Error,
	}

	if run.Failed() && outcome.HasNoErrors {
		class := progress.ClassifyError(run.Error)
		total := 0
		for _, tc := range outcome.TestCases {
			points := max(tc.Points, 0)
			total += points
			result.TestResults = append(result.TestResults, domain.TestResult{
				Description: tc.Description,
				Points:      points,
			})
		}
		result.MaxScore = max(total, domain.PerfectScore)
		result.Feedback = append(result.Feedback, "Your code raised an error: "+class.Message)
		if class.Hint != "" {
			result.Suggestions = append(result.Suggestions, class.Hint)
		}
		return result
	}
	if run.WaitingForInput {
		result.Suggestions = append(result.Suggestions, "Your program is still waiting for input.")
	}

	total, earned := 0, 0

	if outcome.ExpectedOutput != nil && !outcome.ExpectedOutput.IsZero() {
		total += domain.OutputPoints
		if outcome.ExpectedOutput.Matches(run.Output) {
			earned += domain.OutputPoints
			result.Feedback = append(result.Feedback, "Output matches the expected result.")
		} else {
			result.Feedback = append(result.Feedback, describeMismatch(*outcome.ExpectedOutput, run.Output))
			if run.Failed() {
				result.Suggestions = append(result.Suggestions, "Fix the error first: "+progress.ClassifyError(run.Error).Message)
			}
		}
	}

	if len(outcome.ContainsKeywords) > 0 {
		total += domain.KeywordPoints
		if missing := missingKeywords(code, outcome.ContainsKeywords); len(missing) == 0 {
			earned += domain.KeywordPoints
			result.Feedback = append(result.Feedback, "Your code uses all the required keywords.")
		} else {
			result.Feedback = append(result.Feedback, "Missing required code: "+strings.Join(missing, ", "))
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("Try using %s in your solution.", strings.Join(missing, " and ")))
		}
	}

	for i, tc := range outcome.TestCases {
		points := max(tc.Points, 0)
		total += points

		tr, err := v.runTestCase(ctx, code, tc)
		if err != nil {
			v.logger.Warn("runtime failed during test case", "lesson", lesson.ID, "case", i, "error", err)
			return failure(fmt.Sprintf("Could not run test %q: %v", tc.Description, err))
		}
		tr.Points = points
		if tr.Passed {
			tr.EarnedPoints = points
			earned += points
		} else {
			result.Feedback = append(result.Feedback, fmt.Sprintf("Test failed: %s (expected %s)", tc.Description, describeExpected(tc.ExpectedOutput)))
		}
		result.TestResults = append(result.TestResults, tr)

		v.emit(ActionTestCase, map[string]any{
			"lesson_id":   lesson.ID,
			"index":       i,
			"description": tc.Description,
			"passed":      tr.Passed,
		})
	}

	if total > 0 {
		result.Score = int(math.Round(100 * float64(earned) / float64(total)))
	}
	result.MaxScore = max(total, domain.PerfectScore)
	result.CanComplete = domain.Passed(result.Score)
	result.XPEarned = xpFor(lesson, result.Score, result.CanComplete)

	switch {
	case result.Score == domain.PerfectScore:
		result.Feedback = append(result.Feedback, "Perfect! Every check passed.")
	case result.CanComplete:
		result.Feedback = append(result.Feedback, fmt.Sprintf("Passed with %d%%.", result.Score))
	default:
		result.Feedback = append(result.Feedback, fmt.Sprintf("Score %d%%. You need %d%% to complete this lesson.", result.Score, domain.PassThreshold))
		if len(lesson.Hints) > 0 {
			result.Suggestions = append(result.Suggestions, lesson.Hints[0])
		}
	}
	return result
}

// runTestCase matches a test case either against the source or against
// the output of a fresh run with the case's input queued
func (v *Validator) runTestCase(ctx context.Context, code string, tc domain.TestCase) (domain.TestResult, error) {
	tr := domain.TestResult{Description: tc.Description}

	if isSourceRouted(tc.Description) {
		tr.Passed = tc.ExpectedOutput.Matches(code)
		return tr, nil
	}

	source := code
	if len(tc.Input) > 0 {
		source += "\n# test input: " + strings.Join(tc.Input, ", ")
	}
	run, err := v.execute(ctx, source, tc.Input)
	if err != nil {
		return tr, err
	}

	observed := run.Output
	if observed == "" && run.Failed() {
		observed = run.Error
	}
	tr.Passed = tc.ExpectedOutput.Matches(run.Output)
	tr.Observed = truncate(observed, maxObserved)
	return tr, nil
}

// execute runs code feeding inputs through the run/continue protocol
func (v *Validator) execute(ctx context.Context, code string, inputs []string) (*runtime.Result, error) {
	if len(inputs) > 0 {
		if ir, ok := v.runtime.(runtime.InputRunner); ok {
			return ir.RunWithInput(ctx, code, inputs)
		}
	}

	result, err := v.runtime.Run(ctx, code)
	for _, in := range inputs {
		if err != nil || !result.WaitingForInput {
			break
		}
		result, err = v.runtime.Continue(ctx, in)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("runtime returned no result")
	}
	return result, nil
}

func (v *Validator) emit(action string, payload map[string]any) {
	if v.track == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("tracking callback panicked", "action", action, "error", r)
		}
	}()
	v.track(action, payload)
}

func xpFor(lesson *domain.Lesson, score int, canComplete bool) int {
	switch {
	case canComplete:
		xp := lesson.BaseXP
		if score == domain.PerfectScore && lesson.BonusXP > 0 {
			xp += lesson.BonusXP
		}
		return xp
	case lesson.PartialCredit:
		return int(math.Round(float64(lesson.BaseXP) * float64(score) / 100))
	default:
		return 0
	}
}

func failure(message string) *domain.ValidationResult {
	return &domain.ValidationResult{
		MaxScore:    domain.PerfectScore,
		TestResults: []domain.TestResult{},
		Feedback:    []string{message},
		Suggestions: []string{},
	}
}

func isSourceRouted(description string) bool {
	d := strings.ToLower(description)
	for _, word := range sourceRouted {
		if strings.Contains(d, word) {
			return true
		}
	}
	return false
}

func missingKeywords(code string, keywords []string) []string {
	lower := strings.ToLower(code)
	var missing []string
	for _, k := range keywords {
		if !strings.Contains(lower, strings.ToLower(k)) {
			missing = append(missing, k)
		}
	}
	return missing
}

func describeMismatch(expected domain.ExpectedOutput, got string) string {
	got = truncate(strings.TrimSpace(got), 120)
	if expected.Kind() == domain.ExpectedPattern {
		return fmt.Sprintf("Output %q does not have the expected format.", got)
	}
	return fmt.Sprintf("Expected output %q but got %q.", strings.TrimSpace(expected.String()), got)
}

func describeExpected(expected domain.ExpectedOutput) string {
	if expected.Kind() == domain.ExpectedPattern {
		return "output matching /" + expected.String() + "/"
	}
	return fmt.Sprintf("%q", strings.TrimSpace(expected.String()))
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
