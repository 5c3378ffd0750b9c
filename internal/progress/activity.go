package progress

import (
	"context"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// LessonCompletion is the input to CompleteLesson
type LessonCompletion struct {
	CourseID     string
	LessonID     string
	TotalLessons int
	Score        int
	XPEarned     int
}

// CompletionResult reports what CompleteLesson changed
type CompletionResult struct {
	FirstCompletion bool                   `json:"first_completion"`
	XP              XPAward                `json:"xp"`
	Course          *domain.CourseProgress `json:"course"`
	Unlocked        []domain.Achievement   `json:"unlocked,omitempty"`
}

// CompleteLesson marks a lesson finished. XP and the lesson's score are
// added to the course only the first time a lesson is completed.
func (s *Store) CompleteLesson(ctx context.Context, in LessonCompletion) CompletionResult {
	var out CompletionResult

	s.apply(ctx, func() {
		cp, ok := s.state.Courses[in.CourseID]
		if !ok {
			cp = domain.NewCourseProgress(in.CourseID, in.TotalLessons)
			s.state.Courses[in.CourseID] = cp
		}
		if in.TotalLessons > 0 {
			cp.TotalLessons = in.TotalLessons
		}
		cp.UpdatedAt = s.now()

		if !cp.IsCompleted(in.LessonID) {
			out.FirstCompletion = true
			cp.CompletedLessons[in.LessonID] = s.now()
			cp.Score += in.Score
			s.state.Stats.LessonsCompleted++

			s.emit(domain.EventLessonCompleted, map[string]any{
				"course_id": in.CourseID,
				"lesson_id": in.LessonID,
				"score":     in.Score,
			})
			out.XP = s.awardXPLocked(in.XPEarned, "lesson: "+in.LessonID)

			out.Unlocked = append(out.Unlocked, s.checkLocked(TriggerLessonComplete)...)
			if cp.IsFinished() {
				out.Unlocked = append(out.Unlocked, s.checkLocked(TriggerCourseComplete)...)
			}
		} else {
			out.XP = XPAward{NewXP: s.state.Profile.XP}
		}
		out.Course = cloneCourse(cp)
	})
	return out
}

var (
	printCall   = regexp.MustCompile(`\bprint\s*\(`)
	loopStmt    = regexp.MustCompile(`(?m)^\s*(for|while)\b`)
	funcDef     = regexp.MustCompile(`(?m)^\s*(async\s+)?def\s+\w+\s*\(`)
	pandasStmt  = regexp.MustCompile(`(?m)^\s*(import\s+pandas\b|from\s+pandas\b)`)
	commentLine = regexp.MustCompile(`(?m)#.*$`)
)

// CodeRun is the input to RecordCodeRun
type CodeRun struct {
	Code   string
	Output string
	Error  string
}

// RecordCodeRun counts a run, tallies error patterns and unlocks the
// language milestones the code demonstrates
func (s *Store) RecordCodeRun(ctx context.Context, run CodeRun) []domain.Achievement {
	var unlocked []domain.Achievement

	s.apply(ctx, func() {
		s.state.Stats.CodeRuns++

		payload := map[string]any{"lines": domain.CountLines(run.Code)}
		if run.Error != "" {
			class := ClassifyError(run.Error)
			s.state.Stats.ErrorPatterns[class.Signature]++
			payload["error"] = class.Signature
		}
		s.emit(domain.EventCodeRun, payload)

		for _, trigger := range milestones(run) {
			unlocked = append(unlocked, s.checkLocked(trigger)...)
		}
	})
	return unlocked
}

// milestones lists the triggers demonstrated by a run. Only runs that
// finished without an error count.
func milestones(run CodeRun) []Trigger {
	if run.Error != "" {
		return nil
	}

	code := commentLine.ReplaceAllString(run.Code, "")
	var triggers []Trigger
	if printCall.MatchString(code) && strings.TrimSpace(run.Output) != "" {
		triggers = append(triggers, TriggerFirstPrint)
	}
	if loopStmt.MatchString(code) {
		triggers = append(triggers, TriggerUseLoop)
	}
	if funcDef.MatchString(code) {
		triggers = append(triggers, TriggerUseFunction)
	}
	if pandasStmt.MatchString(code) {
		triggers = append(triggers, TriggerUsePandas)
	}
	return triggers
}
