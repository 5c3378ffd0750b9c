package progress

import "github.com/felixgeelhaar/pyquest/internal/domain"

// Trigger names the mutation that caused an achievement check
type Trigger string

const (
	TriggerFirstPrint     Trigger = "first_print"
	TriggerUseLoop        Trigger = "use_loop"
	TriggerUseFunction    Trigger = "use_function"
	TriggerUsePandas      Trigger = "use_pandas"
	TriggerSaveTool       Trigger = "save_tool"
	TriggerLinesWritten   Trigger = "lines_written"
	TriggerStreak         Trigger = "streak"
	TriggerLessonComplete Trigger = "lesson_complete"
	TriggerCourseComplete Trigger = "course_complete"
)

// rule binds a catalog entry to the trigger that re-evaluates it
type rule struct {
	achievement domain.Achievement
	trigger     Trigger
	satisfied   func(s *State) bool
}

func always(*State) bool { return true }

var catalog = []rule{
	{domain.Achievement{ID: "first_steps", Name: "First Steps", Description: "Print your first line of output",
		XPReward: 10, Rarity: domain.RarityCommon, Category: domain.CategoryBasics},
		TriggerFirstPrint, always},
	{domain.Achievement{ID: "loop_master", Name: "Loop Master", Description: "Write your first loop",
		XPReward: 20, Rarity: domain.RarityCommon, Category: domain.CategoryBasics},
		TriggerUseLoop, always},
	{domain.Achievement{ID: "function_writer", Name: "Function Writer", Description: "Define your first function",
		XPReward: 25, Rarity: domain.RarityCommon, Category: domain.CategoryCode},
		TriggerUseFunction, always},
	{domain.Achievement{ID: "data_wrangler", Name: "Data Wrangler", Description: "Import pandas for the first time",
		XPReward: 50, Rarity: domain.RarityRare, Category: domain.CategoryData},
		TriggerUsePandas, always},
	{domain.Achievement{ID: "first_tool", Name: "Toolmaker", Description: "Save your first tool",
		XPReward: 25, Rarity: domain.RarityCommon, Category: domain.CategoryTools},
		TriggerSaveTool, func(s *State) bool { return s.Profile.ToolsBuilt >= 1 }},
	{domain.Achievement{ID: "toolsmith", Name: "Toolsmith", Description: "Build 10 tools",
		XPReward: 100, Rarity: domain.RarityRare, Category: domain.CategoryTools},
		TriggerSaveTool, func(s *State) bool { return s.Profile.ToolsBuilt >= 10 }},
	{domain.Achievement{ID: "tool_factory", Name: "Tool Factory", Description: "Build 25 tools",
		XPReward: 250, Rarity: domain.RarityEpic, Category: domain.CategoryTools},
		TriggerSaveTool, func(s *State) bool { return s.Profile.ToolsBuilt >= 25 }},
	{domain.Achievement{ID: "code_marathon", Name: "Code Marathon", Description: "Write 1,000 lines of code",
		XPReward: 100, Rarity: domain.RarityRare, Category: domain.CategoryCode},
		TriggerLinesWritten, func(s *State) bool { return s.Profile.LinesOfCode >= 1000 }},
	{domain.Achievement{ID: "prolific_coder", Name: "Prolific Coder", Description: "Write 5,000 lines of code",
		XPReward: 500, Rarity: domain.RarityLegendary, Category: domain.CategoryCode},
		TriggerLinesWritten, func(s *State) bool { return s.Profile.LinesOfCode >= 5000 }},
	{domain.Achievement{ID: "week_streak", Name: "On Fire", Description: "Practice 7 days in a row",
		XPReward: 75, Rarity: domain.RarityRare, Category: domain.CategoryStreaks},
		TriggerStreak, func(s *State) bool { return s.Profile.Streak >= 7 }},
	{domain.Achievement{ID: "month_streak", Name: "Unstoppable", Description: "Practice 30 days in a row",
		XPReward: 300, Rarity: domain.RarityLegendary, Category: domain.CategoryStreaks},
		TriggerStreak, func(s *State) bool { return s.Profile.Streak >= 30 }},
	{domain.Achievement{ID: "first_lesson", Name: "Quick Learner", Description: "Complete your first lesson",
		XPReward: 15, Rarity: domain.RarityCommon, Category: domain.CategoryLearning},
		TriggerLessonComplete, func(s *State) bool { return s.Stats.LessonsCompleted >= 1 }},
	{domain.Achievement{ID: "course_graduate", Name: "Graduate", Description: "Finish every lesson in a course",
		XPReward: 200, Rarity: domain.RarityEpic, Category: domain.CategoryLearning},
		TriggerCourseComplete, func(s *State) bool {
			for _, cp := range s.Courses {
				if cp.IsFinished() {
					return true
				}
			}
			return false
		}},
}

// Catalog returns the static achievement definitions, all locked
func Catalog() []domain.Achievement {
	out := make([]domain.Achievement, len(catalog))
	for i, r := range catalog {
		out[i] = r.achievement
	}
	return out
}
