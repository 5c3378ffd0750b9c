package domain

import "time"

// XPPerLevel is the XP span of a single level
const XPPerLevel = 100

// Profile tracks a learner's gamified progress
type Profile struct {
	XP             int        `json:"xp"`
	Level          int        `json:"level"`
	Title          string     `json:"title"`
	Streak         int        `json:"streak"`
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`
	ToolsBuilt     int        `json:"tools_built"`
	LinesOfCode    int        `json:"lines_of_code"`
}

// Stats holds secondary counters shown on the dashboard
type Stats struct {
	LongestStreak    int            `json:"longest_streak"`
	LessonsCompleted int            `json:"lessons_completed"`
	CodeRuns         int            `json:"code_runs"`
	ErrorPatterns    map[string]int `json:"error_patterns"`
}

// levelTitle maps a minimum level to a display title
type levelTitle struct {
	MinLevel int
	Title    string
}

// levelTitles is ordered by ascending MinLevel
var levelTitles = []levelTitle{
	{1, "Novice"},
	{3, "Apprentice"},
	{5, "Scripter"},
	{10, "Developer"},
	{15, "Engineer"},
	{20, "Pythonista"},
	{30, "Guru"},
}

// NewProfile returns a level 1 profile with no XP
func NewProfile() Profile {
	return Profile{
		Level: 1,
		Title: TitleForLevel(1),
	}
}

// LevelForXP computes the level reached at the given XP
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// TitleForLevel picks the highest title whose threshold is <= level
func TitleForLevel(level int) string {
	title := levelTitles[0].Title
	for _, lt := range levelTitles {
		if lt.MinLevel <= level {
			title = lt.Title
		}
	}
	return title
}

// XPToNextLevel returns how much XP remains until the next level
func (p Profile) XPToNextLevel() int {
	return p.Level*XPPerLevel - p.XP
}
