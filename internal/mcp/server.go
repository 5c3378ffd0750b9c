package mcp

import (
	"context"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/progress"
	"github.com/felixgeelhaar/pyquest/internal/session"
)

// Server wraps the MCP server with pyquest functionality
type Server struct {
	mcpServer *server.Server
	sessions  session.SessionService
	userID    string
}

// Config contains configuration for the MCP server
type Config struct {
	Sessions session.SessionService
	UserID   string // learner the tools act on (default: "default")
	Version  string
}

// NewServer creates a new MCP server for pyquest
func NewServer(cfg Config) *Server {
	if cfg.UserID == "" {
		cfg.UserID = "default"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		sessions: cfg.Sessions,
		userID:   cfg.UserID,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "pyquest",
		Version: cfg.Version,
	}, server.WithInstructions(`
pyquest is a gamified Python course. Learners earn XP, levels, streaks and
achievements by completing lessons and building their own tools.

Available tools:
- pyquest_validate: Grade code against a lesson and record progress
- pyquest_run: Run Python code outside of a lesson
- pyquest_continue: Answer an input() prompt of a suspended run
- pyquest_profile: Show XP, level, streak and course progress
- pyquest_achievements: List achievements and which are unlocked
- pyquest_save_tool: Save a script to the learner's toolbox
`))

	s.registerTools()

	return s
}

// registerTools registers all pyquest MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("pyquest_validate").
		Description("Grade Python code against a lesson. Passing code completes the lesson and awards XP.").
		Handler(s.handleValidate)

	s.mcpServer.Tool("pyquest_run").
		Description("Run Python code. If the program calls input(), answer with pyquest_continue.").
		Handler(s.handleRun)

	s.mcpServer.Tool("pyquest_continue").
		Description("Send one line of input to a program waiting on input().").
		Handler(s.handleContinue)

	s.mcpServer.Tool("pyquest_profile").
		Description("Show the learner's XP, level, title, streak and course progress.").
		Handler(s.handleProfile)

	s.mcpServer.Tool("pyquest_achievements").
		Description("List achievements, unlocked ones first.").
		Handler(s.handleAchievements)

	s.mcpServer.Tool("pyquest_save_tool").
		Description("Save a Python script to the learner's toolbox.").
		Handler(s.handleSaveTool)
}

// Input/Output types for tools

type ValidateInput struct {
	CourseID string `json:"course_id" jsonschema:"description=Course ID, e.g. python-basics"`
	LessonID string `json:"lesson_id" jsonschema:"description=Lesson ID within the course"`
	Code     string `json:"code" jsonschema:"description=Python source to grade"`
}

type ValidateOutput struct {
	Score       int      `json:"score"`
	MaxScore    int      `json:"max_score"`
	Passed      bool     `json:"passed"`
	XPEarned    int      `json:"xp_earned"`
	Feedback    []string `json:"feedback"`
	Suggestions []string `json:"suggestions,omitempty"`
	Unlocked    []string `json:"unlocked,omitempty"`
	NextLesson  string   `json:"next_lesson,omitempty"`
	Summary     string   `json:"summary"`
}

type RunInput struct {
	Code string `json:"code" jsonschema:"description=Python source to run"`
}

type ContinueInput struct {
	Input string `json:"input" jsonschema:"description=Line of text returned from input()"`
}

type RunOutput struct {
	Output          string   `json:"output"`
	Error           string   `json:"error,omitempty"`
	WaitingForInput bool     `json:"waiting_for_input"`
	Prompt          string   `json:"prompt,omitempty"`
	Unlocked        []string `json:"unlocked,omitempty"`
}

type ProfileInput struct{}

type CourseStatus struct {
	CourseID string  `json:"course_id"`
	Percent  float64 `json:"percent"`
	Score    int     `json:"score"`
}

type ProfileOutput struct {
	XP            int            `json:"xp"`
	Level         int            `json:"level"`
	Title         string         `json:"title"`
	Streak        int            `json:"streak"`
	LongestStreak int            `json:"longest_streak"`
	ToolsBuilt    int            `json:"tools_built"`
	LinesOfCode   int            `json:"lines_of_code"`
	Courses       []CourseStatus `json:"courses,omitempty"`
}

type AchievementsInput struct {
	UnlockedOnly bool `json:"unlocked_only,omitempty" jsonschema:"description=Only list unlocked achievements"`
}

type AchievementsOutput struct {
	Achievements []domain.Achievement `json:"achievements"`
	Unlocked     int                  `json:"unlocked"`
	Total        int                  `json:"total"`
}

type SaveToolInput struct {
	Name        string `json:"name" jsonschema:"description=Tool name"`
	Description string `json:"description,omitempty" jsonschema:"description=What the tool does"`
	Code        string `json:"code" jsonschema:"description=Python source of the tool"`
}

type SaveToolOutput struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	LinesOfCode int      `json:"lines_of_code"`
	Unlocked    []string `json:"unlocked,omitempty"`
}

// Tool handlers

func (s *Server) handleValidate(ctx context.Context, input ValidateInput) (ValidateOutput, error) {
	sub, err := s.sessions.Submit(ctx, s.userID, input.CourseID, input.LessonID, input.Code)
	if err != nil {
		return ValidateOutput{}, fmt.Errorf("validate: %w", err)
	}

	result := sub.Result
	out := ValidateOutput{
		Score:       result.Score,
		MaxScore:    result.MaxScore,
		Passed:      result.CanComplete,
		Feedback:    result.Feedback,
		Suggestions: result.Suggestions,
		NextLesson:  sub.NextLesson,
	}

	if sub.Completion != nil {
		if sub.Completion.FirstCompletion {
			out.XPEarned = result.XPEarned
		}
		out.Unlocked = append(out.Unlocked, names(sub.Completion.Unlocked)...)
	}
	if sub.Streak != nil {
		out.Unlocked = append(out.Unlocked, names(sub.Streak.Unlocked)...)
	}

	switch {
	case !result.CanComplete:
		out.Summary = fmt.Sprintf("Score %d/%d. Reach %d to complete the lesson.", result.Score, result.MaxScore, domain.PassThreshold)
	case out.XPEarned > 0:
		out.Summary = fmt.Sprintf("Lesson complete! Score %d/%d, +%d XP.", result.Score, result.MaxScore, out.XPEarned)
	default:
		out.Summary = fmt.Sprintf("Lesson already complete. Score %d/%d.", result.Score, result.MaxScore)
	}
	return out, nil
}

func (s *Server) handleRun(ctx context.Context, input RunInput) (RunOutput, error) {
	out, err := s.sessions.Run(ctx, s.userID, input.Code)
	if err != nil {
		return RunOutput{}, fmt.Errorf("run: %w", err)
	}
	return runOutput(out), nil
}

func (s *Server) handleContinue(ctx context.Context, input ContinueInput) (RunOutput, error) {
	out, err := s.sessions.Continue(ctx, s.userID, input.Input)
	if err != nil {
		return RunOutput{}, fmt.Errorf("continue: %w", err)
	}
	return runOutput(out), nil
}

func runOutput(out *session.RunOutcome) RunOutput {
	return RunOutput{
		Output:          out.Result.Output,
		Error:           out.Result.Error,
		WaitingForInput: out.Result.WaitingForInput,
		Prompt:          out.Result.Prompt,
		Unlocked:        names(out.Unlocked),
	}
}

func (s *Server) handleProfile(ctx context.Context, _ ProfileInput) (ProfileOutput, error) {
	store, err := s.sessions.Progress(ctx, s.userID)
	if err != nil {
		return ProfileOutput{}, fmt.Errorf("load progress: %w", err)
	}

	snap := store.Snapshot()
	out := ProfileOutput{
		XP:            snap.Profile.XP,
		Level:         snap.Profile.Level,
		Title:         snap.Profile.Title,
		Streak:        snap.Profile.Streak,
		LongestStreak: snap.Stats.LongestStreak,
		ToolsBuilt:    snap.Profile.ToolsBuilt,
		LinesOfCode:   snap.Profile.LinesOfCode,
	}
	for _, c := range s.sessions.Lessons().ListCourses() {
		cp, ok := snap.Courses[c.ID]
		if !ok {
			continue
		}
		out.Courses = append(out.Courses, CourseStatus{
			CourseID: c.ID,
			Percent:  cp.ProgressPercent(),
			Score:    cp.Score,
		})
	}
	return out, nil
}

func (s *Server) handleAchievements(ctx context.Context, input AchievementsInput) (AchievementsOutput, error) {
	store, err := s.sessions.Progress(ctx, s.userID)
	if err != nil {
		return AchievementsOutput{}, fmt.Errorf("load progress: %w", err)
	}

	all := store.Achievements()
	var unlocked, locked []domain.Achievement
	for _, a := range all {
		if a.Unlocked {
			unlocked = append(unlocked, a)
		} else {
			locked = append(locked, a)
		}
	}

	list := unlocked
	if !input.UnlockedOnly {
		list = append(list, locked...)
	}
	if list == nil {
		list = []domain.Achievement{}
	}
	return AchievementsOutput{
		Achievements: list,
		Unlocked:     len(unlocked),
		Total:        len(all),
	}, nil
}

func (s *Server) handleSaveTool(ctx context.Context, input SaveToolInput) (SaveToolOutput, error) {
	if strings.TrimSpace(input.Code) == "" {
		return SaveToolOutput{}, fmt.Errorf("save tool: %w", session.ErrEmptyCode)
	}

	store, err := s.sessions.Progress(ctx, s.userID)
	if err != nil {
		return SaveToolOutput{}, fmt.Errorf("load progress: %w", err)
	}

	tool, unlocked := store.SaveTool(ctx, progress.ToolInput{
		Name:        input.Name,
		Description: input.Description,
		Code:        input.Code,
	})
	return SaveToolOutput{
		ID:          tool.ID,
		Name:        tool.Name,
		LinesOfCode: tool.LinesOfCode,
		Unlocked:    names(unlocked),
	}, nil
}

func names(achievements []domain.Achievement) []string {
	out := make([]string, 0, len(achievements))
	for _, a := range achievements {
		out = append(out, a.Name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
