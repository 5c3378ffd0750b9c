package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/progress"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":        "running",
		"version":       s.version,
		"runtime":       s.cfg.Runtime.Backend,
		"runtime_ready": s.sessions.RuntimeReady(),
		"content":       s.sessions.Lessons().Stats(),
		"sync":          s.cfg.Sync.Enabled,
	})
}

// Content handlers

// courseSummary is a course without its lessons, plus the learner's progress
type courseSummary struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Difficulty      string  `json:"difficulty,omitempty"`
	TotalLessons    int     `json:"total_lessons"`
	ProgressPercent float64 `json:"progress_percent"`
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	store, err := s.sessions.Progress(r.Context(), GetUserID(r.Context()))
	if err != nil {
		s.fail(w, "failed to load progress", err)
		return
	}

	courses := s.sessions.Lessons().ListCourses()
	summaries := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		summary := courseSummary{
			ID:           c.ID,
			Title:        c.Title,
			Description:  c.Description,
			Difficulty:   c.Difficulty,
			TotalLessons: c.TotalLessons(),
		}
		if cp := store.Course(c.ID); cp != nil {
			summary.ProgressPercent = cp.ProgressPercent()
		}
		summaries = append(summaries, summary)
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"courses": summaries,
		"count":   len(summaries),
	})
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.sessions.Lessons().GetCourse(chi.URLParam(r, "course"))
	if err != nil {
		s.fail(w, "course not found", err)
		return
	}
	store, err := s.sessions.Progress(r.Context(), GetUserID(r.Context()))
	if err != nil {
		s.fail(w, "failed to load progress", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"course":   course,
		"progress": store.Course(course.ID),
	})
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	course, lesson, err := s.sessions.Lessons().GetLesson(chi.URLParam(r, "course"), chi.URLParam(r, "lesson"))
	if err != nil {
		s.fail(w, "lesson not found", err)
		return
	}
	store, err := s.sessions.Progress(r.Context(), GetUserID(r.Context()))
	if err != nil {
		s.fail(w, "failed to load progress", err)
		return
	}

	completed := false
	if cp := store.Course(course.ID); cp != nil {
		completed = cp.IsCompleted(lesson.ID)
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"lesson":    lesson,
		"completed": completed,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	sub, err := s.sessions.Submit(r.Context(), GetUserID(r.Context()),
		chi.URLParam(r, "course"), chi.URLParam(r, "lesson"), req.Code)
	if err != nil {
		s.fail(w, "validation failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sub)
}

// Run handlers

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.sessions.Run(r.Context(), GetUserID(r.Context()), req.Code)
	if err != nil {
		s.fail(w, "run failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.sessions.Continue(r.Context(), GetUserID(r.Context()), req.Input)
	if err != nil {
		s.fail(w, "continue failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, out)
}

// Progress handlers

// store resolves the acting learner's progress, writing an error on failure
func (s *Server) store(w http.ResponseWriter, r *http.Request) (*progress.Store, bool) {
	store, err := s.sessions.Progress(r.Context(), GetUserID(r.Context()))
	if err != nil {
		s.fail(w, "failed to load progress", err)
		return nil, false
	}
	return store, true
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"user_id": store.UserID(),
		"profile": store.Profile(),
		"stats":   store.Stats(),
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, store.Snapshot())
}

func (s *Server) handleUpdateStreak(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, store.UpdateStreak(r.Context()))
}

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Amount < 0 {
		s.fail(w, "amount must not be negative", domain.ErrInvalidAmount)
		return
	}

	store, ok := s.store(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, store.AwardXP(r.Context(), req.Amount, req.Reason))
}

// Achievement handlers

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}

	achievements := store.Achievements()
	unlocked := 0
	for _, a := range achievements {
		if a.Unlocked {
			unlocked++
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"achievements": achievements,
		"unlocked":     unlocked,
		"total":        len(achievements),
	})
}

func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !knownAchievement(id) {
		s.fail(w, "achievement not found", domain.ErrAchievementNotFound)
		return
	}

	store, ok := s.store(w, r)
	if !ok {
		return
	}
	achievement := store.UnlockAchievement(r.Context(), id)
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"unlocked":    achievement != nil,
		"achievement": achievement,
	})
}

func knownAchievement(id string) bool {
	for _, a := range progress.Catalog() {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Tool handlers

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	tools := store.Tools()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"tools": tools,
		"count": len(tools),
	})
}

func (s *Server) handleSaveTool(w http.ResponseWriter, r *http.Request) {
	var req progress.ToolInput
	if !s.decode(w, r, &req) {
		return
	}

	store, ok := s.store(w, r)
	if !ok {
		return
	}
	tool, unlocked := store.SaveTool(r.Context(), req)
	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"tool":     tool,
		"unlocked": unlocked,
	})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	tool, err := store.Tool(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "tool not found", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tool)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	var req progress.ToolInput
	if !s.decode(w, r, &req) {
		return
	}

	store, ok := s.store(w, r)
	if !ok {
		return
	}
	tool, err := store.UpdateTool(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, "failed to update tool", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tool)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	if err := store.DeleteTool(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "failed to delete tool", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handlers

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.jsonError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	attempts, err := s.sessions.Attempts(r.Context(), GetUserID(r.Context()), r.URL.Query().Get("lesson"), limit)
	if err != nil {
		s.fail(w, "failed to list attempts", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"attempts": attempts,
		"count":    len(attempts),
	})
}
