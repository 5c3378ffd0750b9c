package progress

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// ToolInput is the user-supplied part of a tool
type ToolInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code"`
}

// SaveTool adds a new tool to the learner's toolbox. Counters are updated
// before the save_tool and then lines_written achievements are evaluated.
func (s *Store) SaveTool(ctx context.Context, in ToolInput) (*domain.UserTool, []domain.Achievement) {
	var (
		tool     domain.UserTool
		unlocked []domain.Achievement
	)

	s.apply(ctx, func() {
		now := s.now()
		tool = domain.UserTool{
			ID:           uuid.NewString(),
			Name:         toolName(in.Name),
			Description:  in.Description,
			Code:         in.Code,
			LinesOfCode:  domain.CountLines(in.Code),
			Version:      1,
			CreatedAt:    now,
			LastModified: now,
		}
		s.state.Tools = append(s.state.Tools, tool)

		s.state.Profile.ToolsBuilt++
		s.state.Profile.LinesOfCode += tool.LinesOfCode
		s.emit(domain.EventToolSaved, map[string]any{"id": tool.ID, "name": tool.Name, "lines": tool.LinesOfCode})

		unlocked = append(unlocked, s.checkLocked(TriggerSaveTool)...)
		unlocked = append(unlocked, s.checkLocked(TriggerLinesWritten)...)
	})

	return &tool, unlocked
}

// UpdateTool replaces a tool's content and bumps its version. Only growth
// in line count is added to the lifetime LinesOfCode counter.
func (s *Store) UpdateTool(ctx context.Context, id string, in ToolInput) (*domain.UserTool, error) {
	var (
		updated domain.UserTool
		found   bool
	)

	s.mutate(ctx, func() bool {
		idx := s.toolIndexLocked(id)
		if idx < 0 {
			return false
		}
		found = true

		t := &s.state.Tools[idx]
		if in.Name != "" {
			t.Name = in.Name
		}
		if in.Description != "" {
			t.Description = in.Description
		}

		lines := domain.CountLines(in.Code)
		delta := lines - t.LinesOfCode
		t.Code = in.Code
		t.LinesOfCode = lines
		t.Version++
		t.LastModified = s.now()

		if delta > 0 {
			s.state.Profile.LinesOfCode += delta
		}
		s.emit(domain.EventToolUpdated, map[string]any{"id": t.ID, "version": t.Version})
		if delta > 0 {
			s.checkLocked(TriggerLinesWritten)
		}
		updated = *t
		return true
	})

	if !found {
		return nil, domain.ErrToolNotFound
	}
	return &updated, nil
}

// DeleteTool removes a tool. Lifetime counters are not decreased.
func (s *Store) DeleteTool(ctx context.Context, id string) error {
	var found bool

	s.mutate(ctx, func() bool {
		idx := s.toolIndexLocked(id)
		if idx < 0 {
			return false
		}
		found = true
		s.state.Tools = append(s.state.Tools[:idx], s.state.Tools[idx+1:]...)
		s.emit(domain.EventToolDeleted, map[string]any{"id": id})
		return true
	})

	if !found {
		return domain.ErrToolNotFound
	}
	return nil
}

// Tool returns a tool by id
func (s *Store) Tool(id string) (*domain.UserTool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.toolIndexLocked(id)
	if idx < 0 {
		return nil, domain.ErrToolNotFound
	}
	t := s.state.Tools[idx]
	return &t, nil
}

// Tools returns every saved tool in creation order
func (s *Store) Tools() []domain.UserTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UserTool{}, s.state.Tools...)
}

func (s *Store) toolIndexLocked(id string) int {
	for i, t := range s.state.Tools {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func toolName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Untitled tool"
	}
	return name
}
