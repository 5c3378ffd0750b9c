package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// StorageKey is the fixed collection every progress blob is stored under
const StorageKey = "pyquest-progress"

// stateVersion is bumped when the blob layout changes incompatibly
const stateVersion = 1

// BlobStore persists one opaque JSON blob per key. Every Put replaces the
// whole blob. Get returns domain.ErrNotFound when the key is absent.
type BlobStore interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, blob []byte) error
	Delete(ctx context.Context, collection, key string) error
	Keys(ctx context.Context, collection string) ([]string, error)
}

// State is the full persisted progress of one learner
type State struct {
	Version      int                               `json:"version"`
	UserID       string                            `json:"user_id"`
	Profile      domain.Profile                    `json:"profile"`
	Stats        domain.Stats                      `json:"stats"`
	Achievements []domain.Achievement              `json:"achievements"`
	Tools        []domain.UserTool                 `json:"tools"`
	Courses      map[string]*domain.CourseProgress `json:"courses"`
	UpdatedAt    time.Time                         `json:"updated_at"`
}

// newState returns level 1 progress with the catalog fully locked
func newState(userID string) *State {
	return &State{
		Version:      stateVersion,
		UserID:       userID,
		Profile:      domain.NewProfile(),
		Stats:        domain.Stats{ErrorPatterns: make(map[string]int)},
		Achievements: Catalog(),
		Tools:        []domain.UserTool{},
		Courses:      make(map[string]*domain.CourseProgress),
	}
}

// decodeState parses a blob and reconciles it with the current catalog.
// Static achievement fields always come from the catalog; only the unlock
// state is taken from the blob.
func decodeState(userID string, blob []byte) (*State, error) {
	var stored State
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}

	state := newState(userID)
	state.Profile = stored.Profile
	state.Stats = stored.Stats
	state.UpdatedAt = stored.UpdatedAt
	if stored.Tools != nil {
		state.Tools = stored.Tools
	}
	if stored.Courses != nil {
		state.Courses = stored.Courses
	}
	if state.Stats.ErrorPatterns == nil {
		state.Stats.ErrorPatterns = make(map[string]int)
	}

	unlocked := make(map[string]domain.Achievement, len(stored.Achievements))
	for _, a := range stored.Achievements {
		if a.Unlocked {
			unlocked[a.ID] = a
		}
	}
	for i := range state.Achievements {
		if a, ok := unlocked[state.Achievements[i].ID]; ok {
			state.Achievements[i].Unlocked = true
			state.Achievements[i].UnlockedAt = a.UnlockedAt
		}
	}

	// Level and title are derived; recompute in case the table changed.
	state.Profile.Level = domain.LevelForXP(state.Profile.XP)
	state.Profile.Title = domain.TitleForLevel(state.Profile.Level)
	return state, nil
}

// clone returns a deep copy safe to hand out of the store
func (s *State) clone() State {
	out := *s

	if s.Profile.LastActiveDate != nil {
		t := *s.Profile.LastActiveDate
		out.Profile.LastActiveDate = &t
	}

	out.Stats.ErrorPatterns = make(map[string]int, len(s.Stats.ErrorPatterns))
	for k, v := range s.Stats.ErrorPatterns {
		out.Stats.ErrorPatterns[k] = v
	}

	out.Achievements = make([]domain.Achievement, len(s.Achievements))
	for i, a := range s.Achievements {
		if a.UnlockedAt != nil {
			t := *a.UnlockedAt
			a.UnlockedAt = &t
		}
		out.Achievements[i] = a
	}

	out.Tools = append([]domain.UserTool{}, s.Tools...)

	out.Courses = make(map[string]*domain.CourseProgress, len(s.Courses))
	for id, cp := range s.Courses {
		out.Courses[id] = cloneCourse(cp)
	}
	return out
}

func cloneCourse(cp *domain.CourseProgress) *domain.CourseProgress {
	c := *cp
	c.CompletedLessons = make(map[string]time.Time, len(cp.CompletedLessons))
	for id, at := range cp.CompletedLessons {
		c.CompletedLessons[id] = at
	}
	return &c
}
