// Package progress keeps a learner's gamified state: XP and levels,
// achievements, streaks, saved tools and course progress.
//
// Every mutation applies its change, evaluates achievement predicates over
// the updated state, then writes the whole state back as one blob. Storage
// failures are logged and swallowed; the in-memory state stays
// authoritative and the next mutation rewrites it in full.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// XPAward reports the outcome of AwardXP
type XPAward struct {
	NewXP     int    `json:"new_xp"`
	LeveledUp bool   `json:"leveled_up"`
	NewLevel  int    `json:"new_level,omitempty"`
	NewTitle  string `json:"new_title,omitempty"`
}

// Store is the progress of a single learner
type Store struct {
	userID string
	blobs  BlobStore
	events *domain.EventDispatcher
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   *State
	pending []domain.ProgressEvent
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for persistence failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithEvents publishes every mutation to dispatcher
func WithEvents(dispatcher *domain.EventDispatcher) Option {
	return func(s *Store) { s.events = dispatcher }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the learner's progress from blobs, starting fresh when no
// blob exists. An unreadable blob is logged and replaced by fresh state.
func Open(ctx context.Context, userID string, blobs BlobStore, opts ...Option) (*Store, error) {
	s := &Store{
		userID: userID,
		blobs:  blobs,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	blob, err := blobs.Get(ctx, StorageKey, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.state = newState(userID)
	case err != nil:
		return nil, fmt.Errorf("load progress for %s: %w", userID, err)
	default:
		state, err := decodeState(userID, blob)
		if err != nil {
			s.logger.Warn("discarding unreadable progress", "user", userID, "error", err)
			state = newState(userID)
		}
		s.state = state
	}
	return s, nil
}

// UserID returns the learner this store belongs to
func (s *Store) UserID() string {
	return s.userID
}

// apply runs fn under the lock, persists, then publishes queued events
// after the lock is released so handlers may read the store.
func (s *Store) apply(ctx context.Context, fn func()) {
	s.mutate(ctx, func() bool {
		fn()
		return true
	})
}

// mutate is apply for changes that may turn out to be no-ops; nothing is
// persisted or published when fn returns false.
func (s *Store) mutate(ctx context.Context, fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.pending = nil
		s.mu.Unlock()
		return
	}
	s.state.UpdatedAt = s.now()
	s.persistLocked(ctx)
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	if s.events != nil {
		s.events.PublishAll(events)
	}
}

func (s *Store) persistLocked(ctx context.Context) {
	blob, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Error("encode progress", "user", s.userID, "error", err)
		return
	}
	if err := s.blobs.Put(ctx, StorageKey, s.userID, blob); err != nil {
		s.logger.Error("persist progress", "user", s.userID, "error", err)
	}
}

func (s *Store) emit(eventType domain.EventType, payload map[string]any) {
	event := domain.NewProgressEvent(s.userID, eventType, payload)
	event.OccurredAt = s.now()
	s.pending = append(s.pending, event)
}

// AwardXP adds amount to the learner's XP. Negative amounts are treated
// as zero so XP never decreases.
func (s *Store) AwardXP(ctx context.Context, amount int, reason string) XPAward {
	var award XPAward
	s.apply(ctx, func() { award = s.awardXPLocked(amount, reason) })
	return award
}

func (s *Store) awardXPLocked(amount int, reason string) XPAward {
	if amount < 0 {
		amount = 0
	}

	p := &s.state.Profile
	p.XP += amount
	award := XPAward{NewXP: p.XP}

	level := domain.LevelForXP(p.XP)
	if level > p.Level {
		p.Level = level
		p.Title = domain.TitleForLevel(level)
		award.LeveledUp = true
		award.NewLevel = level
		award.NewTitle = p.Title
	}

	if amount > 0 {
		s.emit(domain.EventXPAwarded, map[string]any{"amount": amount, "reason": reason, "xp": p.XP})
	}
	if award.LeveledUp {
		s.emit(domain.EventLevelUp, map[string]any{"level": award.NewLevel, "title": award.NewTitle})
	}
	return award
}

// UnlockAchievement unlocks id and grants its XP reward. It returns nil
// when id is unknown or already unlocked.
func (s *Store) UnlockAchievement(ctx context.Context, id string) *domain.Achievement {
	var unlocked *domain.Achievement
	s.mutate(ctx, func() bool {
		unlocked = s.unlockLocked(id)
		return unlocked != nil
	})
	return unlocked
}

func (s *Store) unlockLocked(id string) *domain.Achievement {
	for i := range s.state.Achievements {
		a := &s.state.Achievements[i]
		if a.ID != id {
			continue
		}
		if a.Unlocked {
			return nil
		}

		now := s.now()
		a.Unlocked = true
		a.UnlockedAt = &now
		s.emit(domain.EventAchievementUnlocked, map[string]any{"id": a.ID, "name": a.Name, "xp_reward": a.XPReward})
		s.awardXPLocked(a.XPReward, "achievement: "+a.Name)

		out := *a
		t := now
		out.UnlockedAt = &t
		return &out
	}
	return nil
}

// checkLocked evaluates every rule bound to trigger against the current
// state and unlocks the satisfied ones in catalog order
func (s *Store) checkLocked(trigger Trigger) []domain.Achievement {
	var unlocked []domain.Achievement
	for _, r := range catalog {
		if r.trigger != trigger || !r.satisfied(s.state) {
			continue
		}
		if a := s.unlockLocked(r.achievement.ID); a != nil {
			unlocked = append(unlocked, *a)
		}
	}
	return unlocked
}

// Snapshot returns a deep copy of the full state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Profile returns the learner's profile
func (s *Store) Profile() domain.Profile {
	snap := s.Snapshot()
	return snap.Profile
}

// Stats returns secondary counters
func (s *Store) Stats() domain.Stats {
	snap := s.Snapshot()
	return snap.Stats
}

// Achievements returns the catalog with the learner's unlock state
func (s *Store) Achievements() []domain.Achievement {
	snap := s.Snapshot()
	return snap.Achievements
}

// Course returns progress for a course, or nil if never started
func (s *Store) Course(courseID string) *domain.CourseProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.state.Courses[courseID]
	if !ok {
		return nil
	}
	return cloneCourse(cp)
}

// Reset discards all progress
func (s *Store) Reset(ctx context.Context) {
	s.apply(ctx, func() {
		s.state = newState(s.userID)
	})
}
