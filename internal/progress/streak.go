package progress

import (
	"context"
	"time"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// StreakUpdate reports the outcome of UpdateStreak
type StreakUpdate struct {
	StreakUpdated bool                 `json:"streak_updated"`
	NewStreak     int                  `json:"new_streak"`
	Unlocked      []domain.Achievement `json:"unlocked,omitempty"`
}

// UpdateStreak records activity for today in local time. A second call on
// the same calendar day changes nothing. Activity on the day after the
// last active day extends the streak; any other gap restarts it at 1.
func (s *Store) UpdateStreak(ctx context.Context) StreakUpdate {
	var update StreakUpdate

	s.mutate(ctx, func() bool {
		p := &s.state.Profile
		now := s.now()

		if p.LastActiveDate != nil && daysBetween(*p.LastActiveDate, now) == 0 {
			update.NewStreak = p.Streak
			return false
		}

		if p.LastActiveDate != nil && daysBetween(*p.LastActiveDate, now) == 1 {
			p.Streak++
		} else {
			p.Streak = 1
		}
		p.LastActiveDate = &now

		if p.Streak > s.state.Stats.LongestStreak {
			s.state.Stats.LongestStreak = p.Streak
		}

		update.StreakUpdated = true
		update.NewStreak = p.Streak
		s.emit(domain.EventStreakUpdated, map[string]any{"streak": p.Streak})
		update.Unlocked = s.checkLocked(TriggerStreak)
		return true
	})
	return update
}

// daysBetween counts calendar days from a to b in local time
func daysBetween(a, b time.Time) int {
	a, b = a.Local(), b.Local()
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
