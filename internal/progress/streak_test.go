package progress

import (
	"context"
	"testing"
	"time"
)

func TestUpdateStreak(t *testing.T) {
	ctx := context.Background()

	t.Run("first ever run starts at 1", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
		store, _ := setupStore(t, WithClock(clock.Now))

		update := store.UpdateStreak(ctx)
		if !update.StreakUpdated || update.NewStreak != 1 {
			t.Errorf("UpdateStreak() = %+v; want updated to 1", update)
		}
		if store.Profile().LastActiveDate == nil {
			t.Error("LastActiveDate should be set")
		}
	})

	t.Run("same day is a no-op", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
		store, blobs := setupStore(t, WithClock(clock.Now))

		store.UpdateStreak(ctx)
		puts := blobs.puts
		clock.Advance(10 * time.Hour)

		update := store.UpdateStreak(ctx)
		if update.StreakUpdated {
			t.Error("second call on the same day should not update")
		}
		if update.NewStreak != 1 || store.Profile().Streak != 1 {
			t.Errorf("streak = %d; want unchanged 1", store.Profile().Streak)
		}
		if blobs.puts != puts {
			t.Error("no-op streak update should not persist")
		}
	})

	t.Run("next day increments", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 3, 10, 23, 30, 0, 0, time.Local)}
		store, _ := setupStore(t, WithClock(clock.Now))

		store.UpdateStreak(ctx)
		clock.Advance(time.Hour) // just past midnight

		update := store.UpdateStreak(ctx)
		if !update.StreakUpdated || update.NewStreak != 2 {
			t.Errorf("UpdateStreak() = %+v; want 2", update)
		}
	})

	t.Run("gap resets", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
		store, _ := setupStore(t, WithClock(clock.Now))

		store.UpdateStreak(ctx)
		clock.Advance(24 * time.Hour)
		store.UpdateStreak(ctx)
		clock.Advance(72 * time.Hour)

		update := store.UpdateStreak(ctx)
		if update.NewStreak != 1 {
			t.Errorf("NewStreak = %d; want reset to 1", update.NewStreak)
		}
		if store.Stats().LongestStreak != 2 {
			t.Errorf("LongestStreak = %d; want 2", store.Stats().LongestStreak)
		}
	})

	t.Run("seven days unlocks week streak", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)}
		store, _ := setupStore(t, WithClock(clock.Now))

		var last StreakUpdate
		for day := 0; day < 7; day++ {
			last = store.UpdateStreak(ctx)
			clock.Advance(24 * time.Hour)
		}

		if last.NewStreak != 7 {
			t.Fatalf("NewStreak = %d; want 7", last.NewStreak)
		}
		if len(last.Unlocked) != 1 || last.Unlocked[0].ID != "week_streak" {
			t.Errorf("Unlocked = %v; want [week_streak]", last.Unlocked)
		}
	})
}

func TestDaysBetween(t *testing.T) {
	base := time.Date(2026, 1, 31, 22, 0, 0, 0, time.Local)
	tests := []struct {
		later time.Time
		want  int
	}{
		{base.Add(time.Hour), 0},
		{time.Date(2026, 2, 1, 0, 5, 0, 0, time.Local), 1},
		{time.Date(2026, 2, 3, 8, 0, 0, 0, time.Local), 3},
	}

	for _, tt := range tests {
		if got := daysBetween(base, tt.later); got != tt.want {
			t.Errorf("daysBetween(%v, %v) = %d; want %d", base, tt.later, got, tt.want)
		}
	}
}
