package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/pyquest/internal/config"
	"github.com/felixgeelhaar/pyquest/internal/progress"
)

func setupApp(t *testing.T, modify func(*config.LocalConfig)) *App {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultLocalConfig()
	if modify != nil {
		modify(cfg)
	}

	a, err := New(context.Background(), dir, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return a
}

func TestNew_Defaults(t *testing.T) {
	a := setupApp(t, nil)
	ctx := context.Background()

	if _, err := a.Lessons.GetCourse("python-basics"); err != nil {
		t.Fatalf("GetCourse() error = %v", err)
	}

	// Theory lessons complete without running code
	sub, err := a.Sessions.Submit(ctx, "ada", "python-basics", "welcome", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !sub.Result.CanComplete {
		t.Error("theory lesson should complete")
	}

	attempts, err := a.Sessions.Attempts(ctx, "ada", "welcome", 10)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != sub.AttemptID {
		t.Errorf("Attempts() = %v; want the recorded submission", attempts)
	}

	if _, err := os.Stat(filepath.Join(a.Dir, "progress", progress.StorageKey, "ada.json")); err != nil {
		t.Errorf("progress file missing: %v", err)
	}
}

func TestNew_SQLiteStorage(t *testing.T) {
	a := setupApp(t, func(cfg *config.LocalConfig) {
		cfg.Storage.Driver = "sqlite"
	})
	ctx := context.Background()

	store, err := a.Sessions.Progress(ctx, "ada")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	store.AwardXP(ctx, 120, "test")

	users, err := a.Progress.Users(ctx)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 1 || users[0] != "ada" {
		t.Errorf("Users() = %v; want [ada]", users)
	}
}

func TestNew_HistoryDisabled(t *testing.T) {
	a := setupApp(t, func(cfg *config.LocalConfig) {
		cfg.History.Driver = "none"
	})

	if _, err := a.Sessions.Attempts(context.Background(), "ada", "", 0); err == nil {
		t.Error("Attempts() should fail when history is disabled")
	}
	if _, err := os.Stat(filepath.Join(a.Dir, DatabaseFile)); !os.IsNotExist(err) {
		t.Errorf("database should not be created, stat error = %v", err)
	}
}

func TestNew_UserCoursesOverride(t *testing.T) {
	dir := t.TempDir()
	course := filepath.Join(dir, "courses", "extra")
	if err := os.MkdirAll(course, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(course, "course.yaml"), []byte("id: extra\ntitle: Extra\nlessons: [one]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(course, "one.yaml"), []byte("id: one\nxp: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	a, err := New(context.Background(), dir, config.DefaultLocalConfig(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if got := len(a.Lessons.ListCourses()); got != 2 {
		t.Errorf("len(ListCourses()) = %d; want bundled plus extra", got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Driver = "floppy"

	if _, err := New(context.Background(), t.TempDir(), cfg, nil); err == nil {
		t.Error("New() should reject an invalid config")
	}
}
