package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/lesson"
	"github.com/felixgeelhaar/pyquest/internal/progress"
	"github.com/felixgeelhaar/pyquest/internal/runtime"
	"github.com/felixgeelhaar/pyquest/internal/storage/local"
)

// mockRuntime implements runtime.Runtime for testing
type mockRuntime struct {
	runFn      func(code string) (*runtime.Result, error)
	continueFn func(input string) (*runtime.Result, error)
}

func (m *mockRuntime) Run(ctx context.Context, code string) (*runtime.Result, error) {
	return m.runFn(code)
}

func (m *mockRuntime) Continue(ctx context.Context, input string) (*runtime.Result, error) {
	if m.continueFn == nil {
		return nil, domain.ErrNotWaiting
	}
	return m.continueFn(input)
}

func (m *mockRuntime) IsReady() bool { return true }

// mockHistory implements History for testing
type mockHistory struct {
	mu        sync.Mutex
	attempts  []*domain.Attempt
	recordErr error
}

func (m *mockHistory) Record(ctx context.Context, a *domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *mockHistory) List(ctx context.Context, userID, lessonID string, limit int) ([]*domain.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Attempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.UserID == userID && (lessonID == "" || a.LessonID == lessonID) {
			out = append(out, a)
		}
	}
	return out, nil
}

// mockPublisher implements AttemptPublisher for testing
type mockPublisher struct {
	published []*domain.Attempt
	err       error
}

func (m *mockPublisher) PublishAttempt(ctx context.Context, a *domain.Attempt) error {
	m.published = append(m.published, a)
	return m.err
}

func setupTestService(t *testing.T, rt runtime.Runtime) *Service {
	t.Helper()

	registry := lesson.NewRegistry(lesson.NewBuiltinLoader())
	if err := registry.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	blobs, err := local.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	return NewService(registry, progress.NewRegistry(blobs), rt, nil)
}

func printing(out string) *mockRuntime {
	return &mockRuntime{runFn: func(string) (*runtime.Result, error) {
		return &runtime.Result{Output: out}, nil
	}}
}

func TestService_SubmitPassing(t *testing.T) {
	svc := setupTestService(t, printing("Hello, World!\n"))
	history := &mockHistory{}
	publisher := &mockPublisher{}
	svc.SetHistory(history)
	svc.SetPublisher(publisher)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, "ada", "python-basics", "hello-world", `print("Hello, World!")`)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !sub.Result.CanComplete {
		t.Fatalf("CanComplete = false; feedback %v", sub.Result.Feedback)
	}
	if sub.Completion == nil || !sub.Completion.FirstCompletion {
		t.Fatal("first passing submission should complete the lesson")
	}
	if sub.Streak == nil || sub.Streak.NewStreak != 1 {
		t.Errorf("Streak = %+v; want streak 1", sub.Streak)
	}
	if sub.NextLesson != "variables" {
		t.Errorf("NextLesson = %q; want variables", sub.NextLesson)
	}

	store, err := svc.Progress(ctx, "ada")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if got := store.Profile().XP; got != sub.Result.XPEarned+unlockedRewards(store) {
		t.Errorf("XP = %d; want lesson XP plus unlocked rewards", got)
	}

	if len(history.attempts) != 1 || history.attempts[0].ID != sub.AttemptID {
		t.Fatalf("history = %v; want the submission recorded", history.attempts)
	}
	if history.attempts[0].XPEarned != sub.Result.XPEarned {
		t.Errorf("attempt XPEarned = %d; want %d", history.attempts[0].XPEarned, sub.Result.XPEarned)
	}
	if len(publisher.published) != 1 {
		t.Errorf("published = %d; want 1", len(publisher.published))
	}
}

// unlockedRewards sums the XP of achievements unlocked so far
func unlockedRewards(store *progress.Store) int {
	total := 0
	for _, a := range store.Achievements() {
		if a.Unlocked {
			total += a.XPReward
		}
	}
	return total
}

func TestService_SubmitRepeatAwardsNoXP(t *testing.T) {
	svc := setupTestService(t, printing("Hello, World!\n"))
	history := &mockHistory{}
	svc.SetHistory(history)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "ada", "python-basics", "hello-world", `print("Hello, World!")`); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	store, _ := svc.Progress(ctx, "ada")
	xp := store.Profile().XP

	sub, err := svc.Submit(ctx, "ada", "python-basics", "hello-world", `print("Hello, World!")`)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.Completion.FirstCompletion {
		t.Error("second completion should not be first")
	}
	if got := store.Profile().XP; got != xp {
		t.Errorf("XP = %d; want unchanged %d", got, xp)
	}
	if history.attempts[1].XPEarned != 0 {
		t.Errorf("repeat attempt XPEarned = %d; want 0", history.attempts[1].XPEarned)
	}
}

func TestService_SubmitFailing(t *testing.T) {
	svc := setupTestService(t, printing("Goodbye\n"))
	ctx := context.Background()

	sub, err := svc.Submit(ctx, "ada", "python-basics", "hello-world", `print("Goodbye")`)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.Result.CanComplete {
		t.Error("CanComplete should be false")
	}
	if sub.Completion != nil || sub.Streak != nil {
		t.Error("failing submission should not touch progress")
	}

	store, _ := svc.Progress(ctx, "ada")
	if store.Course("python-basics") != nil {
		t.Error("course progress should not exist")
	}
}

func TestService_SubmitErrors(t *testing.T) {
	svc := setupTestService(t, printing(""))
	ctx := context.Background()

	tests := []struct {
		name     string
		course   string
		lesson   string
		code     string
		expected error
	}{
		{"unknown course", "nope", "hello-world", "print(1)", domain.ErrCourseNotFound},
		{"unknown lesson", "python-basics", "nope", "print(1)", domain.ErrLessonNotFound},
		{"empty code", "python-basics", "hello-world", "  \n", domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, "ada", tt.course, tt.lesson, tt.code)
			if !errors.Is(err, tt.expected) {
				t.Errorf("Submit() error = %v; want %v", err, tt.expected)
			}
		})
	}
}

func TestService_SubmitHistoryFailureIsLogged(t *testing.T) {
	svc := setupTestService(t, printing("Hello, World!\n"))
	svc.SetHistory(&mockHistory{recordErr: errors.New("db down")})
	svc.SetPublisher(&mockPublisher{err: errors.New("broker down")})

	sub, err := svc.Submit(context.Background(), "ada", "python-basics", "hello-world", `print("Hello, World!")`)
	if err != nil {
		t.Fatalf("Submit() error = %v; want history failures swallowed", err)
	}
	if !sub.Result.CanComplete {
		t.Error("grading should be unaffected")
	}
}

func TestService_RunRecordsCodeRun(t *testing.T) {
	svc := setupTestService(t, printing("hi\n"))
	ctx := context.Background()

	out, err := svc.Run(ctx, "ada", `print("hi")`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Result.Output != "hi\n" {
		t.Errorf("Output = %q; want hi", out.Result.Output)
	}

	store, _ := svc.Progress(ctx, "ada")
	if got := store.Stats().CodeRuns; got != 1 {
		t.Errorf("CodeRuns = %d; want 1", got)
	}
	if len(out.Unlocked) == 0 {
		t.Error("first print should unlock an achievement")
	}

	if _, err := svc.Run(ctx, "ada", " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Run(blank) error = %v; want ErrInvalidInput", err)
	}
}

func TestService_RunContinue(t *testing.T) {
	rt := &mockRuntime{
		runFn: func(string) (*runtime.Result, error) {
			return &runtime.Result{Output: "Name? ", WaitingForInput: true, Prompt: "Name? "}, nil
		},
		continueFn: func(input string) (*runtime.Result, error) {
			return &runtime.Result{Output: "Name? Hello, " + input + "!\n"}, nil
		},
	}
	svc := setupTestService(t, rt)
	ctx := context.Background()

	out, err := svc.Run(ctx, "ada", `name = input("Name? ")`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Result.WaitingForInput {
		t.Fatal("run should be waiting for input")
	}

	store, _ := svc.Progress(ctx, "ada")
	if got := store.Stats().CodeRuns; got != 0 {
		t.Errorf("CodeRuns = %d; want 0 while suspended", got)
	}

	if _, err := svc.Continue(ctx, "grace", "Grace"); !errors.Is(err, domain.ErrNotWaiting) {
		t.Errorf("Continue(other user) error = %v; want ErrNotWaiting", err)
	}

	out, err = svc.Continue(ctx, "ada", "Ada")
	if err != nil {
		t.Fatalf("Continue() error = %v", err)
	}
	if out.Result.WaitingForInput {
		t.Error("run should have finished")
	}
	if got := store.Stats().CodeRuns; got != 1 {
		t.Errorf("CodeRuns = %d; want 1", got)
	}

	if _, err := svc.Continue(ctx, "ada", "again"); !errors.Is(err, domain.ErrNotWaiting) {
		t.Errorf("Continue(finished) error = %v; want ErrNotWaiting", err)
	}
}

func TestService_RunError(t *testing.T) {
	rt := &mockRuntime{runFn: func(string) (*runtime.Result, error) {
		return nil, domain.ErrRuntimeBusy
	}}
	svc := setupTestService(t, rt)

	if _, err := svc.Run(context.Background(), "ada", "print(1)"); !errors.Is(err, domain.ErrRuntimeBusy) {
		t.Errorf("Run() error = %v; want ErrRuntimeBusy", err)
	}
}

func TestService_Attempts(t *testing.T) {
	svc := setupTestService(t, printing("Hello, World!\n"))
	ctx := context.Background()

	if _, err := svc.Attempts(ctx, "ada", "", 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Attempts() error = %v; want ErrHistoryDisabled", err)
	}

	svc.SetHistory(&mockHistory{})
	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(ctx, "ada", "python-basics", "hello-world", `print("Hello, World!")`); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	attempts, err := svc.Attempts(ctx, "ada", "hello-world", 10)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 2 {
		t.Errorf("len(Attempts()) = %d; want 2", len(attempts))
	}
}
