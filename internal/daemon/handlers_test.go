package daemon

import (
	"net/http"
	"testing"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/progress"
	"github.com/felixgeelhaar/pyquest/internal/runtime"
	"github.com/felixgeelhaar/pyquest/internal/session"
)

func printing(out string) *mockRuntime {
	return &mockRuntime{runFn: func(string) (*runtime.Result, error) {
		return &runtime.Result{Output: out}, nil
	}}
}

func TestHandleListCourses(t *testing.T) {
	server, _ := setupTestServer(t, nil, nil)

	w := do(t, server, http.MethodGet, "/v1/courses", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Courses []courseSummary `json:"courses"`
		Count   int             `json:"count"`
	}
	decodeBody(t, w, &resp)
	if resp.Count == 0 || resp.Courses[0].ID != "python-basics" {
		t.Fatalf("courses = %+v; want bundled python-basics", resp.Courses)
	}
	if resp.Courses[0].TotalLessons == 0 {
		t.Error("TotalLessons should be set")
	}
}

func TestHandleGetCourseAndLesson(t *testing.T) {
	server, _ := setupTestServer(t, nil, nil)

	tests := []struct {
		name     string
		path     string
		expected int
	}{
		{"course", "/v1/courses/python-basics", http.StatusOK},
		{"unknown course", "/v1/courses/nope", http.StatusNotFound},
		{"lesson", "/v1/courses/python-basics/lessons/hello-world", http.StatusOK},
		{"unknown lesson", "/v1/courses/python-basics/lessons/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodGet, tt.path, "", nil)
			if w.Code != tt.expected {
				t.Errorf("GET %s status = %d; want %d", tt.path, w.Code, tt.expected)
			}
		})
	}
}

func TestHandleValidate(t *testing.T) {
	server, sessions := setupTestServer(t, printing("Hello, World!\n"), nil)
	history := &mockHistory{}
	sessions.SetHistory(history)

	w := do(t, server, http.MethodPost, "/v1/courses/python-basics/lessons/hello-world/validate", "ada",
		map[string]string{"code": `print("Hello, World!")`})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d; body %s", w.Code, http.StatusOK, w.Body.String())
	}

	var sub session.Submission
	decodeBody(t, w, &sub)
	if !sub.Result.CanComplete {
		t.Fatalf("CanComplete = false; feedback %v", sub.Result.Feedback)
	}
	if sub.Completion == nil || !sub.Completion.FirstCompletion {
		t.Error("lesson should be completed")
	}
	if len(history.attempts) != 1 || history.attempts[0].UserID != "ada" {
		t.Errorf("history = %v; want one attempt by ada", history.attempts)
	}

	lw := do(t, server, http.MethodGet, "/v1/courses/python-basics/lessons/hello-world", "ada", nil)
	var lesson struct {
		Completed bool `json:"completed"`
	}
	decodeBody(t, lw, &lesson)
	if !lesson.Completed {
		t.Error("lesson should report completed for ada")
	}

	gw := do(t, server, http.MethodGet, "/v1/courses/python-basics/lessons/hello-world", "grace", nil)
	decodeBody(t, gw, &lesson)
	if lesson.Completed {
		t.Error("progress should be per user")
	}
}

func TestHandleValidate_Errors(t *testing.T) {
	server, _ := setupTestServer(t, printing(""), nil)

	tests := []struct {
		name     string
		path     string
		body     any
		expected int
	}{
		{"unknown lesson", "/v1/courses/python-basics/lessons/nope/validate", map[string]string{"code": "x"}, http.StatusNotFound},
		{"empty code", "/v1/courses/python-basics/lessons/hello-world/validate", map[string]string{"code": ""}, http.StatusBadRequest},
		{"bad body", "/v1/courses/python-basics/lessons/hello-world/validate", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPost, tt.path, "", tt.body)
			if w.Code != tt.expected {
				t.Errorf("status = %d; want %d", w.Code, tt.expected)
			}
		})
	}
}

func TestHandleRunAndContinue(t *testing.T) {
	rt := &mockRuntime{
		runFn: func(string) (*runtime.Result, error) {
			return &runtime.Result{Output: "Name? ", WaitingForInput: true, Prompt: "Name? "}, nil
		},
		continueFn: func(input string) (*runtime.Result, error) {
			return &runtime.Result{Output: "Name? Hi " + input + "\n"}, nil
		},
	}
	server, _ := setupTestServer(t, rt, nil)

	w := do(t, server, http.MethodPost, "/v1/run", "ada", map[string]string{"code": `print("Hi " + input("Name? "))`})
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d; want %d", w.Code, http.StatusOK)
	}
	var out session.RunOutcome
	decodeBody(t, w, &out)
	if !out.Result.WaitingForInput || out.Result.Prompt != "Name? " {
		t.Fatalf("run result = %+v; want waiting with prompt", out.Result)
	}

	if w := do(t, server, http.MethodPost, "/v1/run/continue", "grace", map[string]string{"input": "Grace"}); w.Code != http.StatusConflict {
		t.Errorf("continue by other user status = %d; want %d", w.Code, http.StatusConflict)
	}

	w = do(t, server, http.MethodPost, "/v1/run/continue", "ada", map[string]string{"input": "Ada"})
	if w.Code != http.StatusOK {
		t.Fatalf("continue status = %d; want %d", w.Code, http.StatusOK)
	}
	decodeBody(t, w, &out)
	if out.Result.Output != "Name? Hi Ada\n" {
		t.Errorf("Output = %q", out.Result.Output)
	}
}

func TestHandleRun_RuntimeBusy(t *testing.T) {
	rt := &mockRuntime{runFn: func(string) (*runtime.Result, error) {
		return nil, domain.ErrRuntimeBusy
	}}
	server, _ := setupTestServer(t, rt, nil)

	w := do(t, server, http.MethodPost, "/v1/run", "", map[string]string{"code": "print(1)"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d; want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleProgressEndpoints(t *testing.T) {
	server, _ := setupTestServer(t, nil, nil)

	w := do(t, server, http.MethodPost, "/v1/xp", "ada", map[string]any{"amount": 150, "reason": "bonus"})
	if w.Code != http.StatusOK {
		t.Fatalf("xp status = %d; want %d", w.Code, http.StatusOK)
	}
	var award progress.XPAward
	decodeBody(t, w, &award)
	if award.NewXP != 150 || !award.LeveledUp || award.NewLevel != 2 {
		t.Errorf("award = %+v; want 150 XP at level 2", award)
	}

	if w := do(t, server, http.MethodPost, "/v1/xp", "ada", map[string]any{"amount": -5}); w.Code != http.StatusBadRequest {
		t.Errorf("negative xp status = %d; want %d", w.Code, http.StatusBadRequest)
	}

	w = do(t, server, http.MethodPost, "/v1/streak", "ada", nil)
	var streak progress.StreakUpdate
	decodeBody(t, w, &streak)
	if !streak.StreakUpdated || streak.NewStreak != 1 {
		t.Errorf("streak = %+v; want first day", streak)
	}

	w = do(t, server, http.MethodGet, "/v1/profile", "ada", nil)
	var profile struct {
		UserID  string         `json:"user_id"`
		Profile domain.Profile `json:"profile"`
	}
	decodeBody(t, w, &profile)
	if profile.UserID != "ada" || profile.Profile.XP < 150 || profile.Profile.Streak != 1 {
		t.Errorf("profile = %+v", profile)
	}

	if w := do(t, server, http.MethodGet, "/v1/progress", "ada", nil); w.Code != http.StatusOK {
		t.Errorf("progress status = %d; want %d", w.Code, http.StatusOK)
	}
}

func TestHandleAchievements(t *testing.T) {
	server, _ := setupTestServer(t, nil, nil)
	id := progress.Catalog()[0].ID

	w := do(t, server, http.MethodPost, "/v1/achievements/"+id+"/unlock", "ada", nil)
	var resp struct {
		Unlocked bool `json:"unlocked"`
	}
	decodeBody(t, w, &resp)
	if !resp.Unlocked {
		t.Error("first unlock should succeed")
	}

	w = do(t, server, http.MethodPost, "/v1/achievements/"+id+"/unlock", "ada", nil)
	decodeBody(t, w, &resp)
	if resp.Unlocked {
		t.Error("second unlock should be a no-op")
	}

	if w := do(t, server, http.MethodPost, "/v1/achievements/nope/unlock", "ada", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown achievement status = %d; want %d", w.Code, http.StatusNotFound)
	}

	w = do(t, server, http.MethodGet, "/v1/achievements", "ada", nil)
	var list struct {
		Unlocked int `json:"unlocked"`
		Total    int `json:"total"`
	}
	decodeBody(t, w, &list)
	if list.Unlocked != 1 || list.Total != len(progress.Catalog()) {
		t.Errorf("achievements = %+v", list)
	}
}

func TestHandleTools(t *testing.T) {
	server, _ := setupTestServer(t, nil, nil)

	w := do(t, server, http.MethodPost, "/v1/tools", "ada", progress.ToolInput{Name: "greeter", Code: "print('hi')\nprint('bye')\n"})
	if w.Code != http.StatusCreated {
		t.Fatalf("save status = %d; want %d", w.Code, http.StatusCreated)
	}
	var saved struct {
		Tool domain.UserTool `json:"tool"`
	}
	decodeBody(t, w, &saved)
	if saved.Tool.ID == "" || saved.Tool.LinesOfCode != 2 {
		t.Fatalf("tool = %+v", saved.Tool)
	}
	path := "/v1/tools/" + saved.Tool.ID

	if w := do(t, server, http.MethodGet, path, "ada", nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d; want %d", w.Code, http.StatusOK)
	}
	if w := do(t, server, http.MethodGet, path, "grace", nil); w.Code != http.StatusNotFound {
		t.Errorf("other user get status = %d; want %d", w.Code, http.StatusNotFound)
	}

	w = do(t, server, http.MethodPut, path, "ada", progress.ToolInput{Code: "print(1)\n"})
	var updated domain.UserTool
	decodeBody(t, w, &updated)
	if updated.Version != 2 || updated.Name != "greeter" {
		t.Errorf("updated = %+v; want version 2 keeping name", updated)
	}

	if w := do(t, server, http.MethodDelete, path, "ada", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d; want %d", w.Code, http.StatusNoContent)
	}
	if w := do(t, server, http.MethodDelete, path, "ada", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d; want %d", w.Code, http.StatusNotFound)
	}

	w = do(t, server, http.MethodGet, "/v1/tools", "ada", nil)
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &list)
	if list.Count != 0 {
		t.Errorf("count = %d; want 0", list.Count)
	}
}

func TestHandleListAttempts(t *testing.T) {
	server, sessions := setupTestServer(t, printing("Hello, World!\n"), nil)

	if w := do(t, server, http.MethodGet, "/v1/attempts", "ada", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled history status = %d; want %d", w.Code, http.StatusServiceUnavailable)
	}

	sessions.SetHistory(&mockHistory{})
	do(t, server, http.MethodPost, "/v1/courses/python-basics/lessons/hello-world/validate", "ada",
		map[string]string{"code": `print("Hello, World!")`})

	w := do(t, server, http.MethodGet, "/v1/attempts?lesson=hello-world", "ada", nil)
	var resp struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &resp)
	if resp.Count != 1 {
		t.Errorf("count = %d; want 1", resp.Count)
	}

	if w := do(t, server, http.MethodGet, "/v1/attempts?limit=abc", "ada", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}
