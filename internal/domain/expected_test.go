package domain

import (
	"encoding/json"
	"regexp"
	"testing"
)

func TestExpectedOutput_Matches(t *testing.T) {
	tests := []struct {
		name     string
		expected ExpectedOutput
		text     string
		want     bool
	}{
		{"literal exact", Literal("Hello, World!"), "Hello, World!", true},
		{"literal trims output", Literal("Hello, World!"), "Hello, World!\n", true},
		{"literal trims expectation", Literal("  42 "), "42", true},
		{"literal mismatch", Literal("Hello, World!"), "hi", false},
		{"literal is case sensitive", Literal("Hello"), "hello", false},
		{"pattern match", Pattern(regexp.MustCompile(`^\d+$`)), "123", true},
		{"pattern mismatch", Pattern(regexp.MustCompile(`^\d+$`)), "abc", false},
		{"pattern searches", Pattern(regexp.MustCompile(`World`)), "Hello, World!", true},
		{"zero value never matches", ExpectedOutput{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expected.Matches(tt.text); got != tt.want {
				t.Errorf("Matches(%q) = %v; want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCompilePattern_Invalid(t *testing.T) {
	if _, err := CompilePattern("("); err == nil {
		t.Error("CompilePattern() should fail for invalid regex")
	}
}

func TestExpectedOutput_JSON(t *testing.T) {
	t.Run("literal", func(t *testing.T) {
		data, err := json.Marshal(Literal("hi"))
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(data) != `{"literal":"hi"}` {
			t.Errorf("Marshal() = %s", data)
		}

		var back ExpectedOutput
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if back.Kind() != ExpectedLiteral || !back.Matches("hi") {
			t.Errorf("round trip lost literal: %+v", back)
		}
	})

	t.Run("pattern compiles on decode", func(t *testing.T) {
		var e ExpectedOutput
		if err := json.Unmarshal([]byte(`{"pattern":"^a+$"}`), &e); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if e.Kind() != ExpectedPattern {
			t.Errorf("Kind() = %q; want pattern", e.Kind())
		}
		if !e.Matches("aaa") {
			t.Error("decoded pattern should match")
		}
	})

	t.Run("invalid pattern fails decode", func(t *testing.T) {
		var e ExpectedOutput
		if err := json.Unmarshal([]byte(`{"pattern":"("}`), &e); err == nil {
			t.Error("Unmarshal() should reject invalid pattern")
		}
	})
}
