package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ExpectedKind tags the variant held by an ExpectedOutput
type ExpectedKind string

const (
	ExpectedLiteral ExpectedKind = "literal"
	ExpectedPattern ExpectedKind = "pattern"
)

// ExpectedOutput is either a literal string or a compiled pattern.
// The zero value matches nothing.
type ExpectedOutput struct {
	kind    ExpectedKind
	literal string
	pattern *regexp.Regexp
}

// Literal creates an expected output compared by trimmed equality
func Literal(s string) ExpectedOutput {
	return ExpectedOutput{kind: ExpectedLiteral, literal: s}
}

// Pattern creates an expected output tested with a regular expression
func Pattern(re *regexp.Regexp) ExpectedOutput {
	return ExpectedOutput{kind: ExpectedPattern, pattern: re}
}

// CompilePattern compiles expr and wraps it as a pattern expectation
func CompilePattern(expr string) (ExpectedOutput, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return ExpectedOutput{}, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return Pattern(re), nil
}

// Kind returns the variant tag
func (e ExpectedOutput) Kind() ExpectedKind {
	return e.kind
}

// IsZero reports whether no expectation was declared
func (e ExpectedOutput) IsZero() bool {
	return e.kind == ""
}

// Matches reports whether text satisfies the expectation
func (e ExpectedOutput) Matches(text string) bool {
	switch e.kind {
	case ExpectedLiteral:
		return strings.TrimSpace(text) == strings.TrimSpace(e.literal)
	case ExpectedPattern:
		return e.pattern != nil && e.pattern.MatchString(text)
	default:
		return false
	}
}

// String returns the literal text or the pattern source
func (e ExpectedOutput) String() string {
	switch e.kind {
	case ExpectedLiteral:
		return e.literal
	case ExpectedPattern:
		if e.pattern == nil {
			return ""
		}
		return e.pattern.String()
	default:
		return ""
	}
}

type expectedJSON struct {
	Literal *string `json:"literal,omitempty"`
	Pattern *string `json:"pattern,omitempty"`
}

// MarshalJSON encodes the variant as {"literal": ...} or {"pattern": ...}
func (e ExpectedOutput) MarshalJSON() ([]byte, error) {
	var out expectedJSON
	s := e.String()
	switch e.kind {
	case ExpectedLiteral:
		out.Literal = &s
	case ExpectedPattern:
		out.Pattern = &s
	default:
		return []byte("null"), nil
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the variant, compiling patterns eagerly
func (e *ExpectedOutput) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = ExpectedOutput{}
		return nil
	}

	var in expectedJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch {
	case in.Pattern != nil:
		parsed, err := CompilePattern(*in.Pattern)
		if err != nil {
			return err
		}
		*e = parsed
	case in.Literal != nil:
		*e = Literal(*in.Literal)
	default:
		*e = ExpectedOutput{}
	}
	return nil
}
