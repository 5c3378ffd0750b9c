package domain

import (
	"strings"
	"time"
)

// UserTool is a learner-authored script saved to their toolbox
type UserTool struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Code         string    `json:"code"`
	LinesOfCode  int       `json:"lines_of_code"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// CountLines counts the non-blank lines of a source text
func CountLines(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
