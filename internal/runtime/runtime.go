// Package runtime executes learner Python code behind a two-phase
// run/continue protocol. Interactive input() is served from a queue of
// values; when the queue runs dry the execution suspends with a prompt and
// resumes when Continue supplies the next value.
package runtime

import (
	"context"
	"time"
)

// Result is the observable outcome of one execution step
type Result struct {
	Output          string `json:"output"`
	Error           string `json:"error,omitempty"`
	WaitingForInput bool   `json:"waiting_for_input,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
}

// Failed reports whether the code raised an error
func (r *Result) Failed() bool {
	return r != nil && r.Error != ""
}

// Runtime is the code execution collaborator consumed by the validator and
// the daemon. Implementations allow one in-flight execution at a time.
type Runtime interface {
	// Run starts a fresh execution of code
	Run(ctx context.Context, code string) (*Result, error)

	// Continue resumes a suspended execution with one line of input.
	// The returned Output covers the whole execution, not just the part
	// after the input.
	Continue(ctx context.Context, input string) (*Result, error)

	// IsReady reports whether the runtime can accept work
	IsReady() bool
}

// Script is a program plus the input values available to it
type Script struct {
	Code   string
	Inputs []string
	Seed   int64 // seeds random and string hashing; fixed across replays
}

// Execution is the raw process outcome reported by a Backend
type Execution struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Backend runs a Script to completion in some Python interpreter.
// A non-nil error means the backend itself failed, not the learner code.
type Backend interface {
	Execute(ctx context.Context, script Script) (*Execution, error)
	Ready() bool
	Close() error
}

// Config holds execution settings shared by all backends
type Config struct {
	Backend    string        // "local" or "docker"
	Python     string        // interpreter for the local backend
	Timeout    time.Duration // per execution
	Image      string
	MemoryMB   int
	CPULimit   float64
	NetworkOff bool
}

// DefaultConfig returns settings for a local python3 interpreter
func DefaultConfig() Config {
	return Config{
		Backend:    "local",
		Python:     "python3",
		Timeout:    10 * time.Second,
		Image:      "python:3.12-alpine",
		MemoryMB:   256,
		CPULimit:   0.5,
		NetworkOff: true,
	}
}

// NewBackend builds the backend selected by cfg.Backend
func NewBackend(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "docker":
		return NewDockerBackend(cfg)
	default:
		return NewLocalBackend(cfg), nil
	}
}
