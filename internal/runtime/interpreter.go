package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// Interpreter implements Runtime on top of a Backend by replaying the
// program with a growing input queue on every Continue. Each Run picks a
// seed that every replay of that run reuses.
type Interpreter struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	code    string
	inputs  []string
	seed    int64
	waiting bool
}

// NewInterpreter creates an interpreter over backend
func NewInterpreter(backend Backend, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{backend: backend, logger: logger}
}

// Run starts a fresh execution, discarding any suspended one
func (i *Interpreter) Run(ctx context.Context, code string) (*Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.code = code
	i.inputs = nil
	i.seed = rand.Int64()
	i.waiting = false
	return i.execute(ctx)
}

// RunWithInput starts a fresh execution with inputs already queued
func (i *Interpreter) RunWithInput(ctx context.Context, code string, inputs []string) (*Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.code = code
	i.inputs = append([]string(nil), inputs...)
	i.seed = rand.Int64()
	i.waiting = false
	return i.execute(ctx)
}

// Continue feeds input to the suspended execution
func (i *Interpreter) Continue(ctx context.Context, input string) (*Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.waiting {
		return nil, domain.ErrNotWaiting
	}
	i.inputs = append(i.inputs, input)
	return i.execute(ctx)
}

// IsReady reports whether the backend can run code
func (i *Interpreter) IsReady() bool {
	return i.backend.Ready()
}

func (i *Interpreter) execute(ctx context.Context) (*Result, error) {
	if !i.backend.Ready() {
		return nil, domain.ErrRuntimeNotReady
	}

	exec, err := i.backend.Execute(ctx, Script{Code: i.code, Inputs: i.inputs, Seed: i.seed})
	if err != nil {
		i.waiting = false
		return nil, fmt.Errorf("execute: %w", err)
	}

	result := parseExecution(exec)
	i.waiting = result.WaitingForInput

	i.logger.Debug("execution finished",
		"exit_code", exec.ExitCode,
		"duration", exec.Duration,
		"inputs", len(i.inputs),
		"waiting", result.WaitingForInput,
	)
	return result, nil
}

var _ Runtime = (*Interpreter)(nil)
