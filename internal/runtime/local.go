package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// LocalBackend runs Python as a subprocess of the daemon (for development)
type LocalBackend struct {
	python  string
	timeout time.Duration

	once  sync.Once
	ready bool
}

// NewLocalBackend creates a subprocess backend
func NewLocalBackend(cfg Config) *LocalBackend {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LocalBackend{python: python, timeout: timeout}
}

// Ready reports whether the interpreter binary is on PATH
func (b *LocalBackend) Ready() bool {
	b.once.Do(func() {
		_, err := exec.LookPath(b.python)
		b.ready = err == nil
	})
	return b.ready
}

// Execute writes the script into a temp dir and runs it to completion
func (b *LocalBackend) Execute(ctx context.Context, script Script) (*Execution, error) {
	tmpDir, err := createTempCodeDir(scriptFiles(script.Code))
	if err != nil {
		return nil, fmt.Errorf("prepare workdir: %w", err)
	}
	defer removeTempDir(tmpDir)

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.python, "-u", runnerFile)
	cmd.Dir = tmpDir
	cmd.Env = append(os.Environ(), scriptEnv(script)...)

	stdout := newCappedBuffer(maxOutputBytes)
	stderr := newCappedBuffer(maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	result := &Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.ExitCode = -1
			return result, nil
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("start %s: %w", b.python, runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}

// Close is a no-op for subprocesses
func (b *LocalBackend) Close() error {
	return nil
}

func createTempCodeDir(files map[string]string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "pyquest-run-*")
	if err != nil {
		return "", err
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0644); err != nil {
			removeTempDir(tmpDir)
			return "", err
		}
	}
	return tmpDir, nil
}

func removeTempDir(dir string) {
	os.RemoveAll(dir)
}

var _ Backend = (*LocalBackend)(nil)
