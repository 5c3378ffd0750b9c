package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pyquest/internal/daemon"
)

const (
	daemonBinary = "pyquestd"
	pidFile      = "pyquestd.pid"
	daemonLog    = "pyquestd.log"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE:  runStart,
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE:  runStop,
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE:  runStatus,
	}
}

func logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon logs",
		RunE:  runLogs,
	}
	cmd.Flags().Int64("bytes", 4096, "How much of the log tail to print")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.Int("port", 0, "Port to listen on (default from config)")
	f.String("bind", "", "Address to bind (default from config)")
	f.String("backend", "", "Code runtime backend (local, docker)")
	f.String("courses-dir", "", "Directory with additional courses")
	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if isRunning(env.daemonAddr()) {
		fmt.Fprintln(out, "✓ Daemon is already running")
		return nil
	}

	binary, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	proc := exec.Command(binary)
	proc.Dir = env.dir
	proc.Stdout = nil
	proc.Stderr = nil
	configureDaemonProcess(proc)

	if err := proc.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Fprint(out, "Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(env.daemonAddr()) {
			fmt.Fprintln(out, " ✓")
			fmt.Fprintf(out, "Daemon running at %s\n", env.daemonAddr())
			return nil
		}
		fmt.Fprint(out, ".")
	}

	fmt.Fprintln(out, " ✗")
	return errors.New("daemon failed to start (check logs with 'pyquest logs')")
}

func runStop(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !isRunning(env.daemonAddr()) {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	pid, err := readPIDFile(filepath.Join(env.dir, pidFile))
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Fprint(out, "Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(env.daemonAddr()) {
			fmt.Fprintln(out, " ✓")
			return nil
		}
		fmt.Fprint(out, ".")
	}

	fmt.Fprintln(out, " ✗")
	return errors.New("daemon did not stop gracefully")
}

// daemonStatus is the body of GET /v1/status
type daemonStatus struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Runtime      string `json:"runtime"`
	RuntimeReady bool   `json:"runtime_ready"`
	Sync         bool   `json:"sync"`
	Content      struct {
		CourseCount int `json:"course_count"`
		LessonCount int `json:"lesson_count"`
	} `json:"content"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	status, err := fetchStatus(env.daemonAddr())
	if err != nil {
		slog.Debug("status request failed", "error", err)
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	ready := "ready"
	if !status.RuntimeReady {
		ready = "unavailable"
	}
	fmt.Fprintf(out, "Status:    %s\n", status.Status)
	fmt.Fprintf(out, "Version:   %s\n", status.Version)
	fmt.Fprintf(out, "Runtime:   %s (%s)\n", status.Runtime, ready)
	fmt.Fprintf(out, "Content:   %d courses, %d lessons\n", status.Content.CourseCount, status.Content.LessonCount)
	fmt.Fprintf(out, "Sync:      %t\n", status.Sync)
	fmt.Fprintf(out, "Address:   %s\n", env.daemonAddr())
	return nil
}

func fetchStatus(addr string) (*daemonStatus, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(addr + "/v1/status")
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get status: unexpected status %d", resp.StatusCode)
	}

	var status daemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	return &status, nil
}

func runLogs(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	logPath := filepath.Join(env.dir, "logs", daemonLog)
	file, err := os.Open(logPath)
	if os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	return tailLog(file, env.v.GetInt64("bytes"), cmd.OutOrStdout())
}

// tailLog prints the complete lines within the last n bytes of file
func tailLog(file *os.File, n int64, out io.Writer) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}

	offset := info.Size() - n
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	// skip the partial first line
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Fprintln(out, scanner.Text())
	}
	return scanner.Err()
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := env.openApp(ctx)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	a.Start(ctx)

	server, err := daemon.NewServer(ctx, daemon.ServerConfig{
		Config:   env.cfg,
		Sessions: a.Sessions,
		Version:  Version,
		Closers:  []func() error{a.Close},
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			a.Close()
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// isRunning checks if the daemon is running by calling the health endpoint
func isRunning(addr string) bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(addr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// findDaemonBinary locates the pyquestd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), daemonBinary)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/" + daemonBinary,
		"./" + daemonBinary,
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", errors.New("pyquestd binary not found (build with 'go build ./cmd/pyquestd')")
}
