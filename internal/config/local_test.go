package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDir(t *testing.T) {
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if filepath.Base(dir) != ".pyquest" {
		t.Errorf("Dir() = %q, want ending with .pyquest", dir)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("Dir() = %q, want absolute path", dir)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir, err := EnsureDir()
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if dir != filepath.Join(tmpHome, ".pyquest") {
		t.Errorf("EnsureDir() = %q", dir)
	}
	for _, subdir := range []string{"logs", "progress", "courses"} {
		if _, err := os.Stat(filepath.Join(dir, subdir)); os.IsNotExist(err) {
			t.Errorf("EnsureDir() should create %s", subdir)
		}
	}
}

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()

	if cfg.Daemon.Port != 7433 || cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	if cfg.Runtime.Backend != "local" || cfg.Runtime.Timeout() != 10*time.Second {
		t.Errorf("Runtime = %+v", cfg.Runtime)
	}
	if cfg.Runtime.OpenTimeout() != 30*time.Second {
		t.Errorf("OpenTimeout() = %v; want 30s", cfg.Runtime.OpenTimeout())
	}
	if cfg.Daemon.RateLimit.Window() != time.Minute {
		t.Errorf("RateLimit.Window() = %v; want 1m", cfg.Daemon.RateLimit.Window())
	}
	if cfg.Sync.Enabled {
		t.Error("sync should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadLocalConfigFrom_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadLocalConfigFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadLocalConfigFrom() error = %v", err)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("Storage.Driver = %q, want file", cfg.Storage.Driver)
	}
}

func TestLoadLocalConfigFrom_WithFiles(t *testing.T) {
	dir := t.TempDir()
	config := `daemon:
  port: 9000
  log_level: debug
runtime:
  backend: docker
  docker:
    image: python:3.13-slim
storage:
  driver: sqlite
  path: pyquest.db
history:
  driver: postgres
sync:
  enabled: true
`
	secrets := `amqp_url: amqp://u:p@rabbit:5672/
postgres_url: postgres://u:p@db/pyquest
history_dsn: postgres://u:p@db/history
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte(secrets), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadLocalConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadLocalConfigFrom() error = %v", err)
	}

	if cfg.Daemon.Port != 9000 || cfg.Daemon.LogLevel != "debug" {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q; unset keys keep defaults", cfg.Daemon.Bind)
	}
	if cfg.Runtime.Docker.Image != "python:3.13-slim" || cfg.Runtime.Docker.MemoryMB != 256 {
		t.Errorf("Docker = %+v", cfg.Runtime.Docker)
	}
	if cfg.Sync.AmqpURL != "amqp://u:p@rabbit:5672/" || cfg.History.DSN != "postgres://u:p@db/history" {
		t.Errorf("secrets not applied: sync=%+v history=%+v", cfg.Sync, cfg.History)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadLocalConfigFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("daemon: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLocalConfigFrom(dir); err == nil {
		t.Error("LoadLocalConfigFrom() should fail on invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultLocalConfig()
	cfg.Runtime.Backend = "wasm"
	cfg.Storage.Driver = "s3"
	cfg.History.Driver = "mysql"
	cfg.Sync.Enabled = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"runtime.backend", "storage.driver", "history_dsn", "amqp_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q should mention %s", err, want)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 8123

	if err := SaveLocalConfig(dir, cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}
	if err := SaveSecrets(dir, SecretsConfig{AmqpURL: "amqp://x"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("secrets.yaml mode = %v; want 0600", info.Mode().Perm())
	}

	raw, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("saved config is not yaml: %v", err)
	}
	if strings.Contains(string(raw), "amqp://x") {
		t.Error("config.yaml must not contain secrets")
	}

	loaded, err := LoadLocalConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadLocalConfigFrom() error = %v", err)
	}
	if loaded.Daemon.Port != 8123 || loaded.Sync.AmqpURL != "amqp://x" {
		t.Errorf("round trip = port %d amqp %q", loaded.Daemon.Port, loaded.Sync.AmqpURL)
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/home/a/.pyquest", "progress"); got != "/home/a/.pyquest/progress" {
		t.Errorf("Resolve(relative) = %q", got)
	}
	if got := Resolve("/home/a/.pyquest", "/var/pq"); got != "/var/pq" {
		t.Errorf("Resolve(absolute) = %q", got)
	}
	if got := Resolve("/x", ""); got != "" {
		t.Errorf("Resolve(empty) = %q", got)
	}
}
