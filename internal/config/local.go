// Package config loads pyquest settings from ~/.pyquest/config.yaml with
// credentials kept apart in secrets.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the local daemon and CLI
type LocalConfig struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Storage StorageConfig `yaml:"storage"`
	History HistoryConfig `yaml:"history"`
	Sync    SyncConfig    `yaml:"sync"`
	Content ContentConfig `yaml:"content"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port      int             `yaml:"port"`
	Bind      string          `yaml:"bind"`
	LogLevel  string          `yaml:"log_level"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds requests per user
type RateLimitConfig struct {
	Requests int `yaml:"requests"`
	PerSecs  int `yaml:"per_seconds"`
}

// RuntimeConfig holds code execution settings
type RuntimeConfig struct {
	Backend          string              `yaml:"backend"` // local or docker
	Python           string              `yaml:"python"`
	TimeoutSeconds   int                 `yaml:"timeout_seconds"`
	FailureThreshold int                 `yaml:"failure_threshold"`
	OpenSeconds      int                 `yaml:"open_seconds"`
	Docker           DockerRuntimeConfig `yaml:"docker"`
}

// DockerRuntimeConfig holds Docker sandbox settings
type DockerRuntimeConfig struct {
	Image      string  `yaml:"image"`
	MemoryMB   int     `yaml:"memory_mb"`
	CPULimit   float64 `yaml:"cpu_limit"`
	NetworkOff bool    `yaml:"network_off"`
}

// StorageConfig selects where progress blobs live
type StorageConfig struct {
	Driver string `yaml:"driver"` // file or sqlite
	Path   string `yaml:"path"`   // relative paths resolve under ~/.pyquest
}

// HistoryConfig selects the database for submission history
type HistoryConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres or mysql
	DSN    string `yaml:"-"`      // from secrets.yaml; sqlite defaults to the storage db
}

// SyncConfig controls replication to a central server
type SyncConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Buffer      int    `yaml:"buffer"`
	Workers     int    `yaml:"workers"`
	AmqpURL     string `yaml:"-"` // from secrets.yaml
	PostgresURL string `yaml:"-"` // from secrets.yaml
}

// ContentConfig locates lesson content
type ContentConfig struct {
	CoursesDir string `yaml:"courses_dir"`
}

// SecretsConfig holds connection strings loaded from secrets.yaml
type SecretsConfig struct {
	AmqpURL     string `yaml:"amqp_url,omitempty"`
	PostgresURL string `yaml:"postgres_url,omitempty"`
	HistoryDSN  string `yaml:"history_dsn,omitempty"`
}

// Timeout returns the execution timeout
func (r RuntimeConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// OpenTimeout returns how long the circuit stays open
func (r RuntimeConfig) OpenTimeout() time.Duration {
	return time.Duration(r.OpenSeconds) * time.Second
}

// Window returns the rate limit window
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.PerSecs) * time.Second
}

// Dir returns the path to ~/.pyquest
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".pyquest"), nil
}

// EnsureDir creates ~/.pyquest and subdirectories if they don't exist
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "progress", "courses"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
			RateLimit: RateLimitConfig{
				Requests: 60,
				PerSecs:  60,
			},
		},
		Runtime: RuntimeConfig{
			Backend:          "local",
			Python:           "python3",
			TimeoutSeconds:   10,
			FailureThreshold: 3,
			OpenSeconds:      30,
			Docker: DockerRuntimeConfig{
				Image:      "python:3.12-alpine",
				MemoryMB:   256,
				CPULimit:   0.5,
				NetworkOff: true,
			},
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "progress",
		},
		History: HistoryConfig{
			Driver: "sqlite",
		},
		Sync: SyncConfig{
			Buffer:  256,
			Workers: 3,
		},
		Content: ContentConfig{
			CoursesDir: "courses",
		},
	}
}

// Resolve returns p made absolute against the pyquest directory
func Resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks settings that would otherwise fail late
func (c *LocalConfig) Validate() error {
	var errs []error
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}
	switch c.Runtime.Backend {
	case "local", "docker":
	default:
		errs = append(errs, fmt.Errorf("runtime.backend %q must be local or docker", c.Runtime.Backend))
	}
	if c.Runtime.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("runtime.timeout_seconds must be positive"))
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be file or sqlite", c.Storage.Driver))
	}
	switch c.History.Driver {
	case "sqlite", "postgres", "mysql", "none":
	default:
		errs = append(errs, fmt.Errorf("history.driver %q must be sqlite, postgres, mysql or none", c.History.Driver))
	}
	if c.History.Driver == "postgres" || c.History.Driver == "mysql" {
		if c.History.DSN == "" {
			errs = append(errs, fmt.Errorf("history.driver %s needs history_dsn in secrets.yaml", c.History.Driver))
		}
	}
	if c.Sync.Enabled && c.Sync.AmqpURL == "" {
		errs = append(errs, errors.New("sync.enabled needs amqp_url in secrets.yaml"))
	}
	return errors.Join(errs...)
}

// LoadLocalConfig loads configuration from ~/.pyquest/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom loads config.yaml and secrets.yaml from dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads connection strings from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	cfg.Sync.AmqpURL = secrets.AmqpURL
	cfg.Sync.PostgresURL = secrets.PostgresURL
	cfg.History.DSN = secrets.HistoryDSN
	return nil
}

// SaveLocalConfig saves configuration to dir/config.yaml
func SaveLocalConfig(dir string, cfg *LocalConfig) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveSecrets saves connection strings to dir/secrets.yaml
func SaveSecrets(dir string, secrets SecretsConfig) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// owner read/write only
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}
