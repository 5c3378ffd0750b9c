package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/felixgeelhaar/pyquest/internal/app"
	"github.com/felixgeelhaar/pyquest/internal/config"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pyquest",
		Short:        "Learn Python by earning XP, streaks and achievements",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("dir", "", "pyquest directory (default ~/.pyquest)")
	pf.StringP("user", "u", "default", "Learner id")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(
		initCmd(),
		startCmd(),
		stopCmd(),
		statusCmd(),
		logsCmd(),
		serveCmd(),
		coursesCmd(),
		validateCmd(),
		runCmd(),
		statsCmd(),
		achievementsCmd(),
		mcpCmd(),
		workerCmd(),
		versionCmd(),
	)

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pyquest %s\n", Version)
		},
	}
}

func setupLogging(v *viper.Viper) {
	handlerOpts := &slog.HandlerOptions{Level: parseLogLevel(v.GetString("log-level"))}

	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
// Settings files are read by the config package; viper only layers flags and
// PYQUEST_* variables on top.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PYQUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// cliEnv is the resolved environment of one command invocation
type cliEnv struct {
	v   *viper.Viper
	dir string
	cfg *config.LocalConfig
}

// loadEnv configures logging and loads config.yaml with flag overrides applied
func loadEnv(cmd *cobra.Command) (*cliEnv, error) {
	v := viperForCmd(cmd)
	setupLogging(v)

	dir := v.GetString("dir")
	if dir == "" {
		d, err := config.EnsureDir()
		if err != nil {
			return nil, fmt.Errorf("setup pyquest directory: %w", err)
		}
		dir = d
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	cfg, err := config.LoadLocalConfigFrom(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(v, cfg)

	return &cliEnv{v: v, dir: dir, cfg: cfg}, nil
}

// applyOverrides copies explicitly set flags and variables into cfg
func applyOverrides(v *viper.Viper, cfg *config.LocalConfig) {
	if v.IsSet("port") {
		cfg.Daemon.Port = v.GetInt("port")
	}
	if v.IsSet("bind") {
		cfg.Daemon.Bind = v.GetString("bind")
	}
	if v.IsSet("backend") {
		cfg.Runtime.Backend = v.GetString("backend")
	}
	if v.IsSet("courses-dir") {
		cfg.Content.CoursesDir = v.GetString("courses-dir")
	}
	if v.IsSet("log-level") {
		cfg.Daemon.LogLevel = v.GetString("log-level")
	}
}

func (e *cliEnv) user() string {
	return e.v.GetString("user")
}

func (e *cliEnv) openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, e.dir, e.cfg, slog.Default())
}

// daemonAddr is the base URL of the local daemon
func (e *cliEnv) daemonAddr() string {
	host := e.cfg.Daemon.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, e.cfg.Daemon.Port)
}

// renderProgressBar renders value in [0,1] as a fixed width bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
