package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pyquest/internal/config"
)

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the pyquest directory and default configuration",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
	f := cmd.Flags()
	f.String("amqp-url", "", "RabbitMQ URL used for sync")
	f.String("postgres-url", "", "Central PostgreSQL URL used by the worker")
	f.String("history-dsn", "", "DSN of the history database when not using SQLite")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "pyquest setup")
	fmt.Fprintln(out, "=============")

	for _, sub := range []string{"logs", "progress", "courses"} {
		if err := os.MkdirAll(filepath.Join(env.dir, sub), 0755); err != nil {
			return fmt.Errorf("create directories: %w", err)
		}
	}
	fmt.Fprintf(out, "Directory %s ✓\n", env.dir)

	configPath := filepath.Join(env.dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.SaveLocalConfig(env.dir, config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(out, "Default configuration created ✓")
	} else {
		fmt.Fprintln(out, "Configuration already exists ✓")
	}

	secrets := config.SecretsConfig{
		AmqpURL:     env.cfg.Sync.AmqpURL,
		PostgresURL: env.cfg.Sync.PostgresURL,
		HistoryDSN:  env.cfg.History.DSN,
	}
	changed := false
	for flag, field := range map[string]*string{
		"amqp-url":     &secrets.AmqpURL,
		"postgres-url": &secrets.PostgresURL,
		"history-dsn":  &secrets.HistoryDSN,
	} {
		if v := env.v.GetString(flag); v != "" {
			*field = v
			changed = true
		}
	}
	if changed {
		if err := config.SaveSecrets(env.dir, secrets); err != nil {
			return fmt.Errorf("save secrets: %w", err)
		}
		fmt.Fprintln(out, "Connection settings saved to secrets.yaml ✓")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  pyquest courses                   # browse lessons")
	fmt.Fprintln(out, "  pyquest validate -l hello-world hello.py")
	fmt.Fprintln(out, "  pyquest start                     # run the daemon for editors")
	return nil
}
