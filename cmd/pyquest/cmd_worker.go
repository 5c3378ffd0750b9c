package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pyquest/internal/config"
	"github.com/felixgeelhaar/pyquest/internal/queue"
	"github.com/felixgeelhaar/pyquest/internal/storage/postgres"
	"github.com/felixgeelhaar/pyquest/internal/storage/sqldb"
)

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume synced progress into the central PostgreSQL database",
		Args:  cobra.NoArgs,
		RunE:  runWorker,
	}
	cmd.Flags().Int("workers", 0, "Concurrent workers per queue (default from config)")
	cmd.AddCommand(leaderboardCmd())
	return cmd
}

func leaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top learners in the central database",
		Args:  cobra.NoArgs,
		RunE:  runLeaderboard,
	}
	cmd.Flags().Int("limit", 10, "Number of learners to show")
	return cmd
}

func requireCentral(cfg *config.LocalConfig) error {
	if cfg.Sync.PostgresURL == "" {
		return errors.New("postgres_url missing from secrets.yaml")
	}
	return nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	cfg := env.cfg
	if err := requireCentral(cfg); err != nil {
		return err
	}
	if cfg.Sync.AmqpURL == "" {
		return errors.New("amqp_url missing from secrets.yaml")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, closeRecords, err := openRecords(ctx, cfg.Sync.PostgresURL)
	if err != nil {
		return err
	}
	defer closeRecords()

	db, err := sqldb.Open(ctx, "postgres", cfg.Sync.PostgresURL)
	if err != nil {
		return fmt.Errorf("open attempts database: %w", err)
	}
	defer db.Close()

	attempts := sqldb.NewAttemptRepository(db)
	if err := attempts.EnsureSchema(ctx); err != nil {
		return err
	}

	conn, err := queue.NewConnection(cfg.Sync.AmqpURL, slog.Default())
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer conn.Close()

	workers := cfg.Sync.Workers
	if env.v.IsSet("workers") {
		workers = env.v.GetInt("workers")
	}

	consumer := queue.NewConsumer(conn, queue.NewSink(records, attempts, slog.Default()), queue.ConsumerConfig{
		Workers: workers,
	})
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	consumer.Stop()
	return nil
}

func openRecords(ctx context.Context, url string) (*postgres.UserRecordRepository, func(), error) {
	pool, err := postgres.Connect(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	records := postgres.NewUserRecordRepository(pool)
	if err := records.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return records, pool.Close, nil
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	if err := requireCentral(env.cfg); err != nil {
		return err
	}

	records, closeRecords, err := openRecords(cmd.Context(), env.cfg.Sync.PostgresURL)
	if err != nil {
		return err
	}
	defer closeRecords()

	top, err := records.Leaderboard(cmd.Context(), env.v.GetInt("limit"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, rec := range top {
		fmt.Fprintf(out, "%3d. %-24s level %-3d %6d XP  🔥 %d\n", i+1, rec.UserID, rec.Level, rec.XP, rec.Streak)
	}
	if len(top) == 0 {
		fmt.Fprintln(out, "No learners synced yet")
	}
	return nil
}
