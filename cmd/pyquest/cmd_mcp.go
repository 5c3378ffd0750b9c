package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/felixgeelhaar/pyquest/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve pyquest tools over MCP (stdio by default)",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	}
	f := cmd.Flags()
	f.String("http", "", "Serve over HTTP on this address instead of stdio")
	f.String("backend", "", "Code runtime backend (local, docker)")
	return cmd
}

func runMCP(cmd *cobra.Command, _ []string) error {
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
	defer a.Close()
	a.Start(ctx)

	server := mcpserver.NewServer(mcpserver.Config{
		Sessions: a.Sessions,
		UserID:   env.user(),
		Version:  Version,
	})

	if addr := env.v.GetString("http"); addr != "" {
		slog.Info("serving MCP over HTTP", "addr", addr)
		return server.ServeHTTP(ctx, addr)
	}
	return server.ServeStdio(ctx)
}
