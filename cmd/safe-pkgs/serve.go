package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rayprogramming/hypermcp"
	"github.com/rayprogramming/hypermcp/cache"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveMCP bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !serveMCP {
			return fmt.Errorf("serve requires --mcp")
		}
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "serve over the MCP stdio transport")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	a, err := buildApp(logger)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := hypermcp.Config{
		Name:         "safe-pkgs",
		Version:      "0.1.0",
		CacheEnabled: true,
		CacheConfig: cache.Config{
			MaxCost:     100 * 1024 * 1024,
			NumCounters: 10_000,
			BufferItems: 64,
		},
	}

	srv, err := hypermcp.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	if err := a.tools.Register(srv); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	srv.LogRegistrationStats()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting safe-pkgs MCP server", zap.String("transport", "stdio"))
	if err := hypermcp.RunWithTransport(runCtx, srv, hypermcp.TransportStdio, logger); err != nil {
		if runCtx.Err() == context.Canceled {
			logger.Info("server shutdown complete")
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}
