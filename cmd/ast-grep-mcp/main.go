package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/ast-grep-mcp/internal/config"
	"github.com/dshills/ast-grep-mcp/internal/mcp"
	"github.com/dshills/ast-grep-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	// Global flags
	configPath string
	binary     string
	historyDB  string
	timeout    time.Duration
	verbose    bool

	// Serve flags
	transport string
	addr      string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ast-grep-mcp",
	Short: "MCP server exposing ast-grep structural code search",
	Long: `ast-grep-mcp is a Model Context Protocol server that lets AI assistants
search code structurally with ast-grep.

It exposes four tools: dump_syntax_tree, test_match_code_rule, find_code
and find_code_by_rule. The ast-grep executable must be installed.

Run without a subcommand to serve MCP on stdio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// stdout belongs to the protocol; production config logs to stderr
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP on stdio or streamable HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to sgconfig.yml (or set "+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&binary, "ast-grep-bin", "", "ast-grep executable (or set "+config.EnvBinary+")")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "SQLite file recording tool calls (or set "+config.EnvHistoryDB+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Limit for each ast-grep run, 0 for none (or set "+config.EnvTimeout+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
		cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for the http transport")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigPath: configPath,
		Binary:     binary,
		HistoryDB:  historyDB,
		Timeout:    timeout,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn("Configuration problem", zap.Error(w))
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport %q: use stdio or http", transport)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("ast-grep MCP server starting",
		zap.String("version", version),
		zap.String("transport", transport),
		zap.String("config", cfg.ConfigPath),
		zap.Duration("timeout", cfg.Timeout),
		zap.Bool("history", cfg.HistoryDB != ""),
		zap.String("storage_driver", storage.DriverName))

	server, err := mcp.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if transport == "http" {
			errChan <- server.ServeHTTP(ctx, addr)
			return
		}
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.Stringer("signal", sig))
		cancel()
		err = <-errChan
	case err = <-errChan:
	}
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
