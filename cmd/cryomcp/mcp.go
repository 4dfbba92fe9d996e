package main

import (
	"fmt"
	"log/slog"
	"os"

	"cryomcp/internal/chain"
	"cryomcp/internal/config"
	"cryomcp/internal/cryo"
	"cryomcp/internal/mcp"
	"cryomcp/internal/query"
	"cryomcp/internal/slogutil"
	"cryomcp/internal/storage"
	"cryomcp/internal/version"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol (MCP) server.

The server speaks JSON-RPC 2.0 over stdio. Logs go to <data-dir>/logs/
since stdout carries the protocol stream.

Tools exposed:
  - list_datasets, query_dataset, lookup_dataset
  - execute_sql_query, list_available_sql_tables, get_sql_table_schema
  - query_blockchain_sql
  - get_transaction_by_hash, get_latest_ethereum_block

Example usage:
  cryomcp mcp
  cryomcp mcp --rpc-url https://eth.example.org --data-dir /var/lib/cryomcp

This command is typically invoked by MCP clients and not directly by users.`,
	RunE: runMCP,
}

var (
	mcpLogFile  string
	mcpLogLevel string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpLogFile, "log-file", "",
		"Write all server logs to this file instead of <data-dir>/logs/")
	mcpCmd.Flags().StringVar(&mcpLogLevel, "log-level", "",
		"Log level for the server (debug, info, warn, error)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	serverLogger, fetchLogger, queryLogger, closeLogs, err := mcpLoggers(cfg)
	if err != nil {
		return err
	}
	defer closeLogs()

	serverLogger.Info("Starting MCP server",
		"version", version.Version,
		"rpc_url", cfg.RPCURL,
		"data_dir", cfg.DataDir,
	)

	store, err := storage.Open(cfg.DataDir, serverLogger)
	if err != nil {
		// Usage recording is an extra; the server runs without it.
		serverLogger.Warn("Usage store unavailable, tool calls will not be recorded", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	limits := query.Limits{
		MemoryLimit:        cfg.Query.MemoryLimit,
		MaxExpressionDepth: cfg.Query.MaxExpressionDepth,
		TimeoutMs:          cfg.Query.TimeoutMs,
	}
	server := mcp.NewServer(version.Version, mcp.Deps{
		Runner:   cryo.NewRunner(cfg.Cryo.Binary, cfg.RPCURL, cfg.DataDir, fetchLogger),
		Executor: query.NewExecutor(cfg.DataDir, limits, queryLogger),
		Chain:    chain.NewClient(cfg.RPCURL, serverLogger),
		Store:    store,
		DataDir:  cfg.DataDir,
		Logger:   serverLogger,
	})

	if err := server.Start(); err != nil {
		serverLogger.Error("MCP server error", "error", err)
		return err
	}
	return nil
}

// mcpLoggers builds the server, fetch, and query loggers. With --log-file
// everything shares one file; otherwise each subsystem writes under
// <data-dir>/logs.
func mcpLoggers(cfg *config.Config) (*slog.Logger, *slog.Logger, *slog.Logger, func(), error) {
	if mcpLogFile != "" {
		level := mcpLogLevel
		if level == "" {
			level = cfg.Logging.MCP
		}
		if level == "" {
			level = cfg.Logging.Level
		}
		logger, file, err := slogutil.NewFileLogger(mcpLogFile, slogutil.LevelFromString(level))
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return logger, logger, logger, func() { file.Close() }, nil
	}

	factory := slogutil.NewLoggerFactory(cfg.DataDir, cfg, mcpLogLevel)
	serverLogger, err := factory.MCPLogger()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	fetchLogger, err := factory.FetchLogger()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	queryLogger, err := factory.QueryLogger()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return serverLogger, fetchLogger, queryLogger, func() { factory.Close() }, nil
}
