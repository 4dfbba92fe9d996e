package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"cryomcp/internal/chain"
	"cryomcp/internal/config"
	"cryomcp/internal/cryo"
	"cryomcp/internal/query"
	"cryomcp/internal/slogutil"
)

// toolset bundles the collaborators the data subcommands share.
type toolset struct {
	cfg      *config.Config
	runner   *cryo.Runner
	executor *query.Executor
	chain    *chain.Client
}

var (
	toolsetOnce   sync.Once
	sharedToolset *toolset
	toolsetErr    error
)

// getToolset returns a shared toolset, lazily built from the resolved
// configuration.
func getToolset(logger *slog.Logger) (*toolset, error) {
	toolsetOnce.Do(func() {
		cfg, err := resolveConfig()
		if err != nil {
			toolsetErr = err
			return
		}

		limits := query.Limits{
			MemoryLimit:        cfg.Query.MemoryLimit,
			MaxExpressionDepth: cfg.Query.MaxExpressionDepth,
			TimeoutMs:          cfg.Query.TimeoutMs,
		}
		sharedToolset = &toolset{
			cfg:      cfg,
			runner:   cryo.NewRunner(cfg.Cryo.Binary, cfg.RPCURL, cfg.DataDir, logger),
			executor: query.NewExecutor(cfg.DataDir, limits, logger),
			chain:    chain.NewClient(cfg.RPCURL, logger),
		}
	})
	return sharedToolset, toolsetErr
}

// mustGetToolset returns the shared toolset or exits on error.
func mustGetToolset(logger *slog.Logger) *toolset {
	ts, err := getToolset(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return ts
}

// headFunc adapts the chain client to the block-range resolver.
func (ts *toolset) headFunc(ctx context.Context) func() (int64, error) {
	return func() (int64, error) {
		return ts.chain.LatestBlockNumber(ctx)
	}
}

// newContext creates a new context for command execution.
func newContext() context.Context {
	return context.Background()
}

// newCLILogger returns the logger CLI commands use: debug to stderr with
// --verbose, silent otherwise. Command output itself goes to stdout.
func newCLILogger() *slog.Logger {
	if verboseFlag {
		return slogutil.NewLogger(os.Stderr, slog.LevelDebug)
	}
	return slogutil.NewDiscardLogger()
}
