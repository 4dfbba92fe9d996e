package main

import (
	"fmt"
	"os"

	"cryomcp/internal/config"
	"cryomcp/internal/version"

	"github.com/spf13/cobra"
)

var (
	// rpcURLFlag is the CLI --rpc-url flag value
	rpcURLFlag string
	// dataDirFlag is the CLI --data-dir flag value
	dataDirFlag string
	// verboseFlag enables debug logging to stderr for CLI commands
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "cryomcp",
	Short: "cryomcp - blockchain extraction with SQL over the results",
	Long: `cryomcp wraps the cryo extraction tool and an embedded analytical engine.
It serves extraction and SQL tools to MCP clients over stdio (the mcp command)
and exposes the same operations as shell subcommands. Extracted files land
under the data directory; SQL queries run directly against the parquet files.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("cryomcp version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rpcURLFlag, "rpc-url", "",
		"Ethereum JSON-RPC endpoint (overrides ETH_RPC_URL and the config file)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"Directory for extracted data files (overrides CRYO_DATA_DIR and the config file)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false,
		"Enable debug logging to stderr")
}

// resolveConfig loads the configuration and applies flag overrides.
// Precedence per value: CLI flag > environment > config file > default.
func resolveConfig() (*config.Config, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if rpcURLFlag != "" {
		cfg.RPCURL = rpcURLFlag
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mustResolveConfig returns the resolved configuration or exits on error.
func mustResolveConfig() *config.Config {
	cfg, err := resolveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
