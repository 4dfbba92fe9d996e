package main

import (
	"fmt"
	"os"
	"path/filepath"

	"cryomcp/internal/config"

	"github.com/spf13/cobra"
)

var (
	configInitForce  bool
	configShowFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage cryomcp configuration",
	Long:  "View and manage the configuration stored in ~/.cryo-mcp/config.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to ~/.cryo-mcp/config.toml.

Refuses to overwrite an existing file unless --force is given.`,
	Run: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after applying environment variables and CLI flags.

Examples:
  cryomcp config show
  cryomcp config show --format json
  ETH_RPC_URL=https://eth.example.org cryomcp config show`,
	Run: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "human", "Output format (json, human)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponseCLI contains the effective configuration for CLI output
type ConfigShowResponseCLI struct {
	ConfigPath string         `json:"config_path"`
	FileExists bool           `json:"file_exists"`
	Config     *config.Config `json:"config"`
}

func runConfigInit(cmd *cobra.Command, args []string) {
	dir, err := config.ConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error locating config directory: %v\n", err)
		os.Exit(1)
	}

	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err == nil && !configInitForce {
		fmt.Fprintf(os.Stderr, "Config file already exists at %s (use --force to overwrite)\n", path)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote default configuration to %s\n", path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := mustResolveConfig()

	response := &ConfigShowResponseCLI{Config: cfg}
	if dir, err := config.ConfigDir(); err == nil {
		response.ConfigPath = filepath.Join(dir, "config.toml")
		_, statErr := os.Stat(response.ConfigPath)
		response.FileExists = statErr == nil
	}

	output, err := FormatResponse(response, OutputFormat(configShowFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}
