package main

import (
	"fmt"
	"os"

	"cryomcp/internal/catalog"

	"github.com/spf13/cobra"
)

var tablesFormat string

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List parquet files available for SQL queries",
	Long: `List the parquet files in the data directory, with the dataset name and
block range inferred from each filename.

Examples:
  cryomcp tables
  cryomcp tables --format json`,
	Run: runTables,
}

func init() {
	tablesCmd.Flags().StringVar(&tablesFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(tablesCmd)
}

// TablesResponseCLI contains the file catalog for CLI output
type TablesResponseCLI struct {
	DataDir string         `json:"data_dir"`
	Files   []catalog.File `json:"files"`
}

func runTables(cmd *cobra.Command, args []string) {
	logger := newCLILogger()
	ts := mustGetToolset(logger)

	files, err := catalog.Scan(ts.cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning data directory: %v\n", err)
		os.Exit(1)
	}
	if files == nil {
		files = []catalog.File{}
	}

	response := &TablesResponseCLI{DataDir: ts.cfg.DataDir, Files: files}
	output, err := FormatResponse(response, OutputFormat(tablesFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}
