package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	sqlFiles    []string
	sqlNoSchema bool
	sqlFormat   string
)

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a SQL query against extracted parquet files",
	Long: `Execute a SQL query over the parquet files in the data directory.

Table names in the query resolve against extracted files by dataset name;
multiple files for one dataset are combined. Use read_parquet('<path>')
to query a file directly, or --file to pin the candidate files.

Examples:
  cryomcp sql "SELECT COUNT(*) FROM blocks"
  cryomcp sql "SELECT block_number, gas_used FROM blocks ORDER BY gas_used DESC LIMIT 10"
  cryomcp sql "SELECT * FROM txs LIMIT 5" --file ~/.cryo-mcp/data/ethereum__txs__1000_to_1009.parquet
  cryomcp sql "SELECT COUNT(*) FROM blocks" --no-schema --format json`,
	Args: cobra.ExactArgs(1),
	Run:  runSQL,
}

func init() {
	sqlCmd.Flags().StringArrayVar(&sqlFiles, "file", nil, "Restrict the query to these parquet files (repeatable)")
	sqlCmd.Flags().BoolVar(&sqlNoSchema, "no-schema", false, "Omit column type information from the result")
	sqlCmd.Flags().StringVar(&sqlFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(sqlCmd)
}

func runSQL(cmd *cobra.Command, args []string) {
	start := time.Now()
	logger := newCLILogger()
	ts := mustGetToolset(logger)

	result, err := ts.executor.Execute(newContext(), args[0], sqlFiles, !sqlNoSchema)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing query: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(result, OutputFormat(sqlFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)

	logger.Debug("Query completed",
		"rows", result.RowCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
