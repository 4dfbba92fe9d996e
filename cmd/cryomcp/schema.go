package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var schemaFormat string

var schemaCmd = &cobra.Command{
	Use:   "schema <file>",
	Short: "Show the schema and a sample of one parquet file",
	Long: `Inspect a parquet file: column names and types, a bounded sample of rows,
and the total row count.

Examples:
  cryomcp schema ~/.cryo-mcp/data/ethereum__blocks__1000_to_1009.parquet
  cryomcp schema data/ethereum__logs__latest.parquet --format json`,
	Args: cobra.ExactArgs(1),
	Run:  runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&schemaFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) {
	logger := newCLILogger()
	ts := mustGetToolset(logger)

	result, err := ts.executor.InspectFile(newContext(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error inspecting file: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(result, OutputFormat(schemaFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}
