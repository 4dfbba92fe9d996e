package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var datasetsFormat string

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the datasets the extraction tool can produce",
	Long: `List every dataset name the extraction tool reports.

Examples:
  cryomcp datasets
  cryomcp datasets --format json`,
	Run: runDatasets,
}

func init() {
	datasetsCmd.Flags().StringVar(&datasetsFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(datasetsCmd)
}

// DatasetsResponseCLI contains the dataset listing for CLI output
type DatasetsResponseCLI struct {
	Datasets []string `json:"datasets"`
}

func runDatasets(cmd *cobra.Command, args []string) {
	logger := newCLILogger()
	ts := mustGetToolset(logger)

	names, err := ts.runner.Datasets(newContext())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing datasets: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(&DatasetsResponseCLI{Datasets: names}, OutputFormat(datasetsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}
