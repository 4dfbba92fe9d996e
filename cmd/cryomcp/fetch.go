package main

import (
	"fmt"
	"os"
	"time"

	"cryomcp/internal/blockrange"
	"cryomcp/internal/cryo"

	"github.com/spf13/cobra"
)

var (
	fetchBlocks       string
	fetchStartBlock   int64
	fetchEndBlock     int64
	fetchUseLatest    bool
	fetchFromLatest   int64
	fetchContract     string
	fetchOutputFormat string
	fetchInclude      []string
	fetchExclude      []string
	fetchFormat       string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <dataset>",
	Short: "Extract a block range of a dataset to local files",
	Long: `Run the extraction tool for one dataset and block selection.

Block selection (first match wins):
  --blocks              range string passed through unchanged, e.g. 1000:1010
  --use-latest          the current head block (with --blocks-from-latest: N before it)
  --start-block/--end-block  inclusive bounds
  none                  the default range 1000:1010

Head-relative fetches land under <data-dir>/latest and replace earlier
files for the same dataset; everything else lands in <data-dir>.

Examples:
  cryomcp fetch blocks --blocks 18000000:18000010
  cryomcp fetch transactions --start-block 18000000 --end-block 18000009
  cryomcp fetch logs --use-latest --contract 0x6B175474E89094C44Da98b954EedeAC495271d0F
  cryomcp fetch blocks --blocks-from-latest 100 --output-format json`,
	Args: cobra.ExactArgs(1),
	Run:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchBlocks, "blocks", "", "Block range in the extraction tool's syntax, e.g. 1000:1010")
	fetchCmd.Flags().Int64Var(&fetchStartBlock, "start-block", -1, "First block, inclusive")
	fetchCmd.Flags().Int64Var(&fetchEndBlock, "end-block", -1, "Last block, inclusive")
	fetchCmd.Flags().BoolVar(&fetchUseLatest, "use-latest", false, "Fetch relative to the current chain head")
	fetchCmd.Flags().Int64Var(&fetchFromLatest, "blocks-from-latest", -1, "Fetch the head block and the N blocks before it")
	fetchCmd.Flags().StringVar(&fetchContract, "contract", "", "Filter by contract address")
	fetchCmd.Flags().StringVar(&fetchOutputFormat, "output-format", "", "File format: parquet, json, or csv (default parquet)")
	fetchCmd.Flags().StringSliceVar(&fetchInclude, "include-columns", nil, "Columns to include")
	fetchCmd.Flags().StringSliceVar(&fetchExclude, "exclude-columns", nil, "Columns to exclude")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(fetchCmd)
}

// FetchResponseCLI contains extraction results for CLI output
type FetchResponseCLI struct {
	Dataset    string   `json:"dataset"`
	BlockRange string   `json:"block_range"`
	Files      []string `json:"files"`
	Count      int      `json:"count"`
	FileFormat string   `json:"file_format"`
	DurationMs int64    `json:"duration_ms"`
}

func runFetch(cmd *cobra.Command, args []string) {
	start := time.Now()
	logger := newCLILogger()
	ts := mustGetToolset(logger)
	ctx := newContext()
	dataset := args[0]

	req := blockrange.Request{
		Blocks:    fetchBlocks,
		UseLatest: fetchUseLatest,
	}
	if fetchStartBlock >= 0 {
		req.StartBlock = &fetchStartBlock
	}
	if fetchEndBlock >= 0 {
		req.EndBlock = &fetchEndBlock
	}
	if fetchFromLatest >= 0 {
		req.BlocksFromLatest = &fetchFromLatest
	}

	rng, err := blockrange.Resolve(req, blockrange.ModeQuery, ts.headFunc(ctx))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving block range: %v\n", err)
		os.Exit(1)
	}

	result, err := ts.runner.Fetch(ctx, cryo.FetchRequest{
		Dataset:        dataset,
		Range:          rng,
		Contract:       fetchContract,
		OutputFormat:   fetchOutputFormat,
		IncludeColumns: fetchInclude,
		ExcludeColumns: fetchExclude,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching %s: %v\n", dataset, err)
		os.Exit(1)
	}

	response := &FetchResponseCLI{
		Dataset:    dataset,
		BlockRange: rng.Text,
		Files:      result.Files,
		Count:      result.Count,
		FileFormat: result.Format,
		DurationMs: time.Since(start).Milliseconds(),
	}

	output, err := FormatResponse(response, OutputFormat(fetchFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}
