package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"cryomcp/internal/storage"

	"github.com/spf13/cobra"
)

var (
	statsWindow time.Duration
	statsPrune  time.Duration
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tool usage statistics",
	Long: `Summarize recorded MCP tool calls: call counts, failure rates, and
average latency per tool over the given window.

Examples:
  cryomcp stats
  cryomcp stats --window 24h
  cryomcp stats --prune 720h   # also delete records older than 30 days`,
	Run: runStats,
}

func init() {
	statsCmd.Flags().DurationVar(&statsWindow, "window", 7*24*time.Hour, "Aggregation window")
	statsCmd.Flags().DurationVar(&statsPrune, "prune", 0, "Delete records older than this before aggregating")
	statsCmd.Flags().StringVar(&statsFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(statsCmd)
}

// StatsResponseCLI contains usage aggregates for CLI output
type StatsResponseCLI struct {
	Window       string                       `json:"window"`
	Tools        []*storage.ToolCallAggregate `json:"tools"`
	TotalRecords int64                        `json:"total_records"`
	OldestRecord string                       `json:"oldest_record,omitempty"`
	NewestRecord string                       `json:"newest_record,omitempty"`
	Pruned       int64                        `json:"pruned,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) {
	logger := newCLILogger()
	cfg := mustResolveConfig()

	store, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening usage store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var pruned int64
	if statsPrune > 0 {
		pruned, err = store.CleanupOldCalls(statsPrune)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pruning old records: %v\n", err)
			os.Exit(1)
		}
	}

	aggregates, err := store.ToolCallAggregates(time.Now().Add(-statsWindow))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage aggregates: %v\n", err)
		os.Exit(1)
	}

	total, oldest, newest, err := store.ToolCallStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage stats: %v\n", err)
		os.Exit(1)
	}

	tools := make([]*storage.ToolCallAggregate, 0, len(aggregates))
	for _, agg := range aggregates {
		tools = append(tools, agg)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ToolName < tools[j].ToolName })

	response := &StatsResponseCLI{
		Window:       statsWindow.String(),
		Tools:        tools,
		TotalRecords: total,
		Pruned:       pruned,
	}
	if oldest != nil {
		response.OldestRecord = oldest.Format(time.RFC3339)
	}
	if newest != nil {
		response.NewestRecord = newest.Format(time.RFC3339)
	}

	output, err := FormatResponse(response, OutputFormat(statsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}
