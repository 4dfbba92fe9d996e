package mcp

import (
	"context"
	"fmt"

	"cryomcp/internal/blockrange"
	"cryomcp/internal/catalog"
	"cryomcp/internal/cryo"
	"cryomcp/internal/errors"
	"cryomcp/internal/query"
)

// stringArg returns the string value for key, or "" when absent.
func stringArg(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return v
}

// boolArg returns the boolean value for key, or false when absent.
func boolArg(params map[string]interface{}, key string) bool {
	v, _ := params[key].(bool)
	return v
}

// intArg returns the numeric value for key, or nil when absent.
// JSON numbers arrive as float64.
func intArg(params map[string]interface{}, key string) *int64 {
	v, ok := params[key].(float64)
	if !ok {
		return nil
	}
	n := int64(v)
	return &n
}

// stringSliceArg returns the string-array value for key, or nil when absent.
func stringSliceArg(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// rangeRequest builds a block selection from the fetch-shaped tool parameters
func rangeRequest(params map[string]interface{}) blockrange.Request {
	return blockrange.Request{
		Blocks:           stringArg(params, "blocks"),
		StartBlock:       intArg(params, "start_block"),
		EndBlock:         intArg(params, "end_block"),
		UseLatest:        boolArg(params, "use_latest"),
		BlocksFromLatest: intArg(params, "blocks_from_latest"),
	}
}

// headFunc adapts the chain client to the block-range resolver
func (s *Server) headFunc(ctx context.Context) blockrange.HeadFunc {
	return func() (int64, error) {
		return s.chain.LatestBlockNumber(ctx)
	}
}

// extractionFailure splits an extraction error into its captured streams.
// stderr falls back to the error message when no stream was captured.
func extractionFailure(err error) (stderr, stdout string) {
	ce, ok := err.(*errors.CryoError)
	if !ok {
		return err.Error(), ""
	}
	if d, ok := ce.Details.(*errors.ExtractionDetails); ok && d.Stderr != "" {
		return d.Stderr, d.Stdout
	}
	return ce.Message, ""
}

// toolListDatasets implements the list_datasets tool
func (s *Server) toolListDatasets(params map[string]interface{}) (interface{}, error) {
	datasets, err := s.runner.Datasets(context.Background())
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"datasets": datasets,
	}, nil
}

// toolQueryDataset implements the query_dataset tool
func (s *Server) toolQueryDataset(params map[string]interface{}) (interface{}, error) {
	dataset := stringArg(params, "dataset")
	if dataset == "" {
		return nil, errors.NewInvalidParameterError("dataset", "")
	}

	ctx := context.Background()
	rng, err := blockrange.Resolve(rangeRequest(params), blockrange.ModeQuery, s.headFunc(ctx))
	if err != nil {
		return nil, err
	}

	format := stringArg(params, "output_format")
	if format == "" {
		format = "json"
	}

	return s.runner.Fetch(ctx, cryo.FetchRequest{
		Dataset:        dataset,
		Range:          rng,
		Contract:       stringArg(params, "contract"),
		OutputFormat:   format,
		IncludeColumns: stringSliceArg(params, "include_columns"),
		ExcludeColumns: stringSliceArg(params, "exclude_columns"),
	})
}

// datasetInfo assembles the descriptive payload shared by lookup_dataset and
// the dataset resource: help text, canned examples, and usage notes.
func (s *Server) datasetInfo(ctx context.Context, name string) (map[string]interface{}, error) {
	description, err := s.runner.DatasetHelp(ctx, name)
	if err != nil {
		return nil, err
	}

	examples := []string{
		fmt.Sprintf("query_dataset('%s', blocks='1000:1010')", name),
		fmt.Sprintf("query_dataset('%s', start_block=1000, end_block=1009)", name),
		fmt.Sprintf("query_dataset('%s', use_latest=true)  # Gets just the latest block", name),
	}
	// The head-relative example only makes sense when the endpoint answers.
	if _, err := s.chain.LatestBlockNumber(ctx); err == nil {
		examples = append(examples,
			fmt.Sprintf("query_dataset('%s', blocks_from_latest=10)  # Gets latest-10 to latest blocks", name))
	}

	return map[string]interface{}{
		"name":            name,
		"description":     description,
		"example_queries": examples,
		"notes": []string{
			"Block ranges are inclusive for start_block and end_block when using integer parameters.",
			"Use 'use_latest=true' to query only the latest block.",
			"Use 'blocks_from_latest=N' to query the latest N blocks.",
		},
	}, nil
}

// toolLookupDataset implements the lookup_dataset tool. Schema and sample
// failures land in dedicated fields so a partial answer still comes back.
func (s *Server) toolLookupDataset(params map[string]interface{}) (interface{}, error) {
	name := stringArg(params, "name")
	if name == "" {
		return nil, errors.NewInvalidParameterError("name", "")
	}

	ctx := context.Background()
	info, err := s.datasetInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	if schema, err := s.runner.DryRunSchema(ctx, name); err != nil {
		stderr, _ := extractionFailure(err)
		info["schema_error"] = stderr
	} else {
		info["schema"] = schema
	}

	sampleReq := blockrange.Request{
		StartBlock:       intArg(params, "sample_start_block"),
		EndBlock:         intArg(params, "sample_end_block"),
		UseLatest:        boolArg(params, "use_latest_sample"),
		BlocksFromLatest: intArg(params, "sample_blocks_from_latest"),
	}
	rng, err := blockrange.Resolve(sampleReq, blockrange.ModeSample, s.headFunc(ctx))
	if err != nil {
		info["sample_error"] = err.Error()
		return info, nil
	}
	if rng.IsLatest {
		info["sample_block_range"] = rng.Text
	}

	sample, err := s.runner.Sample(ctx, name, rng)
	if err != nil {
		stderr, stdout := extractionFailure(err)
		info["sample_error"] = stderr
		if stdout != "" {
			info["sample_stdout"] = stdout
		}
		return info, nil
	}

	info["sample_files"] = sample.Files
	return info, nil
}

// toolExecuteSQLQuery implements the execute_sql_query tool
func (s *Server) toolExecuteSQLQuery(params map[string]interface{}) (interface{}, error) {
	sqlQuery := stringArg(params, "query")
	if sqlQuery == "" {
		return nil, errors.NewInvalidParameterError("query", "")
	}

	includeSchema := true
	if v, ok := params["include_schema"].(bool); ok {
		includeSchema = v
	}

	return s.executor.Execute(context.Background(), sqlQuery, stringSliceArg(params, "files"), includeSchema)
}

// toolListAvailableSQLTables implements the list_available_sql_tables tool
func (s *Server) toolListAvailableSQLTables(params map[string]interface{}) (interface{}, error) {
	files, err := catalog.Scan(s.dataDir)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []catalog.File{}
	}
	return files, nil
}

// toolGetSQLTableSchema implements the get_sql_table_schema tool
func (s *Server) toolGetSQLTableSchema(params map[string]interface{}) (interface{}, error) {
	filePath := stringArg(params, "file_path")
	if filePath == "" {
		return nil, errors.NewInvalidParameterError("file_path", "")
	}

	return s.executor.InspectFile(context.Background(), filePath)
}

// blockchainSQLResult embeds the SQL result and the fetch stage's metadata
type blockchainSQLResult struct {
	*query.Result
	Dataset    string `json:"dataset"`
	BlockRange string `json:"block_range"`
	Refreshed  bool   `json:"refreshed"`
}

// toolQueryBlockchainSQL implements the query_blockchain_sql tool: extract a
// dataset for the requested range, then run SQL over exactly those files.
func (s *Server) toolQueryBlockchainSQL(params map[string]interface{}) (interface{}, error) {
	sqlQuery := stringArg(params, "sql_query")
	if sqlQuery == "" {
		return nil, errors.NewInvalidParameterError("sql_query", "")
	}

	dataset := stringArg(params, "dataset")
	if dataset == "" {
		dataset = query.ExtractDataset(sqlQuery)
	}
	if dataset == "" {
		return nil, errors.NewPreconditionError(
			"could not determine the dataset from the SQL query",
			"name a table in a FROM clause or pass the dataset parameter explicitly")
	}

	ctx := context.Background()
	rng, err := blockrange.Resolve(rangeRequest(params), blockrange.ModeQuery, s.headFunc(ctx))
	if err != nil {
		return nil, err
	}

	var files []string
	if !boolArg(params, "force_refresh") {
		files = s.reusableFiles(dataset, rng)
	}

	refreshed := false
	if len(files) == 0 {
		fetched, err := s.runner.Fetch(ctx, cryo.FetchRequest{
			Dataset:      dataset,
			Range:        rng,
			Contract:     stringArg(params, "contract"),
			OutputFormat: "parquet",
		})
		if err != nil {
			return nil, err
		}
		files = fetched.Files
		refreshed = true
	}

	if len(files) == 0 {
		return nil, errors.New(errors.NoFilesAvailable,
			"extraction produced no parquet files to query", nil)
	}

	result, err := s.executor.Execute(ctx, sqlQuery, files, true)
	if err != nil {
		return nil, err
	}

	return &blockchainSQLResult{
		Result:     result,
		Dataset:    dataset,
		BlockRange: rng.Text,
		Refreshed:  refreshed,
	}, nil
}

// reusableFiles returns previously extracted parquet files whose dataset and
// block range match the request exactly. Head-relative ranges never reuse:
// the latest bucket is purged on every fetch and the head moves. Range tags
// compare numerically because extraction filenames zero-pad block numbers.
func (s *Server) reusableFiles(dataset string, rng blockrange.Range) []string {
	if rng.IsLatest {
		return nil
	}

	// Only the canonical "start:end" form is reusable; stride or keyword
	// selections always extract fresh data.
	start, end, ok := parseRangePair(rng.Text)
	if !ok || fmt.Sprintf("%d:%d", start, end) != rng.Text {
		return nil
	}

	records, err := catalog.Scan(s.dataDir)
	if err != nil {
		s.logger.Warn("Data directory scan failed, extracting fresh data",
			"error", err.Error(),
		)
		return nil
	}

	var files []string
	for _, rec := range records {
		if rec.IsLatest || rec.Name != dataset {
			continue
		}
		// Filenames tag the inclusive end, one below the half-open end.
		first, last, ok := parseRangePair(rec.BlockRange)
		if !ok || first != start || last != end-1 {
			continue
		}
		files = append(files, rec.Path)
	}
	return files
}

// parseRangePair splits a "start:end" tag into its two block numbers.
func parseRangePair(text string) (start, end int64, ok bool) {
	if _, err := fmt.Sscanf(text, "%d:%d", &start, &end); err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// toolGetTransactionByHash implements the get_transaction_by_hash tool
func (s *Server) toolGetTransactionByHash(params map[string]interface{}) (interface{}, error) {
	txHash := stringArg(params, "tx_hash")
	if txHash == "" {
		return nil, errors.NewInvalidParameterError("tx_hash", "")
	}

	return s.chain.TransactionByHash(context.Background(), txHash)
}

// latestBlockResult is the get_latest_ethereum_block payload. The error
// fields carry fetch-stage degradation; the head number is always present.
type latestBlockResult struct {
	BlockNumber int64    `json:"block_number"`
	Files       []string `json:"files,omitempty"`
	Count       int      `json:"count,omitempty"`
	Error       string   `json:"error,omitempty"`
	Stderr      string   `json:"stderr,omitempty"`
}

// toolGetLatestEthereumBlock implements the get_latest_ethereum_block tool:
// resolve the head, then fetch that single block into the latest directory.
// Fetch failures degrade to a number-only payload rather than a tool error.
func (s *Server) toolGetLatestEthereumBlock(params map[string]interface{}) (interface{}, error) {
	ctx := context.Background()
	head, err := s.chain.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	rng := blockrange.Range{
		Text:     fmt.Sprintf("%d:%d", head, head+1),
		IsLatest: true,
	}

	fetched, err := s.runner.Fetch(ctx, cryo.FetchRequest{
		Dataset:      "blocks",
		Range:        rng,
		OutputFormat: "json",
	})
	if err != nil {
		if errors.IsCode(err, errors.NoOutputGenerated) {
			return &latestBlockResult{
				BlockNumber: head,
				Error:       "No output files generated",
			}, nil
		}
		stderr, _ := extractionFailure(err)
		return &latestBlockResult{
			BlockNumber: head,
			Error:       "Failed to get detailed block data",
			Stderr:      stderr,
		}, nil
	}

	return &latestBlockResult{
		BlockNumber: head,
		Files:       fetched.Files,
		Count:       fetched.Count,
	}, nil
}
