package mcp

// Tool represents a tool exposed via MCP
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler is a function that handles a tool call and returns the payload
// to wrap as the result content.
type ToolHandler func(params map[string]interface{}) (interface{}, error)

// registerTools wires every tool name to its handler
func (s *Server) registerTools() {
	s.tools["list_datasets"] = s.toolListDatasets
	s.tools["query_dataset"] = s.toolQueryDataset
	s.tools["lookup_dataset"] = s.toolLookupDataset
	s.tools["execute_sql_query"] = s.toolExecuteSQLQuery
	s.tools["list_available_sql_tables"] = s.toolListAvailableSQLTables
	s.tools["get_sql_table_schema"] = s.toolGetSQLTableSchema
	s.tools["query_blockchain_sql"] = s.toolQueryBlockchainSQL
	s.tools["get_transaction_by_hash"] = s.toolGetTransactionByHash
	s.tools["get_latest_ethereum_block"] = s.toolGetLatestEthereumBlock
}

// blockSelectionProperties returns the block-selection parameters shared by
// the fetch-shaped tools.
func blockSelectionProperties() map[string]interface{} {
	return map[string]interface{}{
		"blocks": map[string]interface{}{
			"type":        "string",
			"description": "Block range specification, e.g. '1000:1010' (half-open, passed through unchanged)",
		},
		"start_block": map[string]interface{}{
			"type":        "number",
			"description": "Start block number, inclusive (alternative to blocks)",
		},
		"end_block": map[string]interface{}{
			"type":        "number",
			"description": "End block number, inclusive (used with start_block)",
		},
		"use_latest": map[string]interface{}{
			"type":        "boolean",
			"default":     false,
			"description": "Fetch just the latest block",
		},
		"blocks_from_latest": map[string]interface{}{
			"type":        "number",
			"description": "Fetch from latest-N through the latest block",
		},
	}
}

// GetToolDefinitions returns all tool definitions
func (s *Server) GetToolDefinitions() []Tool {
	queryDatasetProps := blockSelectionProperties()
	queryDatasetProps["dataset"] = map[string]interface{}{
		"type":        "string",
		"description": "The dataset to extract (e.g. 'blocks', 'transactions', 'logs')",
	}
	queryDatasetProps["contract"] = map[string]interface{}{
		"type":        "string",
		"description": "Contract address to filter by (applied as --to-address for the transactions dataset)",
	}
	queryDatasetProps["output_format"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"json", "csv", "parquet"},
		"default":     "json",
		"description": "Output file format",
	}
	queryDatasetProps["include_columns"] = map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "string",
		},
		"description": "Columns to include alongside the defaults",
	}
	queryDatasetProps["exclude_columns"] = map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "string",
		},
		"description": "Columns to exclude from the defaults",
	}

	blockchainSQLProps := blockSelectionProperties()
	blockchainSQLProps["sql_query"] = map[string]interface{}{
		"type":        "string",
		"description": "SQL query to run over the extracted data; bare table names resolve to the fetched files",
	}
	blockchainSQLProps["dataset"] = map[string]interface{}{
		"type":        "string",
		"description": "Dataset to extract; inferred from the query's FROM clause when omitted",
	}
	blockchainSQLProps["contract"] = map[string]interface{}{
		"type":        "string",
		"description": "Contract address to filter by",
	}
	blockchainSQLProps["force_refresh"] = map[string]interface{}{
		"type":        "boolean",
		"default":     false,
		"description": "Re-extract even when matching parquet files already exist",
	}

	return []Tool{
		{
			Name:        "list_datasets",
			Description: "List all dataset names the extraction tool can fetch",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "query_dataset",
			Description: "Extract a dataset for a block range into the data directory and return the generated files",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": queryDatasetProps,
				"required":   []string{"dataset"},
			},
		},
		{
			Name:        "lookup_dataset",
			Description: "Look up a dataset: description, schema from a dry run, and a small extracted sample",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "The dataset name to look up",
					},
					"sample_start_block": map[string]interface{}{
						"type":        "number",
						"description": "Start block for the sample, inclusive",
					},
					"sample_end_block": map[string]interface{}{
						"type":        "number",
						"description": "End block for the sample, inclusive",
					},
					"use_latest_sample": map[string]interface{}{
						"type":        "boolean",
						"default":     false,
						"description": "Sample a window ending at the latest block",
					},
					"sample_blocks_from_latest": map[string]interface{}{
						"type":        "number",
						"description": "Sample from latest-N through the latest block",
					},
				},
				"required": []string{"name"},
			},
		},
		{
			Name:        "execute_sql_query",
			Description: "Run a SQL query against downloaded parquet files; bare table names resolve to matching files",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The SQL query to execute",
					},
					"files": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "string",
						},
						"description": "Specific parquet files to query; all downloaded files when omitted",
					},
					"include_schema": map[string]interface{}{
						"type":        "boolean",
						"default":     true,
						"description": "Include result column types in the response",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "list_available_sql_tables",
			Description: "List all parquet files available for SQL queries with their inferred dataset and block range",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "get_sql_table_schema",
			Description: "Get the columns, sample rows, and row count of one parquet file",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path of the parquet file to inspect",
					},
				},
				"required": []string{"file_path"},
			},
		},
		{
			Name:        "query_blockchain_sql",
			Description: "Extract a dataset for a block range and run a SQL query over exactly the extracted files in one call",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": blockchainSQLProps,
				"required":   []string{"sql_query"},
			},
		},
		{
			Name:        "get_transaction_by_hash",
			Description: "Get detailed information about a transaction, including its receipt, by hash",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tx_hash": map[string]interface{}{
						"type":        "string",
						"description": "The transaction hash to look up",
					},
				},
				"required": []string{"tx_hash"},
			},
		},
		{
			Name:        "get_latest_ethereum_block",
			Description: "Get the latest block number and fetch that block's data into the latest directory",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
