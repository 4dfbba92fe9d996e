package mcp

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cryomcp/internal/chain"
	"cryomcp/internal/cryo"
	"cryomcp/internal/errors"
	"cryomcp/internal/query"
	"cryomcp/internal/storage"
)

// stubBinary writes a shell script standing in for the extraction binary.
func stubBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cryo")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to create stub binary: %v", err)
	}
	return path
}

// fullStubScript emulates the extraction binary end to end: dataset listing,
// per-dataset help, dry-run schemas, and fetches that drop a JSON file named
// for the requested range.
const fullStubScript = `#!/bin/sh
if [ "$1" = "help" ]; then
  if [ "$2" = "datasets" ]; then
    cat <<'EOF'
- blocks
- transactions
- logs

dataset group names
EOF
  else
    echo "$2 dataset: block headers and metadata"
  fi
  exit 0
fi
out=""
range=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  if [ "$prev" = "-b" ]; then range="$arg"; fi
  if [ "$arg" = "--dry-run" ]; then
    echo "schema for $1: block_number (u64), gas_used (u64)"
    exit 0
  fi
  prev="$arg"
done
start=${range%%:*}
end=${range##*:}
last=$((end - 1))
touch "$out/ethereum__${1}__${start}_to_${last}.json"
`

// rpcTestServer answers JSON-RPC calls with canned raw results per method.
// Methods without an entry get a null result, which the client rejects.
func rpcTestServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode RPC request: %v", err)
			return
		}
		result, ok := results[req.Method]
		if !ok {
			result = "null"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","result":%s,"id":%d}`, result, req.ID)
	}))
}

// writeParquet materializes a blocks-shaped parquet fixture with count rows
// starting at startBlock.
func writeParquet(t *testing.T, path string, startBlock, count int) {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open engine for fixture: %v", err)
	}
	defer db.Close()

	stmt := fmt.Sprintf(
		"COPY (SELECT range AS block_number, range * 2 AS gas_used FROM range(%d, %d)) TO '%s' (FORMAT PARQUET)",
		startBlock, startBlock+count, path)
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
}

// toolFixture is a fully wired server over temp directories.
type toolFixture struct {
	server  *Server
	dataDir string
	store   *storage.DB
}

func newToolFixture(t *testing.T, script string, rpcResults map[string]string) *toolFixture {
	t.Helper()

	dataDir := t.TempDir()
	logger := testLogger()

	rpc := rpcTestServer(t, rpcResults)
	t.Cleanup(rpc.Close)

	store, err := storage.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Failed to open usage store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	limits := query.Limits{MemoryLimit: "4GB", MaxExpressionDepth: 10000, TimeoutMs: 30000}
	server := NewServer("test", Deps{
		Runner:   cryo.NewRunner(stubBinary(t, script), rpc.URL, dataDir, logger),
		Executor: query.NewExecutor(dataDir, limits, logger),
		Chain:    chain.NewClient(rpc.URL, logger),
		Store:    store,
		DataDir:  dataDir,
		Logger:   logger,
	})

	return &toolFixture{server: server, dataDir: dataDir, store: store}
}

// callTool invokes one tool through the request path and returns the content
// payload plus the isError flag.
func callTool(t *testing.T, server *Server, tool string, args map[string]interface{}) (string, bool) {
	t.Helper()

	response := sendRequest(t, server, "tools/call", 1, map[string]interface{}{
		"name":      tool,
		"arguments": args,
	})
	if response == nil {
		t.Fatal("Response should not be nil")
	}
	if response.Error != nil {
		t.Fatalf("protocol error: %v", response.Error.Message)
	}

	result, ok := response.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result should be a map, got %T", response.Result)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) == 0 {
		t.Fatalf("result has no content: %v", result)
	}
	text, _ := content[0]["text"].(string)
	isError, _ := result["isError"].(bool)
	return text, isError
}

// errorPayload is the marshaled shape of a failed tool call.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeError(t *testing.T, text string) errorPayload {
	t.Helper()
	var payload errorPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("failed to decode error payload %q: %v", text, err)
	}
	return payload
}

func TestListDatasetsTool(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "list_datasets", map[string]interface{}{})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var result struct {
		Datasets []string `json:"datasets"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	want := []string{"blocks", "transactions", "logs"}
	if len(result.Datasets) != len(want) {
		t.Fatalf("datasets = %v, want %v", result.Datasets, want)
	}
	for i, name := range want {
		if result.Datasets[i] != name {
			t.Errorf("datasets[%d] = %q, want %q", i, result.Datasets[i], name)
		}
	}
}

func TestQueryDatasetTool(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "query_dataset", map[string]interface{}{
		"dataset": "blocks",
		"blocks":  "1000:1010",
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var result struct {
		Files  []string `json:"files"`
		Count  int      `json:"count"`
		Format string   `json:"format"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("Count = %d, want 1", result.Count)
	}
	if result.Format != "json" {
		t.Errorf("Format = %q, want json (tool-level default)", result.Format)
	}
	if !strings.HasSuffix(result.Files[0], "ethereum__blocks__1000_to_1009.json") {
		t.Errorf("unexpected file %q", result.Files[0])
	}
}

func TestQueryDatasetTool_MissingDataset(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "query_dataset", map[string]interface{}{
		"blocks": "1000:1010",
	})
	if !isError {
		t.Fatalf("expected tool error, got %s", text)
	}
	if payload := decodeError(t, text); payload.Code != string(errors.InvalidParameter) {
		t.Errorf("code = %q, want %s", payload.Code, errors.InvalidParameter)
	}
}

func TestExecuteSQLQueryTool(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)
	writeParquet(t, filepath.Join(fix.dataDir, "ethereum__blocks__1000_to_1009.parquet"), 1000, 10)

	text, isError := callTool(t, fix.server, "execute_sql_query", map[string]interface{}{
		"query": "SELECT COUNT(*) AS n FROM blocks",
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var result struct {
		Success  bool                     `json:"success"`
		Rows     []map[string]interface{} `json:"result"`
		RowCount int                      `json:"row_count"`
		Schema   map[string]interface{}   `json:"schema"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.RowCount != 1 || len(result.Rows) != 1 {
		t.Fatalf("RowCount = %d, rows %d, want a single aggregate row", result.RowCount, len(result.Rows))
	}
	if n, ok := result.Rows[0]["n"].(float64); !ok || n != 10 {
		t.Errorf("n = %v, want 10", result.Rows[0]["n"])
	}
	if result.Schema == nil {
		t.Error("Schema missing despite include_schema defaulting to true")
	}
}

func TestExecuteSQLQueryTool_NoFiles(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "execute_sql_query", map[string]interface{}{
		"query": "SELECT 1",
	})
	if !isError {
		t.Fatalf("expected tool error, got %s", text)
	}
	if payload := decodeError(t, text); payload.Code != string(errors.NoFilesAvailable) {
		t.Errorf("code = %q, want %s", payload.Code, errors.NoFilesAvailable)
	}
}

func TestListAvailableSQLTablesTool(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)
	historical := filepath.Join(fix.dataDir, "ethereum__blocks__1000_to_1009.parquet")
	latest := filepath.Join(fix.dataDir, "latest", "ethereum__blocks__18000000_to_18000000.parquet")
	for _, p := range []string{historical, latest} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("stub"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	text, isError := callTool(t, fix.server, "list_available_sql_tables", map[string]interface{}{})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var tables []struct {
		Name       string `json:"name"`
		Path       string `json:"path"`
		SizeBytes  int64  `json:"size_bytes"`
		BlockRange string `json:"block_range"`
		IsLatest   bool   `json:"is_latest"`
	}
	if err := json.Unmarshal([]byte(text), &tables); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(tables))
	}

	var sawLatest, sawHistorical bool
	for _, table := range tables {
		if table.Name != "blocks" {
			t.Errorf("Name = %q, want blocks", table.Name)
		}
		if table.SizeBytes == 0 {
			t.Error("SizeBytes not populated")
		}
		if table.IsLatest {
			sawLatest = true
		} else {
			sawHistorical = true
			if table.BlockRange != "1000:1009" {
				t.Errorf("BlockRange = %q, want 1000:1009", table.BlockRange)
			}
		}
	}
	if !sawLatest || !sawHistorical {
		t.Error("expected one latest and one historical entry")
	}
}

func TestGetSQLTableSchemaTool(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)
	path := filepath.Join(fix.dataDir, "ethereum__blocks__1000_to_1009.parquet")
	writeParquet(t, path, 1000, 10)

	text, isError := callTool(t, fix.server, "get_sql_table_schema", map[string]interface{}{
		"file_path": path,
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var result struct {
		Success    bool                     `json:"success"`
		FilePath   string                   `json:"file_path"`
		Columns    []map[string]string      `json:"columns"`
		SampleData []map[string]interface{} `json:"sample_data"`
		RowCount   int64                    `json:"row_count"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.RowCount != 10 {
		t.Errorf("RowCount = %d, want 10", result.RowCount)
	}
	if len(result.Columns) != 2 || result.Columns[0]["column_name"] != "block_number" {
		t.Errorf("Columns = %v, want block_number then gas_used", result.Columns)
	}
	if len(result.SampleData) != 5 {
		t.Errorf("SampleData has %d rows, want 5", len(result.SampleData))
	}
}

func TestGetSQLTableSchemaTool_MissingFile(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "get_sql_table_schema", map[string]interface{}{
		"file_path": filepath.Join(fix.dataDir, "absent.parquet"),
	})
	if !isError {
		t.Fatalf("expected tool error, got %s", text)
	}
	if payload := decodeError(t, text); payload.Code != string(errors.FileNotFound) {
		t.Errorf("code = %q, want %s", payload.Code, errors.FileNotFound)
	}
}

func TestGetTransactionByHashTool(t *testing.T) {
	txHash := "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	fix := newToolFixture(t, fullStubScript, map[string]string{
		"eth_getTransactionByHash": `{
			"blockNumber": "0x112a880",
			"from": "0x1111111111111111111111111111111111111111",
			"to": "0x2222222222222222222222222222222222222222",
			"value": "0x2a",
			"gas": "0x5208",
			"gasPrice": "0x3b9aca00",
			"nonce": "0x7",
			"transactionIndex": "0x5"
		}`,
		"eth_getTransactionReceipt": `{
			"gasUsed": "0x5208",
			"status": "0x1",
			"logs": [{}]
		}`,
	})

	text, isError := callTool(t, fix.server, "get_transaction_by_hash", map[string]interface{}{
		"tx_hash": txHash,
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var result struct {
		TransactionHash string `json:"transaction_hash"`
		BlockNumber     int64  `json:"block_number"`
		GasUsed         *int64 `json:"gas_used"`
		Status          *int64 `json:"status"`
		LogsCount       *int   `json:"logs_count"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.TransactionHash != txHash {
		t.Errorf("TransactionHash = %q, want %q", result.TransactionHash, txHash)
	}
	if result.BlockNumber != 18000000 {
		t.Errorf("BlockNumber = %d, want 18000000", result.BlockNumber)
	}
	if result.GasUsed == nil || *result.GasUsed != 21000 {
		t.Errorf("GasUsed = %v, want 21000", result.GasUsed)
	}
	if result.Status == nil || *result.Status != 1 {
		t.Errorf("Status = %v, want 1", result.Status)
	}
	if result.LogsCount == nil || *result.LogsCount != 1 {
		t.Errorf("LogsCount = %v, want 1", result.LogsCount)
	}
}

func TestGetTransactionByHashTool_MissingHash(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "get_transaction_by_hash", map[string]interface{}{})
	if !isError {
		t.Fatalf("expected tool error, got %s", text)
	}
	if payload := decodeError(t, text); payload.Code != string(errors.InvalidParameter) {
		t.Errorf("code = %q, want %s", payload.Code, errors.InvalidParameter)
	}
}

// blockchainSQLResponse is the decoded query_blockchain_sql payload.
type blockchainSQLResponse struct {
	Success    bool                     `json:"success"`
	Rows       []map[string]interface{} `json:"result"`
	RowCount   int                      `json:"row_count"`
	Dataset    string                   `json:"dataset"`
	BlockRange string                   `json:"block_range"`
	Refreshed  bool                     `json:"refreshed"`
}

func TestQueryBlockchainSQLTool(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "src.parquet")
	writeParquet(t, src, 1000, 10)
	calls := filepath.Join(srcDir, "calls.txt")

	// Every fetch appends to the call log and drops the prepared parquet
	// under the canonical name for the requested range.
	script := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %q
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  prev="$arg"
done
cp %q "$out/ethereum__blocks__1000_to_1009.parquet"
`, calls, src)

	fix := newToolFixture(t, script, nil)

	fetchCount := func() int {
		data, err := os.ReadFile(calls)
		if os.IsNotExist(err) {
			return 0
		}
		if err != nil {
			t.Fatal(err)
		}
		return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
	}

	args := map[string]interface{}{
		"sql_query": "SELECT COUNT(*) AS n FROM blocks",
		"blocks":    "1000:1010",
	}

	// First call extracts fresh data; the dataset comes from the FROM clause.
	text, isError := callTool(t, fix.server, "query_blockchain_sql", args)
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var first blockchainSQLResponse
	if err := json.Unmarshal([]byte(text), &first); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !first.Success {
		t.Error("Success = false, want true")
	}
	if first.Dataset != "blocks" {
		t.Errorf("Dataset = %q, want blocks (inferred from SQL)", first.Dataset)
	}
	if first.BlockRange != "1000:1010" {
		t.Errorf("BlockRange = %q, want 1000:1010", first.BlockRange)
	}
	if !first.Refreshed {
		t.Error("first call should extract fresh data")
	}
	if n, ok := first.Rows[0]["n"].(float64); !ok || n != 10 {
		t.Errorf("n = %v, want 10", first.Rows[0]["n"])
	}
	if fetchCount() != 1 {
		t.Fatalf("fetch invocations = %d, want 1", fetchCount())
	}

	// Same range again: the existing parquet is reused, no new extraction.
	text, isError = callTool(t, fix.server, "query_blockchain_sql", args)
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var second blockchainSQLResponse
	if err := json.Unmarshal([]byte(text), &second); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if second.Refreshed {
		t.Error("second call should reuse the existing file")
	}
	if second.RowCount != first.RowCount {
		t.Errorf("reused result differs: %d vs %d rows", second.RowCount, first.RowCount)
	}
	if fetchCount() != 1 {
		t.Errorf("fetch invocations = %d, want still 1 after reuse", fetchCount())
	}

	// force_refresh bypasses reuse.
	args["force_refresh"] = true
	text, isError = callTool(t, fix.server, "query_blockchain_sql", args)
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var third blockchainSQLResponse
	if err := json.Unmarshal([]byte(text), &third); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !third.Refreshed {
		t.Error("force_refresh call should extract fresh data")
	}
	if fetchCount() != 2 {
		t.Errorf("fetch invocations = %d, want 2 after force_refresh", fetchCount())
	}
}

// A fetch stage that yields zero files must fail the combined call before
// any SQL runs.
func TestQueryBlockchainSQLTool_ZeroFetchedFiles(t *testing.T) {
	// The extraction succeeds but writes neither a manifest nor output files.
	script := `#!/bin/sh
exit 0
`
	fix := newToolFixture(t, script, nil)

	text, isError := callTool(t, fix.server, "query_blockchain_sql", map[string]interface{}{
		"sql_query": "SELECT COUNT(*) FROM blocks",
		"blocks":    "1000:1010",
	})
	if !isError {
		t.Fatalf("expected tool error, got %s", text)
	}

	// NO_OUTPUT_GENERATED can only come from the fetch stage; an engine
	// failure would carry QUERY_FAILED and the empty-pool precondition
	// NO_FILES_AVAILABLE. Either way the executor must never have run,
	// so the payload must not name files it could have queried.
	payload := decodeError(t, text)
	if payload.Code != string(errors.NoOutputGenerated) {
		t.Errorf("code = %q, want %s", payload.Code, errors.NoOutputGenerated)
	}
	if strings.Contains(text, "files_available") {
		t.Errorf("failure reached the query stage: %s", text)
	}

	// Nothing was materialized for later calls to pick up either.
	entries, err := os.ReadDir(fix.dataDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".parquet") {
			t.Errorf("unexpected parquet file %s in data dir", entry.Name())
		}
	}
}

func TestQueryBlockchainSQLTool_DatasetUndeterminable(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "query_blockchain_sql", map[string]interface{}{
		"sql_query": "SELECT 1 + 1",
	})
	if !isError {
		t.Fatalf("expected tool error, got %s", text)
	}
	if payload := decodeError(t, text); payload.Code != string(errors.PreconditionFailed) {
		t.Errorf("code = %q, want %s", payload.Code, errors.PreconditionFailed)
	}
}

func TestLookupDatasetTool(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, map[string]string{
		"eth_blockNumber": `"0x112a880"`,
	})

	text, isError := callTool(t, fix.server, "lookup_dataset", map[string]interface{}{
		"name": "blocks",
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var info map[string]interface{}
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	if info["name"] != "blocks" {
		t.Errorf("name = %v, want blocks", info["name"])
	}
	if desc, _ := info["description"].(string); !strings.Contains(desc, "block headers") {
		t.Errorf("description = %q, want help text", desc)
	}
	if schema, _ := info["schema"].(string); !strings.Contains(schema, "block_number") {
		t.Errorf("schema = %q, want dry-run text", schema)
	}
	examples, _ := info["example_queries"].([]interface{})
	if len(examples) != 4 {
		t.Errorf("example_queries has %d entries, want 4 when the head is reachable", len(examples))
	}
	notes, _ := info["notes"].([]interface{})
	if len(notes) != 3 {
		t.Errorf("notes has %d entries, want 3", len(notes))
	}
	files, _ := info["sample_files"].([]interface{})
	if len(files) != 1 {
		t.Fatalf("sample_files = %v, want one file", info["sample_files"])
	}
	// Default historical sample window.
	if path, _ := files[0].(string); !strings.HasSuffix(path, "ethereum__blocks__1000_to_1004.json") {
		t.Errorf("sample file = %v, want the 1000:1005 window", files[0])
	}
	if _, ok := info["sample_block_range"]; ok {
		t.Error("sample_block_range should be absent for historical samples")
	}
}

func TestLookupDatasetTool_LatestSample(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, map[string]string{
		"eth_blockNumber": `"0x64"`,
	})

	text, isError := callTool(t, fix.server, "lookup_dataset", map[string]interface{}{
		"name":              "blocks",
		"use_latest_sample": true,
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var info map[string]interface{}
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if info["sample_block_range"] != "96:101" {
		t.Errorf("sample_block_range = %v, want 96:101", info["sample_block_range"])
	}
	files, _ := info["sample_files"].([]interface{})
	if len(files) != 1 {
		t.Fatalf("sample_files = %v, want one file", info["sample_files"])
	}
	if path, _ := files[0].(string); !strings.Contains(path, string(filepath.Separator)+"latest"+string(filepath.Separator)) {
		t.Errorf("sample file = %v, want it under the latest directory", files[0])
	}
}

func TestLookupDatasetTool_FailuresLandInFields(t *testing.T) {
	// Help succeeds; dry-run and fetches fail with distinct stderr text.
	script := `#!/bin/sh
if [ "$1" = "help" ]; then
  echo "$2 dataset"
  exit 0
fi
for arg in "$@"; do
  if [ "$arg" = "--dry-run" ]; then
    echo "no schema for you" >&2
    exit 1
  fi
done
echo "rate limited" >&2
exit 2
`
	fix := newToolFixture(t, script, nil)

	text, isError := callTool(t, fix.server, "lookup_dataset", map[string]interface{}{
		"name": "blocks",
	})
	if isError {
		t.Fatalf("partial lookup should still succeed, got error: %s", text)
	}

	var info map[string]interface{}
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if schemaErr, _ := info["schema_error"].(string); !strings.Contains(schemaErr, "no schema for you") {
		t.Errorf("schema_error = %v, want dry-run stderr", info["schema_error"])
	}
	if _, ok := info["schema"]; ok {
		t.Error("schema should be absent when the dry run fails")
	}
	if sampleErr, _ := info["sample_error"].(string); !strings.Contains(sampleErr, "rate limited") {
		t.Errorf("sample_error = %v, want fetch stderr", info["sample_error"])
	}
	if _, ok := info["sample_files"]; ok {
		t.Error("sample_files should be absent when the sample fetch fails")
	}
}

func TestLookupDatasetTool_HeadUnavailable(t *testing.T) {
	// No eth_blockNumber entry: head lookups fail.
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "lookup_dataset", map[string]interface{}{
		"name":              "blocks",
		"use_latest_sample": true,
	})
	if isError {
		t.Fatalf("head failure should degrade, not error: %s", text)
	}

	var info map[string]interface{}
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	examples, _ := info["example_queries"].([]interface{})
	if len(examples) != 3 {
		t.Errorf("example_queries has %d entries, want 3 when the head is unreachable", len(examples))
	}
	if _, ok := info["sample_error"]; !ok {
		t.Error("sample_error should report the failed head lookup")
	}
	if _, ok := info["sample_files"]; ok {
		t.Error("sample_files should be absent when the head lookup fails")
	}
}

func TestGetLatestEthereumBlockTool(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, map[string]string{
		"eth_blockNumber": `"0x64"`,
	})

	text, isError := callTool(t, fix.server, "get_latest_ethereum_block", map[string]interface{}{})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}

	var result struct {
		BlockNumber int64    `json:"block_number"`
		Files       []string `json:"files"`
		Count       int      `json:"count"`
		Error       string   `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.BlockNumber != 100 {
		t.Errorf("BlockNumber = %d, want 100", result.BlockNumber)
	}
	if result.Error != "" {
		t.Errorf("Error = %q, want empty", result.Error)
	}
	if result.Count != 1 || len(result.Files) != 1 {
		t.Fatalf("Files = %v, want the single fetched file", result.Files)
	}
	if !strings.Contains(result.Files[0], string(filepath.Separator)+"latest"+string(filepath.Separator)) {
		t.Errorf("file = %q, want it under the latest directory", result.Files[0])
	}
	if !strings.HasSuffix(result.Files[0], "ethereum__blocks__100_to_100.json") {
		t.Errorf("file = %q, want the single head block", result.Files[0])
	}
}

func TestGetLatestEthereumBlockTool_FetchFails(t *testing.T) {
	script := `#!/bin/sh
echo "node flaked" >&2
exit 1
`
	fix := newToolFixture(t, script, map[string]string{
		"eth_blockNumber": `"0x64"`,
	})

	text, isError := callTool(t, fix.server, "get_latest_ethereum_block", map[string]interface{}{})
	if isError {
		t.Fatalf("fetch failure should degrade, not error: %s", text)
	}

	var result struct {
		BlockNumber int64  `json:"block_number"`
		Error       string `json:"error"`
		Stderr      string `json:"stderr"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.BlockNumber != 100 {
		t.Errorf("BlockNumber = %d, want 100", result.BlockNumber)
	}
	if result.Error != "Failed to get detailed block data" {
		t.Errorf("Error = %q", result.Error)
	}
	if !strings.Contains(result.Stderr, "node flaked") {
		t.Errorf("Stderr = %q, want captured stderr", result.Stderr)
	}
}

func TestGetLatestEthereumBlockTool_NoOutput(t *testing.T) {
	fix := newToolFixture(t, "#!/bin/sh\nexit 0\n", map[string]string{
		"eth_blockNumber": `"0x64"`,
	})

	text, isError := callTool(t, fix.server, "get_latest_ethereum_block", map[string]interface{}{})
	if isError {
		t.Fatalf("missing output should degrade, not error: %s", text)
	}

	var result struct {
		BlockNumber int64  `json:"block_number"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.BlockNumber != 100 {
		t.Errorf("BlockNumber = %d, want 100", result.BlockNumber)
	}
	if result.Error != "No output files generated" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestGetLatestEthereumBlockTool_HeadUnavailable(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	text, isError := callTool(t, fix.server, "get_latest_ethereum_block", map[string]interface{}{})
	if !isError {
		t.Fatalf("expected tool error when the head lookup fails, got %s", text)
	}
	if payload := decodeError(t, text); payload.Code == "" {
		t.Error("error payload should carry a code")
	}
}

func TestToolCallsRecordUsage(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)
	writeParquet(t, filepath.Join(fix.dataDir, "ethereum__blocks__1000_to_1009.parquet"), 1000, 10)

	if _, isError := callTool(t, fix.server, "execute_sql_query", map[string]interface{}{
		"query": "SELECT COUNT(*) AS n FROM blocks",
	}); isError {
		t.Fatal("query call should succeed")
	}
	if _, isError := callTool(t, fix.server, "get_sql_table_schema", map[string]interface{}{
		"file_path": filepath.Join(fix.dataDir, "absent.parquet"),
	}); !isError {
		t.Fatal("schema call should fail")
	}

	succeeded, err := fix.store.RecentToolCalls(10, "execute_sql_query")
	if err != nil {
		t.Fatalf("RecentToolCalls failed: %v", err)
	}
	if len(succeeded) != 1 || !succeeded[0].Success {
		t.Errorf("execute_sql_query records = %+v, want one success", succeeded)
	}

	failed, err := fix.store.RecentToolCalls(10, "get_sql_table_schema")
	if err != nil {
		t.Fatalf("RecentToolCalls failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Success {
		t.Fatalf("get_sql_table_schema records = %+v, want one failure", failed)
	}
	if failed[0].Detail != string(errors.FileNotFound) {
		t.Errorf("Detail = %q, want the error code", failed[0].Detail)
	}
}

func TestResourcesList(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, nil)

	response := sendRequest(t, fix.server, "resources/list", 1, nil)
	if response == nil {
		t.Fatal("Response should not be nil")
	}
	if response.Error != nil {
		t.Fatalf("Should not have error: %v", response.Error.Message)
	}

	result, ok := response.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result should be a map, got %T", response.Result)
	}

	resources, ok := result["resources"].([]Resource)
	if !ok {
		t.Fatalf("resources should be []Resource, got %T", result["resources"])
	}
	if len(resources) != 3 {
		t.Fatalf("got %d resources, want 3", len(resources))
	}
	if resources[0].URI != "dataset://blocks" || resources[0].Name != "blocks" {
		t.Errorf("resources[0] = %+v, want dataset://blocks", resources[0])
	}

	templates, ok := result["resourceTemplates"].([]ResourceTemplate)
	if !ok || len(templates) != 1 {
		t.Fatalf("resourceTemplates = %v, want exactly one", result["resourceTemplates"])
	}
	if templates[0].URITemplate != "dataset://{name}" {
		t.Errorf("URITemplate = %q, want dataset://{name}", templates[0].URITemplate)
	}
}

func TestResourcesRead(t *testing.T) {
	fix := newToolFixture(t, fullStubScript, map[string]string{
		"eth_blockNumber": `"0x112a880"`,
	})

	response := sendRequest(t, fix.server, "resources/read", 1, map[string]interface{}{
		"uri": "dataset://blocks",
	})
	if response == nil {
		t.Fatal("Response should not be nil")
	}
	if response.Error != nil {
		t.Fatalf("Should not have error: %v", response.Error.Message)
	}

	result, ok := response.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result should be a map, got %T", response.Result)
	}
	contents, ok := result["contents"].([]map[string]interface{})
	if !ok || len(contents) != 1 {
		t.Fatalf("contents = %v, want exactly one entry", result["contents"])
	}
	if contents[0]["uri"] != "dataset://blocks" {
		t.Errorf("uri = %v, want dataset://blocks", contents[0]["uri"])
	}
	if contents[0]["mimeType"] != "application/json" {
		t.Errorf("mimeType = %v, want application/json", contents[0]["mimeType"])
	}

	var info map[string]interface{}
	text, _ := contents[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatalf("resource text is not JSON: %v", err)
	}
	if info["name"] != "blocks" {
		t.Errorf("name = %v, want blocks", info["name"])
	}
	if desc, _ := info["description"].(string); !strings.Contains(desc, "dataset") {
		t.Errorf("description = %q, want help text", desc)
	}
}
