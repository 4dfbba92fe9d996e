// Package chain implements the Ethereum JSON-RPC client used for chain-head
// and transaction lookups. Lookups are single-shot: a failed call surfaces a
// typed error and is never retried or replaced with a default.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryomcp/internal/errors"
)

// DefaultTimeout bounds a single RPC round trip.
const DefaultTimeout = 10 * time.Second

// Client is an HTTP client for a single Ethereum JSON-RPC endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates a client for the given endpoint URL.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger,
	}
}

// Endpoint returns the RPC URL this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC request and returns the raw result field.
// Transport failures map to CHAIN_UNAVAILABLE, unusable responses to
// RPC_MALFORMED.
func (c *Client) call(ctx context.Context, method string, params []interface{}, id int) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewChainUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewChainUnavailableError(fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode))
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.New(errors.RPCMalformed, fmt.Sprintf("failed to decode %s response", method), err)
	}
	if envelope.Error != nil {
		return nil, errors.New(errors.RPCMalformed,
			fmt.Sprintf("%s failed with RPC error %d: %s", method, envelope.Error.Code, envelope.Error.Message), nil)
	}
	return envelope.Result, nil
}

// LatestBlockNumber asks the endpoint for the current chain head.
// The result must be a hex block number; anything else is an error,
// never a default.
func (c *Client) LatestBlockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", nil, 1)
	if err != nil {
		return 0, err
	}

	var hex string
	if err := json.Unmarshal(result, &hex); err != nil || hex == "" {
		return 0, errors.New(errors.RPCMalformed, "eth_blockNumber returned no usable result", err)
	}
	head, err := strconv.ParseInt(strings.TrimPrefix(hex, "0x"), 16, 64)
	if err != nil {
		return 0, errors.New(errors.RPCMalformed, fmt.Sprintf("eth_blockNumber returned malformed block number %q", hex), err)
	}

	c.logger.Debug("Resolved chain head", "block", head)
	return head, nil
}

// Transaction is the combined transaction + receipt view. Receipt-derived
// fields are pointers so they disappear from the JSON payload when the
// receipt could not be fetched; Error then explains the gap.
type Transaction struct {
	TransactionHash  string   `json:"transaction_hash"`
	BlockNumber      int64    `json:"block_number"`
	BlockHash        string   `json:"block_hash,omitempty"`
	FromAddress      string   `json:"from_address,omitempty"`
	ToAddress        string   `json:"to_address,omitempty"`
	Value            string   `json:"value,omitempty"`
	ValueDecimal     *big.Int `json:"value_decimal"`
	GasLimit         int64    `json:"gas_limit"`
	GasPrice         int64    `json:"gas_price"`
	Nonce            int64    `json:"nonce"`
	Input            string   `json:"input,omitempty"`
	TransactionIndex int64    `json:"transaction_index"`

	GasUsed         *int64  `json:"gas_used,omitempty"`
	Status          *int64  `json:"status,omitempty"`
	LogsCount       *int    `json:"logs_count,omitempty"`
	ContractAddress *string `json:"contract_address,omitempty"`

	// EIP-1559 fields, present only on typed transactions.
	MaxFeePerGas         *int64 `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas *int64 `json:"max_priority_fee_per_gas,omitempty"`
	TransactionType      *int64 `json:"transaction_type,omitempty"`

	// Error reports a missing receipt; the transaction fields stay valid.
	Error string `json:"error,omitempty"`
}

// Wire shapes as the node returns them, all quantities 0x-hex.
type rpcTransaction struct {
	BlockNumber          string `json:"blockNumber"`
	BlockHash            string `json:"blockHash"`
	From                 string `json:"from"`
	To                   string `json:"to"`
	Value                string `json:"value"`
	Gas                  string `json:"gas"`
	GasPrice             string `json:"gasPrice"`
	Nonce                string `json:"nonce"`
	Input                string `json:"input"`
	TransactionIndex     string `json:"transactionIndex"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	Type                 string `json:"type"`
}

type rpcReceipt struct {
	GasUsed         string            `json:"gasUsed"`
	Status          string            `json:"status"`
	Logs            []json.RawMessage `json:"logs"`
	ContractAddress *string           `json:"contractAddress"`
}

// TransactionByHash looks up a transaction and its receipt and combines both
// into one flat record. An unknown hash is an error; a missing receipt is
// not: the transaction fields are returned with Error explaining the gap.
func (c *Client) TransactionByHash(ctx context.Context, txHash string) (*Transaction, error) {
	result, err := c.call(ctx, "eth_getTransactionByHash", []interface{}{txHash}, 1)
	if err != nil {
		return nil, err
	}
	if isNullResult(result) {
		return nil, errors.NewResourceNotFoundError("transaction", txHash)
	}

	var raw rpcTransaction
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, errors.New(errors.RPCMalformed, "eth_getTransactionByHash returned an unusable result", err)
	}

	var dec hexDecoder
	tx := &Transaction{
		TransactionHash:  txHash,
		BlockNumber:      dec.int64(raw.BlockNumber),
		BlockHash:        raw.BlockHash,
		FromAddress:      raw.From,
		ToAddress:        raw.To,
		Value:            raw.Value,
		ValueDecimal:     dec.bigInt(raw.Value),
		GasLimit:         dec.int64(raw.Gas),
		GasPrice:         dec.int64(raw.GasPrice),
		Nonce:            dec.int64(raw.Nonce),
		Input:            raw.Input,
		TransactionIndex: dec.int64(raw.TransactionIndex),
	}
	if raw.MaxFeePerGas != "" {
		maxFee := dec.int64(raw.MaxFeePerGas)
		maxPriority := dec.int64(raw.MaxPriorityFeePerGas)
		txType := dec.int64(raw.Type)
		tx.MaxFeePerGas = &maxFee
		tx.MaxPriorityFeePerGas = &maxPriority
		tx.TransactionType = &txType
	}
	if dec.err != nil {
		return nil, errors.New(errors.RPCMalformed, "transaction contained a malformed quantity", dec.err)
	}

	receipt, err := c.fetchReceipt(ctx, txHash)
	if err != nil {
		c.logger.Warn("Receipt lookup failed", "tx_hash", txHash, "error", err)
		tx.Error = "Failed to retrieve transaction receipt"
		return tx, nil
	}

	var rdec hexDecoder
	gasUsed := rdec.int64(receipt.GasUsed)
	status := rdec.int64(receipt.Status)
	if rdec.err != nil {
		c.logger.Warn("Receipt contained a malformed quantity", "tx_hash", txHash, "error", rdec.err)
		tx.Error = "Failed to retrieve transaction receipt"
		return tx, nil
	}
	logsCount := len(receipt.Logs)
	tx.GasUsed = &gasUsed
	tx.Status = &status
	tx.LogsCount = &logsCount
	tx.ContractAddress = receipt.ContractAddress
	return tx, nil
}

func (c *Client) fetchReceipt(ctx context.Context, txHash string) (*rpcReceipt, error) {
	result, err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, 2)
	if err != nil {
		return nil, err
	}
	if isNullResult(result) {
		return nil, fmt.Errorf("no receipt for %s", txHash)
	}
	var receipt rpcReceipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}

// isNullResult reports whether a raw RPC result is absent or JSON null.
func isNullResult(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// hexDecoder parses the 0x-prefixed quantities of one RPC object,
// remembering the first malformed field. Absent fields decode to zero.
type hexDecoder struct {
	err error
}

func (d *hexDecoder) int64(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("malformed hex quantity %q", s)
		}
		return 0
	}
	return n
}

func (d *hexDecoder) bigInt(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		if d.err == nil {
			d.err = fmt.Errorf("malformed hex quantity %q", s)
		}
		return big.NewInt(0)
	}
	return n
}
