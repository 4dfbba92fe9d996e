package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// PreconditionFailed indicates the operation was rejected before any work started
	PreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	// FileNotFound indicates a referenced data file does not exist or has the wrong type
	FileNotFound ErrorCode = "FILE_NOT_FOUND"
	// NoFilesAvailable indicates no data files exist for a query to run against
	NoFilesAvailable ErrorCode = "NO_FILES_AVAILABLE"
	// ChainUnavailable indicates the RPC endpoint could not report the chain head
	ChainUnavailable ErrorCode = "CHAIN_UNAVAILABLE"
	// RPCMalformed indicates the RPC endpoint answered with an unusable payload
	RPCMalformed ErrorCode = "RPC_MALFORMED"
	// ExtractionFailed indicates the extraction subprocess exited non-zero
	ExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	// NoOutputGenerated indicates an extraction run produced no files
	NoOutputGenerated ErrorCode = "NO_OUTPUT_GENERATED"
	// QueryFailed indicates the analytical engine rejected or aborted the query
	QueryFailed ErrorCode = "QUERY_FAILED"
	// InvalidParameter indicates a malformed or missing caller parameter
	InvalidParameter ErrorCode = "INVALID_PARAMETER"
	// ConfigInvalid indicates the loaded configuration failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// CryoError represents a cryomcp error with a stable code and optional diagnostics
type CryoError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new CryoError
func New(code ErrorCode, message string, cause error) *CryoError {
	return &CryoError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *CryoError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CryoError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CryoError) WithDetails(details interface{}) *CryoError {
	e.Details = details
	return e
}

// NewPreconditionError creates an error for operations rejected before execution.
// hint tells the caller what to do about it.
func NewPreconditionError(message, hint string) *CryoError {
	err := New(PreconditionFailed, message, nil)
	if hint != "" {
		err.Details = map[string]string{"hint": hint}
	}
	return err
}

// NewInvalidParameterError creates an error for a bad caller-supplied parameter
func NewInvalidParameterError(name, detail string) *CryoError {
	msg := fmt.Sprintf("missing or invalid parameter '%s'", name)
	if detail != "" {
		msg = fmt.Sprintf("invalid parameter '%s': %s", name, detail)
	}
	return New(InvalidParameter, msg, nil)
}

// NewOperationError wraps a lower-level failure with the operation that hit it
func NewOperationError(operation string, cause error) *CryoError {
	return New(InternalError, fmt.Sprintf("%s failed", operation), cause)
}

// NewResourceNotFoundError creates an error for an unknown tool, resource, or dataset
func NewResourceNotFoundError(kind, name string) *CryoError {
	return New(PreconditionFailed, fmt.Sprintf("%s not found: %s", kind, name), nil)
}

// NewChainUnavailableError creates an error for a failed chain-head or transaction lookup.
// The raw cause is preserved verbatim; the lookup is never retried.
func NewChainUnavailableError(cause error) *CryoError {
	return New(ChainUnavailable, "failed to reach the RPC endpoint", cause)
}

// ExtractionDetails carries the full diagnostic context of a failed extraction run
type ExtractionDetails struct {
	Command string `json:"command"`
	Stderr  string `json:"stderr,omitempty"`
	Stdout  string `json:"stdout,omitempty"`
}

// NewExtractionError creates an error for a non-zero extraction subprocess exit.
// The exact command and captured streams ride along for reproducibility.
func NewExtractionError(command, stderr, stdout string, cause error) *CryoError {
	err := New(ExtractionFailed, "extraction command failed", cause)
	err.Details = &ExtractionDetails{Command: command, Stderr: stderr, Stdout: stdout}
	return err
}

// QueryDetails carries the file pool that was visible when a query failed
type QueryDetails struct {
	FilesAvailable []string `json:"files_available,omitempty"`
}

// NewQueryError creates an error for an engine-level query failure.
// filesAvailable distinguishes bad SQL from missing data.
func NewQueryError(raw string, filesAvailable []string, cause error) *CryoError {
	err := New(QueryFailed, raw, cause)
	if len(filesAvailable) > 0 {
		err.Details = &QueryDetails{FilesAvailable: filesAvailable}
	}
	return err
}

// IsCode reports whether err is a *CryoError carrying the given code
func IsCode(err error, code ErrorCode) bool {
	ce, ok := err.(*CryoError)
	return ok && ce.Code == code
}
