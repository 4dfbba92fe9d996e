package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(ExtractionFailed, "cryo exited with status 1", cause)

	if err.Code != ExtractionFailed {
		t.Errorf("Code = %v, want %v", err.Code, ExtractionFailed)
	}
	if err.Message != "cryo exited with status 1" {
		t.Errorf("Message = %q, want %q", err.Message, "cryo exited with status 1")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestCryoError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      ChainUnavailable,
			message:   "failed to reach the RPC endpoint",
			cause:     errors.New("connection refused"),
			wantParts: []string{"CHAIN_UNAVAILABLE", "failed to reach the RPC endpoint", "connection refused"},
		},
		{
			name:      "without cause",
			code:      NoFilesAvailable,
			message:   "no parquet files found for dataset 'logs'",
			cause:     nil,
			wantParts: []string{"NO_FILES_AVAILABLE", "no parquet files found for dataset 'logs'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.cause)
			got := err.Error()

			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestCryoError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "something went wrong", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}

	// Test nil cause
	errNoCause := New(QueryFailed, "syntax error", nil)
	if errNoCause.Unwrap() != nil {
		t.Errorf("Unwrap() on error without cause should return nil")
	}
}

func TestCryoError_WithDetails(t *testing.T) {
	err := New(QueryFailed, "out of memory", nil)
	details := map[string]int{"rows": 10000, "limit": 4000}

	result := err.WithDetails(details)

	// Check that it returns the same error (for chaining)
	if result != err {
		t.Error("WithDetails should return the same error for chaining")
	}

	// Check details are set
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestNewPreconditionError(t *testing.T) {
	err := NewPreconditionError("no block range specified", "pass blocks or use start/end")

	if err.Code != PreconditionFailed {
		t.Errorf("Code = %v, want %v", err.Code, PreconditionFailed)
	}
	hints, ok := err.Details.(map[string]string)
	if !ok {
		t.Fatalf("Details = %T, want map[string]string", err.Details)
	}
	if hints["hint"] != "pass blocks or use start/end" {
		t.Errorf("hint = %q, want %q", hints["hint"], "pass blocks or use start/end")
	}

	// No hint means no details
	bare := NewPreconditionError("conflicting range parameters", "")
	if bare.Details != nil {
		t.Errorf("Details = %v, want nil when hint is empty", bare.Details)
	}
}

func TestNewInvalidParameterError(t *testing.T) {
	tests := []struct {
		name     string
		param    string
		detail   string
		wantPart string
	}{
		{"missing", "dataset", "", "missing or invalid parameter 'dataset'"},
		{"with detail", "blocks", "must be a string like '1000:1010'", "invalid parameter 'blocks': must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewInvalidParameterError(tt.param, tt.detail)
			if err.Code != InvalidParameter {
				t.Errorf("Code = %v, want %v", err.Code, InvalidParameter)
			}
			if !strings.Contains(err.Message, tt.wantPart) {
				t.Errorf("Message = %q, want to contain %q", err.Message, tt.wantPart)
			}
		})
	}
}

func TestNewExtractionError(t *testing.T) {
	cause := errors.New("exit status 2")
	err := NewExtractionError("cryo logs -b 1000:1010", "error: no RPC", "", cause)

	if err.Code != ExtractionFailed {
		t.Errorf("Code = %v, want %v", err.Code, ExtractionFailed)
	}
	details, ok := err.Details.(*ExtractionDetails)
	if !ok {
		t.Fatalf("Details = %T, want *ExtractionDetails", err.Details)
	}
	if details.Command != "cryo logs -b 1000:1010" {
		t.Errorf("Command = %q, want the exact invocation", details.Command)
	}
	if details.Stderr != "error: no RPC" {
		t.Errorf("Stderr = %q, want captured stderr", details.Stderr)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestNewQueryError(t *testing.T) {
	err := NewQueryError("Catalog Error: table 'logs' does not exist", []string{"blocks__1000_to_1009.parquet"}, nil)

	if err.Code != QueryFailed {
		t.Errorf("Code = %v, want %v", err.Code, QueryFailed)
	}
	details, ok := err.Details.(*QueryDetails)
	if !ok {
		t.Fatalf("Details = %T, want *QueryDetails", err.Details)
	}
	if len(details.FilesAvailable) != 1 {
		t.Errorf("len(FilesAvailable) = %d, want 1", len(details.FilesAvailable))
	}

	// Empty pool means no details
	bare := NewQueryError("syntax error", nil, nil)
	if bare.Details != nil {
		t.Errorf("Details = %v, want nil for empty file pool", bare.Details)
	}
}

func TestIsCode(t *testing.T) {
	err := NewChainUnavailableError(errors.New("dial tcp: refused"))

	if !IsCode(err, ChainUnavailable) {
		t.Error("IsCode should match the error's own code")
	}
	if IsCode(err, QueryFailed) {
		t.Error("IsCode should reject a different code")
	}
	if IsCode(errors.New("plain"), ChainUnavailable) {
		t.Error("IsCode should reject non-CryoError values")
	}
}

func TestErrorCodes(t *testing.T) {
	// Ensure all error codes are unique
	codes := []ErrorCode{
		PreconditionFailed,
		FileNotFound,
		NoFilesAvailable,
		ChainUnavailable,
		RPCMalformed,
		ExtractionFailed,
		NoOutputGenerated,
		QueryFailed,
		InvalidParameter,
		ConfigInvalid,
		InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %v", code)
		}
		seen[code] = true

		// Ensure each code is a non-empty string
		if string(code) == "" {
			t.Error("Error code should not be empty")
		}
	}
}
