package mcp

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cryomcp/internal/chain"
	"cryomcp/internal/cryo"
	"cryomcp/internal/query"
	"cryomcp/internal/storage"
)

// Deps carries the collaborators tool handlers dispatch to.
type Deps struct {
	Runner   *cryo.Runner
	Executor *query.Executor
	Chain    *chain.Client
	// Store records tool usage; nil disables recording.
	Store *storage.DB
	// DataDir is the parquet data root the SQL tools scan.
	DataDir string
	Logger  *slog.Logger
}

// Server is the stdio MCP server. It owns the read loop; all state it
// touches after Start is confined to that single goroutine.
type Server struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
	logger  *slog.Logger
	version string

	runner   *cryo.Runner
	executor *query.Executor
	chain    *chain.Client
	store    *storage.DB
	dataDir  string

	tools map[string]ToolHandler
}

// NewServer creates a new MCP server
func NewServer(version string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		logger:   logger,
		version:  version,
		runner:   deps.Runner,
		executor: deps.Executor,
		chain:    deps.Chain,
		store:    deps.Store,
		dataDir:  deps.DataDir,
		tools:    make(map[string]ToolHandler),
	}

	server.registerTools()

	return server
}

// Start starts the MCP server and begins processing messages
func (s *Server) Start() error {
	s.logger.Info("MCP server starting",
		"version", s.version,
	)

	// Main message loop
	for {
		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("MCP server shutting down (EOF)")
				return nil
			}
			if pe, ok := err.(*parseError); ok {
				s.logger.Error("Error reading message",
					"error", pe.Error(),
				)
				_ = s.writeError(nil, ParseError, fmt.Sprintf("Failed to parse message: %v", pe.cause))
				continue
			}

			// The scanner is dead once it reports an error; bail out
			// instead of spinning on it.
			s.logger.Error("Input stream failed",
				"error", err.Error(),
			)
			return err
		}

		// Process the message
		response := s.handleMessage(msg)

		// Write response if one was generated (notifications don't generate responses)
		if response != nil {
			if err := s.writeMessage(response); err != nil {
				s.logger.Error("Error writing response",
					"error", err.Error(),
				)
			}
		}
	}
}

// SetStdin sets the input stream (for testing)
func (s *Server) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil // Reset scanner so it will be recreated with new reader
}

// SetStdout sets the output stream (for testing)
func (s *Server) SetStdout(w io.Writer) {
	s.stdout = w
}
