package slogutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cryomcp/internal/config"
)

// LoggerFactory creates appropriately configured loggers for the server's
// subsystems. It respects the configuration precedence:
// CLI flags > subsystem config > global config.
//
// Log files live under <dataDir>/logs. A factory with an empty dataDir
// hands out discard loggers, as does any factory that hits an I/O error:
// logging must never take the tool down.
type LoggerFactory struct {
	dataDir  string
	config   *config.Config
	cliLevel string // from CLI flags, empty when not set
	closers  []io.Closer
	loki     *LokiHandler
}

// NewLoggerFactory creates a new logger factory.
// cliLevel should be empty if no CLI override was specified.
func NewLoggerFactory(dataDir string, cfg *config.Config, cliLevel string) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		dataDir:  dataDir,
		config:   cfg,
		cliLevel: cliLevel,
		closers:  make([]io.Closer, 0),
	}
}

// MCPLogger creates a logger for the MCP server loop.
// Writes to <dataDir>/logs/mcp.log
func (f *LoggerFactory) MCPLogger() (*slog.Logger, error) {
	return f.subsystemLogger("mcp", "mcp.log")
}

// FetchLogger creates a logger for extraction runs.
// Writes to <dataDir>/logs/fetch.log
func (f *LoggerFactory) FetchLogger() (*slog.Logger, error) {
	return f.subsystemLogger("fetch", "fetch.log")
}

// QueryLogger creates a logger for the analytical engine.
// Writes to <dataDir>/logs/query.log
func (f *LoggerFactory) QueryLogger() (*slog.Logger, error) {
	return f.subsystemLogger("query", "query.log")
}

func (f *LoggerFactory) subsystemLogger(subsystem, filename string) (*slog.Logger, error) {
	if f.dataDir == "" {
		return NewDiscardLogger(), nil
	}

	logsDir := filepath.Join(f.dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return NewDiscardLogger(), nil
	}

	level := f.effectiveLevel(subsystem)
	handler, closer, err := f.newFileHandler(filepath.Join(logsDir, filename), level)
	if err != nil {
		return NewDiscardLogger(), nil
	}
	f.closers = append(f.closers, closer)

	if remote := f.remoteHandler(); remote != nil {
		tagged := remote.WithAttrs([]slog.Attr{slog.String("subsystem", subsystem)})
		return NewTeeLogger(handler, tagged), nil
	}
	return slog.New(handler), nil
}

// newFileHandler opens a log file, rotating when the config asks for it.
func (f *LoggerFactory) newFileHandler(path string, level slog.Level) (slog.Handler, io.Closer, error) {
	if size := ParseSize(f.config.Logging.MaxSize); size > 0 {
		rf, err := OpenRotatingFile(path, size, f.config.Logging.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		return NewCryoHandler(rf, &slog.HandlerOptions{Level: level}), rf, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return NewCryoHandler(file, &slog.HandlerOptions{Level: level}), file, nil
}

// remoteHandler lazily creates the shared Loki handler when remote logging
// is enabled. Returns nil when it is not (or when setup fails).
func (f *LoggerFactory) remoteHandler() slog.Handler {
	rc := f.config.Logging.Remote
	if rc == nil || !rc.Enabled {
		return nil
	}

	if f.loki == nil {
		level := LevelFromString(f.config.Logging.Level)
		h, err := NewLokiHandler(rc, map[string]string{"app": "cryomcp"}, level)
		if err != nil {
			return nil
		}
		h.Start()
		f.loki = h
		f.closers = append(f.closers, stopCloser{h})
	}
	return f.loki
}

// stopCloser adapts LokiHandler's Start/Stop lifecycle to io.Closer.
type stopCloser struct {
	h *LokiHandler
}

func (c stopCloser) Close() error {
	return c.h.Stop()
}

// effectiveLevel returns the effective log level for a subsystem.
// Precedence: CLI flag > subsystem config > global config > default (info)
func (f *LoggerFactory) effectiveLevel(subsystem string) slog.Level {
	// CLI flag takes highest precedence
	if f.cliLevel != "" {
		return LevelFromString(f.cliLevel)
	}

	// Check subsystem-specific config
	var subsystemLevel string
	switch subsystem {
	case "mcp":
		subsystemLevel = f.config.Logging.MCP
	case "fetch":
		subsystemLevel = f.config.Logging.Fetch
	case "query":
		subsystemLevel = f.config.Logging.Query
	}

	if subsystemLevel != "" {
		return LevelFromString(subsystemLevel)
	}

	// Fall back to global config level
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}

	// Default
	return slog.LevelInfo
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	f.loki = nil
	return firstErr
}
