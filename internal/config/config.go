package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config represents the complete cryomcp configuration
type Config struct {
	RPCURL  string `toml:"rpc_url" mapstructure:"rpc_url"`
	DataDir string `toml:"data_dir" mapstructure:"data_dir"`

	Cryo    CryoConfig    `toml:"cryo" mapstructure:"cryo"`
	Query   QueryConfig   `toml:"query" mapstructure:"query"`
	Logging LoggingConfig `toml:"logging" mapstructure:"logging"`
}

// CryoConfig contains extraction subprocess configuration
type CryoConfig struct {
	// Binary is the cryo executable name or path. Resolved through PATH
	// when not absolute.
	Binary string `toml:"binary" mapstructure:"binary"`
}

// QueryConfig contains analytical engine configuration
type QueryConfig struct {
	MemoryLimit        string `toml:"memory_limit" mapstructure:"memory_limit"`
	MaxExpressionDepth int    `toml:"max_expression_depth" mapstructure:"max_expression_depth"`
	TimeoutMs          int    `toml:"timeout_ms" mapstructure:"timeout_ms"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	MaxSize    string `toml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`

	// Per-subsystem level overrides. Empty means use Level.
	MCP   string `toml:"mcp" mapstructure:"mcp"`
	Fetch string `toml:"fetch" mapstructure:"fetch"`
	Query string `toml:"query" mapstructure:"query"`

	Remote *RemoteLogConfig `toml:"remote,omitempty" mapstructure:"remote"`
}

// RemoteLogConfig contains Loki push configuration for long-running servers
type RemoteLogConfig struct {
	Enabled       bool              `toml:"enabled" mapstructure:"enabled"`
	Endpoint      string            `toml:"endpoint" mapstructure:"endpoint"`
	Labels        map[string]string `toml:"labels,omitempty" mapstructure:"labels"`
	BatchSize     int               `toml:"batch_size" mapstructure:"batch_size"`
	FlushInterval string            `toml:"flush_interval" mapstructure:"flush_interval"`
}

const (
	// DefaultRPCURL is used when neither flag, env, nor config file names an endpoint
	DefaultRPCURL = "http://localhost:8545"

	configDirName = ".cryo-mcp"
)

// ConfigDir returns the per-user configuration directory (~/.cryo-mcp)
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName), nil
}

// DefaultDataDir returns the default extraction output directory (~/.cryo-mcp/data).
// Falls back to a relative path when the home directory cannot be determined.
func DefaultDataDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return filepath.Join(configDirName, "data")
	}
	return filepath.Join(dir, "data")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RPCURL:  DefaultRPCURL,
		DataDir: DefaultDataDir(),
		Cryo: CryoConfig{
			Binary: "cryo",
		},
		Query: QueryConfig{
			MemoryLimit:        "4GB",
			MaxExpressionDepth: 10000,
			TimeoutMs:          30000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// Load reads configuration from <configDir>/config.toml and applies
// environment overrides. An empty configDir means ~/.cryo-mcp. A missing
// config file is not an error; defaults are used.
//
// Precedence below CLI flags: environment > config file > defaults.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			// No home directory. Run on defaults plus environment.
			cfg := DefaultConfig()
			cfg.applyEnv()
			return cfg, nil
		}
		configDir = dir
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	defaults := DefaultConfig()
	v.SetDefault("rpc_url", defaults.RPCURL)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("cryo.binary", defaults.Cryo.Binary)
	v.SetDefault("query.memory_limit", defaults.Query.MemoryLimit)
	v.SetDefault("query.max_expression_depth", defaults.Query.MaxExpressionDepth)
	v.SetDefault("query.timeout_ms", defaults.Query.TimeoutMs)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size", defaults.Logging.MaxSize)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv overlays the environment variables the tool has always honored.
func (c *Config) applyEnv() {
	if rpc := os.Getenv("ETH_RPC_URL"); rpc != "" {
		c.RPCURL = rpc
	}
	if dir := os.Getenv("CRYO_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
}

// Save writes the configuration to <configDir>/config.toml, creating the
// directory if needed. An empty configDir means ~/.cryo-mcp.
func (c *Config) Save(configDir string) error {
	if configDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		configDir = dir
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.toml"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return &ConfigError{Field: "rpc_url", Message: "RPC endpoint must not be empty"}
	}
	if !strings.HasPrefix(c.RPCURL, "http://") && !strings.HasPrefix(c.RPCURL, "https://") {
		return &ConfigError{Field: "rpc_url", Message: "RPC endpoint must be an http(s) URL"}
	}
	if c.DataDir == "" {
		return &ConfigError{Field: "data_dir", Message: "data directory must not be empty"}
	}
	if c.Cryo.Binary == "" {
		return &ConfigError{Field: "cryo.binary", Message: "extraction binary must not be empty"}
	}
	if c.Query.MaxExpressionDepth <= 0 {
		return &ConfigError{Field: "query.max_expression_depth", Message: "must be positive"}
	}
	if c.Query.TimeoutMs < 0 {
		return &ConfigError{Field: "query.timeout_ms", Message: "must not be negative"}
	}
	if c.Logging.Remote != nil && c.Logging.Remote.Enabled && c.Logging.Remote.Endpoint == "" {
		return &ConfigError{Field: "logging.remote.endpoint", Message: "required when remote logging is enabled"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
