package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	// FilePermissions is the default permission mode for regular files
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories
	DirPermissions = 0755

	// EnvPrefix prefixes every environment override (PMRUN_NETWORK_TIMEOUT)
	EnvPrefix = "PMRUN"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	// ConfigDir is the global configuration directory (~/.pmrun)
	ConfigDir string

	// ConfigFile is the default config file inside ConfigDir
	ConfigFile string

	// DatabasePath is the SQLite database file for run history
	DatabasePath string

	// LogDir holds rotated log files
	LogDir string
)

// Initialize resolves the configuration paths and creates the directory tree
func Initialize() error {
	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return InitializeAt(filepath.Join(home, ".pmrun"))
}

// InitializeAt is Initialize rooted at dir
func InitializeAt(dir string) error {
	ConfigDir = dir
	ConfigFile = filepath.Join(ConfigDir, "config.yaml")
	DatabasePath = filepath.Join(ConfigDir, "pmrun.db")
	LogDir = filepath.Join(ConfigDir, "logs")

	for _, d := range []string{ConfigDir, LogDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// ExpandPath expands a leading ~ and makes relative paths relative to ConfigDir
// when ConfigDir is set
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	if filepath.IsAbs(expanded) || ConfigDir == "" || expanded == ":memory:" {
		return expanded, nil
	}
	return filepath.Join(ConfigDir, expanded), nil
}

// Config is the runner configuration
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Headers HeadersConfig `mapstructure:"headers" yaml:"headers"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// LoggerConfig configures zap and log rotation
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// NetworkConfig configures the executor
type NetworkConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Protocol           string        `mapstructure:"protocol" yaml:"protocol"`
	FollowRedirects    bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects       int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// HeadersConfig controls the system headers injected into every request
type HeadersConfig struct {
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
	PostmanToken   bool   `mapstructure:"postman_token" yaml:"postman_token"`
	AcceptEncoding string `mapstructure:"accept_encoding" yaml:"accept_encoding"`
}

// HistoryConfig controls run persistence
type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "pmrun")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.protocol", "auto")
	v.SetDefault("network.follow_redirects", true)
	v.SetDefault("network.max_redirects", 10)
	v.SetDefault("network.insecure_skip_verify", false)

	// -- Headers --
	v.SetDefault("headers.user_agent", "PostmanRuntime/7.39.1")
	v.SetDefault("headers.postman_token", true)
	v.SetDefault("headers.accept_encoding", "gzip, deflate, br")

	// -- History --
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.database_path", "pmrun.db")
}

// NewViper returns a viper instance with defaults, env overrides and, when
// path is set or the default file exists, the config file loaded
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" && ConfigFile != "" {
		if _, err := os.Stat(ConfigFile); err == nil {
			path = ConfigFile
		}
	}
	if path == "" {
		return v, nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", path, err)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", expanded, err)
	}
	return v, nil
}

// NewDefaultConfig returns the configuration built from defaults only
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper decodes and validates v
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logger.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logger.format must be console or json, got %q", ErrInvalidConfig, c.Logger.Format)
	}
	switch strings.ToLower(c.Network.Protocol) {
	case "http1", "http2", "auto":
	default:
		return fmt.Errorf("%w: network.protocol must be http1, http2 or auto, got %q", ErrInvalidConfig, c.Network.Protocol)
	}
	if c.Network.Timeout < 0 {
		return fmt.Errorf("%w: network.timeout must not be negative", ErrInvalidConfig)
	}
	if c.Network.MaxRedirects < 0 {
		return fmt.Errorf("%w: network.max_redirects must not be negative", ErrInvalidConfig)
	}
	if c.History.Enabled && c.History.DatabasePath == "" {
		return fmt.Errorf("%w: history.database_path is required when history is enabled", ErrInvalidConfig)
	}
	return nil
}
