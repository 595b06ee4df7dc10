// Package config handles configuration loading and management for orchestra.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level config file searched for upward
// from the current directory.
const ProjectConfigName = ".orchestra.yaml"

// Executor kinds.
const (
	ExecutorClaude = "claude"
	ExecutorShell  = "shell"
	ExecutorAPI    = "api"
)

// Storage drivers.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// Config holds all configuration for orchestra.
type Config struct {
	Batch     BatchConfig     `mapstructure:"batch"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BatchConfig holds batch admission limits.
type BatchConfig struct {
	// MaxBatchSize is the largest number of tasks accepted in one batch.
	MaxBatchSize int `mapstructure:"max_batch_size"`
	// MaxConcurrencyLimit is the upper bound for a batch's MaxConcurrency.
	MaxConcurrencyLimit int `mapstructure:"max_concurrency_limit"`
	// DefaultConcurrency is used when a batch does not set MaxConcurrency.
	DefaultConcurrency int `mapstructure:"default_concurrency"`
	// PriorityOrdering releases ready tasks by priority instead of submission order.
	PriorityOrdering bool `mapstructure:"priority_ordering"`
}

// ExecutorConfig selects and configures the work executor.
type ExecutorConfig struct {
	// Kind is one of ExecutorClaude, ExecutorShell or ExecutorAPI.
	Kind string `mapstructure:"kind"`
	// ClaudePath is the Claude Code binary.
	ClaudePath string `mapstructure:"claude_path"`
	// AllowedTools is passed to Claude Code as --allowedTools.
	AllowedTools string `mapstructure:"allowed_tools"`
	// TaskTimeout bounds a single task. Zero means no limit.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	Bedrock    bool   `mapstructure:"bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// StorageConfig holds batch history settings.
type StorageConfig struct {
	// Driver is DriverModernc (pure Go) or DriverCGO.
	Driver string `mapstructure:"driver"`
	// Path is the history database file. Empty means the user data dir.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// DebugLog enables the debug log under .orchestra/logs.
	DebugLog bool `mapstructure:"debug_log"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, ORCHESTRA_BATCH_MAX_BATCH_SIZE, ...)
// 2. Project config (.orchestra.yaml in current directory or parent)
// 3. User config (~/.config/orchestra/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	v := toViper(cfg)
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Keys returns every configuration key in dotted form, sorted.
func Keys() []string {
	keys := toViper(Default()).AllKeys()
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key such as "batch.max_batch_size".
func Get(cfg *Config, key string) (string, error) {
	v := toViper(cfg)
	if !v.IsSet(key) {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return fmt.Sprint(v.Get(key)), nil
}

// Set updates a dotted key from its string form. The value is converted to
// the field's type; an invalid value leaves cfg unchanged.
func Set(cfg *Config, key, value string) error {
	v := toViper(cfg)
	if !v.IsSet(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	v.Set(key, value)

	updated, err := unmarshal(v)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	*cfg = *updated
	return nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Batch.MaxBatchSize < 1 {
		return fmt.Errorf("batch.max_batch_size must be positive, got %d", c.Batch.MaxBatchSize)
	}
	if c.Batch.MaxConcurrencyLimit < 1 {
		return fmt.Errorf("batch.max_concurrency_limit must be positive, got %d", c.Batch.MaxConcurrencyLimit)
	}
	if c.Batch.DefaultConcurrency < 1 || c.Batch.DefaultConcurrency > c.Batch.MaxConcurrencyLimit {
		return fmt.Errorf("batch.default_concurrency must be between 1 and %d, got %d",
			c.Batch.MaxConcurrencyLimit, c.Batch.DefaultConcurrency)
	}
	switch c.Executor.Kind {
	case ExecutorClaude, ExecutorShell, ExecutorAPI:
	default:
		return fmt.Errorf("executor.kind must be one of %s, %s, %s; got %q",
			ExecutorClaude, ExecutorShell, ExecutorAPI, c.Executor.Kind)
	}
	switch c.Storage.Driver {
	case DriverModernc, DriverCGO:
	default:
		return fmt.Errorf("storage.driver must be %s or %s, got %q", DriverModernc, DriverCGO, c.Storage.Driver)
	}
	return nil
}

// HistoryPath returns the history database path, falling back to the user
// data directory.
func (c *Config) HistoryPath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(getUserDataDir(), "history.db")
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for key, value := range flatten(d) {
		v.SetDefault(key, value)
	}
}

// flatten maps every dotted key to its value in cfg.
func flatten(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"batch.max_batch_size":        cfg.Batch.MaxBatchSize,
		"batch.max_concurrency_limit": cfg.Batch.MaxConcurrencyLimit,
		"batch.default_concurrency":   cfg.Batch.DefaultConcurrency,
		"batch.priority_ordering":     cfg.Batch.PriorityOrdering,
		"executor.kind":               cfg.Executor.Kind,
		"executor.claude_path":        cfg.Executor.ClaudePath,
		"executor.allowed_tools":      cfg.Executor.AllowedTools,
		"executor.task_timeout":       cfg.Executor.TaskTimeout.String(),
		"anthropic.api_key":           cfg.Anthropic.APIKey,
		"anthropic.model":             cfg.Anthropic.Model,
		"anthropic.max_tokens":        cfg.Anthropic.MaxTokens,
		"anthropic.bedrock":           cfg.Anthropic.Bedrock,
		"anthropic.aws_region":        cfg.Anthropic.AWSRegion,
		"anthropic.aws_profile":       cfg.Anthropic.AWSProfile,
		"storage.driver":              cfg.Storage.Driver,
		"storage.path":                cfg.Storage.Path,
		"logging.debug_log":           cfg.Logging.DebugLog,
	}
}

// toViper loads cfg into a fresh viper instance.
func toViper(cfg *Config) *viper.Viper {
	v := viper.New()
	for key, value := range flatten(cfg) {
		v.Set(key, value)
	}
	return v
}

// bindEnv maps environment variables onto config keys.
// ORCHESTRA_BATCH_MAX_BATCH_SIZE overrides batch.max_batch_size.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("orchestra")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "ORCHESTRA_ANTHROPIC_API_KEY")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Storage.Path = expandEnv(cfg.Storage.Path)

	return cfg, nil
}

// getUserConfigDir returns the XDG config directory for orchestra.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "orchestra")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "orchestra")
	}
	return filepath.Join(home, ".config", "orchestra")
}

// getUserDataDir returns the XDG data directory for orchestra.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "orchestra")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "orchestra")
	}
	return filepath.Join(home, ".local", "share", "orchestra")
}

// findProjectConfig searches for .orchestra.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Batch: BatchConfig{
			MaxBatchSize:        100,
			MaxConcurrencyLimit: 20,
			DefaultConcurrency:  4,
		},
		Executor: ExecutorConfig{
			Kind:         ExecutorClaude,
			ClaudePath:   "claude",
			AllowedTools: "Read,Write,Edit,Bash,Glob,Grep,WebFetch",
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Storage: StorageConfig{
			Driver: DriverModernc,
		},
	}
}
