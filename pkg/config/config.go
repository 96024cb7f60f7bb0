package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the extractor.
type Config struct {
	// Extraction loop settings
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`

	// Retry and circuit breaker settings
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Checkpoint persistence settings
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ExtractionConfig holds the session degradation and pacing policy.
type ExtractionConfig struct {
	// MaxPages caps how many feed pages are fetched. Zero means unlimited.
	MaxPages int `yaml:"max_pages" json:"max_pages"`
	// MaxPosts caps how many posts are collected. Zero means unlimited.
	MaxPosts int `yaml:"max_posts" json:"max_posts"`
	// PageFailureLimit stops the session after this many consecutive
	// failed pages, yielding a partial result.
	PageFailureLimit int `yaml:"page_failure_limit" json:"page_failure_limit"`
	// GraceTimeout bounds how long shutdown waits for an in-flight fetch.
	GraceTimeout time.Duration `yaml:"grace_timeout" json:"grace_timeout"`
	// BypassBlock is the manual override switch for anti-automation
	// blocks: blocked responses are classified as retryable page
	// failures instead of aborting the session.
	BypassBlock bool `yaml:"bypass_block" json:"bypass_block"`
}

// RetryConfig holds retry and circuit breaker configuration.
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier       float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor     float64       `yaml:"jitter_factor" json:"jitter_factor"`
	BreakerThreshold int           `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" json:"breaker_cooldown"`
}

// CheckpointConfig holds checkpoint persistence configuration.
type CheckpointConfig struct {
	// Directory for session records. Empty selects the per-OS data dir.
	Directory string `yaml:"directory" json:"directory"`
	// Interval between wall-clock periodic checkpoints.
	Interval time.Duration `yaml:"interval" json:"interval"`
	// DeleteOnComplete removes the record after successful completion.
	DeleteOnComplete bool `yaml:"delete_on_complete" json:"delete_on_complete"`
}

// RateLimitConfig holds request pacing configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig holds output document configuration.
type OutputConfig struct {
	Directory       string `yaml:"directory" json:"directory"`
	FileNamePattern string `yaml:"file_name_pattern" json:"file_name_pattern"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			MaxPages:         0,
			MaxPosts:         0,
			PageFailureLimit: 3,
			GraceTimeout:     5 * time.Second,
			BypassBlock:      false,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			BaseDelay:        1 * time.Second,
			MaxDelay:         60 * time.Second,
			Multiplier:       2.0,
			JitterFactor:     0.1,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Directory:        "",
			Interval:         30 * time.Second,
			DeleteOnComplete: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
		},
		Output: OutputConfig{
			Directory:       ".",
			FileNamePattern: "{profile}-posts-{date}.md",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("LNSCRAPER_OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := os.Getenv("LNSCRAPER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LNSCRAPER_CHECKPOINT_DIR"); v != "" {
		c.Checkpoint.Directory = v
	}
	if v := os.Getenv("LNSCRAPER_REQUESTS_PER_MINUTE"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if v := os.Getenv("LNSCRAPER_MAX_PAGES"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Extraction.MaxPages = val
		}
	}
	if v := os.Getenv("LNSCRAPER_PAGE_FAILURE_LIMIT"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Extraction.PageFailureLimit = val
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".lnscraper.yaml",
		".lnscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "lnscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "lnscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".lnscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, errors.New("retry base delay cannot be negative"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry max delay must be >= base delay"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		errs = append(errs, errors.New("jitter factor must be between 0 and 1"))
	}
	if c.Retry.BreakerThreshold < 0 {
		errs = append(errs, errors.New("breaker threshold cannot be negative"))
	}

	if c.Extraction.PageFailureLimit < 0 {
		errs = append(errs, errors.New("page failure limit cannot be negative"))
	}
	if c.Extraction.GraceTimeout <= 0 {
		errs = append(errs, errors.New("grace timeout must be positive"))
	}

	if c.Checkpoint.Interval <= 0 {
		errs = append(errs, errors.New("checkpoint interval must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.FileNamePattern == "" {
		errs = append(errs, errors.New("file name pattern is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["max-pages"].(int); ok && v > 0 {
		c.Extraction.MaxPages = v
	}
	if v, ok := flags["max-posts"].(int); ok && v > 0 {
		c.Extraction.MaxPosts = v
	}
	if v, ok := flags["page-failure-limit"].(int); ok && v > 0 {
		c.Extraction.PageFailureLimit = v
	}
	if v, ok := flags["checkpoint-interval"].(time.Duration); ok && v > 0 {
		c.Checkpoint.Interval = v
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["bypass-block"].(bool); ok {
		c.Extraction.BypassBlock = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env
// file > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".lnscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
