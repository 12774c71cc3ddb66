// Package config loads mdscan settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	metadefender "github.com/Bob-Loth/opswat-demo"
)

// EnvPath names the variable that points at the config file when -config is not given.
const EnvPath = "MDSCAN_CONFIG"

// Config is the on-disk shape of the mdscan configuration. The API key is
// never read from the file, only from the environment.
type Config struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`

	Poll struct {
		Interval    time.Duration `yaml:"interval"`
		Threshold   int           `yaml:"threshold"`
		MaxAttempts int           `yaml:"maxAttempts"`
		MaxDuration time.Duration `yaml:"maxDuration"`
	} `yaml:"poll"`

	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`

	Concurrency int  `yaml:"concurrency"`
	KeepGoing   bool `yaml:"keepGoing"`
	Verbose     bool `yaml:"verbose"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	p := metadefender.DefaultPollConfig()

	cfg := &Config{
		BaseURL:     metadefender.DefaultBaseURL,
		Timeout:     30 * time.Second,
		Concurrency: 1,
	}
	cfg.Poll.Interval = p.Interval
	cfg.Poll.Threshold = p.CompletionThreshold
	cfg.Poll.MaxAttempts = p.MaxAttempts
	return cfg
}

// Load reads the YAML file at path over the defaults. An empty path falls
// back to $MDSCAN_CONFIG; if both are empty the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs error
	if c.Poll.Interval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval))
	}
	if c.Poll.Threshold < 1 || c.Poll.Threshold > 100 {
		errs = multierr.Append(errs, fmt.Errorf("poll.threshold must be within 1..100, got %d", c.Poll.Threshold))
	}
	if c.Poll.MaxAttempts < 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll.maxAttempts must not be negative, got %d", c.Poll.MaxAttempts))
	}
	if c.Poll.MaxDuration < 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll.maxDuration must not be negative, got %s", c.Poll.MaxDuration))
	}
	if c.Timeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.Concurrency < 1 {
		errs = multierr.Append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if errs != nil {
		return metadefender.NewValidationError("invalid configuration", errs)
	}
	return nil
}

// PollConfig converts the poll section for the workflow.
func (c *Config) PollConfig() metadefender.PollConfig {
	return metadefender.PollConfig{
		Interval:            c.Poll.Interval,
		CompletionThreshold: c.Poll.Threshold,
		MaxAttempts:         c.Poll.MaxAttempts,
		MaxDuration:         c.Poll.MaxDuration,
	}
}

// ClientOptions returns the client options derived from the file.
func (c *Config) ClientOptions() []metadefender.ClientOption {
	var opts []metadefender.ClientOption
	if c.BaseURL != "" {
		opts = append(opts, metadefender.WithBaseURL(c.BaseURL))
	}
	if c.Timeout > 0 {
		opts = append(opts, metadefender.WithTimeout(c.Timeout))
	}
	return opts
}

// APIKeyFromEnv returns the credential from $OPSWAT_API_KEY.
func APIKeyFromEnv() (string, error) {
	key := strings.TrimSpace(os.Getenv(metadefender.EnvAPIKey))
	if key == "" {
		return "", metadefender.NewConfigurationError(
			fmt.Sprintf("environment variable %s is not set", metadefender.EnvAPIKey), nil)
	}
	return key, nil
}
