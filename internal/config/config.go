package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Withings WithingsConfig `yaml:"withings" envconfig:"WITHINGS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// WithingsConfig contains the OAuth application registration and API tuning.
// Credentials are only required by commands that talk to the API; Validate
// for the CSV path tolerates them being empty.
type WithingsConfig struct {
	ClientID     string        `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" envconfig:"CLIENT_SECRET"`
	RedirectURI  string        `yaml:"redirect_uri" envconfig:"REDIRECT_URI" default:"http://localhost:1992/callback" validate:"url"`
	Scopes       []string      `yaml:"scopes" envconfig:"SCOPES" default:"user.info,user.metrics"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT" default:"30s" validate:"gt=0"`
	PageRate     float64       `yaml:"page_rate" envconfig:"PAGE_RATE" default:"2" validate:"gt=0"` // pagination requests per second
}

// HasCredentials reports whether the OAuth app registration is configured.
func (w WithingsConfig) HasCredentials() bool {
	return w.ClientID != "" && w.ClientSecret != ""
}

// Load loads configuration from environment variables and the optional
// config file. Environment variables take precedence over file values.
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("W2W", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := ConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration a command falls back to when Load fails.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Output: "console",
		},
		Withings: WithingsConfig{
			RedirectURI: "http://localhost:1992/callback",
			Scopes:      []string{"user.info", "user.metrics"},
			HTTPTimeout: 30 * time.Second,
			PageRate:    2,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
// envconfig default tags fill unset env fields, so only credentials and
// explicit file overrides of still-defaulted fields are merged here.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if os.Getenv("W2W_LOGGING_LEVEL") == "" && fileConfig.Logging.Level != "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if os.Getenv("W2W_LOGGING_OUTPUT") == "" && fileConfig.Logging.Output != "" {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if os.Getenv("W2W_LOGGING_FILE_PATH") == "" && fileConfig.Logging.FilePath != "" {
		envConfig.Logging.FilePath = fileConfig.Logging.FilePath
	}
	if os.Getenv("W2W_WITHINGS_CLIENT_ID") == "" && fileConfig.Withings.ClientID != "" {
		envConfig.Withings.ClientID = fileConfig.Withings.ClientID
	}
	if os.Getenv("W2W_WITHINGS_CLIENT_SECRET") == "" && fileConfig.Withings.ClientSecret != "" {
		envConfig.Withings.ClientSecret = fileConfig.Withings.ClientSecret
	}
	if os.Getenv("W2W_WITHINGS_REDIRECT_URI") == "" && fileConfig.Withings.RedirectURI != "" {
		envConfig.Withings.RedirectURI = fileConfig.Withings.RedirectURI
	}
	if os.Getenv("W2W_WITHINGS_SCOPES") == "" && len(fileConfig.Withings.Scopes) > 0 {
		envConfig.Withings.Scopes = fileConfig.Withings.Scopes
	}
	if os.Getenv("W2W_WITHINGS_HTTP_TIMEOUT") == "" && fileConfig.Withings.HTTPTimeout != 0 {
		envConfig.Withings.HTTPTimeout = fileConfig.Withings.HTTPTimeout
	}
	if os.Getenv("W2W_WITHINGS_PAGE_RATE") == "" && fileConfig.Withings.PageRate != 0 {
		envConfig.Withings.PageRate = fileConfig.Withings.PageRate
	}
	return envConfig
}

// validate checks the configuration using struct tags
func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	return nil
}
