// Package config loads application configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Predictor PredictorConfig `yaml:"predictor" mapstructure:"predictor"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	HaikuModel  string  `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string  `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PredictorConfig configures the interactive expert prediction endpoint.
type PredictorConfig struct {
	HardDeadlineMillis int `yaml:"hard_deadline_millis" mapstructure:"hard_deadline_millis"`
	CacheTTLMinutes    int `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
}

// PipelineConfig configures analysis generation.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// NotionConfig holds Notion publishing settings. Publishing is disabled when
// the token is empty.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ParentID string `yaml:"parent_id" mapstructure:"parent_id"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORESIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "foresight.db")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.rate_limit", 5.0)
	v.SetDefault("predictor.hard_deadline_millis", 2000)
	v.SetDefault("predictor.cache_ttl_minutes", 15)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode and reports
// every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	complain := func(cond bool, msg string) {
		if cond {
			problems = append(problems, msg)
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		complain(c.Store.SQLitePath == "", "store.sqlite_path is required for the sqlite driver")
	case "postgres":
		complain(c.Store.DatabaseURL == "", "store.database_url is required for the postgres driver")
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	complain(c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 16,
		"pipeline.concurrency must be between 1 and 16")
	complain(c.Predictor.HardDeadlineMillis < 200,
		"predictor.hard_deadline_millis must be >= 200")

	switch mode {
	case "serve":
		complain(c.Server.Port <= 0, "server.port must be > 0")
		complain(c.Anthropic.Key == "", "anthropic.key is required")
	case "analyze", "predict":
		complain(c.Anthropic.Key == "", "anthropic.key is required")
	case "publish":
		complain(c.Notion.Token == "", "notion.token is required")
		complain(c.Notion.ParentID == "", "notion.parent_id is required")
	case "export", "seed":
		// Store checks above are sufficient.
	default:
		problems = append(problems, "unknown mode "+mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
