// Package config loads service configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/docref/internal/citation"
)

// Config holds the full application configuration.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Parser   ParserConfig   `yaml:"parser" mapstructure:"parser"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// UpstreamConfig configures the file-registry client.
type UpstreamConfig struct {
	BaseURL              string `yaml:"base_url" mapstructure:"base_url"`
	APIKey               string `yaml:"api_key" mapstructure:"api_key"`
	MetadataTimeoutSecs  int    `yaml:"metadata_timeout_secs" mapstructure:"metadata_timeout_secs"`
	DownloadTimeoutSecs  int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
	Retries              int    `yaml:"retries" mapstructure:"retries"`
	RetryDelayMS         int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	RateLimitPerSec      int    `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	RateBurst            int    `yaml:"rate_burst" mapstructure:"rate_burst"`
	MetadataCacheTTLSecs int    `yaml:"metadata_cache_ttl_secs" mapstructure:"metadata_cache_ttl_secs"`
}

// CacheConfig configures the on-disk document cache and the in-memory
// response cache.
type CacheConfig struct {
	Dir               string `yaml:"dir" mapstructure:"dir"`
	ResponseTTLSecs   int    `yaml:"response_ttl_secs" mapstructure:"response_ttl_secs"`
	SweepIntervalSecs int    `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ParserConfig configures citation parsing.
type ParserConfig struct {
	Confidence citation.ConfidenceWeights `yaml:"confidence" mapstructure:"confidence"`
}

// StoreConfig configures the retrieval audit database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the operator HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("DOCREF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("upstream.metadata_timeout_secs", 8)
	v.SetDefault("upstream.download_timeout_secs", 30)
	v.SetDefault("upstream.retries", 2)
	v.SetDefault("upstream.retry_delay_ms", 500)
	v.SetDefault("upstream.rate_limit_per_sec", 20)
	v.SetDefault("upstream.rate_burst", 20)
	v.SetDefault("upstream.metadata_cache_ttl_secs", 15)
	v.SetDefault("cache.dir", ".docref-cache")
	v.SetDefault("cache.response_ttl_secs", 30)
	v.SetDefault("cache.sweep_interval_secs", 60)
	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("store.path", ".docref-cache/retrievals.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	w := citation.DefaultConfidenceWeights()
	v.SetDefault("parser.confidence.base", w.Base)
	v.SetDefault("parser.confidence.hint_bonus", w.HintBonus)
	v.SetDefault("parser.confidence.page_bonus", w.PageBonus)
	v.SetDefault("parser.confidence.bracket_bonus", w.BracketBonus)
	v.SetDefault("parser.confidence.short_penalty", w.ShortPenalty)
	v.SetDefault("parser.confidence.min", w.Min)
	v.SetDefault("parser.confidence.max", w.Max)

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

// Validate checks the configuration for the given mode ("serve" requires a
// listen port and upstream settings; "cli" only requires the upstream).
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Upstream.BaseURL == "" {
		problems = append(problems, "upstream.base_url is required")
	}
	if c.Breaker.FailureThreshold < 1 {
		problems = append(problems, "breaker.failure_threshold must be >= 1")
	}
	if w := c.Parser.Confidence; w.Min < 0 || w.Max > 1 || w.Min > w.Max {
		problems = append(problems, "parser.confidence min/max must satisfy 0 <= min <= max <= 1")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
