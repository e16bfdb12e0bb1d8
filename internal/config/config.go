package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Strategy  StrategyConfig  `yaml:"strategy" mapstructure:"strategy"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SearchConfig configures the SearxNG search backend.
type SearchConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// FetchConfig configures the page content fetcher.
type FetchConfig struct {
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// StrategyConfig configures search phrase generation.
type StrategyConfig struct {
	AnthropicKey string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxPhrases   int    `yaml:"max_phrases" mapstructure:"max_phrases"`
}

// VerifyConfig configures deliverability verification.
type VerifyConfig struct {
	HelloDomain           string  `yaml:"hello_domain" mapstructure:"hello_domain"`
	MailFrom              string  `yaml:"mail_from" mapstructure:"mail_from"`
	DNSTimeoutSecs        int     `yaml:"dns_timeout_secs" mapstructure:"dns_timeout_secs"`
	SMTPTimeoutSecs       int     `yaml:"smtp_timeout_secs" mapstructure:"smtp_timeout_secs"`
	ProbeRateLimit        float64 `yaml:"probe_rate_limit" mapstructure:"probe_rate_limit"`
	AssumeValidOnDNSError bool    `yaml:"assume_valid_on_dns_error" mapstructure:"assume_valid_on_dns_error"`
}

// CacheConfig configures the campaign dedup cache.
type CacheConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the embedded run ledger.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DiscoveryConfig configures the round loop.
type DiscoveryConfig struct {
	TargetCount      int `yaml:"target_count" mapstructure:"target_count"`
	MinRounds        int `yaml:"min_rounds" mapstructure:"min_rounds"`
	MaxRounds        int `yaml:"max_rounds" mapstructure:"max_rounds"`
	MaxEmptyRounds   int `yaml:"max_empty_rounds" mapstructure:"max_empty_rounds"`
	FetchConcurrency int `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
	FetchTopN        int `yaml:"fetch_top_n" mapstructure:"fetch_top_n"`
	RetryAttempts    int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ServerConfig configures the discovery HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DNSTimeout returns the configured DNS timeout as a duration.
func (c VerifyConfig) DNSTimeout() time.Duration {
	return time.Duration(c.DNSTimeoutSecs) * time.Second
}

// SMTPTimeout returns the configured SMTP timeout as a duration.
func (c VerifyConfig) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("search.base_url", "http://localhost:8080")
	v.SetDefault("search.timeout_secs", 20)
	v.SetDefault("search.max_results", 50)
	v.SetDefault("search.rate_limit", 2.0)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_body_bytes", 512*1024)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; ContactDiscoveryBot/1.0)")
	v.SetDefault("strategy.model", "claude-haiku-4-5-20251001")
	v.SetDefault("strategy.max_phrases", 5)
	v.SetDefault("verify.hello_domain", "verifier.local")
	v.SetDefault("verify.mail_from", "verify@verifier.local")
	v.SetDefault("verify.dns_timeout_secs", 10)
	v.SetDefault("verify.smtp_timeout_secs", 10)
	v.SetDefault("verify.probe_rate_limit", 1.0)
	// Ambiguous DNS/SMTP outcomes count as deliverable. The bias is
	// toward recall; tightening this changes observable yield.
	v.SetDefault("verify.assume_valid_on_dns_error", true)
	v.SetDefault("cache.dir", ".discovery-cache")
	v.SetDefault("store.path", "discovery.db")
	v.SetDefault("discovery.target_count", 5)
	v.SetDefault("discovery.min_rounds", 5)
	v.SetDefault("discovery.max_rounds", 20)
	v.SetDefault("discovery.max_empty_rounds", 5)
	v.SetDefault("discovery.fetch_concurrency", 8)
	v.SetDefault("discovery.fetch_top_n", 15)
	v.SetDefault("discovery.retry_attempts", 2)
	v.SetDefault("server.port", 8081)
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
