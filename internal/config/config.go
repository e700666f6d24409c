// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tenant    TenantConfig    `mapstructure:"tenant"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	RequestTimeout  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// TenantConfig names the knowledge-base partition served by default.
type TenantConfig struct {
	Default string `mapstructure:"default"`
	Name    string `mapstructure:"name"`
}

// OpenAIConfig selects the models used for embeddings and answers.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	EmbedModel  string  `mapstructure:"embed_model"`
	ChatModel   string  `mapstructure:"chat_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	AllowedDomains  []string `mapstructure:"allowed_domains"`
	UserAgent       string   `mapstructure:"user_agent"`
	Concurrency     int      `mapstructure:"concurrency"`
	RatePerDomain   int      `mapstructure:"rate_limit_per_domain"`
	TimeoutSeconds  int      `mapstructure:"request_timeout_seconds"`
	MaxDepthDefault int      `mapstructure:"max_depth_default"`
	MaxPagesDefault int      `mapstructure:"max_pages_default"`
	IgnoreRobots    bool     `mapstructure:"ignore_robots"`
	SnapshotDir     string   `mapstructure:"snapshot_dir"`
	MaxPageBytes    int64    `mapstructure:"max_page_bytes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	MaxParallel    int      `mapstructure:"max_parallel"`
	NavTimeoutSec  int      `mapstructure:"nav_timeout_seconds"`
	DomainQPS      float64  `mapstructure:"domain_qps"`
	MinHTMLBytes   int      `mapstructure:"detector_min_html_bytes"`
	MustSelectors  []string `mapstructure:"detector_selectors"`
	SignalKeywords []string `mapstructure:"detector_keywords"`
}

// ChunkingConfig sets token windows for document splitting.
type ChunkingConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

// RetrievalConfig tunes the hybrid ranker.
type RetrievalConfig struct {
	TopK           int `mapstructure:"top_k"`
	PreselectLimit int `mapstructure:"preselect_limit"`
}

// IngestConfig controls the async ingestion job machinery.
type IngestConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// DBConfig controls access to the chunk store.
type DBConfig struct {
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	LifetimeMins int    `mapstructure:"conn_lifetime_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IVESNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("tenant.default", "slsp")
	v.SetDefault("tenant.name", "Slovenská sporiteľňa")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("openai.max_retries", 2)
	v.SetDefault("crawler.allowed_domains", []string{"slsp.sk", "www.slsp.sk"})
	v.SetDefault("crawler.user_agent", "ivesna-bot/0.3 (+https://github.com/quirkfly/ivesna)")
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.rate_limit_per_domain", 4)
	v.SetDefault("crawler.request_timeout_seconds", 25)
	v.SetDefault("crawler.max_depth_default", 3)
	v.SetDefault("crawler.max_pages_default", 200)
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.snapshot_dir", "data/pages")
	v.SetDefault("crawler.max_page_bytes", 5*1024*1024)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 20)
	v.SetDefault("headless.domain_qps", 0.5)
	v.SetDefault("headless.detector_min_html_bytes", 2000)
	v.SetDefault("headless.detector_selectors", []string{"main", "article", ".content"})
	v.SetDefault("headless.detector_keywords", []string{
		"__NEXT_DATA__",
		"data-reactroot",
		"ng-app",
		"window.__APOLLO_STATE__",
	})
	v.SetDefault("chunking.max_tokens", 900)
	v.SetDefault("chunking.overlap_tokens", 120)
	v.SetDefault("retrieval.top_k", 6)
	v.SetDefault("retrieval.preselect_limit", 300)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Tenant.Default == "" {
		return fmt.Errorf("tenant.default must be set")
	}
	if len(c.Crawler.AllowedDomains) == 0 {
		return fmt.Errorf("crawler.allowed_domains must include at least one domain")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.RatePerDomain <= 0 {
		return fmt.Errorf("crawler.rate_limit_per_domain must be > 0")
	}
	if c.Crawler.MaxPageBytes <= 0 {
		return fmt.Errorf("crawler.max_page_bytes must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be > 0")
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens must be in [0, max_tokens)")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if c.Retrieval.PreselectLimit < c.Retrieval.TopK {
		return fmt.Errorf("retrieval.preselect_limit must be >= retrieval.top_k")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown db.provider %q", c.DB.Provider)
	}
	return nil
}

// CrawlTimeout converts the crawler timeout knob into a duration.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
