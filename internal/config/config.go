// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Execution modes for orchestrator units.
const (
	ModePooled   = "pooled"
	ModeIsolated = "isolated"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Publish PublishConfig `mapstructure:"publish"`
	State   StateConfig   `mapstructure:"state"`
	Server  ServerConfig  `mapstructure:"server"`
}

// LogConfig toggles zap development features and file output.
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
}

// HarvestConfig governs the orchestrator.
type HarvestConfig struct {
	SeedsFile          string        `mapstructure:"seeds_file"`
	Workers            int           `mapstructure:"workers"`
	SitemapWorkers     int           `mapstructure:"sitemap_workers"`
	Mode               string        `mapstructure:"mode"`
	UnitTimeout        time.Duration `mapstructure:"unit_timeout"`
	CrawlHTML          bool          `mapstructure:"crawl_html"`
	UseProfiles        bool          `mapstructure:"use_profiles"`
	CrawlAllProfiles   bool          `mapstructure:"crawl_all_profiles"`
	FollowSitemapIndex bool          `mapstructure:"follow_sitemap_index"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	ProfilesFile       string        `mapstructure:"profiles_file"`
	CustomSites        []CustomSite  `mapstructure:"custom_sites"`
	MaxLinks           int           `mapstructure:"max_links"`
}

// CustomSite is an ad-hoc URL crawled with its own selectors.
type CustomSite struct {
	URL       string              `mapstructure:"url"`
	Selectors map[string][]string `mapstructure:"selectors"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	UserAgent          string        `mapstructure:"user_agent"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxBodyBytes       int           `mapstructure:"max_body_bytes"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

// IngestConfig tunes the filter and enrichment phases.
type IngestConfig struct {
	EnrichImages      bool          `mapstructure:"enrich_images"`
	ImageTimeout      time.Duration `mapstructure:"image_timeout"`
	ImageConcurrency  int           `mapstructure:"image_concurrency"`
	FilterConcurrency int           `mapstructure:"filter_concurrency"`
}

// StoreConfig selects the article store.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig controls raw sitemap archiving.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublishConfig holds metadata for stored-article notifications.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// StateConfig locates the dotenv file holding the last run timestamp.
type StateConfig struct {
	EnvFile string `mapstructure:"env_file"`
}

// ServerConfig controls the optional metrics endpoint.
type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	return LoadWith(v, path)
}

// LoadWith is Load on a caller-supplied Viper, so flags bound to v take effect.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("harvest.seeds_file", "urls.txt")
	v.SetDefault("harvest.workers", 5)
	v.SetDefault("harvest.sitemap_workers", 5)
	v.SetDefault("harvest.mode", ModePooled)
	v.SetDefault("harvest.unit_timeout", 60*time.Second)
	v.SetDefault("harvest.crawl_html", false)
	v.SetDefault("harvest.use_profiles", true)
	v.SetDefault("harvest.crawl_all_profiles", false)
	v.SetDefault("harvest.follow_sitemap_index", false)
	v.SetDefault("harvest.respect_robots", false)
	v.SetDefault("harvest.profiles_file", "")
	v.SetDefault("harvest.max_links", 50)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base", time.Second)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.insecure_skip_verify", true)
	v.SetDefault("http.max_body_bytes", 20<<20)
	v.SetDefault("http.rate_limit_rps", 0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("ingest.enrich_images", true)
	v.SetDefault("ingest.image_timeout", 30*time.Second)
	v.SetDefault("ingest.image_concurrency", 10)
	v.SetDefault("ingest.filter_concurrency", 8)
	v.SetDefault("store.provider", "postgres")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "articles")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.base_dir", "archive")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "sitemaps")
	v.SetDefault("publish.provider", "none")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("state.env_file", ".env")
	v.SetDefault("server.metrics_addr", "")
}

// DefaultUserAgent mimics a desktop browser; several news sites reject bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be > 0")
	}
	if c.Harvest.SitemapWorkers <= 0 {
		return fmt.Errorf("harvest.sitemap_workers must be > 0")
	}
	if c.Harvest.Mode != ModePooled && c.Harvest.Mode != ModeIsolated {
		return fmt.Errorf("harvest.mode must be %q or %q", ModePooled, ModeIsolated)
	}
	if c.Harvest.UnitTimeout <= 0 {
		return fmt.Errorf("harvest.unit_timeout must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.Ingest.FilterConcurrency <= 0 {
		return fmt.Errorf("ingest.filter_concurrency must be > 0")
	}
	if c.Ingest.ImageConcurrency < 0 {
		return fmt.Errorf("ingest.image_concurrency must be >= 0")
	}
	switch c.Store.Provider {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("store.provider %q is not supported", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case "", "none":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}
	switch c.Publish.Provider {
	case "", "none":
	case "pubsub":
		if c.Publish.ProjectID == "" || c.Publish.Topic == "" {
			return fmt.Errorf("publish.project_id and publish.topic must be set for pubsub")
		}
	default:
		return fmt.Errorf("publish.provider %q is not supported", c.Publish.Provider)
	}
	for i, site := range c.Harvest.CustomSites {
		if strings.TrimSpace(site.URL) == "" {
			return fmt.Errorf("harvest.custom_sites[%d].url must be set", i)
		}
	}
	return nil
}
