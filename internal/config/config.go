// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/probekit/recipecrawl/internal/site"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Discovery DiscoveryConfig       `mapstructure:"discovery"`
	Probe     ProbeConfig           `mapstructure:"probe"`
	Scrape    ScrapeConfig          `mapstructure:"scrape"`
	Storage   StorageConfig         `mapstructure:"storage"`
	DB        DBConfig              `mapstructure:"db"`
	PubSub    PubSubConfig          `mapstructure:"pubsub"`
	Logging   LoggingConfig         `mapstructure:"logging"`
	Sites     map[string]SiteConfig `mapstructure:"sites"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DiscoveryConfig governs the probe scheduler and termination monitor.
type DiscoveryConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	WatchCode      int `mapstructure:"watch_code"`
	MaxConsecutive int `mapstructure:"max_consecutive"`
	SentinelCode   int `mapstructure:"sentinel_code"`
}

// ProbeConfig configures the HEAD probe HTTP client.
type ProbeConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	QPS            float64 `mapstructure:"qps"`
	Burst          int     `mapstructure:"burst"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// ScrapeConfig configures the recipe page extractor.
type ScrapeConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// StorageConfig sets snapshot blob persistence parameters.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory permalink store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project selects the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SiteConfig describes an additional site profile to register.
type SiteConfig struct {
	URIFormat  string `mapstructure:"uri_format"`
	ExistsCode int    `mapstructure:"exists_code"`
	WatchCode  int    `mapstructure:"watch_code"`
	LowerID    int64  `mapstructure:"lower_id"`
	UpperID    int64  `mapstructure:"upper_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECIPECRAWL")
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
	v.SetDefault("discovery.concurrency", 4)
	v.SetDefault("discovery.watch_code", 404)
	v.SetDefault("discovery.max_consecutive", 250)
	v.SetDefault("discovery.sentinel_code", 599)
	v.SetDefault("probe.timeout_seconds", 10)
	v.SetDefault("probe.qps", 0)
	v.SetDefault("probe.burst", 1)
	v.SetDefault("probe.user_agent", "recipecrawl-bot/0.1")
	v.SetDefault("scrape.enabled", false)
	v.SetDefault("scrape.timeout_seconds", 15)
	v.SetDefault("scrape.user_agent", "recipecrawl-bot/0.1")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.table", "permalinks")
	v.SetDefault("pubsub.topic", "permalinks.discovered")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Discovery.Concurrency <= 0 {
		return fmt.Errorf("discovery.concurrency must be > 0")
	}
	if c.Discovery.MaxConsecutive <= 0 {
		return fmt.Errorf("discovery.max_consecutive must be > 0")
	}
	if c.Probe.TimeoutSeconds <= 0 {
		return fmt.Errorf("probe.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case "local", "gcs", "none":
	default:
		return fmt.Errorf("storage.backend must be local, gcs, or none")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
	}
	for name, sc := range c.Sites {
		profile := site.Profile{
			Name:       name,
			URIFormat:  sc.URIFormat,
			ExistsCode: sc.ExistsCode,
			WatchCode:  sc.WatchCode,
			LowerID:    sc.LowerID,
			UpperID:    sc.UpperID,
		}
		if err := profile.Validate(); err != nil {
			return fmt.Errorf("sites.%s: %w", name, err)
		}
	}
	return nil
}

// ProbeTimeout converts the probe timeout into a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSeconds) * time.Second
}

// ScrapeTimeout converts the scrape timeout into a duration.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSeconds) * time.Second
}
