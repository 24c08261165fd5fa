// Package config defines the top-level configuration for marketpulse and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETPULSE_* environment
// variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds upstream Gamma API parameters.
type PolymarketConfig struct {
	GammaHost    string   `toml:"gamma_host"`
	PageLimit    int      `toml:"page_limit"`
	VolumeMin    float64  `toml:"volume_min"`
	ExcludedTags []string `toml:"excluded_tags"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the snapshot
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds ingestion pipeline parameters.
type PipelineConfig struct {
	Name           string   `toml:"name"`
	SnapshotDir    string   `toml:"snapshot_dir"`
	RunInterval    duration `toml:"run_interval"`
	LockTTL        duration `toml:"lock_ttl"`
	ArchiveEnabled bool     `toml:"archive_enabled"`
	ArchivePrefix  string   `toml:"archive_prefix"`
	// ArchiveDeleteLocal removes local .gz buckets after a verified upload.
	ArchiveDeleteLocal bool `toml:"archive_delete_local"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
	CacheTTL        duration `toml:"cache_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "15m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "15m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults for every field
// that has one. Credentials and hosts intentionally default to empty.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:    "https://gamma-api.polymarket.com",
			PageLimit:    20,
			VolumeMin:    100_000,
			ExcludedTags: []string{"sports"},
		},
		Database: DatabaseConfig{
			Port:          5432,
			SSLMode:       "require",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Pipeline: PipelineConfig{
			Name:          "polymarket_pipeline",
			SnapshotDir:   "data/snapshots",
			RunInterval:   duration{15 * time.Minute},
			LockTTL:       duration{10 * time.Minute},
			ArchivePrefix: "snapshots",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            3000,
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
			CacheTTL:        duration{120 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Validate checks the configuration for the selected mode and returns a
// descriptive error on the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "pipeline", "serve", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Polymarket.GammaHost == "" {
		return fmt.Errorf("config: polymarket.gamma_host is required")
	}
	if c.Polymarket.PageLimit <= 0 {
		return fmt.Errorf("config: polymarket.page_limit must be positive")
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("config: database.dsn or database.host is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}

	if c.Pipeline.Name == "" {
		return fmt.Errorf("config: pipeline.name is required")
	}
	if c.Pipeline.RunInterval.Duration <= 0 {
		return fmt.Errorf("config: pipeline.run_interval must be positive")
	}
	if c.Pipeline.LockTTL.Duration <= 0 {
		return fmt.Errorf("config: pipeline.lock_ttl must be positive")
	}
	if c.Pipeline.ArchiveEnabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: s3.bucket and s3.region are required when pipeline.archive_enabled")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	return nil
}
