package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETPULSE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETPULSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "MARKETPULSE_GAMMA_HOST")
	setInt(&cfg.Polymarket.PageLimit, "MARKETPULSE_GAMMA_PAGE_LIMIT")
	setFloat64(&cfg.Polymarket.VolumeMin, "MARKETPULSE_GAMMA_VOLUME_MIN")
	setStringSlice(&cfg.Polymarket.ExcludedTags, "MARKETPULSE_GAMMA_EXCLUDED_TAGS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "MARKETPULSE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "MARKETPULSE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "MARKETPULSE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "MARKETPULSE_DATABASE_NAME")
	setStr(&cfg.Database.User, "MARKETPULSE_DATABASE_USER")
	setStr(&cfg.Database.Password, "MARKETPULSE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "MARKETPULSE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "MARKETPULSE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "MARKETPULSE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "MARKETPULSE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETPULSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETPULSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETPULSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETPULSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETPULSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETPULSE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETPULSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETPULSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETPULSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETPULSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETPULSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETPULSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETPULSE_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setStr(&cfg.Pipeline.Name, "MARKETPULSE_PIPELINE_NAME")
	setStr(&cfg.Pipeline.SnapshotDir, "MARKETPULSE_PIPELINE_SNAPSHOT_DIR")
	setDuration(&cfg.Pipeline.RunInterval, "MARKETPULSE_PIPELINE_RUN_INTERVAL")
	setDuration(&cfg.Pipeline.LockTTL, "MARKETPULSE_PIPELINE_LOCK_TTL")
	setBool(&cfg.Pipeline.ArchiveEnabled, "MARKETPULSE_PIPELINE_ARCHIVE_ENABLED")
	setStr(&cfg.Pipeline.ArchivePrefix, "MARKETPULSE_PIPELINE_ARCHIVE_PREFIX")
	setBool(&cfg.Pipeline.ArchiveDeleteLocal, "MARKETPULSE_PIPELINE_ARCHIVE_DELETE_LOCAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETPULSE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETPULSE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETPULSE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "MARKETPULSE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "MARKETPULSE_SERVER_RATE_LIMIT_WINDOW")
	setDuration(&cfg.Server.CacheTTL, "MARKETPULSE_SERVER_CACHE_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETPULSE_MODE")
	setStr(&cfg.LogLevel, "MARKETPULSE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
