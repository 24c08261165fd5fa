package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/acyclops/marketpulse/internal/blob/s3"
	"github.com/acyclops/marketpulse/internal/cache/redis"
	"github.com/acyclops/marketpulse/internal/config"
	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/platform/polymarket"
	"github.com/acyclops/marketpulse/internal/snapshot"
	"github.com/acyclops/marketpulse/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Postgres client, kept for health checks.
	PG *postgres.Client

	// Stores
	Markets      domain.MarketStore
	Ticks        domain.TickStore
	Status       domain.StatusStore
	Leaderboards domain.LeaderboardStore

	// Redis-backed concerns
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	ResultCache domain.ResultCache

	// Local snapshot bucket storage
	Buckets *snapshot.Store

	// Upstream provider
	Gamma *polymarket.GammaClient

	// Cold storage for compressed buckets; nil when archival is disabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
}

// needsS3 reports whether the configured mode uploads snapshot archives.
// "serve" only reads Postgres and Redis.
func needsS3(cfg *config.Config) bool {
	if !cfg.Pipeline.ArchiveEnabled {
		return false
	}
	switch cfg.Mode {
	case "pipeline", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PG = pgClient
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Ticks = postgres.NewTickStore(pool)
	deps.Status = postgres.NewStatusStore(pool)
	deps.Leaderboards = postgres.NewLeaderboardStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.ResultCache = redis.NewResultCache(redisClient)

	// --- Local snapshot buckets ---
	deps.Buckets = snapshot.NewStore(cfg.Pipeline.SnapshotDir, logger)

	// --- Upstream Gamma API ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	// --- S3 cold storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	return deps, cleanup, nil
}
