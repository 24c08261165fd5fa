// Package pipeline implements the ingestion run: fetch, master ingest, tick
// ingest, compression, and archival, sequenced by a lock-guarded runner.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/ingest"
	"github.com/acyclops/marketpulse/internal/platform/polymarket"
)

// EventFetcher retrieves event pages from the upstream provider.
type EventFetcher interface {
	GetEvents(ctx context.Context, limit, offset int, volumeMin float64) ([]polymarket.APIEvent, error)
}

// BucketWriter persists one bucket's snapshots, merging with any earlier
// write to the same bucket.
type BucketWriter interface {
	Write(bucketTS, fetchedAt time.Time, snaps []domain.Snapshot) (written, total int, err error)
}

// FetchResult carries what a fetch run produced: the deduplicated records
// for the master ingest stage plus bucket accounting.
type FetchResult struct {
	Records  []domain.MarketRecord
	BucketTS time.Time
	Written  int
	Total    int
}

// FetchStage pages through the provider's event feed, flattens and filters
// the markets, and writes the snapshot bucket for the current interval.
type FetchStage struct {
	fetcher    EventFetcher
	normalizer *ingest.Normalizer
	buckets    BucketWriter
	pageLimit  int
	volumeMin  float64
	logger     *slog.Logger
}

// NewFetchStage creates the fetch stage.
func NewFetchStage(
	fetcher EventFetcher,
	normalizer *ingest.Normalizer,
	buckets BucketWriter,
	pageLimit int,
	volumeMin float64,
	logger *slog.Logger,
) *FetchStage {
	return &FetchStage{
		fetcher:    fetcher,
		normalizer: normalizer,
		buckets:    buckets,
		pageLimit:  pageLimit,
		volumeMin:  volumeMin,
		logger:     logger.With("stage", "fetch"),
	}
}

// Run paginates until a short page, dedupes across pages by market id, and
// writes the aligned snapshot bucket. Events overlapping two pages resolve
// through the freshness merge, so pagination drift never duplicates a market.
func (s *FetchStage) Run(ctx context.Context) (FetchResult, error) {
	fetchedAt := time.Now().UTC()
	bucketTS := domain.BucketTime(fetchedAt)

	var records []domain.MarketRecord
	offset := 0
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return FetchResult{}, fmt.Errorf("fetch cancelled: %w", err)
		}

		events, err := s.fetcher.GetEvents(ctx, s.pageLimit, offset, s.volumeMin)
		if err != nil {
			return FetchResult{}, fmt.Errorf("fetching events at offset %d: %w", offset, err)
		}
		pages++

		page := s.normalizer.FlattenEvents(events)
		records = ingest.Merge(records, page)

		s.logger.Debug("fetched event page",
			slog.Int("offset", offset),
			slog.Int("events", len(events)),
			slog.Int("markets", len(page)),
		)

		if len(events) < s.pageLimit {
			break
		}
		offset += s.pageLimit
	}

	snaps := s.normalizer.Snapshots(records, bucketTS)

	written, total, err := s.buckets.Write(bucketTS, fetchedAt, snaps)
	if err != nil {
		return FetchResult{}, fmt.Errorf("writing snapshot bucket: %w", err)
	}

	s.logger.Info("fetch complete",
		slog.Int("pages", pages),
		slog.Int("markets", len(records)),
		slog.Int("snapshots_written", written),
		slog.Int("bucket_total", total),
		slog.Time("bucket_ts", bucketTS),
	)

	return FetchResult{
		Records:  records,
		BucketTS: bucketTS,
		Written:  written,
		Total:    total,
	}, nil
}
