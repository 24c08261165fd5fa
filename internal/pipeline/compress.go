package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// BucketCompressor gzips processed bucket files in place.
type BucketCompressor interface {
	CompressAll() (int, error)
}

// CompressStage shrinks ingested bucket files so the snapshot directory
// stays bounded between archive runs.
type CompressStage struct {
	buckets BucketCompressor
	logger  *slog.Logger
}

// NewCompressStage creates the compress stage.
func NewCompressStage(buckets BucketCompressor, logger *slog.Logger) *CompressStage {
	return &CompressStage{
		buckets: buckets,
		logger:  logger.With("stage", "compress"),
	}
}

// Run compresses every uncompressed bucket file.
func (s *CompressStage) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("compress cancelled: %w", err)
	}

	n, err := s.buckets.CompressAll()
	if err != nil {
		return fmt.Errorf("compressing buckets: %w", err)
	}

	s.logger.Info("compress complete", slog.Int("compressed", n))
	return nil
}
