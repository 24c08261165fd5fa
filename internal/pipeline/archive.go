package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/snapshot"
)

// ArchiveSource lists compressed bucket files and removes archived ones.
type ArchiveSource interface {
	ListCompressed() ([]snapshot.BucketFile, error)
	Remove(name string) error
}

// ArchiveStage uploads compressed bucket files to cold storage. Objects that
// already exist are skipped, so re-running after a partial upload resumes
// where it stopped.
type ArchiveStage struct {
	buckets     ArchiveSource
	writer      domain.BlobWriter
	reader      domain.BlobReader
	prefix      string
	deleteLocal bool
	logger      *slog.Logger
}

// NewArchiveStage creates the archive stage.
func NewArchiveStage(
	buckets ArchiveSource,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	prefix string,
	deleteLocal bool,
	logger *slog.Logger,
) *ArchiveStage {
	return &ArchiveStage{
		buckets:     buckets,
		writer:      writer,
		reader:      reader,
		prefix:      prefix,
		deleteLocal: deleteLocal,
		logger:      logger.With("stage", "archive"),
	}
}

// Run uploads every compressed bucket not yet present in cold storage,
// optionally removing the local copy after a successful upload.
func (s *ArchiveStage) Run(ctx context.Context) error {
	files, err := s.buckets.ListCompressed()
	if err != nil {
		return fmt.Errorf("listing compressed buckets: %w", err)
	}

	var uploaded, skipped int
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("archive cancelled: %w", err)
		}

		// Partition by bucket month so listings stay cheap as history grows.
		key := path.Join(s.prefix, f.BucketTS.UTC().Format("2006/01"), f.Name)

		exists, err := s.reader.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("checking %s: %w", key, err)
		}
		if exists {
			skipped++
			if s.deleteLocal {
				if err := s.buckets.Remove(f.Name); err != nil {
					s.logger.Warn("could not remove archived bucket",
						slog.String("file", f.Name),
						slog.String("error", err.Error()),
					)
				}
			}
			continue
		}

		if err := s.upload(ctx, f, key); err != nil {
			return err
		}
		uploaded++

		if s.deleteLocal {
			if err := s.buckets.Remove(f.Name); err != nil {
				s.logger.Warn("could not remove archived bucket",
					slog.String("file", f.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.Info("archive complete",
		slog.Int("uploaded", uploaded),
		slog.Int("skipped", skipped),
	)
	return nil
}

func (s *ArchiveStage) upload(ctx context.Context, f snapshot.BucketFile, key string) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer src.Close()

	if err := s.writer.Put(ctx, key, src, "application/gzip"); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	s.logger.Info("bucket archived",
		slog.String("file", f.Name),
		slog.String("key", key),
	)
	return nil
}
