// Package snapshot persists time-bucketed snapshot files on local disk and
// compresses processed buckets in place.
package snapshot

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
)

const (
	filePrefix = "snapshots_"
	fileSuffix = ".json"
	tsLayout   = "2006-01-02T15-04-05"
)

// FileName returns the bucket filename for an aligned timestamp, e.g.
// "snapshots_2024-01-01T00-00-00.json".
func FileName(ts time.Time) string {
	return filePrefix + ts.UTC().Format(tsLayout) + fileSuffix
}

// ParseFileName extracts the bucket timestamp from a bucket filename.
func ParseFileName(name string) (time.Time, error) {
	base := strings.TrimSuffix(name, ".gz")
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileSuffix) {
		return time.Time{}, fmt.Errorf("snapshot: %q is not a bucket file", name)
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileSuffix)
	ts, err := time.Parse(tsLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot: parse bucket timestamp in %q: %w", name, err)
	}
	return ts.UTC(), nil
}

// BucketFile describes one on-disk bucket awaiting ingestion.
type BucketFile struct {
	Name     string
	Path     string
	BucketTS time.Time
}

// Store reads and writes bucket files under a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a Store rooted at dir. The directory is created on first
// write.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With(slog.String("component", "snapshot_store")),
	}
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Write persists snaps into the bucket file for bucketTS. The write is
// idempotent: if the bucket file already exists its records are loaded and
// the incoming ones merged in, keyed by (marketId, ts) with last write wins.
// It returns how many records the caller contributed and the bucket's total
// after the merge.
func (s *Store) Write(bucketTS, fetchedAt time.Time, snaps []domain.Snapshot) (written, total int, err error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("snapshot: create dir %s: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, FileName(bucketTS))

	existing, err := s.readBucketFile(path)
	if err != nil && !os.IsNotExist(err) {
		// An unreadable bucket is rebuilt from the incoming records rather
		// than failing the run; the old contents are already corrupt.
		s.logger.Warn("unreadable bucket file, rewriting",
			slog.String("file", filepath.Base(path)),
			slog.String("error", err.Error()),
		)
		existing = domain.SnapshotBucket{}
	}

	key := func(sn domain.Snapshot) string {
		return sn.MarketID + "|" + sn.TS.UTC().Format(time.RFC3339)
	}

	index := make(map[string]int, len(existing.Snapshots)+len(snaps))
	merged := make([]domain.Snapshot, 0, len(existing.Snapshots)+len(snaps))
	for _, sn := range existing.Snapshots {
		index[key(sn)] = len(merged)
		merged = append(merged, sn)
	}
	for _, sn := range snaps {
		if i, ok := index[key(sn)]; ok {
			merged[i] = sn
			continue
		}
		index[key(sn)] = len(merged)
		merged = append(merged, sn)
	}

	bucket := domain.SnapshotBucket{
		TS:        bucketTS.UTC(),
		FetchedAt: fetchedAt.UTC(),
		Count:     len(merged),
		Snapshots: merged,
	}

	data, err := json.MarshalIndent(bucket, "", "  ")
	if err != nil {
		return 0, 0, fmt.Errorf("snapshot: marshal bucket %s: %w", FileName(bucketTS), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, 0, fmt.Errorf("snapshot: write bucket %s: %w", path, err)
	}

	return len(snaps), len(merged), nil
}

// Read loads a bucket file by name. Files ending in .gz are decompressed
// transparently.
func (s *Store) Read(name string) (domain.SnapshotBucket, error) {
	return s.readBucketFile(filepath.Join(s.dir, name))
}

func (s *Store) readBucketFile(path string) (domain.SnapshotBucket, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.SnapshotBucket{}, err
	}
	defer f.Close()

	var data []byte
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return domain.SnapshotBucket{}, fmt.Errorf("snapshot: gunzip %s: %w", path, err)
		}
		defer gz.Close()
		data, err = io.ReadAll(gz)
		if err != nil {
			return domain.SnapshotBucket{}, fmt.Errorf("snapshot: read %s: %w", path, err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return domain.SnapshotBucket{}, err
		}
	}

	var bucket domain.SnapshotBucket
	if err := json.Unmarshal(data, &bucket); err != nil {
		return domain.SnapshotBucket{}, fmt.Errorf("%w: %s: %v", domain.ErrBadBucket, filepath.Base(path), err)
	}
	if bucket.TS.IsZero() || bucket.FetchedAt.IsZero() {
		return domain.SnapshotBucket{}, fmt.Errorf("%w: %s: missing ts or fetchedAt", domain.ErrBadBucket, filepath.Base(path))
	}
	return bucket, nil
}

// ListUningested returns the uncompressed bucket files strictly newer than
// the cursor, ordered by bucket timestamp. Files whose names do not carry a
// parseable bucket timestamp are logged and skipped.
func (s *Store) ListUningested(cursor domain.IngestCursor) ([]BucketFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: read dir %s: %w", s.dir, err)
	}

	var files []BucketFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ts, err := ParseFileName(name)
		if err != nil {
			s.logger.Warn("skipping file without bucket timestamp",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !cursor.Zero() && !ts.After(cursor.BucketTS) {
			continue
		}
		files = append(files, BucketFile{
			Name:     name,
			Path:     filepath.Join(s.dir, name),
			BucketTS: ts,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].BucketTS.Before(files[j].BucketTS)
	})
	return files, nil
}
