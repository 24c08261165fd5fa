package snapshot

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CompressAll gzips every uncompressed bucket file in place and removes the
// original once the compressed copy is verified non-empty. Buckets that
// already have a .gz sibling are skipped, so re-running after a partial
// failure is safe.
func (s *Store) CompressAll() (compressed int, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("snapshot: read dir %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		path := filepath.Join(s.dir, name)

		done, err := s.compressFile(path)
		if err != nil {
			return compressed, err
		}
		if done {
			compressed++
		}
	}
	return compressed, nil
}

// compressFile gzips one bucket file. Returns false when the file was
// skipped because its compressed form already exists.
func (s *Store) compressFile(path string) (bool, error) {
	gzPath := path + ".gz"

	if _, err := os.Stat(gzPath); err == nil {
		s.logger.Info("skip already compressed bucket", slog.String("file", filepath.Base(path)))
		return false, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.Create(gzPath)
	if err != nil {
		return false, fmt.Errorf("snapshot: create %s: %w", gzPath, err)
	}

	gz, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err != nil {
		dst.Close()
		return false, fmt.Errorf("snapshot: gzip writer: %w", err)
	}

	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		_ = os.Remove(gzPath)
		return false, fmt.Errorf("snapshot: compress %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		_ = os.Remove(gzPath)
		return false, fmt.Errorf("snapshot: finish %s: %w", gzPath, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(gzPath)
		return false, fmt.Errorf("snapshot: close %s: %w", gzPath, err)
	}

	info, err := os.Stat(gzPath)
	if err != nil {
		return false, fmt.Errorf("snapshot: stat %s: %w", gzPath, err)
	}
	if info.Size() == 0 {
		_ = os.Remove(gzPath)
		return false, fmt.Errorf("snapshot: compressed file is empty: %s", gzPath)
	}

	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("snapshot: remove %s: %w", path, err)
	}

	s.logger.Info("compressed bucket",
		slog.String("file", filepath.Base(path)),
		slog.Int64("gz_bytes", info.Size()),
	)
	return true, nil
}

// ListCompressed returns every compressed bucket file ordered by bucket
// timestamp, for the archive stage.
func (s *Store) ListCompressed() ([]BucketFile, error) {
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
		if entry.IsDir() || !strings.HasSuffix(name, ".json.gz") {
			continue
		}
		ts, err := ParseFileName(name)
		if err != nil {
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

// Remove deletes a bucket file by name. Used by the archive stage after a
// verified upload.
func (s *Store) Remove(name string) error {
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: remove %s: %w", name, err)
	}
	return nil
}
