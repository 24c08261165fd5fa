package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/snapshot"
)

type memBlobStore struct {
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}}
}

func (m *memBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (m *memBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			infos = append(infos, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return infos, nil
}

func (m *memBlobStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type diskArchiveSource struct {
	dir     string
	files   []snapshot.BucketFile
	removed []string
}

func (d *diskArchiveSource) ListCompressed() ([]snapshot.BucketFile, error) {
	return d.files, nil
}

func (d *diskArchiveSource) Remove(name string) error {
	d.removed = append(d.removed, name)
	return os.Remove(filepath.Join(d.dir, name))
}

func newDiskArchiveSource(t *testing.T, buckets map[string]time.Time) *diskArchiveSource {
	t.Helper()
	dir := t.TempDir()
	src := &diskArchiveSource{dir: dir}
	for name, ts := range buckets {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("gz-payload-"+name), 0o644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
		src.files = append(src.files, snapshot.BucketFile{Name: name, Path: path, BucketTS: ts})
	}
	return src
}

func TestArchiveStage_UploadsWithMonthPartition(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	src := newDiskArchiveSource(t, map[string]time.Time{
		"snapshots_2024-03-15T10-00-00.json.gz": ts,
	})
	blob := newMemBlobStore()

	stage := NewArchiveStage(src, blob, blob, "snapshots", false, discardLogger())
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	key := "snapshots/2024/03/snapshots_2024-03-15T10-00-00.json.gz"
	if _, ok := blob.objects[key]; !ok {
		t.Fatalf("object %s not uploaded; have %v", key, blob.objects)
	}
	if len(src.removed) != 0 {
		t.Errorf("removed %v without delete_local", src.removed)
	}
}

func TestArchiveStage_SkipsExistingObjects(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	name := "snapshots_2024-03-15T10-00-00.json.gz"
	src := newDiskArchiveSource(t, map[string]time.Time{name: ts})

	blob := newMemBlobStore()
	key := "snapshots/2024/03/" + name
	blob.objects[key] = []byte("already there")

	stage := NewArchiveStage(src, blob, blob, "snapshots", false, discardLogger())
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := string(blob.objects[key]); got != "already there" {
		t.Errorf("existing object overwritten: %q", got)
	}
}

func TestArchiveStage_DeleteLocalAfterUpload(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC)
	name := "snapshots_2024-03-15T10-15-00.json.gz"
	src := newDiskArchiveSource(t, map[string]time.Time{name: ts})
	blob := newMemBlobStore()

	stage := NewArchiveStage(src, blob, blob, "snapshots", true, discardLogger())
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(src.removed) != 1 || src.removed[0] != name {
		t.Errorf("removed = %v, want [%s]", src.removed, name)
	}
	if _, err := os.Stat(filepath.Join(src.dir, name)); !os.IsNotExist(err) {
		t.Errorf("local file still present")
	}
}
