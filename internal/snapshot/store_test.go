package snapshot

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func f64Ptr(f float64) *float64 { return &f }

func sampleSnaps(ts time.Time) []domain.Snapshot {
	return []domain.Snapshot{
		{MarketID: "m1", TS: ts, Probability: f64Ptr(0.4), Volume24hr: 100, Liquidity: 10},
		{MarketID: "m2", TS: ts, Probability: f64Ptr(0.6), Volume24hr: 200, Liquidity: 20},
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	name := FileName(ts)
	if name != "snapshots_2024-01-01T00-00-00.json" {
		t.Errorf("FileName = %q", name)
	}

	got, err := ParseFileName(name)
	if err != nil {
		t.Fatalf("ParseFileName: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("ParseFileName = %v, want %v", got, ts)
	}

	// Compressed names parse too.
	got, err = ParseFileName(name + ".gz")
	if err != nil {
		t.Fatalf("ParseFileName(.gz): %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("ParseFileName(.gz) = %v, want %v", got, ts)
	}

	if _, err := ParseFileName("notes.json"); err == nil {
		t.Error("ParseFileName accepted a non-bucket name")
	}
}

func TestWrite_IdempotentWithinBucket(t *testing.T) {
	store := NewStore(t.TempDir(), testLogger())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps := sampleSnaps(ts)

	written, total, err := store.Write(ts, ts.Add(time.Minute), snaps)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if written != 2 || total != 2 {
		t.Errorf("first write: written=%d total=%d, want 2/2", written, total)
	}

	// Second write of the same batch merges, not duplicates.
	written, total, err = store.Write(ts, ts.Add(2*time.Minute), snaps)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if written != 2 || total != 2 {
		t.Errorf("second write: written=%d total=%d, want 2/2", written, total)
	}

	bucket, err := store.Read(FileName(ts))
	if err != nil {
		t.Fatalf("read bucket: %v", err)
	}
	if bucket.Count != 2 || len(bucket.Snapshots) != 2 {
		t.Errorf("bucket count = %d / %d snapshots, want 2", bucket.Count, len(bucket.Snapshots))
	}
}

func TestWrite_MergesNewRecordsIntoExistingBucket(t *testing.T) {
	store := NewStore(t.TempDir(), testLogger())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, _, err := store.Write(ts, ts, sampleSnaps(ts)); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// A later run within the same bucket carries an updated m1 and a new m3.
	update := []domain.Snapshot{
		{MarketID: "m1", TS: ts, Probability: f64Ptr(0.45)},
		{MarketID: "m3", TS: ts, Probability: f64Ptr(0.9)},
	}
	_, total, err := store.Write(ts, ts.Add(5*time.Minute), update)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 (m1 overwritten, m3 added)", total)
	}

	bucket, err := store.Read(FileName(ts))
	if err != nil {
		t.Fatalf("read bucket: %v", err)
	}
	byID := map[string]domain.Snapshot{}
	for _, sn := range bucket.Snapshots {
		byID[sn.MarketID] = sn
	}
	if *byID["m1"].Probability != 0.45 {
		t.Errorf("m1 probability = %v, want last write 0.45", *byID["m1"].Probability)
	}
	if *byID["m2"].Probability != 0.6 {
		t.Errorf("m2 probability = %v, want original 0.6 preserved", *byID["m2"].Probability)
	}
}

func TestListUningested_CursorAndOrdering(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger())

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(15 * time.Minute)
	t3 := t1.Add(30 * time.Minute)

	// Written out of order on purpose.
	for _, ts := range []time.Time{t3, t1, t2} {
		if _, _, err := store.Write(ts, ts, sampleSnaps(ts)); err != nil {
			t.Fatalf("write %v: %v", ts, err)
		}
	}
	// A stray file without a bucket timestamp is skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := store.ListUningested(domain.IngestCursor{})
	if err != nil {
		t.Fatalf("ListUningested: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("len(files) = %d, want 3", len(files))
	}
	for i, want := range []time.Time{t1, t2, t3} {
		if !files[i].BucketTS.Equal(want) {
			t.Errorf("files[%d].BucketTS = %v, want %v", i, files[i].BucketTS, want)
		}
	}

	// Cursor excludes everything at or before its bucket timestamp.
	files, err = store.ListUningested(domain.IngestCursor{File: FileName(t2), BucketTS: t2})
	if err != nil {
		t.Fatalf("ListUningested with cursor: %v", err)
	}
	if len(files) != 1 || !files[0].BucketTS.Equal(t3) {
		t.Errorf("files after cursor = %+v, want only t3", files)
	}
}

func TestCompressAll(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, _, err := store.Write(ts, ts, sampleSnaps(ts)); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := store.CompressAll()
	if err != nil {
		t.Fatalf("CompressAll: %v", err)
	}
	if n != 1 {
		t.Errorf("compressed = %d, want 1", n)
	}

	if _, err := os.Stat(filepath.Join(dir, FileName(ts))); !os.IsNotExist(err) {
		t.Error("uncompressed bucket should be removed after compression")
	}

	// The compressed bucket reads back intact.
	bucket, err := store.Read(FileName(ts) + ".gz")
	if err != nil {
		t.Fatalf("read compressed bucket: %v", err)
	}
	if len(bucket.Snapshots) != 2 {
		t.Errorf("len(snapshots) = %d, want 2", len(bucket.Snapshots))
	}

	// Re-running with nothing left to compress is a no-op.
	n, err = store.CompressAll()
	if err != nil {
		t.Fatalf("second CompressAll: %v", err)
	}
	if n != 0 {
		t.Errorf("second run compressed = %d, want 0", n)
	}

	compressed, err := store.ListCompressed()
	if err != nil {
		t.Fatalf("ListCompressed: %v", err)
	}
	if len(compressed) != 1 || compressed[0].Name != FileName(ts)+".gz" {
		t.Errorf("ListCompressed = %+v", compressed)
	}
}

func TestCompress_SkipsWhenGzExists(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, _, err := store.Write(ts, ts, sampleSnaps(ts)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Simulate a previous run that compressed but did not remove the json.
	if err := os.WriteFile(filepath.Join(dir, FileName(ts)+".gz"), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := store.CompressAll()
	if err != nil {
		t.Fatalf("CompressAll: %v", err)
	}
	if n != 0 {
		t.Errorf("compressed = %d, want 0 (gz already present)", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName(ts)+".gz"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "existing" {
		t.Error("existing gz file was overwritten")
	}
}
