package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/ingest"
	"github.com/acyclops/marketpulse/internal/platform/polymarket"
	"github.com/acyclops/marketpulse/internal/snapshot"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLock implements domain.LockManager.
type fakeLock struct {
	held     bool
	acquires int
	unlocks  int
}

func (f *fakeLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.acquires++
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() { f.unlocks++ }, nil
}

// fakeStatus implements domain.StatusStore and records the call sequence.
type fakeStatus struct {
	status domain.PipelineStatus

	ensured    int
	started    int
	finished   int
	finishedOK *bool
	finishErr  error

	marketsIngested []int64
	cursorAdvances  []domain.IngestCursor
	ticksTotal      int64
}

func (f *fakeStatus) Ensure(ctx context.Context, pipeline string) error {
	f.ensured++
	return nil
}

func (f *fakeStatus) Get(ctx context.Context, pipeline string) (domain.PipelineStatus, error) {
	return f.status, nil
}

func (f *fakeStatus) StartRun(ctx context.Context, pipeline string) error {
	f.started++
	return nil
}

func (f *fakeStatus) FinishRun(ctx context.Context, pipeline string, ok bool, elapsedMS int64, runErr error) error {
	f.finished++
	f.finishedOK = &ok
	f.finishErr = runErr
	return nil
}

func (f *fakeStatus) SetMarketsIngested(ctx context.Context, pipeline string, n int64) error {
	f.marketsIngested = append(f.marketsIngested, n)
	return nil
}

func (f *fakeStatus) AdvanceCursor(ctx context.Context, pipeline string, cur domain.IngestCursor, ticks int64) error {
	f.cursorAdvances = append(f.cursorAdvances, cur)
	f.ticksTotal += ticks
	if cur.File != "" {
		file := cur.File
		ts := cur.BucketTS
		f.status.LastIngestedSnapshotFile = &file
		f.status.LastIngestedSnapshotTS = &ts
	}
	return nil
}

// fakeFetcher serves canned event pages.
type fakeFetcher struct {
	pages [][]polymarket.APIEvent
	calls int
}

func (f *fakeFetcher) GetEvents(ctx context.Context, limit, offset int, volumeMin float64) ([]polymarket.APIEvent, error) {
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

// fakeBucketWriter implements BucketWriter.
type fakeBucketWriter struct {
	writes int
	snaps  []domain.Snapshot
	ts     time.Time
}

func (f *fakeBucketWriter) Write(bucketTS, fetchedAt time.Time, snaps []domain.Snapshot) (int, int, error) {
	f.writes++
	f.snaps = snaps
	f.ts = bucketTS
	return len(snaps), len(snaps), nil
}

// fakeRegistry implements domain.MarketStore.
type fakeRegistry struct {
	existing []domain.MarketRecord
	upserted []domain.MarketRecord
}

func (f *fakeRegistry) ListAll(ctx context.Context) ([]domain.MarketRecord, error) {
	return f.existing, nil
}

func (f *fakeRegistry) UpsertBatch(ctx context.Context, recs []domain.MarketRecord) (int64, error) {
	f.upserted = recs
	return int64(len(recs)), nil
}

func (f *fakeRegistry) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	return nil, nil
}

func (f *fakeRegistry) Count(ctx context.Context) (int64, error) {
	return int64(len(f.existing)), nil
}

// fakeBuckets implements BucketSource, BucketCompressor, and ArchiveSource.
type fakeBuckets struct {
	files      []snapshot.BucketFile
	buckets    map[string]domain.SnapshotBucket
	readErrs   map[string]error
	compressed int
	removed    []string
}

func (f *fakeBuckets) ListUningested(cursor domain.IngestCursor) ([]snapshot.BucketFile, error) {
	var out []snapshot.BucketFile
	for _, bf := range f.files {
		if bf.BucketTS.After(cursor.BucketTS) {
			out = append(out, bf)
		}
	}
	return out, nil
}

func (f *fakeBuckets) Read(name string) (domain.SnapshotBucket, error) {
	if err := f.readErrs[name]; err != nil {
		return domain.SnapshotBucket{}, err
	}
	return f.buckets[name], nil
}

func (f *fakeBuckets) CompressAll() (int, error) {
	return f.compressed, nil
}

func (f *fakeBuckets) ListCompressed() ([]snapshot.BucketFile, error) {
	return nil, nil
}

func (f *fakeBuckets) Remove(name string) error {
	f.removed = append(f.removed, name)
	return nil
}

// fakeTicks implements domain.TickStore.
type fakeTicks struct {
	results map[string]domain.TickIngestResult
	errs    map[string]error
}

func (f *fakeTicks) UpsertBucket(ctx context.Context, bucket domain.SnapshotBucket) (domain.TickIngestResult, error) {
	key := bucket.TS.Format(time.RFC3339)
	if err := f.errs[key]; err != nil {
		return domain.TickIngestResult{}, err
	}
	if res, ok := f.results[key]; ok {
		return res, nil
	}
	return domain.TickIngestResult{BucketTS: bucket.TS, Upserted: int64(len(bucket.Snapshots))}, nil
}

func (f *fakeTicks) Timeseries(ctx context.Context, slug string, window domain.Window) ([]domain.TimeseriesPoint, error) {
	return nil, nil
}

func eventPage(t *testing.T, raw string) []polymarket.APIEvent {
	t.Helper()
	var events []polymarket.APIEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		t.Fatalf("unmarshal test events: %v", err)
	}
	return events
}

const onePage = `[
	{
		"id": "ev1", "title": "Weather", "slug": "weather", "active": true, "closed": false,
		"tags": [{"slug": "climate"}],
		"markets": [{
			"id": "m1", "question": "Will it rain?", "slug": "will-it-rain",
			"active": true, "closed": false,
			"outcomes": "[\"Yes\",\"No\"]", "outcomePrices": "[\"0.42\",\"0.58\"]",
			"volumeNum": 150000, "volume24hr": 1200, "liquidity": 800,
			"updatedAt": "2024-01-01T10:00:00Z"
		}]
	}
]`

func newTestRunner(lock *fakeLock, status *fakeStatus, buckets *fakeBuckets, ticks *fakeTicks) *Runner {
	logger := discardLogger()
	norm := ingest.NewNormalizer([]string{"sports"})

	fetch := NewFetchStage(
		&fakeFetcher{pages: [][]polymarket.APIEvent{}},
		norm, &fakeBucketWriter{}, 20, 100000, logger,
	)
	master := NewMasterIngestStage(&fakeRegistry{}, status, "test_pipeline", logger)
	tickStage := NewTickIngestStage(buckets, ticks, status, "test_pipeline", logger)
	squeeze := NewCompressStage(buckets, logger)

	return NewRunner("test_pipeline", lock, 10*time.Minute, status,
		fetch, master, tickStage, squeeze, nil, logger)
}

func TestRunner_SkipsWhenLockHeld(t *testing.T) {
	lock := &fakeLock{held: true}
	status := &fakeStatus{}
	runner := newTestRunner(lock, status, &fakeBuckets{}, &fakeTicks{})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("skip should not be an error: %v", err)
	}

	if runner.State() != StateSkipped {
		t.Errorf("state = %q, want %q", runner.State(), StateSkipped)
	}
	if status.started != 0 || status.finished != 0 {
		t.Errorf("skip must not mutate run status: started=%d finished=%d", status.started, status.finished)
	}
	if lock.unlocks != 0 {
		t.Errorf("nothing to unlock on skip, got %d unlocks", lock.unlocks)
	}
}

func TestRunner_SuccessfulRun(t *testing.T) {
	lock := &fakeLock{}
	status := &fakeStatus{}
	runner := newTestRunner(lock, status, &fakeBuckets{}, &fakeTicks{})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if runner.State() != StateSucceeded {
		t.Errorf("state = %q, want %q", runner.State(), StateSucceeded)
	}
	if status.ensured != 1 || status.started != 1 || status.finished != 1 {
		t.Errorf("status calls: ensured=%d started=%d finished=%d, want 1 each",
			status.ensured, status.started, status.finished)
	}
	if status.finishedOK == nil || !*status.finishedOK {
		t.Error("run should finish with ok=true")
	}
	if lock.unlocks != 1 {
		t.Errorf("unlocks = %d, want 1", lock.unlocks)
	}
}

func TestRunner_StageFailureRecordsError(t *testing.T) {
	lock := &fakeLock{}
	status := &fakeStatus{}

	ts := domain.BucketTime(time.Now())
	name := snapshot.FileName(ts)
	buckets := &fakeBuckets{
		files:    []snapshot.BucketFile{{Name: name, BucketTS: ts}},
		buckets:  map[string]domain.SnapshotBucket{},
		readErrs: map[string]error{name: errors.New("corrupt envelope")},
	}
	runner := newTestRunner(lock, status, buckets, &fakeTicks{})

	err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected the run to fail")
	}

	if runner.State() != StateFailed {
		t.Errorf("state = %q, want %q", runner.State(), StateFailed)
	}
	if status.finishedOK == nil || *status.finishedOK {
		t.Error("run should finish with ok=false")
	}
	if status.finishErr == nil {
		t.Error("terminal status should carry the run error")
	}
	if lock.unlocks != 1 {
		t.Errorf("lock must be released after a failed run, unlocks = %d", lock.unlocks)
	}
}

// panickyTicks implements domain.TickStore and panics on every upsert.
type panickyTicks struct{}

func (panickyTicks) UpsertBucket(ctx context.Context, bucket domain.SnapshotBucket) (domain.TickIngestResult, error) {
	panic("tick sink exploded")
}

func (panickyTicks) Timeseries(ctx context.Context, slug string, window domain.Window) ([]domain.TimeseriesPoint, error) {
	return nil, nil
}

func TestRunner_StagePanicStillFinishesRun(t *testing.T) {
	lock := &fakeLock{}
	status := &fakeStatus{}

	ts := domain.BucketTime(time.Now())
	name := snapshot.FileName(ts)
	buckets := &fakeBuckets{
		files:   []snapshot.BucketFile{{Name: name, BucketTS: ts}},
		buckets: map[string]domain.SnapshotBucket{name: {TS: ts, FetchedAt: ts, Count: 0}},
	}

	logger := discardLogger()
	norm := ingest.NewNormalizer(nil)
	fetch := NewFetchStage(&fakeFetcher{}, norm, &fakeBucketWriter{}, 20, 100000, logger)
	master := NewMasterIngestStage(&fakeRegistry{}, status, "test_pipeline", logger)
	tickStage := NewTickIngestStage(buckets, panickyTicks{}, status, "test_pipeline", logger)
	squeeze := NewCompressStage(buckets, logger)
	runner := NewRunner("test_pipeline", lock, 10*time.Minute, status,
		fetch, master, tickStage, squeeze, nil, logger)

	err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("a panicking stage must surface as a run error")
	}

	if status.started != 1 || status.finished != 1 {
		t.Errorf("status calls: started=%d finished=%d, want 1 each", status.started, status.finished)
	}
	if status.finishedOK == nil || *status.finishedOK {
		t.Error("run should finish with ok=false")
	}
	if status.finishErr == nil {
		t.Error("terminal status should carry the panic as an error")
	}
	if runner.State() != StateFailed {
		t.Errorf("state = %q, want %q", runner.State(), StateFailed)
	}
	if lock.unlocks != 1 {
		t.Errorf("lock must still be released, unlocks = %d", lock.unlocks)
	}
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	s := NewScheduler(nil, time.Hour, discardLogger())

	if !s.Trigger() {
		t.Error("first trigger should be accepted")
	}
	if s.Trigger() {
		t.Error("second trigger should coalesce into the pending one")
	}
}
