package domain

import "time"

// PipelineStatus is the singleton status row for one named pipeline. Counters
// describe the most recent (or in-flight) run only: they are reset to zero
// when a run starts and incremented monotonically until it finishes.
//
// LastRunOK is tri-state: nil while a run is in flight, then true or false.
type PipelineStatus struct {
	PipelineName string    `json:"pipeline_name"`
	UpdatedAt    time.Time `json:"updated_at"`

	LastRunStartedAt  *time.Time `json:"last_run_started_at"`
	LastRunFinishedAt *time.Time `json:"last_run_finished_at"`
	LastRunOK         *bool      `json:"last_run_ok"`
	LastProcessingMS  *int64     `json:"last_processing_ms"`
	LastError         *string    `json:"last_error"`

	MarketsIngested int64 `json:"markets_ingested"`
	TicksUpserted   int64 `json:"ticks_upserted"`
	FilesIngested   int64 `json:"files_ingested"`

	LastIngestedSnapshotFile *string    `json:"last_ingested_snapshot_file"`
	LastIngestedSnapshotTS   *time.Time `json:"last_ingested_snapshot_ts"`
}

// IngestCursor marks the last successfully ingested snapshot bucket. The
// bucket timestamp is the authoritative ordering key; the filename is kept
// for observability. Filenames happen to sort in time order too, but the
// cursor never relies on that.
type IngestCursor struct {
	File     string
	BucketTS time.Time
}

// Zero reports whether the cursor has never been advanced.
func (c IngestCursor) Zero() bool {
	return c.BucketTS.IsZero()
}

// Before reports whether c points at a strictly older bucket than other.
func (c IngestCursor) Before(other IngestCursor) bool {
	return c.BucketTS.Before(other.BucketTS)
}

// Cursor extracts the ingest cursor from a status row. Returns a zero cursor
// when no bucket has ever been ingested.
func (s PipelineStatus) Cursor() IngestCursor {
	var c IngestCursor
	if s.LastIngestedSnapshotFile != nil {
		c.File = *s.LastIngestedSnapshotFile
	}
	if s.LastIngestedSnapshotTS != nil {
		c.BucketTS = *s.LastIngestedSnapshotTS
	}
	return c
}
