package domain

import "time"

// SnapshotInterval is the bucket width that snapshot timestamps are aligned
// to. Repeated pipeline runs inside one interval land in the same bucket and
// merge instead of duplicating.
const SnapshotInterval = 15 * time.Minute

// Snapshot is one point-in-time reading of a market's metrics, aligned to a
// bucket boundary. Probability is nil when the provider did not expose a
// parseable price; such snapshots are dropped before persistence.
type Snapshot struct {
	MarketID    string    `json:"marketId"`
	TS          time.Time `json:"ts"`
	Probability *float64  `json:"probability"`
	Volume24hr  float64   `json:"volume24hr"`
	Liquidity   float64   `json:"liquidity"`
}

// SnapshotBucket is the on-disk envelope for one bucket file: every snapshot
// recorded for a single aligned timestamp, plus fetch metadata.
type SnapshotBucket struct {
	TS        time.Time  `json:"ts"`
	FetchedAt time.Time  `json:"fetchedAt"`
	Count     int        `json:"count"`
	Snapshots []Snapshot `json:"snapshots"`
}

// BucketTime rounds t down to the snapshot interval boundary in UTC.
func BucketTime(t time.Time) time.Time {
	return t.UTC().Truncate(SnapshotInterval)
}
