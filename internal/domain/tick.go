package domain

import "time"

// Tick is the durable form of a Snapshot, stored in the market_ticks table
// with a uniqueness constraint on (market_id, ts). Replays of the same bucket
// overwrite rather than duplicate.
type Tick struct {
	MarketID    string    `json:"market_id"`
	TS          time.Time `json:"ts"`
	FetchedAt   time.Time `json:"fetched_at"`
	Probability *float64  `json:"probability"`
	Volume24hr  *float64  `json:"volume24hr"`
	Liquidity   *float64  `json:"liquidity"`
}

// TimeseriesPoint is one ordered observation returned to the query surface.
type TimeseriesPoint struct {
	TS          time.Time `json:"ts"`
	Probability *float64  `json:"probability"`
	Volume24hr  *float64  `json:"volume24hr"`
	Liquidity   *float64  `json:"liquidity"`
}

// TickIngestResult reports the outcome of ingesting one bucket file.
type TickIngestResult struct {
	File     string
	BucketTS time.Time
	Upserted int64
	Skipped  int64
}
