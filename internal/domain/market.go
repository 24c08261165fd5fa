// Package domain defines the core types and interfaces shared by the
// ingestion pipeline, the stores, and the analytics layer. Concrete
// implementations live in internal/store, internal/cache, and internal/blob.
package domain

import "time"

// MarketRecord is the canonical form of one Polymarket market as produced by
// the Snapshot Normalizer. Pointer fields are genuinely optional upstream;
// nil means the provider did not send the field, which matters to the merge
// rules (an absent field never overwrites a known one).
type MarketRecord struct {
	MarketID string `json:"marketId"`
	EventID  string `json:"eventId"`

	Question   *string  `json:"question"`
	Slug       *string  `json:"slug"`
	EventSlug  *string  `json:"eventSlug"`
	EventTitle *string  `json:"eventTitle"`
	Icon       *string  `json:"icon"`
	Tags       []string `json:"tags"`

	Volume      float64  `json:"currentVolume"`
	Volume24hr  float64  `json:"currentVolume24hr"`
	Liquidity   float64  `json:"currentLiquidity"`
	Probability *float64 `json:"currentProbability"`

	Active bool `json:"active"`
	Closed bool `json:"closed"`

	CreatedAt *time.Time `json:"createdAt"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// Freshness returns the record's update timestamp for merge ordering.
// A missing or unparsable updatedAt is treated as the epoch, so any record
// with a real timestamp wins against it.
func (m MarketRecord) Freshness() time.Time {
	if m.UpdatedAt == nil {
		return time.Time{}
	}
	return *m.UpdatedAt
}

// SearchResult is one row of a free-text market search.
type SearchResult struct {
	MarketID string  `json:"market_id"`
	Question *string `json:"question"`
	Slug     *string `json:"slug"`
}
