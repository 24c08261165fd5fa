package pipeline

import (
	"context"
	"testing"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/ingest"
	"github.com/acyclops/marketpulse/internal/platform/polymarket"
)

const overlapPage = `[
	{
		"id": "ev1", "title": "Weather", "slug": "weather", "active": true, "closed": false,
		"tags": [{"slug": "climate"}],
		"markets": [{
			"id": "m1", "question": "Will it rain?", "slug": "will-it-rain",
			"active": true, "closed": false,
			"outcomes": "[\"Yes\",\"No\"]", "outcomePrices": "[\"0.45\",\"0.55\"]",
			"volumeNum": 160000, "volume24hr": 1300, "liquidity": 900,
			"updatedAt": "2024-01-01T11:00:00Z"
		}]
	},
	{
		"id": "ev2", "title": "Politics", "slug": "politics", "active": true, "closed": false,
		"tags": [],
		"markets": [{
			"id": "m2", "question": "Will the bill pass?", "slug": "bill-pass",
			"active": true, "closed": false,
			"outcomes": "[\"Yes\",\"No\"]", "outcomePrices": "[\"0.60\",\"0.40\"]",
			"volumeNum": 500000, "volume24hr": 9000, "liquidity": 4000,
			"updatedAt": "2024-01-01T10:30:00Z"
		}]
	}
]`

func TestFetchStage_PaginatesUntilShortPage(t *testing.T) {
	// pageLimit 1 forces pagination; the second page is short and stops it.
	fetcher := &fakeFetcher{pages: [][]polymarket.APIEvent{
		eventPage(t, onePage),
		eventPage(t, `[]`),
	}}
	writer := &fakeBucketWriter{}
	stage := NewFetchStage(fetcher, ingest.NewNormalizer([]string{"sports"}), writer, 1, 100000, discardLogger())

	res, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", fetcher.calls)
	}
	if len(res.Records) != 1 || res.Records[0].MarketID != "m1" {
		t.Errorf("records = %+v, want single m1", res.Records)
	}
	if writer.writes != 1 {
		t.Errorf("bucket writes = %d, want 1", writer.writes)
	}
	if !res.BucketTS.Equal(domain.BucketTime(res.BucketTS)) {
		t.Errorf("bucket ts %v is not aligned", res.BucketTS)
	}
}

func TestFetchStage_DedupesAcrossPages(t *testing.T) {
	// m1 appears on both pages; the second sighting is newer and must win.
	fetcher := &fakeFetcher{pages: [][]polymarket.APIEvent{
		eventPage(t, onePage),
		eventPage(t, overlapPage),
	}}
	writer := &fakeBucketWriter{}
	// pageLimit 1 keeps both pages full-size so pagination continues, then
	// the empty third page stops it.
	fetcher.pages = append(fetcher.pages, nil)
	stage := NewFetchStage(fetcher, ingest.NewNormalizer(nil), writer, 1, 100000, discardLogger())

	res, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	byID := map[string]domain.MarketRecord{}
	for _, r := range res.Records {
		byID[r.MarketID] = r
	}
	if len(byID) != 2 {
		t.Fatalf("got %d distinct markets, want 2 (m1 deduped)", len(byID))
	}

	m1 := byID["m1"]
	if m1.Probability == nil || *m1.Probability != 0.45 {
		t.Errorf("m1 probability = %v, want newer 0.45", m1.Probability)
	}
	if m1.Volume != 160000 {
		t.Errorf("m1 volume = %v, want newer 160000", m1.Volume)
	}

	// The snapshot bucket carries both markets.
	if len(writer.snaps) != 2 {
		t.Errorf("bucket snapshots = %d, want 2", len(writer.snaps))
	}
}
