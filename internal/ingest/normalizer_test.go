package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/platform/polymarket"
)

// eventJSON builds an APIEvent from raw JSON so the flexible decoding paths
// (string-encoded arrays, string bools) are exercised the way the live feed
// exercises them.
func eventJSON(t *testing.T, raw string) polymarket.APIEvent {
	t.Helper()
	var e polymarket.APIEvent
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return e
}

func TestFlattenEvents_Filters(t *testing.T) {
	n := NewNormalizer([]string{"sports"})

	events := []polymarket.APIEvent{
		eventJSON(t, `{
			"id": "e1", "title": "Politics", "slug": "politics",
			"tags": [{"slug": "politics"}],
			"markets": [
				{"id": "m1", "question": "Q1", "active": true, "closed": false},
				{"id": "",   "question": "no id", "active": true, "closed": false},
				{"id": "m2", "question": "inactive", "active": false, "closed": false},
				{"id": "m3", "question": "closed", "active": true, "closed": true}
			]
		}`),
		eventJSON(t, `{
			"id": "e2", "title": "A Game", "slug": "a-game",
			"tags": [{"slug": "sports"}],
			"markets": [
				{"id": "m4", "question": "who wins", "active": true, "closed": false}
			]
		}`),
	}

	rows := n.FlattenEvents(events)
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].MarketID != "m1" {
		t.Errorf("MarketID = %q, want m1", rows[0].MarketID)
	}
	if rows[0].EventID != "e1" {
		t.Errorf("EventID = %q, want e1", rows[0].EventID)
	}
}

func TestFlattenEvents_StringEncodedShapes(t *testing.T) {
	n := NewNormalizer(nil)

	// The Gamma API often sends arrays as JSON-encoded strings, booleans as
	// strings, and numbers as numeric strings.
	e := eventJSON(t, `{
		"id": "e1", "slug": "ev",
		"markets": [{
			"id": "m1",
			"active": "true",
			"closed": false,
			"outcomes": "[\"No\",\"Yes\"]",
			"outcomePrices": "[\"0.35\",\"0.65\"]",
			"volumeNum": "12345.5",
			"volume24hr": 42,
			"liquidity": "not-a-number",
			"updatedAt": "2024-02-01T12:34:56Z"
		}]
	}`)

	rows := n.FlattenEvents([]polymarket.APIEvent{e})
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	m := rows[0]

	if m.Probability == nil || *m.Probability != 0.65 {
		t.Errorf("Probability = %v, want 0.65 (the Yes outcome)", m.Probability)
	}
	if m.Volume != 12345.5 {
		t.Errorf("Volume = %v, want 12345.5", m.Volume)
	}
	if m.Volume24hr != 42 {
		t.Errorf("Volume24hr = %v, want 42", m.Volume24hr)
	}
	if m.Liquidity != 0 {
		t.Errorf("Liquidity = %v, want 0 for unparsable input", m.Liquidity)
	}
	if m.UpdatedAt == nil || !m.UpdatedAt.Equal(time.Date(2024, 2, 1, 12, 34, 56, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v, want parsed timestamp", m.UpdatedAt)
	}
}

func TestExtractProbability(t *testing.T) {
	tests := []struct {
		name   string
		market string
		want   *float64
	}{
		{
			name:   "yes outcome case-insensitive",
			market: `{"id":"m","outcomes":["YES","No"],"outcomePrices":["0.7","0.3"]}`,
			want:   f64Ptr(0.7),
		},
		{
			name:   "no yes outcome defaults to index 0",
			market: `{"id":"m","outcomes":["Up","Down"],"outcomePrices":["0.55","0.45"]}`,
			want:   f64Ptr(0.55),
		},
		{
			name:   "empty price list",
			market: `{"id":"m","outcomes":["Yes","No"]}`,
			want:   nil,
		},
		{
			name:   "unparsable price",
			market: `{"id":"m","outcomes":["Yes"],"outcomePrices":["abc"]}`,
			want:   nil,
		},
		{
			name:   "yes index beyond prices",
			market: `{"id":"m","outcomes":["No","Yes"],"outcomePrices":["0.4"]}`,
			want:   nil,
		},
	}

	n := NewNormalizer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := eventJSON(t, `{"id":"e","markets":[`+injectActive(tt.market)+`]}`)
			rows := n.FlattenEvents([]polymarket.APIEvent{e})
			if len(rows) != 1 {
				t.Fatalf("len(rows) = %d, want 1", len(rows))
			}
			got := rows[0].Probability
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Probability = %v, want nil", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("Probability = %v, want %v", got, *tt.want)
			}
		})
	}
}

// injectActive adds the active flag so the market survives filtering.
func injectActive(market string) string {
	return market[:len(market)-1] + `,"active":true,"closed":false}`
}

func TestSnapshots(t *testing.T) {
	n := NewNormalizer(nil)
	bucket := domain.BucketTime(time.Date(2024, 1, 1, 0, 7, 33, 0, time.UTC))

	recs := []domain.MarketRecord{
		{MarketID: "m1", Probability: f64Ptr(0.5), Volume24hr: 10, Liquidity: 20},
		{MarketID: "m2", Probability: nil}, // no analytical value, dropped
		{MarketID: "", Probability: f64Ptr(0.1)},
	}

	snaps := n.Snapshots(recs, bucket)
	if len(snaps) != 1 {
		t.Fatalf("len(snaps) = %d, want 1", len(snaps))
	}
	s := snaps[0]
	if s.MarketID != "m1" || *s.Probability != 0.5 || s.Volume24hr != 10 || s.Liquidity != 20 {
		t.Errorf("snapshot = %+v, want m1 fields carried over", s)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !s.TS.Equal(want) {
		t.Errorf("TS = %v, want %v (15-minute floor)", s.TS, want)
	}
}
