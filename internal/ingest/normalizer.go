package ingest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/acyclops/marketpulse/internal/domain"
	"github.com/acyclops/marketpulse/internal/platform/polymarket"
)

// Normalizer converts raw Gamma event/market shapes into canonical
// MarketRecords and Snapshots, applying the inclusion filters on the way.
type Normalizer struct {
	excludedTags map[string]struct{}
}

// NewNormalizer creates a Normalizer that drops markets whose event carries
// any of the given tag slugs (e.g. "sports").
func NewNormalizer(excludedTags []string) *Normalizer {
	ex := make(map[string]struct{}, len(excludedTags))
	for _, t := range excludedTags {
		ex[strings.ToLower(t)] = struct{}{}
	}
	return &Normalizer{excludedTags: ex}
}

// FlattenEvents converts a page of Gamma events into canonical market
// records. Filters, in order: excluded event category, missing market id,
// inactive or closed market.
func (n *Normalizer) FlattenEvents(events []polymarket.APIEvent) []domain.MarketRecord {
	var rows []domain.MarketRecord

	for i := range events {
		e := &events[i]

		tagSlugs := e.TagSlugs()
		if n.excluded(tagSlugs) {
			continue
		}

		for j := range e.Markets {
			m := &e.Markets[j]

			if m.ID == "" {
				continue
			}
			if !bool(m.Active) || m.Closed {
				continue
			}

			slug := m.Slug
			if slug == nil {
				slug = e.Slug
			}

			rows = append(rows, domain.MarketRecord{
				MarketID: m.ID,
				EventID:  e.ID,

				Question:   m.Question,
				Slug:       slug,
				EventSlug:  e.Slug,
				EventTitle: e.Title,
				Icon:       m.Icon,
				Tags:       tagSlugs,

				Volume:      firstNumber(m.VolumeNum, m.Volume),
				Volume24hr:  parseNumber(m.Volume24hr),
				Liquidity:   parseNumber(m.Liquidity),
				Probability: extractProbability(m),

				Active: bool(m.Active),
				Closed: m.Closed,

				CreatedAt: parseTimePtr(m.CreatedAt),
				StartDate: parseTimePtr(m.StartDate),
				EndDate:   parseTimePtr(m.EndDate),
				UpdatedAt: parseTimePtr(m.UpdatedAt),
			})
		}
	}

	return rows
}

// Snapshots projects canonical records into snapshot rows for the given
// bucket timestamp. Records without a parseable probability are dropped:
// they carry no analytical value.
func (n *Normalizer) Snapshots(recs []domain.MarketRecord, bucketTS time.Time) []domain.Snapshot {
	snaps := make([]domain.Snapshot, 0, len(recs))
	for _, m := range recs {
		if m.MarketID == "" || m.Probability == nil {
			continue
		}
		snaps = append(snaps, domain.Snapshot{
			MarketID:    m.MarketID,
			TS:          bucketTS,
			Probability: m.Probability,
			Volume24hr:  m.Volume24hr,
			Liquidity:   m.Liquidity,
		})
	}
	return snaps
}

func (n *Normalizer) excluded(tagSlugs []string) bool {
	for _, t := range tagSlugs {
		if _, ok := n.excludedTags[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}

// extractProbability finds the price of the "yes" outcome. The outcome and
// price lists are matched by index; a missing "yes" entry falls back to
// index 0. Returns nil when no finite price can be found, which is distinct
// from a price of zero.
func extractProbability(m *polymarket.APIMarket) *float64 {
	prices := m.OutcomePrices
	if len(prices) == 0 {
		return nil
	}

	idx := 0
	for i, o := range m.Outcomes {
		if strings.EqualFold(o, "yes") {
			idx = i
			break
		}
	}
	if idx >= len(prices) {
		return nil
	}

	p, err := strconv.ParseFloat(strings.TrimSpace(prices[idx]), 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return nil
	}
	return &p
}

// parseNumber coerces a raw JSON value (number, numeric string, or absent)
// to a finite float64, defaulting to 0.
func parseNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// firstNumber returns the first raw value that parses to a non-zero number,
// or 0 when none does.
func firstNumber(raws ...json.RawMessage) float64 {
	for _, raw := range raws {
		if f := parseNumber(raw); f != 0 {
			return f
		}
	}
	return 0
}

// parseTimePtr parses an RFC 3339 timestamp, returning nil on absence or
// parse failure so merge rules see the field as missing.
func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
