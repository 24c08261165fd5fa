// Package ingest implements the Snapshot Normalizer and the Merge Engine:
// the pure transformation steps between the raw Gamma feed and the stores.
package ingest

import "github.com/acyclops/marketpulse/internal/domain"

// Merge merges incoming records into existing, producing exactly one record
// per market id. It is used both to dedupe a single fetch batch (existing =
// nil; overlapping pagination pages can repeat a market) and to merge a
// deduped batch into the Master Registry.
//
// Pairwise rule: the record with the greater updatedAt wins field-by-field
// for fields it carries; fields it lacks fall back to the other record. On a
// tie (or when both timestamps are unparsable, which normalizes to the
// epoch) the existing record's present fields are kept and the incoming one
// only fills gaps. The upstream feed is not guaranteed monotonic per poll,
// so a stale page must never erase fresher data.
//
// Record order is stable: existing records first, then first-seen incoming.
func Merge(existing, incoming []domain.MarketRecord) []domain.MarketRecord {
	index := make(map[string]int, len(existing)+len(incoming))
	out := make([]domain.MarketRecord, 0, len(existing)+len(incoming))

	for _, m := range existing {
		if m.MarketID == "" {
			continue
		}
		if i, ok := index[m.MarketID]; ok {
			out[i] = mergePair(out[i], m)
			continue
		}
		index[m.MarketID] = len(out)
		out = append(out, m)
	}

	for _, m := range incoming {
		if m.MarketID == "" {
			continue
		}
		i, ok := index[m.MarketID]
		if !ok {
			index[m.MarketID] = len(out)
			out = append(out, m)
			continue
		}
		out[i] = mergePair(out[i], m)
	}

	return out
}

// mergePair resolves two records sharing a market id. The fresher record is
// overlaid on the other. On a tie (equal or both-missing updatedAt) prev's
// non-nil fields win and curr only fills gaps; curr must beat prev strictly
// to take precedence.
func mergePair(prev, curr domain.MarketRecord) domain.MarketRecord {
	if curr.Freshness().After(prev.Freshness()) {
		return overlay(prev, curr)
	}
	return overlay(curr, prev)
}

// overlay applies every present field of top onto base. Canonical scalar
// fields (volumes, liquidity, lifecycle flags) are always present on a
// normalized record, so top always wins those; pointer fields and tags only
// transfer when non-nil.
func overlay(base, top domain.MarketRecord) domain.MarketRecord {
	out := base

	if top.MarketID != "" {
		out.MarketID = top.MarketID
	}
	if top.EventID != "" {
		out.EventID = top.EventID
	}

	if top.Question != nil {
		out.Question = top.Question
	}
	if top.Slug != nil {
		out.Slug = top.Slug
	}
	if top.EventSlug != nil {
		out.EventSlug = top.EventSlug
	}
	if top.EventTitle != nil {
		out.EventTitle = top.EventTitle
	}
	if top.Icon != nil {
		out.Icon = top.Icon
	}
	if top.Tags != nil {
		out.Tags = top.Tags
	}

	out.Volume = top.Volume
	out.Volume24hr = top.Volume24hr
	out.Liquidity = top.Liquidity
	if top.Probability != nil {
		out.Probability = top.Probability
	}

	out.Active = top.Active
	out.Closed = top.Closed

	if top.CreatedAt != nil {
		out.CreatedAt = top.CreatedAt
	}
	if top.StartDate != nil {
		out.StartDate = top.StartDate
	}
	if top.EndDate != nil {
		out.EndDate = top.EndDate
	}
	if top.UpdatedAt != nil {
		out.UpdatedAt = top.UpdatedAt
	}

	return out
}
