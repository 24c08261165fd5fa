package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexArray unmarshals a field the Gamma API sends either as a JSON array or
// as a JSON-encoded string containing an array (e.g. "[\"Yes\",\"No\"]").
// Anything else decodes to nil without error.
type flexArray []string

func (a *flexArray) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*a = direct
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*a = nil
		return nil
	}

	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		*a = nil
		return nil
	}
	var nested []string
	if err := json.Unmarshal([]byte(s), &nested); err != nil {
		*a = nil
		return nil
	}
	*a = nested
	return nil
}

// APITag is a category tag attached to a Gamma event.
type APITag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   *string     `json:"title"`
	Slug    *string     `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  bool        `json:"closed"`
	Tags    []APITag    `json:"tags"`
	Markets []APIMarket `json:"markets"`
}

// TagSlugs returns the non-empty tag slugs of the event.
func (e *APIEvent) TagSlugs() []string {
	slugs := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		if t.Slug != "" {
			slugs = append(slugs, t.Slug)
		}
	}
	return slugs
}

// APIMarket represents a market as returned inside a Gamma event. Numeric
// fields arrive in inconsistent shapes (numbers, numeric strings, missing),
// so everything stays loose here; the normalizer produces the strict form.
type APIMarket struct {
	ID            string          `json:"id"`
	Question      *string         `json:"question"`
	Slug          *string         `json:"slug"`
	Active        flexBool        `json:"active"`
	Closed        bool            `json:"closed"`
	Outcomes      flexArray       `json:"outcomes"`
	OutcomePrices flexArray       `json:"outcomePrices"`
	Volume        json.RawMessage `json:"volume"`
	VolumeNum     json.RawMessage `json:"volumeNum"`
	Volume24hr    json.RawMessage `json:"volume24hr"`
	Liquidity     json.RawMessage `json:"liquidity"`
	CreatedAt     *string         `json:"createdAt"`
	StartDate     *string         `json:"startDate"`
	EndDate       *string         `json:"endDate"`
	UpdatedAt     *string         `json:"updatedAt"`
	Icon          *string         `json:"icon"`
}
