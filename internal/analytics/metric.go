// Package analytics serves the windowed volatility queries: leaderboards,
// per-market timeseries, summaries, and search, fronted by a short-TTL
// result cache.
package analytics

import (
	"fmt"

	"github.com/acyclops/marketpulse/internal/domain"
)

// validMetrics is the closed dispatch set. Adding a metric means adding it
// here, to domain.Metrics, and to the store's query table; the tests hold
// the three in sync.
var validMetrics = func() map[domain.Metric]struct{} {
	m := make(map[domain.Metric]struct{}, len(domain.Metrics()))
	for _, metric := range domain.Metrics() {
		m[metric] = struct{}{}
	}
	return m
}()

var validWindows = func() map[domain.Window]struct{} {
	w := make(map[domain.Window]struct{}, len(domain.Windows()))
	for _, win := range domain.Windows() {
		w[win] = struct{}{}
	}
	return w
}()

// ParseMetric validates a metric name from the request path.
func ParseMetric(s string) (domain.Metric, error) {
	m := domain.Metric(s)
	if _, ok := validMetrics[m]; !ok {
		return "", fmt.Errorf("analytics: %q: %w", s, domain.ErrInvalidMetric)
	}
	return m, nil
}

// ParseWindow validates a lookback window. The empty string means the caller
// did not ask for one and maps to the default; anything else outside the
// whitelist is an error, which the HTTP layer may choose to soften back to
// the default.
func ParseWindow(s string) (domain.Window, error) {
	if s == "" {
		return domain.DefaultWindow, nil
	}
	w := domain.Window(s)
	if _, ok := validWindows[w]; !ok {
		return domain.DefaultWindow, fmt.Errorf("analytics: %q: %w", s, domain.ErrInvalidWindow)
	}
	return w, nil
}
