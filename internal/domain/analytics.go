package domain

// Metric identifies one of the windowed volatility leaderboards. The set is
// closed: every metric carries its own ranking direction and row shape, and
// dispatch happens through a single lookup table in internal/analytics.
type Metric string

const (
	// MetricAbsChange ranks by max-min probability over the window.
	MetricAbsChange Metric = "abs_change"
	// MetricWhiplash ranks by the sum of absolute step-to-step deltas.
	MetricWhiplash Metric = "whiplash"
	// MetricStddev ranks by the sample stddev of step deltas.
	MetricStddev Metric = "stddev"
	// MetricMomentum ranks by short-window stddev over long-window stddev.
	MetricMomentum Metric = "momentum"
	// MetricSmartMoney ranks by max step scaled by log average liquidity.
	MetricSmartMoney Metric = "smart_money"
	// MetricChop ranks by mean absolute step size.
	MetricChop Metric = "chop"
	// MetricStability ranks ascending by range, with a tick-count floor.
	MetricStability Metric = "stability"
)

// Metrics lists every leaderboard metric in presentation order.
func Metrics() []Metric {
	return []Metric{
		MetricAbsChange,
		MetricWhiplash,
		MetricStddev,
		MetricMomentum,
		MetricSmartMoney,
		MetricChop,
		MetricStability,
	}
}

// Window is a whitelisted lookback duration expressed as a Postgres interval
// literal. Only the values in Windows() are accepted.
type Window string

const (
	Window1Hour  Window = "1 hour"
	Window4Hours Window = "4 hours"
	Window1Day   Window = "1 day"
	Window7Days  Window = "7 days"
	Window30Days Window = "30 days"

	// DefaultWindow is used when a caller omits the window parameter.
	DefaultWindow = Window7Days
)

// Windows lists every accepted lookback window.
func Windows() []Window {
	return []Window{Window1Hour, Window4Hours, Window1Day, Window7Days, Window30Days}
}

// LeaderboardRow is one ranked market. The row shape is shared across all
// seven metrics; each metric populates its own columns and leaves the rest
// nil, mirroring the NULL-padded select lists of the underlying queries.
type LeaderboardRow struct {
	MarketID string  `json:"market_id"`
	Question *string `json:"question"`
	Slug     *string `json:"slug"`

	MinP    *float64 `json:"min_p,omitempty"`
	MaxP    *float64 `json:"max_p,omitempty"`
	Range   *float64 `json:"range,omitempty"`
	NPoints *int64   `json:"n_points,omitempty"`

	Whiplash *float64 `json:"whiplash,omitempty"`
	AvgStep  *float64 `json:"avg_step,omitempty"`
	Stddev   *float64 `json:"stddev,omitempty"`

	Std1h         *float64 `json:"std_1h,omitempty"`
	StdWindow     *float64 `json:"std_window,omitempty"`
	MomentumRatio *float64 `json:"momentum_ratio,omitempty"`

	MaxStep         *float64 `json:"max_step,omitempty"`
	AvgLiquidity    *float64 `json:"avg_liquidity,omitempty"`
	SmartMoneyScore *float64 `json:"smart_money_score,omitempty"`

	ChopIndex *float64 `json:"chop_index,omitempty"`
	TotalChop *float64 `json:"total_chop,omitempty"`
}

// Leaderboard is a ranked row set for one metric over one window.
type Leaderboard struct {
	Metric Metric           `json:"type"`
	Window Window           `json:"window"`
	Rows   []LeaderboardRow `json:"rows"`
}

// MarketSummary holds per-market volatility figures computed in Go from the
// ordered tick series of a single market.
type MarketSummary struct {
	Slug       string   `json:"slug"`
	Window     Window   `json:"window"`
	NPoints    int      `json:"n_points"`
	MinP       *float64 `json:"min_p"`
	MaxP       *float64 `json:"max_p"`
	Range      *float64 `json:"range"`
	Whiplash   *float64 `json:"whiplash"`
	ChopIndex  *float64 `json:"chop_index"`
	StepStddev *float64 `json:"step_stddev"`
	MaxStep    *float64 `json:"max_step"`
}
