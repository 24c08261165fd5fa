package analytics

import (
	"math"

	"github.com/acyclops/marketpulse/internal/domain"
)

// stepStats aggregates the step-difference primitive over one market's
// ordered tick series: the consecutive deltas between non-null probability
// observations. Every per-market figure derives from these fields.
type stepStats struct {
	nPoints int
	minP    float64
	maxP    float64

	steps []float64
}

// collectSteps walks the ordered series once, skipping null probabilities,
// and records observation extremes plus the signed step sequence.
func collectSteps(points []domain.TimeseriesPoint) stepStats {
	st := stepStats{minP: math.Inf(1), maxP: math.Inf(-1)}

	var prev float64
	var havePrev bool
	for _, p := range points {
		if p.Probability == nil {
			continue
		}
		v := *p.Probability
		st.nPoints++
		if v < st.minP {
			st.minP = v
		}
		if v > st.maxP {
			st.maxP = v
		}
		if havePrev {
			st.steps = append(st.steps, v-prev)
		}
		prev = v
		havePrev = true
	}
	return st
}

func (st stepStats) rangeP() float64 {
	return st.maxP - st.minP
}

func (st stepStats) whiplash() float64 {
	var sum float64
	for _, s := range st.steps {
		sum += math.Abs(s)
	}
	return sum
}

func (st stepStats) chopIndex() float64 {
	if len(st.steps) == 0 {
		return 0
	}
	return st.whiplash() / float64(len(st.steps))
}

func (st stepStats) maxStep() float64 {
	var max float64
	for _, s := range st.steps {
		if abs := math.Abs(s); abs > max {
			max = abs
		}
	}
	return max
}

// stepStddev is the sample standard deviation of the signed steps. It needs
// at least two steps; fewer returns NaN-free 0 with ok=false.
func (st stepStats) stepStddev() (float64, bool) {
	n := len(st.steps)
	if n < 2 {
		return 0, false
	}
	var mean float64
	for _, s := range st.steps {
		mean += s
	}
	mean /= float64(n)

	var ss float64
	for _, s := range st.steps {
		d := s - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), true
}

// Summarize computes the per-market volatility summary from an ordered tick
// series. Figures that need observations the series does not have stay nil.
func Summarize(slug string, window domain.Window, points []domain.TimeseriesPoint) domain.MarketSummary {
	st := collectSteps(points)

	sum := domain.MarketSummary{
		Slug:    slug,
		Window:  window,
		NPoints: st.nPoints,
	}
	if st.nPoints == 0 {
		return sum
	}

	minP, maxP, rng := st.minP, st.maxP, st.rangeP()
	sum.MinP, sum.MaxP, sum.Range = &minP, &maxP, &rng

	if len(st.steps) == 0 {
		return sum
	}

	whiplash := st.whiplash()
	chop := st.chopIndex()
	maxStep := st.maxStep()
	sum.Whiplash, sum.ChopIndex, sum.MaxStep = &whiplash, &chop, &maxStep

	if sd, ok := st.stepStddev(); ok {
		sum.StepStddev = &sd
	}
	return sum
}
