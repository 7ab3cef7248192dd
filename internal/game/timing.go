package game

import (
	"math"
	"time"
)

// TimingRules are the anti-automation floors for one kind. Zero disables a rule.
type TimingRules struct {
	MinAvgIntervalMs float64 `mapstructure:"min_avg_interval_ms"`
	MinStdDevMs      float64 `mapstructure:"min_stddev_ms"`
	MinSamples       int     `mapstructure:"min_samples"`
	MinMsPerInput    float64 `mapstructure:"min_ms_per_input"`
}

// TimingStats summarizes the gaps between consecutive input events, measured
// with server-received timestamps only.
type TimingStats struct {
	Inputs   int
	Samples  int
	AvgMs    float64
	StdDevMs float64
	MinMs    float64
	TotalMs  float64
}

// Intervals computes timing statistics over the gaps between consecutive
// events, in the given order.
func Intervals(events []Event) TimingStats {
	if len(events) < 2 {
		return TimingStats{Inputs: len(events)}
	}
	deltas := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		deltas = append(deltas, millis(events[i].ServerTime.Sub(events[i-1].ServerTime)))
	}
	stats := Summarize(deltas)
	stats.Inputs = len(events)
	stats.TotalMs = millis(events[len(events)-1].ServerTime.Sub(events[0].ServerTime))
	return stats
}

// GroupedIntervals is Intervals over the gaps inside each group only, so
// pauses between rounds do not dilute the input cadence.
func GroupedIntervals(groups [][]Event) TimingStats {
	var deltas []float64
	inputs := 0
	for _, g := range groups {
		inputs += len(g)
		for i := 1; i < len(g); i++ {
			deltas = append(deltas, millis(g[i].ServerTime.Sub(g[i-1].ServerTime)))
		}
	}
	stats := Summarize(deltas)
	stats.Inputs = inputs
	return stats
}

// Summarize computes statistics over arbitrary millisecond samples, such as
// reaction times measured against a reveal.
func Summarize(samples []float64) TimingStats {
	stats := TimingStats{Inputs: len(samples), Samples: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var sum float64
	stats.MinMs = math.Inf(1)
	for _, d := range samples {
		sum += d
		if d < stats.MinMs {
			stats.MinMs = d
		}
	}
	stats.TotalMs = sum
	stats.AvgMs = sum / float64(len(samples))

	var sq float64
	for _, d := range samples {
		sq += (d - stats.AvgMs) * (d - stats.AvgMs)
	}
	stats.StdDevMs = math.Sqrt(sq / float64(len(samples)))
	return stats
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Check applies the rules and returns the first violated one, or ReasonNone.
// elapsedMs is the whole-turn duration and inputs the number of discrete
// player inputs it contained.
func (r TimingRules) Check(stats TimingStats, elapsedMs int64, inputs int) Reason {
	if r.MinAvgIntervalMs > 0 && stats.Samples > 0 && stats.AvgMs < r.MinAvgIntervalMs {
		return ReasonImpossibleSpeed
	}
	minSamples := r.MinSamples
	if minSamples < 3 {
		minSamples = 3
	}
	if r.MinStdDevMs > 0 && stats.Samples >= minSamples && stats.StdDevMs < r.MinStdDevMs {
		return ReasonSuspiciouslyConsistent
	}
	if r.MinMsPerInput > 0 && inputs > 0 && float64(elapsedMs) < r.MinMsPerInput*float64(inputs) {
		return ReasonTooFastTotal
	}
	return ReasonNone
}

// Signals renders the statistics as fraud evidence.
func (s TimingStats) Signals() map[string]any {
	minMs := s.MinMs
	if math.IsInf(minMs, 1) {
		minMs = 0
	}
	return map[string]any{
		"inputs":    s.Inputs,
		"samples":   s.Samples,
		"avg_ms":    round2(s.AvgMs),
		"stddev_ms": round2(s.StdDevMs),
		"min_ms":    round2(minMs),
		"total_ms":  round2(s.TotalMs),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Screen is the common anti-automation gate: it computes interval statistics
// over inputs and returns a flagged result when any rule trips.
func Screen(rules TimingRules, inputs []Event, elapsedMs int64) (*Result, TimingStats) {
	stats := Intervals(inputs)
	if reason := rules.Check(stats, elapsedMs, len(inputs)); reason != ReasonNone {
		return Flag(reason, stats), stats
	}
	return nil, stats
}

// ScreenGroups is Screen over GroupedIntervals.
func ScreenGroups(rules TimingRules, groups [][]Event, elapsedMs int64) (*Result, TimingStats) {
	stats := GroupedIntervals(groups)
	if reason := rules.Check(stats, elapsedMs, stats.Inputs); reason != ReasonNone {
		return Flag(reason, stats), stats
	}
	return nil, stats
}
