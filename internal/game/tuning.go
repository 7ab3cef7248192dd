package game

import (
	"math"
	"time"
)

// Tuning holds the empirically chosen constants of one kind. They are loaded
// from configuration; New functions merge them over the kind's defaults.
type Tuning struct {
	TimeLimit     time.Duration `mapstructure:"time_limit"`
	ReferenceMs   float64       `mapstructure:"reference_ms"`
	FloorMs       float64       `mapstructure:"floor_ms"`
	Exponent      float64       `mapstructure:"exponent"`
	BasePoints    float64       `mapstructure:"base_points"`
	ScoreCap      int64         `mapstructure:"score_cap"`
	MinAccuracy   float64       `mapstructure:"min_accuracy"`
	PenaltyPoints float64       `mapstructure:"penalty_points"`
	Timing        TimingRules   `mapstructure:"timing"`
}

// Merge returns t with every non-zero field of o applied on top.
func (t Tuning) Merge(o *Tuning) Tuning {
	if o == nil {
		return t
	}
	if o.TimeLimit > 0 {
		t.TimeLimit = o.TimeLimit
	}
	if o.ReferenceMs > 0 {
		t.ReferenceMs = o.ReferenceMs
	}
	if o.FloorMs > 0 {
		t.FloorMs = o.FloorMs
	}
	if o.Exponent > 0 {
		t.Exponent = o.Exponent
	}
	if o.BasePoints > 0 {
		t.BasePoints = o.BasePoints
	}
	if o.ScoreCap > 0 {
		t.ScoreCap = o.ScoreCap
	}
	if o.MinAccuracy > 0 {
		t.MinAccuracy = o.MinAccuracy
	}
	if o.PenaltyPoints > 0 {
		t.PenaltyPoints = o.PenaltyPoints
	}
	if o.Timing.MinAvgIntervalMs > 0 {
		t.Timing.MinAvgIntervalMs = o.Timing.MinAvgIntervalMs
	}
	if o.Timing.MinStdDevMs > 0 {
		t.Timing.MinStdDevMs = o.Timing.MinStdDevMs
	}
	if o.Timing.MinSamples > 0 {
		t.Timing.MinSamples = o.Timing.MinSamples
	}
	if o.Timing.MinMsPerInput > 0 {
		t.Timing.MinMsPerInput = o.Timing.MinMsPerInput
	}
	return t
}

// SpeedMultiplier is (reference / max(elapsed, floor)) ^ exponent.
func (t Tuning) SpeedMultiplier(elapsedMs int64) float64 {
	elapsed := math.Max(float64(elapsedMs), t.FloorMs)
	if elapsed <= 0 {
		elapsed = 1
	}
	exp := t.Exponent
	if exp <= 0 {
		exp = 0.5
	}
	return math.Pow(t.ReferenceMs/elapsed, exp)
}

// Score computes round(quality * BasePoints * speed), capped by ScoreCap.
// quality is clamped to [0, 1].
func (t Tuning) Score(quality float64, elapsedMs int64) int64 {
	return t.capped(math.Round(clamp01(quality) * t.BasePoints * t.SpeedMultiplier(elapsedMs)))
}

// PenaltyScore subtracts PenaltyPoints per mistake from the quality component
// before the speed multiplier is applied.
func (t Tuning) PenaltyScore(quality float64, penalties int, elapsedMs int64) int64 {
	base := clamp01(quality)*t.BasePoints - float64(penalties)*t.PenaltyPoints
	if base < 0 {
		base = 0
	}
	return t.capped(math.Round(base * t.SpeedMultiplier(elapsedMs)))
}

func (t Tuning) capped(score float64) int64 {
	s := int64(score)
	if s < 0 {
		s = 0
	}
	if t.ScoreCap > 0 && s > t.ScoreCap {
		s = t.ScoreCap
	}
	return s
}

// Accurate reports whether quality meets the validity floor.
func (t Tuning) Accurate(quality float64) bool {
	return quality >= t.MinAccuracy
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
