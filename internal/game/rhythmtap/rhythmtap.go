// Package rhythmtap plays a short rhythm once; the player taps it back.
// Accuracy is measured on beat offsets relative to the first tap.
package rhythmtap

import (
	"encoding/json"
	"math"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "rhythm_tap"

const (
	beats       = 8
	toleranceMs = 150.0

	// Human taps are never this tight across a whole phrase.
	machineErrorMs = 3.0

	eventListen = "listen"
	eventTap    = "tap"
)

// Subdivisions of a beat used when building the pattern.
var subdivisions = []float64{0.5, 1, 1, 1, 1.5, 2}

// DefaultTuning returns the built-in constants. A rhythm is regular on
// purpose, so the consistency rule is off for this kind.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:   30 * time.Second,
		ReferenceMs: 1,
		FloorMs:     1,
		Exponent:    1,
		BasePoints:  5000,
		MinAccuracy: 0.5,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 120,
		},
	}
}

type serverSpec struct {
	BPM       int   `json:"bpm"`
	OffsetsMs []int `json:"offsets_ms"`
}

type clientSpec struct {
	BPM   int `json:"bpm"`
	Beats int `json:"beats"`
}

// Game is the rhythm tap kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Rhythm Tap" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate lays out beat offsets from a tempo and random subdivisions.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	bpm := s.IntRange(80, 130)
	beatMs := 60000.0 / float64(bpm)
	offsets := make([]int, beats)
	at := 0.0
	for i := 1; i < beats; i++ {
		at += beatMs * prng.Pick(s, subdivisions)
		offsets[i] = int(math.Round(at))
	}
	return game.NewSpec(seed, serverSpec{BPM: bpm, OffsetsMs: offsets}, clientSpec{BPM: bpm, Beats: beats})
}

// Reveal plays the pattern on the first listen.
func (g *Game) Reveal(server json.RawMessage, history []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventListen {
		return nil, nil
	}
	if _, heard := game.First(history, eventListen); heard {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	return map[string]any{"offsets_ms": spec.OffsetsMs}, nil
}

// Validate aligns the first tap to the first beat and credits each later tap
// linearly by its error within toleranceMs. Scoring has no speed component:
// the pattern fixes the duration.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	listen, ok := game.First(r.Body, eventListen)
	if !ok {
		return game.Invalid(game.ReasonIncomplete), nil
	}
	var taps []game.Event
	for _, ev := range r.Inputs(eventTap) {
		if ev.Index > listen.Index {
			taps = append(taps, ev)
		}
	}
	if len(taps) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	if len(taps) < len(spec.OffsetsMs) {
		return game.Invalid(game.ReasonIncomplete), nil
	}

	flagged, stats := game.Screen(g.tuning.Timing, taps, r.ElapsedMs)
	if flagged != nil {
		return flagged, nil
	}

	var credit, worst float64
	misses := 0
	for i, want := range spec.OffsetsMs {
		err := math.Abs(float64(game.ElapsedMs(taps[0], taps[i])) - float64(want))
		worst = math.Max(worst, err)
		if err > toleranceMs {
			misses++
			continue
		}
		credit += 1 - err/toleranceMs
	}
	if worst < machineErrorMs {
		return game.Flag(game.ReasonSuspiciouslyConsistent, stats), nil
	}

	quality := credit / float64(len(spec.OffsetsMs))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.Score(quality, 1), r.ElapsedMs, misses), nil
}
