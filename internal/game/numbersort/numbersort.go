// Package numbersort asks the player to tap scattered numbers in ascending
// order.
package numbersort

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "number_sort"

const (
	count     = 10
	eventTap  = "tap"
	valueSpan = 99
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     45 * time.Second,
		ReferenceMs:   10000,
		FloorMs:       2500,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		MinAccuracy:   0.8,
		PenaltyPoints: 200,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 100,
			MinStdDevMs:      8,
			MinSamples:       5,
			MinMsPerInput:    130,
		},
	}
}

type serverSpec struct {
	Numbers []int `json:"numbers"`
	Sorted  []int `json:"sorted"`
}

type clientSpec struct {
	Numbers []int `json:"numbers"`
}

type tapPayload struct {
	Value int `json:"value"`
}

// Game is the number sort kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Number Sort" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate draws distinct values in [1, valueSpan].
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	perm := s.Perm(valueSpan)
	numbers := make([]int, count)
	for i := range numbers {
		numbers[i] = perm[i] + 1
	}
	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)
	return game.NewSpec(seed, serverSpec{Numbers: numbers, Sorted: sorted}, clientSpec{Numbers: numbers})
}

// Validate compares taps position by position with the sorted order. Every
// number must be tapped.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventTap)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	if len(inputs) < len(spec.Sorted) {
		return game.Invalid(game.ReasonIncomplete), nil
	}
	taps, err := game.DecodeAll[tapPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	correct := 0
	for i, want := range spec.Sorted {
		if taps[i].Value == want {
			correct++
		}
	}
	wrong := len(spec.Sorted) - correct
	quality := float64(correct) / float64(len(spec.Sorted))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, wrong, r.ElapsedMs), r.ElapsedMs, wrong), nil
}
