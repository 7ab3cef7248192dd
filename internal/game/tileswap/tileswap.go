// Package tileswap scrambles the pieces of a picture; the player restores it
// by swapping pairs of tiles.
package tileswap

import (
	"encoding/json"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "tile_swap"

const (
	side  = 4
	tiles = side * side

	eventSwap = "swap"
)

var pictures = []string{"lighthouse", "harbor", "canyon", "orchard", "skyline", "glacier"}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     120 * time.Second,
		ReferenceMs:   30000,
		FloorMs:       6000,
		Exponent:      0.5,
		BasePoints:    5000,
		MinAccuracy:   0.4,
		PenaltyPoints: 75,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 250,
			MinStdDevMs:      10,
			MinSamples:       5,
			MinMsPerInput:    300,
		},
	}
}

type serverSpec struct {
	Picture  string `json:"picture"`
	Layout   []int  `json:"layout"`
	MinSwaps int    `json:"min_swaps"`
}

type clientSpec struct {
	Picture string `json:"picture"`
	Side    int    `json:"side"`
	Layout  []int  `json:"layout"`
}

type swapPayload struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Game is the tile swap kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Tile Swap" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate shuffles until at most two tiles are already in place.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	picture := prng.Pick(s, pictures)
	layout := s.Perm(tiles)
	for inPlace(layout) > 2 {
		layout = s.Perm(tiles)
	}
	return game.NewSpec(seed,
		serverSpec{Picture: picture, Layout: layout, MinSwaps: MinSwaps(layout)},
		clientSpec{Picture: picture, Side: side, Layout: layout},
	)
}

func inPlace(layout []int) int {
	n := 0
	for i, t := range layout {
		if i == t {
			n++
		}
	}
	return n
}

// MinSwaps is the number of transpositions needed to sort a permutation:
// its length minus its cycle count.
func MinSwaps(layout []int) int {
	seen := make([]bool, len(layout))
	cycles := 0
	for i := range layout {
		if seen[i] {
			continue
		}
		cycles++
		for j := i; !seen[j]; j = layout[j] {
			seen[j] = true
		}
	}
	return len(layout) - cycles
}

// Validate applies each swap and requires the picture restored at submit.
// Swaps that do not place at least one tile correctly count as penalties.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventSwap)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	swaps, err := game.DecodeAll[swapPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	layout := append([]int(nil), spec.Layout...)
	wasted := 0
	for _, sw := range swaps {
		if sw.A < 0 || sw.B < 0 || sw.A >= len(layout) || sw.B >= len(layout) || sw.A == sw.B {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		before := inPlace(layout)
		layout[sw.A], layout[sw.B] = layout[sw.B], layout[sw.A]
		if inPlace(layout) <= before {
			wasted++
		}
	}
	if inPlace(layout) != len(layout) {
		return game.Invalid(game.ReasonUnsolved), nil
	}

	quality := float64(spec.MinSwaps) / float64(len(swaps))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, wasted, r.ElapsedMs), r.ElapsedMs, wasted), nil
}
