// Package memorypairs is the classic concentration game. Card faces stay on
// the server and are revealed one flip at a time.
package memorypairs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "memory_pairs"

const (
	pairs = 8
	cards = pairs * 2
	cols  = 4

	eventFlip = "flip"
)

var faces = []string{"anchor", "bell", "cactus", "crown", "feather", "kite", "leaf", "moon", "rocket", "shell", "star", "umbrella"}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     90 * time.Second,
		ReferenceMs:   25000,
		FloorMs:       8000,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		PenaltyPoints: 150,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 150,
			MinStdDevMs:      10,
			MinSamples:       5,
			MinMsPerInput:    200,
		},
	}
}

type serverSpec struct {
	Layout []string `json:"layout"`
}

type clientSpec struct {
	Cards int `json:"cards"`
	Cols  int `json:"cols"`
}

type flipPayload struct {
	Card int `json:"card"`
}

// Game is the memory pairs kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Memory Pairs" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	chosen := s.Perm(len(faces))[:pairs]
	layout := make([]string, 0, cards)
	for _, f := range chosen {
		layout = append(layout, faces[f], faces[f])
	}
	s.Shuffle(len(layout), func(i, j int) { layout[i], layout[j] = layout[j], layout[i] })
	return game.NewSpec(seed, serverSpec{Layout: layout}, clientSpec{Cards: cards, Cols: cols})
}

// Reveal answers a flip with the card's face.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventFlip {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	p, err := game.Decode[flipPayload](ev)
	if err != nil {
		return nil, err
	}
	if p.Card < 0 || p.Card >= len(spec.Layout) {
		return nil, fmt.Errorf("%w: card %d out of range", game.ErrBadPayload, p.Card)
	}
	return map[string]any{"card": p.Card, "face": spec.Layout[p.Card]}, nil
}

// Validate pairs flips two at a time. Flipping a matched card or the same
// card twice in a pair is invalid; each mismatched pair is a penalty. Every
// pair must be matched by submit.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventFlip)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	flips, err := game.DecodeAll[flipPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	matched := make([]bool, len(spec.Layout))
	found, mismatches := 0, 0
	for i := 0; i+1 < len(flips) && found < len(spec.Layout)/2; i += 2 {
		a, b := flips[i].Card, flips[i+1].Card
		if a < 0 || b < 0 || a >= len(spec.Layout) || b >= len(spec.Layout) || a == b || matched[a] || matched[b] {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if spec.Layout[a] == spec.Layout[b] {
			matched[a], matched[b] = true, true
			found++
			continue
		}
		mismatches++
	}
	if found < len(spec.Layout)/2 {
		return game.Invalid(game.ReasonUnsolved), nil
	}
	return game.Valid(g.tuning.PenaltyScore(1, mismatches, r.ElapsedMs), r.ElapsedMs, mismatches), nil
}
