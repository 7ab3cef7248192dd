// Package colormatch shows a target color briefly and scores how closely the
// player mixes it back, by Euclidean distance in RGB space.
package colormatch

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "color_match"

const (
	rounds = 3
	showMs = 1500

	eventShow = "show"
	eventPick = "pick"
)

var maxDistance = math.Sqrt(3 * 255 * 255)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:   60 * time.Second,
		ReferenceMs: 20000,
		FloorMs:     4000,
		Exponent:    0.5,
		BasePoints:  5000,
		ScoreCap:    9800,
		MinAccuracy: 0.7,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 800,
			MinMsPerInput:    1500,
		},
	}
}

// RGB is a color with 8-bit channels.
type RGB [3]int

type serverSpec struct {
	Targets []RGB `json:"targets"`
}

type clientSpec struct {
	Rounds int `json:"rounds"`
	ShowMs int `json:"show_ms"`
}

type showPayload struct {
	Round int `json:"round"`
}

type pickPayload struct {
	Round int `json:"round"`
	Color RGB `json:"color"`
}

// Game is the color match kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Color Match" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate avoids near-black and near-white targets, which are trivial.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	targets := make([]RGB, rounds)
	for i := range targets {
		for {
			c := RGB{s.Intn(256), s.Intn(256), s.Intn(256)}
			sum := c[0] + c[1] + c[2]
			if sum > 90 && sum < 675 {
				targets[i] = c
				break
			}
		}
	}
	return game.NewSpec(seed, serverSpec{Targets: targets}, clientSpec{Rounds: rounds, ShowMs: showMs})
}

// Reveal answers a show event with that round's target.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventShow {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	p, err := game.Decode[showPayload](ev)
	if err != nil {
		return nil, err
	}
	if p.Round < 0 || p.Round >= len(spec.Targets) {
		return nil, fmt.Errorf("%w: round %d out of range", game.ErrBadPayload, p.Round)
	}
	return map[string]any{"round": p.Round, "color": spec.Targets[p.Round], "show_ms": showMs}, nil
}

// Distance is the Euclidean RGB distance between two colors.
func Distance(a, b RGB) float64 {
	var sq float64
	for i := range a {
		d := float64(a[i] - b[i])
		sq += d * d
	}
	return math.Sqrt(sq)
}

// Validate scores the last pick per round. A round without a prior show
// cannot be matched and is incomplete.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	picks := r.Inputs(eventPick)
	if len(picks) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}

	shown := make(map[int]int)
	for _, ev := range r.Inputs(eventShow) {
		p, err := game.Decode[showPayload](ev)
		if err != nil {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if _, ok := shown[p.Round]; !ok {
			shown[p.Round] = ev.Index
		}
	}

	final := make(map[int]RGB, len(spec.Targets))
	for _, ev := range picks {
		p, err := game.Decode[pickPayload](ev)
		if err != nil || p.Round < 0 || p.Round >= len(spec.Targets) || !inGamut(p.Color) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if at, ok := shown[p.Round]; !ok || at > ev.Index {
			return game.Invalid(game.ReasonIncomplete), nil
		}
		final[p.Round] = p.Color
	}
	if len(final) < len(spec.Targets) {
		return game.Invalid(game.ReasonIncomplete), nil
	}

	if flagged, _ := game.Screen(g.tuning.Timing, picks, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	var quality float64
	for i, target := range spec.Targets {
		quality += 1 - Distance(target, final[i])/maxDistance
	}
	quality /= float64(len(spec.Targets))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.Score(quality, r.ElapsedMs), r.ElapsedMs, 0), nil
}

func inGamut(c RGB) bool {
	for _, v := range c {
		if v < 0 || v > 255 {
			return false
		}
	}
	return true
}
