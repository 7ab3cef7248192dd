// Package directionswipe shows an arrow per round; the player swipes its
// way, or the opposite way when the arrow is drawn inverted.
package directionswipe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "direction_swipe"

const (
	rounds = 12

	eventNext  = "next"
	eventSwipe = "swipe"
)

var (
	directions = []string{"up", "right", "down", "left"}
	opposite   = map[string]string{"up": "down", "down": "up", "left": "right", "right": "left"}
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     40 * time.Second,
		ReferenceMs:   12000,
		FloorMs:       4000,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		MinAccuracy:   0.7,
		PenaltyPoints: 250,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 180,
			MinStdDevMs:      10,
			MinSamples:       5,
			MinMsPerInput:    250,
		},
	}
}

// Arrow is one round's prompt.
type Arrow struct {
	Dir      string `json:"dir"`
	Inverted bool   `json:"inverted"`
}

// Expect is the swipe that answers the arrow.
func (a Arrow) Expect() string {
	if a.Inverted {
		return opposite[a.Dir]
	}
	return a.Dir
}

type serverSpec struct {
	Arrows []Arrow `json:"arrows"`
}

type clientSpec struct {
	Rounds int `json:"rounds"`
}

type nextPayload struct {
	Round int `json:"round"`
}

type swipePayload struct {
	Round int    `json:"round"`
	Dir   string `json:"dir"`
}

// Game is the direction swipe kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Direction Swipe" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate makes roughly a third of the arrows inverted.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	arrows := make([]Arrow, rounds)
	for i := range arrows {
		arrows[i] = Arrow{Dir: prng.Pick(s, directions), Inverted: s.Float64() < 0.35}
	}
	return game.NewSpec(seed, serverSpec{Arrows: arrows}, clientSpec{Rounds: rounds})
}

// Reveal answers next with that round's arrow.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventNext {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	p, err := game.Decode[nextPayload](ev)
	if err != nil {
		return nil, err
	}
	if p.Round < 0 || p.Round >= len(spec.Arrows) {
		return nil, fmt.Errorf("%w: round %d out of range", game.ErrBadPayload, p.Round)
	}
	return map[string]any{"round": p.Round, "arrow": spec.Arrows[p.Round]}, nil
}

// Validate requires one swipe per round, each after its round was shown.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	shown := make(map[int]bool)
	swiped := make(map[int]string)
	var inputs []game.Event
	for _, ev := range r.Inputs(eventNext, eventSwipe) {
		if ev.Type == eventNext {
			p, err := game.Decode[nextPayload](ev)
			if err != nil {
				return game.Invalid(game.ReasonInvalidPayload), nil
			}
			shown[p.Round] = true
			continue
		}
		p, err := game.Decode[swipePayload](ev)
		if _, known := opposite[p.Dir]; err != nil || !known || p.Round < 0 || p.Round >= len(spec.Arrows) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if !shown[p.Round] {
			return game.Invalid(game.ReasonIncomplete), nil
		}
		if _, dup := swiped[p.Round]; !dup {
			swiped[p.Round] = p.Dir
			inputs = append(inputs, ev)
		}
	}
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	if len(swiped) < len(spec.Arrows) {
		return game.Invalid(game.ReasonIncomplete), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	correct := 0
	for i, a := range spec.Arrows {
		if swiped[i] == a.Expect() {
			correct++
		}
	}
	wrong := len(spec.Arrows) - correct
	quality := float64(correct) / float64(len(spec.Arrows))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, wrong, r.ElapsedMs), r.ElapsedMs, wrong), nil
}
