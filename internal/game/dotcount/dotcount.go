// Package dotcount flashes a field of dots each round; the player estimates
// how many there were.
package dotcount

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "dot_count"

const (
	rounds = 5
	field  = 400
	showMs = 1200

	eventShow   = "show"
	eventAnswer = "answer"
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:   45 * time.Second,
		ReferenceMs: 15000,
		FloorMs:     5000,
		Exponent:    0.5,
		BasePoints:  5000,
		ScoreCap:    9800,
		MinAccuracy: 0.6,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 400,
			MinMsPerInput:    600,
		},
	}
}

// Dot is a dot position on the field.
type Dot struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type serverSpec struct {
	Rounds [][]Dot `json:"rounds"`
}

type clientSpec struct {
	Rounds int `json:"rounds"`
	Field  int `json:"field"`
	ShowMs int `json:"show_ms"`
}

type roundPayload struct {
	Round int `json:"round"`
}

type answerPayload struct {
	Round int `json:"round"`
	Count int `json:"count"`
}

// Game is the dot count kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Dot Count" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate scatters dots on a coarse grid so no two overlap. Counts grow by
// round.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	const cell = 20
	slots := (field / cell) * (field / cell)
	srv := serverSpec{}
	for r := 0; r < rounds; r++ {
		n := s.IntRange(6+r*4, 12+r*6)
		perm := s.Perm(slots)[:n]
		dots := make([]Dot, n)
		for i, slot := range perm {
			dots[i] = Dot{X: (slot%(field/cell))*cell + cell/2, Y: (slot/(field/cell))*cell + cell/2}
		}
		srv.Rounds = append(srv.Rounds, dots)
	}
	return game.NewSpec(seed, srv, clientSpec{Rounds: rounds, Field: field, ShowMs: showMs})
}

// Reveal answers a show with that round's dots.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventShow {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	p, err := game.Decode[roundPayload](ev)
	if err != nil {
		return nil, err
	}
	if p.Round < 0 || p.Round >= len(spec.Rounds) {
		return nil, fmt.Errorf("%w: round %d out of range", game.ErrBadPayload, p.Round)
	}
	return map[string]any{"round": p.Round, "dots": spec.Rounds[p.Round], "show_ms": showMs}, nil
}

// Validate credits each round by relative error: exact is 1, off by the
// full count is 0. Only the first answer per round counts.
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
	answers := make(map[int]int)
	var inputs []game.Event
	for _, ev := range r.Inputs(eventShow, eventAnswer) {
		if ev.Type == eventShow {
			p, err := game.Decode[roundPayload](ev)
			if err != nil {
				return game.Invalid(game.ReasonInvalidPayload), nil
			}
			shown[p.Round] = true
			continue
		}
		p, err := game.Decode[answerPayload](ev)
		if err != nil || p.Round < 0 || p.Round >= len(spec.Rounds) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if !shown[p.Round] {
			return game.Invalid(game.ReasonIncomplete), nil
		}
		if _, dup := answers[p.Round]; !dup {
			answers[p.Round] = p.Count
			inputs = append(inputs, ev)
		}
	}
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	if len(answers) < len(spec.Rounds) {
		return game.Invalid(game.ReasonIncomplete), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	var credit float64
	off := 0
	for i, dots := range spec.Rounds {
		diff := math.Abs(float64(answers[i] - len(dots)))
		if diff > 0 {
			off++
		}
		credit += math.Max(0, 1-diff/float64(len(dots)))
	}
	quality := credit / float64(len(spec.Rounds))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.Score(quality, r.ElapsedMs), r.ElapsedMs, off), nil
}
