// Package quickmath implements timed mental arithmetic.
package quickmath

import (
	"encoding/json"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "quick_math"

const (
	problemCount = 10
	eventAnswer  = "answer"
)

var operators = []string{"+", "-", "*"}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     60 * time.Second,
		ReferenceMs:   25000,
		FloorMs:       5000,
		Exponent:      0.5,
		BasePoints:    5000,
		MinAccuracy:   0.6,
		PenaltyPoints: 200,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 350,
			MinStdDevMs:      15,
			MinSamples:       5,
			MinMsPerInput:    500,
		},
	}
}

type problem struct {
	A  int    `json:"a"`
	B  int    `json:"b"`
	Op string `json:"op"`
}

type solvedProblem struct {
	problem
	Answer int `json:"answer"`
}

type serverSpec struct {
	Problems []solvedProblem `json:"problems"`
}

type clientSpec struct {
	Problems []problem `json:"problems"`
}

type answerPayload struct {
	Problem int `json:"problem"`
	Value   int `json:"value"`
}

// Game is the quick math kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Quick Math" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate draws problems whose difficulty grows with position.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	srv := serverSpec{Problems: make([]solvedProblem, problemCount)}
	cli := clientSpec{Problems: make([]problem, problemCount)}

	for i := 0; i < problemCount; i++ {
		p := draw(s, i)
		srv.Problems[i] = solvedProblem{problem: p, Answer: eval(p)}
		cli.Problems[i] = p
	}
	return game.NewSpec(seed, srv, cli)
}

func draw(s *prng.Stream, i int) problem {
	op := prng.Pick(s, operators)
	switch op {
	case "*":
		return problem{A: s.IntRange(2, 6+i), B: s.IntRange(2, 9), Op: op}
	case "-":
		a := s.IntRange(10, 30+i*10)
		return problem{A: a, B: s.IntRange(1, a), Op: op}
	default:
		return problem{A: s.IntRange(5, 30+i*10), B: s.IntRange(5, 30+i*10), Op: op}
	}
}

func eval(p problem) int {
	switch p.Op {
	case "*":
		return p.A * p.B
	case "-":
		return p.A - p.B
	default:
		return p.A + p.B
	}
}

// Validate takes the last answer per problem. Every earlier wrong answer and
// every wrong final answer costs a penalty.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventAnswer)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	answers, err := game.DecodeAll[answerPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	final := make(map[int]int, len(spec.Problems))
	wrong := 0
	for _, a := range answers {
		if a.Problem < 0 || a.Problem >= len(spec.Problems) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if a.Value != spec.Problems[a.Problem].Answer {
			wrong++
		}
		final[a.Problem] = a.Value
	}

	correct := 0
	for i, p := range spec.Problems {
		if v, ok := final[i]; ok && v == p.Answer {
			correct++
		}
	}
	quality := float64(correct) / float64(len(spec.Problems))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, wrong, r.ElapsedMs), r.ElapsedMs, wrong), nil
}
