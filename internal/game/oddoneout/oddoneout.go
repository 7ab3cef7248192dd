// Package oddoneout shows rounds of near-identical items where exactly one
// differs in a single attribute.
package oddoneout

import (
	"encoding/json"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "odd_one_out"

const (
	rounds    = 6
	items     = 9
	eventPick = "pick"
)

var shapes = []string{"circle", "square", "triangle", "hexagon", "star", "diamond"}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     45 * time.Second,
		ReferenceMs:   15000,
		FloorMs:       4000,
		Exponent:      0.5,
		BasePoints:    5000,
		MinAccuracy:   0.5,
		PenaltyPoints: 250,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 250,
			MinStdDevMs:      10,
			MinSamples:       5,
			MinMsPerInput:    300,
		},
	}
}

// Item is one tile of a round.
type Item struct {
	Shape    string `json:"shape"`
	Hue      int    `json:"hue"`
	Rotation int    `json:"rotation"`
}

type round struct {
	Items []Item `json:"items"`
}

type answeredRound struct {
	round
	Odd int `json:"odd"`
}

type serverSpec struct {
	Rounds []answeredRound `json:"rounds"`
}

type clientSpec struct {
	Rounds []round `json:"rounds"`
}

type pickPayload struct {
	Round int `json:"round"`
	Item  int `json:"item"`
}

// Game is the odd one out kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Odd One Out" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate builds each round from one base item. The odd item changes one
// attribute by an amount that shrinks in later rounds.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	srv := serverSpec{}
	cli := clientSpec{}
	for r := 0; r < rounds; r++ {
		base := Item{Shape: prng.Pick(s, shapes), Hue: s.Intn(360), Rotation: s.Intn(4) * 90}
		odd := s.Intn(items)
		row := make([]Item, items)
		for i := range row {
			row[i] = base
		}
		row[odd] = mutate(s, base, r)

		srv.Rounds = append(srv.Rounds, answeredRound{round: round{Items: row}, Odd: odd})
		cli.Rounds = append(cli.Rounds, round{Items: row})
	}
	return game.NewSpec(seed, srv, cli)
}

func mutate(s *prng.Stream, it Item, r int) Item {
	switch s.Intn(3) {
	case 0:
		for {
			shape := prng.Pick(s, shapes)
			if shape != it.Shape {
				it.Shape = shape
				return it
			}
		}
	case 1:
		delta := 60 - r*8
		it.Hue = (it.Hue + delta) % 360
	default:
		it.Rotation = (it.Rotation + 45) % 360
	}
	return it
}

// Validate takes the first pick per round.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventPick)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	picks, err := game.DecodeAll[pickPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	answered := make(map[int]bool, len(spec.Rounds))
	correct, wrong := 0, 0
	for _, p := range picks {
		if p.Round < 0 || p.Round >= len(spec.Rounds) || p.Item < 0 || p.Item >= items {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if answered[p.Round] {
			continue
		}
		answered[p.Round] = true
		if p.Item == spec.Rounds[p.Round].Odd {
			correct++
		} else {
			wrong++
		}
	}
	if len(answered) < len(spec.Rounds) {
		return game.Invalid(game.ReasonIncomplete), nil
	}

	quality := float64(correct) / float64(len(spec.Rounds))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, wrong, r.ElapsedMs), r.ElapsedMs, wrong), nil
}
