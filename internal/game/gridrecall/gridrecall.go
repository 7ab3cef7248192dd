// Package gridrecall flashes a set of lit cells on a grid; the player taps
// them from memory.
package gridrecall

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "grid_recall"

const (
	size   = 5
	lit    = 7
	showMs = 2000

	eventShow   = "show"
	eventSelect = "select"
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     40 * time.Second,
		ReferenceMs:   8000,
		FloorMs:       2500,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		MinAccuracy:   0.6,
		PenaltyPoints: 300,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 110,
			MinStdDevMs:      8,
			MinSamples:       5,
			MinMsPerInput:    150,
		},
	}
}

type serverSpec struct {
	Size int   `json:"size"`
	Lit  []int `json:"lit"`
}

type clientSpec struct {
	Size   int `json:"size"`
	Count  int `json:"count"`
	ShowMs int `json:"show_ms"`
}

type selectPayload struct {
	Cell int `json:"cell"`
}

// Game is the grid recall kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Grid Recall" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	cells := s.Perm(size * size)[:lit]
	sort.Ints(cells)
	return game.NewSpec(seed,
		serverSpec{Size: size, Lit: cells},
		clientSpec{Size: size, Count: lit, ShowMs: showMs},
	)
}

// Reveal answers the first show with the lit cells.
func (g *Game) Reveal(server json.RawMessage, history []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventShow {
		return nil, nil
	}
	if _, shown := game.First(history, eventShow); shown {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	return map[string]any{"lit": spec.Lit, "show_ms": showMs}, nil
}

// Validate counts distinct lit cells selected after the show. Selecting an
// unlit cell is a penalty; repeating a cell is ignored.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	show, ok := game.First(r.Body, eventShow)
	if !ok {
		return game.Invalid(game.ReasonIncomplete), nil
	}
	var inputs []game.Event
	for _, ev := range r.Inputs(eventSelect) {
		if ev.Index > show.Index {
			inputs = append(inputs, ev)
		}
	}
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	picks, err := game.DecodeAll[selectPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	isLit := make(map[int]bool, len(spec.Lit))
	for _, c := range spec.Lit {
		isLit[c] = true
	}
	found := make(map[int]bool)
	wrong := make(map[int]bool)
	for _, p := range picks {
		if p.Cell < 0 || p.Cell >= spec.Size*spec.Size {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if isLit[p.Cell] {
			found[p.Cell] = true
		} else {
			wrong[p.Cell] = true
		}
	}

	quality := float64(len(found)) / float64(len(spec.Lit))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, len(wrong), r.ElapsedMs), r.ElapsedMs, len(wrong)), nil
}
