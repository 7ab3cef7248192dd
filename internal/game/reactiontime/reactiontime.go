// Package reactiontime measures reflexes: after a ready signal the server
// reveals a hidden delay and the player taps as soon as the stimulus shows.
package reactiontime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "reaction_time"

const (
	rounds     = 5
	minDelayMs = 1200
	maxDelayMs = 4000

	eventReady = "ready"
	eventTap   = "tap"
)

// DefaultTuning returns the built-in constants. ReferenceMs and FloorMs
// apply to the mean reaction, not to the whole turn.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     60 * time.Second,
		ReferenceMs:   300,
		FloorMs:       150,
		Exponent:      1,
		BasePoints:    5000,
		MinAccuracy:   0.6,
		PenaltyPoints: 500,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 120,
			MinStdDevMs:      6,
			MinSamples:       4,
		},
	}
}

type serverSpec struct {
	DelaysMs []int `json:"delays_ms"`
}

type clientSpec struct {
	Rounds int `json:"rounds"`
}

type roundPayload struct {
	Round int `json:"round"`
}

// Game is the reaction time kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Reaction Time" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate draws one stimulus delay per round.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	delays := make([]int, rounds)
	for i := range delays {
		delays[i] = s.IntRange(minDelayMs, maxDelayMs)
	}
	return game.NewSpec(seed, serverSpec{DelaysMs: delays}, clientSpec{Rounds: rounds})
}

// Reveal answers a ready event with that round's delay.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventReady {
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
	if p.Round < 0 || p.Round >= len(spec.DelaysMs) {
		return nil, fmt.Errorf("%w: round %d out of range", game.ErrBadPayload, p.Round)
	}
	return map[string]int{"round": p.Round, "delay_ms": spec.DelaysMs[p.Round]}, nil
}

// Validate measures each tap against its round's ready time plus delay.
// A tap before the stimulus is a false start and scores as a penalty.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	readies := make(map[int]game.Event, len(spec.DelaysMs))
	taps := make(map[int]game.Event, len(spec.DelaysMs))
	for _, ev := range r.Inputs(eventReady, eventTap) {
		p, err := game.Decode[roundPayload](ev)
		if err != nil || p.Round < 0 || p.Round >= len(spec.DelaysMs) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if ev.Type == eventReady {
			readies[p.Round] = ev
		} else if _, seen := taps[p.Round]; !seen {
			taps[p.Round] = ev
		}
	}
	if len(taps) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}

	var reactions []float64
	falseStarts := 0
	for round, delay := range spec.DelaysMs {
		ready, ok := readies[round]
		tap, tapped := taps[round]
		if !ok || !tapped || tap.Index < ready.Index {
			return game.Invalid(game.ReasonIncomplete), nil
		}
		reaction := game.ElapsedMs(ready, tap) - int64(delay)
		if reaction < 0 {
			falseStarts++
			continue
		}
		reactions = append(reactions, float64(reaction))
	}

	stats := game.Summarize(reactions)
	if reason := g.tuning.Timing.Check(stats, r.ElapsedMs, len(reactions)); reason != game.ReasonNone {
		return game.Flag(reason, stats), nil
	}

	quality := float64(len(reactions)) / float64(len(spec.DelaysMs))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	score := g.tuning.PenaltyScore(1, falseStarts, int64(stats.AvgMs))
	return game.Valid(score, r.ElapsedMs, falseStarts), nil
}
