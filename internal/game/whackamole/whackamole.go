// Package whackamole schedules moles popping out of holes; the player whacks
// them while they are up. The schedule stays on the server and is polled.
package whackamole

import (
	"encoding/json"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "whack_a_mole"

const (
	holes   = 9
	moles   = 12
	graceMs = 100

	// minReactionMs is the fastest mean reaction accepted from a human.
	minReactionMs = 120

	eventPoll  = "poll"
	eventWhack = "whack"
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     40 * time.Second,
		ReferenceMs:   15000,
		FloorMs:       15000,
		Exponent:      0.5,
		BasePoints:    5000,
		MinAccuracy:   0.5,
		PenaltyPoints: 200,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 150,
			MinStdDevMs:      8,
			MinSamples:       5,
		},
	}
}

// Mole is one appearance, in ms since start.
type Mole struct {
	Hole int `json:"hole"`
	UpMs int `json:"up_ms"`
	DnMs int `json:"down_ms"`
}

type serverSpec struct {
	Moles []Mole `json:"moles"`
}

type clientSpec struct {
	Holes      int `json:"holes"`
	Moles      int `json:"moles"`
	DurationMs int `json:"duration_ms"`
}

type whackPayload struct {
	Hole int `json:"hole"`
}

// Game is the whack-a-mole kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Whack-a-Mole" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	srv := serverSpec{Moles: make([]Mole, moles)}
	at, prev := 800, -1
	for i := range srv.Moles {
		hole := s.Intn(holes)
		for hole == prev {
			hole = s.Intn(holes)
		}
		srv.Moles[i] = Mole{Hole: hole, UpMs: at, DnMs: at + s.IntRange(700, 1100)}
		prev = hole
		at += s.IntRange(450, 900)
	}
	last := srv.Moles[len(srv.Moles)-1]
	return game.NewSpec(seed, srv, clientSpec{Holes: holes, Moles: moles, DurationMs: last.DnMs})
}

// Reveal answers a poll with the moles up at the poll's server time.
func (g *Game) Reveal(server json.RawMessage, history []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventPoll {
		return nil, nil
	}
	start, ok := game.First(history, game.EventStart)
	if !ok {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	now := int(game.ElapsedMs(start, ev))
	up := []map[string]int{}
	for _, m := range spec.Moles {
		if m.UpMs <= now && now < m.DnMs {
			up = append(up, map[string]int{"hole": m.Hole, "remaining_ms": m.DnMs - now})
		}
	}
	return map[string]any{"up": up}, nil
}

// Validate matches each whack to a mole up at that hole at that time. A
// whack that matches nothing is a miss.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventWhack)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	whacks, err := game.DecodeAll[whackPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	hit := make([]bool, len(spec.Moles))
	var reactions []float64
	misses := 0
	for i, w := range whacks {
		if w.Hole < 0 || w.Hole >= holes {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		at := int(r.SinceStart(inputs[i]))
		matched := false
		for j, m := range spec.Moles {
			if hit[j] || m.Hole != w.Hole || at < m.UpMs || at > m.DnMs+graceMs {
				continue
			}
			hit[j] = true
			matched = true
			reactions = append(reactions, float64(at-m.UpMs))
			break
		}
		if !matched {
			misses++
		}
	}

	if stats := game.Summarize(reactions); stats.Samples >= 3 && stats.AvgMs < minReactionMs {
		return game.Flag(game.ReasonImpossibleSpeed, stats), nil
	}

	quality := float64(len(reactions)) / float64(len(spec.Moles))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, misses, r.ElapsedMs), r.ElapsedMs, misses), nil
}
