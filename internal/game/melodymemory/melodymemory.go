// Package melodymemory plays a growing melody one phrase at a time; the
// player repeats each phrase on a small keyboard.
package melodymemory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "melody_memory"

const (
	keys        = 7
	firstPhrase = 3
	phrases     = 4

	eventListen = "listen"
	eventPlay   = "play"
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:   90 * time.Second,
		ReferenceMs: 20000,
		FloorMs:     5000,
		Exponent:    0.5,
		BasePoints:  5000,
		ScoreCap:    9800,
		MinAccuracy: 0.7,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 120,
			MinStdDevMs:      8,
			MinSamples:       5,
			MinMsPerInput:    150,
		},
	}
}

type serverSpec struct {
	Phrases [][]int `json:"phrases"`
	NoteMs  int     `json:"note_ms"`
}

type clientSpec struct {
	Keys    int   `json:"keys"`
	Lengths []int `json:"lengths"`
	NoteMs  int   `json:"note_ms"`
}

type listenPayload struct {
	Phrase int `json:"phrase"`
}

type playPayload struct {
	Phrase int `json:"phrase"`
	Key    int `json:"key"`
}

// Game is the melody memory kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Melody Memory" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate builds phrases of increasing length. Melodies move by small steps
// most of the time, which keeps them singable.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	srv := serverSpec{NoteMs: s.IntRange(350, 500)}
	lengths := make([]int, phrases)
	for p := 0; p < phrases; p++ {
		n := firstPhrase + p
		notes := make([]int, n)
		notes[0] = s.Intn(keys)
		for i := 1; i < n; i++ {
			if s.Float64() < 0.7 {
				notes[i] = clampKey(notes[i-1] + s.IntRange(-2, 2))
			} else {
				notes[i] = s.Intn(keys)
			}
		}
		srv.Phrases = append(srv.Phrases, notes)
		lengths[p] = n
	}
	return game.NewSpec(seed, srv, clientSpec{Keys: keys, Lengths: lengths, NoteMs: srv.NoteMs})
}

func clampKey(k int) int {
	if k < 0 {
		return 0
	}
	if k >= keys {
		return keys - 1
	}
	return k
}

// Reveal answers a listen event with the notes of that phrase.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventListen {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	p, err := game.Decode[listenPayload](ev)
	if err != nil {
		return nil, err
	}
	if p.Phrase < 0 || p.Phrase >= len(spec.Phrases) {
		return nil, fmt.Errorf("%w: phrase %d out of range", game.ErrBadPayload, p.Phrase)
	}
	return map[string]any{"phrase": p.Phrase, "notes": spec.Phrases[p.Phrase], "note_ms": spec.NoteMs}, nil
}

// Validate compares played notes position by position within each phrase.
// A phrase must be listened to before it is played.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	heard := make(map[int]bool)
	played := make([][]int, len(spec.Phrases))
	groups := make([][]game.Event, len(spec.Phrases))
	for _, ev := range r.Inputs(eventListen, eventPlay) {
		if ev.Type == eventListen {
			p, err := game.Decode[listenPayload](ev)
			if err != nil {
				return game.Invalid(game.ReasonInvalidPayload), nil
			}
			heard[p.Phrase] = true
			continue
		}
		p, err := game.Decode[playPayload](ev)
		if err != nil || p.Phrase < 0 || p.Phrase >= len(spec.Phrases) || p.Key < 0 || p.Key >= keys {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if !heard[p.Phrase] {
			return game.Invalid(game.ReasonIncomplete), nil
		}
		played[p.Phrase] = append(played[p.Phrase], p.Key)
		groups[p.Phrase] = append(groups[p.Phrase], ev)
	}
	if len(r.Inputs(eventPlay)) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	for i, notes := range spec.Phrases {
		if len(played[i]) < len(notes) {
			return game.Invalid(game.ReasonIncomplete), nil
		}
	}
	if flagged, _ := game.ScreenGroups(g.tuning.Timing, groups, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	correct, total := 0, 0
	for i, notes := range spec.Phrases {
		for j, n := range notes {
			total++
			if played[i][j] == n {
				correct++
			}
		}
	}
	quality := float64(correct) / float64(total)
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.Score(quality, r.ElapsedMs), r.ElapsedMs, total-correct), nil
}
