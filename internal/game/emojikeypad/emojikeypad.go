// Package emojikeypad implements a sequence-memory challenge: a row of emoji
// is flashed once and the player re-enters it on a keypad.
package emojikeypad

import (
	"encoding/json"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "emoji_keypad"

const (
	keypadSize = 9
	seqLength  = 8
	showMs     = 3000

	eventShow  = "show"
	eventPress = "press"
)

var emojiSet = []string{
	"🍎", "🍌", "🍇", "🍉", "🍒", "🍋", "🥝", "🍍", "🥥", "🍑",
	"🐶", "🐱", "🐸", "🦊", "🐼", "🐙", "🦄", "🐝", "🌵", "🌙",
}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:   45 * time.Second,
		ReferenceMs: 6000,
		FloorMs:     1500,
		Exponent:    0.5,
		BasePoints:  5000,
		ScoreCap:    9800,
		MinAccuracy: 0.75,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 100,
			MinStdDevMs:      8,
			MinSamples:       5,
			MinMsPerInput:    120,
		},
	}
}

type serverSpec struct {
	Keypad   []string `json:"keypad"`
	Sequence []int    `json:"sequence"`
}

type clientSpec struct {
	Keypad []string `json:"keypad"`
	Length int      `json:"length"`
	ShowMs int      `json:"show_ms"`
}

type pressPayload struct {
	Key int `json:"key"`
}

// Game is the emoji keypad kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Emoji Keypad" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate picks a keypad from the emoji set and a sequence over it.
// Consecutive repeats are avoided so every press is distinguishable.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	perm := s.Perm(len(emojiSet))
	keypad := make([]string, keypadSize)
	for i := range keypad {
		keypad[i] = emojiSet[perm[i]]
	}

	seq := make([]int, seqLength)
	for i := range seq {
		k := s.Intn(keypadSize)
		for i > 0 && k == seq[i-1] {
			k = s.Intn(keypadSize)
		}
		seq[i] = k
	}

	return game.NewSpec(seed,
		serverSpec{Keypad: keypad, Sequence: seq},
		clientSpec{Keypad: keypad, Length: seqLength, ShowMs: showMs},
	)
}

// Reveal answers the first show event with the sequence to flash.
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
	seq := make([]string, len(spec.Sequence))
	for i, k := range spec.Sequence {
		seq[i] = spec.Keypad[k]
	}
	return map[string]any{"sequence": seq, "show_ms": showMs}, nil
}

// Validate requires a show followed by one press per sequence position.
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
	var presses []game.Event
	for _, ev := range r.Inputs(eventPress) {
		if ev.Index > show.Index {
			presses = append(presses, ev)
		}
	}
	if len(presses) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	if len(presses) < len(spec.Sequence) {
		return game.Invalid(game.ReasonIncomplete), nil
	}

	keys, err := game.DecodeAll[pressPayload](presses)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, presses, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	correct := 0
	for i, want := range spec.Sequence {
		if keys[i].Key == want {
			correct++
		}
	}
	quality := float64(correct) / float64(len(spec.Sequence))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.Score(quality, r.ElapsedMs), r.ElapsedMs, len(spec.Sequence)-correct), nil
}
