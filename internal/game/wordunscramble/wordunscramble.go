// Package wordunscramble presents shuffled letters of hidden words.
package wordunscramble

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "word_unscramble"

const (
	wordCount  = 5
	eventGuess = "guess"
)

var dictionary = []string{
	"anchor", "bridge", "candle", "dragon", "engine", "forest", "garden", "harbor",
	"island", "jungle", "kettle", "lantern", "marble", "needle", "orange", "parrot",
	"quartz", "rocket", "saddle", "tunnel", "velvet", "wander", "yellow", "zipper",
	"basket", "castle", "dinner", "falcon", "goblet", "hammer", "jacket", "ladder",
	"meadow", "pepper", "rabbit", "silver", "timber", "violet", "window", "blanket",
	"compass", "dolphin", "feather", "glacier", "horizon", "journey", "kitchen", "mustard",
}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     90 * time.Second,
		ReferenceMs:   30000,
		FloorMs:       8000,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		MinAccuracy:   0.6,
		PenaltyPoints: 150,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 700,
			MinStdDevMs:      20,
			MinSamples:       5,
			MinMsPerInput:    1000,
		},
	}
}

type serverSpec struct {
	Words     []string `json:"words"`
	Scrambled []string `json:"scrambled"`
}

type clientSpec struct {
	Scrambled []string `json:"scrambled"`
}

type guessPayload struct {
	Word int    `json:"word"`
	Text string `json:"text"`
}

// Game is the word unscramble kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Word Unscramble" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate picks distinct words and shuffles each until it differs from the
// original spelling.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	perm := s.Perm(len(dictionary))
	srv := serverSpec{}
	for _, i := range perm[:wordCount] {
		w := dictionary[i]
		srv.Words = append(srv.Words, w)
		srv.Scrambled = append(srv.Scrambled, scramble(s, w))
	}
	return game.NewSpec(seed, srv, clientSpec{Scrambled: srv.Scrambled})
}

func scramble(s *prng.Stream, w string) string {
	letters := []rune(w)
	for {
		s.Shuffle(len(letters), func(i, j int) { letters[i], letters[j] = letters[j], letters[i] })
		if out := string(letters); out != w {
			return out
		}
	}
}

// Validate accepts a word once it is guessed exactly, case-insensitively.
// Wrong guesses before that are penalties.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventGuess)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	guesses, err := game.DecodeAll[guessPayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	solved := make(map[int]bool, len(spec.Words))
	wrong := 0
	for _, gs := range guesses {
		if gs.Word < 0 || gs.Word >= len(spec.Words) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if solved[gs.Word] {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(gs.Text), spec.Words[gs.Word]) {
			solved[gs.Word] = true
		} else {
			wrong++
		}
	}

	quality := float64(len(solved)) / float64(len(spec.Words))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, wrong, r.ElapsedMs), r.ElapsedMs, wrong), nil
}
