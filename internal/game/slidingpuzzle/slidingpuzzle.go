// Package slidingpuzzle implements the 3x3 sliding-tile puzzle. Boards are
// scrambled from the solved position and accepted only when a bounded
// breadth-first search finds an optimal solution inside the target band.
package slidingpuzzle

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "sliding_puzzle"

const (
	side  = 3
	cells = side * side

	minOptimal  = 8
	maxOptimal  = 16
	maxAttempts = 64

	eventSlide = "slide"
)

// ErrNoBoard is returned when no scramble lands in the band.
var ErrNoBoard = errors.New("no board within difficulty band")

// Board lists tiles row by row; 0 is the blank.
type Board [cells]int

var solved = Board{1, 2, 3, 4, 5, 6, 7, 8, 0}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     120 * time.Second,
		ReferenceMs:   20000,
		FloorMs:       4000,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		MinAccuracy:   0.2,
		PenaltyPoints: 100,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 90,
			MinStdDevMs:      6,
			MinSamples:       5,
			MinMsPerInput:    100,
		},
	}
}

type serverSpec struct {
	Board   Board `json:"board"`
	Optimal int   `json:"optimal"`
}

type clientSpec struct {
	Board Board `json:"board"`
}

type slidePayload struct {
	Tile int `json:"tile"`
}

// Game is the sliding puzzle kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Sliding Puzzle" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate random-walks the blank away from the solved board and keeps the
// first result whose optimal length is in [minOptimal, maxOptimal].
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := scramble(s, s.IntRange(20, 40))
		path, ok := Solve(b, maxOptimal)
		if !ok || len(path) < minOptimal {
			continue
		}
		return game.NewSpec(seed, serverSpec{Board: b, Optimal: len(path)}, clientSpec{Board: b})
	}
	return nil, ErrNoBoard
}

func scramble(s *prng.Stream, n int) Board {
	b := solved
	last := -1
	for i := 0; i < n; i++ {
		moves := movable(b)
		var options []int
		for _, t := range moves {
			if t != last {
				options = append(options, t)
			}
		}
		t := prng.Pick(s, options)
		b, _ = b.slide(t)
		last = t
	}
	return b
}

func (b Board) blank() int {
	for i, t := range b {
		if t == 0 {
			return i
		}
	}
	return -1
}

// movable returns the tiles adjacent to the blank, in cell order.
func movable(b Board) []int {
	z := b.blank()
	zx, zy := z%side, z/side
	var out []int
	for i, t := range b {
		x, y := i%side, i/side
		if abs(x-zx)+abs(y-zy) == 1 {
			out = append(out, t)
		}
	}
	return out
}

// slide moves tile into the blank if they are adjacent.
func (b Board) slide(tile int) (Board, bool) {
	if tile <= 0 || tile >= cells {
		return b, false
	}
	z := b.blank()
	for i, t := range b {
		if t != tile {
			continue
		}
		if abs(i%side-z%side)+abs(i/side-z/side) != 1 {
			return b, false
		}
		b[z], b[i] = tile, 0
		return b, true
	}
	return b, false
}

// Solve returns a shortest sequence of tiles to slide, searching no deeper
// than maxDepth.
func Solve(start Board, maxDepth int) ([]int, bool) {
	if start == solved {
		return nil, true
	}
	type node struct {
		prev  Board
		tile  int
		depth int
	}
	seen := map[Board]node{start: {}}
	frontier := []Board{start}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		depth := seen[cur].depth
		if depth >= maxDepth {
			continue
		}
		for _, t := range movable(cur) {
			next, _ := cur.slide(t)
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = node{prev: cur, tile: t, depth: depth + 1}
			if next == solved {
				path := make([]int, depth+1)
				for b := next; b != start; b = seen[b].prev {
					path[seen[b].depth-1] = seen[b].tile
				}
				return path, true
			}
			frontier = append(frontier, next)
		}
	}
	return nil, false
}

// Validate applies each slide; an illegal slide is a penalty and changes
// nothing. The board must be solved at submit.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventSlide)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	slides, err := game.DecodeAll[slidePayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	b := spec.Board
	moves, illegal := 0, 0
	for _, sl := range slides {
		next, ok := b.slide(sl.Tile)
		if !ok {
			illegal++
			continue
		}
		b = next
		moves++
		if b == solved {
			break
		}
	}
	if b != solved {
		return game.Invalid(game.ReasonUnsolved), nil
	}

	quality := float64(spec.Optimal) / float64(moves)
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, illegal, r.ElapsedMs), r.ElapsedMs, illegal), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
