// Package mazerun generates a perfect maze and replays the player's moves
// through it. The walls are public; the shortest path stays on the server.
package mazerun

import (
	"encoding/json"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "maze_run"

const (
	width  = 8
	height = 8

	eventMove = "move"
)

// Wall bits per cell.
const (
	wallN = 1 << iota
	wallE
	wallS
	wallW
)

type step struct {
	dx, dy   int
	wall     int
	opposite int
}

var steps = map[string]step{
	"up":    {0, -1, wallN, wallS},
	"right": {1, 0, wallE, wallW},
	"down":  {0, 1, wallS, wallN},
	"left":  {-1, 0, wallW, wallE},
}

var stepOrder = []string{"up", "right", "down", "left"}

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     90 * time.Second,
		ReferenceMs:   12000,
		FloorMs:       3000,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		MinAccuracy:   0.3,
		PenaltyPoints: 50,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 60,
			MinStdDevMs:      4,
			MinSamples:       5,
			MinMsPerInput:    60,
		},
	}
}

type serverSpec struct {
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	Walls    []int `json:"walls"`
	Solution []int `json:"solution"`
}

type clientSpec struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Walls  []int `json:"walls"`
	Start  int   `json:"start"`
	Exit   int   `json:"exit"`
}

type movePayload struct {
	Dir string `json:"dir"`
}

// Game is the maze kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Maze Run" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate carves a maze with an iterative depth-first backtracker.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	walls := make([]int, width*height)
	for i := range walls {
		walls[i] = wallN | wallE | wallS | wallW
	}

	visited := make([]bool, len(walls))
	stack := []int{0}
	visited[0] = true
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		var open []string
		for _, dir := range stepOrder {
			if next, ok := neighbor(cur, steps[dir]); ok && !visited[next] {
				open = append(open, dir)
			}
		}
		if len(open) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		st := steps[prng.Pick(s, open)]
		next, _ := neighbor(cur, st)
		walls[cur] &^= st.wall
		walls[next] &^= st.opposite
		visited[next] = true
		stack = append(stack, next)
	}

	exit := len(walls) - 1
	return game.NewSpec(seed,
		serverSpec{Width: width, Height: height, Walls: walls, Solution: shortestPath(walls, 0, exit)},
		clientSpec{Width: width, Height: height, Walls: walls, Start: 0, Exit: exit},
	)
}

func neighbor(cell int, st step) (int, bool) {
	x, y := cell%width+st.dx, cell/width+st.dy
	if x < 0 || y < 0 || x >= width || y >= height {
		return 0, false
	}
	return y*width + x, true
}

func shortestPath(walls []int, from, to int) []int {
	prev := make([]int, len(walls))
	for i := range prev {
		prev[i] = -1
	}
	prev[from] = from
	queue := []int{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		for _, dir := range stepOrder {
			st := steps[dir]
			if walls[cur]&st.wall != 0 {
				continue
			}
			if next, ok := neighbor(cur, st); ok && prev[next] == -1 {
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}

	var path []int
	for c := to; c != from; c = prev[c] {
		path = append(path, c)
	}
	path = append(path, from)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Validate walks the moves from the start cell. A move into a wall is a
// bump: it costs a penalty and leaves the position unchanged. Moves after
// the exit is reached are ignored.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventMove)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	moves, err := game.DecodeAll[movePayload](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	exit := len(spec.Walls) - 1
	pos, walked, bumps := 0, 0, 0
	for _, m := range moves {
		st, ok := steps[m.Dir]
		if !ok {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if spec.Walls[pos]&st.wall != 0 {
			bumps++
			continue
		}
		next, _ := neighbor(pos, st)
		pos = next
		walked++
		if pos == exit {
			break
		}
	}
	if pos != exit {
		return game.Invalid(game.ReasonUnsolved), nil
	}

	optimal := len(spec.Solution) - 1
	quality := float64(optimal) / float64(walked)
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, bumps, r.ElapsedMs), r.ElapsedMs, bumps), nil
}
