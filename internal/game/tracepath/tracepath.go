// Package tracepath asks the player to trace a polyline freehand. Scoring is
// geometric: coverage of hidden checkpoints along the path plus the share of
// drawn samples that stay near it.
package tracepath

import (
	"encoding/json"
	"math"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "trace_path"

const (
	canvas    = 1000.0
	waypoints = 5
	spacing   = 25.0
	tolerance = 30.0

	// maxPxPerMs bounds how fast a hand can drag a pointer.
	maxPxPerMs = 4.0

	eventPoint = "point"
)

// DefaultTuning returns the built-in constants. Pointer samples arrive at
// display rate, so the consistency rule is off for this kind.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:   30 * time.Second,
		ReferenceMs: 4000,
		FloorMs:     1200,
		Exponent:    0.5,
		BasePoints:  5000,
		ScoreCap:    9800,
		MinAccuracy: 0.6,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 8,
		},
	}
}

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type serverSpec struct {
	Waypoints   []Point `json:"waypoints"`
	Checkpoints []Point `json:"checkpoints"`
	Tolerance   float64 `json:"tolerance"`
}

type clientSpec struct {
	Canvas    float64 `json:"canvas"`
	Waypoints []Point `json:"waypoints"`
	Tolerance float64 `json:"tolerance"`
}

// Game is the trace path kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Trace Path" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate places waypoints at least 150px apart and samples the polyline
// every spacing px into checkpoints.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	pts := []Point{{X: s.FloatRange(100, 900), Y: s.FloatRange(100, 900)}}
	for len(pts) < waypoints {
		p := Point{X: s.FloatRange(100, 900), Y: s.FloatRange(100, 900)}
		if dist(p, pts[len(pts)-1]) >= 150 {
			pts = append(pts, round(p))
		}
	}
	pts[0] = round(pts[0])

	return game.NewSpec(seed,
		serverSpec{Waypoints: pts, Checkpoints: sample(pts, spacing), Tolerance: tolerance},
		clientSpec{Canvas: canvas, Waypoints: pts, Tolerance: tolerance},
	)
}

func round(p Point) Point {
	return Point{X: math.Round(p.X), Y: math.Round(p.Y)}
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func sample(pts []Point, step float64) []Point {
	out := []Point{pts[0]}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		n := int(math.Ceil(dist(a, b) / step))
		for k := 1; k <= n; k++ {
			f := float64(k) / float64(n)
			out = append(out, Point{X: a.X + (b.X-a.X)*f, Y: a.Y + (b.Y-a.Y)*f})
		}
	}
	return out
}

// Length is the total length of a polyline.
func Length(pts []Point) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += dist(pts[i-1], pts[i])
	}
	return l
}

// segmentDistance is the distance from p to segment ab.
func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return dist(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return dist(p, Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

func pathDistance(p Point, path []Point) float64 {
	best := math.Inf(1)
	for i := 1; i < len(path); i++ {
		best = math.Min(best, segmentDistance(p, path[i-1], path[i]))
	}
	return best
}

// Validate scores 0.7 * checkpoint coverage + 0.3 * sample precision.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	inputs := r.Inputs(eventPoint)
	if len(inputs) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	drawn, err := game.DecodeAll[Point](inputs)
	if err != nil {
		return game.Invalid(game.ReasonInvalidPayload), nil
	}

	flagged, stats := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs)
	if flagged != nil {
		return flagged, nil
	}
	if strokeMs := stats.TotalMs; Length(drawn) > maxPxPerMs*math.Max(strokeMs, 1) {
		return game.Flag(game.ReasonTooFastTotal, stats), nil
	}

	covered := 0
	for _, cp := range spec.Checkpoints {
		for _, p := range drawn {
			if dist(cp, p) <= spec.Tolerance {
				covered++
				break
			}
		}
	}
	near := 0
	for _, p := range drawn {
		if pathDistance(p, spec.Waypoints) <= 2*spec.Tolerance {
			near++
		}
	}

	coverage := float64(covered) / float64(len(spec.Checkpoints))
	precision := float64(near) / float64(len(drawn))
	quality := 0.7*coverage + 0.3*precision
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.Score(quality, r.ElapsedMs), r.ElapsedMs, len(drawn)-near), nil
}
