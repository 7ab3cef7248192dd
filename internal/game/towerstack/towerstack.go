// Package towerstack drops sliding blocks onto a tower. Each block sweeps
// back and forth; whatever overhangs the block below is cut off, so the
// tower narrows with every imprecise drop.
package towerstack

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "tower_stack"

const (
	levels     = 8
	areaWidth  = 300.0
	blockWidth = 100.0

	eventSpawn = "spawn"
	eventDrop  = "drop"
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     60 * time.Second,
		ReferenceMs:   16000,
		FloorMs:       6000,
		Exponent:      0.5,
		BasePoints:    5000,
		ScoreCap:      9800,
		MinAccuracy:   0.3,
		PenaltyPoints: 0,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 250,
			MinStdDevMs:      10,
			MinSamples:       5,
		},
	}
}

// Block is the sweep of one level. StartFrac places the block along its
// travel range when it spawns; it always starts moving right.
type Block struct {
	Speed     float64 `json:"speed"`
	StartFrac float64 `json:"start_frac"`
}

// At is the block's left edge ms after spawn, for a block of width w.
func (b Block) At(w, ms float64) float64 {
	span := areaWidth - w
	if span <= 0 {
		return 0
	}
	d := math.Mod(b.StartFrac*span+b.Speed*ms/1000, 2*span)
	if d <= span {
		return d
	}
	return 2*span - d
}

// Segment is a placed block.
type Segment struct {
	X float64
	W float64
}

// Base is the platform the first block lands on.
func Base() Segment {
	return Segment{X: (areaWidth - blockWidth) / 2, W: blockWidth}
}

// Land drops a block of top's width at x and returns the overlapping part.
// A zero width means the block missed.
func Land(top Segment, x float64) Segment {
	lo := math.Max(top.X, x)
	hi := math.Min(top.X+top.W, x+top.W)
	if hi <= lo {
		return Segment{X: x}
	}
	return Segment{X: lo, W: hi - lo}
}

type serverSpec struct {
	Blocks []Block `json:"blocks"`
}

type clientSpec struct {
	Levels     int     `json:"levels"`
	AreaWidth  float64 `json:"area_width"`
	BlockWidth float64 `json:"block_width"`
}

type levelPayload struct {
	Level int `json:"level"`
}

// Game is the tower stack kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Tower Stack" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate speeds up each level.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	blocks := make([]Block, levels)
	for i := range blocks {
		blocks[i] = Block{
			Speed:     math.Round(s.FloatRange(120, 200) + float64(i)*15),
			StartFrac: math.Round(s.Float64()*100) / 100,
		}
	}
	return game.NewSpec(seed, serverSpec{Blocks: blocks}, clientSpec{Levels: levels, AreaWidth: areaWidth, BlockWidth: blockWidth})
}

// Reveal answers a spawn with that level's sweep.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventSpawn {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	p, err := game.Decode[levelPayload](ev)
	if err != nil {
		return nil, err
	}
	if p.Level < 0 || p.Level >= len(spec.Blocks) {
		return nil, fmt.Errorf("%w: level %d out of range", game.ErrBadPayload, p.Level)
	}
	return map[string]any{"level": p.Level, "block": spec.Blocks[p.Level]}, nil
}

// Validate replays the drops in level order. Quality is the mean retained
// width over all levels; a miss ends the tower and the remaining levels
// count as lost.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	spawns := make(map[int]game.Event)
	drops := make(map[int]game.Event)
	var inputs []game.Event
	for _, ev := range r.Inputs(eventSpawn, eventDrop) {
		p, err := game.Decode[levelPayload](ev)
		if err != nil || p.Level < 0 || p.Level >= len(spec.Blocks) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if ev.Type == eventSpawn {
			if _, ok := spawns[p.Level]; !ok {
				spawns[p.Level] = ev
			}
		} else if _, ok := drops[p.Level]; !ok {
			drops[p.Level] = ev
			inputs = append(inputs, ev)
		}
	}
	if len(drops) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, inputs, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	top := Base()
	var retained float64
	lost := 0
	for level, b := range spec.Blocks {
		spawn, ok := spawns[level]
		drop, dropped := drops[level]
		if !ok || !dropped || drop.Index < spawn.Index {
			if top.W > 0 {
				return game.Invalid(game.ReasonIncomplete), nil
			}
			lost++
			continue
		}
		if top.W == 0 {
			lost++
			continue
		}
		top = Land(top, b.At(top.W, float64(game.ElapsedMs(spawn, drop))))
		if top.W == 0 {
			lost++
			continue
		}
		retained += top.W / blockWidth
	}

	quality := retained / float64(len(spec.Blocks))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.Score(quality, r.ElapsedMs), r.ElapsedMs, lost), nil
}
