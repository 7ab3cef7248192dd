// Package duckshoot is a timing-based aim game. Ducks fly across the screen
// and the player fires vertical shots from the bottom edge; hits are decided
// by simulating projectile flight against duck motion.
package duckshoot

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/pkg/prng"
)

// Kind is the registry tag.
const Kind = "duck_shoot"

const (
	width           = 800.0
	height          = 600.0
	projectileSpeed = 1200.0
	ducks           = 8

	eventSpawn = "spawn"
	eventShot  = "shot"
)

// DefaultTuning returns the built-in constants.
func DefaultTuning() game.Tuning {
	return game.Tuning{
		TimeLimit:     60 * time.Second,
		ReferenceMs:   20000,
		FloorMs:       6000,
		Exponent:      0.5,
		BasePoints:    5000,
		MinAccuracy:   0.5,
		PenaltyPoints: 150,
		Timing: game.TimingRules{
			MinAvgIntervalMs: 150,
			MinStdDevMs:      8,
			MinSamples:       5,
			MinMsPerInput:    200,
		},
	}
}

// Duck is one target's flight.
type Duck struct {
	Y      float64 `json:"y"`
	Speed  float64 `json:"speed"`
	Dir    int     `json:"dir"`
	Radius float64 `json:"radius"`
}

// X is the duck's horizontal position ms after it spawned.
func (d Duck) X(ms float64) float64 {
	travelled := d.Speed * ms / 1000
	if d.Dir > 0 {
		return travelled
	}
	return width - travelled
}

// FlightMs is how long a shot takes to reach the duck's height.
func (d Duck) FlightMs() float64 {
	return (height - d.Y) / projectileSpeed * 1000
}

type serverSpec struct {
	Ducks []Duck `json:"ducks"`
}

type clientSpec struct {
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	ProjectileSpeed float64 `json:"projectile_speed"`
	Ducks           int     `json:"ducks"`
}

type spawnPayload struct {
	Duck int `json:"duck"`
}

type shotPayload struct {
	Duck int     `json:"duck"`
	X    float64 `json:"x"`
}

// Game is the duck shoot kind.
type Game struct {
	tuning game.Tuning
}

// New creates the kind with t merged over the defaults.
func New(t *game.Tuning) *Game {
	return &Game{tuning: DefaultTuning().Merge(t)}
}

func (g *Game) Kind() string             { return Kind }
func (g *Game) Name() string             { return "Duck Shoot" }
func (g *Game) TimeLimit() time.Duration { return g.tuning.TimeLimit }

// Generate draws each duck's altitude, speed and heading. Later ducks are
// faster and smaller.
func (g *Game) Generate(seed string) (*game.Spec, error) {
	s := prng.New(seed)
	srv := serverSpec{Ducks: make([]Duck, ducks)}
	for i := range srv.Ducks {
		dir := 1
		if s.Bool() {
			dir = -1
		}
		srv.Ducks[i] = Duck{
			Y:      math.Round(s.FloatRange(60, 300)),
			Speed:  math.Round(s.FloatRange(150, 220) + float64(i)*15),
			Dir:    dir,
			Radius: 34 - float64(i)*2,
		}
	}
	return game.NewSpec(seed, srv, clientSpec{Width: width, Height: height, ProjectileSpeed: projectileSpeed, Ducks: ducks})
}

// Reveal launches a duck: its flight parameters are disclosed on spawn.
func (g *Game) Reveal(server json.RawMessage, _ []game.Event, ev game.Event) (any, error) {
	if ev.Type != eventSpawn {
		return nil, nil
	}
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	p, err := game.Decode[spawnPayload](ev)
	if err != nil {
		return nil, err
	}
	if p.Duck < 0 || p.Duck >= len(spec.Ducks) {
		return nil, fmt.Errorf("%w: duck %d out of range", game.ErrBadPayload, p.Duck)
	}
	return map[string]any{"duck": p.Duck, "flight": spec.Ducks[p.Duck]}, nil
}

// Validate simulates every shot. A shot hits when the duck, advanced by the
// projectile's flight time, is within its radius of the shot column and
// still on screen. Shots that hit nothing are penalties.
func (g *Game) Validate(server json.RawMessage, events []game.Event) (*game.Result, error) {
	spec, err := game.LoadServer[serverSpec](server)
	if err != nil {
		return nil, err
	}
	r, rejected := game.Open(events)
	if rejected != nil {
		return rejected, nil
	}

	spawned := make(map[int]game.Event, len(spec.Ducks))
	for _, ev := range r.Inputs(eventSpawn) {
		p, err := game.Decode[spawnPayload](ev)
		if err != nil || p.Duck < 0 || p.Duck >= len(spec.Ducks) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		if _, ok := spawned[p.Duck]; !ok {
			spawned[p.Duck] = ev
		}
	}

	shots := r.Inputs(eventShot)
	if len(shots) == 0 {
		return game.Invalid(game.ReasonNoInput), nil
	}
	if len(spawned) < len(spec.Ducks) {
		return game.Invalid(game.ReasonIncomplete), nil
	}
	if flagged, _ := game.Screen(g.tuning.Timing, shots, r.ElapsedMs); flagged != nil {
		return flagged, nil
	}

	hit := make(map[int]bool, len(spec.Ducks))
	misses := 0
	for _, ev := range shots {
		p, err := game.Decode[shotPayload](ev)
		if err != nil || p.Duck < 0 || p.Duck >= len(spec.Ducks) {
			return game.Invalid(game.ReasonInvalidPayload), nil
		}
		spawn := spawned[p.Duck]
		if spawn.Index > ev.Index {
			return game.Invalid(game.ReasonIncomplete), nil
		}
		d := spec.Ducks[p.Duck]
		x := d.X(float64(game.ElapsedMs(spawn, ev)) + d.FlightMs())
		if !hit[p.Duck] && x >= 0 && x <= width && math.Abs(x-p.X) <= d.Radius {
			hit[p.Duck] = true
			continue
		}
		misses++
	}

	quality := float64(len(hit)) / float64(len(spec.Ducks))
	if !g.tuning.Accurate(quality) {
		return game.Invalid(game.ReasonLowAccuracy), nil
	}
	return game.Valid(g.tuning.PenaltyScore(quality, misses, r.ElapsedMs), r.ElapsedMs, misses), nil
}
