package duckshoot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/game/gametest"
)

func setup(t *testing.T) (*Game, *game.Spec, serverSpec) {
	t.Helper()
	g := New(nil)
	spec := gametest.AssertDeterministic(t, g, gametest.Seeds(1)[0])
	var srv serverSpec
	require.NoError(t, json.Unmarshal(spec.Server, &srv))
	return g, spec, srv
}

// hunt spawns each duck and fires after wait(i); aim(i, x) returns the shot
// column given where the duck will be on impact.
func hunt(srv serverSpec, wait func(i int) time.Duration, aim func(i int, x float64) float64) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil)
	for i, d := range srv.Ducks {
		log.Then(400*time.Millisecond, eventSpawn, spawnPayload{Duck: i})
		w := wait(i)
		impact := d.X(float64(w.Milliseconds()) + d.FlightMs())
		log.Then(w, eventShot, shotPayload{Duck: i, X: aim(i, impact)})
	}
	return log.Then(time.Second, game.EventSubmit, nil).Events()
}

func human(i int) time.Duration { return gametest.Jitter(900*time.Millisecond, i) }

func TestDuckMotion(t *testing.T) {
	right := Duck{Y: 300, Speed: 200, Dir: 1}
	assert.Equal(t, 200.0, right.X(1000))
	left := Duck{Y: 300, Speed: 200, Dir: -1}
	assert.Equal(t, width-100, left.X(500))
	assert.Equal(t, 250.0, right.FlightMs())
}

func TestGenerate(t *testing.T) {
	g := New(nil)
	for _, seed := range gametest.Seeds(10) {
		spec := gametest.AssertDeterministic(t, g, seed)
		gametest.AssertRedacted(t, spec.Client, "speed", "dir", "y", "radius")
	}
}

func TestValidate(t *testing.T) {
	g, spec, srv := setup(t)

	t.Run("every duck on target", func(t *testing.T) {
		res, err := g.Validate(spec.Server, hunt(srv, human, func(_ int, x float64) float64 { return x }))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Penalties)
	})

	t.Run("slightly off still inside hitbox", func(t *testing.T) {
		res, err := g.Validate(spec.Server, hunt(srv, human, func(_ int, x float64) float64 { return x + 10 }))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Penalties)
	})

	t.Run("half the ducks missed", func(t *testing.T) {
		res, err := g.Validate(spec.Server, hunt(srv, human, func(i int, x float64) float64 {
			if i%2 == 0 {
				return x + 200
			}
			return x
		}))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, 4, res.Penalties)
	})

	t.Run("all missed", func(t *testing.T) {
		res, err := g.Validate(spec.Server, hunt(srv, human, func(_ int, x float64) float64 { return x + 200 }))
		require.NoError(t, err)
		assert.Equal(t, game.ReasonLowAccuracy, res.Reason)
	})

	t.Run("aimbot cadence", func(t *testing.T) {
		events := gametest.NewLog().Add(game.EventStart, nil)
		for i := range srv.Ducks {
			events.Then(time.Millisecond, eventSpawn, spawnPayload{Duck: i})
		}
		for i, d := range srv.Ducks {
			events.Then(20*time.Millisecond, eventShot, shotPayload{Duck: i, X: d.X(0)})
		}
		res, err := g.Validate(spec.Server, events.Then(time.Second, game.EventSubmit, nil).Events())
		require.NoError(t, err)
		assert.True(t, res.Flagged)
	})

	t.Run("duck never launched", func(t *testing.T) {
		events := hunt(srv, human, func(_ int, x float64) float64 { return x })
		events = append(events[:3], events[len(events)-1])
		res, err := g.Validate(spec.Server, events)
		require.NoError(t, err)
		assert.Equal(t, game.ReasonIncomplete, res.Reason)
	})
}
