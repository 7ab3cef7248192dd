package mazerun

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/game/gametest"
)

func setup(t *testing.T, seed string) (*Game, *game.Spec, serverSpec) {
	t.Helper()
	g := New(nil)
	spec := gametest.AssertDeterministic(t, g, seed)
	var srv serverSpec
	require.NoError(t, json.Unmarshal(spec.Server, &srv))
	return g, spec, srv
}

func directions(path []int) []string {
	var dirs []string
	for i := 1; i < len(path); i++ {
		switch path[i] - path[i-1] {
		case 1:
			dirs = append(dirs, "right")
		case -1:
			dirs = append(dirs, "left")
		case width:
			dirs = append(dirs, "down")
		default:
			dirs = append(dirs, "up")
		}
	}
	return dirs
}

func play(dirs []string, gap time.Duration) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil)
	for i, d := range dirs {
		log.Then(gametest.Jitter(gap, i), eventMove, movePayload{Dir: d})
	}
	return log.Then(200*time.Millisecond, game.EventSubmit, nil).Events()
}

func TestGenerateIsPerfectMaze(t *testing.T) {
	for _, seed := range gametest.Seeds(8) {
		_, spec, srv := setup(t, seed)
		gametest.AssertRedacted(t, spec.Client, "solution")

		// A spanning tree over w*h cells has exactly w*h-1 passages.
		passages := 0
		for cell, w := range srv.Walls {
			if w&wallE == 0 && cell%width < width-1 {
				passages++
			}
			if w&wallS == 0 && cell/width < height-1 {
				passages++
			}
		}
		assert.Equal(t, width*height-1, passages)
		assert.Equal(t, 0, srv.Solution[0])
		assert.Equal(t, width*height-1, srv.Solution[len(srv.Solution)-1])
	}
}

func TestValidate(t *testing.T) {
	g, spec, srv := setup(t, gametest.Seeds(1)[0])
	route := directions(srv.Solution)

	t.Run("shortest route", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(route, 180*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Penalties)
	})

	t.Run("bump into outer wall", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(append([]string{"up"}, route...), 180*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, 1, res.Penalties)
	})

	t.Run("stops short of exit", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(route[:len(route)-1], 180*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, game.ReasonUnsolved, res.Reason)
	})

	t.Run("scripted speed", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(route, 20*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Flagged)
	})

	t.Run("unknown direction", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play([]string{"north"}, time.Second))
		require.NoError(t, err)
		assert.Equal(t, game.ReasonInvalidPayload, res.Reason)
	})
}
