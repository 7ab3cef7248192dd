package slidingpuzzle

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

func play(tiles []int, gap time.Duration) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil)
	for i, tile := range tiles {
		log.Then(gametest.Jitter(gap, i), eventSlide, slidePayload{Tile: tile})
	}
	return log.Then(300*time.Millisecond, game.EventSubmit, nil).Events()
}

func TestSolve(t *testing.T) {
	path, ok := Solve(solved, 5)
	assert.True(t, ok)
	assert.Empty(t, path)

	oneAway := Board{1, 2, 3, 4, 5, 6, 7, 0, 8}
	path, ok = Solve(oneAway, 5)
	require.True(t, ok)
	assert.Equal(t, []int{8}, path)

	twoAway := Board{1, 2, 3, 4, 5, 6, 0, 7, 8}
	path, ok = Solve(twoAway, 1)
	assert.False(t, ok, "depth bound")
	path, ok = Solve(twoAway, 5)
	require.True(t, ok)
	assert.Equal(t, []int{7, 8}, path)
}

func TestGenerateWithinBand(t *testing.T) {
	for _, seed := range gametest.Seeds(6) {
		_, spec, srv := setup(t, seed)
		gametest.AssertRedacted(t, spec.Client, "optimal")

		path, ok := Solve(srv.Board, maxOptimal)
		require.True(t, ok)
		assert.Equal(t, srv.Optimal, len(path))
		assert.GreaterOrEqual(t, srv.Optimal, minOptimal)
		assert.LessOrEqual(t, srv.Optimal, maxOptimal)
	}
}

func TestValidate(t *testing.T) {
	g, spec, srv := setup(t, gametest.Seeds(1)[0])
	path, ok := Solve(srv.Board, maxOptimal)
	require.True(t, ok)

	t.Run("optimal", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(path, 400*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Penalties)
	})

	t.Run("illegal slide is a penalty", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(append([]int{42}, path...), 400*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, 1, res.Penalties)
	})

	t.Run("unsolved", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(path[:len(path)-1], 400*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, game.ReasonUnsolved, res.Reason)
	})

	t.Run("solver speed", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(path, 30*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Flagged)
	})
}
