package tracepath

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

func draw(points []Point, gap time.Duration) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil)
	for i, p := range points {
		log.Then(gametest.Jitter(gap, i), eventPoint, p)
	}
	return log.Then(100*time.Millisecond, game.EventSubmit, nil).Events()
}

func TestSegmentDistance(t *testing.T) {
	a, b := Point{0, 0}, Point{10, 0}
	assert.Equal(t, 5.0, segmentDistance(Point{5, 5}, a, b))
	assert.Equal(t, 5.0, segmentDistance(Point{-3, 4}, a, b))
	assert.Equal(t, 0.0, segmentDistance(Point{7, 0}, a, b))
}

func TestGenerate(t *testing.T) {
	g := New(nil)
	for _, seed := range gametest.Seeds(10) {
		spec := gametest.AssertDeterministic(t, g, seed)
		gametest.AssertRedacted(t, spec.Client, "checkpoints")

		var srv serverSpec
		require.NoError(t, json.Unmarshal(spec.Server, &srv))
		assert.Len(t, srv.Waypoints, waypoints)
		assert.GreaterOrEqual(t, len(srv.Checkpoints), int(Length(srv.Waypoints)/spacing))
	}
}

func TestValidate(t *testing.T) {
	g, spec, srv := setup(t)

	t.Run("careful trace", func(t *testing.T) {
		res, err := g.Validate(spec.Server, draw(srv.Checkpoints, 16*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Penalties)
	})

	t.Run("shaky trace within tolerance", func(t *testing.T) {
		shaky := make([]Point, len(srv.Checkpoints))
		for i, p := range srv.Checkpoints {
			off := 12.0
			if i%2 == 0 {
				off = -12
			}
			shaky[i] = Point{X: p.X + off, Y: p.Y}
		}
		res, err := g.Validate(spec.Server, draw(shaky, 16*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("only a fifth of the path", func(t *testing.T) {
		part := srv.Checkpoints[:len(srv.Checkpoints)/5]
		res, err := g.Validate(spec.Server, draw(part, 16*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, game.ReasonLowAccuracy, res.Reason)
	})

	t.Run("injected samples", func(t *testing.T) {
		res, err := g.Validate(spec.Server, draw(srv.Checkpoints, 2*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Flagged)
		assert.Equal(t, game.ReasonImpossibleSpeed, res.Reason)
	})

	t.Run("stroke faster than a hand", func(t *testing.T) {
		var sparse []Point
		for i := 0; i < len(srv.Checkpoints); i += 6 {
			sparse = append(sparse, srv.Checkpoints[i])
		}
		res, err := g.Validate(spec.Server, draw(sparse, 20*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, res.Flagged)
		assert.Equal(t, game.ReasonTooFastTotal, res.Reason)
	})
}
