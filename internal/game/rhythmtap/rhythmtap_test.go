package rhythmtap

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

// tapBack taps offset[i] + drift(i) after the first tap.
func tapBack(srv serverSpec, drift func(i int) time.Duration) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil).Then(200*time.Millisecond, eventListen, nil)
	log.Wait(time.Duration(srv.OffsetsMs[len(srv.OffsetsMs)-1]+1000) * time.Millisecond)
	first := gametest.Epoch
	for i, off := range srv.OffsetsMs {
		if i == 0 {
			log.Add(eventTap, nil)
			first = log.Last().ServerTime
			continue
		}
		target := first.Add(time.Duration(off)*time.Millisecond + drift(i))
		log.Wait(target.Sub(log.Last().ServerTime)).Add(eventTap, nil)
	}
	return log.Then(500*time.Millisecond, game.EventSubmit, nil).Events()
}

func TestGenerate(t *testing.T) {
	g := New(nil)
	for _, seed := range gametest.Seeds(10) {
		spec := gametest.AssertDeterministic(t, g, seed)
		gametest.AssertRedacted(t, spec.Client, "offsets_ms")

		var srv serverSpec
		require.NoError(t, json.Unmarshal(spec.Server, &srv))
		assert.Equal(t, 0, srv.OffsetsMs[0])
		assert.IsIncreasing(t, srv.OffsetsMs)
	}
}

func TestValidate(t *testing.T) {
	g, spec, srv := setup(t)

	t.Run("close to the beat", func(t *testing.T) {
		res, err := g.Validate(spec.Server, tapBack(srv, func(i int) time.Duration { return gametest.Jitter(20*time.Millisecond, i) }))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Penalties)
		assert.Greater(t, res.Score, int64(4000))
	})

	t.Run("tighter is better", func(t *testing.T) {
		loose, err := g.Validate(spec.Server, tapBack(srv, func(i int) time.Duration { return gametest.Jitter(60*time.Millisecond, i) }))
		require.NoError(t, err)
		tight, err := g.Validate(spec.Server, tapBack(srv, func(i int) time.Duration { return gametest.Jitter(20*time.Millisecond, i) }))
		require.NoError(t, err)
		assert.Greater(t, tight.Score, loose.Score)
	})

	t.Run("off the beat", func(t *testing.T) {
		res, err := g.Validate(spec.Server, tapBack(srv, func(i int) time.Duration { return 200 * time.Millisecond }))
		require.NoError(t, err)
		assert.Equal(t, game.ReasonLowAccuracy, res.Reason)
	})

	t.Run("sample-perfect playback", func(t *testing.T) {
		res, err := g.Validate(spec.Server, tapBack(srv, func(int) time.Duration { return 0 }))
		require.NoError(t, err)
		assert.True(t, res.Flagged)
		assert.Equal(t, game.ReasonSuspiciouslyConsistent, res.Reason)
	})

	t.Run("no listen", func(t *testing.T) {
		events := gametest.NewLog().Add(game.EventStart, nil).
			Then(time.Second, eventTap, nil).
			Then(time.Second, game.EventSubmit, nil).Events()
		res, err := g.Validate(spec.Server, events)
		require.NoError(t, err)
		assert.Equal(t, game.ReasonIncomplete, res.Reason)
	})
}
