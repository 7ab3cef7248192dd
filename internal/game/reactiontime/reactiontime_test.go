package reactiontime

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

// play taps each round delay+reaction(i) after ready.
func play(srv serverSpec, reaction func(i int) time.Duration) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil)
	for i, d := range srv.DelaysMs {
		log.Then(500*time.Millisecond, eventReady, roundPayload{Round: i})
		log.Then(time.Duration(d)*time.Millisecond+reaction(i), eventTap, roundPayload{Round: i})
	}
	return log.Then(time.Second, game.EventSubmit, nil).Events()
}

func TestGenerate(t *testing.T) {
	g := New(nil)
	for _, seed := range gametest.Seeds(10) {
		spec := gametest.AssertDeterministic(t, g, seed)
		gametest.AssertRedacted(t, spec.Client, "delays_ms", "delay_ms")

		var srv serverSpec
		require.NoError(t, json.Unmarshal(spec.Server, &srv))
		require.Len(t, srv.DelaysMs, rounds)
		for _, d := range srv.DelaysMs {
			assert.True(t, d >= minDelayMs && d <= maxDelayMs)
		}
	}
}

func TestReveal(t *testing.T) {
	g, spec, srv := setup(t)
	ev := gametest.NewLog().Add(eventReady, roundPayload{Round: 2}).Last()
	echo, err := g.Reveal(spec.Server, nil, ev)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"round": 2, "delay_ms": srv.DelaysMs[2]}, echo)

	_, err = g.Reveal(spec.Server, nil, gametest.NewLog().Add(eventReady, roundPayload{Round: 9}).Last())
	assert.ErrorIs(t, err, game.ErrBadPayload)
}

func TestValidate(t *testing.T) {
	g, spec, srv := setup(t)

	t.Run("human reactions", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(srv, func(i int) time.Duration { return gametest.Jitter(280*time.Millisecond, i) }))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Penalties)
		assert.Positive(t, res.Score)
	})

	t.Run("faster reactions score higher", func(t *testing.T) {
		slow, err := g.Validate(spec.Server, play(srv, func(i int) time.Duration { return gametest.Jitter(450*time.Millisecond, i) }))
		require.NoError(t, err)
		fast, err := g.Validate(spec.Server, play(srv, func(i int) time.Duration { return gametest.Jitter(250*time.Millisecond, i) }))
		require.NoError(t, err)
		assert.Greater(t, fast.Score, slow.Score)
	})

	t.Run("false start", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(srv, func(i int) time.Duration {
			if i == 0 {
				return -200 * time.Millisecond
			}
			return gametest.Jitter(300*time.Millisecond, i)
		}))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, 1, res.Penalties)
	})

	t.Run("anticipation below human floor", func(t *testing.T) {
		res, err := g.Validate(spec.Server, play(srv, func(i int) time.Duration { return gametest.Jitter(40*time.Millisecond, i) }))
		require.NoError(t, err)
		assert.True(t, res.Flagged)
		assert.Equal(t, game.ReasonImpossibleSpeed, res.Reason)
	})

	t.Run("missing round", func(t *testing.T) {
		events := play(srv, func(i int) time.Duration { return 300 * time.Millisecond })
		events = append(events[:3], events[len(events)-1])
		res, err := g.Validate(spec.Server, events)
		require.NoError(t, err)
		assert.Equal(t, game.ReasonIncomplete, res.Reason)
	})
}
