package tileswap

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/game/gametest"
)

// sortSwaps puts each position's tile home in turn, the minimal strategy.
func sortSwaps(layout []int) []swapPayload {
	l := append([]int(nil), layout...)
	var out []swapPayload
	for i := range l {
		for l[i] != i {
			j := l[i]
			l[i], l[j] = l[j], l[i]
			out = append(out, swapPayload{A: i, B: j})
		}
	}
	return out
}

func play(swaps []swapPayload, gap time.Duration) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil)
	for i, sw := range swaps {
		log.Then(gametest.Jitter(gap, i), eventSwap, sw)
	}
	return log.Then(time.Second, game.EventSubmit, nil).Events()
}

func TestMinSwaps(t *testing.T) {
	assert.Equal(t, 0, MinSwaps([]int{0, 1, 2}))
	assert.Equal(t, 1, MinSwaps([]int{1, 0, 2}))
	assert.Equal(t, 2, MinSwaps([]int{1, 2, 0}))
}

func TestMinSwapsMatchesGreedyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		perm := rapid.Permutation([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}).Draw(t, "perm")
		if got, want := len(sortSwaps(perm)), MinSwaps(perm); got != want {
			t.Fatalf("greedy used %d swaps, minimum is %d", got, want)
		}
	})
}

func TestValidate(t *testing.T) {
	g := New(nil)
	spec := gametest.AssertDeterministic(t, g, gametest.Seeds(1)[0])
	gametest.AssertRedacted(t, spec.Client, "min_swaps")
	var srv serverSpec
	require.NoError(t, json.Unmarshal(spec.Server, &srv))
	swaps := sortSwaps(srv.Layout)
	require.Equal(t, srv.MinSwaps, len(swaps))

	res, err := g.Validate(spec.Server, play(swaps, 900*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Zero(t, res.Penalties)

	wasted := append([]swapPayload{{A: 0, B: 1}, {A: 0, B: 1}}, swaps...)
	res, err = g.Validate(spec.Server, play(wasted, 900*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.GreaterOrEqual(t, res.Penalties, 1)

	res, err = g.Validate(spec.Server, play(swaps[:len(swaps)-1], 900*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, game.ReasonUnsolved, res.Reason)

	res, err = g.Validate(spec.Server, play(swaps, 60*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Flagged)

	res, err = g.Validate(spec.Server, play([]swapPayload{{A: 3, B: 3}}, time.Second))
	require.NoError(t, err)
	assert.Equal(t, game.ReasonInvalidPayload, res.Reason)
}
