package gridrecall

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

func recall(cells []int, gap time.Duration) []game.Event {
	log := gametest.NewLog().Add(game.EventStart, nil).Then(100*time.Millisecond, eventShow, nil).Wait(showMs * time.Millisecond)
	for i, c := range cells {
		log.Then(gametest.Jitter(gap, i), eventSelect, selectPayload{Cell: c})
	}
	return log.Then(300*time.Millisecond, game.EventSubmit, nil).Events()
}

func unlit(srv serverSpec, n int) []int {
	isLit := map[int]bool{}
	for _, c := range srv.Lit {
		isLit[c] = true
	}
	var out []int
	for c := 0; len(out) < n; c++ {
		if !isLit[c] {
			out = append(out, c)
		}
	}
	return out
}

func TestGenerate(t *testing.T) {
	g := New(nil)
	for _, seed := range gametest.Seeds(10) {
		spec := gametest.AssertDeterministic(t, g, seed)
		gametest.AssertRedacted(t, spec.Client, "lit")

		var srv serverSpec
		require.NoError(t, json.Unmarshal(spec.Server, &srv))
		assert.Len(t, srv.Lit, lit)
		assert.IsIncreasing(t, srv.Lit)
	}
}

func TestRevealOnce(t *testing.T) {
	g, spec, srv := setup(t)
	log := gametest.NewLog().Add(game.EventStart, nil).Then(time.Second, eventShow, nil)
	echo, err := g.Reveal(spec.Server, log.Events()[:1], log.Last())
	require.NoError(t, err)
	assert.Equal(t, srv.Lit, echo.(map[string]any)["lit"])

	echo, err = g.Reveal(spec.Server, log.Events(), log.Then(time.Second, eventShow, nil).Last())
	require.NoError(t, err)
	assert.Nil(t, echo)
}

func TestValidate(t *testing.T) {
	g, spec, srv := setup(t)

	res, err := g.Validate(spec.Server, recall(srv.Lit, 500*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Zero(t, res.Penalties)

	withSlip := append(append([]int{}, srv.Lit...), unlit(srv, 1)...)
	res, err = g.Validate(spec.Server, recall(withSlip, 500*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.Penalties)

	guessing := append(append([]int{}, srv.Lit[:3]...), unlit(srv, 4)...)
	res, err = g.Validate(spec.Server, recall(guessing, 500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, game.ReasonLowAccuracy, res.Reason)

	res, err = g.Validate(spec.Server, recall(srv.Lit, 30*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, res.Flagged)

	events := gametest.NewLog().Add(game.EventStart, nil).
		Then(time.Second, eventSelect, selectPayload{Cell: srv.Lit[0]}).
		Then(time.Second, game.EventSubmit, nil).Events()
	res, err = g.Validate(spec.Server, events)
	require.NoError(t, err)
	assert.Equal(t, game.ReasonIncomplete, res.Reason)
}
