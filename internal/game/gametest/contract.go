package gametest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yogev77/tophuman-sub001/internal/game"
)

// Seeds returns n fixed, well-formed seeds.
func Seeds(n int) []string {
	out := make([]string, n)
	for i := range out {
		sum := sha256.Sum256([]byte(fmt.Sprintf("fixture-%d", i)))
		out[i] = hex.EncodeToString(sum[:])
	}
	return out
}

// AssertDeterministic generates twice from seed and requires identical output.
func AssertDeterministic(t testing.TB, g game.Game, seed string) *game.Spec {
	t.Helper()
	a, err := g.Generate(seed)
	require.NoError(t, err)
	b, err := g.Generate(seed)
	require.NoError(t, err)
	assert.Equal(t, string(a.Server), string(b.Server))
	assert.Equal(t, string(a.Client), string(b.Client))
	assert.Equal(t, seed, a.Seed)
	return a
}

// AssertRedacted fails when any of keys appears at any depth of the client view.
func AssertRedacted(t testing.TB, client json.RawMessage, keys ...string) {
	t.Helper()
	var doc any
	require.NoError(t, json.Unmarshal(client, &doc))
	found := map[string]bool{}
	walk(doc, found)
	for _, k := range keys {
		assert.False(t, found[k], "client view exposes %q", k)
	}
}

func walk(v any, found map[string]bool) {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			found[k] = true
			walk(child, found)
		}
	case []any:
		for _, child := range x {
			walk(child, found)
		}
	}
}
