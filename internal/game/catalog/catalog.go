// Package catalog assembles the closed set of game kinds into a registry.
package catalog

import (
	"fmt"
	"sort"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/game/colormatch"
	"github.com/yogev77/tophuman-sub001/internal/game/directionswipe"
	"github.com/yogev77/tophuman-sub001/internal/game/dotcount"
	"github.com/yogev77/tophuman-sub001/internal/game/duckshoot"
	"github.com/yogev77/tophuman-sub001/internal/game/emojikeypad"
	"github.com/yogev77/tophuman-sub001/internal/game/gridrecall"
	"github.com/yogev77/tophuman-sub001/internal/game/mazerun"
	"github.com/yogev77/tophuman-sub001/internal/game/melodymemory"
	"github.com/yogev77/tophuman-sub001/internal/game/memorypairs"
	"github.com/yogev77/tophuman-sub001/internal/game/numbersort"
	"github.com/yogev77/tophuman-sub001/internal/game/oddoneout"
	"github.com/yogev77/tophuman-sub001/internal/game/quickmath"
	"github.com/yogev77/tophuman-sub001/internal/game/reactiontime"
	"github.com/yogev77/tophuman-sub001/internal/game/rhythmtap"
	"github.com/yogev77/tophuman-sub001/internal/game/slidingpuzzle"
	"github.com/yogev77/tophuman-sub001/internal/game/tileswap"
	"github.com/yogev77/tophuman-sub001/internal/game/towerstack"
	"github.com/yogev77/tophuman-sub001/internal/game/tracepath"
	"github.com/yogev77/tophuman-sub001/internal/game/whackamole"
	"github.com/yogev77/tophuman-sub001/internal/game/wordunscramble"
)

// Constructor builds a kind from optional tuning overrides.
type Constructor func(t *game.Tuning) game.Game

var constructors = map[string]Constructor{
	colormatch.Kind:     func(t *game.Tuning) game.Game { return colormatch.New(t) },
	directionswipe.Kind: func(t *game.Tuning) game.Game { return directionswipe.New(t) },
	dotcount.Kind:       func(t *game.Tuning) game.Game { return dotcount.New(t) },
	duckshoot.Kind:      func(t *game.Tuning) game.Game { return duckshoot.New(t) },
	emojikeypad.Kind:    func(t *game.Tuning) game.Game { return emojikeypad.New(t) },
	gridrecall.Kind:     func(t *game.Tuning) game.Game { return gridrecall.New(t) },
	mazerun.Kind:        func(t *game.Tuning) game.Game { return mazerun.New(t) },
	melodymemory.Kind:   func(t *game.Tuning) game.Game { return melodymemory.New(t) },
	memorypairs.Kind:    func(t *game.Tuning) game.Game { return memorypairs.New(t) },
	numbersort.Kind:     func(t *game.Tuning) game.Game { return numbersort.New(t) },
	oddoneout.Kind:      func(t *game.Tuning) game.Game { return oddoneout.New(t) },
	quickmath.Kind:      func(t *game.Tuning) game.Game { return quickmath.New(t) },
	reactiontime.Kind:   func(t *game.Tuning) game.Game { return reactiontime.New(t) },
	rhythmtap.Kind:      func(t *game.Tuning) game.Game { return rhythmtap.New(t) },
	slidingpuzzle.Kind:  func(t *game.Tuning) game.Game { return slidingpuzzle.New(t) },
	tileswap.Kind:       func(t *game.Tuning) game.Game { return tileswap.New(t) },
	towerstack.Kind:     func(t *game.Tuning) game.Game { return towerstack.New(t) },
	tracepath.Kind:      func(t *game.Tuning) game.Game { return tracepath.New(t) },
	whackamole.Kind:     func(t *game.Tuning) game.Game { return whackamole.New(t) },
	wordunscramble.Kind: func(t *game.Tuning) game.Game { return wordunscramble.New(t) },
}

// Kinds returns every known kind tag, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build registers every kind, applying per-kind tuning overrides. If enabled
// is non-empty only those kinds are registered. Unknown kinds in either
// argument are an error so that typos in configuration fail at startup.
func Build(tunings map[string]game.Tuning, enabled []string) (*game.Registry, error) {
	for kind := range tunings {
		if _, ok := constructors[kind]; !ok {
			return nil, fmt.Errorf("tuning for unknown game kind %q", kind)
		}
	}

	kinds := Kinds()
	if len(enabled) > 0 {
		kinds = enabled
	}

	registry := game.NewRegistry()
	for _, kind := range kinds {
		ctor, ok := constructors[kind]
		if !ok {
			return nil, fmt.Errorf("unknown game kind %q", kind)
		}
		var override *game.Tuning
		if t, ok := tunings[kind]; ok {
			override = &t
		}
		if err := registry.Register(ctor(override)); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", kind, err)
		}
	}
	return registry, nil
}
