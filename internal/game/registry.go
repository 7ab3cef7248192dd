package game

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps kind tags to implementations.
// It is filled once at startup and read concurrently afterwards.
type Registry struct {
	games map[string]Game
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]Game),
	}
}

// Register adds a game. Registering the same kind twice is an error.
func (r *Registry) Register(g Game) error {
	if g == nil {
		return fmt.Errorf("cannot register nil game")
	}
	if g.Kind() == "" {
		return fmt.Errorf("game kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.games[g.Kind()]; ok {
		return fmt.Errorf("game kind %q already registered", g.Kind())
	}
	r.games[g.Kind()] = g
	return nil
}

// Get retrieves a game by kind.
func (r *Registry) Get(kind string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[kind]
	return g, ok
}

// List returns all registered games ordered by kind.
func (r *Registry) List() []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Game, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Kind() < games[j].Kind() })
	return games
}

// Kinds returns all registered kind tags, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.games))
	for k := range r.games {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Count returns the number of registered games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
