// Package game defines the contract shared by every challenge kind and the
// registry that selects an implementation by kind tag.
//
// A kind turns a seed into a challenge (Generate) and later replays the
// client's event log against the server half of that challenge (Validate).
package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// Spec is a generated challenge. Server holds the answer key and never leaves
// the server; Client is the redacted view sent to the player.
type Spec struct {
	Seed   string
	Server json.RawMessage
	Client json.RawMessage
}

// NewSpec marshals the two halves of a challenge.
func NewSpec(seed string, server, client any) (*Spec, error) {
	s, err := json.Marshal(server)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal server spec: %w", err)
	}
	c, err := json.Marshal(client)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal client spec: %w", err)
	}
	return &Spec{Seed: seed, Server: s, Client: c}, nil
}

// Event is one recorded client action, in append order.
type Event struct {
	Index           int
	Type            string
	ClientTimestamp int64 // unix millis claimed by the client, informational only
	ServerTime      time.Time
	Payload         json.RawMessage
}

// Result is the outcome of replaying a turn.
type Result struct {
	Valid        bool
	Reason       Reason
	Score        int64
	Flagged      bool
	Penalties    int
	CompletionMs int64
	Signals      map[string]any
}

// Game is implemented by every challenge kind.
type Game interface {
	// Kind returns the stable tag used in storage and on the wire (e.g. "quick_math").
	Kind() string

	// Name returns a display name.
	Name() string

	// TimeLimit is the play budget measured from the start call.
	TimeLimit() time.Duration

	// Generate derives a full challenge from seed. It must be a pure function
	// of seed: the same seed yields byte-identical output.
	Generate(seed string) (*Spec, error)

	// Validate replays events against the server spec. A non-nil error means
	// the server spec itself is unusable; every client-side problem is
	// reported through Result.
	Validate(server json.RawMessage, events []Event) (*Result, error)
}

// Revealer is implemented by kinds that disclose parts of the answer key one
// step at a time. The returned value is echoed back to the client as the
// response to the event that triggered it; nil means nothing to reveal.
type Revealer interface {
	Reveal(server json.RawMessage, history []Event, ev Event) (any, error)
}
