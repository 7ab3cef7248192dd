// Package gametest builds replay logs for validator tests.
package gametest

import (
	"encoding/json"
	"time"

	"github.com/yogev77/tophuman-sub001/internal/game"
)

// Epoch is the server time of the first event in every log.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Log accumulates events with a controllable server clock.
type Log struct {
	now    time.Time
	events []game.Event
}

// NewLog starts an empty log at Epoch.
func NewLog() *Log {
	return &Log{now: Epoch}
}

// Wait advances the server clock.
func (l *Log) Wait(d time.Duration) *Log {
	l.now = l.now.Add(d)
	return l
}

// Add appends an event at the current clock. payload may be nil.
func (l *Log) Add(typ string, payload any) *Log {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		raw = b
	}
	l.events = append(l.events, game.Event{
		Index:           len(l.events),
		Type:            typ,
		ClientTimestamp: l.now.UnixMilli(),
		ServerTime:      l.now,
		Payload:         raw,
	})
	return l
}

// Then waits d and appends an event.
func (l *Log) Then(d time.Duration, typ string, payload any) *Log {
	return l.Wait(d).Add(typ, payload)
}

// Last returns the most recently added event.
func (l *Log) Last() game.Event {
	return l.events[len(l.events)-1]
}

// Events returns a copy of the log.
func (l *Log) Events() []game.Event {
	out := make([]game.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Jitter returns a deterministic, human-looking gap around base: successive
// calls with i = 0,1,2... cycle through +-30% offsets.
func Jitter(base time.Duration, i int) time.Duration {
	offsets := []float64{0, 0.3, -0.2, 0.15, -0.3, 0.25, -0.1}
	f := offsets[i%len(offsets)]
	return base + time.Duration(float64(base)*f)
}
