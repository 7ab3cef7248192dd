package game

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event types shared by all kinds.
const (
	EventStart  = "start"
	EventSubmit = "submit"
)

// ErrBadPayload is returned when an event payload cannot be decoded.
var ErrBadPayload = errors.New("malformed event payload")

// Decode unmarshals an event payload into T.
func Decode[T any](ev Event) (T, error) {
	var v T
	if len(ev.Payload) == 0 {
		return v, fmt.Errorf("%w: %s event %d has no payload", ErrBadPayload, ev.Type, ev.Index)
	}
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s event %d: %v", ErrBadPayload, ev.Type, ev.Index, err)
	}
	return v, nil
}

// LoadServer unmarshals a server spec into T.
func LoadServer[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode server spec: %w", err)
	}
	return v, nil
}

// OfType returns the events with the given type, preserving order.
func OfType(events []Event, types ...string) []Event {
	var out []Event
	for _, ev := range events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// First returns the first event of the given type.
func First(events []Event, typ string) (Event, bool) {
	for _, ev := range events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

// Last returns the last event of the given type.
func Last(events []Event, typ string) (Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i], true
		}
	}
	return Event{}, false
}

// Bounds locates the start and terminal submit events. It returns a reason
// when either is missing or they are out of order.
func Bounds(events []Event) (start, submit Event, reason Reason) {
	if len(events) == 0 {
		return Event{}, Event{}, ReasonNoInput
	}
	start, ok := First(events, EventStart)
	if !ok {
		return Event{}, Event{}, ReasonIncomplete
	}
	submit, ok = Last(events, EventSubmit)
	if !ok || submit.Index < start.Index {
		return Event{}, Event{}, ReasonIncomplete
	}
	return start, submit, ReasonNone
}

// Between returns the events strictly after start and strictly before submit.
func Between(events []Event, start, submit Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Index > start.Index && ev.Index < submit.Index {
			out = append(out, ev)
		}
	}
	return out
}

// ElapsedMs is the server-measured time between two events.
func ElapsedMs(from, to Event) int64 {
	return to.ServerTime.Sub(from.ServerTime).Milliseconds()
}
