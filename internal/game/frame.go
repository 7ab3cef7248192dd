package game

// Replay is the skeleton every kind validates against: the start and submit
// bounds, the events between them and the server-measured play time.
type Replay struct {
	Start     Event
	Submit    Event
	Body      []Event
	ElapsedMs int64
}

// Open locates the bounds of a log. When they are missing it returns nil and
// the rejection to report.
func Open(events []Event) (*Replay, *Result) {
	start, submit, reason := Bounds(events)
	if reason != ReasonNone {
		return nil, Invalid(reason)
	}
	return &Replay{
		Start:     start,
		Submit:    submit,
		Body:      Between(events, start, submit),
		ElapsedMs: ElapsedMs(start, submit),
	}, nil
}

// Inputs returns body events of the given types.
func (r *Replay) Inputs(types ...string) []Event {
	return OfType(r.Body, types...)
}

// SinceStart is the server time from start to ev.
func (r *Replay) SinceStart(ev Event) int64 {
	return ElapsedMs(r.Start, ev)
}

// DecodeAll decodes every payload, stopping at the first malformed one.
func DecodeAll[T any](events []Event) ([]T, error) {
	out := make([]T, 0, len(events))
	for _, ev := range events {
		v, err := Decode[T](ev)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
