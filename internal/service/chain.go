package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/model"
)

// CanonicalPayload re-encodes a client payload so that it hashes the same
// before storage and after a round trip through JSONB. Numbers keep their
// full precision and are written in plain decimal form. An empty payload
// becomes nil.
func CanonicalPayload(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}
	if v == nil {
		return nil, nil
	}
	v, err := normalizeNumbers(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

const maxExponent = 1000

// normalizeNumbers rewrites every number as the shortest exact decimal,
// which is also how PostgreSQL prints a JSONB numeric.
func normalizeNumbers(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return nil, err
		}
		if e := d.Exponent(); e > maxExponent || e < -maxExponent {
			return nil, fmt.Errorf("number %s out of range", x)
		}
		return json.Number(d.String()), nil
	case []any:
		for i := range x {
			n, err := normalizeNumbers(x[i])
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
	case map[string]any:
		for k := range x {
			n, err := normalizeNumbers(x[k])
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
	}
	return v, nil
}

type chainLink struct {
	TurnID   string          `json:"turn_id"`
	Type     string          `json:"type"`
	Index    int             `json:"index"`
	Payload  json.RawMessage `json:"payload"`
	ServerTS int64           `json:"server_ts"`
	PrevHash *string         `json:"prev_hash"`
}

// EventHash computes the chain hash of an event.
func EventHash(ev *model.TurnEvent) string {
	payload, err := CanonicalPayload(ev.Payload)
	if err != nil {
		payload = ev.Payload
	}
	if payload == nil {
		payload = json.RawMessage("null")
	}
	b, _ := json.Marshal(chainLink{
		TurnID:   ev.TurnID,
		Type:     ev.Type,
		Index:    ev.Index,
		Payload:  payload,
		ServerTS: ev.ServerTimestamp.UnixMicro(),
		PrevHash: ev.PrevHash,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// VerifyChain returns the indexes of events whose hash does not recompute or
// whose previous hash does not match the event before them.
func VerifyChain(events []*model.TurnEvent) []int {
	var breaks []int
	for i, ev := range events {
		ok := ev.Hash == EventHash(ev)
		if i == 0 {
			ok = ok && ev.PrevHash == nil
		} else {
			ok = ok && ev.PrevHash != nil && *ev.PrevHash == events[i-1].Hash
		}
		if !ok {
			breaks = append(breaks, ev.Index)
		}
	}
	return breaks
}

func toGameEvent(ev *model.TurnEvent) game.Event {
	return game.Event{
		Index:           ev.Index,
		Type:            ev.Type,
		ClientTimestamp: ev.ClientTimestamp,
		ServerTime:      ev.ServerTimestamp,
		Payload:         ev.Payload,
	}
}

func toGameEvents(events []*model.TurnEvent) []game.Event {
	out := make([]game.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, toGameEvent(ev))
	}
	return out
}
