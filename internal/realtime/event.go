package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedEvent = errors.New("malformed fanout event")
	ErrInvalidPayload = errors.New("payload must be a JSON object")
)

// Event is the broker wire format. Payload is opaque to this package apart
// from being a JSON object.
type Event struct {
	TargetUserIDs []string        `json:"target_user_ids"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEvent marshals payload and checks it is a JSON object.
func NewEvent(targets []string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !isObject(raw) {
		return Event{}, ErrInvalidPayload
	}
	ids := make([]string, len(targets))
	copy(ids, targets)
	return Event{TargetUserIDs: ids, Payload: raw}, nil
}

func EncodeEvent(ev Event) ([]byte, error) {
	if !isObject(ev.Payload) {
		return nil, ErrInvalidPayload
	}
	if ev.TargetUserIDs == nil {
		ev.TargetUserIDs = []string{}
	}
	return json.Marshal(ev)
}

// DecodeEvent parses a broker message. A missing target list decodes as
// empty; a missing or non-object payload is malformed.
func DecodeEvent(data []byte) (Event, error) {
	var wire struct {
		TargetUserIDs json.RawMessage `json:"target_user_ids"`
		Payload       json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !isObject(wire.Payload) {
		return Event{}, fmt.Errorf("%w: payload missing or not an object", ErrMalformedEvent)
	}

	ev := Event{Payload: wire.Payload}
	if len(wire.TargetUserIDs) > 0 && !bytes.Equal(wire.TargetUserIDs, []byte("null")) {
		if err := json.Unmarshal(wire.TargetUserIDs, &ev.TargetUserIDs); err != nil {
			return Event{}, fmt.Errorf("%w: target_user_ids: %v", ErrMalformedEvent, err)
		}
	}
	return ev, nil
}

// uniqueTargets drops empty ids and repeats, keeping first-seen order.
func uniqueTargets(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) >= 2 && raw[0] == '{' && json.Valid(raw)
}
