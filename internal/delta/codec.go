package delta

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type Kind `json:"type"`
}

// MarshalList encodes deltas as a JSON array of objects tagged by "type".
func MarshalList(deltas []Delta) ([]byte, error) {
	out := make([]json.RawMessage, 0, len(deltas))
	for _, d := range deltas {
		raw, err := marshalOne(d)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func marshalOne(d Delta) (json.RawMessage, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s delta: %w", d.Kind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(d.Kind())
	fields["type"] = typ
	return json.Marshal(fields)
}

// UnmarshalList decodes a JSON array produced by MarshalList. Entries with an
// unrecognised type decode to Unknown.
func UnmarshalList(data []byte) ([]Delta, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode deltas: %w", err)
	}
	out := make([]Delta, 0, len(raws))
	for i, raw := range raws {
		d, err := unmarshalOne(raw)
		if err != nil {
			return nil, fmt.Errorf("decode delta %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func unmarshalOne(raw json.RawMessage) (Delta, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case KindRemoveProject:
		return decodeAs[RemoveProject](raw)
	case KindRemoveActivity:
		return decodeAs[RemoveActivity](raw)
	case KindRemoveTask:
		return decodeAs[RemoveTask](raw)
	case KindRestoreTask:
		return decodeAs[RestoreTask](raw)
	case KindRemoveSubtask:
		return decodeAs[RemoveSubtask](raw)
	case KindRestoreSubtask:
		return decodeAs[RestoreSubtask](raw)
	case KindRestoreProject:
		return decodeAs[RestoreProject](raw)
	default:
		return Unknown{Type: string(env.Type)}, nil
	}
}

func decodeAs[T Delta](raw json.RawMessage) (Delta, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
