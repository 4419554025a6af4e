package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Candidate is an event submitted by a device, revalidated at the boundary.
// Stamped is false when the submission carried no usable updatedAt; the
// engine stamps those with the current time before comparing.
type Candidate struct {
	Event
	Stamped bool
}

// DecodeCandidates parses an upsert body. Both a bare JSON array and an
// object of the form {"events": [...]} are accepted. Items that are not
// objects become candidates with an empty ID, which the engine skips.
func DecodeCandidates(data []byte) ([]Candidate, error) {
	items, err := decodeBatch(data, "events")
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(items))
	for _, raw := range items {
		out = append(out, decodeCandidate(raw))
	}
	return out, nil
}

// DeleteRequest is a revalidated delete body. At is zero when the caller did
// not supply a usable mark timestamp.
type DeleteRequest struct {
	IDs []string
	At  int64
}

// DecodeDeleteRequest parses {"ids": [...], "deletedAt": ms}. "updatedAt" is
// accepted as an alias for "deletedAt". Non-string ids become empty strings
// and are skipped by the engine.
func DecodeDeleteRequest(data []byte) (DeleteRequest, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return DeleteRequest{}, fmt.Errorf("decode delete request: %w", err)
	}
	var req DeleteRequest
	var ids []json.RawMessage
	if raw, ok := body["ids"]; ok {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return DeleteRequest{}, fmt.Errorf("decode ids: %w", err)
		}
	}
	for _, raw := range ids {
		var id string
		_ = json.Unmarshal(raw, &id)
		req.IDs = append(req.IDs, id)
	}
	for _, key := range []string{"deletedAt", "updatedAt"} {
		if ts, ok := millis(body[key]); ok {
			req.At = ts
			break
		}
	}
	return req, nil
}

func decodeBatch(data []byte, key string) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	var items []json.RawMessage
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return items, nil
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	raw, ok := body[key]
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

func decodeCandidate(raw json.RawMessage) Candidate {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Candidate{}
	}
	var c Candidate
	_ = json.Unmarshal(fields["id"], &c.ID)
	_ = json.Unmarshal(fields["title"], &c.Title)
	_ = json.Unmarshal(fields["start"], &c.Start)
	_ = json.Unmarshal(fields["allDay"], &c.AllDay)
	_ = json.Unmarshal(fields["deleted"], &c.Deleted)
	if n, ok := millis(fields["reminderMinutes"]); ok {
		m := int(n)
		c.ReminderMinutes = &m
	}
	c.UpdatedAt, c.Stamped = millis(fields["updatedAt"])
	return c
}

// millis reads an integral JSON number. Strings, nulls, fractions and
// out-of-range values are reported as absent.
func millis(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
