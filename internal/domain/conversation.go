package domain

import (
	"encoding/json"
	"fmt"
)

// storedRecord is the at-rest and wire shape of a HistoryRecord.
// The record text travels in the "parts" field, not "text".
type storedRecord struct {
	Role  string `json:"role"`
	Parts string `json:"parts"`
}

// EncodeHistory serializes a session history into the blob every store keeps:
// a JSON array of {"role", "parts"} objects, oldest first.
func EncodeHistory(records []HistoryRecord) (string, error) {
	out := make([]storedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, storedRecord{Role: string(r.role), Parts: r.text})
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

// DecodeHistory parses a blob produced by EncodeHistory.
// An empty blob decodes to an empty history.
func DecodeHistory(blob string) ([]HistoryRecord, error) {
	if blob == "" {
		return []HistoryRecord{}, nil
	}

	var in []storedRecord
	if err := json.Unmarshal([]byte(blob), &in); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	out := make([]HistoryRecord, 0, len(in))
	for _, r := range in {
		out = append(out, NewHistoryRecord(Role(r.Role), r.Parts))
	}
	return out, nil
}
