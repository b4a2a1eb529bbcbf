package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/dyngen/internal/ir"
)

// marshalDeclared converts a declared set to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalDeclared(rs ir.RequiredSet) (string, error) {
	data, err := ir.MarshalCanonical(rs)
	if err != nil {
		return "", fmt.Errorf("marshal declared: %w", err)
	}
	return string(data), nil
}

// unmarshalDeclared parses a stored declared set.
func unmarshalDeclared(data string) (ir.RequiredSet, error) {
	var rs ir.RequiredSet
	if data == "" || data == "{}" {
		return rs, nil
	}
	if err := json.Unmarshal([]byte(data), &rs); err != nil {
		return rs, fmt.Errorf("unmarshal declared: %w", err)
	}
	return rs, nil
}

// formatTime stores timestamps as RFC 3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at: %w", err)
	}
	return t, nil
}
