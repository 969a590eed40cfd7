// Package store implements the document-synchronization backend contract:
// loosely-typed field bags with upsert writes, one-shot queries, and
// push-based collection snapshots.
package store

import (
	"encoding/json"
	"fmt"

	"curbly/internal/domain"
)

// Encode flattens a typed model into a document field bag via its JSON
// tags. Values come back as JSON types (string, float64, bool, maps).
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return fields, nil
}

// Decode fills a typed model from a document's field bag.
func Decode(doc domain.Document, v any) error {
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

// matches reports whether every filter entry equals the corresponding
// document field. Numeric values are compared after normalizing to float64,
// mirroring what JSON decoding produces.
func matches(fields map[string]any, filter domain.Filter) bool {
	for key, want := range filter {
		got, ok := fields[key]
		if !ok {
			return false
		}
		if normalize(got) != normalize(want) {
			return false
		}
	}
	return true
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
