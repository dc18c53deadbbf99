package solr

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kailas-cloud/martsearch/internal/domain"
)

// decodeDocument normalizes a raw Solr document: scalars become one-element lists,
// numbers keep their literal text, nulls are dropped.
func decodeDocument(raw map[string]json.RawMessage) domain.Document {
	doc := make(domain.Document, len(raw))
	for field, v := range raw {
		if vals := decodeValues(v); len(vals) > 0 {
			doc[field] = vals
		}
	}
	return doc
}

func decodeValues(v json.RawMessage) []string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return nil
	}
	if v[0] != '[' {
		if s, ok := decodeScalar(v); ok {
			return []string{s}
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := decodeScalar(bytes.TrimSpace(item)); ok {
			out = append(out, s)
		}
	}
	return out
}

func decodeScalar(v json.RawMessage) (string, bool) {
	switch {
	case len(v) == 0, string(v) == "null":
		return "", false
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	case v[0] == '{', v[0] == '[':
		// nested structures are kept as compact JSON text
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return "", false
		}
		return buf.String(), true
	default:
		// numbers and booleans keep their literal form
		return strings.TrimSpace(string(v)), true
	}
}
