package domain

// Document is one index document: field name to values. Scalar index fields are
// normalized to single-element lists when decoded, so every field reads the same way.
type Document map[string][]string

// Values returns all values of a field (nil when absent).
func (d Document) Values(field string) []string {
	return d[field]
}

// First returns the first value of a field, or "" when absent.
func (d Document) First(field string) string {
	if v := d[field]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// IndexPage is one page of index documents. Keys holds primary keys in index order.
type IndexPage struct {
	Keys         []string
	Documents    map[string]Document
	Total        int
	Highlighting map[string]map[string][]string
}
