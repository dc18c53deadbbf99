package domain

import "time"

// Row is one raw result row returned by a data source: attribute name to value.
type Row map[string]string

// Has reports whether the attribute is present with a non-empty value.
func (r Row) Has(attr string) bool {
	return r[attr] != ""
}

// HasAll reports whether every attribute is present with a non-empty value.
func (r Row) HasAll(attrs []string) bool {
	for _, a := range attrs {
		if !r.Has(a) {
			return false
		}
	}
	return true
}

// Payload is one dataset's contribution to a record. Its shape is chosen by the
// dataset's sort strategy: a list of rows, or rows keyed by a secondary attribute.
type Payload struct {
	Rows  []Row            `json:"rows,omitempty"`
	Keyed map[string][]Row `json:"keyed,omitempty"`
}

// IsEmpty reports whether the payload carries no rows.
func (p Payload) IsEmpty() bool {
	return len(p.Rows) == 0 && len(p.Keyed) == 0
}

// Len counts rows across both shapes.
func (p Payload) Len() int {
	n := len(p.Rows)
	for _, rows := range p.Keyed {
		n += len(rows)
	}
	return n
}

// Record is the merged view of one primary key: its index document plus one payload per dataset.
type Record struct {
	Index    Document           `json:"index"`
	Datasets map[string]Payload `json:"datasets,omitempty"`
	CachedAt time.Time          `json:"cached_at"`
}

// NewRecord creates a record with no dataset payloads yet.
func NewRecord(doc Document) *Record {
	return &Record{Index: doc, Datasets: make(map[string]Payload)}
}

// Payload returns the payload stored for a dataset.
func (r *Record) Payload(dataset string) (Payload, bool) {
	p, ok := r.Datasets[dataset]
	return p, ok
}

// SetPayload stores the payload for a dataset, replacing any previous one.
func (r *Record) SetPayload(dataset string, p Payload) {
	if r.Datasets == nil {
		r.Datasets = make(map[string]Payload)
	}
	r.Datasets[dataset] = p
}

// Aggregate maps primary keys to records for one logical search call.
type Aggregate map[string]*Record

// Clone returns a deep copy of the record's payloads. The index document is
// shared; it is immutable once fetched.
func (r *Record) Clone() *Record {
	out := &Record{Index: r.Index, CachedAt: r.CachedAt, Datasets: make(map[string]Payload, len(r.Datasets))}
	for name, p := range r.Datasets {
		out.Datasets[name] = p.clone()
	}
	return out
}

func (p Payload) clone() Payload {
	var out Payload
	if p.Rows != nil {
		out.Rows = cloneRows(p.Rows)
	}
	if p.Keyed != nil {
		out.Keyed = make(map[string][]Row, len(p.Keyed))
		for k, rows := range p.Keyed {
			out.Keyed[k] = cloneRows(rows)
		}
	}
	return out
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		c := make(Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
