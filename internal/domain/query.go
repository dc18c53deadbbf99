package domain

import "time"

// Query is what a dataset asks of its data source: filter name to accepted values,
// the attributes to return, and the attributes a row must carry to be kept.
type Query struct {
	Filters            map[string][]string
	Attributes         []string
	RequiredAttributes []string
	Timeout            time.Duration
}

// Table is a bulk export: column headers plus positional rows.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
