package biomart

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// xmlQuery is the BioMart martservice query document.
type xmlQuery struct {
	XMLName           xml.Name   `xml:"Query"`
	VirtualSchemaName string     `xml:"virtualSchemaName,attr"`
	Formatter         string     `xml:"formatter,attr"`
	Header            string     `xml:"header,attr"`
	UniqueRows        string     `xml:"uniqueRows,attr"`
	CompletionStamp   string     `xml:"completionStamp,attr"`
	Dataset           xmlDataset `xml:"Dataset"`
}

type xmlDataset struct {
	Name       string         `xml:"name,attr"`
	Interface  string         `xml:"interface,attr"`
	Filters    []xmlFilter    `xml:"Filter"`
	Attributes []xmlAttribute `xml:"Attribute"`
}

type xmlFilter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlAttribute struct {
	Name string `xml:"name,attr"`
}

// buildQuery renders a TSV query. Filters are emitted in name order so identical
// requests produce identical documents.
func buildQuery(dataset string, filters map[string][]string, attributes []string) ([]byte, error) {
	q := xmlQuery{
		VirtualSchemaName: "default",
		Formatter:         "TSV",
		Header:            "0",
		UniqueRows:        "1",
		CompletionStamp:   "1",
		Dataset:           xmlDataset{Name: dataset, Interface: "default"},
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q.Dataset.Filters = append(q.Dataset.Filters, xmlFilter{Name: name, Value: strings.Join(filters[name], ",")})
	}
	for _, a := range attributes {
		q.Dataset.Attributes = append(q.Dataset.Attributes, xmlAttribute{Name: a})
	}

	body, err := xml.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	return append([]byte(xml.Header+"<!DOCTYPE Query>"), body...), nil
}
