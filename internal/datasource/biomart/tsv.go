package biomart

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const completionStamp = "[success]"

var errIncomplete = errors.New("response missing completion stamp")

// parseTSV splits a TSV response into positional rows. The trailing completion
// stamp is required; BioMart reports query errors in-band with a 200 status.
func parseTSV(body []byte) ([][]string, error) {
	trimmed := bytes.TrimRight(body, "\r\n")
	if msg, ok := inBandError(trimmed); ok {
		return nil, errors.New(msg)
	}

	idx := bytes.LastIndexByte(trimmed, '\n')
	last := trimmed[idx+1:]
	if strings.TrimSpace(string(last)) != completionStamp {
		return nil, errIncomplete
	}
	if idx < 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(trimmed[:idx]))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse tsv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func inBandError(body []byte) (string, bool) {
	s := strings.TrimSpace(string(body))
	for _, prefix := range []string{"Query ERROR", "ERROR", "Mart name conflict", "Serious Error"} {
		if strings.HasPrefix(s, prefix) {
			line, _, _ := strings.Cut(s, "\n")
			return line, true
		}
	}
	return "", false
}
