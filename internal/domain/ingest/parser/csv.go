package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// ParseCSV reads a delimited text file into a table.
// The delimiter is detected among ',', ';' and tab unless opts.Delimiter is set.
func ParseCSV(r io.Reader, opts Options) (*metrics.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = detectDelimiter(data)
	}

	reader := gocsv.LazyCSVReader(bytes.NewReader(data))
	if cr, ok := reader.(*csv.Reader); ok {
		cr.Comma = delimiter
		cr.FieldsPerRecord = -1
		// leading-space trimming would swallow empty tab-separated fields
		cr.TrimLeadingSpace = delimiter != '\t'
	}

	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w: %w", ErrMalformedFile, err)
	}

	return buildUploadTable(raw, opts.HeaderRow)
}

// detectDelimiter picks the candidate that occurs most on the first lines, ignoring
// quoted sections so "1,000" style values do not count.
func detectDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t'}
	counts := make(map[rune]int, len(candidates))

	lines := strings.SplitN(string(data), "\n", 6)
	if len(lines) > 5 {
		lines = lines[:5]
	}
	for _, line := range lines {
		inQuotes := false
		for _, ch := range line {
			if ch == '"' {
				inQuotes = !inQuotes
				continue
			}
			if inQuotes {
				continue
			}
			for _, d := range candidates {
				if ch == d {
					counts[d]++
				}
			}
		}
	}

	best := ','
	for _, d := range candidates {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}
