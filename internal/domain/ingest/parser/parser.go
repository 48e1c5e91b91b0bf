// Package parser turns uploaded spreadsheets (CSV, XLSX) and raw live-feed values
// into metrics tables.
package parser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

var (
	// ErrEmptyFile is returned when the input holds no header or no data rows
	ErrEmptyFile = errors.New("file is empty")
	// ErrUnsupportedFormat is returned for extensions other than .csv and .xlsx
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrMalformedFile is returned when the content cannot be read in its declared format
	ErrMalformedFile = errors.New("malformed file")
)

// CategoryColumn is the header given to the row-label column
const CategoryColumn = "Category"

// HeaderAuto asks the parser to pick the header row itself
const HeaderAuto = -1

// Options configures how a file is read
type Options struct {
	// HeaderRow is the 0-based index of the header row; rows above it are skipped.
	// Use HeaderAuto to pick the first row with at least two non-empty cells.
	HeaderRow int
	// Delimiter overrides CSV delimiter detection when non-zero.
	Delimiter rune
	// Sheet selects the XLSX worksheet; empty picks "data", "sheet1" or the first sheet.
	Sheet string
}

// DefaultOptions returns the options used for dashboard uploads: one title line above the header.
func DefaultOptions() Options {
	return Options{HeaderRow: 1}
}

// Format is a supported upload format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat maps a filename to its format.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%q: %w", filename, ErrUnsupportedFormat)
	}
}

// Parse reads r with the parser matching filename's extension.
func Parse(filename string, r io.Reader, opts Options) (*metrics.Table, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatXLSX:
		return ParseXLSX(r, opts)
	default:
		return ParseCSV(r, opts)
	}
}

// buildUploadTable applies the upload conventions to raw rows: the header row is
// selected, the first column is renamed to Category and blank rows and columns go away.
func buildUploadTable(raw [][]string, headerRow int) (*metrics.Table, error) {
	if headerRow == HeaderAuto {
		headerRow = findHeaderRow(raw)
	}
	if headerRow < 0 || headerRow >= len(raw) {
		return nil, fmt.Errorf("no header row at line %d: %w", headerRow+1, ErrEmptyFile)
	}

	headers := trimAll(raw[headerRow])
	if len(headers) == 0 {
		return nil, fmt.Errorf("blank header row: %w", ErrEmptyFile)
	}
	headers[0] = CategoryColumn

	table := compact(headers, raw[headerRow+1:])
	if table.NumRows() == 0 {
		return nil, fmt.Errorf("no data rows below header: %w", ErrEmptyFile)
	}
	return table, nil
}

// findHeaderRow returns the first row with at least two non-empty cells.
func findHeaderRow(raw [][]string) int {
	for i, row := range raw {
		filled := 0
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				filled++
			}
		}
		if filled >= 2 {
			return i
		}
	}
	return -1
}

// compact drops rows and columns whose cells are all blank, padding short rows.
// A column is kept when its header or any of its cells is non-blank. Once the first
// column is the Category column, later columns with that header are dropped.
func compact(headers []string, rows [][]string) *metrics.Table {
	var kept [][]string
	for _, row := range rows {
		if !isBlank(row) {
			kept = append(kept, row)
		}
	}

	labelled := len(headers) > 0 && strings.EqualFold(headers[0], CategoryColumn)

	var cols []int
	for c, h := range headers {
		if c > 0 && labelled && strings.EqualFold(strings.TrimSpace(h), CategoryColumn) {
			continue
		}
		if strings.TrimSpace(h) != "" {
			cols = append(cols, c)
			continue
		}
		for _, row := range kept {
			if c < len(row) && strings.TrimSpace(row[c]) != "" {
				cols = append(cols, c)
				break
			}
		}
	}

	outHeaders := make([]string, len(cols))
	for i, c := range cols {
		outHeaders[i] = headers[c]
	}
	outRows := make([][]string, len(kept))
	for r, row := range kept {
		out := make([]string, len(cols))
		for i, c := range cols {
			if c < len(row) {
				out[i] = strings.TrimSpace(row[c])
			}
		}
		outRows[r] = out
	}

	return metrics.NewTableFromRows(outHeaders, outRows)
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
