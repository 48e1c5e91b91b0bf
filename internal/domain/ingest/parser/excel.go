package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// ParseXLSX reads one worksheet of an Excel workbook into a table.
// Cells are read as stored values, so number formats such as currency do not reach the table.
func ParseXLSX(r io.Reader, opts Options) (*metrics.Table, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w: %w", ErrMalformedFile, err)
	}
	defer f.Close()

	sheet, err := pickSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s: %w", sheet, ErrEmptyFile)
	}

	return buildUploadTable(rows, opts.HeaderRow)
}

// pickSheet returns the requested sheet, or the first of "data", "sheet1" and the first sheet.
func pickSheet(f *excelize.File, requested string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets: %w", ErrEmptyFile)
	}

	if requested != "" {
		for _, s := range sheets {
			if strings.EqualFold(s, requested) {
				return s, nil
			}
		}
		return "", fmt.Errorf("sheet %q not found: %w", requested, ErrMalformedFile)
	}

	for _, preferred := range []string{"data", "sheet1"} {
		for _, s := range sheets {
			if strings.EqualFold(s, preferred) {
				return s, nil
			}
		}
	}
	return sheets[0], nil
}
