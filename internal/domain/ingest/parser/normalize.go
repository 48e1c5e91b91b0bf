package parser

import (
	"strings"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// Normalize shapes live-feed values (header row plus data rows) into a table.
//
// Wide sheets, recognised by a "Dates" header cell or a "/" in any later header cell,
// keep their first column as the row labels under the Category header. Other sheets get
// their first column renamed to Category unless a Category header already exists.
// Rows and columns that are entirely blank are dropped.
func Normalize(headers []string, rows [][]string) *metrics.Table {
	headers = trimAll(headers)
	if len(headers) == 0 {
		return metrics.NewTableFromRows(nil, nil)
	}

	if isWide(headers) || !hasCategory(headers) {
		headers[0] = CategoryColumn
	}

	return compact(headers, rows)
}

func isWide(headers []string) bool {
	for i, h := range headers {
		if h == "Dates" {
			return true
		}
		if i > 0 && strings.Contains(h, "/") {
			return true
		}
	}
	return false
}

func hasCategory(headers []string) bool {
	for _, h := range headers {
		if strings.EqualFold(h, CategoryColumn) {
			return true
		}
	}
	return false
}
