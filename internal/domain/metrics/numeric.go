package metrics

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseNumber coerces a spreadsheet cell into a number. Thousands separators and
// whitespace are stripped; anything that still is not a decimal literal is rejected,
// as is a literal outside the float64 range.
func ParseNumber(cell string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\n', '\r', '\u00a0':
			return -1
		}
		return r
	}, cell)
	if cleaned == "" {
		return 0, false
	}

	if _, err := decimal.NewFromString(cleaned); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// numericSeries coerces cells and drops the ones that are not numbers.
func numericSeries(cells []string) []float64 {
	series := make([]float64, 0, len(cells))
	for _, cell := range cells {
		if v, ok := ParseNumber(cell); ok {
			series = append(series, v)
		}
	}
	return series
}
