package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

func TestParseCSV(t *testing.T) {
	t.Run("skips title line and renames first column", func(t *testing.T) {
		input := `Fund report Q1,,
Metric,Jan,Feb
NAV,"1,000","1,200"
Total Profit,50,40
,,
`
		table, err := ParseCSV(strings.NewReader(input), DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, []string{"Category", "Jan", "Feb"}, table.Headers())
		assert.Equal(t, 2, table.NumRows())
		assert.Equal(t, []string{"NAV", "1,000", "1,200"}, table.Row(0))

		detected := metrics.Detect(table)
		assert.True(t, detected.RowScan)
		assert.Equal(t, map[metrics.Tag][]float64{
			metrics.TagNAV:        {1000, 1200},
			metrics.TagProfitLoss: {50, 40},
		}, metrics.ExtractSeries(table, detected))
	})

	t.Run("detects semicolon delimiter", func(t *testing.T) {
		input := "Category;2024-01;2024-02\nRevenue;10;12\nCosts;4\n"
		opts := DefaultOptions()
		opts.HeaderRow = 0

		table, err := ParseCSV(strings.NewReader(input), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"Category", "2024-01", "2024-02"}, table.Headers())
		assert.Equal(t, []string{"Costs", "4", ""}, table.Row(1))
	})

	t.Run("auto header skips leading notes", func(t *testing.T) {
		input := "confidential\n\nLine\tQ1\tQ2\nNet Cash Flow\t1\t2\n"
		opts := Options{HeaderRow: HeaderAuto}

		table, err := ParseCSV(strings.NewReader(input), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"Category", "Q1", "Q2"}, table.Headers())
		assert.Equal(t, 1, table.NumRows())
	})

	t.Run("single category column", func(t *testing.T) {
		input := "title,,,\nLine,Category,Jan,Feb\nNAV,fund,1,2\n"
		table, err := ParseCSV(strings.NewReader(input), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []string{"Category", "Jan", "Feb"}, table.Headers())
		assert.Equal(t, []string{"NAV", "1", "2"}, table.Row(0))
		assert.Equal(t, map[metrics.Tag][]float64{metrics.TagNAV: {1, 2}},
			metrics.ExtractSeries(table, metrics.Detect(table)))
	})

	t.Run("drops blank columns", func(t *testing.T) {
		input := "x,,\nCategory,,Jan\nNAV,,3\n"
		table, err := ParseCSV(strings.NewReader(input), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []string{"Category", "Jan"}, table.Headers())
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader("  \n"), DefaultOptions())
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("header only", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader("title\nCategory,Jan\n"), DefaultOptions())
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  rune
	}{
		{"comma", "a,b,c\n1,2,3", ','},
		{"semicolon", "a;b;c\n\"1,5\";2;3", ';'},
		{"tab", "a\tb\tc", '\t'},
		{"quoted commas ignored", "a;b\n\"1,000,000\";2", ';'},
		{"nothing defaults to comma", "single", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDelimiter([]byte(tt.input)))
		})
	}
}

func buildWorkbook(t *testing.T, sheet string, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseXLSX(t *testing.T) {
	t.Run("prefers data sheet", func(t *testing.T) {
		buf := buildWorkbook(t, "Data", [][]interface{}{
			{"Portfolio"},
			{"Line", "Jan", "Feb"},
			{"Net Asset Value", 100, 110},
		})

		table, err := ParseXLSX(buf, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []string{"Category", "Jan", "Feb"}, table.Headers())
		assert.Equal(t, []string{"Net Asset Value", "100", "110"}, table.Row(0))
	})

	t.Run("formatted cells read as stored values", func(t *testing.T) {
		f := excelize.NewFile()
		defer f.Close()
		rows := [][]interface{}{
			{"Fund report"},
			{"Category", "Jan", "Feb", "Mar"},
			{"NAV", 1200.5, 1300.25, 900},
			{"Net Profit", 0.12, 0.08, -0.05},
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
		}
		currency := "$#,##0.00"
		currencyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &currency})
		require.NoError(t, err)
		require.NoError(t, f.SetCellStyle("Sheet1", "B3", "D3", currencyStyle))
		percentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 9})
		require.NoError(t, err)
		require.NoError(t, f.SetCellStyle("Sheet1", "B4", "D4", percentStyle))
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)

		table, err := ParseXLSX(buf, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []string{"NAV", "1200.5", "1300.25", "900"}, table.Row(0))

		detected := metrics.Detect(table)
		assert.Equal(t, map[metrics.Tag][]float64{
			metrics.TagNAV:        {1200.5, 1300.25, 900},
			metrics.TagProfitLoss: {0.12, 0.08, -0.05},
		}, metrics.ExtractSeries(table, detected))
		assert.True(t, metrics.Assess(table, detected).Assessed)
	})

	t.Run("named sheet missing", func(t *testing.T) {
		buf := buildWorkbook(t, "Sheet1", [][]interface{}{{"a", "b"}, {"c", "d"}})
		_, err := ParseXLSX(buf, Options{Sheet: "Quarterly"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedFile)
		assert.Contains(t, err.Error(), "Quarterly")
	})

	t.Run("empty sheet", func(t *testing.T) {
		buf := buildWorkbook(t, "Sheet1", nil)
		_, err := ParseXLSX(buf, DefaultOptions())
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("not a workbook", func(t *testing.T) {
		_, err := ParseXLSX(strings.NewReader("plain text"), DefaultOptions())
		assert.ErrorIs(t, err, ErrMalformedFile)
	})
}

func TestParse_Dispatch(t *testing.T) {
	_, err := Parse("report.pdf", strings.NewReader("x"), DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	table, err := Parse("REPORT.CSV", strings.NewReader("t\nCategory,Jan\nNAV,1\n"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, table.NumRows())

	format, err := DetectFormat("book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		headers     []string
		rows        [][]string
		wantHeaders []string
		wantRows    int
	}{
		{
			name:        "wide sheet with Dates header",
			headers:     []string{"Dates", "01/2024", "02/2024"},
			rows:        [][]string{{"NAV", "1", "2"}, {"", "", ""}, {"Net Profit", "3", "4"}},
			wantHeaders: []string{"Category", "01/2024", "02/2024"},
			wantRows:    2,
		},
		{
			name:        "wide sheet detected by slash",
			headers:     []string{"Metric", "1/31", "2/28"},
			rows:        [][]string{{"NAV", "1", "2"}},
			wantHeaders: []string{"Category", "1/31", "2/28"},
			wantRows:    1,
		},
		{
			name:        "long sheet keeps existing category",
			headers:     []string{"Month", "Category", "NAV"},
			rows:        [][]string{{"Jan", "x", "1"}},
			wantHeaders: []string{"Month", "Category", "NAV"},
			wantRows:    1,
		},
		{
			name:        "long sheet renames first column",
			headers:     []string{"Month", "NAV", ""},
			rows:        [][]string{{"Jan", "1", ""}, {"Feb", "2"}},
			wantHeaders: []string{"Category", "NAV"},
			wantRows:    2,
		},
		{
			name:        "wide sheet drops later Category column",
			headers:     []string{"Dates", "Category", "01/2024", "02/2024"},
			rows:        [][]string{{"NAV", "fund", "1", "2"}, {"Net Profit", "fund", "3", "4"}},
			wantHeaders: []string{"Category", "01/2024", "02/2024"},
			wantRows:    2,
		},
		{
			name:        "long sheet keeps lowercase category",
			headers:     []string{"Month", "category", "NAV"},
			rows:        [][]string{{"Jan", "x", "1"}},
			wantHeaders: []string{"Month", "category", "NAV"},
			wantRows:    1,
		},
		{
			name:        "no headers",
			headers:     nil,
			wantHeaders: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Normalize(tt.headers, tt.rows)
			assert.Equal(t, tt.wantHeaders, table.Headers())
			assert.Equal(t, tt.wantRows, table.NumRows())
		})
	}
}
