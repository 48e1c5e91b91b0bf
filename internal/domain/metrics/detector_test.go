package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, columns ...Column) *Table {
	t.Helper()
	table, err := NewTable(columns)
	require.NoError(t, err)
	return table
}

func TestNewTable_Ragged(t *testing.T) {
	_, err := NewTable([]Column{
		{Name: "Category", Cells: []string{"NAV", "Profit"}},
		{Name: "Jan", Cells: []string{"1"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRaggedTable)
}

func TestNewTableFromRows_PadsShortRows(t *testing.T) {
	table := NewTableFromRows([]string{"Category", "Jan", "Feb"}, [][]string{
		{"NAV", "100"},
		{"Profit", "5", "6", "ignored"},
	})

	assert.Equal(t, 2, table.NumRows())
	assert.Equal(t, []string{"NAV", "100", ""}, table.Row(0))
	assert.Equal(t, []string{"Profit", "5", "6"}, table.Row(1))
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(DefaultDictionary())

	t.Run("first follows priority", func(t *testing.T) {
		tag, ok := m.First("Net Asset Value")
		require.True(t, ok)
		assert.Equal(t, TagAsset, tag)
	})

	t.Run("all is non exclusive", func(t *testing.T) {
		assert.Equal(t, []Tag{TagAsset, TagNAV}, m.All("Net Asset Value"))
		assert.Equal(t, []Tag{TagIncome, TagExpenses}, m.All("Fee Income"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.True(t, m.Matches(TagCashFlow, "NET CASH FLOW"))
		assert.False(t, m.Matches(TagCashFlow, "cashflow"))
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := m.First("Headcount")
		assert.False(t, ok)
		assert.Empty(t, m.All("Headcount"))
	})
}

func TestDetect_RowScanIsExclusive(t *testing.T) {
	table := mustTable(t,
		Column{Name: "category", Cells: []string{"Net Asset Value", "NAV", "Total Profit", "Fee Income", "Headcount", "NAV"}},
		Column{Name: "Q1", Cells: []string{"1", "2", "3", "4", "5", "6"}},
	)

	detected := Detect(table)

	assert.True(t, detected.RowScan)
	assert.Equal(t, map[Tag][]string{
		TagAsset:      {"Net Asset Value"},
		TagNAV:        {"NAV"},
		TagProfitLoss: {"Total Profit"},
		TagIncome:     {"Fee Income"},
	}, detected.Labels)

	seen := map[string]int{}
	for _, labels := range detected.Labels {
		for _, l := range labels {
			seen[l]++
		}
	}
	for label, n := range seen {
		assert.Equal(t, 1, n, "row %q classified more than once", label)
	}
}

func TestDetect_ColumnPathIsNonExclusive(t *testing.T) {
	table := mustTable(t,
		Column{Name: "Dates", Cells: []string{"2024-01", "2024-02"}},
		Column{Name: "Net Asset Value", Cells: []string{"1", "2"}},
		Column{Name: "Fee Income", Cells: []string{"1", "2"}},
		Column{Name: "Headcount", Cells: []string{"1", "2"}},
	)

	detected := Detect(table)

	assert.False(t, detected.RowScan)
	assert.Equal(t, []string{"Net Asset Value"}, detected.Labels[TagAsset])
	assert.Equal(t, []string{"Net Asset Value"}, detected.Labels[TagNAV])
	assert.Equal(t, []string{"Fee Income"}, detected.Labels[TagIncome])
	assert.Equal(t, []string{"Fee Income"}, detected.Labels[TagExpenses])
	assert.NotContains(t, detected.Labels, TagMetrics)
	assert.Equal(t, []Tag{TagAsset, TagNAV, TagIncome, TagExpenses}, detected.Tags())
}

func TestDetect_Fallback(t *testing.T) {
	tests := []struct {
		name    string
		columns []Column
		want    []string
	}{
		{
			name: "no keyword headers",
			columns: []Column{
				{Name: "Dates", Cells: []string{"a"}},
				{Name: "Alpha", Cells: []string{"1"}},
				{Name: "Beta", Cells: []string{"2"}},
			},
			want: []string{"Alpha", "Beta"},
		},
		{
			name: "category rows without keywords",
			columns: []Column{
				{Name: "Category", Cells: []string{"Headcount"}},
				{Name: "Jan", Cells: []string{"3"}},
			},
			want: []string{"Jan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detected := Detect(mustTable(t, tt.columns...))
			assert.True(t, detected.Fallback())
			assert.Equal(t, tt.want, detected.Labels[TagMetrics])
			assert.Equal(t, []Tag{TagMetrics}, detected.Tags())
		})
	}
}

func TestDetect_EmptyInputs(t *testing.T) {
	t.Run("nil table", func(t *testing.T) {
		assert.True(t, Detect(nil).Empty())
	})

	t.Run("no columns", func(t *testing.T) {
		assert.True(t, Detect(mustTable(t)).Empty())
	})

	t.Run("only category and dates headers", func(t *testing.T) {
		detected := Detect(mustTable(t,
			Column{Name: "Category"},
			Column{Name: "DATES"},
		))
		assert.True(t, detected.Empty())
	})
}

func TestDetector_CustomDictionary(t *testing.T) {
	d := NewDetector(Dictionary{
		Priority: []Tag{"headcount"},
		Keywords: map[Tag][]string{"headcount": {"HEADCOUNT", " "}},
	})

	detected := d.Detect(mustTable(t,
		Column{Name: "Category", Cells: []string{"Headcount", "NAV"}},
		Column{Name: "Jan", Cells: []string{"3", "4"}},
	))

	assert.Equal(t, map[Tag][]string{"headcount": {"Headcount"}}, detected.Labels)
}

func TestDetector_CustomPriorityOrdersTags(t *testing.T) {
	d := NewDetector(Dictionary{
		Priority: []Tag{"runway", "burn"},
		Keywords: map[Tag][]string{
			"runway": {"runway"},
			"burn":   {"burn"},
		},
	})

	table := mustTable(t,
		Column{Name: "Category", Cells: []string{"Monthly Burn", "Runway Months"}},
		Column{Name: "Jan", Cells: []string{"10", "12"}},
		Column{Name: "Feb", Cells: []string{"12", "10"}},
	)
	detected := d.Detect(table)

	assert.Equal(t, []Tag{"runway", "burn"}, detected.Tags())

	a := Assess(table, detected)
	require.Len(t, a.Contributions, 2)
	assert.Equal(t, Tag("runway"), a.Contributions[0].Tag)
	assert.Equal(t, Tag("burn"), a.Contributions[1].Tag)

	// a record reloaded without priority falls back to the default order
	assert.Equal(t, []Tag{TagNAV, TagMetrics}, DetectedMetrics{
		Labels: map[Tag][]string{TagMetrics: {"x"}, TagNAV: {"NAV"}},
	}.Tags())
}

func TestHumanizeTag(t *testing.T) {
	assert.Equal(t, "Profit Loss", HumanizeTag(TagProfitLoss))
	assert.Equal(t, "Nav", HumanizeTag(TagNAV))
	assert.Equal(t, "Cash Flow", HumanizeTag(TagCashFlow))
	assert.Equal(t, "Metrics", HumanizeTag(TagMetrics))
}
