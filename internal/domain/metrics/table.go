package metrics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRaggedTable is returned when columns of a table have different lengths
var ErrRaggedTable = errors.New("table columns have unequal lengths")

// categoryHeader is the header that designates the row-label column
const categoryHeader = "category"

// Column is a named, ordered sequence of raw cell values
type Column struct {
	Name  string
	Cells []string
}

// Table is an ordered set of equally long columns. It is immutable once built:
// accessors return copies.
type Table struct {
	columns []Column
	rows    int
}

// NewTable builds a table from columns. All columns must have the same length.
func NewTable(columns []Column) (*Table, error) {
	t := &Table{columns: make([]Column, len(columns))}
	for i, col := range columns {
		if i == 0 {
			t.rows = len(col.Cells)
		} else if len(col.Cells) != t.rows {
			return nil, fmt.Errorf("column %q has %d cells, expected %d: %w", col.Name, len(col.Cells), t.rows, ErrRaggedTable)
		}
		t.columns[i] = Column{Name: col.Name, Cells: append([]string(nil), col.Cells...)}
	}
	return t, nil
}

// NewTableFromRows builds a table from a header row and data rows.
// Short rows are padded with empty cells and cells beyond the header are ignored,
// so ragged source data never fails here.
func NewTableFromRows(headers []string, rows [][]string) *Table {
	t := &Table{columns: make([]Column, len(headers)), rows: len(rows)}
	for c, name := range headers {
		cells := make([]string, len(rows))
		for r, row := range rows {
			if c < len(row) {
				cells[r] = row[c]
			}
		}
		t.columns[c] = Column{Name: name, Cells: cells}
	}
	return t
}

// Headers returns the column names in order.
func (t *Table) Headers() []string {
	if t == nil {
		return nil
	}
	headers := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = col.Name
	}
	return headers
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

// Column returns a copy of the first column named name (exact match).
func (t *Table) Column(name string) (Column, bool) {
	if t == nil {
		return Column{}, false
	}
	for _, col := range t.columns {
		if col.Name == name {
			return Column{Name: col.Name, Cells: append([]string(nil), col.Cells...)}, true
		}
	}
	return Column{}, false
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []string {
	if t == nil || i < 0 || i >= t.rows {
		return nil
	}
	row := make([]string, len(t.columns))
	for c, col := range t.columns {
		row[c] = col.Cells[i]
	}
	return row
}

// Rows returns every data row in column order.
func (t *Table) Rows() [][]string {
	rows := make([][]string, t.NumRows())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// CategoryIndex returns the index of the first column whose header equals
// "category" case-insensitively, or -1.
func (t *Table) CategoryIndex() int {
	if t == nil {
		return -1
	}
	for i, col := range t.columns {
		if strings.EqualFold(strings.TrimSpace(col.Name), categoryHeader) {
			return i
		}
	}
	return -1
}

// rowByCategory returns the non-category cells of the first row whose category value equals label.
func (t *Table) rowByCategory(catIdx int, label string) ([]string, bool) {
	if catIdx < 0 || catIdx >= len(t.columns) {
		return nil, false
	}
	for r, v := range t.columns[catIdx].Cells {
		if v != label {
			continue
		}
		cells := make([]string, 0, len(t.columns)-1)
		for c, col := range t.columns {
			if c == catIdx {
				continue
			}
			cells = append(cells, col.Cells[r])
		}
		return cells, true
	}
	return nil, false
}

// columnByName returns the cells of the first non-category column named label.
func (t *Table) columnByName(catIdx int, label string) ([]string, bool) {
	for c, col := range t.columns {
		if c == catIdx || col.Name != label {
			continue
		}
		return col.Cells, true
	}
	return nil, false
}
