package metrics

// representativeCells returns the raw cells of the first label of tag that resolves in t.
// On the row-scan path a label resolves to the first row carrying it as category value;
// headers are tried as well so the catch-all tag resolves on either path.
func representativeCells(t *Table, detected DetectedMetrics, tag Tag) ([]string, bool) {
	if t == nil {
		return nil, false
	}
	catIdx := t.CategoryIndex()
	for _, label := range detected.Labels[tag] {
		if detected.RowScan {
			if cells, ok := t.rowByCategory(catIdx, label); ok {
				return cells, true
			}
		}
		if cells, ok := t.columnByName(catIdx, label); ok {
			return cells, true
		}
	}
	return nil, false
}

// ExtractSeries returns the representative numeric series of every detected tag.
// Non-numeric cells are dropped and tags left without values are omitted.
func ExtractSeries(t *Table, detected DetectedMetrics) map[Tag][]float64 {
	out := make(map[Tag][]float64, len(detected.Labels))
	for tag := range detected.Labels {
		cells, ok := representativeCells(t, detected, tag)
		if !ok {
			continue
		}
		if series := numericSeries(cells); len(series) > 0 {
			out[tag] = series
		}
	}
	return out
}
