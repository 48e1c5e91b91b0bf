package metrics

import (
	"strings"
)

const datesHeader = "dates"

// DetectedMetrics maps each tag to the labels classified under it, in table order.
// Labels are category values when RowScan is set, column headers otherwise.
// Priority is the tag order of the dictionary that produced the result.
type DetectedMetrics struct {
	Labels   map[Tag][]string `json:"labels"`
	RowScan  bool             `json:"row_scan"`
	Priority []Tag            `json:"priority,omitempty"`
}

// Empty reports whether no tag holds any label.
func (d DetectedMetrics) Empty() bool {
	for _, labels := range d.Labels {
		if len(labels) > 0 {
			return false
		}
	}
	return true
}

// Fallback reports whether the result is the catch-all classification.
func (d DetectedMetrics) Fallback() bool {
	return len(d.Labels) == 1 && len(d.Labels[TagMetrics]) > 0
}

// Tags returns the tags holding at least one label in Priority order, falling back to the
// default dictionary priority when Priority is empty. TagMetrics comes last.
func (d DetectedMetrics) Tags() []Tag {
	tags := make([]Tag, 0, len(d.Labels))
	for tag, labels := range d.Labels {
		if len(labels) > 0 {
			tags = append(tags, tag)
		}
	}
	priority := d.Priority
	if len(priority) == 0 {
		priority = DefaultDictionary().Priority
	}
	SortTags(tags, priority)
	return tags
}

// Detector classifies tables against a keyword dictionary.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	matcher *Matcher
}

// NewDetector builds a detector for dict.
func NewDetector(dict Dictionary) *Detector {
	return &Detector{matcher: NewMatcher(dict)}
}

var defaultDetector = NewDetector(DefaultDictionary())

// Detect classifies t with the default dictionary.
func Detect(t *Table) DetectedMetrics {
	return defaultDetector.Detect(t)
}

// Detect classifies rows of the category column when the table has one, and column
// headers otherwise. Row classification is exclusive: a row goes to the first tag in
// priority order whose keywords it contains. Header classification is not.
// When nothing matched, every header except "category" and "dates" lands under TagMetrics.
func (d *Detector) Detect(t *Table) DetectedMetrics {
	result := DetectedMetrics{Labels: make(map[Tag][]string), Priority: d.matcher.Priority()}
	if t.NumColumns() == 0 {
		return result
	}

	if catIdx := t.CategoryIndex(); catIdx >= 0 {
		result.RowScan = true
		for _, value := range t.columns[catIdx].Cells {
			if tag, ok := d.matcher.First(value); ok {
				result.Labels[tag] = appendUnique(result.Labels[tag], value)
			}
		}
	} else {
		for _, col := range t.columns {
			for _, tag := range d.matcher.All(col.Name) {
				result.Labels[tag] = appendUnique(result.Labels[tag], col.Name)
			}
		}
	}

	if result.Empty() {
		var fallback []string
		for _, col := range t.columns {
			name := strings.TrimSpace(col.Name)
			if strings.EqualFold(name, categoryHeader) || strings.EqualFold(name, datesHeader) {
				continue
			}
			fallback = appendUnique(fallback, col.Name)
		}
		result.Labels = make(map[Tag][]string)
		if len(fallback) > 0 {
			result.Labels[TagMetrics] = fallback
		}
	}

	return result
}

func appendUnique(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	return append(labels, label)
}
