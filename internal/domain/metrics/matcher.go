package metrics

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Matcher tests labels against a Dictionary using one Aho-Corasick automaton per tag.
// Each label is scanned once per tag regardless of how many keywords the tag has.
// Matcher only uses the read-only Contains path of the automaton, so a single
// instance can be shared between goroutines.
type Matcher struct {
	priority []Tag
	automata map[Tag]*ahocorasick.Matcher
}

// NewMatcher builds the automata for every tag in the dictionary.
// Keywords are lowercased and blanks dropped.
func NewMatcher(dict Dictionary) *Matcher {
	m := &Matcher{
		priority: append([]Tag(nil), dict.Priority...),
		automata: make(map[Tag]*ahocorasick.Matcher, len(dict.Keywords)),
	}

	for _, tag := range dict.Priority {
		keywords := make([]string, 0, len(dict.Keywords[tag]))
		for _, kw := range dict.Keywords[tag] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			keywords = append(keywords, kw)
		}
		if len(keywords) == 0 {
			continue
		}
		m.automata[tag] = ahocorasick.NewStringMatcher(keywords)
	}

	return m
}

// Priority returns the tag order used by First.
func (m *Matcher) Priority() []Tag {
	return append([]Tag(nil), m.priority...)
}

// Matches reports whether label contains at least one keyword of tag.
func (m *Matcher) Matches(tag Tag, label string) bool {
	automaton, ok := m.automata[tag]
	if !ok {
		return false
	}
	return automaton.Contains([]byte(strings.ToLower(label)))
}

// First returns the highest-priority tag whose keywords occur in label.
func (m *Matcher) First(label string) (Tag, bool) {
	lower := []byte(strings.ToLower(label))
	for _, tag := range m.priority {
		if automaton, ok := m.automata[tag]; ok && automaton.Contains(lower) {
			return tag, true
		}
	}
	return "", false
}

// All returns every tag whose keywords occur in label, in priority order.
func (m *Matcher) All(label string) []Tag {
	lower := []byte(strings.ToLower(label))
	var tags []Tag
	for _, tag := range m.priority {
		if automaton, ok := m.automata[tag]; ok && automaton.Contains(lower) {
			tags = append(tags, tag)
		}
	}
	return tags
}
