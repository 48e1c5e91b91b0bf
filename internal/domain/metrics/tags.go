// Package metrics classifies financial tables into metric categories and scores
// their relative volatility. Everything in this package is pure: no I/O, no globals
// that mutate after init.
package metrics

import (
	"sort"
	"strings"
)

// Tag identifies a financial metric category
type Tag string

const (
	TagAsset      Tag = "asset"
	TagNAV        Tag = "nav"
	TagProfitLoss Tag = "profit_loss"
	TagCashFlow   Tag = "cash_flow"
	TagIncome     Tag = "income"
	TagExpenses   Tag = "expenses"

	// TagMetrics is the catch-all used when no keyword matched anything
	TagMetrics Tag = "metrics"
)

// Dictionary maps each tag to its lowercase substring keywords. Priority is the
// order in which tags are tried on the exclusive row-scan path.
type Dictionary struct {
	Priority []Tag
	Keywords map[Tag][]string
}

// DefaultDictionary returns the built-in keyword dictionary.
// A fresh copy is returned on each call so callers cannot alter shared state.
func DefaultDictionary() Dictionary {
	return Dictionary{
		Priority: []Tag{TagAsset, TagNAV, TagProfitLoss, TagCashFlow, TagIncome, TagExpenses},
		Keywords: map[Tag][]string{
			TagAsset:      {"asset", "assets", "asset valuation", "asset value", "onchain reserve", "offchain cash"},
			TagNAV:        {"nav", "net asset value", "net asset"},
			TagProfitLoss: {"profit", "loss", "profit / loss", "profit/loss", "total profit", "net profit", "realized profit"},
			TagCashFlow:   {"cash flow", "net cash flow", "net cash", "cash flow from"},
			TagIncome:     {"income", "revenue", "total income", "accrued fees"},
			TagExpenses:   {"expense", "expenses", "total expenses", "cost", "costs", "fee", "payments"},
		},
	}
}

// HumanizeTag renders a tag for prompts and reports: "profit_loss" -> "Profit Loss"
func HumanizeTag(tag Tag) string {
	words := strings.Fields(strings.ReplaceAll(string(tag), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// SortTags orders tags by the dictionary priority; unknown tags (including
// TagMetrics) come last in lexical order.
func SortTags(tags []Tag, priority []Tag) {
	rank := make(map[Tag]int, len(priority))
	for i, t := range priority {
		rank[t] = i
	}
	sort.SliceStable(tags, func(i, j int) bool {
		ri, iok := rank[tags[i]]
		rj, jok := rank[tags[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return tags[i] < tags[j]
		}
	})
}
