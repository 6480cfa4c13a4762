// Package category assigns spending categories to transactions by keyword matching.
package category

import (
	"strings"
)

// Categorizer matches text against an ordered category table.
// It is read-only after construction and safe for concurrent use.
type Categorizer struct {
	table Table
}

var defaultCategorizer = New(DefaultTable())

// New creates a Categorizer for table. Keywords are lowercased; the caller's
// table is not modified.
func New(table Table) *Categorizer {
	normalized := make(Table, 0, len(table))
	for _, c := range table {
		keywords := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			keywords = append(keywords, strings.ToLower(kw))
		}
		normalized = append(normalized, Category{Label: c.Label, Keywords: keywords})
	}
	return &Categorizer{table: normalized}
}

// Default returns the Categorizer for the compiled-in table.
func Default() *Categorizer {
	return defaultCategorizer
}

// Categorize returns the label of the first category in table order whose keyword
// occurs in the receiver or the full text, or Miscellaneous.
func (c *Categorizer) Categorize(receiver *string, text string) string {
	var recv string
	if receiver != nil {
		recv = *receiver
	}
	if recv == "" && text == "" {
		return Miscellaneous
	}

	search := strings.ToLower(recv + " " + text)
	for _, cat := range c.table {
		for _, kw := range cat.Keywords {
			if strings.Contains(search, kw) {
				return cat.Label
			}
		}
	}
	return Miscellaneous
}

// Table returns a copy of the table in use.
func (c *Categorizer) Table() Table {
	out := make(Table, len(c.table))
	for i, cat := range c.table {
		out[i] = Category{Label: cat.Label, Keywords: append([]string(nil), cat.Keywords...)}
	}
	return out
}

// Labels returns all labels the Categorizer can produce, Miscellaneous last.
func (c *Categorizer) Labels() []string {
	return append(c.table.Labels(), Miscellaneous)
}

// Categorize categorizes with the compiled-in table.
func Categorize(receiver *string, text string) string {
	return defaultCategorizer.Categorize(receiver, text)
}
