// Package report computes budget summaries over stored transactions.
package report

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// CategoryTotal is the spend of one category.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// Summary is the budget position over a set of transactions.
type Summary struct {
	Budget     decimal.Decimal
	Spent      decimal.Decimal
	Remaining  decimal.Decimal
	OverBudget bool
	Count      int
	Unsynced   int
	// Categories are ordered by total, largest first; ties by name.
	Categories []CategoryTotal
}

// Summarize totals txns against budget. Records without an amount are ignored.
func Summarize(txns []*api.StoredTransaction, budget decimal.Decimal) Summary {
	s := Summary{Budget: budget, Spent: decimal.Zero}

	byCategory := make(map[string]*CategoryTotal)
	for _, txn := range txns {
		if txn.Amount == nil {
			continue
		}
		s.Count++
		s.Spent = s.Spent.Add(*txn.Amount)
		if !txn.Synced {
			s.Unsynced++
		}

		ct, ok := byCategory[txn.Category]
		if !ok {
			ct = &CategoryTotal{Category: txn.Category, Total: decimal.Zero}
			byCategory[txn.Category] = ct
		}
		ct.Total = ct.Total.Add(*txn.Amount)
		ct.Count++
	}

	s.Remaining = budget.Sub(s.Spent)
	s.OverBudget = s.Spent.GreaterThan(budget)

	for _, ct := range byCategory {
		s.Categories = append(s.Categories, *ct)
	}
	slices.SortFunc(s.Categories, func(a, b CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		if a.Category < b.Category {
			return -1
		}
		if a.Category > b.Category {
			return 1
		}
		return 0
	})
	return s
}

// Month returns the transactions captured in the calendar month of now, in now's location.
func Month(txns []*api.StoredTransaction, now time.Time) []*api.StoredTransaction {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0)

	var out []*api.StoredTransaction
	for _, txn := range txns {
		ts := txn.Timestamp.In(now.Location())
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, txn)
		}
	}
	return out
}

// Formatter renders amounts with locale digit grouping.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter returns a formatter for tag, prefixing amounts with symbol.
func NewFormatter(tag language.Tag, symbol string) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag), symbol: symbol}
}

// Amount formats d with two decimals, e.g. "₹ 1,250.00".
func (f *Formatter) Amount(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	return sign + f.symbol + " " + f.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// Percent formats part as a share of whole, e.g. "42.5%". A zero whole yields "0.0%".
func (f *Formatter) Percent(part, whole decimal.Decimal) string {
	if whole.IsZero() {
		return "0.0%"
	}
	pct := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(1)
	return f.printer.Sprintf("%.1f%%", pct.InexactFloat64())
}
