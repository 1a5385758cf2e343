package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// categoryPalette is assigned to categories in descending amount order.
var categoryPalette = []string{
	"#4CAF50", "#2196F3", "#FF9800", "#E91E63", "#9C27B0",
	"#00BCD4", "#FFC107", "#795548", "#607D8B", "#F44336",
}

// CategorySummary is the share of total spend of one category.
type CategorySummary struct {
	Name       string
	Amount     int64
	Percentage float64 // 0-100
	Color      string
}

// LedgerResult holds everything derived from a transaction history.
type LedgerResult struct {
	Balance                int64
	TotalSpent             int64
	TotalViolationsHistory int64
	PerCategoryTotals      map[string]int64
	Categories             []CategorySummary
}

// Reconcile derives balance and spend statistics. Every transaction counts as
// spent regardless of its status, and the balance is not clamped at zero.
func Reconcile(initialAllowance int64, txs []Transaction) LedgerResult {
	res := LedgerResult{PerCategoryTotals: make(map[string]int64)}
	for _, tx := range txs {
		res.TotalSpent += tx.Amount
		if tx.Status == Rejected {
			res.TotalViolationsHistory += tx.Amount
		}
		res.PerCategoryTotals[tx.Category] += tx.Amount
	}
	res.Balance = initialAllowance - res.TotalSpent
	res.Categories = CategoryBreakdown(res.PerCategoryTotals, res.TotalSpent)
	return res
}

// CategoryBreakdown converts per-category totals into percentages of total.
// All percentages are zero when total is zero.
func CategoryBreakdown(totals map[string]int64, total int64) []CategorySummary {
	out := make([]CategorySummary, 0, len(totals))
	for name, amount := range totals {
		out = append(out, CategorySummary{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})

	hundred := decimal.NewFromInt(100)
	grand := decimal.NewFromInt(total)
	for i := range out {
		out[i].Color = categoryPalette[i%len(categoryPalette)]
		if total == 0 {
			continue
		}
		share := decimal.NewFromInt(out[i].Amount).Mul(hundred).DivRound(grand, 4)
		out[i].Percentage = share.InexactFloat64()
	}
	return out
}

// SortByDateDesc returns a copy of txs ordered newest first. Transactions with
// unparseable dates keep their relative order at the end.
func SortByDateDesc(txs []Transaction) []Transaction {
	type dated struct {
		tx Transaction
		at time.Time
		ok bool
	}
	items := make([]dated, len(txs))
	for i, tx := range txs {
		at, err := tx.ParseDate()
		items[i] = dated{tx: tx, at: at, ok: err == nil}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok
		}
		return items[i].at.After(items[j].at)
	})
	out := make([]Transaction, len(items))
	for i, it := range items {
		out[i] = it.tx
	}
	return out
}

// MonthlyTotals sums amounts per month of the given year. Index 0 is January.
// A transaction whose date cannot be parsed adds nothing here.
func MonthlyTotals(txs []Transaction, year int) [12]int64 {
	var months [12]int64
	for _, tx := range txs {
		at, err := tx.ParseDate()
		if err != nil || at.Year() != year {
			continue
		}
		months[at.Month()-1] += tx.Amount
	}
	return months
}
