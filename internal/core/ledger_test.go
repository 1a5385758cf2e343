package core

import (
	"math"
	"testing"
)

func tx(amount int64, status Status, category, date string) Transaction {
	return Transaction{
		ID:          category + date,
		StudentID:   "s1",
		Date:        date,
		Description: "item",
		Category:    category,
		Quantity:    1,
		UnitPrice:   amount,
		Amount:      amount,
		Status:      status,
	}
}

func TestReconcileScenario(t *testing.T) {
	txs := []Transaction{
		tx(50000, Approved, "Makan", "Jan 05/2025"),
		tx(20000, Rejected, "Buku", "Jan 06/2025"),
		tx(30000, Pending, "Transport", "Jan 07/2025"),
	}
	res := Reconcile(1000000, txs)

	if res.TotalSpent != 100000 {
		t.Fatalf("TotalSpent = %d, want 100000", res.TotalSpent)
	}
	if res.Balance != 900000 {
		t.Fatalf("Balance = %d, want 900000", res.Balance)
	}
	if res.TotalViolationsHistory != 20000 {
		t.Fatalf("TotalViolationsHistory = %d, want 20000", res.TotalViolationsHistory)
	}
	if res.PerCategoryTotals["Buku"] != 20000 {
		t.Fatalf("Buku total = %d", res.PerCategoryTotals["Buku"])
	}
}

func TestReconcileCountsEveryStatus(t *testing.T) {
	tests := []struct {
		name string
		txs  []Transaction
		want int64
	}{
		{"empty", nil, 0},
		{"only rejected", []Transaction{tx(10, Rejected, "a", "Feb 01/2025"), tx(5, Rejected, "a", "Feb 02/2025")}, 15},
		{"only pending", []Transaction{tx(7, Pending, "a", "Feb 01/2025")}, 7},
		{"mixed", []Transaction{tx(1, Pending, "a", ""), tx(2, Approved, "b", "x"), tx(3, Rejected, "c", "Mar 01/2025")}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(0, tt.txs)
			if res.TotalSpent != tt.want {
				t.Errorf("TotalSpent = %d, want %d", res.TotalSpent, tt.want)
			}
			if res.Balance != -tt.want {
				t.Errorf("Balance = %d, want %d", res.Balance, -tt.want)
			}
		})
	}
}

func TestReconcileAllowsNegativeBalance(t *testing.T) {
	res := Reconcile(100, []Transaction{tx(250, Approved, "a", "Apr 01/2025")})
	if res.Balance != -150 {
		t.Fatalf("Balance = %d, want -150", res.Balance)
	}
}

func TestCategoryPercentages(t *testing.T) {
	t.Run("sum to 100", func(t *testing.T) {
		res := Reconcile(0, []Transaction{
			tx(1, Approved, "a", "Jan 01/2025"),
			tx(1, Approved, "b", "Jan 01/2025"),
			tx(1, Approved, "c", "Jan 01/2025"),
		})
		var sum float64
		for _, c := range res.Categories {
			sum += c.Percentage
		}
		if math.Abs(sum-100) > 0.01 {
			t.Fatalf("percentages sum to %v", sum)
		}
	})

	t.Run("all zero without spend", func(t *testing.T) {
		res := Reconcile(0, []Transaction{tx(0, Approved, "a", "Jan 01/2025"), tx(0, Pending, "b", "Jan 01/2025")})
		for _, c := range res.Categories {
			if c.Percentage != 0 {
				t.Fatalf("category %s = %v, want 0", c.Name, c.Percentage)
			}
		}
	})

	t.Run("ordered by amount with colors", func(t *testing.T) {
		res := Reconcile(0, []Transaction{
			tx(25, Approved, "small", "Jan 01/2025"),
			tx(75, Approved, "big", "Jan 01/2025"),
		})
		if res.Categories[0].Name != "big" || res.Categories[0].Percentage != 75 {
			t.Fatalf("unexpected first category: %+v", res.Categories[0])
		}
		if res.Categories[0].Color == "" || res.Categories[0].Color == res.Categories[1].Color {
			t.Fatalf("expected distinct colors: %+v", res.Categories)
		}
	})
}

func TestSortByDateDesc(t *testing.T) {
	in := []Transaction{
		tx(1, Approved, "old", "Jan 01/2024"),
		tx(2, Approved, "bad", "not a date"),
		tx(3, Approved, "new", "Mar 15/2025"),
		tx(4, Approved, "mid", "Dec 31/2024"),
	}
	out := SortByDateDesc(in)
	want := []string{"new", "mid", "old", "bad"}
	for i, w := range want {
		if out[i].Category != w {
			t.Fatalf("position %d = %s, want %s", i, out[i].Category, w)
		}
	}
	if in[0].Category != "old" {
		t.Fatal("input slice was modified")
	}
}

func TestMonthlyTotalsSkipsBadDates(t *testing.T) {
	txs := []Transaction{
		tx(100, Approved, "a", "Jan 10/2025"),
		tx(50, Approved, "a", "Jan 11/2025"),
		tx(70, Rejected, "a", "Jul 01/2025"),
		tx(999, Approved, "a", "garbage"),
		tx(5, Approved, "a", "Jul 01/2024"),
	}
	months := MonthlyTotals(txs, 2025)
	if months[0] != 150 || months[6] != 70 {
		t.Fatalf("unexpected months: %v", months)
	}
	var sum int64
	for _, m := range months {
		sum += m
	}
	if sum != 220 {
		t.Fatalf("monthly sum = %d, want 220", sum)
	}
	if Reconcile(0, txs).TotalSpent != 1224 {
		t.Fatal("unparseable date dropped money from total spent")
	}
}
