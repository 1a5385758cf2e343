package services

import (
	"context"
	"errors"
	"testing"

	"kiptrack/internal/core"
)

func addScenarioTransactions(t *testing.T, st *flakyStore) {
	t.Helper()
	txs := []core.Transaction{
		{ID: "a", StudentID: "s1", Date: "Jan 05/2025", Description: "makan", Category: "Makan", Quantity: 1, UnitPrice: 50000, Amount: 50000, Status: core.Approved},
		{ID: "b", StudentID: "s1", Date: "Jan 06/2025", Description: "buku", Category: "Buku", Quantity: 1, UnitPrice: 20000, Amount: 20000, Status: core.Rejected},
		{ID: "c", StudentID: "s1", Date: "Jan 07/2025", Description: "ojek", Category: "Transport", Quantity: 1, UnitPrice: 30000, Amount: 30000, Status: core.Pending},
	}
	for _, tx := range txs {
		if err := st.AddTransaction(context.Background(), tx); err != nil {
			t.Fatalf("add transaction: %v", err)
		}
	}
}

func TestReconcileCorrectsStoredBalance(t *testing.T) {
	st := newFlakyStore()
	addScenarioTransactions(t, st)
	notifier := &recordingNotifier{}
	svc := NewLedgerService(st, notifier, fastRetry)
	ctx := context.Background()

	summary, err := svc.Reconcile(ctx, "s1")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if summary.Ledger.TotalSpent != 100000 || summary.Ledger.Balance != 900000 {
		t.Fatalf("unexpected ledger: %+v", summary.Ledger)
	}
	if summary.Ledger.TotalViolationsHistory != 20000 {
		t.Fatalf("TotalViolationsHistory = %d, want 20000", summary.Ledger.TotalViolationsHistory)
	}
	if !summary.Corrected {
		t.Fatal("expected stored balance to be corrected")
	}
	if summary.Transactions[0].ID != "c" {
		t.Fatalf("transactions not newest first: %+v", summary.Transactions)
	}

	stored, _ := st.GetStudent(ctx, "s1")
	if stored.CurrentBalance != 900000 {
		t.Fatalf("stored balance = %d, want 900000", stored.CurrentBalance)
	}

	again, err := svc.Reconcile(ctx, "s1")
	if err != nil || again.Corrected {
		t.Fatalf("second reconcile should be a no-op: %+v err=%v", again, err)
	}
	if got := notifier.all(); len(got) != 1 || got[0] != "s1:"+ReasonReconciled {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestReconcileNegativeBalance(t *testing.T) {
	st := newFlakyStore()
	err := st.AddTransaction(context.Background(), core.Transaction{
		ID: "big", StudentID: "d3", Date: "Feb 01/2025", Description: "laptop", Category: "Elektronik",
		Quantity: 1, UnitPrice: 700000, Amount: 700000, Status: core.Pending,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	svc := NewLedgerService(st, nil, fastRetry)

	summary, err := svc.Reconcile(context.Background(), "d3")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if summary.Student.CurrentBalance != -200000 {
		t.Fatalf("balance = %d, want -200000", summary.Student.CurrentBalance)
	}
}

func TestReconcileErrors(t *testing.T) {
	st := newFlakyStore()
	svc := NewLedgerService(st, nil, fastRetry)

	if _, err := svc.Reconcile(context.Background(), "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	st.down.Store(true)
	if _, err := svc.Reconcile(context.Background(), "s1"); !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	txs := []core.Transaction{
		{ID: "old", Date: "Jan 01/2025", Amount: 1, Category: "A"},
		{ID: "new", Date: "Feb 01/2025", Amount: 2, Category: "B"},
	}
	s := core.Student{ID: "x", GrantedAllowance: 10, CurrentBalance: 99}

	summary := Summarize(s, txs)
	if summary.Student.CurrentBalance != 7 {
		t.Fatalf("balance = %d, want 7", summary.Student.CurrentBalance)
	}
	if txs[0].ID != "old" || summary.Transactions[0].ID != "new" {
		t.Fatal("Summarize must sort a copy")
	}
}
