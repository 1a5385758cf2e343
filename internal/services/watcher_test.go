package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"kiptrack/internal/core"
)

func TestWatchStreamsSummaries(t *testing.T) {
	st := newFlakyStore()
	w := NewWatcher(st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := w.Watch(ctx, "s1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	first := <-ch
	if first.Student.ID != "s1" || first.Ledger.Balance != 1000000 {
		t.Fatalf("unexpected initial summary: %+v", first)
	}

	err = st.AddTransaction(context.Background(), core.Transaction{
		ID: "t1", StudentID: "s1", Date: "Jan 02/2025", Description: "x", Category: "Makan",
		Quantity: 1, UnitPrice: 1000, Amount: 1000, Status: core.Pending,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	select {
	case s := <-ch:
		if s.Ledger.Balance != 999000 || len(s.Transactions) != 1 {
			t.Fatalf("unexpected summary after change: %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no summary after change")
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	st := newFlakyStore()
	w := NewWatcher(st)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := w.Watch(ctx, "s1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestWatchUnknownStudent(t *testing.T) {
	w := NewWatcher(newFlakyStore())
	if _, err := w.Watch(context.Background(), "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
