package services

import (
	"context"
	"fmt"
	"log/slog"

	"kiptrack/internal/core"
	"kiptrack/internal/store"
)

// ChangeNotifier announces that a student's data changed so other processes
// can refresh. The AMQP client implements it; a nil notifier is allowed.
type ChangeNotifier interface {
	NotifyStudentChanged(ctx context.Context, studentID, reason string) error
}

// Change reasons carried by notifications.
const (
	ReasonSubmitted  = "submitted"
	ReasonApproved   = "approved"
	ReasonDenied     = "denied"
	ReasonPromoted   = "promoted"
	ReasonReconciled = "reconciled"
)

func notify(ctx context.Context, n ChangeNotifier, studentID, reason string) {
	if n == nil {
		return
	}
	if err := n.NotifyStudentChanged(ctx, studentID, reason); err != nil {
		// The change is already stored; consumers catch up on the next event.
		slog.ErrorContext(ctx, "Failed to publish change notification",
			"student_id", studentID,
			"reason", reason,
			"error", err)
	}
}

// LedgerStore is the store surface reconciliation needs.
type LedgerStore interface {
	store.StudentReader
	store.StudentWriter
	store.TransactionReader
	store.LedgerWriter
}

// Summary is the dashboard view of one student.
type Summary struct {
	Student      core.Student
	Ledger       core.LedgerResult
	Transactions []core.Transaction // newest first
	Corrected    bool               // stored balance was rewritten
}

type LedgerService struct {
	store    LedgerStore
	notifier ChangeNotifier
	retry    RetryPolicy
}

func NewLedgerService(st LedgerStore, notifier ChangeNotifier, retry RetryPolicy) *LedgerService {
	return &LedgerService{store: st, notifier: notifier, retry: retry}
}

// Summarize derives a summary from a snapshot without touching the store.
// The returned student carries the recomputed balance.
func Summarize(s core.Student, txs []core.Transaction) Summary {
	result := core.Reconcile(s.GrantedAllowance, txs)
	s.CurrentBalance = result.Balance
	return Summary{
		Student:      s,
		Ledger:       result,
		Transactions: core.SortByDateDesc(txs),
	}
}

// Reconcile recomputes the student's balance from their transactions. When
// the stored balance disagrees it is rewritten; a failed rewrite is logged
// and the recomputed summary is still returned.
func (s *LedgerService) Reconcile(ctx context.Context, studentID string) (Summary, error) {
	var (
		student core.Student
		txs     []core.Transaction
	)
	err := Retry(ctx, s.retry, "get student", func(ctx context.Context) error {
		var err error
		student, err = s.store.GetStudent(ctx, studentID)
		return unavailable(err)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile %s: %w", studentID, err)
	}
	err = Retry(ctx, s.retry, "list transactions", func(ctx context.Context) error {
		var err error
		txs, err = s.store.ListTransactions(ctx, studentID)
		return unavailable(err)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile %s: %w", studentID, err)
	}

	stored := student.CurrentBalance
	summary := Summarize(student, txs)
	if stored == summary.Ledger.Balance {
		return summary, nil
	}

	var fresh []core.Transaction
	updated, err := s.store.UpdateStudentLedger(ctx, studentID, func(st *core.Student, txs []core.Transaction) error {
		// Recompute against the fresh record so a concurrent top-up or
		// submission survives.
		st.CurrentBalance = core.Reconcile(st.GrantedAllowance, txs).Balance
		fresh = txs
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to correct stored balance",
			"student_id", studentID,
			"balance", summary.Ledger.Balance,
			"error", err)
		return summary, nil
	}

	slog.InfoContext(ctx, "Stored balance corrected",
		"student_id", studentID,
		"stored", stored,
		"balance", updated.CurrentBalance)

	summary = Summarize(updated, fresh)
	summary.Corrected = true
	notify(ctx, s.notifier, studentID, ReasonReconciled)
	return summary, nil
}
